package transcribe

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

type wavInfo struct {
	sampleRate int
	channels   int
	bitDepth   int
	dataBytes  int64
}

func (w wavInfo) bytesPerSecond() float64 {
	return float64(w.sampleRate * w.channels * w.bitDepth / 8)
}

// pcmReader exposes the raw little-endian sample bytes of a wav file as a
// bounded stream. Extraction output is always validated through go-audio
// first (see validateWAV); the decoder then consumes raw s16 bytes, so this
// reader just skips to the data chunk instead of decoding into int frames.
type pcmReader struct {
	f    *os.File
	r    io.Reader
	info wavInfo
}

func openPCM(path string) (*pcmReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, dataLen, err := scanChunks(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	info.dataBytes = dataLen
	return &pcmReader{f: f, r: io.LimitReader(f, dataLen), info: info}, nil
}

func (p *pcmReader) Read(b []byte) (int, error) { return p.r.Read(b) }
func (p *pcmReader) Close() error               { return p.f.Close() }

// scanChunks walks the RIFF chunk list to the fmt and data chunks, leaving
// the file positioned at the first sample byte.
func scanChunks(f *os.File) (wavInfo, int64, error) {
	var hdr [12]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return wavInfo{}, 0, fmt.Errorf("read riff header: %w", err)
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" {
		return wavInfo{}, 0, fmt.Errorf("not a riff/wave file")
	}
	var info wavInfo
	sawFmt := false
	for {
		var ch [8]byte
		if _, err := io.ReadFull(f, ch[:]); err != nil {
			return wavInfo{}, 0, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(ch[0:4])
		size := int64(binary.LittleEndian.Uint32(ch[4:8]))
		switch id {
		case "fmt ":
			var fmtBody [16]byte
			if _, err := io.ReadFull(f, fmtBody[:]); err != nil {
				return wavInfo{}, 0, fmt.Errorf("read fmt chunk: %w", err)
			}
			info.channels = int(binary.LittleEndian.Uint16(fmtBody[2:4]))
			info.sampleRate = int(binary.LittleEndian.Uint32(fmtBody[4:8]))
			info.bitDepth = int(binary.LittleEndian.Uint16(fmtBody[14:16]))
			sawFmt = true
			if size > 16 {
				if _, err := f.Seek(size-16, io.SeekCurrent); err != nil {
					return wavInfo{}, 0, err
				}
			}
		case "data":
			if !sawFmt {
				return wavInfo{}, 0, fmt.Errorf("data chunk before fmt chunk")
			}
			return info, size, nil
		default:
			// chunk sizes are padded to even byte counts
			if size%2 == 1 {
				size++
			}
			if _, err := f.Seek(size, io.SeekCurrent); err != nil {
				return wavInfo{}, 0, err
			}
		}
	}
}
