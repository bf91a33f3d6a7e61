package transcribe

import (
	"encoding/binary"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
)

// writeTestWAV writes a silent mono s16le waveform of the given duration.
func writeTestWAV(t *testing.T, path string, seconds float64, sampleRate int) {
	t.Helper()
	samples := int(seconds * float64(sampleRate))
	dataLen := samples * 2
	buf := make([]byte, 44+dataLen)
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataLen))
	copy(buf[8:12], "WAVE")
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], 1) // mono
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(buf[32:34], 2)
	binary.LittleEndian.PutUint16(buf[34:36], 16)
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataLen))
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatal(err)
	}
}

// fakeDecoder scripts per-chunk behavior; call counting starts at 1.
type fakeDecoder struct {
	onAccept func(call int) (Result, bool, error)
	final    Result
	finalErr error
	calls    int
	closed   bool
}

func (d *fakeDecoder) Accept(chunk []byte) (Result, bool, error) {
	d.calls++
	if d.onAccept != nil {
		return d.onAccept(d.calls)
	}
	return Result{}, false, nil
}

func (d *fakeDecoder) Final() (Result, error) { return d.final, d.finalErr }
func (d *fakeDecoder) Close() error           { d.closed = true; return nil }

type fakeFactory struct {
	dec Decoder
	err error
}

func (f *fakeFactory) NewDecoder(sampleRate int) (Decoder, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.dec, nil
}

func (f *fakeFactory) Close() error { return nil }

func drain(t *testing.T, r *Recognizer) []Segment {
	t.Helper()
	var segs []Segment
	for {
		seg, err := r.Next()
		if errors.Is(err, io.EOF) {
			return segs
		}
		if err != nil {
			t.Fatal(err)
		}
		segs = append(segs, seg)
	}
}

func TestRecognizerGapSplitsSegments(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "a.wav")
	writeTestWAV(t, wav, 2, RecognizerSampleRate)
	dec := &fakeDecoder{
		final: Result{Words: []Word{
			{Start: 0.0, End: 0.5, Text: "hello"},
			{Start: 0.6, End: 1.0, Text: "there"},
			{Start: 5.0, End: 5.5, Text: "again"}, // 4s gap
		}},
	}
	r, err := NewRecognizer(wav, &fakeFactory{dec: dec}, RecognizerOptions{GapSeconds: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	segs := drain(t, r)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %+v", segs)
	}
	if segs[0].Text != "hello there" || segs[1].Text != "again" {
		t.Fatalf("unexpected texts: %+v", segs)
	}
	if segs[0].Start != 0 || segs[0].End != 1.0 || segs[1].Start != 5.0 {
		t.Fatalf("unexpected bounds: %+v", segs)
	}
}

func TestRecognizerMaxSegmentCap(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "a.wav")
	writeTestWAV(t, wav, 2, RecognizerSampleRate)
	var words []Word
	for i := 0; i < 20; i++ {
		start := float64(i)
		words = append(words, Word{Start: start, End: start + 0.9, Text: "w"})
	}
	dec := &fakeDecoder{final: Result{Words: words}}
	r, err := NewRecognizer(wav, &fakeFactory{dec: dec}, RecognizerOptions{MaxSegmentSeconds: 5, GapSeconds: 2})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	segs := drain(t, r)
	if len(segs) < 2 {
		t.Fatalf("expected the cap to split segments, got %+v", segs)
	}
	for _, s := range segs {
		if s.End-s.Start > 5 {
			t.Fatalf("segment exceeds max duration: %+v", s)
		}
	}
}

func TestRecognizerUtteranceBoundaries(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "a.wav")
	writeTestWAV(t, wav, 1, RecognizerSampleRate) // 4 chunks at defaults
	dec := &fakeDecoder{
		onAccept: func(call int) (Result, bool, error) {
			if call == 2 {
				return Result{Words: []Word{{Start: 0.1, End: 0.4, Text: "first"}}}, true, nil
			}
			return Result{}, false, nil
		},
		final: Result{Words: []Word{{Start: 0.6, End: 0.9, Text: "second"}}},
	}
	r, err := NewRecognizer(wav, &fakeFactory{dec: dec}, RecognizerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	segs := drain(t, r)
	if len(segs) != 2 || segs[0].Text != "first" || segs[1].Text != "second" {
		t.Fatalf("unexpected segments: %+v", segs)
	}
}

func TestRecognizerDecodeErrorBecomesEmptySegment(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "a.wav")
	writeTestWAV(t, wav, 1, RecognizerSampleRate)
	dec := &fakeDecoder{
		onAccept: func(call int) (Result, bool, error) {
			if call == 2 {
				return Result{}, false, &RecognitionError{Kind: Decode, Err: errors.New("bad chunk")}
			}
			return Result{}, false, nil
		},
	}
	r, err := NewRecognizer(wav, &fakeFactory{dec: dec}, RecognizerOptions{ChunkSeconds: 0.25})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	segs := drain(t, r)
	if len(segs) != 1 {
		t.Fatalf("expected one empty segment, got %+v", segs)
	}
	if segs[0].Text != "" {
		t.Fatalf("decode error segment should be empty text: %+v", segs[0])
	}
	if segs[0].Start != 0.25 || segs[0].End != 0.5 {
		t.Fatalf("empty segment should span the failed chunk: %+v", segs[0])
	}
}

func TestRecognizerInvariants(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "a.wav")
	writeTestWAV(t, wav, 2, RecognizerSampleRate)
	dec := &fakeDecoder{
		final: Result{Words: []Word{
			{Start: 0, End: 0.5, Text: "a"},
			{Start: 3, End: 3.5, Text: "b"},
			{Start: 7, End: 8, Text: "c"},
		}},
	}
	r, err := NewRecognizer(wav, &fakeFactory{dec: dec}, RecognizerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	segs := drain(t, r)
	for i, s := range segs {
		if s.End < s.Start {
			t.Fatalf("segment %d: end < start: %+v", i, s)
		}
		if i > 0 && s.Start < segs[i-1].Start {
			t.Fatalf("segments out of order at %d: %+v", i, segs)
		}
	}
}

func TestRecognizerModelLoadErrorPropagates(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "a.wav")
	writeTestWAV(t, wav, 1, RecognizerSampleRate)
	loadErr := &RecognitionError{Kind: ModelLoad, Err: errors.New("missing am/final.mdl")}
	_, err := NewRecognizer(wav, &fakeFactory{err: loadErr}, RecognizerOptions{})
	if !IsModelLoad(err) {
		t.Fatalf("expected model load error, got %v", err)
	}
}

func TestRecognizerRejectsStereo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stereo.wav")
	writeTestWAV(t, path, 1, RecognizerSampleRate)
	// flip the channel count in the fmt chunk
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	data[22] = 2
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewRecognizer(path, &fakeFactory{dec: &fakeDecoder{}}, RecognizerOptions{}); err == nil {
		t.Fatal("expected error for stereo waveform")
	}
}

func TestRecognizerCloseReleasesDecoder(t *testing.T) {
	wav := filepath.Join(t.TempDir(), "a.wav")
	writeTestWAV(t, wav, 1, RecognizerSampleRate)
	dec := &fakeDecoder{}
	r, err := NewRecognizer(wav, &fakeFactory{dec: dec}, RecognizerOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if err := r.Close(); err != nil {
		t.Fatal(err)
	}
	if !dec.closed {
		t.Fatal("decoder should be closed")
	}
}
