package transcribe

import (
	"fmt"
	"io"
	"log/slog"
)

// Word is a single recognized word with timestamps in seconds.
type Word struct {
	Start float64
	End   float64
	Text  string
}

// Result is what a decoder reports at an utterance boundary.
type Result struct {
	Words []Word
}

// Decoder is the streaming seam over the acoustic model. Implementations are
// single-use: one decoder consumes one waveform front to back.
type Decoder interface {
	// Accept feeds one chunk of little-endian s16 mono PCM. final is true
	// when the decoder flushed an utterance (silence-based endpointing);
	// the accompanying Result carries its words.
	Accept(chunk []byte) (res Result, final bool, err error)
	// Final flushes whatever the decoder still buffers.
	Final() (Result, error)
	Close() error
}

// DecoderFactory owns the loaded model and mints per-file decoders. The
// model is a read-only resource safe to share across supervisors.
type DecoderFactory interface {
	NewDecoder(sampleRate int) (Decoder, error)
	Close() error
}

// RecognizerOptions bound the segmenter.
type RecognizerOptions struct {
	// MaxSegmentSeconds flushes a segment that would otherwise keep growing
	// (bounds memory on long continuous speech). Default 30.
	MaxSegmentSeconds float64
	// GapSeconds starts a new segment when the silence between two words
	// exceeds it. Default 2.
	GapSeconds float64
	// ChunkSeconds sizes the audio window fed to the decoder. Default 0.25.
	ChunkSeconds float64
}

func (o RecognizerOptions) withDefaults() RecognizerOptions {
	if o.MaxSegmentSeconds <= 0 {
		o.MaxSegmentSeconds = 30
	}
	if o.GapSeconds <= 0 {
		o.GapSeconds = 2
	}
	if o.ChunkSeconds <= 0 {
		o.ChunkSeconds = 0.25
	}
	return o
}

// Recognizer is a lazy, single-pass sequence of transcript segments pulled
// from a waveform. Memory stays bounded: one chunk buffer plus the current
// segment accumulator, regardless of file length.
type Recognizer struct {
	pcm     *pcmReader
	dec     Decoder
	opts    RecognizerOptions
	chunk   []byte
	perSec  float64
	elapsed float64 // seconds of audio consumed so far

	cur     *Segment // accumulating segment, nil when empty
	pending []Segment
	done    bool
}

// NewRecognizer opens the waveform and prepares a decoder for it. The caller
// must Close the recognizer; the waveform is consumed exactly once.
func NewRecognizer(wavPath string, factory DecoderFactory, opts RecognizerOptions) (*Recognizer, error) {
	pcm, err := openPCM(wavPath)
	if err != nil {
		return nil, fmt.Errorf("open waveform: %w", err)
	}
	if pcm.info.channels != 1 || pcm.info.bitDepth != 16 {
		pcm.Close()
		return nil, fmt.Errorf("waveform must be mono s16 pcm, got %d ch / %d bit", pcm.info.channels, pcm.info.bitDepth)
	}
	opts = opts.withDefaults()
	dec, err := factory.NewDecoder(pcm.info.sampleRate)
	if err != nil {
		pcm.Close()
		return nil, err
	}
	perSec := pcm.info.bytesPerSecond()
	chunkLen := int(perSec * opts.ChunkSeconds)
	chunkLen -= chunkLen % 2 // whole samples only
	if chunkLen < 2 {
		chunkLen = 2
	}
	return &Recognizer{
		pcm:    pcm,
		dec:    dec,
		opts:   opts,
		chunk:  make([]byte, chunkLen),
		perSec: perSec,
	}, nil
}

// Next returns the next segment in non-decreasing start order, or io.EOF
// after the last one. Per-chunk decode errors degrade to empty-text segments.
func (r *Recognizer) Next() (Segment, error) {
	for {
		if len(r.pending) > 0 {
			seg := r.pending[0]
			r.pending = r.pending[1:]
			return seg, nil
		}
		if r.done {
			return Segment{}, io.EOF
		}

		n, readErr := io.ReadFull(r.pcm, r.chunk)
		if n > 0 {
			chunkStart := r.elapsed
			r.elapsed += float64(n) / r.perSec
			res, final, err := r.dec.Accept(r.chunk[:n])
			if err != nil {
				slog.Warn("chunk decode failed; emitting empty segment",
					slog.Float64("start", chunkStart), slog.Float64("end", r.elapsed), slog.Any("err", err))
				r.flush()
				r.pending = append(r.pending, Segment{Start: chunkStart, End: r.elapsed, Text: ""})
				continue
			}
			r.absorb(res.Words)
			if final {
				r.flush()
			}
		}
		if readErr != nil {
			if readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
				return Segment{}, fmt.Errorf("read waveform: %w", readErr)
			}
			res, err := r.dec.Final()
			if err != nil {
				slog.Warn("final decode failed", slog.Any("err", err))
			} else {
				r.absorb(res.Words)
			}
			r.flush()
			r.done = true
		}
	}
}

// absorb folds decoded words into the current segment, splitting on silence
// gaps and capping segment duration.
func (r *Recognizer) absorb(words []Word) {
	for _, w := range words {
		switch {
		case r.cur == nil:
			r.cur = &Segment{Start: w.Start, End: w.End, Text: w.Text}
			continue
		case w.Start-r.cur.End > r.opts.GapSeconds,
			w.End-r.cur.Start > r.opts.MaxSegmentSeconds:
			r.flush()
			r.cur = &Segment{Start: w.Start, End: w.End, Text: w.Text}
			continue
		}
		r.cur.End = w.End
		if r.cur.Text == "" {
			r.cur.Text = w.Text
		} else {
			r.cur.Text += " " + w.Text
		}
	}
}

func (r *Recognizer) flush() {
	if r.cur == nil {
		return
	}
	r.pending = append(r.pending, *r.cur)
	r.cur = nil
}

// Close releases the decoder and the waveform handle.
func (r *Recognizer) Close() error {
	decErr := r.dec.Close()
	if err := r.pcm.Close(); err != nil {
		return err
	}
	return decErr
}
