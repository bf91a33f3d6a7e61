package transcribe

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/onnwee/stream-scribe/runner"
)

// Pipeline drives extract -> recognize -> assemble -> persist for one
// recording at a time. The source recording is never deleted here, even on
// failure, so any stage can be retried manually.
type Pipeline struct {
	Run     runner.Runner
	Factory DecoderFactory

	// KeepWAV retains the intermediate waveform instead of deleting it.
	KeepWAV bool
	// MinRecordingSeconds is the shortest capture considered viable.
	MinRecordingSeconds float64
	Recognizer          RecognizerOptions
}

// ProcessRecording produces the sidecar transcript for recordingPath and
// returns the sidecar path. Errors are the taxonomy in errors.go; callers
// decide how they affect supervisor state.
func (p *Pipeline) ProcessRecording(ctx context.Context, recordingPath string) (string, error) {
	wavPath := WAVPath(recordingPath)
	if err := ExtractAudio(ctx, p.Run, recordingPath, wavPath, p.MinRecordingSeconds); err != nil {
		return "", err
	}
	if !p.KeepWAV {
		defer func() {
			if err := os.Remove(wavPath); err != nil && !os.IsNotExist(err) {
				slog.Warn("failed to remove intermediate waveform", slog.String("path", wavPath), slog.Any("err", err))
			}
		}()
	}

	rec, err := NewRecognizer(wavPath, p.Factory, p.Recognizer)
	if err != nil {
		return "", err
	}
	defer rec.Close()

	segments, err := collect(ctx, rec)
	if err != nil {
		return "", err
	}

	sidecar := SidecarPath(recordingPath)
	transcript := Assemble(segments)
	if err := transcript.WriteSidecar(sidecar); err != nil {
		return "", err
	}
	return sidecar, nil
}

func collect(ctx context.Context, rec *Recognizer) ([]Segment, error) {
	var segments []Segment
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		seg, err := rec.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return segments, nil
			}
			return nil, err
		}
		segments = append(segments, seg)
	}
}
