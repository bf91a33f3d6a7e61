// Package transcribe turns a finished recording into a timestamped transcript:
// ffmpeg extracts a mono 16 kHz waveform, a model-backed decoder streams it
// into word results, and the assembler persists a JSON sidecar next to the
// recording.
package transcribe

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"github.com/onnwee/stream-scribe/runner"
)

// RecognizerSampleRate is the waveform format the decoder expects:
// 16 kHz mono s16le PCM.
const RecognizerSampleRate = 16000

// unsupportedPatterns match ffmpeg output for sources it cannot demux.
var unsupportedPatterns = []string{
	"invalid data found when processing input",
	"could not find codec",
	"unknown format",
	"moov atom not found",
}

// ExtractAudio converts a recording into a mono 16 kHz PCM waveform at
// wavPath. The transformation is deterministic: the same input bytes yield a
// byte-identical waveform (modulo encoder version). Sources shorter than
// minSeconds fail with a Truncated extraction error.
func ExtractAudio(ctx context.Context, run runner.Runner, recordingPath, wavPath string, minSeconds float64) error {
	if _, err := os.Stat(recordingPath); err != nil {
		return fmt.Errorf("recording not found: %w", err)
	}

	err := run.Run(ctx, "ffmpeg",
		"-i", recordingPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprintf("%d", RecognizerSampleRate),
		"-ac", "1",
		"-y",
		wavPath)
	if err != nil {
		_ = os.Remove(wavPath)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lower := strings.ToLower(err.Error())
		for _, pattern := range unsupportedPatterns {
			if strings.Contains(lower, pattern) {
				return &ExtractionError{Kind: UnsupportedFormat, Path: recordingPath, Err: err}
			}
		}
		return fmt.Errorf("ffmpeg extract: %w", err)
	}

	dur, err := validateWAV(wavPath)
	if err != nil {
		_ = os.Remove(wavPath)
		return &ExtractionError{Kind: UnsupportedFormat, Path: recordingPath, Err: err}
	}
	if dur < time.Duration(minSeconds*float64(time.Second)) {
		_ = os.Remove(wavPath)
		return &ExtractionError{
			Kind: Truncated,
			Path: recordingPath,
			Err:  fmt.Errorf("waveform %.1fs shorter than minimum %.1fs", dur.Seconds(), minSeconds),
		}
	}
	return nil
}

// validateWAV confirms the extracted file is a well-formed mono PCM waveform
// and returns its duration.
func validateWAV(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return 0, fmt.Errorf("not a valid wav file")
	}
	if d.NumChans != 1 {
		return 0, fmt.Errorf("expected mono waveform, got %d channels", d.NumChans)
	}
	if d.SampleRate != RecognizerSampleRate {
		return 0, fmt.Errorf("expected %d Hz waveform, got %d", RecognizerSampleRate, d.SampleRate)
	}
	dur, err := d.Duration()
	if err != nil {
		return 0, fmt.Errorf("read wav duration: %w", err)
	}
	return dur, nil
}
