// Package capture records live streams to disk by supervising an external
// streamlink process. The orchestration depends only on the runner seam, so
// tests run without real capture tooling.
package capture

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/onnwee/stream-scribe/config"
	"github.com/onnwee/stream-scribe/platform"
	"github.com/onnwee/stream-scribe/runner"
)

// RecordResult describes a completed capture.
type RecordResult struct {
	Path            string
	DurationSeconds float64
	Bytes           int64
}

// Recorder captures one live broadcast into one media file. The call blocks
// until the stream ends, the capture fails, or ctx is cancelled.
type Recorder interface {
	Record(ctx context.Context, handle platform.Handle, s config.StreamerConfig, outPath string) (RecordResult, error)
}

// StreamlinkRecorder runs streamlink with -o so the tool owns the output file,
// then verifies the result with ffprobe.
type StreamlinkRecorder struct {
	Run runner.Runner
	// ExtraFlags are appended to every streamlink invocation
	// (e.g. --twitch-disable-ads).
	ExtraFlags []string
}

func (r *StreamlinkRecorder) Record(ctx context.Context, handle platform.Handle, s config.StreamerConfig, outPath string) (RecordResult, error) {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return RecordResult{}, &Error{Class: Fatal, Err: fmt.Errorf("mkdir recordings dir: %w", err)}
	}

	args := []string{"-o", outPath, handle.URL, s.Quality}
	args = append(args, r.ExtraFlags...)

	start := time.Now()
	runErr := r.Run.Run(ctx, "streamlink", args...)
	elapsed := time.Since(start)

	info, statErr := os.Stat(outPath)

	// Cancellation kills the subprocess mid-write; the partial file must not
	// reach post-processing. A clean exit that raced the cancellation keeps
	// its completed file.
	if ctx.Err() != nil && runErr != nil {
		removePartial(outPath)
		return RecordResult{}, ctx.Err()
	}

	if statErr != nil || info.Size() == 0 {
		// Nothing captured: the channel dropped between probe and record, or
		// streamlink found no playable stream. Recoverable, re-probe.
		removePartial(outPath)
		if runErr != nil {
			return RecordResult{}, &Error{Class: Recoverable, Err: runErr}
		}
		return RecordResult{}, &Error{Class: Recoverable, Err: ErrNoData}
	}

	if runErr != nil {
		// Data was captured but the process did not exit cleanly. The file is
		// preserved for manual inspection; classification decides whether the
		// supervisor re-probes or cools down.
		return RecordResult{}, &Error{Class: classify(runErr), Path: outPath, Err: runErr}
	}

	res := RecordResult{Path: outPath, Bytes: info.Size()}
	dur, err := r.probeDuration(ctx, outPath)
	if err != nil {
		slog.Warn("duration probe failed, falling back to wall clock",
			slog.String("path", outPath), slog.Any("err", err))
		dur = elapsed.Seconds()
	}
	res.DurationSeconds = dur
	return res, nil
}

// probeDuration reads the container duration via ffprobe. A parseable result
// also confirms the file carries a complete container trailer.
func (r *StreamlinkRecorder) probeDuration(ctx context.Context, path string) (float64, error) {
	out, err := r.Run.Output(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path)
	if err != nil {
		return 0, err
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parse ffprobe duration: %w", err)
	}
	return dur, nil
}

func removePartial(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove partial capture", slog.String("path", path), slog.Any("err", err))
	}
}

// OutputPath builds the timestamped recording path for a streamer, mirroring
// the <streamer>-<timestamp>.ts layout capture tools conventionally produce.
func OutputPath(s config.StreamerConfig, now time.Time) string {
	return filepath.Join(s.RecordingsDir, fmt.Sprintf("%s-%s.ts", s.Name, now.Format("20060102150405")))
}
