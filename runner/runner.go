// Package runner is the narrow subprocess seam used by the capture and
// transcription pipelines. Orchestration code depends on the Runner interface
// so tests can run without streamlink/ffmpeg installed.
package runner

import (
	"context"
	"log/slog"
	"os/exec"
)

// Runner spawns external tools and waits for them to exit.
type Runner interface {
	// Run executes the command, discarding stdout, and returns the exit error
	// (wrapping stderr output where the tool reports failures there).
	Run(ctx context.Context, name string, args ...string) error
	// Output executes the command and returns combined stdout+stderr.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
	// Look reports whether the named tool is on PATH.
	Look(name string) bool
}

// Exec is the production Runner backed by os/exec. The zero value is usable.
type Exec struct{}

func (Exec) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &ToolError{Tool: name, Err: err, Output: string(out)}
	}
	return nil
}

func (Exec) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, &ToolError{Tool: name, Err: err, Output: string(out)}
	}
	return out, nil
}

func (Exec) Look(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// ToolError carries the tool name and its captured output alongside the exec error.
type ToolError struct {
	Tool   string
	Err    error
	Output string
}

func (e *ToolError) Error() string {
	if e.Output != "" {
		return e.Tool + ": " + e.Err.Error() + ": " + tail(e.Output, 512)
	}
	return e.Tool + ": " + e.Err.Error()
}

func (e *ToolError) Unwrap() error { return e.Err }

// tail returns at most n trailing bytes of s; error details from ffmpeg and
// streamlink land at the end of their output.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

// CheckTools logs which of the given external tools are available. Missing
// tools are not fatal here; the feature that needs them fails at use time.
func CheckTools(r Runner, names ...string) {
	for _, name := range names {
		if r.Look(name) {
			slog.Debug("external tool found", slog.String("tool", name))
		} else {
			slog.Warn("external tool not found on PATH", slog.String("tool", name))
		}
	}
}
