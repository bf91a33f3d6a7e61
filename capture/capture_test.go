package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/onnwee/stream-scribe/config"
	"github.com/onnwee/stream-scribe/platform"
)

// scriptRunner fakes streamlink/ffprobe: onRun may write the output file the
// way the real tool would, probeOut is what ffprobe prints.
type scriptRunner struct {
	onRun    func(ctx context.Context, args []string) error
	probeOut string
	probeErr error
}

func (s *scriptRunner) Run(ctx context.Context, name string, args ...string) error {
	if s.onRun != nil {
		return s.onRun(ctx, args)
	}
	return nil
}

func (s *scriptRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return []byte(s.probeOut), s.probeErr
}

func (s *scriptRunner) Look(string) bool { return true }

func testStreamer(t *testing.T) config.StreamerConfig {
	t.Helper()
	return config.StreamerConfig{
		Name:          "alice",
		Platform:      config.PlatformTwitch,
		Quality:       "best",
		RecordingsDir: t.TempDir(),
	}
}

func TestRecordSuccess(t *testing.T) {
	s := testStreamer(t)
	out := OutputPath(s, time.Now())
	run := &scriptRunner{
		onRun: func(_ context.Context, args []string) error {
			return os.WriteFile(args[1], []byte("tsdata"), 0o644)
		},
		probeOut: "600.25\n",
	}
	rec := &StreamlinkRecorder{Run: run}
	res, err := rec.Record(context.Background(), platform.Handle{URL: "https://twitch.tv/alice"}, s, out)
	if err != nil {
		t.Fatal(err)
	}
	if res.Path != out || res.Bytes != 6 {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.DurationSeconds != 600.25 {
		t.Fatalf("duration=%v want 600.25", res.DurationSeconds)
	}
}

func TestRecordNoDataIsRecoverable(t *testing.T) {
	s := testStreamer(t)
	out := OutputPath(s, time.Now())
	rec := &StreamlinkRecorder{Run: &scriptRunner{}} // exits clean, writes nothing
	_, err := rec.Record(context.Background(), platform.Handle{URL: "u"}, s, out)
	if !IsRecoverable(err) {
		t.Fatalf("expected recoverable error, got %v", err)
	}
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestRecordEmptyFileRemoved(t *testing.T) {
	s := testStreamer(t)
	out := OutputPath(s, time.Now())
	run := &scriptRunner{
		onRun: func(_ context.Context, args []string) error {
			if err := os.WriteFile(args[1], nil, 0o644); err != nil {
				t.Fatal(err)
			}
			return errors.New("exit status 1: error: No playable streams found")
		},
	}
	rec := &StreamlinkRecorder{Run: run}
	_, err := rec.Record(context.Background(), platform.Handle{URL: "u"}, s, out)
	if !IsRecoverable(err) {
		t.Fatalf("expected recoverable, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("empty capture should be deleted")
	}
}

func TestRecordCancellationDiscardsPartial(t *testing.T) {
	s := testStreamer(t)
	out := OutputPath(s, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	run := &scriptRunner{
		onRun: func(rctx context.Context, args []string) error {
			if err := os.WriteFile(args[1], []byte("partial"), 0o644); err != nil {
				t.Fatal(err)
			}
			cancel()
			return context.Canceled // subprocess killed
		},
	}
	rec := &StreamlinkRecorder{Run: run}
	_, err := rec.Record(ctx, platform.Handle{URL: "u"}, s, out)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if _, statErr := os.Stat(out); !os.IsNotExist(statErr) {
		t.Fatal("partial file should be discarded on cancellation")
	}
}

func TestRecordCancellationKeepsCompletedFile(t *testing.T) {
	s := testStreamer(t)
	out := OutputPath(s, time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	run := &scriptRunner{
		onRun: func(_ context.Context, args []string) error {
			if err := os.WriteFile(args[1], []byte("complete"), 0o644); err != nil {
				t.Fatal(err)
			}
			cancel() // clean end-of-stream raced the stop signal
			return nil
		},
		probeOut: "42.0",
	}
	rec := &StreamlinkRecorder{Run: run}
	res, err := rec.Record(ctx, platform.Handle{URL: "u"}, s, out)
	if err != nil {
		t.Fatalf("completed capture should survive a racing cancellation: %v", err)
	}
	if res.DurationSeconds != 42 {
		t.Fatalf("duration=%v want 42", res.DurationSeconds)
	}
}

func TestRecordFatalPreservesFile(t *testing.T) {
	s := testStreamer(t)
	out := OutputPath(s, time.Now())
	run := &scriptRunner{
		onRun: func(_ context.Context, args []string) error {
			if err := os.WriteFile(args[1], []byte("lots of data"), 0o644); err != nil {
				t.Fatal(err)
			}
			return errors.New("exit status 1: read timeout on segment 1042")
		},
	}
	rec := &StreamlinkRecorder{Run: run}
	_, err := rec.Record(context.Background(), platform.Handle{URL: "u"}, s, out)
	var ce *Error
	if !errors.As(err, &ce) || ce.Class != Fatal {
		t.Fatalf("ambiguous mid-stream failure should be fatal, got %v", err)
	}
	if ce.Path != out {
		t.Fatalf("fatal error should carry the preserved path, got %q", ce.Path)
	}
	if _, statErr := os.Stat(out); statErr != nil {
		t.Fatal("captured data should be preserved on fatal failure")
	}
}

func TestRecordDurationProbeFallback(t *testing.T) {
	s := testStreamer(t)
	out := OutputPath(s, time.Now())
	run := &scriptRunner{
		onRun: func(_ context.Context, args []string) error {
			return os.WriteFile(args[1], []byte("x"), 0o644)
		},
		probeErr: errors.New("ffprobe: not found"),
	}
	rec := &StreamlinkRecorder{Run: run}
	res, err := rec.Record(context.Background(), platform.Handle{URL: "u"}, s, out)
	if err != nil {
		t.Fatal(err)
	}
	if res.DurationSeconds < 0 {
		t.Fatalf("fallback duration should be non-negative, got %v", res.DurationSeconds)
	}
}

func TestOutputPathLayout(t *testing.T) {
	s := config.StreamerConfig{Name: "alice", RecordingsDir: filepath.Join("recordings", "alice")}
	ts := time.Date(2026, 8, 25, 13, 4, 5, 0, time.UTC)
	got := OutputPath(s, ts)
	want := filepath.Join("recordings", "alice", "alice-20260825130405.ts")
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
