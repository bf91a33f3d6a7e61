package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/onnwee/stream-scribe/config"
	"github.com/onnwee/stream-scribe/runner"
)

type noopRunner struct{}

func (noopRunner) Run(ctx context.Context, name string, args ...string) error { return nil }
func (noopRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return nil, nil
}
func (noopRunner) Look(name string) bool { return true }

var _ runner.Runner = noopRunner{}

func TestPoolOneSupervisorPerStreamer(t *testing.T) {
	cfg := &config.Config{
		Streamers: []config.StreamerConfig{
			{Name: "alpha", Platform: config.PlatformTwitch, PollInterval: time.Hour, Cooldown: time.Hour},
			{Name: "beta", Platform: config.PlatformURL, PollInterval: time.Hour, Cooldown: time.Hour},
		},
		RecordRetryCeil: 3,
		ProbeTimeout:    time.Second,
	}
	p := NewPool(cfg, noopRunner{}, nil, nil)
	snaps := p.Snapshots()
	if len(snaps) != 2 {
		t.Fatalf("got %d supervisors, want 2", len(snaps))
	}
	if snaps[0].Streamer != "alpha" || snaps[1].Streamer != "beta" {
		t.Fatalf("unexpected snapshot order: %+v", snaps)
	}
	if snaps[0].State != "idle" {
		t.Fatalf("fresh supervisor state = %q, want idle", snaps[0].State)
	}
}

func TestPoolRecordingsDirsDeduplicated(t *testing.T) {
	cfg := &config.Config{
		Streamers: []config.StreamerConfig{
			{Name: "alpha", Platform: config.PlatformURL, PollInterval: time.Hour, Cooldown: time.Hour, RecordingsDir: "recordings/shared"},
			{Name: "beta", Platform: config.PlatformURL, PollInterval: time.Hour, Cooldown: time.Hour, RecordingsDir: "recordings/shared"},
			{Name: "gamma", Platform: config.PlatformURL, PollInterval: time.Hour, Cooldown: time.Hour, RecordingsDir: "recordings/gamma"},
		},
		RecordRetryCeil: 3,
		ProbeTimeout:    time.Second,
	}
	p := NewPool(cfg, noopRunner{}, nil, nil)
	dirs := p.RecordingsDirs()
	if len(dirs) != 2 || dirs[0] != "recordings/shared" || dirs[1] != "recordings/gamma" {
		t.Fatalf("unexpected dirs: %v", dirs)
	}
}

func TestPoolRunStopsOnCancel(t *testing.T) {
	cfg := &config.Config{
		Streamers: []config.StreamerConfig{
			{Name: "alpha", Platform: config.PlatformURL, PollInterval: 2 * time.Millisecond, Cooldown: 2 * time.Millisecond},
		},
		RecordRetryCeil: 3,
		ProbeTimeout:    time.Second,
	}
	p := NewPool(cfg, noopRunner{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop after cancellation")
	}
}
