package monitor

import (
	"context"
	"database/sql"
	"log/slog"
	"sync"

	"github.com/onnwee/stream-scribe/capture"
	"github.com/onnwee/stream-scribe/config"
	"github.com/onnwee/stream-scribe/platform"
	"github.com/onnwee/stream-scribe/runner"
	"github.com/onnwee/stream-scribe/telemetry"
)

// Pool runs one supervisor goroutine per configured streamer.
type Pool struct {
	supervisors []*Supervisor
	wg          sync.WaitGroup
}

// NewPool builds supervisors from the config. pipeline is shared across
// supervisors (the recognizer model is loaded once, read-only); pass nil when
// transcription is globally disabled.
func NewPool(cfg *config.Config, run runner.Runner, pipeline TranscriptPipeline, dbc *sql.DB) *Pool {
	p := &Pool{}
	recorder := &capture.StreamlinkRecorder{Run: run}
	for _, s := range cfg.Streamers {
		prober := platform.ProberFor(cfg, s, run)
		p.supervisors = append(p.supervisors, NewSupervisor(s, cfg, prober, recorder, pipeline, dbc))
	}
	return p
}

// Run starts all supervisors and blocks until ctx is cancelled and every
// supervisor has returned.
func (p *Pool) Run(ctx context.Context) {
	telemetry.SetSupervisors(len(p.supervisors))
	slog.Info("session pool starting", slog.Int("supervisors", len(p.supervisors)))
	for _, s := range p.supervisors {
		p.wg.Add(1)
		go func(s *Supervisor) {
			defer p.wg.Done()
			s.Run(ctx)
		}(s)
	}
	p.wg.Wait()
	telemetry.SetSupervisors(0)
	slog.Info("session pool stopped")
}

// Snapshots reports the current state of every supervisor.
func (p *Pool) Snapshots() []Snapshot {
	out := make([]Snapshot, 0, len(p.supervisors))
	for _, s := range p.supervisors {
		out = append(out, s.Snapshot())
	}
	return out
}

// RecordingsDirs lists the distinct directories supervisors record into.
func (p *Pool) RecordingsDirs() []string {
	seen := map[string]bool{}
	var dirs []string
	for _, s := range p.supervisors {
		dir := s.cfg.RecordingsDir
		if dir == "" || seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs
}
