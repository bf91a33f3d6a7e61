// Package monitor runs one session supervisor per configured streamer. Each
// supervisor drives probe -> record -> post-process cycles independently; the
// only cross-supervisor signal is pool-wide cancellation.
package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/stream-scribe/capture"
	"github.com/onnwee/stream-scribe/config"
	"github.com/onnwee/stream-scribe/platform"
	"github.com/onnwee/stream-scribe/telemetry"
	"github.com/onnwee/stream-scribe/transcribe"
)

// SessionState is the supervisor's position in its cycle. One live value per
// supervisor, mutated only by that supervisor, never persisted.
type SessionState int32

const (
	StateIdle SessionState = iota
	StateProbing
	StateRecording
	StatePostProcessing
	StateCooldown
	StateFailed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProbing:
		return "probing"
	case StateRecording:
		return "recording"
	case StatePostProcessing:
		return "post-processing"
	case StateCooldown:
		return "cooldown"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TranscriptPipeline is the post-processing seam (see transcribe.Pipeline).
type TranscriptPipeline interface {
	ProcessRecording(ctx context.Context, recordingPath string) (string, error)
}

// Snapshot is a point-in-time copy of supervisor state for the status API.
type Snapshot struct {
	Streamer  string    `json:"streamer"`
	Platform  string    `json:"platform"`
	State     string    `json:"state"`
	Path      string    `json:"path,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

// Supervisor owns the probe/record/post-process loop for one streamer.
type Supervisor struct {
	cfg       config.StreamerConfig
	retryCeil int

	prober   platform.Prober
	recorder capture.Recorder
	pipeline TranscriptPipeline
	db       *sql.DB

	probeTimeout time.Duration

	mu        sync.Mutex
	state     SessionState
	path      string
	startedAt time.Time
	lastErr   string

	// transcribeBroken latches after a model-load failure: recording
	// continues, transcription stays off until configuration is fixed.
	transcribeBroken bool
}

// NewSupervisor wires a supervisor. pipeline may be nil when transcription is
// disabled for this streamer.
func NewSupervisor(cfg config.StreamerConfig, global *config.Config, prober platform.Prober, recorder capture.Recorder, pipeline TranscriptPipeline, dbc *sql.DB) *Supervisor {
	return &Supervisor{
		cfg:          cfg,
		retryCeil:    global.RecordRetryCeil,
		prober:       prober,
		recorder:     recorder,
		pipeline:     pipeline,
		db:           dbc,
		probeTimeout: global.ProbeTimeout,
	}
}

func (s *Supervisor) setState(state SessionState) {
	s.mu.Lock()
	s.state = state
	if state != StateRecording && state != StatePostProcessing && state != StateFailed {
		s.path = ""
		s.startedAt = time.Time{}
	}
	s.mu.Unlock()
}

func (s *Supervisor) setRecording(path string) {
	s.mu.Lock()
	s.state = StateRecording
	s.path = path
	s.startedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Supervisor) setError(err error) {
	s.mu.Lock()
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the current state; safe from any goroutine.
func (s *Supervisor) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Streamer:  s.cfg.Name,
		Platform:  string(s.cfg.Platform),
		State:     s.state.String(),
		Path:      s.path,
		StartedAt: s.startedAt,
		LastError: s.lastErr,
	}
}

// Run loops until ctx is cancelled. The stop signal is honored at state
// boundaries; during Recording it propagates into the capture subprocess.
func (s *Supervisor) Run(ctx context.Context) {
	logger := slog.Default().With(slog.String("streamer", s.cfg.Name), slog.String("component", "supervisor"))
	logger.Info("supervisor starting",
		slog.String("platform", string(s.cfg.Platform)),
		slog.Duration("poll_interval", s.cfg.PollInterval),
		slog.Bool("transcribe", s.cfg.Transcribe))

	recoverableStreak := 0
	for {
		s.setState(StateProbing)
		handle, live := s.probe(ctx, logger)
		if ctx.Err() != nil {
			logger.Info("supervisor stopped")
			return
		}
		if !live {
			if !sleep(ctx, s.cfg.PollInterval) {
				logger.Info("supervisor stopped")
				return
			}
			continue
		}

		session := uuid.NewString()[:8]
		clog := logger.With(slog.String("session", session))
		clog.Info("streamer is live", slog.String("title", handle.Title))

		outPath := capture.OutputPath(s.cfg, time.Now())
		s.setRecording(outPath)
		telemetry.RecordingsStarted.Inc()
		telemetry.RecordingActive(1)
		recStart := time.Now()
		res, err := s.recorder.Record(ctx, handle, s.cfg, outPath)
		recDur := time.Since(recStart)
		telemetry.RecordingActive(-1)

		if ctx.Err() != nil && err != nil {
			// The recorder already discarded the partial output.
			clog.Info("supervisor stopped during recording")
			return
		}
		if err != nil {
			if capture.IsRecoverable(err) {
				recoverableStreak++
				clog.Debug("capture ended with nothing recorded; re-probing",
					slog.Int("streak", recoverableStreak), slog.Any("err", err))
				if recoverableStreak >= s.retryCeil {
					clog.Warn("recoverable capture failures hit retry ceiling; cooling down",
						slog.Int("streak", recoverableStreak))
					recoverableStreak = 0
					if !s.cooldown(ctx) {
						return
					}
				}
				continue
			}
			recoverableStreak = 0
			telemetry.RecordingsFailed.Inc()
			s.setError(err)
			s.setState(StateFailed)
			clog.Error("capture failed", slog.Any("err", err), slog.String("path", outPath))
			if !s.cooldown(ctx) {
				return
			}
			continue
		}
		recoverableStreak = 0
		telemetry.RecordingsSucceeded.Inc()
		telemetry.RecordDuration.Observe(recDur.Seconds())
		clog.Info("capture complete",
			slog.String("path", res.Path),
			slog.Float64("duration_seconds", res.DurationSeconds),
			slog.Int64("bytes", res.Bytes))

		// A capture that ended cleanly still gets cataloged and transcribed
		// even when the stop signal raced the end of the stream: the stop is
		// honored at the next state boundary, never mid-PostProcessing.
		pctx := context.WithoutCancel(ctx)
		recID := s.catalogInsert(pctx, clog, handle, res)
		updateMovingAvg(pctx, s.db, "avg_record_ms", float64(recDur.Milliseconds()))

		s.setState(StatePostProcessing)
		s.postProcess(pctx, clog, recID, res)
		if ctx.Err() != nil {
			clog.Info("supervisor stopped")
			return
		}

		if !s.cooldown(ctx) {
			return
		}
	}
}

// probe runs one bounded live check. Transient errors are logged and count as
// not-live, extending the Probing state.
func (s *Supervisor) probe(ctx context.Context, logger *slog.Logger) (platform.Handle, bool) {
	pctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	telemetry.ProbesTotal.Inc()
	handle, live, err := s.prober.Probe(pctx, s.cfg)
	if err != nil && ctx.Err() == nil {
		telemetry.ProbeErrors.Inc()
		logger.Debug("probe failed; treating as not live", slog.Any("err", err))
		return platform.Handle{}, false
	}
	return handle, live
}

// postProcess drives the transcription pipeline for one completed recording.
// Fatal pipeline failures move through Failed; the recording file always
// survives so the transcription can be retried manually.
func (s *Supervisor) postProcess(ctx context.Context, logger *slog.Logger, recID int64, res capture.RecordResult) {
	if s.pipeline == nil || !s.cfg.Transcribe {
		logger.Debug("transcription disabled; skipping post-processing")
		return
	}
	if s.transcribeBroken {
		logger.Warn("transcription disabled after earlier model failure; recording kept",
			slog.String("path", res.Path))
		return
	}

	start := time.Now()
	sidecar, err := s.pipeline.ProcessRecording(ctx, res.Path)
	if err != nil {
		telemetry.TranscriptionsFailed.Inc()
		s.setError(err)
		s.setState(StateFailed)
		if transcribe.IsModelLoad(err) {
			s.transcribeBroken = true
			logger.Error("model load failed; disabling transcription for this supervisor",
				slog.Any("err", err), slog.String("path", res.Path))
		} else {
			logger.Error("transcription failed; recording preserved for manual retry",
				slog.Any("err", err), slog.String("path", res.Path))
		}
		s.catalogError(ctx, recID, err)
		return
	}
	dur := time.Since(start)
	telemetry.TranscriptionsSucceeded.Inc()
	telemetry.TranscribeDuration.Observe(dur.Seconds())
	updateMovingAvg(ctx, s.db, "avg_transcribe_ms", float64(dur.Milliseconds()))
	logger.Info("transcript written",
		slog.String("transcript", sidecar),
		slog.Duration("transcribe_duration", dur))
	s.catalogTranscribed(ctx, recID, sidecar)
}

// cooldown waits out the configured cooldown; false means ctx was cancelled.
func (s *Supervisor) cooldown(ctx context.Context) bool {
	s.setState(StateCooldown)
	s.heartbeat(ctx)
	return sleep(ctx, s.cfg.Cooldown)
}

func (s *Supervisor) heartbeat(ctx context.Context) {
	if s.db == nil {
		return
	}
	key := fmt.Sprintf("supervisor_%s_last_cycle", s.cfg.Name)
	setKV(ctx, s.db, key, time.Now().UTC().Format(time.RFC3339))
}

// sleep waits for d or until ctx is cancelled; true means the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
