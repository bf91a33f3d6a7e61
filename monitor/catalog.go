package monitor

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/onnwee/stream-scribe/capture"
	"github.com/onnwee/stream-scribe/db"
	"github.com/onnwee/stream-scribe/platform"
)

// catalogInsert records a completed capture. The catalog is best-effort: a
// database outage must never stop the recording loop, so failures are logged
// and the supervisor carries on with id 0.
func (s *Supervisor) catalogInsert(ctx context.Context, logger *slog.Logger, handle platform.Handle, res capture.RecordResult) int64 {
	if s.db == nil {
		return 0
	}
	var id int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO recordings (streamer, platform, title, path, started_at, duration_seconds, bytes)
		VALUES ($1,$2,$3,$4,NOW(),$5,$6)
		ON CONFLICT(path) DO UPDATE SET duration_seconds=EXCLUDED.duration_seconds, bytes=EXCLUDED.bytes, updated_at=NOW()
		RETURNING id`,
		s.cfg.Name, string(s.cfg.Platform), handle.Title, res.Path, res.DurationSeconds, res.Bytes).Scan(&id)
	if err != nil {
		logger.Warn("failed to catalog recording", slog.Any("err", err), slog.String("path", res.Path))
		return 0
	}
	return id
}

func (s *Supervisor) catalogTranscribed(ctx context.Context, id int64, transcriptPath string) {
	if s.db == nil || id == 0 {
		return
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE recordings SET transcribed=TRUE, transcript_path=$1, processing_error=NULL, updated_at=NOW()
		WHERE id=$2`, transcriptPath, id)
	if err != nil {
		slog.Warn("failed to update recording transcript", slog.Any("err", err), slog.Int64("id", id))
	}
}

func (s *Supervisor) catalogError(ctx context.Context, id int64, procErr error) {
	if s.db == nil || id == 0 {
		return
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE recordings SET processing_error=$1, updated_at=NOW() WHERE id=$2`,
		procErr.Error(), id)
	if err != nil {
		slog.Warn("failed to record processing error", slog.Any("err", err), slog.Int64("id", id))
	}
}

// CatalogCounts summarizes the recordings table for the status endpoint.
type CatalogCounts struct {
	Recordings  int64 `json:"recordings"`
	Transcribed int64 `json:"transcribed"`
	Errored     int64 `json:"errored"`
}

// Counts reads catalog totals; a nil db yields zeros.
func Counts(ctx context.Context, dbc *sql.DB) CatalogCounts {
	var c CatalogCounts
	if dbc == nil {
		return c
	}
	_ = dbc.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE transcribed),
		       COUNT(*) FILTER (WHERE processing_error IS NOT NULL)
		FROM recordings`).Scan(&c.Recordings, &c.Transcribed, &c.Errored)
	return c
}

func setKV(ctx context.Context, dbc *sql.DB, key, value string) {
	if dbc == nil {
		return
	}
	if err := db.SetKV(ctx, dbc, key, value); err != nil {
		slog.Debug("kv write failed", slog.String("key", key), slog.Any("err", err))
	}
}
