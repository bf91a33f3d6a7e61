package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// RetentionPolicy defines which old recordings to clean up. Transcript
// sidecars are never deleted, only the media files they describe.
type RetentionPolicy struct {
	// KeepLastNDays: recordings older than this many days are eligible (0 = disabled)
	KeepLastNDays int
	// KeepLastN: keep only the N most recent recordings per streamer (0 = disabled)
	KeepLastN int
	// DryRun: log actions without deleting files or updating the catalog
	DryRun bool
	// Interval: how often the cleanup job runs
	Interval time.Duration
	// TempMaxAge: stale partial/intermediate files older than this are
	// removed from the recordings directories (0 = disabled)
	TempMaxAge time.Duration
}

// LoadRetentionPolicy reads the retention policy from environment variables.
func LoadRetentionPolicy() RetentionPolicy {
	policy := RetentionPolicy{
		Interval: 6 * time.Hour,
	}
	if s := os.Getenv("RETENTION_KEEP_DAYS"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			policy.KeepLastNDays = n
		}
	}
	if s := os.Getenv("RETENTION_KEEP_COUNT"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n >= 0 {
			policy.KeepLastN = n
		}
	}
	if os.Getenv("RETENTION_DRY_RUN") == "1" {
		policy.DryRun = true
	}
	if s := os.Getenv("RETENTION_INTERVAL"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d > 0 {
			policy.Interval = d
		}
	}
	policy.TempMaxAge = 24 * time.Hour
	if s := os.Getenv("RETENTION_TEMP_MAX_AGE"); s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= 0 {
			policy.TempMaxAge = d
		}
	}
	return policy
}

// StartRetentionJob periodically deletes old recording files according to the
// configured policy and sweeps stale intermediate files out of the recordings
// directories. The pool is consulted so files still being written or
// post-processed are never touched.
func StartRetentionJob(ctx context.Context, dbc *sql.DB, pool *Pool) {
	policy := LoadRetentionPolicy()
	catalogPolicy := policy.KeepLastNDays > 0 || policy.KeepLastN > 0
	if catalogPolicy && dbc == nil {
		slog.Warn("catalog retention disabled: no database configured")
		catalogPolicy = false
	}
	if !catalogPolicy && policy.TempMaxAge <= 0 {
		slog.Info("retention job disabled (no policy configured)")
		return
	}

	slog.Info("retention job starting",
		slog.Int("keep_days", policy.KeepLastNDays),
		slog.Int("keep_count", policy.KeepLastN),
		slog.Bool("dry_run", policy.DryRun),
		slog.Duration("interval", policy.Interval),
		slog.Duration("temp_max_age", policy.TempMaxAge))

	cycle := func() {
		if catalogPolicy {
			if err := runRetentionCleanup(ctx, dbc, pool, policy); err != nil {
				slog.Warn("retention cleanup failed", slog.Any("err", err))
			}
		}
		if policy.TempMaxAge > 0 && pool != nil {
			for _, dir := range pool.RecordingsDirs() {
				CleanupTempFiles(dir, policy.TempMaxAge)
			}
		}
	}

	cycle()

	ticker := time.NewTicker(policy.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			slog.Info("retention job stopped")
			return
		case <-ticker.C:
			cycle()
		}
	}
}

// runRetentionCleanup performs a single cleanup cycle over the whole catalog.
func runRetentionCleanup(ctx context.Context, dbc *sql.DB, pool *Pool, policy RetentionPolicy) error {
	logger := slog.Default().With(
		slog.String("component", "retention_cleanup"),
		slog.Bool("dry_run", policy.DryRun),
	)

	retained := make(map[int64]struct{})

	if policy.KeepLastNDays > 0 {
		cutoff := time.Now().Add(-time.Duration(policy.KeepLastNDays) * 24 * time.Hour)
		ids, err := collectIDs(ctx, dbc, `SELECT id FROM recordings WHERE started_at >= $1`, cutoff)
		if err != nil {
			return fmt.Errorf("query recent recordings: %w", err)
		}
		for _, id := range ids {
			retained[id] = struct{}{}
		}
		logger.Debug("identified recordings to retain by date", slog.Int("count", len(retained)))
	}

	if policy.KeepLastN > 0 {
		// Per-streamer window so one busy streamer cannot evict another's history.
		ids, err := collectIDs(ctx, dbc, `
			SELECT id FROM (
				SELECT id, ROW_NUMBER() OVER (PARTITION BY streamer ORDER BY started_at DESC) AS rn
				FROM recordings
			) ranked WHERE rn <= $1`, policy.KeepLastN)
		if err != nil {
			return fmt.Errorf("query last n recordings: %w", err)
		}
		for _, id := range ids {
			retained[id] = struct{}{}
		}
		logger.Debug("identified recordings to retain by count", slog.Int("retained_count", len(retained)))
	}

	// Files the supervisors are actively writing or transcribing.
	active := make(map[string]struct{})
	if pool != nil {
		for _, snap := range pool.Snapshots() {
			if snap.Path != "" {
				active[snap.Path] = struct{}{}
			}
		}
	}

	rows, err := dbc.QueryContext(ctx, `
		SELECT id, path, streamer, started_at
		FROM recordings
		WHERE path IS NOT NULL AND path != ''
		ORDER BY started_at ASC`)
	if err != nil {
		return fmt.Errorf("query recordings with files: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()

	var cleaned, skipped, errors int
	var bytesFreed int64

	for rows.Next() {
		var id int64
		var path, streamer string
		var startedAt sql.NullTime
		if err := rows.Scan(&id, &path, &streamer, &startedAt); err != nil {
			logger.Warn("failed to scan recording row", slog.Any("err", err))
			continue
		}
		if _, keep := retained[id]; keep {
			skipped++
			continue
		}
		if _, busy := active[path]; busy {
			skipped++
			logger.Debug("skipping in-progress recording", slog.String("path", path))
			continue
		}

		fi, err := os.Stat(path)
		if os.IsNotExist(err) {
			if !policy.DryRun {
				if _, err := dbc.ExecContext(ctx, `UPDATE recordings SET path=NULL, updated_at=NOW() WHERE id=$1`, id); err != nil {
					logger.Warn("failed to clear catalog reference for missing file", slog.Int64("id", id), slog.Any("err", err))
				}
			}
			logger.Debug("file already missing, clearing catalog reference", slog.String("path", path))
			continue
		} else if err != nil {
			logger.Warn("failed to stat file", slog.String("path", path), slog.Any("err", err))
			errors++
			continue
		}

		if policy.DryRun {
			logger.Info("dry-run: would delete recording",
				slog.String("path", path),
				slog.String("streamer", streamer),
				slog.Int64("size_bytes", fi.Size()))
			cleaned++
			bytesFreed += fi.Size()
			continue
		}

		if err := os.Remove(path); err != nil {
			logger.Warn("failed to delete recording", slog.String("path", path), slog.Any("err", err))
			errors++
			continue
		}
		if _, err := dbc.ExecContext(ctx, `UPDATE recordings SET path=NULL, updated_at=NOW() WHERE id=$1`, id); err != nil {
			logger.Warn("failed to update catalog after deletion", slog.Int64("id", id), slog.Any("err", err))
			errors++
			continue
		}
		logger.Info("deleted old recording",
			slog.String("path", path),
			slog.String("streamer", streamer),
			slog.Int64("size_bytes", fi.Size()))
		cleaned++
		bytesFreed += fi.Size()
	}

	mode := "cleanup"
	if policy.DryRun {
		mode = "dry-run"
	}
	logger.Info("retention cleanup completed",
		slog.String("mode", mode),
		slog.Int("cleaned", cleaned),
		slog.Int("skipped", skipped),
		slog.Int("errors", errors),
		slog.Int64("bytes_freed", bytesFreed))
	return nil
}

func collectIDs(ctx context.Context, dbc *sql.DB, query string, args ...any) ([]int64, error) {
	rows, err := dbc.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Warn("failed to close rows", slog.Any("err", err))
		}
	}()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err == nil {
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// CleanupTempFiles removes stale intermediate files (partial downloads and
// extracted audio) from a recordings directory.
func CleanupTempFiles(dir string, maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}
	now := time.Now()
	entries, err := os.ReadDir(dir)
	if err != nil {
		slog.Warn("failed to read recordings dir for temp cleanup", slog.String("dir", dir), slog.Any("err", err))
		return
	}

	var removed, failed int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".part") &&
			!strings.HasSuffix(name, ".tmp") &&
			!strings.HasSuffix(name, ".wav") {
			continue
		}
		fi, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(fi.ModTime()) > maxAge {
			path := filepath.Join(dir, name)
			if err := os.Remove(path); err == nil {
				removed++
				slog.Debug("removed stale temp file", slog.String("path", path), slog.Duration("age", now.Sub(fi.ModTime())))
			} else {
				failed++
				slog.Warn("failed to remove stale temp file", slog.String("path", path), slog.Any("err", err))
			}
		}
	}
	if removed > 0 || failed > 0 {
		slog.Info("temp file cleanup completed", slog.Int("removed", removed), slog.Int("failed", failed))
	}
}
