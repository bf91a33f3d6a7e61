package server

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/onnwee/stream-scribe/db"
	"github.com/onnwee/stream-scribe/monitor"
)

// Handlers carries the shared dependencies for HTTP endpoints.
type Handlers struct {
	db        *sql.DB
	pool      *monitor.Pool
	startedAt time.Time
}

func NewHandlers(dbc *sql.DB, pool *monitor.Pool) *Handlers {
	return &Handlers{db: dbc, pool: pool, startedAt: time.Now().UTC()}
}

// HandleHealthz responds to liveness probes by checking database connectivity.
// Without a database the process is still alive, so it stays healthy.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.PingContext(r.Context()); err != nil {
			http.Error(w, "unhealthy", http.StatusServiceUnavailable)
			return
		}
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz responds to readiness probes with detailed checks.
func (h *Handlers) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	checks := []struct {
		name string
		fn   func() error
	}{
		{"database", func() error {
			if h.db == nil {
				return nil
			}
			return h.db.PingContext(r.Context())
		}},
		{"supervisors", func() error {
			if h.pool == nil || len(h.pool.Snapshots()) == 0 {
				return fmt.Errorf("no supervisors running")
			}
			return nil
		}},
	}

	for _, check := range checks {
		if err := check.fn(); err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"status":       "not_ready",
				"failed_check": check.name,
				"error":        err.Error(),
			})
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ready"})
}

type statusResponse struct {
	UptimeSeconds   float64               `json:"uptime_seconds"`
	Supervisors     []monitor.Snapshot    `json:"supervisors"`
	Catalog         monitor.CatalogCounts `json:"catalog"`
	AvgRecordMs     string                `json:"avg_record_ms,omitempty"`
	AvgTranscribeMs string                `json:"avg_transcribe_ms,omitempty"`
}

// HandleStatus reports per-supervisor state plus catalog totals and the
// moving-average cycle timings kept in the kv table.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		UptimeSeconds: time.Since(h.startedAt).Seconds(),
		Supervisors:   []monitor.Snapshot{},
	}
	if h.pool != nil {
		resp.Supervisors = h.pool.Snapshots()
	}
	if h.db != nil {
		resp.Catalog = monitor.Counts(r.Context(), h.db)
		resp.AvgRecordMs = db.GetKV(r.Context(), h.db, "avg_record_ms")
		resp.AvgTranscribeMs = db.GetKV(r.Context(), h.db, "avg_transcribe_ms")
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

type recordingItem struct {
	ID              int64   `json:"id"`
	Streamer        string  `json:"streamer"`
	Platform        string  `json:"platform"`
	Title           string  `json:"title"`
	Path            string  `json:"path,omitempty"`
	StartedAt       string  `json:"started_at,omitempty"`
	DurationSeconds float64 `json:"duration_seconds"`
	Bytes           int64   `json:"bytes"`
	Transcribed     bool    `json:"transcribed"`
	TranscriptPath  string  `json:"transcript_path,omitempty"`
	ProcessingError string  `json:"processing_error,omitempty"`
}

// HandleRecordings lists catalog rows, newest first. Supports ?streamer= and
// ?limit= (default 50, max 500).
func (h *Handlers) HandleRecordings(w http.ResponseWriter, r *http.Request) {
	if h.db == nil {
		http.Error(w, "catalog unavailable", http.StatusServiceUnavailable)
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		if n > 500 {
			n = 500
		}
		limit = n
	}

	query := `
		SELECT id, streamer, COALESCE(platform,''), COALESCE(title,''), COALESCE(path,''),
		       started_at, duration_seconds, bytes, transcribed,
		       COALESCE(transcript_path,''), COALESCE(processing_error,'')
		FROM recordings`
	args := []any{}
	if streamer := r.URL.Query().Get("streamer"); streamer != "" {
		query += ` WHERE streamer=$1`
		args = append(args, streamer)
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC NULLS LAST LIMIT %d`, limit)

	rows, err := h.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		http.Error(w, "query failed", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	items := []recordingItem{}
	for rows.Next() {
		var it recordingItem
		var startedAt sql.NullTime
		if err := rows.Scan(&it.ID, &it.Streamer, &it.Platform, &it.Title, &it.Path,
			&startedAt, &it.DurationSeconds, &it.Bytes, &it.Transcribed,
			&it.TranscriptPath, &it.ProcessingError); err != nil {
			http.Error(w, "scan failed", http.StatusInternalServerError)
			return
		}
		if startedAt.Valid {
			it.StartedAt = startedAt.Time.UTC().Format(time.RFC3339)
		}
		items = append(items, it)
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(items)
}
