package monitor

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/onnwee/stream-scribe/db"
)

// emaAlpha weights recent cycles; roughly the last five dominate.
const emaAlpha = 0.2

// updateMovingAvg maintains an exponential moving average in the kv table.
// First sample seeds the average directly.
func updateMovingAvg(ctx context.Context, dbc *sql.DB, key string, sample float64) {
	if dbc == nil {
		return
	}
	cur := db.GetKV(ctx, dbc, key)
	avg := sample
	if cur != "" {
		if prev, err := strconv.ParseFloat(cur, 64); err == nil {
			avg = emaAlpha*sample + (1-emaAlpha)*prev
		}
	}
	setKV(ctx, dbc, key, fmt.Sprintf("%.1f", avg))
}
