package repository

import (
	"database/sql"
	"time"

	"PairPulse/internal/domain/models"
)

func tickRows(ticks []models.Tick) [][]any {
	rows := make([][]any, 0, len(ticks))
	for _, t := range ticks {
		rows = append(rows, []any{t.Time(), t.Symbol, t.Price, t.Volume})
	}
	return rows
}

func analyticsRowValues(rows []models.AnalyticsRow) [][]any {
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		out = append(out, []any{
			r.Timestamp.UTC(), r.Pair, r.HedgeRatio, r.Intercept, r.RSquared,
			boolToUInt8(r.Stale), r.Spread, r.ZScore, r.Correlation,
		})
	}
	return out
}

func alertRows(alerts []models.Alert) [][]any {
	out := make([][]any, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, []any{
			a.ID, a.Timestamp.UTC(), a.Pair, a.ZScore, a.Spread, a.Threshold, string(a.Direction),
		})
	}
	return out
}

func boolToUInt8(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func nullable(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	return models.Float(n.Float64)
}

func reverseTicks(t []models.Tick) {
	for i, j := 0, len(t)-1; i < j; i, j = i+1, j-1 {
		t[i], t[j] = t[j], t[i]
	}
}

func reverseRows(r []models.AnalyticsRow) {
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }
