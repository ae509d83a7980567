package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	pkgch "PairPulse/pkg/clickhouse"
	"PairPulse/pkg/logger"
)

// ClickHouseTickStore implements TickStore on a ClickHouse database.
type ClickHouseTickStore struct {
	ch *pkgch.Client
	db string
	l  *logger.Logger
}

var _ domrepo.TickStore = (*ClickHouseTickStore)(nil)

func NewClickHouseTickStore(ch *pkgch.Client, l *logger.Logger) *ClickHouseTickStore {
	if l == nil {
		l = logger.Nop()
	}
	return &ClickHouseTickStore{ch: ch, db: ch.Database(), l: l.With(logger.String("store", "clickhouse"))}
}

func (s *ClickHouseTickStore) Init(ctx context.Context) error {
	return s.ch.InitSchema(ctx, pkgch.Schema(s.db))
}

func (s *ClickHouseTickStore) StoreTicks(ctx context.Context, ticks []models.Tick) error {
	q := fmt.Sprintf("INSERT INTO %s.ticks (ts, symbol, price, volume)", s.db)
	return s.ch.InsertBatch(ctx, q, tickRows(ticks))
}

func (s *ClickHouseTickStore) StoreAnalytics(ctx context.Context, rows []models.AnalyticsRow) error {
	q := fmt.Sprintf("INSERT INTO %s.analytics (ts, pair, hedge_ratio, intercept, r_squared, stale, spread, zscore, rolling_corr)", s.db)
	return s.ch.InsertBatch(ctx, q, analyticsRowValues(rows))
}

func (s *ClickHouseTickStore) StoreAlerts(ctx context.Context, alerts []models.Alert) error {
	q := fmt.Sprintf("INSERT INTO %s.alerts (id, ts, pair, zscore, spread, threshold, direction)", s.db)
	return s.ch.InsertBatch(ctx, q, alertRows(alerts))
}

// QueryTicks returns the latest limit ticks in [from, to], oldest first.
func (s *ClickHouseTickStore) QueryTicks(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Tick, error) {
	start := time.Now()
	q := fmt.Sprintf(`SELECT symbol, ts, price, volume FROM %s.ticks
		WHERE symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts DESC LIMIT ?`, s.db)
	rows, err := s.ch.DB().QueryContext(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		s.l.Error("clickhouse query_ticks failed", logger.String("symbol", symbol), logger.Error(err))
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	out := make([]models.Tick, 0, 1024)
	for rows.Next() {
		var t models.Tick
		var ts time.Time
		if err := rows.Scan(&t.Symbol, &ts, &t.Price, &t.Volume); err != nil {
			return nil, fmt.Errorf("scan tick: %w", err)
		}
		t.Timestamp = toMillis(ts)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseTicks(out)
	s.l.Debug("clickhouse query_ticks ok",
		logger.String("symbol", symbol),
		logger.Int("rows", len(out)),
		logger.Duration("duration_ms", time.Since(start)),
	)
	return out, nil
}

func (s *ClickHouseTickStore) QueryAnalytics(ctx context.Context, pair string, from, to time.Time, limit int) ([]models.AnalyticsRow, error) {
	q := fmt.Sprintf(`SELECT ts, pair, hedge_ratio, intercept, r_squared, stale, spread, zscore, rolling_corr
		FROM %s.analytics
		WHERE pair = ? AND ts >= ? AND ts <= ?
		ORDER BY ts DESC LIMIT ?`, s.db)
	rows, err := s.ch.DB().QueryContext(ctx, q, pair, from.UTC(), to.UTC(), limit)
	if err != nil {
		s.l.Error("clickhouse query_analytics failed", logger.String("pair", pair), logger.Error(err))
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	defer rows.Close()

	var out []models.AnalyticsRow
	for rows.Next() {
		var r models.AnalyticsRow
		var stale uint8
		var z, corr sql.NullFloat64
		if err := rows.Scan(&r.Timestamp, &r.Pair, &r.HedgeRatio, &r.Intercept, &r.RSquared, &stale, &r.Spread, &z, &corr); err != nil {
			return nil, fmt.Errorf("scan analytics: %w", err)
		}
		r.Stale = stale == 1
		r.ZScore, r.Correlation = nullable(z), nullable(corr)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	reverseRows(out)
	return out, nil
}

func (s *ClickHouseTickStore) CountTicks(ctx context.Context) (int64, error) {
	var n uint64
	q := fmt.Sprintf("SELECT count() FROM %s.ticks", s.db)
	if err := s.ch.DB().QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("count ticks: %w", err)
	}
	return int64(n), nil
}

func (s *ClickHouseTickStore) Symbols(ctx context.Context) ([]string, error) {
	q := fmt.Sprintf("SELECT DISTINCT symbol FROM %s.ticks ORDER BY symbol", s.db)
	rows, err := s.ch.DB().QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("symbols: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}

func (s *ClickHouseTickStore) Health(ctx context.Context) error { return s.ch.Health(ctx) }

func (s *ClickHouseTickStore) Close() error { return s.ch.Close() }
