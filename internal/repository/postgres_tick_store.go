package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/postgres"
)

// PostgresTickStore implements TickStore on PostgreSQL via pgx.
type PostgresTickStore struct {
	pg *postgres.Client
	l  *logger.Logger
}

var _ domrepo.TickStore = (*PostgresTickStore)(nil)

func NewPostgresTickStore(pg *postgres.Client, l *logger.Logger) *PostgresTickStore {
	if l == nil {
		l = logger.Nop()
	}
	return &PostgresTickStore{pg: pg, l: l.With(logger.String("store", "postgres"))}
}

func (s *PostgresTickStore) Init(ctx context.Context) error {
	return s.pg.RunMigrations(ctx)
}

// StoreTicks uses COPY.
func (s *PostgresTickStore) StoreTicks(ctx context.Context, ticks []models.Tick) error {
	if len(ticks) == 0 {
		return nil
	}
	rows := make([][]any, 0, len(ticks))
	for _, t := range ticks {
		rows = append(rows, []any{t.Symbol, t.Time(), t.Price, t.Volume})
	}
	n, err := s.pg.Pool().CopyFrom(ctx,
		pgx.Identifier{"ticks"},
		[]string{"symbol", "ts", "price", "volume"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("postgres: copy ticks: %w", err)
	}
	if int(n) != len(ticks) {
		return fmt.Errorf("postgres: copied %d of %d ticks", n, len(ticks))
	}
	return nil
}

func (s *PostgresTickStore) StoreAnalytics(ctx context.Context, rows []models.AnalyticsRow) error {
	if len(rows) == 0 {
		return nil
	}
	const q = `INSERT INTO analytics
		(ts, pair, hedge_ratio, intercept, r_squared, stale, spread, zscore, rolling_corr)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(q, r.Timestamp.UTC(), r.Pair, r.HedgeRatio, r.Intercept, r.RSquared, r.Stale, r.Spread, r.ZScore, r.Correlation)
	}
	return s.sendBatch(ctx, batch, "analytics")
}

// StoreAlerts skips alerts whose id already exists.
func (s *PostgresTickStore) StoreAlerts(ctx context.Context, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}
	const q = `INSERT INTO alerts (id, ts, pair, zscore, spread, threshold, direction)
		VALUES ($1, $2, $3, $4, $5, $6, $7) ON CONFLICT (id) DO NOTHING`
	batch := &pgx.Batch{}
	for _, a := range alerts {
		batch.Queue(q, a.ID, a.Timestamp.UTC(), a.Pair, a.ZScore, a.Spread, a.Threshold, string(a.Direction))
	}
	return s.sendBatch(ctx, batch, "alerts")
}

func (s *PostgresTickStore) sendBatch(ctx context.Context, batch *pgx.Batch, table string) error {
	br := s.pg.Pool().SendBatch(ctx, batch)
	defer br.Close()
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert %s batch item %d: %w", table, i, err)
		}
	}
	return nil
}

func (s *PostgresTickStore) QueryTicks(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Tick, error) {
	const q = `SELECT symbol, ts, price, volume FROM ticks
		WHERE symbol = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC LIMIT $4`
	rows, err := s.pg.Pool().Query(ctx, q, symbol, from.UTC(), to.UTC(), limit)
	if err != nil {
		s.l.Error("postgres query_ticks failed", logger.String("symbol", symbol), logger.Error(err))
		return nil, fmt.Errorf("postgres: query ticks: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.Tick, error) {
		var t models.Tick
		var ts time.Time
		if err := row.Scan(&t.Symbol, &ts, &t.Price, &t.Volume); err != nil {
			return t, err
		}
		t.Timestamp = toMillis(ts)
		return t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan ticks: %w", err)
	}
	reverseTicks(out)
	return out, nil
}

func (s *PostgresTickStore) QueryAnalytics(ctx context.Context, pair string, from, to time.Time, limit int) ([]models.AnalyticsRow, error) {
	const q = `SELECT ts, pair, hedge_ratio, intercept, r_squared, stale, spread, zscore, rolling_corr
		FROM analytics
		WHERE pair = $1 AND ts >= $2 AND ts <= $3
		ORDER BY ts DESC LIMIT $4`
	rows, err := s.pg.Pool().Query(ctx, q, pair, from.UTC(), to.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query analytics: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.AnalyticsRow, error) {
		var r models.AnalyticsRow
		err := row.Scan(&r.Timestamp, &r.Pair, &r.HedgeRatio, &r.Intercept, &r.RSquared, &r.Stale, &r.Spread, &r.ZScore, &r.Correlation)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: scan analytics: %w", err)
	}
	reverseRows(out)
	return out, nil
}

func (s *PostgresTickStore) CountTicks(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pg.Pool().QueryRow(ctx, `SELECT count(*) FROM ticks`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count ticks: %w", err)
	}
	return n, nil
}

func (s *PostgresTickStore) Symbols(ctx context.Context) ([]string, error) {
	rows, err := s.pg.Pool().Query(ctx, `SELECT DISTINCT symbol FROM ticks ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("postgres: symbols: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *PostgresTickStore) Health(ctx context.Context) error { return s.pg.Health(ctx) }

func (s *PostgresTickStore) Close() error {
	s.pg.Close()
	return nil
}
