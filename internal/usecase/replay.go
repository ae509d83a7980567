package usecase

import (
	"context"
	"fmt"
	"time"

	drepo "PairPulse/internal/domain/repository"
	"PairPulse/pkg/logger"
)

// ReplayTicks loads the last window of stored ticks for each symbol into sink,
// so analytics can resume after a restart without waiting for new data.
// It returns the number of ticks the sink accepted.
func ReplayTicks(ctx context.Context, store drepo.TickStore, sink drepo.TickSink, symbols []string, window time.Duration, limit int, l *logger.Logger) (int, error) {
	if store == nil || window <= 0 {
		return 0, nil
	}
	if l == nil {
		l = logger.Nop()
	}
	to := time.Now().UTC()
	from := to.Add(-window)
	total := 0
	for _, sym := range symbols {
		ticks, err := store.QueryTicks(ctx, sym, from, to, limit)
		if err != nil {
			return total, fmt.Errorf("replay %s: %w", sym, err)
		}
		accepted := 0
		for _, t := range ticks {
			if sink.Append(t) {
				accepted++
			}
		}
		total += accepted
		l.Info("replayed ticks",
			logger.String("symbol", sym),
			logger.Int("loaded", len(ticks)),
			logger.Int("accepted", accepted),
			logger.Duration("window", window),
		)
	}
	return total, nil
}
