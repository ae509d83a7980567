package usecase

import (
	"context"
	"errors"
	"sync/atomic"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/pkg/logger"
)

var errStreamClosed = errors.New("market stream closed")

// TickCollector pumps ticks from a market stream into the ingestor and keeps
// the stream connected until its context ends.
type TickCollector struct {
	stream   drepo.MarketStream
	ingest   *TickIngestor
	metrics  drepo.Metrics
	log      *logger.Logger
	received atomic.Uint64
}

func NewTickCollector(stream drepo.MarketStream, ingest *TickIngestor, metrics drepo.Metrics, l *logger.Logger) *TickCollector {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if l == nil {
		l = logger.Nop()
	}
	return &TickCollector{stream: stream, ingest: ingest, metrics: metrics, log: l.With(logger.String("component", "collector"))}
}

// IsConnected returns true if the market stream is connected.
func (c *TickCollector) IsConnected() bool { return c.stream.IsConnected() }

// Received counts ticks read from the stream, accepted or not.
func (c *TickCollector) Received() uint64 { return c.received.Load() }

// Run blocks until ctx is done. Connection and read failures are logged and
// retried through the stream's Reconnect, which applies its own delay.
func (c *TickCollector) Run(ctx context.Context) error {
	defer c.stream.Close()

	if err := c.connect(ctx); err != nil && ctx.Err() == nil {
		c.metrics.RecordError("stream_connect")
		c.log.Warn("initial connect failed", logger.Error(err))
		_ = c.stream.Close()
	}
	for ctx.Err() == nil {
		if !c.stream.IsConnected() {
			if err := c.stream.Reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					break
				}
				c.metrics.RecordError("stream_connect")
				c.log.Warn("reconnect failed", logger.Error(err))
				continue
			}
			c.log.Info("stream reconnected")
		}
		ticks, errs := c.stream.Read(ctx)
		err := c.consume(ctx, ticks, errs)
		if ctx.Err() != nil {
			break
		}
		c.metrics.RecordError("stream")
		c.log.Warn("stream interrupted", logger.Error(err), logger.Uint64("received", c.Received()))
		_ = c.stream.Close()
	}
	c.log.Info("collector stopped", logger.Uint64("received", c.Received()))
	return nil
}

func (c *TickCollector) connect(ctx context.Context) error {
	if err := c.stream.Connect(ctx); err != nil {
		return err
	}
	return c.stream.Subscribe(ctx)
}

func (c *TickCollector) consume(ctx context.Context, ticks <-chan *models.Tick, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case t, ok := <-ticks:
			if !ok {
				if err, ok := <-errs; ok && err != nil {
					return err
				}
				return errStreamClosed
			}
			if t == nil {
				continue
			}
			c.received.Add(1)
			c.ingest.Ingest(*t)
		}
	}
}
