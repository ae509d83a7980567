package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	applogger "PairPulse/pkg/logger"
)

// RunFunc blocks until ctx is done or the component fails.
type RunFunc func(ctx context.Context) error

type component struct {
	name string
	run  RunFunc
}

type closer struct {
	name string
	fn   func() error
}

// App runs long-lived components until a signal arrives or one of them fails.
// Startup hooks run one by one to completion before any producer starts.
// Producers stop first; sinks keep running until every producer returned so
// they can drain what was queued, then closers run in reverse order.
type App struct {
	log       *applogger.Logger
	hooks     []component
	producers []component
	sinks     []component
	closers   []closer
}

func New(l *applogger.Logger) *App {
	if l == nil {
		l = applogger.Nop()
	}
	return &App{log: l.With(applogger.String("component", "app"))}
}

// BeforeStart registers a hook run after sinks started and before any
// producer. A hook error aborts startup.
func (a *App) BeforeStart(name string, run RunFunc) {
	a.hooks = append(a.hooks, component{name: name, run: run})
}

// Add registers a component stopped at the first shutdown stage.
func (a *App) Add(name string, run RunFunc) {
	a.producers = append(a.producers, component{name: name, run: run})
}

// AddSink registers a component stopped after all producers have returned.
func (a *App) AddSink(name string, run RunFunc) {
	a.sinks = append(a.sinks, component{name: name, run: run})
}

// OnClose registers a resource release run after every component stopped.
func (a *App) OnClose(name string, fn func() error) {
	a.closers = append(a.closers, closer{name: name, fn: fn})
}

// Components lists registered component names in start order.
func (a *App) Components() []string {
	out := make([]string, 0, len(a.producers)+len(a.sinks))
	for _, c := range a.sinks {
		out = append(out, c.name)
	}
	for _, c := range a.producers {
		out = append(out, c.name)
	}
	return out
}

// Run blocks until SIGINT/SIGTERM, ctx cancellation or a component error.
func (a *App) Run(ctx context.Context) error {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	sinkCtx, cancelSinks := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelSinks()
	sinks, sinkCtx := errgroup.WithContext(sinkCtx)
	for _, c := range a.sinks {
		a.start(sinks, sinkCtx, c)
	}

	err := a.runHooks(sigCtx)
	if err == nil {
		g, gctx := errgroup.WithContext(sigCtx)
		for _, c := range a.producers {
			a.start(g, gctx, c)
		}
		a.log.Info("application started", applogger.Strings("components", a.Components()))

		err = g.Wait()
		if err != nil {
			a.log.Error("component failed, shutting down", applogger.Error(err))
		} else {
			a.log.Info("shutdown signal received")
		}
	}
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	cancelSinks()
	if serr := sinks.Wait(); serr != nil {
		err = errors.Join(err, serr)
	}
	a.close()
	a.log.Info("shutdown complete")
	return err
}

func (a *App) runHooks(ctx context.Context) error {
	for _, h := range a.hooks {
		start := time.Now()
		if err := h.run(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				a.log.Info("startup interrupted", applogger.String("name", h.name))
				return err
			}
			a.log.Error("startup hook failed", applogger.String("name", h.name), applogger.Error(err))
			return fmt.Errorf("%s: %w", h.name, err)
		}
		a.log.Debug("startup hook done", applogger.String("name", h.name), applogger.Duration("took", time.Since(start)))
	}
	return nil
}

func (a *App) start(g *errgroup.Group, ctx context.Context, c component) {
	g.Go(func() error {
		a.log.Debug("component starting", applogger.String("name", c.name))
		if err := c.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%s: %w", c.name, err)
		}
		a.log.Debug("component stopped", applogger.String("name", c.name))
		return nil
	})
}

func (a *App) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.fn(); err != nil {
			a.log.Warn("close failed", applogger.String("name", c.name), applogger.Error(err))
		}
	}
}
