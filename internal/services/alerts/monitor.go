package alerts

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
)

// Monitor tracks the z-score threshold state of each pair.
// An Alert is created only on a transition into ACTIVE; history is append-only
// except for explicit Prune calls.
type Monitor struct {
	metrics domrepo.Metrics
	newID   func() string

	mu          sync.Mutex
	states      map[string]models.AlertState
	history     []models.Alert
	transitions []models.AlertTransition
}

type Option func(*Monitor)

// WithMetrics counts emitted alerts.
func WithMetrics(m domrepo.Metrics) Option {
	return func(mon *Monitor) { mon.metrics = m }
}

// WithIDFunc overrides alert id generation.
func WithIDFunc(fn func() string) Option {
	return func(mon *Monitor) {
		if fn != nil {
			mon.newID = fn
		}
	}
}

func NewMonitor(opts ...Option) *Monitor {
	m := &Monitor{
		newID:  uuid.NewString,
		states: make(map[string]models.AlertState),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Evaluate feeds the latest z-score of pair and returns the transition it caused, if any.
// A nil z-score leaves the state unchanged.
func (m *Monitor) Evaluate(pair string, z *float64, spread, threshold float64, at time.Time) *models.AlertTransition {
	if z == nil || math.IsNaN(*z) || threshold <= 0 {
		return nil
	}
	breach := math.Abs(*z) >= threshold

	m.mu.Lock()
	from, ok := m.states[pair]
	if !ok {
		from = models.AlertInactive
	}
	var to models.AlertState
	switch {
	case breach && from != models.AlertActive:
		to = models.AlertActive
	case !breach && from == models.AlertActive:
		to = models.AlertCleared
	default:
		m.mu.Unlock()
		return nil
	}

	tr := models.AlertTransition{Pair: pair, From: from, To: to, At: at, ZScore: *z}
	if to == models.AlertActive {
		dir := models.DirectionAbove
		if *z < 0 {
			dir = models.DirectionBelow
		}
		a := models.Alert{
			ID:        m.newID(),
			Timestamp: at,
			Pair:      pair,
			ZScore:    *z,
			Spread:    spread,
			Threshold: threshold,
			Direction: dir,
		}
		m.history = append(m.history, a)
		tr.Alert = &a
	}
	m.states[pair] = to
	m.transitions = append(m.transitions, tr)
	m.mu.Unlock()

	if tr.Alert != nil && m.metrics != nil {
		m.metrics.RecordAlert(pair, string(tr.Alert.Direction))
	}
	return &tr
}

// State returns the current state of pair.
func (m *Monitor) State(pair string) models.AlertState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[pair]; ok {
		return s
	}
	return models.AlertInactive
}

// History returns a copy of emitted alerts, oldest first.
func (m *Monitor) History() []models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Alert, len(m.history))
	copy(out, m.history)
	return out
}

// Recent returns at most n of the newest alerts, oldest first.
func (m *Monitor) Recent(n int) []models.Alert {
	h := m.History()
	if n > 0 && len(h) > n {
		h = h[len(h)-n:]
	}
	return h
}

// Last returns the most recent alert for pair, or nil.
func (m *Monitor) Last(pair string) *models.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.history) - 1; i >= 0; i-- {
		if m.history[i].Pair == pair {
			a := m.history[i]
			return &a
		}
	}
	return nil
}

// Transitions returns a copy of recorded state changes, oldest first.
func (m *Monitor) Transitions() []models.AlertTransition {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.AlertTransition, len(m.transitions))
	copy(out, m.transitions)
	return out
}

// Prune removes alerts and transitions older than maxAge before now and returns
// how many alerts were removed. Pair states are kept.
func (m *Monitor) Prune(maxAge time.Duration, now time.Time) int {
	cutoff := now.Add(-maxAge)
	m.mu.Lock()
	defer m.mu.Unlock()

	keep := m.history[:0]
	for _, a := range m.history {
		if !a.Timestamp.Before(cutoff) {
			keep = append(keep, a)
		}
	}
	removed := len(m.history) - len(keep)
	clear(m.history[len(keep):])
	m.history = keep

	kt := m.transitions[:0]
	for _, tr := range m.transitions {
		if !tr.At.Before(cutoff) {
			kt = append(kt, tr)
		}
	}
	clear(m.transitions[len(kt):])
	m.transitions = kt
	return removed
}
