package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"PairPulse/internal/domain/models"
	drepo "PairPulse/internal/domain/repository"
	"PairPulse/internal/services/analytics"
	"PairPulse/internal/services/tickbuffer"
	"PairPulse/pkg/cache"
	"PairPulse/pkg/logger"
	"PairPulse/pkg/util"
)

// ErrNoStore is returned for history that only a storage backend can serve.
var ErrNoStore = errors.New("storage backend disabled")

// ErrNoArchive is returned when an archived export is requested without S3.
var ErrNoArchive = errors.New("export archive disabled")

// maxBarTicks bounds the ticks loaded to build one bars response.
const maxBarTicks = 2_000_000

// AlertSource exposes the alert history kept in memory.
type AlertSource interface {
	AlertHistory(limit int) []models.Alert
}

// HistoryUseCase serves stored ticks, bars, analytics rows and alerts, and
// renders them as exports.
type HistoryUseCase struct {
	store   drepo.TickStore
	buffer  TickSource
	alerts  AlertSource
	archive drepo.ArchiveWriter
	cache   cache.Service
	barsTTL time.Duration
	pair    string
	log     *logger.Logger
}

type HistoryOption func(*HistoryUseCase)

// WithStore serves history from persistent storage instead of the tick buffer.
func WithStore(s drepo.TickStore) HistoryOption {
	return func(h *HistoryUseCase) { h.store = s }
}

func WithArchive(a drepo.ArchiveWriter) HistoryOption {
	return func(h *HistoryUseCase) { h.archive = a }
}

// WithBarsCache memoizes bars responses for ttl. Keys use the interval-aligned
// range, so repeated requests within one bar share an entry.
func WithBarsCache(c cache.Service, ttl time.Duration) HistoryOption {
	return func(h *HistoryUseCase) {
		if ttl > 0 {
			h.cache, h.barsTTL = c, ttl
		}
	}
}

func WithHistoryLogger(l *logger.Logger) HistoryOption {
	return func(h *HistoryUseCase) {
		if l != nil {
			h.log = l
		}
	}
}

func NewHistoryUseCase(pair string, buffer TickSource, alerts AlertSource, opts ...HistoryOption) *HistoryUseCase {
	h := &HistoryUseCase{
		buffer: buffer,
		alerts: alerts,
		pair:   pair,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HasStore reports whether a storage backend is configured.
func (h *HistoryUseCase) HasStore() bool { return h.store != nil }

// Ticks returns at most limit of the newest ticks of symbol in [from, to], ascending.
// Without a store the tick buffer is used.
func (h *HistoryUseCase) Ticks(ctx context.Context, symbol string, from, to time.Time, limit int) ([]models.Tick, error) {
	if h.store != nil {
		ticks, err := h.store.QueryTicks(ctx, symbol, from, to, limit)
		if err != nil {
			return nil, fmt.Errorf("query ticks %s: %w", symbol, err)
		}
		return ticks, nil
	}
	return tail(h.bufferedTicks(symbol, from, to), limit), nil
}

func (h *HistoryUseCase) bufferedTicks(symbol string, from, to time.Time) []models.Tick {
	all := h.buffer.Snapshot(symbol, tickbuffer.Window{})
	lo, hi := from.UnixMilli(), to.UnixMilli()
	out := make([]models.Tick, 0, len(all))
	for _, t := range all {
		if t.Timestamp >= lo && t.Timestamp <= hi {
			out = append(out, t)
		}
	}
	return out
}

// Bars returns at most limit of the newest bars of symbol whose bucket starts in [from, to].
func (h *HistoryUseCase) Bars(ctx context.Context, symbol string, iv drepo.Interval, from, to time.Time, limit int) ([]models.Bar, error) {
	step := iv.Duration()
	if step <= 0 {
		return nil, fmt.Errorf("%w: unsupported interval %q", models.ErrInvalidConfig, iv)
	}
	from, to = util.AlignFromTo(from, to, step)

	key := fmt.Sprintf("bars:%s:%s:%d:%d:%d", symbol, iv, from.UnixMilli(), to.UnixMilli(), limit)
	if h.cache != nil {
		var cached []models.Bar
		err := h.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			h.log.Warn("bars cache read failed", logger.Error(err))
		}
	}

	ticks, err := h.Ticks(ctx, symbol, from, to.Add(step-time.Millisecond), maxBarTicks)
	if err != nil {
		return nil, err
	}
	bars, err := analytics.Resample(ticks, iv)
	if err != nil {
		return nil, err
	}
	bars = tail(bars, limit)
	if h.cache != nil {
		if err := h.cache.Set(ctx, key, bars, h.barsTTL); err != nil {
			h.log.Warn("bars cache write failed", logger.Error(err))
		}
	}
	return bars, nil
}

// Analytics returns persisted analytics rows of the configured pair.
func (h *HistoryUseCase) Analytics(ctx context.Context, from, to time.Time, limit int) ([]models.AnalyticsRow, error) {
	if h.store == nil {
		return nil, ErrNoStore
	}
	rows, err := h.store.QueryAnalytics(ctx, h.pair, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("query analytics: %w", err)
	}
	return rows, nil
}

// Alerts returns in-memory alerts raised in [from, to].
func (h *HistoryUseCase) Alerts(from, to time.Time, limit int) []models.Alert {
	all := h.alerts.AlertHistory(0)
	out := make([]models.Alert, 0, len(all))
	for _, a := range all {
		if !a.Timestamp.Before(from) && !a.Timestamp.After(to) {
			out = append(out, a)
		}
	}
	return tail(out, limit)
}

// StoreInfo reports the stored tick count and distinct symbols.
func (h *HistoryUseCase) StoreInfo(ctx context.Context) (int64, []string, error) {
	if h.store == nil {
		return 0, nil, ErrNoStore
	}
	n, err := h.store.CountTicks(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("count ticks: %w", err)
	}
	syms, err := h.store.Symbols(ctx)
	if err != nil {
		return 0, nil, fmt.Errorf("list symbols: %w", err)
	}
	return n, syms, nil
}

type ExportQuery struct {
	Kind     string
	Format   string
	Symbol   string
	Interval drepo.Interval
	From     time.Time
	To       time.Time
	Limit    int
	Archive  bool
}

type ExportResult struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Rows        int    `json:"rows"`
	// Location is the s3:// URI when the export was archived.
	Location string `json:"location,omitempty"`
	Body     []byte `json:"-"`
}

// Export renders the requested history as CSV or JSON and optionally archives it.
func (h *HistoryUseCase) Export(ctx context.Context, q ExportQuery) (ExportResult, error) {
	if q.Archive && h.archive == nil {
		return ExportResult{}, ErrNoArchive
	}
	var (
		header []string
		rows   [][]string
		data   any
		n      int
	)
	switch q.Kind {
	case "ticks":
		ticks, err := h.Ticks(ctx, q.Symbol, q.From, q.To, q.Limit)
		if err != nil {
			return ExportResult{}, err
		}
		header, rows, data, n = tickCSV, tickRowsCSV(ticks), ticks, len(ticks)
	case "bars":
		bars, err := h.Bars(ctx, q.Symbol, q.Interval, q.From, q.To, q.Limit)
		if err != nil {
			return ExportResult{}, err
		}
		header, rows, data, n = barCSV, barRowsCSV(bars), bars, len(bars)
	case "analytics":
		ar, err := h.Analytics(ctx, q.From, q.To, q.Limit)
		if err != nil {
			return ExportResult{}, err
		}
		header, rows, data, n = analyticsCSV, analyticsRowsCSV(ar), ar, len(ar)
	case "alerts":
		al := h.Alerts(q.From, q.To, q.Limit)
		header, rows, data, n = alertCSV, alertRowsCSV(al), al, len(al)
	default:
		return ExportResult{}, fmt.Errorf("%w: unknown export kind %q", models.ErrInvalidConfig, q.Kind)
	}

	res := ExportResult{Rows: n, Filename: h.exportName(q)}
	var err error
	switch q.Format {
	case "json":
		res.ContentType = "application/json"
		if n == 0 {
			res.Body = []byte("[]")
			break
		}
		res.Body, err = json.Marshal(data)
	default:
		res.ContentType = "text/csv"
		res.Body, err = encodeCSV(header, rows)
	}
	if err != nil {
		return ExportResult{}, fmt.Errorf("encode %s export: %w", q.Kind, err)
	}

	if q.Archive {
		loc, err := h.archive.Put(ctx, q.Kind+"/"+res.Filename, res.ContentType, res.Body)
		if err != nil {
			return ExportResult{}, err
		}
		res.Location = loc
		h.log.Info("export archived", logger.String("kind", q.Kind), logger.Int("rows", n), logger.String("location", loc))
	}
	return res, nil
}

func (h *HistoryUseCase) exportName(q ExportQuery) string {
	subject := strings.ReplaceAll(h.pair, "/", "-")
	if q.Kind == "ticks" || q.Kind == "bars" {
		subject = q.Symbol
	}
	if q.Kind == "bars" {
		subject += "_" + string(q.Interval)
	}
	ext := q.Format
	if ext != "json" {
		ext = "csv"
	}
	return fmt.Sprintf("%s_%s_%s_%s.%s", q.Kind, subject,
		q.From.UTC().Format("20060102T150405Z"), q.To.UTC().Format("20060102T150405Z"), ext)
}

func encodeCSV(header []string, rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}
	if err := w.WriteAll(rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var (
	tickCSV      = []string{"symbol", "ts", "price", "volume"}
	barCSV       = []string{"symbol", "start", "open", "high", "low", "close", "volume", "tick_count"}
	analyticsCSV = []string{"timestamp", "pair", "hedge_ratio", "intercept", "r_squared", "stale", "spread", "zscore", "rolling_corr"}
	alertCSV     = []string{"id", "timestamp", "pair", "zscore", "spread", "threshold", "direction"}
)

func tickRowsCSV(ticks []models.Tick) [][]string {
	out := make([][]string, len(ticks))
	for i, t := range ticks {
		out[i] = []string{t.Symbol, strconv.FormatInt(t.Timestamp, 10), ff(t.Price), ff(t.Volume)}
	}
	return out
}

func barRowsCSV(bars []models.Bar) [][]string {
	out := make([][]string, len(bars))
	for i, b := range bars {
		out[i] = []string{b.Symbol, strconv.FormatInt(b.Start, 10), ff(b.Open), ff(b.High), ff(b.Low), ff(b.Close), ff(b.Volume), strconv.Itoa(b.TickCount)}
	}
	return out
}

func analyticsRowsCSV(rows []models.AnalyticsRow) [][]string {
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			r.Timestamp.UTC().Format(time.RFC3339Nano), r.Pair,
			ff(r.HedgeRatio), ff(r.Intercept), ff(r.RSquared), strconv.FormatBool(r.Stale),
			ff(r.Spread), ffp(r.ZScore), ffp(r.Correlation),
		}
	}
	return out
}

func alertRowsCSV(alerts []models.Alert) [][]string {
	out := make([][]string, len(alerts))
	for i, a := range alerts {
		out[i] = []string{
			a.ID, a.Timestamp.UTC().Format(time.RFC3339Nano), a.Pair,
			ff(a.ZScore), ff(a.Spread), ff(a.Threshold), string(a.Direction),
		}
	}
	return out
}

func ff(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

// ffp renders an undefined value as an empty cell.
func ffp(v *float64) string {
	if v == nil {
		return ""
	}
	return ff(*v)
}
