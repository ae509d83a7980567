package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"PairPulse/internal/domain/models"
	domrepo "PairPulse/internal/domain/repository"
	apimetrics "PairPulse/internal/service/metrics"
	"PairPulse/internal/service/ratelimit"
	"PairPulse/internal/usecase"
	xhttp "PairPulse/pkg/http"
	xlogger "PairPulse/pkg/logger"
	"PairPulse/pkg/util"
)

// defaultLookback applies when a history request omits from.
const defaultLookback = 24 * time.Hour

// AnalyticsHandler exposes the latest analytics snapshot, on-demand
// stationarity tests, alert history and stored market data.
type AnalyticsHandler struct {
	logger  *xlogger.Logger
	orch    *usecase.AnalyticsOrchestrator
	history *usecase.HistoryUseCase
	limiter *ratelimit.Limiter
	cache   domrepo.SnapshotCache
	now     func() time.Time
}

func NewAnalyticsHandler(logger *xlogger.Logger, orch *usecase.AnalyticsOrchestrator, history *usecase.HistoryUseCase, limiter *ratelimit.Limiter, cache domrepo.SnapshotCache) *AnalyticsHandler {
	apimetrics.Register()
	return &AnalyticsHandler{
		logger:  logger,
		orch:    orch,
		history: history,
		limiter: limiter,
		cache:   cache,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (h *AnalyticsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/snapshot", h.Snapshot)
	g.POST("/adf", h.ADF)
	g.GET("/alerts", h.Alerts)
	g.POST("/alerts/prune", h.PruneAlerts)
	g.GET("/stats", h.Stats)
	g.GET("/bars", h.Bars)
	g.GET("/export", h.Export)
}

type healthResponse struct {
	Status   string `json:"status"`
	Ready    bool   `json:"ready"`
	Sequence uint64 `json:"sequence"`
}

func (h *AnalyticsHandler) Health(c echo.Context) error {
	_, ready := h.orch.LatestSnapshot()
	return xhttp.SuccessResponse(c, healthResponse{Status: "ok", Ready: ready, Sequence: h.orch.Sequence()})
}

// Snapshot returns the latest snapshot. The optional points parameter keeps
// only the newest spread and correlation points.
func (h *AnalyticsHandler) Snapshot(c echo.Context) error {
	defer h.observe("snapshot", time.Now())
	snap, ok := h.orch.LatestSnapshot()
	if !ok && h.cache != nil {
		cached, err := h.cache.GetSnapshot(c.Request().Context())
		if err == nil {
			snap, ok = cached, true
		} else if !errors.Is(err, models.ErrNotReady) {
			h.logger.Warn("snapshot cache read failed", xlogger.Error(err))
		}
	}
	if !ok {
		return h.fail(c, "snapshot", xhttp.ServiceUnavailableError("no analytics snapshot yet").WithRetryAfter(h.orch.Config().CyclePeriod))
	}
	if n := util.ParseIntDefault(c.QueryParam("points"), 0); n > 0 && n < len(snap.Spread) {
		trimmed := *snap
		trimmed.Spread = snap.Spread[len(snap.Spread)-n:]
		if len(snap.Correlation) >= n {
			trimmed.Correlation = snap.Correlation[len(snap.Correlation)-n:]
		}
		snap = &trimmed
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return xhttp.SuccessResponse(c, snap)
}

func (h *AnalyticsHandler) ADF(c echo.Context) error {
	defer h.observe("adf", time.Now())
	if ip := c.RealIP(); h.limiter != nil && !h.limiter.Allow(ip) {
		apimetrics.ADFRuns.WithLabelValues("rate_limited").Inc()
		appErr := xhttp.TooManyRequestsError("too many stationarity tests, retry later").
			WithParam("per_minute", h.limiter.PerMinute()).
			WithRetryAfter(h.limiter.RetryAfter(ip))
		return h.fail(c, "adf", appErr)
	}
	res, err := h.orch.RunStationarityTest(c.Request().Context())
	if err != nil {
		apimetrics.ADFRuns.WithLabelValues("rejected").Inc()
		return h.fail(c, "adf", analyticsError(err))
	}
	apimetrics.ADFRuns.WithLabelValues("ok").Inc()
	return xhttp.SuccessResponse(c, res)
}

func (h *AnalyticsHandler) Alerts(c echo.Context) error {
	defer h.observe("alerts", time.Now())
	req := &models.AlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	rows := h.orch.AlertHistory(req.Limit)
	return xhttp.ListResponse(c, rows, int64(len(rows)))
}

type pruneResponse struct {
	Removed int    `json:"removed"`
	MaxAge  string `json:"max_age"`
}

func (h *AnalyticsHandler) PruneAlerts(c echo.Context) error {
	defer h.observe("alerts_prune", time.Now())
	req := &models.PruneAlertsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	maxAge, err := time.ParseDuration(req.MaxAge)
	if err != nil || maxAge < 0 {
		return h.fail(c, "alerts_prune", xhttp.BadRequestErrorf("invalid max_age %q", req.MaxAge))
	}
	n := h.orch.PruneAlerts(maxAge)
	h.logger.Info("alert history pruned", xlogger.Int("removed", n), xlogger.Duration("max_age", maxAge))
	return xhttp.SuccessResponse(c, pruneResponse{Removed: n, MaxAge: maxAge.String()})
}

type storeStats struct {
	Ticks   int64    `json:"ticks"`
	Symbols []string `json:"symbols"`
}

type statsResponse struct {
	Pair      string                  `json:"pair"`
	Ingestion []models.IngestionStats `json:"ingestion"`
	Store     *storeStats             `json:"store,omitempty"`
}

func (h *AnalyticsHandler) Stats(c echo.Context) error {
	defer h.observe("stats", time.Now())
	resp := statsResponse{Pair: h.orch.Config().Pair(), Ingestion: h.orch.Stats()}
	if h.history.HasStore() {
		n, syms, err := h.history.StoreInfo(c.Request().Context())
		if err != nil {
			h.logger.Warn("store stats unavailable", xlogger.Error(err))
		} else {
			resp.Store = &storeStats{Ticks: n, Symbols: syms}
		}
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *AnalyticsHandler) Bars(c echo.Context) error {
	defer h.observe("bars", time.Now())
	req := &models.BarsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, appErr := xhttp.TimeRange(req.From, req.To, defaultLookback, h.now())
	if appErr != nil {
		return h.fail(c, "bars", appErr)
	}
	iv, err := domrepo.ParseInterval(req.TF)
	if err != nil {
		return h.fail(c, "bars", xhttp.BadRequestError(err.Error()))
	}
	bars, err := h.history.Bars(c.Request().Context(), util.NormalizeSymbol(req.Symbol), iv, from, to, req.Limit)
	if err != nil {
		h.logger.Error("bars usecase error", xlogger.Error(err))
		return h.fail(c, "bars", analyticsError(err))
	}
	return xhttp.ListResponse(c, bars, int64(len(bars)))
}

// Export streams the file, or returns its metadata when archived to S3.
func (h *AnalyticsHandler) Export(c echo.Context) error {
	defer h.observe("export", time.Now())
	req := &models.ExportRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	from, to, appErr := xhttp.TimeRange(req.From, req.To, defaultLookback, h.now())
	if appErr != nil {
		return h.fail(c, "export", appErr)
	}
	res, err := h.history.Export(c.Request().Context(), usecase.ExportQuery{
		Kind:     req.Kind,
		Format:   req.Format,
		Symbol:   util.NormalizeSymbol(req.Symbol),
		Interval: domrepo.NormalizeInterval(req.TF),
		From:     from,
		To:       to,
		Limit:    req.Limit,
		Archive:  req.Archive,
	})
	if err != nil {
		h.logger.Error("export usecase error", xlogger.String("kind", req.Kind), xlogger.Error(err))
		return h.fail(c, "export", analyticsError(err))
	}
	if req.Archive {
		return xhttp.SuccessResponse(c, res)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", res.Filename))
	return c.Blob(http.StatusOK, res.ContentType, res.Body)
}

// analyticsError maps domain errors to API errors.
func analyticsError(err error) *xhttp.AppError {
	var appErr *xhttp.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, models.ErrNotReady):
		return xhttp.ServiceUnavailableError("no analytics snapshot yet").WithError(err)
	case errors.Is(err, models.ErrInsufficientData):
		return xhttp.UnprocessableError("ERR_INSUFFICIENT_DATA", "not enough samples in the spread").WithError(err)
	case errors.Is(err, models.ErrDegenerateRegression):
		return xhttp.UnprocessableError("ERR_DEGENERATE_SERIES", "spread series is degenerate").WithError(err)
	case errors.Is(err, models.ErrInvalidConfig):
		return xhttp.BadRequestError(err.Error()).WithError(err)
	case errors.Is(err, usecase.ErrNoStore):
		return xhttp.NewAppError("ERR_STORAGE_DISABLED", "", "no storage backend configured", http.StatusServiceUnavailable).WithError(err)
	case errors.Is(err, usecase.ErrNoArchive):
		return xhttp.NewAppError("ERR_ARCHIVE_DISABLED", "archive", "export archive is not configured", http.StatusBadRequest).WithError(err)
	default:
		return xhttp.InternalError("internal error").WithError(err)
	}
}

func (h *AnalyticsHandler) fail(c echo.Context, endpoint string, appErr *xhttp.AppError) error {
	apimetrics.APIErrors.WithLabelValues(endpoint, appErr.Code).Inc()
	return xhttp.AppErrorResponse(c, appErr)
}

func (h *AnalyticsHandler) observe(endpoint string, start time.Time) {
	apimetrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
