package api

import (
	"context"
	"encoding/json"
	"math"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"PairPulse/internal/service/ratelimit"
	"PairPulse/internal/services/tickbuffer"
	"PairPulse/internal/usecase"
	xlogger "PairPulse/pkg/logger"
)

type envelope struct {
	Status int             `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T, n int, perMinute int) (*echo.Echo, *usecase.AnalyticsOrchestrator) {
	t.Helper()
	buf := tickbuffer.New()
	base := time.Now().Add(-time.Hour).UnixMilli()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < n; i++ {
		b := 100 + 5*math.Sin(float64(i)/4)
		buf.Push("BTCUSDT", base+int64(i)*1000, b, 1)
		buf.Push("ETHUSDT", base+int64(i)*1000, 3+0.5*b+0.05*rng.NormFloat64(), 1)
	}
	orch, err := usecase.NewAnalyticsOrchestrator(usecase.OrchestratorConfig{
		SymbolA:              "ETHUSDT",
		SymbolB:              "BTCUSDT",
		Interval:             "1s",
		UseBars:              true,
		WindowSize:           10,
		Threshold:            2,
		MinRegressionSamples: 5,
		CyclePeriod:          time.Second,
	}, buf)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	hist := usecase.NewHistoryUseCase("ETHUSDT/BTCUSDT", buf, orch)
	h := NewAnalyticsHandler(xlogger.Nop(), orch, hist, ratelimit.New(perMinute), nil)
	e := echo.New()
	h.RegisterRoutes(e)
	return e, orch
}

func do(e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSnapshotNotReady(t *testing.T) {
	e, _ := newTestServer(t, 40, 10)
	rec := do(e, http.MethodGet, "/api/snapshot")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "ERR_NOT_READY") {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Fatalf("retry after %q", rec.Header().Get("Retry-After"))
	}
	rec = do(e, http.MethodPost, "/api/adf")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("adf before first cycle: got %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/healthz")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"ready":false`) {
		t.Fatalf("healthz: %d %s", rec.Code, rec.Body.String())
	}
}

func TestSnapshotAfterCycle(t *testing.T) {
	e, orch := newTestServer(t, 40, 10)
	if _, err := orch.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	rec := do(e, http.MethodGet, "/api/snapshot?points=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	var env envelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	var snap struct {
		Pair       string            `json:"pair"`
		Status     string            `json:"status"`
		Spread     []json.RawMessage `json:"spread"`
		Regression struct {
			HedgeRatio float64 `json:"hedge_ratio"`
		} `json:"regression"`
	}
	if err := json.Unmarshal(env.Data, &snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if snap.Pair != "ETHUSDT/BTCUSDT" || snap.Status != "ok" || len(snap.Spread) != 5 {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if math.Abs(snap.Regression.HedgeRatio-0.5) > 0.01 {
		t.Fatalf("hedge ratio %v", snap.Regression.HedgeRatio)
	}
	if full, _ := orch.LatestSnapshot(); len(full.Spread) != 40 {
		t.Fatalf("trimming must not modify the published snapshot")
	}
}

func TestADFInsufficientAndRateLimited(t *testing.T) {
	e, orch := newTestServer(t, 12, 2)
	if _, err := orch.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	rec := do(e, http.MethodPost, "/api/adf")
	if rec.Code != http.StatusUnprocessableEntity || !strings.Contains(rec.Body.String(), "ERR_INSUFFICIENT_DATA") {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
	do(e, http.MethodPost, "/api/adf")
	rec = do(e, http.MethodPost, "/api/adf")
	if rec.Code != http.StatusTooManyRequests || rec.Header().Get("Retry-After") == "" {
		t.Fatalf("expected 429 with Retry-After, got %d %v", rec.Code, rec.Header())
	}
	if !strings.Contains(rec.Body.String(), `"per_minute":2`) {
		t.Fatalf("missing limit param: %s", rec.Body.String())
	}
}

func TestADFComputed(t *testing.T) {
	e, orch := newTestServer(t, 80, 10)
	if _, err := orch.RunCycle(context.Background()); err != nil {
		t.Fatalf("cycle: %v", err)
	}
	rec := do(e, http.MethodPost, "/api/adf")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "critical_values") {
		t.Fatalf("got %d %s", rec.Code, rec.Body.String())
	}
}

func TestBarsAndExport(t *testing.T) {
	e, _ := newTestServer(t, 120, 10)
	rec := do(e, http.MethodGet, "/api/bars?symbol=btcusdt&tf=1m")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"rows"`) {
		t.Fatalf("bars: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodGet, "/api/bars?symbol=BTCUSDT&tf=2h")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad tf: %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/api/bars?symbol=BTCUSDT&from=nope")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad from: %d", rec.Code)
	}

	rec = do(e, http.MethodGet, "/api/export?kind=ticks&symbol=BTCUSDT&limit=3")
	if rec.Code != http.StatusOK {
		t.Fatalf("export: %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get(echo.HeaderContentType); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("content type %q", ct)
	}
	if lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n"); len(lines) != 4 {
		t.Fatalf("expected header and 3 rows, got %d lines", len(lines))
	}
	rec = do(e, http.MethodGet, "/api/export?kind=analytics")
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "ERR_STORAGE_DISABLED") {
		t.Fatalf("analytics export without store: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodGet, "/api/export?kind=alerts&archive=true")
	if rec.Code != http.StatusBadRequest || !strings.Contains(rec.Body.String(), "ERR_ARCHIVE_DISABLED") {
		t.Fatalf("archive without s3: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAlertsAndPrune(t *testing.T) {
	e, _ := newTestServer(t, 10, 10)
	rec := do(e, http.MethodGet, "/api/alerts?limit=10")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"total":0`) {
		t.Fatalf("alerts: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodPost, "/api/alerts/prune?max_age=1h")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"removed":0`) {
		t.Fatalf("prune: %d %s", rec.Code, rec.Body.String())
	}
	rec = do(e, http.MethodPost, "/api/alerts/prune?max_age=soon")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid max_age: %d", rec.Code)
	}
	rec = do(e, http.MethodGet, "/api/stats")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"accepted":10`) {
		t.Fatalf("stats: %d %s", rec.Code, rec.Body.String())
	}
}
