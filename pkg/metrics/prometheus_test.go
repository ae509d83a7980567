package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecorderCounts(t *testing.T) {
	r := NewWithRegistry(prometheus.NewRegistry())
	r.RecordTickAccepted("btcusdt")
	r.RecordTickAccepted("btcusdt")
	r.RecordTickDropped("btcusdt", "bad_price")
	r.RecordAlert("btcusdt/ethusdt", "above")
	r.RecordHedgeRatio("btcusdt/ethusdt", 1.5, true)

	if v := testutil.ToFloat64(r.ticksAccepted.WithLabelValues("btcusdt")); v != 2 {
		t.Fatalf("accepted %v", v)
	}
	if v := testutil.ToFloat64(r.ticksDropped.WithLabelValues("btcusdt", "bad_price")); v != 1 {
		t.Fatalf("dropped %v", v)
	}
	if v := testutil.ToFloat64(r.hedgeStale.WithLabelValues("btcusdt/ethusdt")); v != 1 {
		t.Fatalf("stale gauge %v", v)
	}
	if v := testutil.ToFloat64(r.alerts.WithLabelValues("btcusdt/ethusdt", "above")); v != 1 {
		t.Fatalf("alerts %v", v)
	}
}
