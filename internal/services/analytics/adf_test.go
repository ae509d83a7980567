package analytics

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"PairPulse/internal/domain/models"
)

func TestADFStationaryAR1(t *testing.T) {
	tester := NewADFTester(0)
	for seed := int64(1); seed <= 20; seed++ {
		res, err := tester.Test(context.Background(), ar1(seed, 400, 0.5, 10))
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if res.PValue >= 0.05 || !res.IsStationary {
			t.Fatalf("seed %d: expected stationary, got stat=%v p=%v", seed, res.TestStatistic, res.PValue)
		}
		if res.TestStatistic >= res.CriticalValues.FivePct {
			t.Fatalf("seed %d: statistic %v above 5%% critical value %v", seed, res.TestStatistic, res.CriticalValues.FivePct)
		}
	}
}

func TestADFRandomWalk(t *testing.T) {
	tester := NewADFTester(0)
	nonStationary := 0
	for seed := int64(1); seed <= 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		y := make([]float64, 400)
		level := 100.0
		for i := range y {
			level += rng.NormFloat64()
			y[i] = level
		}
		res, err := tester.Test(context.Background(), y)
		if err != nil {
			t.Fatalf("seed %d: %v", seed, err)
		}
		if res.PValue >= 0.05 {
			nonStationary++
		}
	}
	if nonStationary < 15 {
		t.Fatalf("random walk flagged stationary too often: %d/20 non-stationary", nonStationary)
	}
}

func TestADFResultMetadata(t *testing.T) {
	y := ar1(42, 200, 0.3, 0)
	res, err := NewADFTester(30).Test(context.Background(), y)
	if err != nil {
		t.Fatalf("adf: %v", err)
	}
	if res.UsedLag < 0 || res.UsedLag > MaxLag(len(y)) {
		t.Fatalf("used lag %d out of range", res.UsedLag)
	}
	if res.SampleSize != len(y)-1-res.UsedLag {
		t.Fatalf("sample size %d, used lag %d", res.SampleSize, res.UsedLag)
	}
	cv := res.CriticalValues
	if !(cv.OnePct < cv.FivePct && cv.FivePct < cv.TenPct) {
		t.Fatalf("critical values not ordered: %+v", cv)
	}
	if res.ComputedAt.IsZero() {
		t.Fatalf("computed_at not set")
	}
}

func TestADFInsufficientData(t *testing.T) {
	_, err := NewADFTester(0).Test(context.Background(), ar1(1, 29, 0.5, 0))
	if !errors.Is(err, models.ErrInsufficientData) {
		t.Fatalf("expected ErrInsufficientData, got %v", err)
	}
}

func TestADFConstantSeries(t *testing.T) {
	y := make([]float64, 100)
	for i := range y {
		y[i] = 3
	}
	_, err := NewADFTester(0).Test(context.Background(), y)
	if !errors.Is(err, models.ErrDegenerateRegression) {
		t.Fatalf("expected ErrDegenerateRegression, got %v", err)
	}
}

func TestADFCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewADFTester(0).Test(ctx, ar1(1, 100, 0.5, 0)); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestMaxLag(t *testing.T) {
	cases := []struct{ n, want int }{{100, 12}, {30, 8}, {400, 16}, {10, 3}}
	for _, c := range cases {
		if got := MaxLag(c.n); got != c.want {
			t.Fatalf("MaxLag(%d) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestMacKinnonP(t *testing.T) {
	if p := MacKinnonP(3); p != 1 {
		t.Fatalf("p(3) = %v", p)
	}
	if p := MacKinnonP(-20); p != 0 {
		t.Fatalf("p(-20) = %v", p)
	}
	if p := MacKinnonP(-2.8615); !almostEqual(p, 0.05, 0.005) {
		t.Fatalf("p at 5%% critical value = %v", p)
	}
	if p := MacKinnonP(-3.4304); !almostEqual(p, 0.01, 0.003) {
		t.Fatalf("p at 1%% critical value = %v", p)
	}
	prev := -1.0
	for x := -19.0; x <= 3; x += 0.05 {
		p := MacKinnonP(x)
		if p < prev {
			t.Fatalf("p-value not monotone at %v", x)
		}
		prev = p
	}
}

func TestCriticalValuesLargeSample(t *testing.T) {
	if v := mackinnonCrit(crit5, 1_000_000); !almostEqual(v, -2.86154, 1e-4) {
		t.Fatalf("5%% asymptotic critical value %v", v)
	}
	if v := mackinnonCrit(crit1, 100); !almostEqual(v, -3.43035-0.065393-0.0016786-0.000079433, 1e-9) {
		t.Fatalf("1%% critical value at n=100: %v", v)
	}
}
