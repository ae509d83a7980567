package analytics

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"PairPulse/internal/domain/models"
)

const (
	// DefaultMinADFSamples is the smallest spread sample tested.
	DefaultMinADFSamples = 30
	// StationarityLevel is the p-value below which the spread is called stationary.
	StationarityLevel = 0.05
)

// MacKinnon (1994) response-surface coefficients, constant-only regression, one variable.
var (
	tauMax    = 2.74
	tauMin    = -18.83
	tauStar   = -1.61
	tauSmallP = []float64{2.1659, 1.4412, 0.038269}
	tauLargeP = []float64{1.7339, 0.93202, -0.12745, -0.010368}
)

// MacKinnon (2010) critical value coefficients, constant-only regression, one variable.
var (
	crit1  = []float64{-3.43035, -6.5393, -16.786, -79.433}
	crit5  = []float64{-2.86154, -2.8903, -4.234, -40.040}
	crit10 = []float64{-2.56677, -1.5384, -2.809, 0}
)

// ADFTester runs an augmented Dickey-Fuller test with a constant and AIC lag selection.
type ADFTester struct {
	minSamples int
	now        func() time.Time
}

func NewADFTester(minSamples int) *ADFTester {
	if minSamples <= 0 {
		minSamples = DefaultMinADFSamples
	}
	return &ADFTester{minSamples: minSamples, now: time.Now}
}

// MaxLag is floor(12*(n/100)^(1/4)), capped so every candidate regression keeps residual degrees of freedom.
func MaxLag(n int) int {
	lag := int(math.Floor(12 * math.Pow(float64(n)/100, 0.25)))
	if limit := n/2 - 2; lag > limit {
		lag = limit
	}
	if lag < 0 {
		lag = 0
	}
	return lag
}

// Test returns ErrInsufficientData below the minimum sample and
// ErrDegenerateRegression for a flat or perfectly fitted series.
func (t *ADFTester) Test(ctx context.Context, y []float64) (models.ADFResult, error) {
	n := len(y)
	if n < t.minSamples {
		return models.ADFResult{}, fmt.Errorf("adf: %d samples, need %d: %w", n, t.minSamples, models.ErrInsufficientData)
	}
	if stat.Variance(y, nil) == 0 {
		return models.ADFResult{}, fmt.Errorf("adf: constant series: %w", models.ErrDegenerateRegression)
	}

	dy := make([]float64, n-1)
	for i := range dy {
		dy[i] = y[i+1] - y[i]
	}

	maxLag := MaxLag(n)
	bestLag, bestAIC := 0, math.Inf(1)
	for lag := 0; lag <= maxLag; lag++ {
		if err := ctx.Err(); err != nil {
			return models.ADFResult{}, err
		}
		// common sample: every candidate starts at maxLag
		fit, err := adfRegression(y, dy, lag, maxLag)
		if err != nil {
			continue
		}
		if fit.aic < bestAIC {
			bestLag, bestAIC = lag, fit.aic
		}
	}
	if math.IsInf(bestAIC, 1) {
		return models.ADFResult{}, fmt.Errorf("adf: no lag order could be fitted: %w", models.ErrDegenerateRegression)
	}

	fit, err := adfRegression(y, dy, bestLag, bestLag)
	if err != nil {
		return models.ADFResult{}, err
	}
	p := MacKinnonP(fit.tstat)
	return models.ADFResult{
		TestStatistic: fit.tstat,
		PValue:        p,
		UsedLag:       bestLag,
		SampleSize:    fit.nobs,
		CriticalValues: models.CriticalValues{
			OnePct:  mackinnonCrit(crit1, fit.nobs),
			FivePct: mackinnonCrit(crit5, fit.nobs),
			TenPct:  mackinnonCrit(crit10, fit.nobs),
		},
		IsStationary: p < StationarityLevel,
		ComputedAt:   t.now(),
	}, nil
}

type olsFit struct {
	tstat float64
	aic   float64
	nobs  int
}

// adfRegression regresses dy_i on [1, y_i, dy_{i-1} .. dy_{i-lag}] for i in [start, len(dy)).
func adfRegression(y, dy []float64, lag, start int) (olsFit, error) {
	nobs := len(dy) - start
	k := 2 + lag
	if nobs <= k {
		return olsFit{}, fmt.Errorf("adf: %d observations for %d regressors: %w", nobs, k, models.ErrInsufficientData)
	}

	x := mat.NewDense(nobs, k, nil)
	target := mat.NewVecDense(nobs, nil)
	for r := 0; r < nobs; r++ {
		i := start + r
		x.Set(r, 0, 1)
		x.Set(r, 1, y[i])
		for j := 1; j <= lag; j++ {
			x.Set(r, 1+j, dy[i-j])
		}
		target.SetVec(r, dy[i])
	}

	var coef mat.VecDense
	if err := coef.SolveVec(x, target); err != nil {
		return olsFit{}, fmt.Errorf("adf: solve: %w", err)
	}
	var fitted mat.VecDense
	fitted.MulVec(x, &coef)
	var ssr float64
	for r := 0; r < nobs; r++ {
		e := target.AtVec(r) - fitted.AtVec(r)
		ssr += e * e
	}
	if ssr <= 0 {
		return olsFit{}, fmt.Errorf("adf: perfect fit: %w", models.ErrDegenerateRegression)
	}

	var xtx, inv mat.Dense
	xtx.Mul(x.T(), x)
	if err := inv.Inverse(&xtx); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return olsFit{}, fmt.Errorf("adf: invert: %w", err)
		}
	}
	sigma2 := ssr / float64(nobs-k)
	se := math.Sqrt(sigma2 * inv.At(1, 1))
	if se == 0 || math.IsNaN(se) {
		return olsFit{}, fmt.Errorf("adf: zero standard error: %w", models.ErrDegenerateRegression)
	}

	fn := float64(nobs)
	llf := -fn / 2 * (math.Log(2*math.Pi) + math.Log(ssr/fn) + 1)
	return olsFit{
		tstat: coef.AtVec(1) / se,
		aic:   -2*llf + 2*float64(k),
		nobs:  nobs,
	}, nil
}

// MacKinnonP is the approximate p-value of an ADF statistic with a constant.
func MacKinnonP(tstat float64) float64 {
	switch {
	case tstat > tauMax:
		return 1
	case tstat < tauMin:
		return 0
	}
	coef := tauLargeP
	if tstat <= tauStar {
		coef = tauSmallP
	}
	return distuv.UnitNormal.CDF(polyval(coef, tstat))
}

// polyval evaluates c[0] + c[1]x + c[2]x^2 + ...
func polyval(c []float64, x float64) float64 {
	var v float64
	for i := len(c) - 1; i >= 0; i-- {
		v = v*x + c[i]
	}
	return v
}

// mackinnonCrit is b0 + b1/n + b2/n^2 + b3/n^3.
func mackinnonCrit(b []float64, nobs int) float64 {
	return polyval(b, 1/float64(nobs))
}
