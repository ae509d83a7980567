package http

import (
	"time"

	xutil "PairPulse/pkg/util"
)

// TimeRange resolves optional from/to query values. Missing ends default to
// to=now and from=to-lookback.
func TimeRange(fromStr, toStr string, lookback time.Duration, now time.Time) (time.Time, time.Time, *AppError) {
	to := now
	if toStr != "" {
		t, ok := xutil.ParseTime(toStr)
		if !ok {
			return time.Time{}, time.Time{}, BadRequestErrorf("invalid to: %q", toStr)
		}
		to = t
	}
	from := to.Add(-lookback)
	if fromStr != "" {
		t, ok := xutil.ParseTime(fromStr)
		if !ok {
			return time.Time{}, time.Time{}, BadRequestErrorf("invalid from: %q", fromStr)
		}
		from = t
	}
	if from.After(to) {
		return time.Time{}, time.Time{}, BadRequestError("from must not be after to")
	}
	return from, to, nil
}
