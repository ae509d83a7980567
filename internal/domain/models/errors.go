package models

import "errors"

var (
	// ErrInsufficientData means too few samples for the requested estimator.
	ErrInsufficientData = errors.New("insufficient data")
	// ErrDegenerateRegression means the regressor has zero variance.
	ErrDegenerateRegression = errors.New("degenerate regression")
	// ErrNotReady means no analytics snapshot has been published yet.
	ErrNotReady = errors.New("analytics not ready")
	// ErrInvalidConfig marks a fatal configuration problem.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrMalformedTick marks a tick rejected at ingestion.
	ErrMalformedTick = errors.New("malformed tick")
)
