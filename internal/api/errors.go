package api

import (
	"errors"
	"net/http"
)

// Sentinel errors forming the engine's failure taxonomy. Validation errors
// fail before any fitting occurs; fitting-stage conditions degrade rather
// than abort (see the orchestrator).
var (
	// ErrInvalidRequest covers malformed requests: bad horizon, unknown
	// model choice, empty entity key.
	ErrInvalidRequest = errors.New("invalid forecast request")

	// ErrUnknownEntity means the entity key resolved to no records at all.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrInsufficientHistory means fewer than 2 observed years exist, which
	// is below the minimum any forecaster can fit.
	ErrInsufficientHistory = errors.New("insufficient history")

	// ErrNoFeatureModel means an explanation was requested but the feature
	// model was skipped (too little training data). Callers should surface
	// this as a "not yet available" state, not a fatal error.
	ErrNoFeatureModel = errors.New("no feature model available")

	// ErrFittingTimeout means the fitting budget was exceeded. The engine
	// degrades to a trend-only result instead of failing the request; this
	// sentinel only escapes when even the trend path could not complete.
	ErrFittingTimeout = errors.New("model fitting exceeded time budget")
)

// HTTPStatus classifies an engine error for the request-handling layer.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrInvalidRequest), errors.Is(err, ErrInsufficientHistory):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownEntity):
		return http.StatusNotFound
	case errors.Is(err, ErrNoFeatureModel):
		// Distinct "pending" state: the forecast exists, the explanation
		// does not yet.
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
