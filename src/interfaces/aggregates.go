package interfaces

import "chart-hub/src/models"

// -----------------------------------------------------------------------------
// IAggregatesResolver is the boundary with the external aggregates source.
// The collaborator owns its own caching, retries and session fallback; the
// chart hub only normalizes timestamps and tags provenance on the results.
// -----------------------------------------------------------------------------

type IAggregatesResolver interface {

	// -----------------------------------------------------------------------------

	// Resolve fetches historical bars for the ticker over the requested
	// window. Errors propagate to the caller, which owns client-facing
	// error reporting.
	Resolve(req models.MAggregatesRequest) (*models.MAggregatesResult, error)
}
