// Package telemetry defines the read-only store boundary the investigation
// engine consumes telemetry records through. The engine never writes
// telemetry; any logs/traces/metrics backend can sit behind Store.
package telemetry

import (
	"context"
	"errors"

	"github.com/incidentstack/scout/internal/models"
)

// ErrUnavailable signals that the telemetry store could not be reached or
// authenticated. "No data found" is not an error; stores return an empty
// slice instead.
var ErrUnavailable = errors.New("telemetry store unavailable")

// Store is the narrow read interface over telemetry backends. It must be
// safe for concurrent use; independent investigations share one Store.
type Store interface {
	Query(ctx context.Context, q models.TelemetryQuery) ([]models.TelemetryRecord, error)
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, q models.TelemetryQuery) ([]models.TelemetryRecord, error)

// Query implements Store.
func (f StoreFunc) Query(ctx context.Context, q models.TelemetryQuery) ([]models.TelemetryRecord, error) {
	return f(ctx, q)
}
