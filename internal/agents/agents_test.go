package agents

import (
	"context"
	"time"

	"github.com/incidentstack/scout/internal/models"
)

// fakeStore serves canned telemetry and records the queries it saw.
type fakeStore struct {
	records []models.TelemetryRecord
	err     error
	queries []models.TelemetryQuery
}

func (f *fakeStore) Query(_ context.Context, q models.TelemetryQuery) ([]models.TelemetryRecord, error) {
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func logRecord(service, message string, at time.Time, isError bool) models.TelemetryRecord {
	severity := "info"
	if isError {
		severity = "error"
	}
	return models.TelemetryRecord{
		SignalType:  models.SignalLogs,
		Timestamp:   at,
		ServiceName: service,
		Payload:     map[string]any{"message": message, "severity": severity},
	}
}

func metricRecord(service, metric string, value float64, at time.Time) models.TelemetryRecord {
	return models.TelemetryRecord{
		SignalType:  models.SignalMetrics,
		Timestamp:   at,
		ServiceName: service,
		Payload:     map[string]any{"metric": metric, "value": value},
	}
}
