package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/incidentstack/scout/internal/models"
)

// ReplayStore serves a fixed telemetry snapshot from memory. Replaying the
// same snapshot yields identical query results, which keeps investigations
// deterministic for tests and offline analysis.
type ReplayStore struct {
	records []models.TelemetryRecord
}

// NewReplayStore builds a store over a snapshot of records.
func NewReplayStore(records []models.TelemetryRecord) *ReplayStore {
	sorted := append([]models.TelemetryRecord(nil), records...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Timestamp.Equal(sorted[j].Timestamp) {
			return sorted[i].Timestamp.Before(sorted[j].Timestamp)
		}
		return sorted[i].ServiceName < sorted[j].ServiceName
	})
	return &ReplayStore{records: sorted}
}

// LoadReplayFile reads a JSON snapshot file containing either a bare record
// array or an object with a "records" field.
func LoadReplayFile(path string) (*ReplayStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var records []models.TelemetryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		var wrapped struct {
			Records []models.TelemetryRecord `json:"records"`
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, fmt.Errorf("parse snapshot %s: %w", path, err)
		}
		records = wrapped.Records
	}
	return NewReplayStore(records), nil
}

// Query implements Store by filtering the snapshot.
func (s *ReplayStore) Query(_ context.Context, q models.TelemetryQuery) ([]models.TelemetryRecord, error) {
	signals := make(map[models.SignalType]struct{}, len(q.SignalTypes))
	for _, sig := range q.SignalTypes {
		signals[sig] = struct{}{}
	}

	var out []models.TelemetryRecord
	for _, record := range s.records {
		if len(signals) > 0 {
			if _, ok := signals[record.SignalType]; !ok {
				continue
			}
		}
		if q.ServiceName != "" && !strings.EqualFold(record.ServiceName, q.ServiceName) {
			continue
		}
		if !q.Start.IsZero() && record.Timestamp.Before(q.Start) {
			continue
		}
		if !q.End.IsZero() && record.Timestamp.After(q.End) {
			continue
		}
		if q.CorrelationID != "" {
			if cid := record.PayloadString("correlation_id"); cid != "" && cid != q.CorrelationID {
				continue
			}
		}
		out = append(out, record)
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
	}
	return out, nil
}
