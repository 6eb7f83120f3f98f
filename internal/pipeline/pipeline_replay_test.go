package pipeline

import (
	"context"
	"math"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/incidentstack/scout/internal/agents"
	"github.com/incidentstack/scout/internal/models"
	"github.com/incidentstack/scout/internal/telemetry"
)

// cascadeSnapshot builds a replayable telemetry window where payments-db
// errors precede payments errors in four of five paired samples. The last
// pair is 20s apart, outside the default cascade gap.
func cascadeSnapshot(trigger time.Time) []models.TelemetryRecord {
	errorLog := func(service, message string, at time.Time) models.TelemetryRecord {
		return models.TelemetryRecord{
			SignalType:  models.SignalLogs,
			Timestamp:   at,
			ServiceName: service,
			Payload:     map[string]any{"message": message, "level": "error"},
		}
	}

	var records []models.TelemetryRecord
	offsets := []time.Duration{
		-60 * time.Second, -50 * time.Second, -40 * time.Second,
		-30 * time.Second, -20 * time.Second,
	}
	for i, offset := range offsets {
		up := trigger.Add(offset)
		gap := 3 * time.Second
		if i == len(offsets)-1 {
			gap = 20 * time.Second
		}
		records = append(records,
			errorLog("payments-db", "connection pool exhausted", up),
			errorLog("payments", "payments call failed", up.Add(gap)),
		)
	}
	return records
}

func replayPipeline(t *testing.T, trigger time.Time) *Pipeline {
	t.Helper()

	store := telemetry.NewReplayStore(cascadeSnapshot(trigger))
	tables := agents.DefaultTables()
	p, err := New(Config{}, Agents{
		Triage:      agents.NewTriageAgent(agents.TriageConfig{}, store, nil),
		Correlation: agents.NewCorrelationAgent(agents.CorrelationConfig{}, store, nil),
		RootCause:   agents.NewRootCauseAgent(agents.RootCauseConfig{}, store, tables, nil),
		Remediation: agents.NewRemediationAgent(tables, nil, nil),
	}, nil, nil)
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	return p
}

func replayTrigger(at time.Time) models.IncidentTrigger {
	return models.IncidentTrigger{
		IncidentID:    "inc-replay-1",
		CorrelationID: "cid-replay-1",
		Symptoms:      []string{"error_rate_spike", "timeout calling payments"},
		TriggerTime:   at,
	}
}

func TestPipelineCascadeOverReplaySnapshot(t *testing.T) {
	triggerTime := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	p := replayPipeline(t, triggerTime)

	report, err := p.Run(context.Background(), replayTrigger(triggerTime))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if report.Status != models.StatusComplete {
		t.Fatalf("status = %s, want complete", report.Status)
	}
	if report.FinalSeverity != models.SeverityHigh {
		t.Fatalf("severity = %s, want high", report.FinalSeverity)
	}
	if len(report.Findings) != 5 {
		t.Fatalf("got %d findings, want 5: %+v", len(report.Findings), report.Findings)
	}

	cascade := report.Findings[2]
	if cascade.AgentRole != models.RoleCorrelation || !strings.Contains(cascade.Title, "payments-db") {
		t.Fatalf("unexpected cascade finding: %+v", cascade)
	}
	if math.Abs(cascade.Confidence-0.8) > 1e-9 {
		t.Fatalf("cascade confidence = %f, want 0.8", cascade.Confidence)
	}
	if cascade.Evidence[0] != "origin-service:payments-db" {
		t.Fatalf("cascade evidence[0] = %s", cascade.Evidence[0])
	}

	rootCause := report.Findings[3]
	if rootCause.AgentRole != models.RoleRootCause || !strings.Contains(rootCause.Title, "pool") {
		t.Fatalf("unexpected root cause finding: %+v", rootCause)
	}
	if rootCause.Evidence[0] != "signature:pool_exhausted" {
		t.Fatalf("root cause evidence[0] = %s", rootCause.Evidence[0])
	}
	if math.Abs(rootCause.Confidence-0.95) > 1e-9 {
		t.Fatalf("root cause confidence = %f, want 0.95", rootCause.Confidence)
	}

	remediation := report.Findings[4]
	if remediation.Title != "Remediation for pool_exhausted" {
		t.Fatalf("unexpected remediation finding: %+v", remediation)
	}
	if math.Abs(remediation.Confidence-0.95*0.9) > 1e-9 {
		t.Fatalf("remediation confidence = %f, want %f", remediation.Confidence, 0.95*0.9)
	}
}

func TestPipelineReplayRerunsAreIdentical(t *testing.T) {
	triggerTime := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	p := replayPipeline(t, triggerTime)
	trigger := replayTrigger(triggerTime)

	first, err := p.Run(context.Background(), trigger)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := p.Run(context.Background(), trigger)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Status != second.Status || first.FinalSeverity != second.FinalSeverity {
		t.Fatalf("outcome differs: %s/%s vs %s/%s",
			first.Status, first.FinalSeverity, second.Status, second.FinalSeverity)
	}
	if !slices.Equal(first.AffectedServices, second.AffectedServices) {
		t.Fatalf("affected services differ: %v vs %v", first.AffectedServices, second.AffectedServices)
	}
	if len(first.Findings) != len(second.Findings) {
		t.Fatalf("finding counts differ: %d vs %d", len(first.Findings), len(second.Findings))
	}
	for i := range first.Findings {
		a, b := first.Findings[i], second.Findings[i]
		if a.AgentRole != b.AgentRole || a.Title != b.Title || a.Confidence != b.Confidence {
			t.Fatalf("finding %d differs: %s %q %f vs %s %q %f",
				i, a.AgentRole, a.Title, a.Confidence, b.AgentRole, b.Title, b.Confidence)
		}
		if !slices.Equal(a.Evidence, b.Evidence) {
			t.Fatalf("finding %d evidence differs: %v vs %v", i, a.Evidence, b.Evidence)
		}
		if !slices.Equal(a.ActionsSuggested, b.ActionsSuggested) {
			t.Fatalf("finding %d actions differ: %v vs %v", i, a.ActionsSuggested, b.ActionsSuggested)
		}
	}
}
