package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/incidentstack/scout/internal/agents"
	"github.com/incidentstack/scout/internal/models"
	"github.com/incidentstack/scout/internal/telemetry"
)

type fakeAgent struct {
	role    models.AgentRole
	outcome agents.Outcome
	err     error
	hook    func(ctx context.Context, snap agents.Snapshot)
	calls   int
}

func (f *fakeAgent) Role() models.AgentRole { return f.role }

func (f *fakeAgent) Investigate(ctx context.Context, snap agents.Snapshot) (agents.Outcome, error) {
	f.calls++
	if f.hook != nil {
		f.hook(ctx, snap)
	}
	if f.err != nil {
		return agents.Outcome{}, f.err
	}
	return f.outcome, nil
}

func phaseFinding(role models.AgentRole) models.Finding {
	return models.Finding{
		AgentRole:  role,
		Timestamp:  time.Now().UTC(),
		Title:      fmt.Sprintf("%s ran", role),
		Confidence: 0.5,
	}
}

func happyAgents() (Agents, map[models.AgentRole]*fakeAgent) {
	byRole := map[models.AgentRole]*fakeAgent{}
	mk := func(role models.AgentRole, outcome agents.Outcome) *fakeAgent {
		a := &fakeAgent{role: role, outcome: outcome}
		byRole[role] = a
		return a
	}
	set := Agents{
		Triage: mk(models.RoleTriage, agents.Outcome{
			Findings: []models.Finding{phaseFinding(models.RoleTriage)},
			Severity: models.SeverityHigh,
			Services: []string{"payments"},
		}),
		Correlation: mk(models.RoleCorrelation, agents.Outcome{
			Findings: []models.Finding{phaseFinding(models.RoleCorrelation)},
			Services: []string{"payments-db"},
		}),
		RootCause: mk(models.RoleRootCause, agents.Outcome{
			Findings: []models.Finding{phaseFinding(models.RoleRootCause)},
			Severity: models.SeverityLow,
		}),
		Remediation: mk(models.RoleRemediation, agents.Outcome{
			Findings: []models.Finding{phaseFinding(models.RoleRemediation)},
		}),
	}
	return set, byRole
}

func validTrigger() models.IncidentTrigger {
	return models.IncidentTrigger{
		IncidentID:    "inc-1",
		CorrelationID: "abc123",
		Symptoms:      []string{"error_rate_spike"},
		TriggerTime:   time.Now().UTC(),
	}
}

func TestPipelineRunsPhasesInOrder(t *testing.T) {
	set, _ := happyAgents()
	history := NewMemoryHistory(8)
	p, err := New(Config{}, set, history, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := p.Run(context.Background(), validTrigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Status != models.StatusComplete {
		t.Fatalf("status = %s, want complete", report.Status)
	}
	wantOrder := []models.AgentRole{
		models.RoleTriage, models.RoleCorrelation, models.RoleRootCause, models.RoleRemediation,
	}
	if len(report.Findings) != len(wantOrder) {
		t.Fatalf("findings = %d, want %d", len(report.Findings), len(wantOrder))
	}
	for i, role := range wantOrder {
		if report.Findings[i].AgentRole != role {
			t.Fatalf("findings[%d] from %s, want %s", i, report.Findings[i].AgentRole, role)
		}
	}

	// Root cause proposed low severity after triage set high; severity never
	// de-escalates.
	if report.FinalSeverity != models.SeverityHigh {
		t.Fatalf("severity de-escalated to %s", report.FinalSeverity)
	}
	if len(report.AffectedServices) != 2 {
		t.Fatalf("services = %v", report.AffectedServices)
	}

	stored, err := history.GetReport(context.Background(), "inc-1")
	if err != nil {
		t.Fatalf("report not persisted: %v", err)
	}
	if stored.Status != models.StatusComplete {
		t.Fatalf("persisted status = %s", stored.Status)
	}
}

func TestPipelineInvalidTrigger(t *testing.T) {
	set, byRole := happyAgents()
	p, err := New(Config{}, set, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err = p.Run(context.Background(), models.IncidentTrigger{Symptoms: []string{"outage"}})
	if !errors.Is(err, models.ErrInvalidTrigger) {
		t.Fatalf("expected ErrInvalidTrigger, got %v", err)
	}
	if byRole[models.RoleTriage].calls != 0 {
		t.Fatal("agents ran despite invalid trigger")
	}
}

func TestPipelineDegradedPhaseContinues(t *testing.T) {
	set, byRole := happyAgents()
	byRole[models.RoleCorrelation].err = fmt.Errorf("query: %w", telemetry.ErrUnavailable)

	p, err := New(Config{}, set, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := p.Run(context.Background(), validTrigger())
	if err != nil {
		t.Fatalf("phase failure must not fail the run: %v", err)
	}

	if report.Status != models.StatusDegraded {
		t.Fatalf("status = %s, want degraded", report.Status)
	}

	var degraded *models.Finding
	for i := range report.Findings {
		if report.Findings[i].AgentRole == models.RoleCorrelation && report.Findings[i].Confidence == 0 {
			degraded = &report.Findings[i]
		}
	}
	if degraded == nil {
		t.Fatal("no degraded finding recorded for the failed phase")
	}
	if degraded.Title != "correlation phase failed: telemetry store unavailable" {
		t.Fatalf("unexpected degraded title: %s", degraded.Title)
	}

	if byRole[models.RoleRemediation].calls != 1 {
		t.Fatal("later phases skipped after a degraded phase")
	}
}

func TestPipelinePhaseTimeoutDegrades(t *testing.T) {
	set, byRole := happyAgents()
	byRole[models.RoleRootCause].hook = func(ctx context.Context, _ agents.Snapshot) {
		<-ctx.Done()
	}
	byRole[models.RoleRootCause].err = context.DeadlineExceeded

	p, err := New(Config{RootCauseTimeout: 10 * time.Millisecond}, set, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := p.Run(context.Background(), validTrigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.StatusDegraded {
		t.Fatalf("status = %s, want degraded", report.Status)
	}
	if byRole[models.RoleRemediation].calls != 1 {
		t.Fatal("remediation skipped after timeout")
	}
}

func TestPipelineCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	set, byRole := happyAgents()
	byRole[models.RoleCorrelation].hook = func(phaseCtx context.Context, _ agents.Snapshot) {
		cancel()
		<-phaseCtx.Done()
	}
	byRole[models.RoleCorrelation].err = context.Canceled

	history := NewMemoryHistory(8)
	p, err := New(Config{}, set, history, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := p.Run(ctx, validTrigger())
	if err != nil {
		t.Fatalf("cancellation must finalize, not error: %v", err)
	}

	if report.Status != models.StatusCancelled {
		t.Fatalf("status = %s, want cancelled", report.Status)
	}
	last := report.Findings[len(report.Findings)-1]
	if last.Title != "Investigation cancelled" {
		t.Fatalf("missing cancellation marker, got %s", last.Title)
	}
	if report.Findings[0].AgentRole != models.RoleTriage {
		t.Fatal("prior findings lost on cancellation")
	}
	if byRole[models.RoleRootCause].calls != 0 {
		t.Fatal("phases ran after cancellation")
	}

	// The cancelled report still lands in history.
	if _, err := history.GetReport(context.Background(), "inc-1"); err != nil {
		t.Fatalf("cancelled report not persisted: %v", err)
	}
}

func TestPipelineEmptyOutcomeGetsPlaceholder(t *testing.T) {
	set, byRole := happyAgents()
	byRole[models.RoleRemediation].outcome = agents.Outcome{}

	p, err := New(Config{}, set, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := p.Run(context.Background(), validTrigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Status != models.StatusComplete {
		t.Fatalf("status = %s", report.Status)
	}
	last := report.Findings[len(report.Findings)-1]
	if last.Title != "remediation phase produced no findings" {
		t.Fatalf("missing placeholder: %s", last.Title)
	}
}

func TestPipelineRequiresAllAgents(t *testing.T) {
	set, _ := happyAgents()
	set.RootCause = nil
	if _, err := New(Config{}, set, nil, nil); err == nil {
		t.Fatal("pipeline constructed without a root-cause agent")
	}
}

func TestReportJSONRoundTrip(t *testing.T) {
	set, _ := happyAgents()
	p, err := New(Config{}, set, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	report, err := p.Run(context.Background(), validTrigger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := json.Marshal(report)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded models.InvestigationReport
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.IncidentID != report.IncidentID || decoded.Status != report.Status {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
	if len(decoded.Findings) != len(report.Findings) {
		t.Fatalf("findings lost in serialization: %d vs %d", len(decoded.Findings), len(report.Findings))
	}
}
