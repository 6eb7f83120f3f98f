package services

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/incidentstack/scout/internal/agents"
	"github.com/incidentstack/scout/internal/metrics"
	"github.com/incidentstack/scout/internal/models"
	"github.com/incidentstack/scout/internal/pipeline"
	"github.com/incidentstack/scout/internal/telemetry"
)

type stubAgent struct {
	role models.AgentRole
	err  error
}

func (a stubAgent) Role() models.AgentRole { return a.role }

func (a stubAgent) Investigate(context.Context, agents.Snapshot) (agents.Outcome, error) {
	if a.err != nil {
		return agents.Outcome{}, a.err
	}
	return agents.Outcome{Findings: []models.Finding{{
		AgentRole:  a.role,
		Timestamp:  time.Now().UTC(),
		Title:      string(a.role) + " done",
		Confidence: 0.5,
	}}}, nil
}

func newStubService(t *testing.T, correlationErr error) *InvestigationService {
	t.Helper()

	p, err := pipeline.New(pipeline.Config{}, pipeline.Agents{
		Triage:      stubAgent{role: models.RoleTriage},
		Correlation: stubAgent{role: models.RoleCorrelation, err: correlationErr},
		RootCause:   stubAgent{role: models.RoleRootCause},
		Remediation: stubAgent{role: models.RoleRemediation},
	}, nil, nil)
	if err != nil {
		t.Fatalf("build pipeline: %v", err)
	}
	return NewInvestigationService(nil, p, nil, nil)
}

func TestInvestigateCountsTerminalStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		t.Fatalf("register metrics: %v", err)
	}

	trigger := models.IncidentTrigger{
		IncidentID:  "inc-status-1",
		Symptoms:    []string{"timeout"},
		TriggerTime: time.Now().UTC(),
	}

	if _, err := newStubService(t, nil).Investigate(context.Background(), trigger); err != nil {
		t.Fatalf("complete run: %v", err)
	}
	if _, err := newStubService(t, telemetry.ErrUnavailable).Investigate(context.Background(), trigger); err != nil {
		t.Fatalf("degraded run: %v", err)
	}

	counts := investigationStatusCounts(t, reg)
	if counts[string(models.StatusComplete)] != 1 {
		t.Fatalf("complete count = %f, want 1 (all: %v)", counts[string(models.StatusComplete)], counts)
	}
	if counts[string(models.StatusDegraded)] != 1 {
		t.Fatalf("degraded count = %f, want 1 (all: %v)", counts[string(models.StatusDegraded)], counts)
	}
}

func investigationStatusCounts(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	counts := map[string]float64{}
	for _, family := range families {
		if family.GetName() != "scout_investigations_total" {
			continue
		}
		for _, metric := range family.GetMetric() {
			for _, label := range metric.GetLabel() {
				if label.GetName() == "status" {
					counts[label.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	return counts
}
