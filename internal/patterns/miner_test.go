package patterns

import (
	"context"
	"testing"
	"time"

	"github.com/incidentstack/scout/internal/models"
)

func minedReport(incidentID, service, signature string, completedAt time.Time) models.InvestigationReport {
	return models.InvestigationReport{
		IncidentID:       incidentID,
		Status:           models.StatusComplete,
		AffectedServices: []string{service},
		Findings: []models.Finding{{
			AgentRole: models.RoleRootCause,
			Title:     "Root cause hypothesis: " + signature,
			Evidence:  []string{"signature:" + signature},
		}},
		CompletedAt: completedAt,
	}
}

func TestMineAggregatesByServiceAndSignature(t *testing.T) {
	now := time.Now().UTC()
	reports := []models.InvestigationReport{
		minedReport("inc-1", "payments-db", "pool_exhausted", now.Add(-2*time.Hour)),
		minedReport("inc-2", "payments-db", "pool_exhausted", now),
		minedReport("inc-3", "checkout", "timeout", now.Add(-time.Hour)),
		{IncidentID: "inc-4", Findings: []models.Finding{{
			AgentRole: models.RoleTriage,
			Evidence:  []string{"signature:never_counted"},
		}}},
	}

	miner := NewMiner(nil, nil)
	patterns, err := miner.Mine(context.Background(), reports)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if len(patterns) != 2 {
		t.Fatalf("patterns = %d, want 2 (non-root-cause evidence ignored)", len(patterns))
	}

	top := patterns[0]
	if top.Service != "payments-db" || top.Signature != "pool_exhausted" {
		t.Fatalf("highest prevalence pattern wrong: %+v", top)
	}
	if top.Occurrences != 2 {
		t.Fatalf("occurrences = %d, want 2", top.Occurrences)
	}
	if top.Prevalence != 0.5 {
		t.Fatalf("prevalence = %v, want 0.5 (2 of 4 reports)", top.Prevalence)
	}
	if !top.LastSeen.Equal(now) {
		t.Fatalf("last seen = %s, want most recent completion", top.LastSeen)
	}
}

func TestMineEmptyInput(t *testing.T) {
	miner := NewMiner(nil, nil)
	patterns, err := miner.Mine(context.Background(), nil)
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if patterns != nil {
		t.Fatalf("expected no patterns, got %+v", patterns)
	}
}

func TestMinePersistsThroughStore(t *testing.T) {
	stored := 0
	store := StoreFunc(func(_ context.Context, patterns []models.SignaturePattern) error {
		stored = len(patterns)
		return nil
	})

	miner := NewMiner(nil, store)
	_, err := miner.Mine(context.Background(), []models.InvestigationReport{
		minedReport("inc-1", "payments", "timeout", time.Now()),
	})
	if err != nil {
		t.Fatalf("mine: %v", err)
	}
	if stored != 1 {
		t.Fatalf("store saw %d patterns, want 1", stored)
	}
}
