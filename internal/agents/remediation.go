package agents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/incidentstack/scout/internal/models"
)

// HistoryReader provides similar past incidents for remediation guidance.
// It is optional; remediation falls back to the action table alone.
type HistoryReader interface {
	SimilarIncidents(ctx context.Context, symptoms []string, limit int) ([]models.InvestigationReport, error)
}

// RemediationAgent maps root-cause signatures to recommended actions via
// the configured remediation table.
type RemediationAgent struct {
	tables  Tables
	history HistoryReader
	logger  *slog.Logger
}

// NewRemediationAgent constructs a remediation agent; history may be nil.
func NewRemediationAgent(tables Tables, history HistoryReader, logger *slog.Logger) *RemediationAgent {
	if len(tables.Remediations) == 0 {
		tables = DefaultTables()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RemediationAgent{tables: tables, history: history, logger: logger}
}

// Role implements Agent.
func (a *RemediationAgent) Role() models.AgentRole { return models.RoleRemediation }

// Investigate produces one finding per root-cause signature, plus a
// similar-incident finding when history has matching past investigations.
func (a *RemediationAgent) Investigate(ctx context.Context, snap Snapshot) (Outcome, error) {
	rootCauses := snap.FindingsByRole(models.RoleRootCause)
	signatures := SignaturesFromFindings(rootCauses)

	outcome := Outcome{}
	for _, sig := range signatures {
		entry, ok := a.tables.FindRemediation(sig)
		if !ok {
			continue
		}
		confidence := rootCauseConfidence(rootCauses, sig) * 0.9
		description := fmt.Sprintf("Recommended response for signature %q.", sig)
		if entry.Impact != "" {
			description += " Estimated impact: " + entry.Impact + "."
		}
		outcome.Findings = append(outcome.Findings, models.Finding{
			AgentRole:        models.RoleRemediation,
			Timestamp:        time.Now().UTC(),
			Title:            fmt.Sprintf("Remediation for %s", sig),
			Description:      description,
			Confidence:       models.ClampConfidence(confidence),
			Evidence:         []string{signatureRef + sig},
			ActionsSuggested: append([]string(nil), entry.Actions...),
		})
	}

	if len(outcome.Findings) == 0 {
		outcome.Findings = append(outcome.Findings, models.Finding{
			AgentRole:        models.RoleRemediation,
			Timestamp:        time.Now().UTC(),
			Title:            "Manual investigation required",
			Description:      "No remediation entry matched the root-cause hypotheses; an operator needs to take over.",
			Confidence:       0.2,
			Evidence:         []string{"remediation-table:no match"},
			ActionsSuggested: []string{"Escalate to the on-call owner of the affected services"},
		})
	}

	if finding, ok := a.fromHistory(ctx, snap); ok {
		outcome.Findings = append(outcome.Findings, finding)
	}

	return outcome, nil
}

// fromHistory surfaces actions that resolved similar past incidents.
func (a *RemediationAgent) fromHistory(ctx context.Context, snap Snapshot) (models.Finding, bool) {
	if a.history == nil {
		return models.Finding{}, false
	}
	reports, err := a.history.SimilarIncidents(ctx, snap.Symptoms, 3)
	if err != nil {
		a.logger.Warn("similar incident lookup failed", slog.Any("error", err))
		return models.Finding{}, false
	}

	var actions []string
	var cited []string
	seen := make(map[string]struct{})
	for _, report := range reports {
		for _, f := range report.Findings {
			if f.AgentRole != models.RoleRemediation {
				continue
			}
			for _, action := range f.ActionsSuggested {
				if _, ok := seen[action]; ok {
					continue
				}
				seen[action] = struct{}{}
				actions = append(actions, action)
			}
		}
		cited = append(cited, "incident:"+report.IncidentID)
	}
	if len(actions) == 0 {
		return models.Finding{}, false
	}

	return models.Finding{
		AgentRole:        models.RoleRemediation,
		Timestamp:        time.Now().UTC(),
		Title:            fmt.Sprintf("Actions from %d similar past incidents", len(reports)),
		Description:      "Suggestions drawn from previously completed investigations with overlapping symptoms.",
		Confidence:       0.5,
		Evidence:         cited,
		ActionsSuggested: actions,
	}, true
}

func rootCauseConfidence(findings []models.Finding, signature string) float64 {
	for _, f := range findings {
		for _, ev := range f.Evidence {
			if ev == signatureRef+signature {
				return f.Confidence
			}
		}
	}
	return 0.5
}
