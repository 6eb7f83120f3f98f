// Package agents implements the four investigation agents. Each agent is a
// pure consumer of a read-only snapshot of the investigation so far; only
// the pipeline applies the returned outcome to the shared aggregate.
package agents

import (
	"context"
	"strings"
	"time"

	"github.com/incidentstack/scout/internal/models"
)

// Snapshot is the immutable view of an investigation an agent receives.
type Snapshot struct {
	IncidentID       string
	CorrelationID    string
	Symptoms         []string
	TriggerTime      time.Time
	Severity         models.Severity
	AffectedServices []string
	Findings         []models.Finding
}

// FindingsByRole filters the snapshot's findings by producing role.
func (s Snapshot) FindingsByRole(role models.AgentRole) []models.Finding {
	var out []models.Finding
	for _, f := range s.Findings {
		if f.AgentRole == role {
			out = append(out, f)
		}
	}
	return out
}

// Outcome is what an agent hands back to the pipeline: new findings plus
// proposed context updates. Severity proposals only ever escalate.
type Outcome struct {
	Findings []models.Finding
	Severity models.Severity
	Services []string
}

// Agent is one unit of investigation work. Implementations must not retain
// or mutate the snapshot, and must respect ctx cancellation on any
// telemetry query they issue.
type Agent interface {
	Role() models.AgentRole
	Investigate(ctx context.Context, snap Snapshot) (Outcome, error)
}

// evidenceRef prefixes for structured references passed between phases via
// finding evidence lists.
const (
	originServiceRef = "origin-service:"
	signatureRef     = "signature:"
)

// OriginServiceFromFindings extracts the cascading-failure origin service
// named by a prior correlation finding, if any.
func OriginServiceFromFindings(findings []models.Finding) string {
	for _, f := range findings {
		for _, ev := range f.Evidence {
			if strings.HasPrefix(ev, originServiceRef) {
				return strings.TrimPrefix(ev, originServiceRef)
			}
		}
	}
	return ""
}

// SignaturesFromFindings extracts root-cause signature IDs cited by prior
// findings, preserving order.
func SignaturesFromFindings(findings []models.Finding) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, f := range findings {
		for _, ev := range f.Evidence {
			if !strings.HasPrefix(ev, signatureRef) {
				continue
			}
			sig := strings.TrimPrefix(ev, signatureRef)
			if _, ok := seen[sig]; ok {
				continue
			}
			seen[sig] = struct{}{}
			out = append(out, sig)
		}
	}
	return out
}
