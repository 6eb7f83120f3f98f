package models

import "time"

// AgentRole identifies which investigation phase produced a finding.
type AgentRole string

const (
	RoleTriage      AgentRole = "triage"
	RoleCorrelation AgentRole = "correlation"
	RoleRootCause   AgentRole = "root_cause"
	RoleRemediation AgentRole = "remediation"
)

// Severity captures incident impact levels.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

var severityRank = map[Severity]int{
	SeverityLow:      1,
	SeverityMedium:   2,
	SeverityHigh:     3,
	SeverityCritical: 4,
}

// Rank returns the ordering of a severity tier; unset severities rank below low.
func (s Severity) Rank() int {
	return severityRank[s]
}

// AtLeast reports whether s is the same tier as other or stronger.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// MaxSeverity returns the stronger of two severity tiers.
func MaxSeverity(a, b Severity) Severity {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}

// Finding is an immutable, confidence-scored observation produced by one
// investigation agent. Findings are never mutated or removed once appended
// to an investigation.
type Finding struct {
	AgentRole        AgentRole `json:"agent_role"`
	Timestamp        time.Time `json:"timestamp"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Confidence       float64   `json:"confidence"`
	Evidence         []string  `json:"evidence"`
	ActionsSuggested []string  `json:"actions_suggested"`
}

// ClampConfidence bounds a confidence score into [0,1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
