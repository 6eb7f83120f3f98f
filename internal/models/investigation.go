package models

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidTrigger marks an incident trigger missing required fields. It is
// the only fatal error surfaced before a pipeline run begins.
var ErrInvalidTrigger = errors.New("invalid incident trigger")

var triggerValidator = validator.New()

// IncidentTrigger is the record that starts an investigation.
type IncidentTrigger struct {
	IncidentID    string    `json:"incident_id" validate:"required"`
	CorrelationID string    `json:"correlation_id"`
	Symptoms      []string  `json:"symptoms" validate:"required,min=1,dive,required"`
	TriggerTime   time.Time `json:"trigger_time"`
}

// Validate checks required trigger fields. An empty correlation ID is
// permitted; the correlation phase then skips telemetry queries.
func (t IncidentTrigger) Validate() error {
	if err := triggerValidator.Struct(t); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTrigger, err)
	}
	return nil
}

// InvestigationStatus describes how an investigation run terminated.
type InvestigationStatus string

const (
	StatusComplete  InvestigationStatus = "complete"
	StatusDegraded  InvestigationStatus = "degraded"
	StatusCancelled InvestigationStatus = "cancelled"
)

// InvestigationContext is the single-writer aggregate tracking one incident.
// The pipeline is the only writer; agents receive read-only snapshots. With
// phase execution strictly sequential no internal locking is needed.
type InvestigationContext struct {
	incidentID    string
	correlationID string
	symptoms      []string
	triggerTime   time.Time

	severity         Severity
	affectedServices map[string]struct{}
	findings         []Finding
	startedAt        time.Time
}

// NewInvestigationContext creates the aggregate for a validated trigger.
func NewInvestigationContext(trigger IncidentTrigger) *InvestigationContext {
	triggerTime := trigger.TriggerTime
	if triggerTime.IsZero() {
		triggerTime = time.Now().UTC()
	}
	return &InvestigationContext{
		incidentID:       trigger.IncidentID,
		correlationID:    trigger.CorrelationID,
		symptoms:         append([]string(nil), trigger.Symptoms...),
		triggerTime:      triggerTime,
		affectedServices: make(map[string]struct{}),
		startedAt:        time.Now().UTC(),
	}
}

// IncidentID returns the incident identifier.
func (c *InvestigationContext) IncidentID() string { return c.incidentID }

// CorrelationID returns the correlation identifier, possibly empty.
func (c *InvestigationContext) CorrelationID() string { return c.correlationID }

// Severity returns the current severity tier; empty until triage runs.
func (c *InvestigationContext) Severity() Severity { return c.severity }

// TriggerTime returns the incident trigger timestamp.
func (c *InvestigationContext) TriggerTime() time.Time { return c.triggerTime }

// Symptoms returns a copy of the triggering observations.
func (c *InvestigationContext) Symptoms() []string {
	return append([]string(nil), c.symptoms...)
}

// EscalateSeverity raises the severity tier. Lower or equal tiers are
// ignored: severity never de-escalates within one run.
func (c *InvestigationContext) EscalateSeverity(s Severity) {
	if s.Rank() > c.severity.Rank() {
		c.severity = s
	}
}

// AddServices records newly discovered affected services.
func (c *InvestigationContext) AddServices(services ...string) {
	for _, svc := range services {
		if svc == "" {
			continue
		}
		c.affectedServices[svc] = struct{}{}
	}
}

// AffectedServices returns the sorted set of affected services.
func (c *InvestigationContext) AffectedServices() []string {
	services := make([]string, 0, len(c.affectedServices))
	for svc := range c.affectedServices {
		services = append(services, svc)
	}
	sort.Strings(services)
	return services
}

// AppendFindings appends findings in pipeline order. Existing findings are
// never reordered or removed.
func (c *InvestigationContext) AppendFindings(findings ...Finding) {
	c.findings = append(c.findings, findings...)
}

// Findings returns a copy of the accumulated findings.
func (c *InvestigationContext) Findings() []Finding {
	return append([]Finding(nil), c.findings...)
}

// FindingsByRole filters accumulated findings by producing agent role.
func (c *InvestigationContext) FindingsByRole(role AgentRole) []Finding {
	var out []Finding
	for _, f := range c.findings {
		if f.AgentRole == role {
			out = append(out, f)
		}
	}
	return out
}

// Report assembles the terminal investigation report.
func (c *InvestigationContext) Report(status InvestigationStatus) InvestigationReport {
	return InvestigationReport{
		IncidentID:       c.incidentID,
		CorrelationID:    c.correlationID,
		Status:           status,
		FinalSeverity:    c.severity,
		AffectedServices: c.AffectedServices(),
		Symptoms:         c.Symptoms(),
		Findings:         c.Findings(),
		StartedAt:        c.startedAt,
		CompletedAt:      time.Now().UTC(),
	}
}

// InvestigationReport is the caller-facing output of one pipeline run.
type InvestigationReport struct {
	IncidentID       string              `json:"incident_id"`
	CorrelationID    string              `json:"correlation_id,omitempty"`
	Status           InvestigationStatus `json:"status"`
	FinalSeverity    Severity            `json:"final_severity"`
	AffectedServices []string            `json:"affected_services"`
	Symptoms         []string            `json:"symptoms"`
	Findings         []Finding           `json:"findings"`
	StartedAt        time.Time           `json:"started_at"`
	CompletedAt      time.Time           `json:"completed_at"`
}
