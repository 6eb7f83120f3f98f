// Package pipeline orchestrates the four investigation phases in fixed
// order: triage, correlation, root cause, remediation. Each phase feeds the
// next through accumulated findings; a failing phase degrades the report
// instead of aborting it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/incidentstack/scout/internal/agents"
	"github.com/incidentstack/scout/internal/metrics"
	"github.com/incidentstack/scout/internal/models"
	"github.com/incidentstack/scout/internal/telemetry"
)

// Config carries every pipeline tunable explicitly; there is no
// process-wide mutable state.
type Config struct {
	TriageTimeout      time.Duration
	CorrelationTimeout time.Duration
	RootCauseTimeout   time.Duration
	RemediationTimeout time.Duration
}

func (c *Config) normalize() {
	if c.TriageTimeout <= 0 {
		c.TriageTimeout = 5 * time.Second
	}
	if c.CorrelationTimeout <= 0 {
		c.CorrelationTimeout = 30 * time.Second
	}
	if c.RootCauseTimeout <= 0 {
		c.RootCauseTimeout = 60 * time.Second
	}
	if c.RemediationTimeout <= 0 {
		c.RemediationTimeout = 10 * time.Second
	}
}

// Agents is the closed set of phase implementations, in execution order.
type Agents struct {
	Triage      agents.Agent
	Correlation agents.Agent
	RootCause   agents.Agent
	Remediation agents.Agent
}

// Pipeline runs investigations. One Pipeline may serve concurrent
// investigations; each run owns its InvestigationContext exclusively.
type Pipeline struct {
	cfg     Config
	agents  []agents.Agent
	history HistoryStore
	logger  *slog.Logger
}

// New constructs a pipeline. history may be nil; completed reports are then
// not persisted.
func New(cfg Config, phaseAgents Agents, history HistoryStore, logger *slog.Logger) (*Pipeline, error) {
	cfg.normalize()
	if logger == nil {
		logger = slog.Default()
	}
	ordered := []agents.Agent{
		phaseAgents.Triage,
		phaseAgents.Correlation,
		phaseAgents.RootCause,
		phaseAgents.Remediation,
	}
	for _, agent := range ordered {
		if agent == nil {
			return nil, errors.New("pipeline requires all four phase agents")
		}
	}
	return &Pipeline{cfg: cfg, agents: ordered, history: history, logger: logger}, nil
}

// Run executes one investigation. Only an invalid trigger returns an error;
// every in-pipeline failure is absorbed into the report, and external
// cancellation finalizes the report with status cancelled.
func (p *Pipeline) Run(ctx context.Context, trigger models.IncidentTrigger) (models.InvestigationReport, error) {
	if err := trigger.Validate(); err != nil {
		return models.InvestigationReport{}, err
	}

	inv := models.NewInvestigationContext(trigger)
	p.logger.Info("investigation started",
		slog.String("incident_id", inv.IncidentID()),
		slog.String("correlation_id", inv.CorrelationID()))

	degraded := false
	for _, agent := range p.agents {
		role := agent.Role()
		if ctx.Err() != nil {
			return p.finalize(ctx, p.cancel(inv, role)), nil
		}

		phaseCtx, cancelPhase := context.WithTimeout(ctx, p.timeoutFor(role))
		start := time.Now()
		outcome, err := agent.Investigate(phaseCtx, p.snapshot(inv))
		cancelPhase()
		elapsed := time.Since(start)

		if err != nil {
			if ctx.Err() != nil {
				metrics.ObservePhase(string(role), elapsed, false)
				return p.finalize(ctx, p.cancel(inv, role)), nil
			}
			degraded = true
			metrics.ObservePhase(string(role), elapsed, true)
			inv.AppendFindings(degradedFinding(role, elapsed, err))
			p.logger.Warn("phase degraded",
				slog.String("incident_id", inv.IncidentID()),
				slog.String("phase", string(role)),
				slog.Any("error", err))
			continue
		}

		metrics.ObservePhase(string(role), elapsed, false)
		if len(outcome.Findings) == 0 {
			outcome.Findings = []models.Finding{{
				AgentRole:   role,
				Timestamp:   time.Now().UTC(),
				Title:       fmt.Sprintf("%s phase produced no findings", role),
				Description: "The phase completed without observations.",
				Confidence:  0.1,
			}}
		}
		inv.AppendFindings(outcome.Findings...)
		inv.EscalateSeverity(outcome.Severity)
		inv.AddServices(outcome.Services...)
	}

	status := models.StatusComplete
	if degraded {
		status = models.StatusDegraded
	}
	return p.finalize(ctx, inv.Report(status)), nil
}

// snapshot builds the read-only view handed to an agent.
func (p *Pipeline) snapshot(inv *models.InvestigationContext) agents.Snapshot {
	return agents.Snapshot{
		IncidentID:       inv.IncidentID(),
		CorrelationID:    inv.CorrelationID(),
		Symptoms:         inv.Symptoms(),
		TriggerTime:      inv.TriggerTime(),
		Severity:         inv.Severity(),
		AffectedServices: inv.AffectedServices(),
		Findings:         inv.Findings(),
	}
}

// cancel records the cancellation marker and assembles the partial report.
func (p *Pipeline) cancel(inv *models.InvestigationContext, role models.AgentRole) models.InvestigationReport {
	inv.AppendFindings(models.Finding{
		AgentRole:   role,
		Timestamp:   time.Now().UTC(),
		Title:       "Investigation cancelled",
		Description: fmt.Sprintf("Cancellation requested during the %s phase; findings up to this point are preserved.", role),
		Confidence:  1.0,
		Evidence:    []string{"pipeline:cancelled"},
	})
	p.logger.Info("investigation cancelled",
		slog.String("incident_id", inv.IncidentID()),
		slog.String("phase", string(role)))
	return inv.Report(models.StatusCancelled)
}

// finalize persists the report best effort and returns it unchanged.
func (p *Pipeline) finalize(ctx context.Context, report models.InvestigationReport) models.InvestigationReport {
	if p.history != nil {
		// Persist with a detached context so a cancelled run still lands
		// in history for audit.
		storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := p.history.StoreReport(storeCtx, report); err != nil {
			p.logger.Warn("failed to persist report",
				slog.String("incident_id", report.IncidentID),
				slog.Any("error", err))
		}
	}
	return report
}

func (p *Pipeline) timeoutFor(role models.AgentRole) time.Duration {
	switch role {
	case models.RoleTriage:
		return p.cfg.TriageTimeout
	case models.RoleCorrelation:
		return p.cfg.CorrelationTimeout
	case models.RoleRootCause:
		return p.cfg.RootCauseTimeout
	default:
		return p.cfg.RemediationTimeout
	}
}

func degradedFinding(role models.AgentRole, elapsed time.Duration, err error) models.Finding {
	reason := err.Error()
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		reason = fmt.Sprintf("timed out after %s", elapsed.Round(time.Millisecond))
	case errors.Is(err, telemetry.ErrUnavailable):
		reason = "telemetry store unavailable"
	}
	return models.Finding{
		AgentRole:   role,
		Timestamp:   time.Now().UTC(),
		Title:       fmt.Sprintf("%s phase failed: %s", role, reason),
		Description: fmt.Sprintf("The %s phase did not complete (%v); the investigation continued with prior context.", role, err),
		Confidence:  0.0,
		Evidence:    []string{"pipeline:degraded"},
	}
}
