package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/incidentstack/scout/internal/metrics"
	"github.com/incidentstack/scout/internal/models"
	"github.com/incidentstack/scout/internal/patterns"
	"github.com/incidentstack/scout/internal/pipeline"
	"github.com/incidentstack/scout/internal/utils"
)

// InvestigationService fronts the agent pipeline for the HTTP API and CLI.
type InvestigationService struct {
	logger    *slog.Logger
	pipeline  *pipeline.Pipeline
	history   pipeline.HistoryStore
	miner     *patterns.Miner
	latencies *utils.LatencyTracker
}

// NewInvestigationService constructs the service facade.
func NewInvestigationService(logger *slog.Logger, p *pipeline.Pipeline, history pipeline.HistoryStore, miner *patterns.Miner) *InvestigationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &InvestigationService{
		logger:    logger,
		pipeline:  p,
		history:   history,
		miner:     miner,
		latencies: utils.NewLatencyTracker(1024),
	}
}

// Investigate runs the full four-phase investigation for a trigger.
func (s *InvestigationService) Investigate(ctx context.Context, trigger models.IncidentTrigger) (models.InvestigationReport, error) {
	if s.pipeline == nil {
		return models.InvestigationReport{}, utils.NewAppError("services.Investigate", "pipeline not configured", nil)
	}

	s.logger.Debug("investigation requested",
		slog.String("incident_id", trigger.IncidentID),
		slog.String("correlation_id", trigger.CorrelationID))

	start := time.Now()
	report, err := s.pipeline.Run(ctx, trigger)
	duration := time.Since(start)
	if err != nil {
		metrics.ObserveInvestigation(duration, metrics.OutcomeError)
		if errors.Is(err, models.ErrInvalidTrigger) {
			return models.InvestigationReport{}, err
		}
		s.logger.Error("investigation failed", slog.Any("error", err))
		return models.InvestigationReport{}, utils.NewAppError("services.Investigate", "investigation failed", err)
	}

	s.latencies.Observe(duration)
	metrics.ObserveInvestigation(duration, string(report.Status))
	if count := s.latencies.Count(); count >= 20 && count%20 == 0 {
		s.logger.Info("investigation latency",
			slog.Duration("p95", s.latencies.Percentile(95)),
			slog.Int("samples", count))
	}

	return report, nil
}

// GetReport fetches a stored report by incident ID.
func (s *InvestigationService) GetReport(ctx context.Context, incidentID string) (models.InvestigationReport, error) {
	if s.history == nil {
		return models.InvestigationReport{}, pipeline.ErrReportNotFound
	}
	return s.history.GetReport(ctx, incidentID)
}

// MinePatterns aggregates recurring root-cause signatures from recent reports.
func (s *InvestigationService) MinePatterns(ctx context.Context, limit int) ([]models.SignaturePattern, error) {
	if s.miner == nil || s.history == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}

	reports, err := s.history.RecentReports(ctx, limit)
	if err != nil {
		s.logger.Error("recent reports lookup failed", slog.Any("error", err))
		return nil, utils.NewAppError("services.MinePatterns", "history lookup failed", err)
	}
	return s.miner.Mine(ctx, reports)
}

// LatencyP95 returns the current p95 investigation latency.
func (s *InvestigationService) LatencyP95() time.Duration {
	return s.latencies.Percentile(95)
}
