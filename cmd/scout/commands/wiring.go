package commands

import (
	"log/slog"

	"github.com/incidentstack/scout/internal/agents"
	"github.com/incidentstack/scout/internal/cache"
	"github.com/incidentstack/scout/internal/config"
	"github.com/incidentstack/scout/internal/pipeline"
	"github.com/incidentstack/scout/internal/telemetry"
)

// newCacheProvider returns the configured Valkey provider, or a no-op when
// caching is disabled or unreachable. Cache loss degrades performance only.
func newCacheProvider(cfg *config.Config, logger *slog.Logger) cache.Provider {
	if !cfg.Cache.Enabled || cfg.Cache.Addr == "" {
		return cache.NoopProvider{}
	}
	provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
		Addr:         cfg.Cache.Addr,
		Username:     cfg.Cache.Username,
		Password:     cfg.Cache.Password,
		DB:           cfg.Cache.DB,
		DialTimeout:  cfg.Cache.DialTimeout,
		ReadTimeout:  cfg.Cache.ReadTimeout,
		WriteTimeout: cfg.Cache.WriteTimeout,
		MaxRetries:   cfg.Cache.MaxRetries,
		TLS:          cfg.Cache.TLS,
	})
	if err != nil {
		logger.Warn("valkey cache unavailable", slog.Any("error", err))
		return cache.NoopProvider{}
	}
	return provider
}

// newHistory selects the HTTP archive when an endpoint is configured and the
// bounded in-memory store otherwise.
func newHistory(cfg *config.Config, cacheProvider cache.Provider) pipeline.HistoryStore {
	if cfg.History.Endpoint != "" {
		return pipeline.NewHTTPHistory(cfg.History.Endpoint, cfg.History.APIKey, cfg.History.Timeout, cacheProvider, cfg.History.SimilarTTL)
	}
	return pipeline.NewMemoryHistory(cfg.History.MaxReports)
}

// buildPipeline assembles the four phase agents around a telemetry store and
// history archive.
func buildPipeline(cfg *config.Config, logger *slog.Logger, store telemetry.Store, history pipeline.HistoryStore) (*pipeline.Pipeline, error) {
	tables, err := agents.LoadTables(cfg.Tables.Path)
	if err != nil {
		return nil, err
	}

	phaseAgents := pipeline.Agents{
		Triage: agents.NewTriageAgent(agents.TriageConfig{
			ErrorRateThreshold: cfg.Pipeline.ErrorRateThreshold,
			ConfidenceCap:      cfg.Pipeline.ConfidenceCap,
		}, store, logger),
		Correlation: agents.NewCorrelationAgent(agents.CorrelationConfig{
			LookBack:    cfg.Pipeline.LookBack,
			LookForward: cfg.Pipeline.LookForward,
			MaxEvidence: cfg.Pipeline.MaxEvidence,
			CascadeGap:  cfg.Pipeline.CascadeGap,
		}, store, logger),
		RootCause: agents.NewRootCauseAgent(agents.RootCauseConfig{
			LookBack:    cfg.Pipeline.LookBack,
			LookForward: cfg.Pipeline.LookForward,
			MaxEvidence: cfg.Pipeline.MaxEvidence,
		}, store, tables, logger),
		Remediation: agents.NewRemediationAgent(tables, history, logger),
	}

	return pipeline.New(pipeline.Config{
		TriageTimeout:      cfg.Pipeline.TriageTimeout,
		CorrelationTimeout: cfg.Pipeline.CorrelationTimeout,
		RootCauseTimeout:   cfg.Pipeline.RootCauseTimeout,
		RemediationTimeout: cfg.Pipeline.RemediationTimeout,
	}, phaseAgents, history, logger)
}
