package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/incidentstack/scout/internal/config"
	"github.com/incidentstack/scout/internal/models"
	"github.com/incidentstack/scout/internal/pipeline"
	"github.com/incidentstack/scout/internal/telemetry"
	"github.com/incidentstack/scout/internal/utils"
)

var (
	triggerPath   string
	replayPath    string
	incidentID    string
	correlationID string
	symptoms      []string
)

var investigateCmd = &cobra.Command{
	Use:   "investigate",
	Short: "Run a single investigation and print the report as JSON",
	Long: `Runs the full agent pipeline once, outside the server. The trigger is
read from --trigger, or assembled from --incident-id and --symptom flags.
With --replay, telemetry is served from a local snapshot file instead of
the configured backend.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		return runInvestigate(cmd.Context(), cfg)
	},
}

func init() {
	investigateCmd.Flags().StringVar(&triggerPath, "trigger", "", "Path to a JSON trigger file")
	investigateCmd.Flags().StringVar(&replayPath, "replay", "", "Path to a telemetry snapshot to replay")
	investigateCmd.Flags().StringVar(&incidentID, "incident-id", "", "Incident identifier")
	investigateCmd.Flags().StringVar(&correlationID, "correlation-id", "", "Correlation ID scoping the telemetry query")
	investigateCmd.Flags().StringSliceVar(&symptoms, "symptom", nil, "Observed symptom (repeatable)")
}

func runInvestigate(ctx context.Context, cfg *config.Config) error {
	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)

	trigger, err := loadTrigger()
	if err != nil {
		return err
	}

	var store telemetry.Store
	if replayPath != "" {
		replay, err := telemetry.LoadReplayFile(replayPath)
		if err != nil {
			return fmt.Errorf("load replay snapshot: %w", err)
		}
		store = replay
	} else if cfg.Telemetry.BaseURL != "" {
		store = telemetry.NewHTTPStore(telemetry.HTTPStoreConfig{
			BaseURL:   cfg.Telemetry.BaseURL,
			QueryPath: cfg.Telemetry.QueryPath,
			APIKey:    cfg.Telemetry.APIKey,
			Timeout:   cfg.Telemetry.Timeout,
		}, nil)
	}

	history := pipeline.NewMemoryHistory(cfg.History.MaxReports)
	p, err := buildPipeline(cfg, logger, store, history)
	if err != nil {
		return err
	}

	report, err := p.Run(ctx, trigger)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

func loadTrigger() (models.IncidentTrigger, error) {
	if triggerPath != "" {
		data, err := os.ReadFile(triggerPath)
		if err != nil {
			return models.IncidentTrigger{}, fmt.Errorf("read trigger: %w", err)
		}
		var trigger models.IncidentTrigger
		if err := json.Unmarshal(data, &trigger); err != nil {
			return models.IncidentTrigger{}, fmt.Errorf("parse trigger: %w", err)
		}
		if trigger.TriggerTime.IsZero() {
			trigger.TriggerTime = time.Now().UTC()
		}
		return trigger, nil
	}

	return models.IncidentTrigger{
		IncidentID:    incidentID,
		CorrelationID: correlationID,
		Symptoms:      symptoms,
		TriggerTime:   time.Now().UTC(),
	}, nil
}
