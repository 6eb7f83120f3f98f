package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/incidentstack/scout/internal/models"
	"github.com/incidentstack/scout/internal/telemetry"
)

// TriageConfig tunes severity classification.
type TriageConfig struct {
	// ErrorRateThreshold escalates to critical when an error_rate metric
	// snapshot crosses it.
	ErrorRateThreshold float64
	// ConfidenceCap bounds triage confidence strictly below 1.0 to
	// reflect inherent triage uncertainty.
	ConfidenceCap float64
	// SnapshotWindow bounds the optional metric snapshot query.
	SnapshotWindow time.Duration
}

// TriageAgent classifies incident severity from symptoms and seeds the set
// of affected services. It moves an investigation from unclassified to
// classified and emits exactly one finding.
type TriageAgent struct {
	cfg    TriageConfig
	store  telemetry.Store
	logger *slog.Logger
}

// NewTriageAgent constructs a triage agent; store may be nil, in which case
// classification relies on symptoms alone.
func NewTriageAgent(cfg TriageConfig, store telemetry.Store, logger *slog.Logger) *TriageAgent {
	if cfg.ErrorRateThreshold <= 0 {
		cfg.ErrorRateThreshold = 0.1
	}
	if cfg.ConfidenceCap <= 0 || cfg.ConfidenceCap >= 1 {
		cfg.ConfidenceCap = 0.9
	}
	if cfg.SnapshotWindow <= 0 {
		cfg.SnapshotWindow = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TriageAgent{cfg: cfg, store: store, logger: logger}
}

// Role implements Agent.
func (a *TriageAgent) Role() models.AgentRole { return models.RoleTriage }

var severityKeywords = []struct {
	severity models.Severity
	keywords []string
}{
	{models.SeverityCritical, []string{"outage", "data_loss", "security_breach", "critical"}},
	{models.SeverityHigh, []string{"error_rate_spike", "high_latency", "timeout"}},
	{models.SeverityMedium, []string{"degraded_performance", "warning_increase"}},
}

// Investigate classifies severity using a fixed decision table. Ties break
// toward the higher tier; more agreeing signals raise confidence.
func (a *TriageAgent) Investigate(ctx context.Context, snap Snapshot) (Outcome, error) {
	severity := models.SeverityLow
	signals := 0
	var matched []string

	joined := strings.ToLower(strings.Join(snap.Symptoms, " "))
	for _, tier := range severityKeywords {
		for _, kw := range tier.keywords {
			if strings.Contains(joined, kw) {
				severity = models.MaxSeverity(severity, tier.severity)
				signals++
				matched = append(matched, kw)
			}
		}
	}

	evidence := make([]string, 0, len(snap.Symptoms)+1)
	for _, symptom := range snap.Symptoms {
		evidence = append(evidence, "symptom:"+symptom)
	}

	if rate, ok := a.metricSnapshot(ctx, snap); ok {
		evidence = append(evidence, fmt.Sprintf("metric:error_rate=%.3f", rate))
		if rate > a.cfg.ErrorRateThreshold {
			severity = models.SeverityCritical
			signals++
			matched = append(matched, "error_rate")
		}
	}

	confidence := 0.5
	if signals > 1 {
		confidence += 0.1 * float64(signals-1)
	}
	if confidence > a.cfg.ConfidenceCap {
		confidence = a.cfg.ConfidenceCap
	}

	finding := models.Finding{
		AgentRole:   models.RoleTriage,
		Timestamp:   time.Now().UTC(),
		Title:       fmt.Sprintf("Incident classified as %s", severity),
		Description: fmt.Sprintf("Matched signals [%s] across symptoms: %s", strings.Join(matched, ", "), strings.Join(snap.Symptoms, ", ")),
		Confidence:  models.ClampConfidence(confidence),
		Evidence:    evidence,
		ActionsSuggested: []string{
			fmt.Sprintf("Escalate to %s priority", severity),
			"Assign correlation and root-cause agents",
		},
	}

	return Outcome{
		Findings: []models.Finding{finding},
		Severity: severity,
		Services: servicesFromSymptoms(snap.Symptoms),
	}, nil
}

// metricSnapshot fetches an immediately available error-rate sample around
// the trigger time. Missing store or data is expected, not an error.
func (a *TriageAgent) metricSnapshot(ctx context.Context, snap Snapshot) (float64, bool) {
	if a.store == nil || snap.CorrelationID == "" {
		return 0, false
	}
	records, err := a.store.Query(ctx, models.TelemetryQuery{
		CorrelationID: snap.CorrelationID,
		Start:         snap.TriggerTime.Add(-a.cfg.SnapshotWindow),
		End:           snap.TriggerTime.Add(a.cfg.SnapshotWindow),
		SignalTypes:   []models.SignalType{models.SignalMetrics},
		Limit:         50,
	})
	if err != nil {
		a.logger.Warn("triage metric snapshot unavailable", slog.Any("error", err))
		return 0, false
	}

	max := 0.0
	found := false
	for _, record := range records {
		if record.PayloadString("metric") != "error_rate" {
			continue
		}
		if v, ok := record.PayloadFloat("value"); ok {
			found = true
			if v > max {
				max = v
			}
		}
	}
	return max, found
}

// servicesFromSymptoms extracts service names mentioned in symptom text,
// either explicitly ("service:payments") or via conventional naming
// ("payment-service errors").
func servicesFromSymptoms(symptoms []string) []string {
	var services []string
	seen := make(map[string]struct{})
	add := func(name string) {
		name = strings.Trim(name, ".,;: ")
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		services = append(services, name)
	}

	for _, symptom := range symptoms {
		for _, token := range strings.Fields(symptom) {
			token = strings.Trim(token, ".,;:()[]")
			switch {
			case strings.HasPrefix(token, "service:"):
				add(strings.TrimPrefix(token, "service:"))
			case strings.HasSuffix(token, "-service") || strings.HasSuffix(token, "-svc"):
				add(token)
			}
		}
	}
	return services
}
