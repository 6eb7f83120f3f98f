package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/incidentstack/scout/internal/models"
	"github.com/incidentstack/scout/internal/telemetry"
	"github.com/incidentstack/scout/internal/utils"
)

// CorrelationConfig tunes telemetry gathering and cascade detection.
type CorrelationConfig struct {
	// LookBack/LookForward bound the query window around the trigger time.
	LookBack    time.Duration
	LookForward time.Duration
	// MaxEvidence caps the number of records pulled per investigation.
	MaxEvidence int
	// CascadeGap is the maximum delay between an upstream error and a
	// downstream error for the pair to count as temporally adjacent.
	CascadeGap time.Duration
	// EvidenceDisplayLimit caps evidence references kept on a finding.
	EvidenceDisplayLimit int
}

// CorrelationAgent gathers telemetry linked by the correlation ID and looks
// for cascading-failure patterns between services.
type CorrelationAgent struct {
	cfg    CorrelationConfig
	store  telemetry.Store
	logger *slog.Logger
}

// NewCorrelationAgent constructs a correlation agent.
func NewCorrelationAgent(cfg CorrelationConfig, store telemetry.Store, logger *slog.Logger) *CorrelationAgent {
	if cfg.LookBack <= 0 {
		cfg.LookBack = 30 * time.Minute
	}
	if cfg.LookForward <= 0 {
		cfg.LookForward = 5 * time.Minute
	}
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = 200
	}
	if cfg.CascadeGap <= 0 {
		cfg.CascadeGap = 10 * time.Second
	}
	if cfg.EvidenceDisplayLimit <= 0 {
		cfg.EvidenceDisplayLimit = 10
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CorrelationAgent{cfg: cfg, store: store, logger: logger}
}

// Role implements Agent.
func (a *CorrelationAgent) Role() models.AgentRole { return models.RoleCorrelation }

// Investigate pulls correlated records and flags temporal-adjacency
// cascades. An empty correlation ID skips querying entirely.
func (a *CorrelationAgent) Investigate(ctx context.Context, snap Snapshot) (Outcome, error) {
	if snap.CorrelationID == "" {
		return Outcome{Findings: []models.Finding{{
			AgentRole:   models.RoleCorrelation,
			Timestamp:   time.Now().UTC(),
			Title:       "Telemetry correlation skipped",
			Description: "No correlation ID on the incident trigger; telemetry queries were not issued.",
			Confidence:  0.1,
			Evidence:    []string{"trigger:correlation_id absent"},
		}}}, nil
	}
	if a.store == nil {
		return Outcome{}, fmt.Errorf("correlation: %w", telemetry.ErrUnavailable)
	}

	start, end := utils.InvestigationWindow(snap.TriggerTime, a.cfg.LookBack, a.cfg.LookForward)
	records, err := a.store.Query(ctx, models.TelemetryQuery{
		CorrelationID: snap.CorrelationID,
		Start:         start,
		End:           end,
		SignalTypes:   models.AllSignals(),
		Limit:         a.cfg.MaxEvidence,
	})
	if err != nil {
		return Outcome{}, err
	}

	outcome := Outcome{Services: distinctServices(records)}

	evidence := make([]string, 0, a.cfg.EvidenceDisplayLimit)
	for _, record := range records {
		if len(evidence) >= a.cfg.EvidenceDisplayLimit {
			break
		}
		evidence = append(evidence, record.Ref())
	}
	if len(evidence) == 0 {
		evidence = []string{fmt.Sprintf("query:correlation_id=%s returned no records", snap.CorrelationID)}
	}

	counts := countSignals(records)
	outcome.Findings = append(outcome.Findings, models.Finding{
		AgentRole: models.RoleCorrelation,
		Timestamp: time.Now().UTC(),
		Title:     fmt.Sprintf("Found %d correlated telemetry records", len(records)),
		Description: fmt.Sprintf("Correlation ID %s linked %d log, %d trace, and %d metric records across %d services.",
			snap.CorrelationID, counts[models.SignalLogs], counts[models.SignalTraces], counts[models.SignalMetrics], len(outcome.Services)),
		Confidence: correlationConfidence(len(records), a.cfg.MaxEvidence),
		Evidence:   evidence,
		ActionsSuggested: []string{
			"Analyze trace spans for bottlenecks",
			"Review error logs for root cause",
		},
	})

	if cascade, ok := a.detectCascade(records); ok {
		cascadeEvidence := append([]string{originServiceRef + cascade.origin}, cascade.sampleRefs...)
		outcome.Findings = append(outcome.Findings, models.Finding{
			AgentRole: models.RoleCorrelation,
			Timestamp: time.Now().UTC(),
			Title:     fmt.Sprintf("Possible cascading failure originating at %s", cascade.origin),
			Description: fmt.Sprintf("%s errors precede %s errors within %s in %d of %d paired samples.",
				cascade.origin, cascade.downstream, a.cfg.CascadeGap, cascade.adjacent, cascade.examined),
			Confidence: models.ClampConfidence(float64(cascade.adjacent) / float64(cascade.examined)),
			Evidence:   cascadeEvidence,
			ActionsSuggested: []string{
				fmt.Sprintf("Investigate %s as the suspected origin", cascade.origin),
				"Review the service dependency graph",
			},
		})
	}

	return outcome, nil
}

type cascadeCandidate struct {
	origin     string
	downstream string
	adjacent   int
	examined   int
	sampleRefs []string
}

// detectCascade pairs error records between every ordered service pair and
// keeps the pair with the highest temporal-adjacency ratio.
func (a *CorrelationAgent) detectCascade(records []models.TelemetryRecord) (cascadeCandidate, bool) {
	errorsByService := make(map[string][]models.TelemetryRecord)
	for _, record := range records {
		if record.ServiceName == "" || !record.IsError() {
			continue
		}
		errorsByService[record.ServiceName] = append(errorsByService[record.ServiceName], record)
	}
	if len(errorsByService) < 2 {
		return cascadeCandidate{}, false
	}
	for _, recs := range errorsByService {
		sort.SliceStable(recs, func(i, j int) bool { return recs[i].Timestamp.Before(recs[j].Timestamp) })
	}

	services := make([]string, 0, len(errorsByService))
	for svc := range errorsByService {
		services = append(services, svc)
	}
	sort.Strings(services)

	var best cascadeCandidate
	for _, upstream := range services {
		for _, downstream := range services {
			if upstream == downstream {
				continue
			}
			up := errorsByService[upstream]
			down := errorsByService[downstream]
			examined := len(up)
			if len(down) < examined {
				examined = len(down)
			}

			adjacent := 0
			var refs []string
			for i := 0; i < examined; i++ {
				delta := down[i].Timestamp.Sub(up[i].Timestamp)
				if delta > 0 && delta <= a.cfg.CascadeGap {
					adjacent++
					if len(refs) < 3 {
						refs = append(refs, up[i].Ref(), down[i].Ref())
					}
				}
			}
			if adjacent == 0 {
				continue
			}

			candidate := cascadeCandidate{
				origin:     upstream,
				downstream: downstream,
				adjacent:   adjacent,
				examined:   examined,
				sampleRefs: refs,
			}
			if better(candidate, best) {
				best = candidate
			}
		}
	}
	return best, best.adjacent > 0
}

func better(a, b cascadeCandidate) bool {
	if b.examined == 0 {
		return true
	}
	ra := float64(a.adjacent) / float64(a.examined)
	rb := float64(b.adjacent) / float64(b.examined)
	if ra != rb {
		return ra > rb
	}
	return a.examined > b.examined
}

// correlationConfidence grows with the share of the evidence budget filled;
// any correlated data at all is worth a floor of 0.3.
func correlationConfidence(found, limit int) float64 {
	if found == 0 {
		return 0.2
	}
	return models.ClampConfidence(0.3 + 0.6*float64(found)/float64(limit))
}

func distinctServices(records []models.TelemetryRecord) []string {
	seen := make(map[string]struct{})
	var services []string
	for _, record := range records {
		name := strings.TrimSpace(record.ServiceName)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		services = append(services, name)
	}
	sort.Strings(services)
	return services
}

func countSignals(records []models.TelemetryRecord) map[models.SignalType]int {
	counts := make(map[models.SignalType]int, 3)
	for _, record := range records {
		counts[record.SignalType]++
	}
	return counts
}
