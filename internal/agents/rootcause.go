package agents

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/incidentstack/scout/internal/models"
	"github.com/incidentstack/scout/internal/telemetry"
	"github.com/incidentstack/scout/internal/utils"
)

// RootCauseConfig tunes the focused signature scan.
type RootCauseConfig struct {
	LookBack             time.Duration
	LookForward          time.Duration
	MaxEvidence          int
	EvidenceDisplayLimit int
	// AmbiguityRatio: when the runner-up signature matched at least this
	// share of the top signature's evidence, both are reported.
	AmbiguityRatio float64
}

// RootCauseAgent scans telemetry from the suspected origin service for
// known failure signatures and produces confidence-scored hypotheses.
type RootCauseAgent struct {
	cfg    RootCauseConfig
	store  telemetry.Store
	tables Tables
	logger *slog.Logger
}

// NewRootCauseAgent constructs a root-cause agent.
func NewRootCauseAgent(cfg RootCauseConfig, store telemetry.Store, tables Tables, logger *slog.Logger) *RootCauseAgent {
	if cfg.LookBack <= 0 {
		cfg.LookBack = 30 * time.Minute
	}
	if cfg.LookForward <= 0 {
		cfg.LookForward = 5 * time.Minute
	}
	if cfg.MaxEvidence <= 0 {
		cfg.MaxEvidence = 200
	}
	if cfg.EvidenceDisplayLimit <= 0 {
		cfg.EvidenceDisplayLimit = 10
	}
	if cfg.AmbiguityRatio <= 0 || cfg.AmbiguityRatio > 1 {
		cfg.AmbiguityRatio = 0.8
	}
	if len(tables.Signatures) == 0 {
		tables = DefaultTables()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RootCauseAgent{cfg: cfg, store: store, tables: tables, logger: logger}
}

// Role implements Agent.
func (a *RootCauseAgent) Role() models.AgentRole { return models.RoleRootCause }

// Investigate always yields at least one finding so callers can tell the
// phase ran, even when no signature matches.
func (a *RootCauseAgent) Investigate(ctx context.Context, snap Snapshot) (Outcome, error) {
	suspect := OriginServiceFromFindings(snap.FindingsByRole(models.RoleCorrelation))
	if suspect == "" && len(snap.AffectedServices) > 0 {
		suspect = snap.AffectedServices[0]
	}

	var records []models.TelemetryRecord
	if a.store != nil && snap.CorrelationID != "" {
		var err error
		start, end := utils.InvestigationWindow(snap.TriggerTime, a.cfg.LookBack, a.cfg.LookForward)
		records, err = a.store.Query(ctx, models.TelemetryQuery{
			CorrelationID: snap.CorrelationID,
			ServiceName:   suspect,
			Start:         start,
			End:           end,
			SignalTypes:   []models.SignalType{models.SignalLogs, models.SignalMetrics},
			Limit:         a.cfg.MaxEvidence,
		})
		if err != nil {
			return Outcome{}, err
		}
	}

	matches := a.scanSignatures(records)
	if len(matches) == 0 {
		return Outcome{Findings: []models.Finding{{
			AgentRole:   models.RoleRootCause,
			Timestamp:   time.Now().UTC(),
			Title:       "No root cause signature identified",
			Description: noMatchDescription(suspect, len(records)),
			Confidence:  0.2,
			Evidence:    []string{fmt.Sprintf("scanned:%d records", len(records))},
			ActionsSuggested: []string{
				"Widen the telemetry window and re-run the investigation",
				"Inspect the suspected service manually",
			},
		}}}, nil
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].count > matches[j].count })

	ambiguous := len(matches) > 1 &&
		float64(matches[1].count) >= a.cfg.AmbiguityRatio*float64(matches[0].count)

	reported := matches[:1]
	if ambiguous {
		reported = matches[:2]
	}

	totalReported := 0
	for _, m := range reported {
		totalReported += m.count
	}

	outcome := Outcome{}
	for _, m := range reported {
		base := hypothesisConfidence(m.count, len(records))
		confidence := base
		if ambiguous {
			// Split the combined confidence proportionally instead of
			// silently picking one hypothesis.
			confidence = base * float64(m.count) / float64(totalReported)
		}

		evidence := append([]string{signatureRef + m.rule.ID}, m.refs...)
		title := fmt.Sprintf("Root cause hypothesis: %s", m.rule.Description)
		description := fmt.Sprintf("Signature %q matched %d independent evidence items on %s.", m.rule.ID, m.count, orUnknown(suspect))
		if ambiguous {
			title += " (ambiguous)"
			description += " Multiple signatures matched comparably; review both hypotheses."
		}

		outcome.Findings = append(outcome.Findings, models.Finding{
			AgentRole:   models.RoleRootCause,
			Timestamp:   time.Now().UTC(),
			Title:       title,
			Description: description,
			Confidence:  models.ClampConfidence(confidence),
			Evidence:    evidence,
			ActionsSuggested: []string{
				"Verify the hypothesis against the cited evidence",
				"Proceed with remediation",
			},
		})
	}
	return outcome, nil
}

type signatureMatch struct {
	rule  SignatureRule
	count int
	refs  []string
}

func (a *RootCauseAgent) scanSignatures(records []models.TelemetryRecord) []signatureMatch {
	var matches []signatureMatch
	for _, rule := range a.tables.Signatures {
		count := 0
		var refs []string
		for _, record := range records {
			if !rule.MatchesRecord(record) {
				continue
			}
			count++
			if len(refs) < a.cfg.EvidenceDisplayLimit {
				refs = append(refs, record.Ref())
			}
		}
		if count > 0 {
			matches = append(matches, signatureMatch{rule: rule, count: count, refs: refs})
		}
	}
	return matches
}

// hypothesisConfidence scales the evidence share into [0.3, 0.95]: a single
// match is a weak hypothesis, full agreement still leaves headroom.
func hypothesisConfidence(matched, scanned int) float64 {
	if scanned == 0 {
		return 0.3
	}
	ratio := float64(matched) / float64(scanned)
	return 0.3 + 0.65*ratio
}

func noMatchDescription(suspect string, scanned int) string {
	if suspect == "" {
		return fmt.Sprintf("Scanned %d records with no suspect service identified; no known failure signature matched.", scanned)
	}
	return fmt.Sprintf("Scanned %d records from %s; no known failure signature matched.", scanned, suspect)
}

func orUnknown(s string) string {
	if s == "" {
		return "an unidentified service"
	}
	return s
}
