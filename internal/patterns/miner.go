// Package patterns mines recurring root-cause signatures from completed
// investigation reports, so repeat offenders surface without re-running
// investigations.
package patterns

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/incidentstack/scout/internal/models"
)

// Store abstracts persistence for mined patterns.
type Store interface {
	StorePatterns(ctx context.Context, patterns []models.SignaturePattern) error
}

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, patterns []models.SignaturePattern) error

// StorePatterns implements Store.
func (f StoreFunc) StorePatterns(ctx context.Context, patterns []models.SignaturePattern) error {
	return f(ctx, patterns)
}

// Miner aggregates signature frequency per service across reports.
type Miner struct {
	store  Store
	logger *slog.Logger
}

// NewMiner constructs a Miner; store may be nil for dry runs.
func NewMiner(logger *slog.Logger, store Store) *Miner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Miner{store: store, logger: logger}
}

const signaturePrefix = "signature:"

// Mine analyses reports and returns signature patterns ordered by
// prevalence. Only root-cause findings that cite a signature contribute.
func (m *Miner) Mine(ctx context.Context, reports []models.InvestigationReport) ([]models.SignaturePattern, error) {
	if len(reports) == 0 {
		return nil, nil
	}

	type aggregate struct {
		occurrences int
		lastSeen    time.Time
		sampleTitle string
	}
	stats := make(map[string]*aggregate)

	for _, report := range reports {
		service := primaryService(report)
		for _, finding := range report.Findings {
			if finding.AgentRole != models.RoleRootCause {
				continue
			}
			for _, ev := range finding.Evidence {
				if !strings.HasPrefix(ev, signaturePrefix) {
					continue
				}
				signature := strings.TrimPrefix(ev, signaturePrefix)
				key := service + "\x00" + signature
				agg, ok := stats[key]
				if !ok {
					agg = &aggregate{sampleTitle: finding.Title}
					stats[key] = agg
				}
				agg.occurrences++
				if report.CompletedAt.After(agg.lastSeen) {
					agg.lastSeen = report.CompletedAt
				}
			}
		}
	}

	patterns := make([]models.SignaturePattern, 0, len(stats))
	for key, agg := range stats {
		service, signature, _ := strings.Cut(key, "\x00")
		patterns = append(patterns, models.SignaturePattern{
			ID:          "pattern-" + service + "-" + signature,
			Service:     service,
			Signature:   signature,
			Occurrences: agg.occurrences,
			Prevalence:  float64(agg.occurrences) / float64(len(reports)),
			LastSeen:    agg.lastSeen,
			SampleTitle: agg.sampleTitle,
		})
	}

	sort.Slice(patterns, func(i, j int) bool {
		if patterns[i].Prevalence != patterns[j].Prevalence {
			return patterns[i].Prevalence > patterns[j].Prevalence
		}
		return patterns[i].ID < patterns[j].ID
	})

	if m.store != nil && len(patterns) > 0 {
		if err := m.store.StorePatterns(ctx, patterns); err != nil {
			m.logger.Warn("pattern store failed", slog.Any("error", err))
		}
	}

	return patterns, nil
}

func primaryService(report models.InvestigationReport) string {
	if len(report.AffectedServices) == 0 {
		return "unknown"
	}
	return report.AffectedServices[0]
}
