package agents

import (
	"errors"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/incidentstack/scout/internal/models"
)

// SignatureRule describes one known root-cause signature the root-cause
// agent scans telemetry payloads for.
type SignatureRule struct {
	ID          string   `yaml:"id"`
	Description string   `yaml:"description"`
	// Patterns are matched case-insensitively against log messages and
	// other string payload fields.
	Patterns []string `yaml:"patterns"`
	// MetricKey/Threshold flag saturation-style signatures carried in
	// metric payloads rather than text.
	MetricKey string  `yaml:"metric_key"`
	Threshold float64 `yaml:"threshold"`
}

// RemediationEntry maps a root-cause signature to ordered recommended
// actions, most-recommended first.
type RemediationEntry struct {
	Signature string   `yaml:"signature"`
	Actions   []string `yaml:"actions"`
	// Impact is a non-binding estimated-impact annotation.
	Impact string `yaml:"impact"`
}

// Tables bundles the signature and remediation lookup tables. Both are
// configuration so they can be extended without code changes.
type Tables struct {
	Signatures   []SignatureRule    `yaml:"signatures"`
	Remediations []RemediationEntry `yaml:"remediations"`
}

// LoadTables reads tables from a YAML file, falling back to the built-in
// defaults when the path is empty or the file does not exist.
func LoadTables(path string) (Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultTables(), nil
		}
		return Tables{}, err
	}
	var tables Tables
	if err := yaml.Unmarshal(data, &tables); err != nil {
		return Tables{}, err
	}
	if len(tables.Signatures) == 0 {
		tables.Signatures = DefaultTables().Signatures
	}
	if len(tables.Remediations) == 0 {
		tables.Remediations = DefaultTables().Remediations
	}
	return tables, nil
}

// DefaultTables returns the built-in signature and remediation tables.
func DefaultTables() Tables {
	return Tables{
		Signatures: []SignatureRule{
			{
				ID:          "pool_exhausted",
				Description: "Database or client connection pool exhausted",
				Patterns:    []string{"pool exhausted", "poolexhaustederror", "connections in use", "too many connections"},
			},
			{
				ID:          "timeout",
				Description: "Downstream calls timing out",
				Patterns:    []string{"timeout", "timed out", "deadline exceeded"},
			},
			{
				ID:          "resource_saturation",
				Description: "Resource saturation above safe threshold",
				Patterns:    []string{"out of memory", "oom", "saturation"},
				MetricKey:   "utilization",
				Threshold:   0.9,
			},
		},
		Remediations: []RemediationEntry{
			{
				Signature: "pool_exhausted",
				Actions: []string{
					"Increase the connection pool size",
					"Check for connection leaks",
					"Roll restart the affected service",
				},
				Impact: "Low risk; pool resize typically takes effect within minutes",
			},
			{
				Signature: "timeout",
				Actions: []string{
					"Review downstream dependency latency",
					"Tune client timeouts and retry budgets",
				},
				Impact: "Config-only change; verify retry amplification first",
			},
			{
				Signature: "resource_saturation",
				Actions: []string{
					"Scale out the affected service",
					"Review recent deployments for resource regressions",
				},
				Impact: "Scaling adds capacity within one rollout cycle",
			},
		},
	}
}

// FindSignature returns the rule with the given ID.
func (t Tables) FindSignature(id string) (SignatureRule, bool) {
	for _, rule := range t.Signatures {
		if rule.ID == id {
			return rule, true
		}
	}
	return SignatureRule{}, false
}

// FindRemediation returns the remediation entry keyed by signature ID.
func (t Tables) FindRemediation(signature string) (RemediationEntry, bool) {
	for _, entry := range t.Remediations {
		if entry.Signature == signature {
			return entry, true
		}
	}
	return RemediationEntry{}, false
}

// MatchesRecord reports whether the rule matches a telemetry record, by
// payload text patterns or by metric threshold.
func (r SignatureRule) MatchesRecord(record models.TelemetryRecord) bool {
	for _, key := range []string{"message", "error", "operation"} {
		value := strings.ToLower(record.PayloadString(key))
		if value == "" {
			continue
		}
		for _, pattern := range r.Patterns {
			if strings.Contains(value, strings.ToLower(pattern)) {
				return true
			}
		}
	}
	if r.MetricKey != "" {
		if v, ok := record.PayloadFloat(r.MetricKey); ok && v >= r.Threshold {
			return true
		}
	}
	return false
}
