package models

import (
	"fmt"
	"strings"
	"time"
)

// SignalType enumerates telemetry signal categories.
type SignalType string

const (
	SignalLogs    SignalType = "logs"
	SignalTraces  SignalType = "traces"
	SignalMetrics SignalType = "metrics"
)

// AllSignals lists every signal type a store can be queried for.
func AllSignals() []SignalType {
	return []SignalType{SignalLogs, SignalTraces, SignalMetrics}
}

// TelemetryQuery bounds a read against the telemetry store.
type TelemetryQuery struct {
	CorrelationID string       `json:"correlation_id"`
	ServiceName   string       `json:"service_name,omitempty"`
	Start         time.Time    `json:"start"`
	End           time.Time    `json:"end"`
	SignalTypes   []SignalType `json:"signal_types"`
	Limit         int          `json:"limit"`
}

// TelemetryRecord is a loosely typed envelope around a single telemetry
// datum. Payload structure is adapter specific; consumers must treat
// missing keys as expected rather than exceptional.
type TelemetryRecord struct {
	SignalType  SignalType     `json:"signal_type"`
	Timestamp   time.Time      `json:"timestamp"`
	ServiceName string         `json:"service_name"`
	Payload     map[string]any `json:"payload"`
}

// PayloadString extracts a string payload field, returning "" when the key
// is absent or holds a non-string value.
func (r TelemetryRecord) PayloadString(key string) string {
	if r.Payload == nil {
		return ""
	}
	if v, ok := r.Payload[key].(string); ok {
		return v
	}
	return ""
}

// PayloadFloat extracts a numeric payload field.
func (r TelemetryRecord) PayloadFloat(key string) (float64, bool) {
	if r.Payload == nil {
		return 0, false
	}
	switch v := r.Payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// IsError reports whether the record describes a failed operation, checking
// the conventional status/severity/level payload keys.
func (r TelemetryRecord) IsError() bool {
	for _, key := range []string{"status", "severity", "level"} {
		v := strings.ToLower(r.PayloadString(key))
		if v == "error" || v == "critical" || v == "fatal" {
			return true
		}
	}
	return false
}

// Ref renders a stable evidence reference for the record.
func (r TelemetryRecord) Ref() string {
	summary := r.PayloadString("message")
	if summary == "" {
		summary = r.PayloadString("operation")
	}
	if summary == "" {
		summary = r.PayloadString("metric")
	}
	if summary != "" {
		return fmt.Sprintf("%s/%s@%s: %s", r.SignalType, r.ServiceName, r.Timestamp.UTC().Format(time.RFC3339), summary)
	}
	return fmt.Sprintf("%s/%s@%s", r.SignalType, r.ServiceName, r.Timestamp.UTC().Format(time.RFC3339))
}
