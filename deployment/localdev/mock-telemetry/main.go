package main

import (
	"encoding/json"
	"log"
	"net/http"
	"time"
)

type telemetryQuery struct {
	CorrelationID string   `json:"correlation_id"`
	ServiceName   string   `json:"service_name"`
	SignalTypes   []string `json:"signal_types"`
	Limit         int      `json:"limit"`
}

type telemetryRecord struct {
	SignalType  string         `json:"signal_type"`
	Timestamp   time.Time      `json:"timestamp"`
	ServiceName string         `json:"service_name"`
	Payload     map[string]any `json:"payload"`
}

// fixtureRecords fabricates a cascade: the database pool saturates first,
// then payments and checkout start failing a few seconds apart.
func fixtureRecords(correlationID string) []telemetryRecord {
	base := time.Now().Add(-5 * time.Minute)
	mk := func(offset time.Duration, signal, service string, payload map[string]any) telemetryRecord {
		if correlationID != "" {
			payload["correlation_id"] = correlationID
		}
		return telemetryRecord{
			SignalType:  signal,
			Timestamp:   base.Add(offset),
			ServiceName: service,
			Payload:     payload,
		}
	}

	return []telemetryRecord{
		mk(0, "metrics", "payments-db", map[string]any{"metric": "pool_in_use", "value": 100.0}),
		mk(1*time.Second, "logs", "payments-db", map[string]any{"message": "connection pool exhausted", "severity": "error"}),
		mk(4*time.Second, "logs", "payments", map[string]any{"message": "timeout acquiring connection", "severity": "error"}),
		mk(6*time.Second, "traces", "payments", map[string]any{"operation": "DB acquire", "status": "error", "duration_ms": 5000.0}),
		mk(9*time.Second, "logs", "checkout", map[string]any{"message": "payments call failed", "severity": "error"}),
		mk(11*time.Second, "metrics", "checkout", map[string]any{"metric": "error_rate", "value": 0.35}),
	}
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/telemetry/query", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var q telemetryQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		records := fixtureRecords(q.CorrelationID)
		filtered := records[:0]
		for _, rec := range records {
			if q.ServiceName != "" && rec.ServiceName != q.ServiceName {
				continue
			}
			if len(q.SignalTypes) > 0 && !contains(q.SignalTypes, rec.SignalType) {
				continue
			}
			filtered = append(filtered, rec)
		}
		if q.Limit > 0 && len(filtered) > q.Limit {
			filtered = filtered[:q.Limit]
		}

		writeJSON(w, map[string]any{"records": filtered})
	})

	logger := log.New(log.Writer(), "telemetry-mock ", log.LstdFlags|log.Lmicroseconds)
	srv := &http.Server{
		Addr:    ":9090",
		Handler: logRequests(logger, mux),
	}

	logger.Println("listening on :9090")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("server error: %v", err)
	}
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("encode error: %v", err)
	}
}

func logRequests(logger *log.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		logger.Printf("%s %s %d %s", r.Method, r.URL.Path, rw.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
