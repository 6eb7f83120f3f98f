package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/incidentstack/scout/internal/cache"
	"github.com/incidentstack/scout/internal/models"
)

func queryServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPStoreQuery(t *testing.T) {
	srv := queryServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/telemetry/query" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key-1" {
			t.Errorf("missing auth header")
		}
		var q models.TelemetryQuery
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			t.Errorf("decode query: %v", err)
		}
		if q.CorrelationID != "abc" {
			t.Errorf("correlation ID not forwarded: %+v", q)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{
				{
					"signal_type":  "logs",
					"timestamp":    time.Now().UTC().Format(time.RFC3339),
					"service_name": "payments",
					"payload":      map[string]any{"message": "pool exhausted"},
				},
			},
		})
	})

	store := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL, APIKey: "key-1"}, nil)
	records, err := store.Query(context.Background(), models.TelemetryQuery{CorrelationID: "abc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || records[0].ServiceName != "payments" {
		t.Fatalf("unexpected records: %+v", records)
	}
	if records[0].PayloadString("message") != "pool exhausted" {
		t.Fatalf("payload lost: %+v", records[0])
	}
}

func TestHTTPStoreEmptyResultIsNotAnError(t *testing.T) {
	srv := queryServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"records": []any{}})
	})

	store := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL}, nil)
	records, err := store.Query(context.Background(), models.TelemetryQuery{})
	if err != nil {
		t.Fatalf("empty result must not error: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestHTTPStoreServerErrorIsUnavailable(t *testing.T) {
	srv := queryServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	store := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL}, nil)
	_, err := store.Query(context.Background(), models.TelemetryQuery{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPStoreAuthRejectionIsUnavailable(t *testing.T) {
	srv := queryServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	store := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL}, nil)
	_, err := store.Query(context.Background(), models.TelemetryQuery{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPStoreMissingBaseURL(t *testing.T) {
	store := NewHTTPStore(HTTPStoreConfig{}, nil)
	_, err := store.Query(context.Background(), models.TelemetryQuery{})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestHTTPStoreCachesIdenticalQueries(t *testing.T) {
	hits := 0
	srv := queryServer(t, func(w http.ResponseWriter, _ *http.Request) {
		hits++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"records": []map[string]any{
				{
					"signal_type":  "metrics",
					"timestamp":    time.Now().UTC().Format(time.RFC3339),
					"service_name": "checkout",
					"payload":      map[string]any{"metric": "error_rate", "value": 0.2},
				},
			},
		})
	})

	store := NewHTTPStore(HTTPStoreConfig{BaseURL: srv.URL, CacheTTL: time.Minute}, cache.NewMemoryProvider())
	q := models.TelemetryQuery{CorrelationID: "abc", Limit: 10}

	if _, err := store.Query(context.Background(), q); err != nil {
		t.Fatalf("first query: %v", err)
	}
	records, err := store.Query(context.Background(), q)
	if err != nil {
		t.Fatalf("second query: %v", err)
	}
	if hits != 1 {
		t.Fatalf("cache miss triggered a second backend call; hits=%d", hits)
	}
	if len(records) != 1 || records[0].ServiceName != "checkout" {
		t.Fatalf("cached records corrupted: %+v", records)
	}
}
