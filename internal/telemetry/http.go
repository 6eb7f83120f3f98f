package telemetry

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/incidentstack/scout/internal/cache"
	"github.com/incidentstack/scout/internal/metrics"
	"github.com/incidentstack/scout/internal/models"
)

// HTTPStoreConfig configures the HTTP-backed telemetry store client.
type HTTPStoreConfig struct {
	BaseURL   string
	QueryPath string
	APIKey    string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// HTTPStore queries a telemetry aggregation API over HTTP JSON. Transport
// and auth failures surface as ErrUnavailable; a circuit breaker sheds load
// from a backend that keeps failing.
type HTTPStore struct {
	cfg        HTTPStoreConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	cache      cache.Provider
}

// NewHTTPStore constructs a store client targeting the configured backend.
func NewHTTPStore(cfg HTTPStoreConfig, cacheProvider cache.Provider) *HTTPStore {
	if cfg.QueryPath == "" {
		cfg.QueryPath = "/api/v1/telemetry/query"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "telemetry-store",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})
	return &HTTPStore{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		breaker:    breaker,
		cache:      cacheProvider,
	}
}

type queryResponse struct {
	Records []struct {
		SignalType  models.SignalType `json:"signal_type"`
		Timestamp   time.Time         `json:"timestamp"`
		ServiceName string            `json:"service_name"`
		Payload     map[string]any    `json:"payload"`
	} `json:"records"`
}

// Query implements Store. Results for identical queries are cached for the
// configured TTL so repeated phases within one incident window stay cheap.
func (s *HTTPStore) Query(ctx context.Context, q models.TelemetryQuery) ([]models.TelemetryRecord, error) {
	if s.cfg.BaseURL == "" {
		return nil, fmt.Errorf("%w: base URL not configured", ErrUnavailable)
	}

	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshal query: %w", err)
	}

	cacheKey := queryCacheKey(body)
	if s.cfg.CacheTTL > 0 {
		if cached, err := s.cache.Get(ctx, cacheKey); err == nil {
			var records []models.TelemetryRecord
			if err := json.Unmarshal(cached, &records); err == nil {
				return records, nil
			}
		}
	}

	result, err := s.breaker.Execute(func() (any, error) {
		return s.doQuery(ctx, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.ObserveTelemetryQuery(metrics.OutcomeError)
			return nil, fmt.Errorf("%w: circuit open", ErrUnavailable)
		}
		metrics.ObserveTelemetryQuery(metrics.OutcomeError)
		return nil, err
	}
	records := result.([]models.TelemetryRecord)
	metrics.ObserveTelemetryQuery(metrics.OutcomeSuccess)

	if s.cfg.CacheTTL > 0 && len(records) > 0 {
		if data, err := json.Marshal(records); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, s.cfg.CacheTTL)
		}
	}
	return records, nil
}

func (s *HTTPStore) doQuery(ctx context.Context, body []byte) ([]models.TelemetryRecord, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.queryURL(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%w: auth rejected (%s)", ErrUnavailable, resp.Status)
	default:
		return nil, fmt.Errorf("%w: backend returned %s", ErrUnavailable, resp.Status)
	}

	var decoded queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	records := make([]models.TelemetryRecord, 0, len(decoded.Records))
	for _, r := range decoded.Records {
		records = append(records, models.TelemetryRecord{
			SignalType:  r.SignalType,
			Timestamp:   r.Timestamp,
			ServiceName: r.ServiceName,
			Payload:     r.Payload,
		})
	}
	return records, nil
}

func (s *HTTPStore) queryURL() string {
	cleaned := "/" + strings.TrimLeft(s.cfg.QueryPath, "/")
	u, err := url.Parse(strings.TrimRight(s.cfg.BaseURL, "/"))
	if err != nil {
		return strings.TrimRight(s.cfg.BaseURL, "/") + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func queryCacheKey(body []byte) string {
	sum := sha256.Sum256(body)
	return "telemetry:query:" + hex.EncodeToString(sum[:])
}
