package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/incidentstack/scout/internal/cache"
	"github.com/incidentstack/scout/internal/models"
)

// ErrReportNotFound signals that no report exists for an incident ID.
var ErrReportNotFound = errors.New("report not found")

// HistoryStore persists completed investigation reports and serves
// similarity lookups over them.
type HistoryStore interface {
	StoreReport(ctx context.Context, report models.InvestigationReport) error
	GetReport(ctx context.Context, incidentID string) (models.InvestigationReport, error)
	SimilarIncidents(ctx context.Context, symptoms []string, limit int) ([]models.InvestigationReport, error)
	RecentReports(ctx context.Context, limit int) ([]models.InvestigationReport, error)
}

// HTTPHistory talks to an incident history service over HTTP JSON, caching
// similarity lookups.
type HTTPHistory struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	cache      cache.Provider
	similarTTL time.Duration
}

// NewHTTPHistory constructs a history client.
func NewHTTPHistory(endpoint, apiKey string, timeout time.Duration, cacheProvider cache.Provider, similarTTL time.Duration) *HTTPHistory {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &HTTPHistory{
		endpoint:   strings.TrimRight(endpoint, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		cache:      cacheProvider,
		similarTTL: similarTTL,
	}
}

// StoreReport persists one report.
func (h *HTTPHistory) StoreReport(ctx context.Context, report models.InvestigationReport) error {
	if h.endpoint == "" {
		return nil
	}
	return h.roundTrip(ctx, http.MethodPost, "/v1/reports", report, nil)
}

// GetReport fetches a report by incident ID.
func (h *HTTPHistory) GetReport(ctx context.Context, incidentID string) (models.InvestigationReport, error) {
	var report models.InvestigationReport
	if h.endpoint == "" {
		return report, ErrReportNotFound
	}
	err := h.roundTrip(ctx, http.MethodGet, "/v1/reports/"+incidentID, nil, &report)
	return report, err
}

// SimilarIncidents returns past reports with overlapping symptoms.
func (h *HTTPHistory) SimilarIncidents(ctx context.Context, symptoms []string, limit int) ([]models.InvestigationReport, error) {
	if h.endpoint == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 3
	}

	cacheKey := fmt.Sprintf("history:similar:%d:%s", limit, strings.Join(symptoms, "|"))
	if h.similarTTL > 0 {
		if cached, err := h.cache.Get(ctx, cacheKey); err == nil {
			var reports []models.InvestigationReport
			if err := json.Unmarshal(cached, &reports); err == nil {
				return reports, nil
			}
		}
	}

	payload := map[string]any{"symptoms": symptoms, "limit": limit}
	var response struct {
		Reports []models.InvestigationReport `json:"reports"`
	}
	if err := h.roundTrip(ctx, http.MethodPost, "/v1/reports/similar", payload, &response); err != nil {
		return nil, err
	}

	if h.similarTTL > 0 && len(response.Reports) > 0 {
		if data, err := json.Marshal(response.Reports); err == nil {
			_ = h.cache.Set(ctx, cacheKey, data, h.similarTTL)
		}
	}
	return response.Reports, nil
}

// RecentReports lists the most recent reports, newest first.
func (h *HTTPHistory) RecentReports(ctx context.Context, limit int) ([]models.InvestigationReport, error) {
	if h.endpoint == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	var response struct {
		Reports []models.InvestigationReport `json:"reports"`
	}
	path := fmt.Sprintf("/v1/reports?limit=%d", limit)
	if err := h.roundTrip(ctx, http.MethodGet, path, nil, &response); err != nil {
		return nil, err
	}
	return response.Reports, nil
}

func (h *HTTPHistory) roundTrip(ctx context.Context, method, path string, payload, out any) error {
	var body *bytes.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, h.endpoint+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+h.apiKey)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
	case http.StatusNotFound:
		return ErrReportNotFound
	default:
		return fmt.Errorf("history service returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// MemoryHistory keeps reports in process. It backs one-shot CLI runs and
// deployments without a history service.
type MemoryHistory struct {
	mu      sync.RWMutex
	reports []models.InvestigationReport
	byID    map[string]int
	maxSize int
}

// NewMemoryHistory creates a bounded in-memory history.
func NewMemoryHistory(maxSize int) *MemoryHistory {
	if maxSize <= 0 {
		maxSize = 1024
	}
	return &MemoryHistory{byID: make(map[string]int), maxSize: maxSize}
}

// StoreReport implements HistoryStore. A re-run of the same incident
// replaces its previous report.
func (m *MemoryHistory) StoreReport(_ context.Context, report models.InvestigationReport) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.byID[report.IncidentID]; ok {
		m.reports[idx] = report
		return nil
	}
	if len(m.reports) >= m.maxSize {
		evicted := m.reports[0]
		m.reports = m.reports[1:]
		delete(m.byID, evicted.IncidentID)
		for id, idx := range m.byID {
			m.byID[id] = idx - 1
		}
	}
	m.byID[report.IncidentID] = len(m.reports)
	m.reports = append(m.reports, report)
	return nil
}

// GetReport implements HistoryStore.
func (m *MemoryHistory) GetReport(_ context.Context, incidentID string) (models.InvestigationReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	idx, ok := m.byID[incidentID]
	if !ok {
		return models.InvestigationReport{}, ErrReportNotFound
	}
	return m.reports[idx], nil
}

// SimilarIncidents ranks stored reports by symptom overlap.
func (m *MemoryHistory) SimilarIncidents(_ context.Context, symptoms []string, limit int) ([]models.InvestigationReport, error) {
	if limit <= 0 {
		limit = 3
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	want := make(map[string]struct{}, len(symptoms))
	for _, s := range symptoms {
		want[strings.ToLower(s)] = struct{}{}
	}

	type scored struct {
		report  models.InvestigationReport
		overlap int
	}
	var candidates []scored
	for _, report := range m.reports {
		overlap := 0
		for _, s := range report.Symptoms {
			if _, ok := want[strings.ToLower(s)]; ok {
				overlap++
			}
		}
		if overlap > 0 {
			candidates = append(candidates, scored{report: report, overlap: overlap})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].overlap != candidates[j].overlap {
			return candidates[i].overlap > candidates[j].overlap
		}
		return candidates[i].report.CompletedAt.After(candidates[j].report.CompletedAt)
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]models.InvestigationReport, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.report)
	}
	return out, nil
}

// RecentReports implements HistoryStore, newest first.
func (m *MemoryHistory) RecentReports(_ context.Context, limit int) ([]models.InvestigationReport, error) {
	if limit <= 0 {
		limit = 50
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := len(m.reports)
	if limit > n {
		limit = n
	}
	out := make([]models.InvestigationReport, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, m.reports[i])
	}
	return out, nil
}
