package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/incidentstack/scout/internal/correlation"
	"github.com/incidentstack/scout/internal/models"
	"github.com/incidentstack/scout/internal/pipeline"
	"github.com/incidentstack/scout/internal/services"
)

// Handler exposes the investigation service over HTTP JSON.
type Handler struct {
	logger  *slog.Logger
	service *services.InvestigationService
}

// NewHandler constructs the HTTP handler set.
func NewHandler(logger *slog.Logger, service *services.InvestigationService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// Router builds the chi router with all scout routes mounted.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/investigations", h.investigate)
		r.Get("/investigations/{incidentID}", h.getReport)
		r.Get("/patterns", h.getPatterns)
	})
	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) investigate(w http.ResponseWriter, r *http.Request) {
	var trigger models.IncidentTrigger
	if err := json.NewDecoder(r.Body).Decode(&trigger); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// An inbound correlation context wins over an absent trigger field, so the
	// report joins the caller's existing trace.
	if trigger.CorrelationID == "" {
		if cctx, ok := correlation.FromHeaders(flattenHeaders(r.Header)); ok {
			trigger.CorrelationID = cctx.CorrelationID
		}
	}
	if trigger.TriggerTime.IsZero() {
		trigger.TriggerTime = time.Now().UTC()
	}

	report, err := h.service.Investigate(r.Context(), trigger)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTrigger) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error("investigation request failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "investigation failed")
		return
	}

	if report.CorrelationID != "" {
		w.Header().Set(correlation.HeaderCorrelationID, report.CorrelationID)
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	incidentID := chi.URLParam(r, "incidentID")
	report, err := h.service.GetReport(r.Context(), incidentID)
	if err != nil {
		if errors.Is(err, pipeline.ErrReportNotFound) {
			writeError(w, http.StatusNotFound, "report not found")
			return
		}
		h.logger.Error("report lookup failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "report lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) getPatterns(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	mined, err := h.service.MinePatterns(r.Context(), limit)
	if err != nil {
		h.logger.Error("pattern mining failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "pattern mining failed")
		return
	}
	if mined == nil {
		mined = []models.SignaturePattern{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": mined})
}

func flattenHeaders(h http.Header) map[string]string {
	flat := make(map[string]string, len(h))
	for k := range h {
		flat[k] = h.Get(k)
	}
	return flat
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
