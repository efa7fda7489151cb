package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/user/cisaudit/pkg/engine"
	"github.com/user/cisaudit/pkg/store"
)

type handler struct {
	deps Dependencies
}

// ControlSummary is the list view of a control.
type ControlSummary struct {
	ID     string  `json:"id"`
	Title  string  `json:"title"`
	Impact float64 `json:"impact"`
	Checks int     `json:"checks"`
}

// EvaluationRequest selects controls for a run; empty means all.
type EvaluationRequest struct {
	Controls []string `json:"controls"`
}

// EvaluationResponse carries the report and, when stored, its history id.
type EvaluationResponse struct {
	ID     string        `json:"id,omitempty"`
	Report engine.Report `json:"report"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	writeJSON(w, r, status, errorResponse{Error: err.Error()})
}

func (h *handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) ListControls(w http.ResponseWriter, r *http.Request) {
	controls := h.deps.Registry.All()
	response := make([]ControlSummary, 0, len(controls))
	for _, c := range controls {
		response = append(response, ControlSummary{ID: c.ID, Title: c.Title, Impact: c.Impact, Checks: len(c.Checks)})
	}
	writeJSON(w, r, http.StatusOK, response)
}

func (h *handler) GetControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c, err := h.deps.Registry.Get(id)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	writeJSON(w, r, http.StatusOK, c)
}

func (h *handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	var req EvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, r, http.StatusBadRequest, err)
		return
	}

	controls, err := h.deps.Registry.Select(req.Controls)
	if err != nil {
		writeError(w, r, http.StatusNotFound, err)
		return
	}

	report := h.deps.Evaluator.Run(ctx, controls)
	resp := EvaluationResponse{Report: report}
	if h.deps.Store != nil {
		rec, err := h.deps.Store.SaveReport(ctx, report)
		if err != nil {
			logger.Error().Err(err).Msg("failed to store report")
			writeError(w, r, http.StatusInternalServerError, err)
			return
		}
		resp.ID = rec.ID
	}
	writeJSON(w, r, http.StatusOK, resp)
}

func (h *handler) ListReports(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := h.deps.Store.ListReports(r.Context(), limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []store.Record{}
	}
	writeJSON(w, r, http.StatusOK, recs)
}

func (h *handler) LatestReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	recs, reports, err := h.deps.Store.LatestReports(r.Context(), 1)
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, EvaluationResponse{ID: recs[0].ID, Report: reports[0]})
}

func (h *handler) GetReport(w http.ResponseWriter, r *http.Request) {
	if !h.requireStore(w, r) {
		return
	}
	rec, report, err := h.deps.Store.GetReport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, EvaluationResponse{ID: rec.ID, Report: report})
}

func (h *handler) requireStore(w http.ResponseWriter, r *http.Request) bool {
	if h.deps.Store == nil {
		writeError(w, r, http.StatusServiceUnavailable, errors.New("report history is disabled"))
		return false
	}
	return true
}

func (h *handler) storeError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, r, http.StatusNotFound, err)
		return
	}
	writeError(w, r, http.StatusInternalServerError, err)
}
