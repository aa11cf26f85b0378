package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/incidentlens/incidentlens/internal/aggregate"
	"github.com/incidentlens/incidentlens/internal/alerts"
	"github.com/incidentlens/incidentlens/internal/history"
	"github.com/incidentlens/incidentlens/internal/pipeline"
	"github.com/incidentlens/incidentlens/internal/store"
)

// defaultDeviationLimit caps the /api/v1/deviations response when the
// caller passes no limit parameter.
const defaultDeviationLimit = 50

// recentAlertWindow is how far back GET /api/v1/alerts looks.
const recentAlertWindow = 24 * time.Hour

// Handler is the HTTP handler for all /api/v1/* endpoints. It reads
// analysis state from the result store and run history; hist may be nil
// when run history is disabled.
type Handler struct {
	store  *store.Store
	engine *alerts.Engine
	hist   *history.Store
	mux    *http.ServeMux
}

// New creates a Handler wired to the given stores and registers all routes.
func New(st *store.Store, engine *alerts.Engine, hist *history.Store) http.Handler {
	h := &Handler{store: st, engine: engine, hist: hist, mux: http.NewServeMux()}

	h.mux.HandleFunc("/api/v1/health", h.health)
	h.mux.HandleFunc("/api/v1/summary", h.summary)
	h.mux.HandleFunc("/api/v1/keys", h.listKeys)
	h.mux.HandleFunc("/api/v1/keys/", h.getKey) // subtree — extracts {key}
	h.mux.HandleFunc("/api/v1/deviations", h.deviations)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/runs", h.runs)
	h.mux.HandleFunc("/api/v1/runs/", h.getRun) // subtree — extracts {id}

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /api/v1/health — freshness of the latest run.
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rep, at, ok := h.store.Latest()
	if !ok {
		jsonResp(w, http.StatusOK, HealthResponse{Status: "empty"})
		return
	}

	status := "ok"
	if time.Since(at) > h.store.TTL() {
		status = "stale"
	}
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:      status,
		LastRunID:   rep.RunID,
		LastRunAt:   at,
		KeysTracked: len(rep.Keys),
	})
}

// summary returns GET /api/v1/summary — the latest run in digest form.
func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rep, _, ok := h.store.Latest()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no analysis has completed yet")
		return
	}
	jsonResp(w, http.StatusOK, BuildSummary(rep, limitParam(r, defaultDeviationLimit)))
}

// listKeys returns GET /api/v1/keys — digest of every live grouping key.
func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	entries := h.store.List()
	out := make([]KeySummary, 0, len(entries))
	for _, e := range entries {
		ks := KeySummary{
			Key:       e.Result.Display,
			Total:     e.Result.Total,
			Buckets:   len(e.Result.Series),
			FitError:  e.Result.FitErr,
			UpdatedAt: e.UpdatedAt,
		}
		if e.Result.Fit != nil {
			slope := e.Result.Fit.Slope
			ks.Slope = &slope
		}
		if len(e.Result.Ranked) > 0 {
			// Ranked is sorted descending; the head is the maximum.
			max := e.Result.Ranked[0].RelativeDeviation
			ks.MaxDeviation = &max
		}
		out = append(out, ks)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	jsonResp(w, http.StatusOK, out)
}

// getKey returns GET /api/v1/keys/{key} — one key's full result. {key}
// is the display form ("BRONX", "BROOKLYN|25-44", "all").
func (h *Handler) getKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	raw := strings.TrimPrefix(r.URL.Path, "/api/v1/keys/")
	if raw == "" {
		h.listKeys(w, r)
		return
	}
	display, err := url.PathUnescape(raw)
	if err != nil {
		jsonErr(w, http.StatusBadRequest, "malformed key")
		return
	}

	e, ok := h.store.Get(aggregate.ParseDisplay(display))
	if !ok {
		jsonErr(w, http.StatusNotFound, "key not found")
		return
	}
	// Exclude stale entries — treat them as not found.
	if time.Since(e.UpdatedAt) > h.store.TTL() {
		jsonErr(w, http.StatusNotFound, "key not found")
		return
	}

	jsonResp(w, http.StatusOK, KeyResponse{
		Key:        e.Result.Display,
		Series:     e.Result.Series,
		Total:      e.Result.Total,
		Fit:        e.Result.Fit,
		FitError:   e.Result.FitErr,
		Deviations: e.Result.Ranked,
		UpdatedAt:  e.UpdatedAt,
	})
}

// deviations returns GET /api/v1/deviations — the latest run's global
// ranked view, optionally capped by ?limit=N.
func (h *Handler) deviations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	rep, _, ok := h.store.Latest()
	if !ok {
		jsonErr(w, http.StatusNotFound, "no analysis has completed yet")
		return
	}
	jsonResp(w, http.StatusOK, rep.TopDeviations(limitParam(r, defaultDeviationLimit)))
}

// alerts returns GET /api/v1/alerts — alerts fired in the past day.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	jsonResp(w, http.StatusOK, h.engine.Recent(recentAlertWindow))
}

// runs returns GET /api/v1/runs — persisted run summaries, newest first.
func (h *Handler) runs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.hist == nil {
		jsonErr(w, http.StatusNotFound, "run history is disabled")
		return
	}

	runs, err := h.hist.Runs(r.Context(), limitParam(r, 0))
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "run history query failed")
		return
	}
	if runs == nil {
		runs = []history.RunSummary{}
	}
	jsonResp(w, http.StatusOK, runs)
}

// getRun returns GET /api/v1/runs/{id} — one run's persisted deviations.
func (h *Handler) getRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.hist == nil {
		jsonErr(w, http.StatusNotFound, "run history is disabled")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/v1/runs/")
	if id == "" {
		h.runs(w, r)
		return
	}

	devs, err := h.hist.Deviations(r.Context(), id, limitParam(r, 0))
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "run history query failed")
		return
	}
	if len(devs) == 0 {
		jsonErr(w, http.StatusNotFound, "run not found")
		return
	}
	jsonResp(w, http.StatusOK, devs)
}

// --- helpers ----------------------------------------------------------------

// BuildSummary maps a report to its digest form. Exported because the
// WebSocket hub broadcasts the same shape.
func BuildSummary(rep *pipeline.Report, limit int) SummaryResponse {
	return SummaryResponse{
		RunID:         rep.RunID,
		StartedAt:     rep.StartedAt,
		FinishedAt:    rep.FinishedAt,
		RowsIn:        rep.RowsIn,
		RowsKept:      rep.Kept,
		RowsDropped:   rep.Dropped,
		DroppedPct:    rep.DroppedPct(),
		DropReasons:   rep.Reasons,
		KeyCount:      len(rep.Keys),
		FitFailures:   rep.FitFailures,
		TopDeviations: rep.TopDeviations(limit),
	}
}

func limitParam(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
