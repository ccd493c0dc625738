// Package api exposes the report pipeline over HTTP and MCP: run research
// queries, browse and delete history, and download rendered artifacts.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wgd/deepsearch/internal/driver"
	"github.com/wgd/deepsearch/internal/render"
	"github.com/wgd/deepsearch/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// RunStarter starts one research run for a query. The api layer builds no
// researchers itself; the caller wires a factory so each run reads the
// freshest stored credentials.
type RunStarter func(ctx context.Context, query string) (*driver.Run, error)

type AppDeps struct {
	Store    *storage.Store
	Renderer *render.Renderer
	StartRun RunStarter
}

// NewAppHandler builds the HTTP surface of the pipeline.
func NewAppHandler(deps AppDeps) http.Handler {
	h := &handler{deps: deps}

	r := chi.NewRouter()
	r.Post("/research", h.handleResearch)
	r.Get("/research/progress", h.handleProgress)
	r.Get("/research/state", h.handleState)
	r.Post("/render", h.handleRender)
	r.Get("/history", h.handleListHistory)
	r.Get("/history/{id}", h.handleGetHistory)
	r.Delete("/history/{id}", h.handleDeleteHistory)
	r.Get("/history/{id}/download", h.handleDownloadHistory)
	r.Put("/keys", h.handlePutKeys)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return r
}

// handler carries the at-most-one-run-per-session state: the latest run
// handle, polled by the progress endpoint.
type handler struct {
	deps AppDeps

	mu      sync.Mutex
	lastRun *driver.Run
}

func (h *handler) setLastRun(run *driver.Run) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastRun = run
}

func (h *handler) getLastRun() *driver.Run {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastRun
}

type researchRequest struct {
	Query string `json:"query"`
}

type researchResponse struct {
	Token    string                 `json:"token"`
	ReportID int64                  `json:"report_id,omitempty"`
	Report   string                 `json:"report"`
	Sections []driver.SectionStatus `json:"sections"`
	Warning  string                 `json:"warning,omitempty"`
}

func (h *handler) handleResearch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req researchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	if req.Query == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
		return
	}

	run, err := h.deps.StartRun(r.Context(), req.Query)
	if run != nil {
		h.setLastRun(run)
	}
	if err != nil {
		httpError(w, http.StatusBadGateway, "run_error", "%v", err)
		return
	}

	resp := researchResponse{
		Token:    run.Token,
		ReportID: run.ReportID(),
		Report:   run.Report(),
		Sections: run.Sections(),
	}
	if saveErr := run.SaveErr(); saveErr != nil {
		resp.Warning = fmt.Sprintf("saving to history failed: %v", saveErr)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleProgress(w http.ResponseWriter, r *http.Request) {
	run := h.getLastRun()
	if run == nil {
		httpError(w, http.StatusNotFound, "not_found_error", "no run in this session")
		return
	}
	writeJSON(w, http.StatusOK, run.Progress())
}

func (h *handler) handleState(w http.ResponseWriter, r *http.Request) {
	run := h.getLastRun()
	if run == nil {
		httpError(w, http.StatusNotFound, "not_found_error", "no run in this session")
		return
	}
	data, err := run.StateJSON()
	if err != nil {
		httpError(w, http.StatusInternalServerError, "internal_error", "serializing state: %v", err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", attachment(render.StateFilename(time.Now())))
	w.Write(data)
}

type renderRequest struct {
	Text   string `json:"text"`
	Format string `json:"format"`
}

func (h *handler) handleRender(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	format, err := render.ParseFormat(req.Format)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}

	data, err := h.deps.Renderer.Render(r.Context(), req.Text, format)
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, "render_error", "%v", err)
		return
	}

	w.Header().Set("Content-Type", format.MIME())
	w.Header().Set("Content-Disposition", attachment(render.FreshFilename(time.Now(), format)))
	w.Write(data)
}

type historyEntry struct {
	ID        int64     `json:"id"`
	Query     string    `json:"query"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *handler) handleListHistory(w http.ResponseWriter, r *http.Request) {
	reports, err := h.deps.Store.ListReports()
	if err != nil {
		// The caller must stay usable on a transiently broken store: an
		// empty history, not a failure.
		writeJSON(w, http.StatusOK, []historyEntry{})
		return
	}

	entries := make([]historyEntry, len(reports))
	for i, rep := range reports {
		entries[i] = historyEntry{ID: rep.ID, Query: rep.Query, CreatedAt: rep.CreatedAt}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *handler) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.reportFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         rep.ID,
		"query":      rep.Query,
		"report":     rep.Body,
		"created_at": rep.CreatedAt,
	})
}

func (h *handler) handleDeleteHistory(w http.ResponseWriter, r *http.Request) {
	id, ok := idFromPath(w, r)
	if !ok {
		return
	}
	deleted, err := h.deps.Store.DeleteReport(id)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "persistence_error", "deleting record: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

func (h *handler) handleDownloadHistory(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.reportFromPath(w, r)
	if !ok {
		return
	}
	formatName := r.URL.Query().Get("format")
	if formatName == "" {
		formatName = "markdown"
	}
	format, err := render.ParseFormat(formatName)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
		return
	}

	data, err := h.deps.Renderer.Render(r.Context(), rep.Body, format)
	if err != nil {
		httpError(w, http.StatusUnprocessableEntity, "render_error", "%v", err)
		return
	}

	w.Header().Set("Content-Type", format.MIME())
	w.Header().Set("Content-Disposition", attachment(render.HistoryFilename(rep.ID, rep.CreatedAt, format)))
	w.Write(data)
}

func (h *handler) handlePutKeys(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var keys map[string]string
	if err := json.NewDecoder(r.Body).Decode(&keys); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return
	}
	for name, value := range keys {
		if err := h.deps.Store.SetAPIKey(name, value); err != nil {
			httpError(w, http.StatusInternalServerError, "persistence_error", "storing key %s: %v", name, err)
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) reportFromPath(w http.ResponseWriter, r *http.Request) (storage.Report, bool) {
	id, ok := idFromPath(w, r)
	if !ok {
		return storage.Report{}, false
	}
	rep, err := h.deps.Store.GetReport(id)
	if errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusNotFound, "not_found_error", "record %d not found", id)
		return storage.Report{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "persistence_error", "reading record: %v", err)
		return storage.Report{}, false
	}
	return rep, true
}

func idFromPath(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid id")
		return 0, false
	}
	return id, true
}

func attachment(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
