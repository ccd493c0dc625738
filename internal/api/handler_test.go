package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/wgd/deepsearch/internal/driver"
	"github.com/wgd/deepsearch/internal/fonts"
	"github.com/wgd/deepsearch/internal/render"
	"github.com/wgd/deepsearch/internal/storage"
)

// stubResearcher completes a fixed two-paragraph run, so handler tests can
// exercise real driver.Run handles without any network.
type stubResearcher struct {
	report string
	err    error
}

func (s *stubResearcher) GenerateStructure(_ context.Context, _ string) ([]driver.Section, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []driver.Section{
		{Title: "Background", Content: "history"},
		{Title: "Outlook", Content: "trends"},
	}, nil
}

func (s *stubResearcher) SearchAndSummarize(context.Context, int) error { return nil }

func (s *stubResearcher) Reflect(context.Context, int) error { return nil }

func (s *stubResearcher) Synthesize(context.Context) (string, error) { return s.report, nil }

func (s *stubResearcher) Sections() []driver.SectionStatus {
	return []driver.SectionStatus{
		{Title: "Background", Summary: "summarized", SearchCount: 1, Completed: true},
		{Title: "Outlook", Summary: "summarized", SearchCount: 1, Completed: true},
	}
}

func setupAppHandler(t *testing.T, researcher driver.Researcher) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	renderer := render.New(fonts.New(t.TempDir()))
	startRun := func(ctx context.Context, query string) (*driver.Run, error) {
		return driver.New(researcher, store).Run(ctx, query)
	}

	handler := NewAppHandler(AppDeps{
		Store:    store,
		Renderer: renderer,
		StartRun: startRun,
	})
	return handler, store
}

func jsonReq(method, url, body string) *http.Request {
	req := httptest.NewRequest(method, url, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestResearchRunAndHistory(t *testing.T) {
	h, store := setupAppHandler(t, &stubResearcher{report: "# Findings\n\nDetails."})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/research", `{"query":"量子计算的发展现状"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp researchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Token == "" {
		t.Error("response missing token")
	}
	if resp.Report != "# Findings\n\nDetails." {
		t.Errorf("report = %q", resp.Report)
	}
	if resp.ReportID == 0 {
		t.Error("expected a nonzero report_id after save")
	}
	if len(resp.Sections) != 2 {
		t.Errorf("sections = %d, want 2", len(resp.Sections))
	}
	if resp.Warning != "" {
		t.Errorf("unexpected warning %q", resp.Warning)
	}

	rep, err := store.GetReport(resp.ReportID)
	if err != nil {
		t.Fatalf("GetReport(%d): %v", resp.ReportID, err)
	}
	if rep.Query != "量子计算的发展现状" {
		t.Errorf("stored query = %q", rep.Query)
	}
}

func TestResearchRequiresQuery(t *testing.T) {
	h, _ := setupAppHandler(t, &stubResearcher{report: "r"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/research", `{}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	var resp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Error.Type != "invalid_request_error" {
		t.Errorf("error type = %q", resp.Error.Type)
	}
}

func TestResearchFailure(t *testing.T) {
	h, _ := setupAppHandler(t, &stubResearcher{err: errors.New("model unreachable")})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/research", `{"query":"q"}`))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusBadGateway, rr.Body.String())
	}
}

func TestProgressWithoutRun(t *testing.T) {
	h, _ := setupAppHandler(t, &stubResearcher{report: "r"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/research/progress", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestProgressAndStateAfterRun(t *testing.T) {
	h, _ := setupAppHandler(t, &stubResearcher{report: "done report"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/research", `{"query":"q"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("research status = %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/research/progress", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("progress status = %d", rr.Code)
	}
	var prog driver.Progress
	json.NewDecoder(rr.Body).Decode(&prog)
	if prog.Phase != driver.PhaseDone || prog.Fraction != 100 {
		t.Errorf("progress = %+v, want done/100", prog)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/research/state", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("state status = %d", rr.Code)
	}
	cd := rr.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "deep_search_state_") || !strings.HasSuffix(cd, `.json"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
	var state map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&state); err != nil {
		t.Fatalf("state is not JSON: %v", err)
	}
	if state["report"] != "done report" {
		t.Errorf("state report = %v", state["report"])
	}
}

func TestRenderMarkdown(t *testing.T) {
	h, _ := setupAppHandler(t, &stubResearcher{report: "r"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/render", `{"text":"# Title\n\nBody","format":"markdown"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "# Title\n\nBody" {
		t.Errorf("body = %q", got)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/markdown" {
		t.Errorf("Content-Type = %q", ct)
	}
	cd := rr.Header().Get("Content-Disposition")
	if !strings.Contains(cd, "deep_search_report_") || !strings.HasSuffix(cd, `.md"`) {
		t.Errorf("Content-Disposition = %q", cd)
	}
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	h, _ := setupAppHandler(t, &stubResearcher{report: "r"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPost, "/render", `{"text":"x","format":"docx"}`))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHistoryListAndGet(t *testing.T) {
	h, store := setupAppHandler(t, &stubResearcher{report: "r"})

	id1, err := store.SaveReport("first", "report one")
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}
	id2, err := store.SaveReport("second", "report two")
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("list status = %d", rr.Code)
	}
	var entries []historyEntry
	json.NewDecoder(rr.Body).Decode(&entries)
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].ID != id2 || entries[1].ID != id1 {
		t.Errorf("order = [%d %d], want newest first [%d %d]", entries[0].ID, entries[1].ID, id2, id1)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/history/%d", id1), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("get status = %d", rr.Code)
	}
	var got map[string]any
	json.NewDecoder(rr.Body).Decode(&got)
	if got["report"] != "report one" {
		t.Errorf("report = %v", got["report"])
	}
}

func TestHistoryGetNotFound(t *testing.T) {
	h, _ := setupAppHandler(t, &stubResearcher{report: "r"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history/999", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history/abc", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestHistoryDelete(t *testing.T) {
	h, store := setupAppHandler(t, &stubResearcher{report: "r"})

	id, err := store.SaveReport("q", "body")
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/history/%d", id), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp map[string]bool
	json.NewDecoder(rr.Body).Decode(&resp)
	if !resp["deleted"] {
		t.Error("deleted = false, want true")
	}

	// Deleting again reports deleted=false, still 200.
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, fmt.Sprintf("/history/%d", id), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["deleted"] {
		t.Error("deleted = true on second delete")
	}
}

func TestHistoryDownloadMarkdown(t *testing.T) {
	h, store := setupAppHandler(t, &stubResearcher{report: "r"})

	id, err := store.SaveReport("q", "# Stored\n\nContent")
	if err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/history/%d/download?format=md", id), nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if got := rr.Body.String(); got != "# Stored\n\nContent" {
		t.Errorf("body = %q", got)
	}
	cd := rr.Header().Get("Content-Disposition")
	want := fmt.Sprintf("deep_search_report_%d_", id)
	if !strings.Contains(cd, want) || !strings.HasSuffix(cd, `.md"`) {
		t.Errorf("Content-Disposition = %q, want id-stamped markdown name", cd)
	}
}

func TestHistoryListSurvivesBrokenStore(t *testing.T) {
	h, store := setupAppHandler(t, &stubResearcher{report: "r"})
	store.Close()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/history", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d on broken store", rr.Code, http.StatusOK)
	}
	var entries []historyEntry
	if err := json.NewDecoder(rr.Body).Decode(&entries); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want empty list", len(entries))
	}
}

func TestPutKeys(t *testing.T) {
	h, store := setupAppHandler(t, &stubResearcher{report: "r"})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, jsonReq(http.MethodPut, "/keys", `{"tavily":"tvly-123","deepseek":"sk-abc"}`))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}

	keys, err := store.APIKeys()
	if err != nil {
		t.Fatalf("APIKeys: %v", err)
	}
	if keys["tavily"] != "tvly-123" || keys["deepseek"] != "sk-abc" {
		t.Errorf("stored keys = %v", keys)
	}
}
