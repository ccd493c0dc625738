package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// fakeResearcher scripts the external collaborator.
type fakeResearcher struct {
	sections   []Section
	report     string
	structErr  error
	searchErr  map[int]error
	reflectErr map[int]error
	synthErr   error

	searched  []int
	reflected []int
}

func (f *fakeResearcher) GenerateStructure(ctx context.Context, query string) ([]Section, error) {
	if f.structErr != nil {
		return nil, f.structErr
	}
	return f.sections, nil
}

func (f *fakeResearcher) SearchAndSummarize(ctx context.Context, idx int) error {
	if err := f.searchErr[idx]; err != nil {
		return err
	}
	f.searched = append(f.searched, idx)
	return nil
}

func (f *fakeResearcher) Reflect(ctx context.Context, idx int) error {
	if err := f.reflectErr[idx]; err != nil {
		return err
	}
	f.reflected = append(f.reflected, idx)
	return nil
}

func (f *fakeResearcher) Synthesize(ctx context.Context) (string, error) {
	if f.synthErr != nil {
		return "", f.synthErr
	}
	return f.report, nil
}

func (f *fakeResearcher) Sections() []SectionStatus {
	out := make([]SectionStatus, len(f.sections))
	for i, s := range f.sections {
		out[i] = SectionStatus{Title: s.Title, Summary: "summary of " + s.Title, SearchCount: 1, Completed: true}
	}
	return out
}

// fakeSaver records saves and can be scripted to fail.
type fakeSaver struct {
	err   error
	saves []struct{ query, body string }
}

func (f *fakeSaver) SaveReport(query, body string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	f.saves = append(f.saves, struct{ query, body string }{query, body})
	return int64(len(f.saves)), nil
}

func threeSections() []Section {
	return []Section{
		{Title: "背景", Content: "background"},
		{Title: "现状", Content: "state of the art"},
		{Title: "展望", Content: "outlook"},
	}
}

func TestRunProgressEndpoints(t *testing.T) {
	res := &fakeResearcher{sections: threeSections(), report: "# final"}
	saver := &fakeSaver{}

	var fractions []int
	var phases []Phase
	d := New(res, saver, WithProgressFunc(func(p Progress) {
		fractions = append(fractions, p.Fraction)
		phases = append(phases, p.Phase)
	}))

	run, err := d.Run(context.Background(), "量子计算的发展现状")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// Paragraph endpoints for N=3 must land on 40/60/80 regardless of content.
	var endpoints []int
	for i, ph := range phases {
		if ph == PhaseReflecting {
			endpoints = append(endpoints, fractions[i])
		}
	}
	want := []int{40, 60, 80}
	if fmt.Sprint(endpoints) != fmt.Sprint(want) {
		t.Errorf("paragraph endpoints = %v, want %v", endpoints, want)
	}

	// Midpoints are halfway into each share: 30/50/70. The update just
	// before each reflection endpoint is the post-search midpoint.
	var midpoints []int
	for i, ph := range phases {
		if ph == PhaseReflecting && i > 0 {
			midpoints = append(midpoints, fractions[i-1])
		}
	}
	if fmt.Sprint(midpoints) != fmt.Sprint([]int{30, 50, 70}) {
		t.Errorf("paragraph midpoints = %v, want [30 50 70]", midpoints)
	}

	if p := run.Progress(); p.Phase != PhaseDone || p.Fraction != 100 {
		t.Errorf("final progress = %+v, want done/100", p)
	}
	if run.Report() != "# final" {
		t.Errorf("report = %q", run.Report())
	}
	if run.ReportID() != 1 {
		t.Errorf("reportID = %d, want 1", run.ReportID())
	}
	if len(saver.saves) != 1 {
		t.Fatalf("expected exactly one save, got %d", len(saver.saves))
	}
	if saver.saves[0].query != "量子计算的发展现状" || saver.saves[0].body != "# final" {
		t.Errorf("saved wrong record: %+v", saver.saves[0])
	}
}

func TestRunSequentialParagraphOrder(t *testing.T) {
	res := &fakeResearcher{sections: threeSections(), report: "r"}
	d := New(res, &fakeSaver{})

	if _, err := d.Run(context.Background(), "q"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if fmt.Sprint(res.searched) != "[0 1 2]" || fmt.Sprint(res.reflected) != "[0 1 2]" {
		t.Errorf("paragraphs processed out of order: searched=%v reflected=%v", res.searched, res.reflected)
	}
}

func TestRunStructureFailureIsFatal(t *testing.T) {
	res := &fakeResearcher{structErr: errors.New("llm down")}
	saver := &fakeSaver{}
	d := New(res, saver)

	_, err := d.Run(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "research run failed") {
		t.Errorf("error should identify the failed run, got %q", err)
	}
	if len(saver.saves) != 0 {
		t.Error("no partial result may be persisted")
	}
}

func TestRunPhaseFailureAbortsWithoutSave(t *testing.T) {
	res := &fakeResearcher{
		sections:  threeSections(),
		searchErr: map[int]error{1: errors.New("tavily quota")},
	}
	saver := &fakeSaver{}
	d := New(res, saver)

	_, err := d.Run(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error")
	}
	if len(saver.saves) != 0 {
		t.Error("aborted run must not persist")
	}
	if len(res.searched) != 1 {
		t.Errorf("run must stop at the failed paragraph, searched=%v", res.searched)
	}
}

func TestRunSaveFailureIsWarning(t *testing.T) {
	res := &fakeResearcher{sections: threeSections(), report: "# r"}
	saver := &fakeSaver{err: errors.New("disk full")}
	d := New(res, saver)

	run, err := d.Run(context.Background(), "q")
	if err != nil {
		t.Fatalf("save failure must not fail the run: %v", err)
	}
	if run.SaveErr() == nil {
		t.Error("expected recorded save error")
	}
	if run.Report() != "# r" {
		t.Errorf("in-memory result must survive, got %q", run.Report())
	}
	if run.ReportID() != 0 {
		t.Errorf("no id may be assigned on failed save, got %d", run.ReportID())
	}
}

func TestRunStateJSON(t *testing.T) {
	res := &fakeResearcher{sections: threeSections(), report: "# r"}
	d := New(res, &fakeSaver{})

	run, err := d.Run(context.Background(), "量子")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := run.StateJSON()
	if err != nil {
		t.Fatalf("StateJSON: %v", err)
	}

	var st struct {
		Token    string `json:"token"`
		Query    string `json:"query"`
		Report   string `json:"report"`
		Sections []struct {
			Title string `json:"title"`
		} `json:"sections"`
	}
	if err := json.Unmarshal(data, &st); err != nil {
		t.Fatalf("unmarshal snapshot: %v", err)
	}
	if st.Query != "量子" || st.Report != "# r" || len(st.Sections) != 3 || st.Token == "" {
		t.Errorf("unexpected snapshot: %+v", st)
	}
}
