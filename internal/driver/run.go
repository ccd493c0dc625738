package driver

import (
	"encoding/json"
	"sync"
	"time"
)

// Phase names the discrete states of one research run.
type Phase string

const (
	PhaseInit       Phase = "init"
	PhaseStructure  Phase = "structure_generated"
	PhaseSearching  Phase = "searching"
	PhaseReflecting Phase = "reflecting"
	PhaseReport     Phase = "report_generated"
	PhaseSaved      Phase = "saved"
	PhaseDone       Phase = "done"
	PhaseFailed     Phase = "failed"
)

// Progress is a point-in-time snapshot of a run: its phase, a 0–100
// fraction, and a human-readable detail line.
type Progress struct {
	Phase    Phase  `json:"phase"`
	Fraction int    `json:"fraction"`
	Detail   string `json:"detail"`
}

// Run is the handle for one research run. The driver updates it as the run
// advances; any goroutine may poll it. It replaces the original's implicit
// session-scoped agent state.
type Run struct {
	Token     string
	Query     string
	StartedAt time.Time

	mu         sync.Mutex
	progress   Progress
	sections   []SectionStatus
	report     string
	reportID   int64
	saveErr    error
	finishedAt time.Time
}

// Progress returns the latest progress snapshot.
func (r *Run) Progress() Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Report returns the final Markdown report, or "" while the run is in flight.
func (r *Run) Report() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report
}

// ReportID returns the history id assigned on save, or 0 when the report was
// not (or not yet) persisted.
func (r *Run) ReportID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reportID
}

// SaveErr returns the persistence warning for this run, if saving failed.
// A non-nil SaveErr does not invalidate the run's report.
func (r *Run) SaveErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveErr
}

// Sections returns the per-paragraph display facts recorded at completion.
func (r *Run) Sections() []SectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]SectionStatus, len(r.sections))
	copy(out, r.sections)
	return out
}

// runState is the serialized snapshot shape.
type runState struct {
	Token      string          `json:"token"`
	Query      string          `json:"query"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt *time.Time      `json:"finished_at,omitempty"`
	Progress   Progress        `json:"progress"`
	Sections   []SectionStatus `json:"sections"`
	Report     string          `json:"report,omitempty"`
	ReportID   int64           `json:"report_id,omitempty"`
	SaveError  string          `json:"save_error,omitempty"`
}

// StateJSON serializes the run for the state snapshot download.
func (r *Run) StateJSON() ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := runState{
		Token:     r.Token,
		Query:     r.Query,
		StartedAt: r.StartedAt,
		Progress:  r.progress,
		Sections:  r.sections,
		Report:    r.report,
		ReportID:  r.reportID,
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		st.FinishedAt = &t
	}
	if r.saveErr != nil {
		st.SaveError = r.saveErr.Error()
	}
	return json.MarshalIndent(st, "", "  ")
}

func (r *Run) set(phase Phase, fraction int, detail string) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = Progress{Phase: phase, Fraction: fraction, Detail: detail}
	return r.progress
}
