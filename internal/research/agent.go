package research

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wgd/deepsearch/internal/driver"
)

// Options bound the research computation.
type Options struct {
	MaxReflections   int
	MaxSearchResults int
	MaxContentLength int
}

func (o Options) withDefaults() Options {
	if o.MaxReflections <= 0 {
		o.MaxReflections = 2
	}
	if o.MaxSearchResults <= 0 {
		o.MaxSearchResults = 3
	}
	if o.MaxContentLength <= 0 {
		o.MaxContentLength = 20000
	}
	return o
}

// Agent performs the actual research work for one run: planning the report
// structure, searching and summarizing each paragraph, reflecting on gaps,
// and synthesizing the final report. It implements driver.Researcher and is
// good for a single run.
type Agent struct {
	llm    LLM
	search Searcher
	opts   Options

	query    string
	sections []sectionState
}

type sectionState struct {
	plan        driver.Section
	summary     string
	searchCount int
	reflections int
	completed   bool
}

// NewAgent creates a single-run Agent.
func NewAgent(llm LLM, search Searcher, opts Options) *Agent {
	return &Agent{llm: llm, search: search, opts: opts.withDefaults()}
}

const structurePrompt = `You are a research planner. Plan a report answering the query below.
Respond with a JSON array only, no prose: [{"title": "...", "content": "what this paragraph should cover"}, ...]
Use 3 to 6 paragraphs.

Query: %s`

// GenerateStructure plans the report paragraphs for the query.
func (a *Agent) GenerateStructure(ctx context.Context, query string) ([]driver.Section, error) {
	a.query = query

	raw, err := a.llm.Chat(ctx, []Message{{Role: "user", Content: fmt.Sprintf(structurePrompt, query)}})
	if err != nil {
		return nil, err
	}

	sections, err := parseSections(raw)
	if err != nil {
		return nil, err
	}

	a.sections = make([]sectionState, len(sections))
	for i, s := range sections {
		a.sections[i] = sectionState{plan: s}
	}
	return sections, nil
}

// parseSections extracts the JSON section plan from an LLM reply, tolerating
// a markdown code fence around it.
func parseSections(raw string) ([]driver.Section, error) {
	text := strings.TrimSpace(raw)
	if i := strings.Index(text, "["); i >= 0 {
		if j := strings.LastIndex(text, "]"); j > i {
			text = text[i : j+1]
		}
	}

	var sections []driver.Section
	if err := json.Unmarshal([]byte(text), &sections); err != nil {
		return nil, fmt.Errorf("parsing report structure: %w", err)
	}
	for i, s := range sections {
		if strings.TrimSpace(s.Title) == "" {
			return nil, fmt.Errorf("report structure paragraph %d has no title", i+1)
		}
	}
	return sections, nil
}

// SearchAndSummarize runs the initial search and summary for paragraph idx.
func (a *Agent) SearchAndSummarize(ctx context.Context, idx int) error {
	st := &a.sections[idx]

	results, err := a.search.Search(ctx, st.plan.Title+" "+a.query, a.opts.MaxSearchResults)
	if err != nil {
		return err
	}
	st.searchCount++

	summary, err := a.summarize(ctx, st, results, "")
	if err != nil {
		return err
	}
	st.summary = summary
	return nil
}

// Reflect runs up to MaxReflections refinement rounds for paragraph idx.
// Each round asks for a follow-up query; an empty answer ends the loop early.
func (a *Agent) Reflect(ctx context.Context, idx int) error {
	st := &a.sections[idx]

	for i := 0; i < a.opts.MaxReflections; i++ {
		followUp, err := a.llm.Chat(ctx, []Message{{
			Role: "user",
			Content: fmt.Sprintf(
				"Paragraph topic: %s\nCurrent draft:\n%s\n\nName ONE web search query that would fill the biggest gap, or reply DONE if none.",
				st.plan.Title, st.summary),
		}})
		if err != nil {
			return err
		}
		followUp = strings.TrimSpace(followUp)
		if followUp == "" || strings.EqualFold(followUp, "DONE") {
			break
		}

		results, err := a.search.Search(ctx, followUp, a.opts.MaxSearchResults)
		if err != nil {
			return err
		}
		st.searchCount++
		st.reflections++

		summary, err := a.summarize(ctx, st, results, st.summary)
		if err != nil {
			return err
		}
		st.summary = summary
	}

	st.completed = true
	return nil
}

func (a *Agent) summarize(ctx context.Context, st *sectionState, results []Result, previous string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Write the paragraph %q (%s) for a research report on %q.\n", st.plan.Title, st.plan.Content, a.query)
	if previous != "" {
		sb.WriteString("Improve on this draft:\n" + previous + "\n")
	}
	sb.WriteString("Sources:\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "- %s (%s): %s\n", r.Title, r.URL, truncate(r.Content, a.opts.MaxContentLength))
	}
	sb.WriteString("Respond with the paragraph text only.")

	return a.llm.Chat(ctx, []Message{{Role: "user", Content: sb.String()}})
}

// Synthesize produces the final Markdown report over all completed paragraphs.
func (a *Agent) Synthesize(ctx context.Context) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Assemble a polished Markdown research report answering %q from these paragraphs.\n", a.query)
	sb.WriteString("Keep the paragraph order. Add a title and a short conclusion. Respond with Markdown only.\n\n")
	for _, st := range a.sections {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", st.plan.Title, st.summary)
	}

	report, err := a.llm.Chat(ctx, []Message{{Role: "user", Content: sb.String()}})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(report) == "" {
		return "", fmt.Errorf("final report is empty")
	}
	return report, nil
}

// Sections returns display facts for each paragraph.
func (a *Agent) Sections() []driver.SectionStatus {
	out := make([]driver.SectionStatus, len(a.sections))
	for i, st := range a.sections {
		out[i] = driver.SectionStatus{
			Title:       st.plan.Title,
			Summary:     st.summary,
			SearchCount: st.searchCount,
			Reflections: st.reflections,
			Completed:   st.completed,
		}
	}
	return out
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	// Cut on a rune boundary.
	runes := []rune(s)
	if len(runes) > limit {
		runes = runes[:limit]
	}
	return string(runes)
}

var _ driver.Researcher = (*Agent)(nil)
