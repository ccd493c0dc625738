package driver

import "context"

// Section is one planned paragraph of the report structure, in the order it
// must be researched.
type Section struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// SectionStatus is the read-only view of one paragraph's research state,
// exposed for informational display only.
type SectionStatus struct {
	Title       string `json:"title"`
	Summary     string `json:"summary"`
	SearchCount int    `json:"search_count"`
	Reflections int    `json:"reflections"`
	Completed   bool   `json:"completed"`
}

// Researcher is the external research computation the driver sequences. The
// driver owns ordering and progress; the Researcher owns everything else,
// including how many reflection iterations it performs.
type Researcher interface {
	// GenerateStructure plans the report paragraphs for the query.
	GenerateStructure(ctx context.Context, query string) ([]Section, error)

	// SearchAndSummarize runs the initial search and summary for paragraph idx.
	SearchAndSummarize(ctx context.Context, idx int) error

	// Reflect runs the bounded reflection loop for paragraph idx.
	Reflect(ctx context.Context, idx int) error

	// Synthesize produces the final Markdown report over all paragraphs.
	Synthesize(ctx context.Context) (string, error)

	// Sections returns display facts for each paragraph.
	Sections() []SectionStatus
}
