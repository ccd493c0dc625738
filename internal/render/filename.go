package render

import (
	"fmt"
	"time"
)

// Download filename patterns carried over from the original interface: the
// history variant embeds the record id and its creation time, the fresh-run
// variant embeds only the current time.
const (
	historyTimeLayout = "2006-01-02_15-04-05"
	freshTimeLayout   = "20060102_150405"
)

// HistoryFilename names a download generated from a stored history record.
func HistoryFilename(id int64, createdAt time.Time, format Format) string {
	return fmt.Sprintf("deep_search_report_%d_%s%s", id, createdAt.Format(historyTimeLayout), format.Ext())
}

// FreshFilename names a download generated from a just-finished run.
func FreshFilename(now time.Time, format Format) string {
	return fmt.Sprintf("deep_search_report_%s%s", now.Format(freshTimeLayout), format.Ext())
}

// StateFilename names a run state snapshot download (application/json).
func StateFilename(now time.Time) string {
	return fmt.Sprintf("deep_search_state_%s.json", now.Format(freshTimeLayout))
}
