package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Report is one persisted research run: the query that started it, the
// final Markdown body, and the time the store accepted it. ID is assigned
// by the store on insert and is immutable afterwards.
type Report struct {
	ID        int64
	Query     string
	Body      string
	CreatedAt time.Time
}
