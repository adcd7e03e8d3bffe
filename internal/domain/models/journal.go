package models

import (
	"time"

	"github.com/google/uuid"
)

// FetchRecord is one handled fetch, written to the journal.
type FetchRecord struct {
	ID       string        `json:"id"`
	Time     time.Time     `json:"time"`
	Method   string        `json:"method"`
	URL      string        `json:"url"`
	Class    RequestClass  `json:"class"`
	Strategy Strategy      `json:"strategy"`
	Source   Source        `json:"source"`
	Status   int           `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Bytes    int           `json:"bytes"`
	Version  string        `json:"version"`
}

// NewFetchRecord stamps a record with a fresh id.
func NewFetchRecord(req *Request, at time.Time) *FetchRecord {
	rec := &FetchRecord{
		ID:     uuid.NewString(),
		Time:   at.UTC(),
		Method: req.Method,
	}
	if req.URL != nil {
		rec.URL = req.URL.String()
	}
	return rec
}

// JournalQuery selects records by time range.
type JournalQuery struct {
	From  time.Time
	To    time.Time
	Class RequestClass
	Limit int
}
