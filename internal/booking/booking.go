package booking

import (
	"context"
	"time"
)

type DraftStatus string

const (
	DraftOpen      DraftStatus = "open"
	DraftCommitted DraftStatus = "committed"
)

type EntryStatus string

const (
	EntryPending   EntryStatus = "pending"
	EntryAccounted EntryStatus = "accounted"
	EntryBooked    EntryStatus = "booked"
)

type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

type Message struct {
	Severity Severity
	Text     string
}

// Result is the outcome of one booking attempt, for a whole draft or a single
// entry.
type Result struct {
	Success     bool
	HasWarnings bool
	Messages    []Message
}

// Split partitions the result messages into errors and warnings.
func (r Result) Split() (errs, warns []Message) {
	for _, m := range r.Messages {
		if m.Severity == SeverityError {
			errs = append(errs, m)
		} else {
			warns = append(warns, m)
		}
	}
	return errs, warns
}

type Entry struct {
	ID          int64       `json:"id"`
	DraftID     int64       `json:"draftId"`
	Status      EntryStatus `json:"status"`
	BookingDate time.Time   `json:"bookingDate"`
	Account     string      `json:"account"`
	Payee       string      `json:"payee"`
	Category    string      `json:"category"`
	Amount      float64     `json:"amount"`
}

// Draft is a staged, not-yet-committed batch of statement entries.
type Draft struct {
	ID      int64       `json:"id"`
	UserID  string      `json:"userId"`
	Status  DraftStatus `json:"status"`
	Entries []Entry     `json:"entries"`
}

// DraftService is the persistence collaborator the executors drive. Book with
// entryID=0 books the whole draft; Classify with entryID=0 classifies every
// unclassified entry of the draft. GetDraft returns (nil, nil) when the draft
// no longer exists.
type DraftService interface {
	OpenDraftsCount(ctx context.Context, userID string) (int, error)
	OpenDrafts(ctx context.Context, userID string, skip, take int) ([]Draft, error)
	Book(ctx context.Context, draftID, entryID int64, userID string, ignoreWarnings bool) (Result, error)
	Classify(ctx context.Context, draftID, entryID int64, userID string) error
	GetDraft(ctx context.Context, draftID int64, userID string) (*Draft, error)
}
