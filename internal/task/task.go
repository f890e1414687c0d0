package task

import (
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of work a job performs. Exactly one executor is
// registered per type.
type Type string

const (
	TypeMassBooking        Type = "mass-booking"
	TypeClassification     Type = "classification"
	TypePriceBackfill      Type = "price-backfill"
	TypeBackupRestore      Type = "backup-restore"
	TypeAggregatesRebuild  Type = "aggregates-rebuild"
	TypeReportCacheRefresh Type = "report-cache-refresh"
)

type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusCanceled  Status = "canceled"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further state changes will happen to a job.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCanceled || s == StatusFailed
}

// Progress is an immutable two-phase progress snapshot. Executors build a new
// value for every report; the orchestrator replaces the stored snapshot
// wholesale, never field by field.
type Progress struct {
	Processed  int    `json:"processed"`
	Total      int    `json:"total"`
	Message    string `json:"message"`
	Processed2 int    `json:"processed2,omitempty"`
	Total2     int    `json:"total2,omitempty"`
	Message2   string `json:"message2,omitempty"`
	Warnings   int    `json:"warnings"`
	Errors     int    `json:"errors"`
}

type Job struct {
	ID         uuid.UUID `json:"id"`
	Type       Type      `json:"type"`
	UserID     string    `json:"userId"`
	Status     Status    `json:"status"`
	Progress   Progress  `json:"progress"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	StartedAt  time.Time `json:"startedAt,omitzero"`
	FinishedAt time.Time `json:"finishedAt,omitzero"`
}
