package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerd/ledgerd/internal/apperror"
	"github.com/ledgerd/ledgerd/internal/booking"
	"github.com/ledgerd/ledgerd/internal/maintenance"
	"github.com/ledgerd/ledgerd/internal/pricesync"
	"github.com/ledgerd/ledgerd/internal/task"
)

type handler struct {
	orch *task.Orchestrator
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type enqueueRequest struct {
	Type           task.Type       `json:"type"`
	AllowDuplicate bool            `json:"allowDuplicate"`
	Options        json.RawMessage `json:"options"`
}

func (h *handler) enqueueJob(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeAppError(w, apperror.New(apperror.BadRequest, "X-User-ID header is required"))
		return
	}

	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAppError(w, apperror.New(apperror.BadRequest, "invalid request body"))
		return
	}

	payload, appErr := decodeOptions(req.Type, req.Options)
	if appErr != nil {
		writeAppError(w, appErr)
		return
	}

	j, err := h.orch.Enqueue(req.Type, userID, payload, req.AllowDuplicate)
	if err != nil {
		if errors.Is(err, task.ErrDuplicateActiveJob) {
			writeAppError(w, apperror.New(apperror.Conflict, err.Error()))
			return
		}
		writeAppError(w, apperror.New(apperror.BadRequest, err.Error()))
		return
	}

	writeJSON(w, http.StatusAccepted, j)
}

// decodeOptions maps a job type to its typed options payload. Types without
// options ignore the raw message.
func decodeOptions(t task.Type, raw json.RawMessage) (any, *apperror.AppError) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch t {
	case task.TypeMassBooking:
		var opts booking.MassBookingOptions
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, apperror.New(apperror.BadRequest, "invalid mass-booking options")
		}
		return opts, nil
	case task.TypePriceBackfill:
		var body struct {
			SecurityID int64  `json:"securityId"`
			From       string `json:"from"`
			To         string `json:"to"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, apperror.New(apperror.BadRequest, "invalid price-backfill options")
		}
		opts := pricesync.BackfillOptions{SecurityID: body.SecurityID}
		for _, bound := range []struct {
			value  string
			target **time.Time
		}{{body.From, &opts.From}, {body.To, &opts.To}} {
			if bound.value == "" {
				continue
			}
			d, err := time.Parse(time.DateOnly, bound.value)
			if err != nil {
				return nil, apperror.Errorf(apperror.BadRequest, "invalid date bound %q, expected YYYY-MM-DD", bound.value)
			}
			*bound.target = &d
		}
		return opts, nil
	case task.TypeBackupRestore:
		var opts maintenance.BackupRestoreOptions
		if err := json.Unmarshal(raw, &opts); err != nil {
			return nil, apperror.New(apperror.BadRequest, "invalid backup-restore options")
		}
		return opts, nil
	default:
		return nil, nil
	}
}

func (h *handler) listActiveJobs(w http.ResponseWriter, r *http.Request) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		writeAppError(w, apperror.New(apperror.BadRequest, "X-User-ID header is required"))
		return
	}
	writeJSON(w, http.StatusOK, h.orch.ListActive(userID))
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeAppError(w, apperror.New(apperror.BadRequest, "invalid job id"))
		return
	}

	j, err := h.orch.Get(id)
	if err != nil {
		writeAppError(w, apperror.New(apperror.NotFound, err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) cancelOrRemoveJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeAppError(w, apperror.New(apperror.BadRequest, "invalid job id"))
		return
	}

	if !h.orch.CancelOrRemove(id) {
		writeAppError(w, apperror.New(apperror.NotFound, "job not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
