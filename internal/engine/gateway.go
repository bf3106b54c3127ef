package engine

import (
	"context"
	"errors"
	"time"

	"github.com/omerbl/trackd/internal/models"
)

// ErrNoOwner indicates a session without an owner identity attempted a
// mutating operation.
var ErrNoOwner = errors.New("no owner identity")

// ErrAlreadyRunning indicates the owner already has a running entry.
var ErrAlreadyRunning = errors.New("a timer is already running")

// StartRequest carries the client-writable fields of a new entry. The start
// timestamp and the hourly-rate snapshot are assigned by the store side.
type StartRequest struct {
	OwnerID     string   `json:"owner_id"`
	ProjectID   string   `json:"project_id,omitempty"`
	ClientID    string   `json:"client_id,omitempty"`
	Description string   `json:"description,omitempty"`
	IsBillable  bool     `json:"is_billable"`
	Tags        []string `json:"tags,omitempty"`
}

// Gateway is the narrow command surface the engine uses against the remote
// time-entry store. Each call is a single independent round trip; the engine
// does no batching and no retries.
type Gateway interface {
	// StartEntry creates a running entry. Implementations snapshot the
	// owner's hourly rate and enforce the single-running-entry rule,
	// returning ErrAlreadyRunning (possibly wrapped) on conflict.
	StartEntry(ctx context.Context, req StartRequest) (*models.TimeEntry, error)

	// UpdateEntry applies a partial update and returns the updated entry.
	UpdateEntry(ctx context.Context, id string, patch models.EntryPatch) (*models.TimeEntry, error)

	// DeleteEntry removes an entry without recording any duration.
	DeleteEntry(ctx context.Context, id string) error

	// RunningEntry returns the owner's running entry, or nil if none exists.
	RunningEntry(ctx context.Context, ownerID string) (*models.TimeEntry, error)

	// EntriesSince returns the owner's entries starting at or after since,
	// newest first.
	EntriesSince(ctx context.Context, ownerID string, since time.Time) ([]models.TimeEntry, error)

	// CompletedMinutesSince sums duration minutes of completed entries
	// starting at or after since.
	CompletedMinutesSince(ctx context.Context, ownerID string, since time.Time) (int64, error)
}
