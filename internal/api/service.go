// Package api provides the HTTP API and service layer for the trackd store.
package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/omerbl/trackd/internal/audit"
	"github.com/omerbl/trackd/internal/engine"
	"github.com/omerbl/trackd/internal/models"
	"github.com/omerbl/trackd/internal/store"
)

// ConflictPolicy decides what happens when a start request arrives while the
// owner already has a running entry, e.g. from a second device.
type ConflictPolicy string

const (
	// ConflictReject refuses the new start with ErrTimerAlreadyRunning.
	ConflictReject ConflictPolicy = "reject"
	// ConflictStopPrevious closes the running entry at the moment the new
	// start arrives, then starts the new one.
	ConflictStopPrevious ConflictPolicy = "stop-previous"
)

// Service provides the time-entry business logic over the store. It is the
// server-side implementation of the engine's command gateway: it snapshots
// hourly rates, enforces the single-running-entry rule and writes the audit
// trail.
type Service struct {
	store  *store.Store
	trail  *audit.Trail
	policy ConflictPolicy
}

// NewService creates a new service.
func NewService(s *store.Store, trail *audit.Trail, policy ConflictPolicy) *Service {
	if policy == "" {
		policy = ConflictReject
	}
	return &Service{store: s, trail: trail, policy: policy}
}

// StartEntry creates a running entry for the owner, snapshotting the hourly
// rate from the owner's profile. The single-running-entry rule is checked
// here and backstopped by the store's partial unique index.
func (s *Service) StartEntry(ctx context.Context, req engine.StartRequest) (*models.TimeEntry, error) {
	if req.OwnerID == "" {
		return nil, ErrOwnerRequired
	}

	existing, err := s.store.GetRunningEntry(req.OwnerID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		switch s.policy {
		case ConflictStopPrevious:
			end := time.Now().Truncate(time.Second)
			running := false
			if _, err := s.store.UpdateEntry(existing.ID, models.EntryPatch{EndTime: &end, IsRunning: &running}); err != nil {
				return nil, fmt.Errorf("stop previous entry: %w", err)
			}
			s.trail.Record("entry.stop", req.OwnerID, existing.ID, "success", "stopped by new start")
		default:
			s.trail.Record("entry.start", req.OwnerID, existing.ID, "rejected", "already running")
			return nil, ErrTimerAlreadyRunning
		}
	}

	// Rate snapshot is taken once here; the entry never re-reads the profile.
	var rate *float64
	profile, err := s.store.GetProfile(req.OwnerID)
	if err != nil {
		return nil, err
	}
	if profile != nil && profile.HourlyRate > 0 {
		r := profile.HourlyRate
		rate = &r
	}

	entry, err := s.store.CreateEntry(store.NewEntry{
		OwnerID:     req.OwnerID,
		ProjectID:   req.ProjectID,
		ClientID:    req.ClientID,
		Description: req.Description,
		IsBillable:  req.IsBillable,
		HourlyRate:  rate,
		Tags:        req.Tags,
	})
	if err != nil {
		if errors.Is(err, store.ErrRunningExists) {
			return nil, ErrTimerAlreadyRunning
		}
		return nil, err
	}

	s.trail.Record("entry.start", req.OwnerID, entry.ID, "success", "")
	return entry, nil
}

// UpdateEntry applies a partial update to an entry.
func (s *Service) UpdateEntry(ctx context.Context, id string, patch models.EntryPatch) (*models.TimeEntry, error) {
	entry, err := s.store.UpdateEntry(id, patch)
	if err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, err
	}

	action := "entry.update"
	if patch.IsRunning != nil && !*patch.IsRunning {
		action = "entry.stop"
	}
	s.trail.Record(action, entry.OwnerID, entry.ID, "success", "")
	return entry, nil
}

// DeleteEntry discards an entry without recording any duration.
func (s *Service) DeleteEntry(ctx context.Context, id string) error {
	entry, err := s.store.GetEntry(id)
	if err != nil {
		return err
	}
	if entry == nil {
		return ErrEntryNotFound
	}
	if err := s.store.DeleteEntry(id); err != nil {
		if errors.Is(err, store.ErrEntryNotFound) {
			return ErrEntryNotFound
		}
		return err
	}
	s.trail.Record("entry.discard", entry.OwnerID, entry.ID, "success", "")
	return nil
}

// GetEntry retrieves an entry by ID. Returns nil if it does not exist.
func (s *Service) GetEntry(ctx context.Context, id string) (*models.TimeEntry, error) {
	return s.store.GetEntry(id)
}

// RunningEntry returns the owner's running entry, or nil.
func (s *Service) RunningEntry(ctx context.Context, ownerID string) (*models.TimeEntry, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	return s.store.GetRunningEntry(ownerID)
}

// EntriesSince returns the owner's entries starting at or after since,
// newest first.
func (s *Service) EntriesSince(ctx context.Context, ownerID string, since time.Time) ([]models.TimeEntry, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	return s.store.ListEntriesSince(ownerID, since)
}

// CompletedMinutesSince sums completed duration minutes starting at or after
// since.
func (s *Service) CompletedMinutesSince(ctx context.Context, ownerID string, since time.Time) (int64, error) {
	if ownerID == "" {
		return 0, ErrOwnerRequired
	}
	return s.store.SumCompletedSince(ownerID, since)
}

// Summary computes the owner's today/week totals at the current moment.
// Both totals include the live minutes of a running entry. Day and week
// boundaries use the owner's profile timezone when one is set.
func (s *Service) Summary(ctx context.Context, ownerID string) (*models.Summary, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}

	loc := time.Local
	profile, err := s.store.GetProfile(ownerID)
	if err != nil {
		return nil, err
	}
	if profile != nil && profile.Timezone != "" {
		if l, err := time.LoadLocation(profile.Timezone); err == nil {
			loc = l
		}
	}

	now := time.Now()
	today, err := s.store.ListEntriesSince(ownerID, engine.DayStart(now, loc))
	if err != nil {
		return nil, err
	}
	weekDone, err := s.store.SumCompletedSince(ownerID, engine.WeekStart(now, loc))
	if err != nil {
		return nil, err
	}

	summary := &models.Summary{WeekMinutes: weekDone}
	for i := range today {
		if today[i].DurationMinutes != nil {
			summary.TodayMinutes += *today[i].DurationMinutes
		}
	}

	running, err := s.store.GetRunningEntry(ownerID)
	if err != nil {
		return nil, err
	}
	if running != nil {
		live := int64(now.Sub(running.StartTime) / time.Minute)
		if live < 0 {
			live = 0
		}
		summary.LiveMinutes = live
		summary.TodayMinutes += live
		summary.WeekMinutes += live
	}
	return summary, nil
}

// GetProfile retrieves an owner profile, or nil if none exists.
func (s *Service) GetProfile(ctx context.Context, ownerID string) (*models.Profile, error) {
	return s.store.GetProfile(ownerID)
}

// PutProfile creates or replaces an owner profile.
func (s *Service) PutProfile(ctx context.Context, p models.Profile) error {
	if p.OwnerID == "" {
		return ErrOwnerRequired
	}
	return s.store.UpsertProfile(p)
}

// AuditLog returns the owner's recent audit records.
func (s *Service) AuditLog(ctx context.Context, ownerID string, limit int) ([]models.AuditRecord, error) {
	if ownerID == "" {
		return nil, ErrOwnerRequired
	}
	return s.store.ListAudit(ownerID, limit)
}
