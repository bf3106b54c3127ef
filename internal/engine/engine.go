// Package engine implements the time-tracking core: the timer state machine,
// reconciliation of elapsed time from the persisted store, the one-second
// tick driver and the today/week aggregates.
package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/omerbl/trackd/internal/models"
	"github.com/omerbl/trackd/internal/notify"
	"golang.org/x/sync/errgroup"
)

// Phase is the engine's lifecycle state. It is distinct from whether a
// persisted entry is marked running: Paused freezes the displayed elapsed
// time without touching the store.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseRunning Phase = "running"
	PhasePaused  Phase = "paused"
)

// Config configures a Session.
type Config struct {
	OwnerID  string
	Gateway  Gateway
	Notifier notify.Notifier // defaults to notify.Discard()
	Location *time.Location  // day/week boundaries; defaults to time.Local
	Now      func() time.Time
	OnTick   func(elapsedSeconds int64) // invoked by the tick driver while running
}

// Session is the timer state machine for one owner. It owns the current
// entry and phase exclusively; all mutation goes through its operations,
// which are serialized so rapid repeated invocations cannot double-submit.
//
// A phase transition is only made after the corresponding remote call
// succeeds, so the session never claims to be running without a persisted
// entry backing it.
type Session struct {
	owner    string
	gw       Gateway
	notifier notify.Notifier
	loc      *time.Location
	now      func() time.Time
	onTick   func(int64)

	mu      sync.Mutex
	phase   Phase
	current *models.TimeEntry
	elapsed int64 // seconds; last recomputed value, frozen while paused

	todayEntries []models.TimeEntry
	todayDone    int64 // completed minutes today
	weekDone     int64 // completed minutes this week

	tickCancel context.CancelFunc
	tickDone   sync.WaitGroup
}

// NewSession creates a session in the Idle phase.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Gateway == nil {
		return nil, fmt.Errorf("new session: gateway is required")
	}
	if cfg.Notifier == nil {
		cfg.Notifier = notify.Discard()
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Session{
		owner:    cfg.OwnerID,
		gw:       cfg.Gateway,
		notifier: cfg.Notifier,
		loc:      cfg.Location,
		now:      cfg.Now,
		onTick:   cfg.OnTick,
		phase:    PhaseIdle,
	}, nil
}

// Load reconciles the session against the store: the running entry (if any),
// today's entries and the completed week total are fetched in parallel, and
// elapsed time is re-derived from the persisted start timestamp rather than
// any counter. Run once when the owner identity becomes available.
func (s *Session) Load(ctx context.Context) error {
	now := s.now()
	dayStart := DayStart(now, s.loc)
	weekStart := WeekStart(now, s.loc)

	var running *models.TimeEntry
	var today []models.TimeEntry
	var weekDone int64

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		running, err = s.gw.RunningEntry(gctx, s.owner)
		return err
	})
	g.Go(func() error {
		var err error
		today, err = s.gw.EntriesSince(gctx, s.owner, dayStart)
		return err
	})
	g.Go(func() error {
		var err error
		weekDone, err = s.gw.CompletedMinutesSince(gctx, s.owner, weekStart)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load session: %w", err)
	}

	s.mu.Lock()
	s.todayEntries = today
	s.todayDone = sumCompleted(today)
	s.weekDone = weekDone
	if running != nil {
		s.current = running
		s.phase = PhaseRunning
		s.elapsed = elapsedSince(running.StartTime, s.now())
		s.startTickLocked()
	}
	s.mu.Unlock()
	return nil
}

// StartOptions carries the optional fields of a new entry.
type StartOptions struct {
	ProjectID   string
	ClientID    string
	Description string
	Tags        []string
	Billable    bool
}

// Start creates a remote entry and, on success, enters the Running phase
// with elapsed time anchored to the persisted start timestamp. On failure
// the session stays Idle; there is no retry.
func (s *Session) Start(ctx context.Context, opts StartOptions) (*models.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.owner == "" {
		s.notifier.Notify(notify.Notification{
			Title:       "Not signed in",
			Description: "Set an identity before starting a timer",
			Severity:    notify.SeverityError,
		})
		return nil, ErrNoOwner
	}
	if s.current != nil {
		s.notifier.Notify(notify.Notification{
			Title:       "Timer already running",
			Description: "Stop or discard the current entry first",
			Severity:    notify.SeverityWarning,
		})
		return nil, ErrAlreadyRunning
	}

	entry, err := s.gw.StartEntry(ctx, StartRequest{
		OwnerID:     s.owner,
		ProjectID:   opts.ProjectID,
		ClientID:    opts.ClientID,
		Description: opts.Description,
		IsBillable:  opts.Billable,
		Tags:        opts.Tags,
	})
	if err != nil {
		s.notifier.Notify(notify.Notification{
			Title:       "Could not start timer",
			Description: err.Error(),
			Severity:    notify.SeverityError,
		})
		return nil, err
	}

	s.current = entry
	s.phase = PhaseRunning
	s.elapsed = 0
	s.startTickLocked()
	s.refreshOrWarnLocked(ctx)

	s.notifier.Notify(notify.Notification{
		Title:       "Timer started",
		Description: entry.Description,
		Severity:    notify.SeveritySuccess,
	})
	return entry, nil
}

// Stop closes the current entry by setting its end timestamp and clearing
// the running flag; the store derives the final duration from the two
// timestamps. A stop with no current entry is a silent no-op.
func (s *Session) Stop(ctx context.Context) (*models.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCurrentLocked(ctx, "")
}

// Save is Stop plus appending notes to the entry's description with a " | "
// separator, preserving any existing text.
func (s *Session) Save(ctx context.Context, notes string) (*models.TimeEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCurrentLocked(ctx, notes)
}

func (s *Session) closeCurrentLocked(ctx context.Context, notes string) (*models.TimeEntry, error) {
	if s.current == nil {
		return nil, nil
	}

	end := s.now().Truncate(time.Second)
	s.elapsed = elapsedSince(s.current.StartTime, end)
	running := false
	patch := models.EntryPatch{
		EndTime:   &end,
		IsRunning: &running,
	}
	if notes != "" {
		desc := s.current.Description
		if desc != "" {
			desc = desc + " | " + notes
		} else {
			desc = notes
		}
		patch.Description = &desc
	}

	entry, err := s.gw.UpdateEntry(ctx, s.current.ID, patch)
	if err != nil {
		// Prior phase is preserved: the entry is still running in the store.
		s.notifier.Notify(notify.Notification{
			Title:       "Could not stop timer",
			Description: err.Error(),
			Severity:    notify.SeverityError,
		})
		return nil, err
	}

	minutes := s.elapsed / 60
	s.stopTickLocked()
	s.current = nil
	s.phase = PhaseIdle
	s.elapsed = 0
	s.refreshOrWarnLocked(ctx)

	s.notifier.Notify(notify.Notification{
		Title:       "Timer stopped",
		Description: fmt.Sprintf("Recorded %d min", minutes),
		Severity:    notify.SeveritySuccess,
	})
	return entry, nil
}

// Pause freezes the displayed elapsed time. It is a local toggle only; the
// persisted entry keeps running in the store.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != PhaseRunning {
		return
	}
	s.elapsed = elapsedSince(s.current.StartTime, s.now())
	s.stopTickLocked()
	s.phase = PhasePaused
}

// Resume restarts the tick driver against the same start anchor, so the
// displayed time jumps to the true wall-clock elapsed. No-op without a
// current entry.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || s.phase != PhasePaused {
		return
	}
	s.elapsed = elapsedSince(s.current.StartTime, s.now())
	s.phase = PhaseRunning
	s.startTickLocked()
}

// Reset deletes the current entry without recording any duration. Local
// state is cleared only after the delete succeeds, so a failed delete never
// orphans a running record the session has forgotten about.
func (s *Session) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}

	if err := s.gw.DeleteEntry(ctx, s.current.ID); err != nil {
		s.notifier.Notify(notify.Notification{
			Title:       "Could not discard entry",
			Description: err.Error(),
			Severity:    notify.SeverityError,
		})
		return err
	}

	s.stopTickLocked()
	s.current = nil
	s.phase = PhaseIdle
	s.elapsed = 0
	s.refreshOrWarnLocked(ctx)

	s.notifier.Notify(notify.Notification{
		Title:       "Entry discarded",
		Description: "No time was recorded",
		Severity:    notify.SeverityInfo,
	})
	return nil
}

// UpdateDescription updates the running entry's description. No-op when
// nothing is running.
func (s *Session) UpdateDescription(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	entry, err := s.gw.UpdateEntry(ctx, s.current.ID, models.EntryPatch{Description: &text})
	if err != nil {
		s.notifier.Notify(notify.Notification{
			Title:       "Could not update description",
			Description: err.Error(),
			Severity:    notify.SeverityError,
		})
		return err
	}
	s.current = entry
	return nil
}

// UpdateTags replaces the running entry's tags. No-op when nothing is
// running.
func (s *Session) UpdateTags(ctx context.Context, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	if tags == nil {
		tags = []string{}
	}
	entry, err := s.gw.UpdateEntry(ctx, s.current.ID, models.EntryPatch{Tags: tags})
	if err != nil {
		s.notifier.Notify(notify.Notification{
			Title:       "Could not update tags",
			Description: err.Error(),
			Severity:    notify.SeverityError,
		})
		return err
	}
	s.current = entry
	return nil
}

// Refresh re-queries the today/week aggregates from the store.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshAggregatesLocked(ctx)
}

// Close tears the session down, cancelling the tick driver if it is active
// and waiting for it to exit.
func (s *Session) Close() {
	s.mu.Lock()
	s.stopTickLocked()
	s.mu.Unlock()
	s.tickDone.Wait()
}

// --- Derived state ---

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Current returns the cached running entry, or nil when idle.
func (s *Session) Current() *models.TimeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Elapsed returns elapsed seconds of the current entry. While running it is
// recomputed from the persisted start timestamp, never incremented, so it
// self-corrects after any stall. While paused the last computed value is
// returned frozen.
func (s *Session) Elapsed() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phase {
	case PhaseRunning:
		s.elapsed = elapsedSince(s.current.StartTime, s.now())
		return s.elapsed
	case PhasePaused:
		return s.elapsed
	default:
		return 0
	}
}

// Totals returns the today/week aggregates. Both include the live elapsed
// minutes of a running entry, computed at call time, so they stay current
// without a dedicated tick.
func (s *Session) Totals() models.Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	var live int64
	if s.current != nil {
		live = elapsedSince(s.current.StartTime, s.now()) / 60
	}
	return models.Summary{
		TodayMinutes: s.todayDone + live,
		WeekMinutes:  s.weekDone + live,
		LiveMinutes:  live,
	}
}

// TodayEntries returns the cached list of today's entries, newest first.
func (s *Session) TodayEntries() []models.TimeEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.TimeEntry, len(s.todayEntries))
	copy(out, s.todayEntries)
	return out
}

// --- Internals ---

// refreshAggregatesLocked re-queries today's entries and the completed week
// total. Aggregates are rebuilt from the store after every mutation rather
// than patched incrementally.
func (s *Session) refreshAggregatesLocked(ctx context.Context) error {
	now := s.now()
	today, err := s.gw.EntriesSince(ctx, s.owner, DayStart(now, s.loc))
	if err != nil {
		return fmt.Errorf("refresh today entries: %w", err)
	}
	weekDone, err := s.gw.CompletedMinutesSince(ctx, s.owner, WeekStart(now, s.loc))
	if err != nil {
		return fmt.Errorf("refresh week total: %w", err)
	}
	s.todayEntries = today
	s.todayDone = sumCompleted(today)
	s.weekDone = weekDone
	return nil
}

// refreshOrWarnLocked re-queries the aggregates after a successful mutation.
// The mutation itself already succeeded, so a failed re-query is reported as
// a warning about stale totals rather than an operation error.
func (s *Session) refreshOrWarnLocked(ctx context.Context) {
	if err := s.refreshAggregatesLocked(ctx); err != nil {
		s.notifier.Notify(notify.Notification{
			Title:       "Totals may be stale",
			Description: err.Error(),
			Severity:    notify.SeverityWarning,
		})
	}
}

func sumCompleted(entries []models.TimeEntry) int64 {
	var total int64
	for i := range entries {
		if entries[i].DurationMinutes != nil {
			total += *entries[i].DurationMinutes
		}
	}
	return total
}

func elapsedSince(start, now time.Time) int64 {
	d := now.Sub(start)
	if d < 0 {
		return 0
	}
	return int64(d / time.Second)
}

// FormatElapsed renders elapsed seconds as H:MM:SS.
func FormatElapsed(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, sec)
}

// FormatTags renders a tag list for display.
func FormatTags(tags []string) string {
	return strings.Join(tags, ", ")
}
