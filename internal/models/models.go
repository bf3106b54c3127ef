// Package models defines the core domain types for trackd.
package models

import "time"

// TimeEntry is one persisted unit of tracked time, bounded by a start
// timestamp and, once closed, an end timestamp. DurationMinutes is computed
// by the store from the two timestamps and is never written by clients.
type TimeEntry struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"owner_id"`
	ProjectID       string     `json:"project_id,omitempty"`
	ClientID        string     `json:"client_id,omitempty"`
	Description     string     `json:"description,omitempty"`
	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes *int64     `json:"duration_minutes,omitempty"`
	IsBillable      bool       `json:"is_billable"`
	HourlyRate      *float64   `json:"hourly_rate,omitempty"`
	IsRunning       bool       `json:"is_running"`
	Tags            []string   `json:"tags,omitempty"`
}

// Completed reports whether the entry has been closed.
func (e *TimeEntry) Completed() bool {
	return e.EndTime != nil && !e.IsRunning
}

// EntryPatch is the set of fields a client may update on an existing entry.
// Nil fields are left unchanged. Duration is deliberately absent: it is
// derived by the store from StartTime/EndTime.
//
// Tags must not carry omitempty: an empty non-nil slice means "clear the
// tags" and has to survive marshaling, while nil marshals to null and keeps
// them unchanged.
type EntryPatch struct {
	EndTime     *time.Time `json:"end_time,omitempty"`
	IsRunning   *bool      `json:"is_running,omitempty"`
	Description *string    `json:"description,omitempty"`
	Tags        []string   `json:"tags"`
}

// Empty reports whether the patch would change nothing.
func (p *EntryPatch) Empty() bool {
	return p.EndTime == nil && p.IsRunning == nil && p.Description == nil && p.Tags == nil
}

// Profile holds per-owner settings. HourlyRate is snapshotted onto entries
// at start time, never re-read mid-entry.
type Profile struct {
	OwnerID     string  `json:"owner_id"`
	DisplayName string  `json:"display_name,omitempty"`
	HourlyRate  float64 `json:"hourly_rate"`
	Timezone    string  `json:"timezone,omitempty"`
}

// Summary is a derived aggregate over an owner's entries.
type Summary struct {
	TodayMinutes int64 `json:"today_minutes"`
	WeekMinutes  int64 `json:"week_minutes"`
	LiveMinutes  int64 `json:"live_minutes"`
}

// AuditRecord is one row of the append-only trail of mutating timer commands.
type AuditRecord struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	OwnerID   string    `json:"owner_id"`
	EntryID   string    `json:"entry_id,omitempty"`
	Outcome   string    `json:"outcome"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
