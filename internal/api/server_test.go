package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/omerbl/trackd/internal/models"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := newTestService(t, ConflictReject)
	ts := httptest.NewServer(NewServer(svc, "").Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("Failed to marshal payload: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s failed: %v", url, err)
	}
	return resp
}

func doJSON(t *testing.T, method, url string, payload any) *http.Response {
	t.Helper()
	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("Failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("Failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s failed: %v", method, url, err)
	}
	return resp
}

func decodeEntry(t *testing.T, resp *http.Response) models.TimeEntry {
	t.Helper()
	defer resp.Body.Close()
	var entry models.TimeEntry
	if err := json.NewDecoder(resp.Body).Decode(&entry); err != nil {
		t.Fatalf("Failed to decode entry: %v", err)
	}
	return entry
}

func TestCreateEntryEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entries", map[string]any{
		"owner_id":    "owner-1",
		"description": "תכנון",
		"is_billable": true,
		"tags":        []string{"crm"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	entry := decodeEntry(t, resp)
	if entry.ID == "" || !entry.IsRunning {
		t.Errorf("Unexpected entry: %+v", entry)
	}
	if entry.Description != "תכנון" {
		t.Errorf("Expected description to round-trip, got %q", entry.Description)
	}
}

func TestCreateEntryConflict(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entries", map[string]any{"owner_id": "owner-1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("Expected 201, got %d", resp.StatusCode)
	}

	resp = postJSON(t, ts.URL+"/entries", map[string]any{"owner_id": "owner-1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("Expected 409, got %d", resp.StatusCode)
	}
}

func TestCreateEntryWithoutOwner(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entries", map[string]any{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
}

func TestRunningEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/entries/running?owner=owner-1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 with nothing running, got %d", resp.StatusCode)
	}

	created := decodeEntry(t, postJSON(t, ts.URL+"/entries", map[string]any{"owner_id": "owner-1"}))

	resp, err = http.Get(ts.URL + "/entries/running?owner=owner-1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	running := decodeEntry(t, resp)
	if running.ID != created.ID {
		t.Errorf("Expected running entry %s, got %s", created.ID, running.ID)
	}
}

func TestPatchStopDerivesDuration(t *testing.T) {
	ts := newTestServer(t)

	created := decodeEntry(t, postJSON(t, ts.URL+"/entries", map[string]any{"owner_id": "owner-1"}))

	end := created.StartTime.Add(90 * time.Second)
	isRunning := false
	resp := doJSON(t, http.MethodPatch, ts.URL+"/entries/"+created.ID, models.EntryPatch{
		EndTime:   &end,
		IsRunning: &isRunning,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	updated := decodeEntry(t, resp)
	if updated.IsRunning {
		t.Error("Entry should no longer be running")
	}
	if updated.DurationMinutes == nil || *updated.DurationMinutes != 1 {
		t.Errorf("Expected derived duration 1, got %v", updated.DurationMinutes)
	}
}

func TestPatchClearsTags(t *testing.T) {
	ts := newTestServer(t)

	created := decodeEntry(t, postJSON(t, ts.URL+"/entries", map[string]any{
		"owner_id": "owner-1",
		"tags":     []string{"crm", "design"},
	}))
	if len(created.Tags) != 2 {
		t.Fatalf("Expected 2 tags on create, got %v", created.Tags)
	}

	// An explicit empty list must clear the tags end to end
	resp := doJSON(t, http.MethodPatch, ts.URL+"/entries/"+created.ID, models.EntryPatch{Tags: []string{}})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	updated := decodeEntry(t, resp)
	if len(updated.Tags) != 0 {
		t.Errorf("Expected tags cleared, got %v", updated.Tags)
	}

	// A patch that says nothing about tags must leave them alone
	desc := "keep tags"
	created2 := decodeEntry(t, postJSON(t, ts.URL+"/entries", map[string]any{
		"owner_id": "owner-2",
		"tags":     []string{"crm"},
	}))
	resp = doJSON(t, http.MethodPatch, ts.URL+"/entries/"+created2.ID, models.EntryPatch{Description: &desc})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}
	updated = decodeEntry(t, resp)
	if len(updated.Tags) != 1 || updated.Tags[0] != "crm" {
		t.Errorf("Expected tags unchanged, got %v", updated.Tags)
	}
}

func TestPatchMissingEntry(t *testing.T) {
	ts := newTestServer(t)

	desc := "x"
	resp := doJSON(t, http.MethodPatch, ts.URL+"/entries/missing-id", models.EntryPatch{Description: &desc})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", resp.StatusCode)
	}
}

func TestDeleteEndpoint(t *testing.T) {
	ts := newTestServer(t)

	created := decodeEntry(t, postJSON(t, ts.URL+"/entries", map[string]any{"owner_id": "owner-1"}))

	resp := doJSON(t, http.MethodDelete, ts.URL+"/entries/"+created.ID, nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/entries/" + created.ID)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", resp.StatusCode)
	}
}

func TestMinutesEndpoint(t *testing.T) {
	ts := newTestServer(t)

	created := decodeEntry(t, postJSON(t, ts.URL+"/entries", map[string]any{"owner_id": "owner-1"}))
	end := created.StartTime.Add(45 * time.Minute)
	isRunning := false
	resp := doJSON(t, http.MethodPatch, ts.URL+"/entries/"+created.ID, models.EntryPatch{EndTime: &end, IsRunning: &isRunning})
	resp.Body.Close()

	since := created.StartTime.Add(-time.Hour).Format(time.RFC3339)
	resp, err := http.Get(fmt.Sprintf("%s/entries/minutes?owner=owner-1&since=%s", ts.URL, since))
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var payload map[string]int64
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if payload["minutes"] != 45 {
		t.Errorf("Expected 45 minutes, got %d", payload["minutes"])
	}
}

func TestListEntriesEndpoint(t *testing.T) {
	ts := newTestServer(t)

	created := decodeEntry(t, postJSON(t, ts.URL+"/entries", map[string]any{"owner_id": "owner-1"}))
	end := created.StartTime.Add(10 * time.Minute)
	isRunning := false
	resp := doJSON(t, http.MethodPatch, ts.URL+"/entries/"+created.ID, models.EntryPatch{EndTime: &end, IsRunning: &isRunning})
	resp.Body.Close()

	since := created.StartTime.Add(-time.Hour).Format(time.RFC3339)
	resp, err := http.Get(fmt.Sprintf("%s/entries?owner=owner-1&since=%s", ts.URL, since))
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	var entries []models.TimeEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != created.ID {
		t.Errorf("Unexpected entries: %+v", entries)
	}
}

func TestProfileEndpoints(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/profiles/owner-1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 for missing profile, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPut, ts.URL+"/profiles/owner-1", models.Profile{
		DisplayName: "אורית",
		HourlyRate:  150,
		Timezone:    "Asia/Jerusalem",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/profiles/owner-1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	var profile models.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	if profile.OwnerID != "owner-1" || profile.HourlyRate != 150 {
		t.Errorf("Unexpected profile: %+v", profile)
	}
}

func TestSummaryEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/entries", map[string]any{"owner_id": "owner-1"})
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/entries/summary?owner=owner-1")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200, got %d", resp.StatusCode)
	}

	var summary models.Summary
	if err := json.NewDecoder(resp.Body).Decode(&summary); err != nil {
		t.Fatalf("Failed to decode: %v", err)
	}
	// Just started, so nothing has accrued yet
	if summary.LiveMinutes != 0 {
		t.Errorf("Expected 0 live minutes, got %d", summary.LiveMinutes)
	}
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected 200, got %d", resp.StatusCode)
	}
}
