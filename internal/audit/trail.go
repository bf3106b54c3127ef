// Package audit writes the append-only trail of mutating timer commands.
package audit

import (
	"log"

	"github.com/omerbl/trackd/internal/models"
	"github.com/omerbl/trackd/internal/store"
)

// Trail appends audit records for state-mutating timer actions.
type Trail struct {
	store *store.Store
}

// NewTrail creates a new audit trail over the store.
func NewTrail(s *store.Store) *Trail {
	return &Trail{store: s}
}

// Record appends one audit record. Audit failures are logged, never
// propagated: a lost audit row must not fail the command it describes.
func (t *Trail) Record(action, ownerID, entryID, outcome, detail string) *models.AuditRecord {
	rec, err := t.store.AppendAudit(action, ownerID, entryID, outcome, detail)
	if err != nil {
		log.Printf("audit: failed to record %s for %s: %v", action, ownerID, err)
		return nil
	}
	return rec
}
