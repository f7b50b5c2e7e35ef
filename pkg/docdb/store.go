// Package docdb implements the document-DB writer (§4.7): the 30-iteration
// optimistic-concurrency retry loop and find_or_create, realized against a
// Postgres/JSONB-backed "artifacts" table instead of a Mongo collection
// (see SPEC_FULL.md §4.7 for the reasoned substitution).
package docdb

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/fedora-ci/kaijs-go/pkg/artifact"
	"github.com/fedora-ci/kaijs-go/pkg/kaierrors"
)

// maxDocumentBytes mirrors the 16 MiB BSON ceiling §4.7 point h enforces;
// Postgres has no equivalent native limit, so the check runs in Go against
// the marshaled JSONB payload.
const maxDocumentBytes = 16 * 1024 * 1024

// maxOCCAttempts is the retry ceiling of §4.7 step 2.
const maxOCCAttempts = 30

// artifactRow is the Postgres row shape backing the artifacts collection:
// indexed identity/version columns alongside one opaque JSONB blob holding
// the full artifact.Document.
type artifactRow struct {
	ID        int64     `gorm:"column:id;primaryKey"`
	Type      string    `gorm:"column:type;uniqueIndex:idx_artifacts_type_aid"`
	AID       string    `gorm:"column:aid;uniqueIndex:idx_artifacts_type_aid"`
	Version   int64     `gorm:"column:version"`
	Data      []byte    `gorm:"column:data;type:jsonb"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (artifactRow) TableName() string { return "artifacts" }

func rowToDocument(row artifactRow) (*artifact.Document, error) {
	var doc artifact.Document
	if err := json.Unmarshal(row.Data, &doc); err != nil {
		return nil, err
	}
	doc.ID = row.ID
	doc.Type = artifact.Type(row.Type)
	doc.AID = row.AID
	doc.Version = row.Version
	doc.Updated = row.UpdatedAt
	return &doc, nil
}

// Store is the document-DB writer.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an already-connected *gorm.DB.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// FindOrCreate implements §4.7.2: returns the existing document for id, or
// creates one seeded at _version=1 if absent. Always returns a document
// with at least the invariant fields populated.
func (s *Store) FindOrCreate(ctx context.Context, id artifact.Identity) (*artifact.Document, error) {
	var row artifactRow
	err := s.db.WithContext(ctx).
		Where("type = ? AND aid = ?", string(id.Type), id.ID).
		First(&row).Error
	if err == nil {
		return rowToDocument(row)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	doc := artifact.New(id)
	data, merr := json.Marshal(doc)
	if merr != nil {
		return nil, merr
	}
	row = artifactRow{Type: string(id.Type), AID: id.ID, Version: 1, Data: data, UpdatedAt: time.Now().UTC()}

	if cerr := s.db.WithContext(ctx).Create(&row).Error; cerr != nil {
		// Lost the create race to a concurrent writer: re-read.
		var existing artifactRow
		if rerr := s.db.WithContext(ctx).
			Where("type = ? AND aid = ?", string(id.Type), id.ID).
			First(&existing).Error; rerr == nil {
			return rowToDocument(existing)
		}
		return nil, cerr
	}
	return rowToDocument(row)
}

// Compute produces the next candidate document from the currently stored
// one. Handlers supply this via pkg/dispatch.Handler.DocDB indirectly,
// through the loader's wiring.
type Compute func(ctx context.Context, current *artifact.Document) (*artifact.Document, error)

// Write runs the §4.7 OCC loop: recompute, diff, and attempt a
// version-CAS update, retrying on conflict up to maxOCCAttempts times.
func (s *Store) Write(ctx context.Context, id artifact.Identity, compute Compute) (*artifact.Document, error) {
	const op = "docdb.Write"

	for attempt := 0; attempt < maxOCCAttempts; attempt++ {
		current, err := s.FindOrCreate(ctx, id)
		if err != nil {
			return nil, err
		}

		computed, err := compute(ctx, current)
		if err != nil {
			return nil, err
		}

		currentMap, err := artifact.ToMap(current)
		if err != nil {
			return nil, err
		}
		computedMap, err := artifact.ToMap(computed)
		if err != nil {
			return nil, err
		}

		if len(artifact.MkUpdateSet(currentMap, computedMap)) == 0 {
			return computed, nil
		}

		raw, err := json.Marshal(computed)
		if err != nil {
			return nil, err
		}
		if len(raw) > maxDocumentBytes {
			return nil, kaierrors.ToLargeDocumentError(op, len(raw))
		}

		res := s.db.WithContext(ctx).Exec(
			`UPDATE artifacts SET data = ?, version = version + 1, updated_at = now() WHERE id = ? AND version = ?`,
			raw, current.ID, current.Version,
		)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			computed.Version = current.Version + 1
			return computed, nil
		}
		// Lost the CAS race: reload and retry.
	}

	return nil, kaierrors.TransientConflictError(op, maxOCCAttempts)
}
