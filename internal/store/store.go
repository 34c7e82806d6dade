// Package store defines the persistence contracts for the parsing
// pipeline: parsing sessions, the album outbox, the catalogue index, and
// the read-only band reference data. Postgres and in-memory
// implementations live under internal/storage.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/metaltracker/parser-service/internal/parser"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ParsingSession is one logical crawl run for a distributor. All outbox
// records produced during the run reference it.
type ParsingSession struct {
	ID              uuid.UUID
	DistributorCode parser.DistributorCode
	Status          SessionStatus
	LastUpdated     time.Time
}

// OutboxRecord stages one serialized AlbumParsedEvent until the publisher
// hands it off. Rows are append-only and never mutated.
type OutboxRecord struct {
	ID        uuid.UUID
	SessionID uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// CatalogueEntry is one deduplicated listing item for a distributor,
// unique on (DistributorCode, DetailURL).
type CatalogueEntry struct {
	ID                uuid.UUID
	DistributorCode   parser.DistributorCode
	BandName          string
	AlbumTitle        string
	RawTitle          string
	DetailURL         string
	Status            CatalogueStatus
	MediaType         *parser.MediaType
	BandReferenceID   *uuid.UUID
	BandDiscographyID *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// BandReference is one known band from the external reference sync.
// Read-only from this service's perspective.
type BandReference struct {
	ID       uuid.UUID
	BandName string
}

// BandDiscographyEntry is one reference album for a band, used to resolve
// canonical titles. Read-only here.
type BandDiscographyEntry struct {
	ID                   uuid.UUID
	BandReferenceID      uuid.UUID
	AlbumTitle           string
	NormalizedAlbumTitle string
	AlbumType            string
	Year                 *int
}

// SessionFilter narrows session listings for the admin API.
type SessionFilter struct {
	Distributor *parser.DistributorCode
	Status      *SessionStatus
	Limit       int
	Offset      int
}

// CatalogueFilter narrows catalogue listings for the admin API.
type CatalogueFilter struct {
	Distributor *parser.DistributorCode
	Status      *CatalogueStatus
	BandName    string
	Limit       int
	Offset      int
}

// SessionStore persists parsing sessions and enforces the transition
// table on status updates.
type SessionStore interface {
	// GetOrCreateIncomplete returns the distributor's Incomplete session,
	// creating one only if none exists. This is what makes crawls
	// resumable: a crashed run's session is picked up, never duplicated.
	GetOrCreateIncomplete(ctx context.Context, code parser.DistributorCode) (ParsingSession, error)

	GetByID(ctx context.Context, id uuid.UUID) (ParsingSession, error)

	// ListByStatus returns all sessions currently in the given status.
	ListByStatus(ctx context.Context, status SessionStatus) ([]ParsingSession, error)

	// List returns sessions matching the filter, newest first.
	List(ctx context.Context, filter SessionFilter) ([]ParsingSession, error)

	// UpdateStatus transitions a session, rejecting illegal transitions.
	UpdateStatus(ctx context.Context, id uuid.UUID, status SessionStatus) error
}

// OutboxStore is the durable append log of parsed albums.
type OutboxStore interface {
	// Append stages one serialized album event for the session.
	Append(ctx context.Context, sessionID uuid.UUID, payload []byte) (OutboxRecord, error)

	// ListBySession returns every record for the session in insertion
	// order. The publisher always reads the full set.
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]OutboxRecord, error)

	CountBySession(ctx context.Context, sessionID uuid.UUID) (int, error)
}

// CatalogueStore maintains the deduplicated catalogue index.
type CatalogueStore interface {
	// Upsert inserts or refreshes the entry keyed on
	// (DistributorCode, DetailURL). For existing rows it updates band
	// name, titles, media type, band reference and UpdatedAt, but leaves
	// Status and BandDiscographyID untouched so verification progress
	// and discography links are never reset.
	Upsert(ctx context.Context, entry CatalogueEntry) (CatalogueEntry, error)

	GetByDetailURL(ctx context.Context, code parser.DistributorCode, detailURL string) (CatalogueEntry, error)

	// ListByStatuses returns the distributor's entries in any of the
	// given statuses, oldest first.
	ListByStatuses(ctx context.Context, code parser.DistributorCode, statuses []CatalogueStatus) ([]CatalogueEntry, error)

	// List returns entries matching the filter for the admin API.
	List(ctx context.Context, filter CatalogueFilter) ([]CatalogueEntry, error)

	UpdateStatus(ctx context.Context, id uuid.UUID, status CatalogueStatus) error
}

// BandReferenceStore reads the external band reference dataset. The sync
// job that writes it is a separate service; everything here is read-only.
type BandReferenceStore interface {
	// BandReferenceIDsByName maps band names to reference ids for linking
	// relevant catalogue entries. Matching against the names is
	// case-insensitive; callers fold case themselves.
	BandReferenceIDsByName(ctx context.Context) (map[string]uuid.UUID, error)

	// DiscographyByID resolves one discography entry for canonicalization.
	DiscographyByID(ctx context.Context, id uuid.UUID) (BandDiscographyEntry, error)
}
