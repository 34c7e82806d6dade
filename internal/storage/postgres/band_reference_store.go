package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/metaltracker/parser-service/internal/store"
)

// BandReferenceStore reads the band reference dataset from Postgres. The
// tables are owned by the reference sync service; nothing here writes.
type BandReferenceStore struct {
	pool dbPool
}

// NewBandReferenceStore constructs a BandReferenceStore from an existing
// pool.
func NewBandReferenceStore(pool dbPool) (*BandReferenceStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &BandReferenceStore{pool: pool}, nil
}

// BandReferenceIDsByName maps band names to their reference ids.
func (s *BandReferenceStore) BandReferenceIDsByName(ctx context.Context) (map[string]uuid.UUID, error) {
	query := `SELECT id, band_name FROM band_references;`
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list band references: %w", err)
	}
	defer rows.Close()

	out := make(map[string]uuid.UUID)
	for rows.Next() {
		var id uuid.UUID
		var name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan band reference: %w", err)
		}
		out[name] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate band references: %w", err)
	}
	return out, nil
}

// DiscographyByID resolves one discography entry for canonicalization.
func (s *BandReferenceStore) DiscographyByID(ctx context.Context, id uuid.UUID) (store.BandDiscographyEntry, error) {
	query := `
		SELECT id, band_reference_id, album_title, normalized_album_title, album_type, release_year
		FROM band_discography
		WHERE id = $1;
	`
	var entry store.BandDiscographyEntry
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&entry.ID, &entry.BandReferenceID, &entry.AlbumTitle,
		&entry.NormalizedAlbumTitle, &entry.AlbumType, &entry.Year)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.BandDiscographyEntry{}, store.ErrNotFound
		}
		return store.BandDiscographyEntry{}, fmt.Errorf("get discography entry %s: %w", id, err)
	}
	return entry, nil
}
