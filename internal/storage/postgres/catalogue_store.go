package postgres

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/store"
)

// CatalogueStore implements store.CatalogueStore on Postgres. Entries are
// unique on (distributor_code, detail_url).
type CatalogueStore struct {
	pool dbPool
}

// NewCatalogueStore constructs a CatalogueStore from an existing pool.
func NewCatalogueStore(pool dbPool) (*CatalogueStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &CatalogueStore{pool: pool}, nil
}

const catalogueColumns = `id, distributor_code, band_name, album_title, raw_title, detail_url,
	status, media_type, band_reference_id, band_discography_id, created_at, updated_at`

// Upsert inserts or refreshes the entry for (distributor_code,
// detail_url). The conflict branch deliberately leaves status and
// band_discography_id alone so re-indexing a listing never rewinds
// verification progress or severs an established discography link.
func (s *CatalogueStore) Upsert(ctx context.Context, entry store.CatalogueEntry) (store.CatalogueEntry, error) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	query := `
		INSERT INTO catalogue_entries
			(id, distributor_code, band_name, album_title, raw_title, detail_url,
			 status, media_type, band_reference_id, band_discography_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		ON CONFLICT (distributor_code, detail_url) DO UPDATE SET
			band_name = EXCLUDED.band_name,
			album_title = EXCLUDED.album_title,
			raw_title = EXCLUDED.raw_title,
			media_type = EXCLUDED.media_type,
			band_reference_id = EXCLUDED.band_reference_id,
			updated_at = now()
		RETURNING ` + catalogueColumns + `;
	`
	row := s.pool.QueryRow(ctx, query,
		entry.ID, entry.DistributorCode, entry.BandName, entry.AlbumTitle, entry.RawTitle,
		entry.DetailURL, entry.Status, entry.MediaType, entry.BandReferenceID, entry.BandDiscographyID)
	saved, err := scanCatalogueEntry(row)
	if err != nil {
		return store.CatalogueEntry{}, fmt.Errorf("upsert catalogue entry %s: %w", entry.DetailURL, err)
	}
	return saved, nil
}

// GetByDetailURL fetches the entry for the distributor's detail URL.
func (s *CatalogueStore) GetByDetailURL(ctx context.Context, code parser.DistributorCode, detailURL string) (store.CatalogueEntry, error) {
	query := `SELECT ` + catalogueColumns + ` FROM catalogue_entries WHERE distributor_code = $1 AND detail_url = $2;`
	entry, err := scanCatalogueEntry(s.pool.QueryRow(ctx, query, code, detailURL))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.CatalogueEntry{}, store.ErrNotFound
		}
		return store.CatalogueEntry{}, fmt.Errorf("get catalogue entry %s: %w", detailURL, err)
	}
	return entry, nil
}

// ListByStatuses returns the distributor's entries in any of the given
// statuses, oldest first so long-waiting entries are parsed first.
func (s *CatalogueStore) ListByStatuses(ctx context.Context, code parser.DistributorCode, statuses []store.CatalogueStatus) ([]store.CatalogueEntry, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	query := `
		SELECT ` + catalogueColumns + `
		FROM catalogue_entries
		WHERE distributor_code = $1 AND status = ANY($2)
		ORDER BY created_at ASC, id ASC;
	`
	values := make([]string, len(statuses))
	for i, st := range statuses {
		values[i] = string(st)
	}
	rows, err := s.pool.Query(ctx, query, code, values)
	if err != nil {
		return nil, fmt.Errorf("list catalogue entries for %s: %w", code, err)
	}
	defer rows.Close()
	return collectCatalogueEntries(rows)
}

// List returns entries matching the filter for the admin API.
func (s *CatalogueStore) List(ctx context.Context, filter store.CatalogueFilter) ([]store.CatalogueEntry, error) {
	builder := sq.Select("id", "distributor_code", "band_name", "album_title", "raw_title",
		"detail_url", "status", "media_type", "band_reference_id", "band_discography_id",
		"created_at", "updated_at").
		From("catalogue_entries").
		OrderBy("created_at ASC", "id ASC").
		PlaceholderFormat(sq.Dollar)
	if filter.Distributor != nil {
		builder = builder.Where(sq.Eq{"distributor_code": *filter.Distributor})
	}
	if filter.Status != nil {
		builder = builder.Where(sq.Eq{"status": *filter.Status})
	}
	if filter.BandName != "" {
		builder = builder.Where("lower(band_name) = lower(?)", filter.BandName)
	}
	if filter.Limit > 0 {
		builder = builder.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		builder = builder.Offset(uint64(filter.Offset))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build catalogue list query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list catalogue entries: %w", err)
	}
	defer rows.Close()
	return collectCatalogueEntries(rows)
}

// UpdateStatus sets an entry's status by id.
func (s *CatalogueStore) UpdateStatus(ctx context.Context, id uuid.UUID, status store.CatalogueStatus) error {
	query := `UPDATE catalogue_entries SET status = $1, updated_at = now() WHERE id = $2;`
	tag, err := s.pool.Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("update catalogue entry %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanCatalogueEntry(row pgx.Row) (store.CatalogueEntry, error) {
	var entry store.CatalogueEntry
	err := row.Scan(
		&entry.ID, &entry.DistributorCode, &entry.BandName, &entry.AlbumTitle, &entry.RawTitle,
		&entry.DetailURL, &entry.Status, &entry.MediaType, &entry.BandReferenceID,
		&entry.BandDiscographyID, &entry.CreatedAt, &entry.UpdatedAt)
	return entry, err
}

func collectCatalogueEntries(rows pgx.Rows) ([]store.CatalogueEntry, error) {
	var out []store.CatalogueEntry
	for rows.Next() {
		entry, err := scanCatalogueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan catalogue row: %w", err)
		}
		out = append(out, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate catalogue rows: %w", err)
	}
	return out, nil
}
