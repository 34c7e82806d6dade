package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/store"
)

type catalogueKey struct {
	code      parser.DistributorCode
	detailURL string
}

// CatalogueStore provides an in-memory store.CatalogueStore keyed on
// (distributor, detail URL).
type CatalogueStore struct {
	mu      sync.RWMutex
	entries map[catalogueKey]store.CatalogueEntry
	byID    map[uuid.UUID]catalogueKey
	now     func() time.Time
}

// NewCatalogueStore constructs an empty CatalogueStore.
func NewCatalogueStore() *CatalogueStore {
	return &CatalogueStore{
		entries: make(map[catalogueKey]store.CatalogueEntry),
		byID:    make(map[uuid.UUID]catalogueKey),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Upsert inserts or refreshes the entry for (DistributorCode, DetailURL).
// Existing rows keep their ID, Status, BandDiscographyID and CreatedAt;
// everything else is refreshed from the incoming entry.
func (s *CatalogueStore) Upsert(_ context.Context, entry store.CatalogueEntry) (store.CatalogueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := catalogueKey{code: entry.DistributorCode, detailURL: entry.DetailURL}
	now := s.now()
	if existing, ok := s.entries[key]; ok {
		existing.BandName = entry.BandName
		existing.AlbumTitle = entry.AlbumTitle
		existing.RawTitle = entry.RawTitle
		existing.MediaType = entry.MediaType
		existing.BandReferenceID = entry.BandReferenceID
		existing.UpdatedAt = now
		s.entries[key] = existing
		return existing, nil
	}
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.CreatedAt = now
	entry.UpdatedAt = now
	s.entries[key] = entry
	s.byID[entry.ID] = key
	return entry, nil
}

// GetByDetailURL fetches the entry for the distributor's detail URL.
func (s *CatalogueStore) GetByDetailURL(_ context.Context, code parser.DistributorCode, detailURL string) (store.CatalogueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[catalogueKey{code: code, detailURL: detailURL}]
	if !ok {
		return store.CatalogueEntry{}, store.ErrNotFound
	}
	return entry, nil
}

// ListByStatuses returns the distributor's entries in any of the given
// statuses, oldest first.
func (s *CatalogueStore) ListByStatuses(_ context.Context, code parser.DistributorCode, statuses []store.CatalogueStatus) ([]store.CatalogueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[store.CatalogueStatus]struct{}, len(statuses))
	for _, st := range statuses {
		wanted[st] = struct{}{}
	}
	var out []store.CatalogueEntry
	for _, entry := range s.entries {
		if entry.DistributorCode != code {
			continue
		}
		if _, ok := wanted[entry.Status]; !ok {
			continue
		}
		out = append(out, entry)
	}
	sortCatalogueOldestFirst(out)
	return out, nil
}

// List returns entries matching the filter for the admin API.
func (s *CatalogueStore) List(_ context.Context, filter store.CatalogueFilter) ([]store.CatalogueEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.CatalogueEntry
	for _, entry := range s.entries {
		if filter.Distributor != nil && entry.DistributorCode != *filter.Distributor {
			continue
		}
		if filter.Status != nil && entry.Status != *filter.Status {
			continue
		}
		if filter.BandName != "" && !strings.EqualFold(entry.BandName, filter.BandName) {
			continue
		}
		out = append(out, entry)
	}
	sortCatalogueOldestFirst(out)
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// UpdateStatus sets an entry's status by id.
func (s *CatalogueStore) UpdateStatus(_ context.Context, id uuid.UUID, status store.CatalogueStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key, ok := s.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	entry := s.entries[key]
	entry.Status = status
	entry.UpdatedAt = s.now()
	s.entries[key] = entry
	return nil
}

func sortCatalogueOldestFirst(entries []store.CatalogueEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		}
		return entries[i].DetailURL < entries[j].DetailURL
	})
}
