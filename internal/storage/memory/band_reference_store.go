package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/store"
)

// BandReferenceStore provides an in-memory store.BandReferenceStore.
// Tests seed it with bands and discography entries up front.
type BandReferenceStore struct {
	mu          sync.RWMutex
	bands       map[uuid.UUID]store.BandReference
	discography map[uuid.UUID]store.BandDiscographyEntry
}

// NewBandReferenceStore constructs an empty BandReferenceStore.
func NewBandReferenceStore() *BandReferenceStore {
	return &BandReferenceStore{
		bands:       make(map[uuid.UUID]store.BandReference),
		discography: make(map[uuid.UUID]store.BandDiscographyEntry),
	}
}

// AddBand seeds a band reference, generating an id when missing.
func (s *BandReferenceStore) AddBand(band store.BandReference) store.BandReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	if band.ID == uuid.Nil {
		band.ID = uuid.New()
	}
	s.bands[band.ID] = band
	return band
}

// AddDiscographyEntry seeds a discography entry, generating an id and
// deriving the normalized title when missing, the same way the external
// reference sync writes them.
func (s *BandReferenceStore) AddDiscographyEntry(entry store.BandDiscographyEntry) store.BandDiscographyEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.NormalizedAlbumTitle == "" {
		entry.NormalizedAlbumTitle = parser.NormalizeTitle(entry.AlbumTitle)
	}
	s.discography[entry.ID] = entry
	return entry
}

// BandReferenceIDsByName maps band names to their reference ids.
func (s *BandReferenceStore) BandReferenceIDsByName(_ context.Context) (map[string]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]uuid.UUID, len(s.bands))
	for _, band := range s.bands {
		out[band.BandName] = band.ID
	}
	return out, nil
}

// DiscographyByID resolves one discography entry.
func (s *BandReferenceStore) DiscographyByID(_ context.Context, id uuid.UUID) (store.BandDiscographyEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.discography[id]
	if !ok {
		return store.BandDiscographyEntry{}, store.ErrNotFound
	}
	return entry, nil
}
