package parser

import (
	"fmt"
	"sort"
)

type parserPair struct {
	listing ListingParser
	detail  AlbumDetailParser
}

// Registry maps distributor codes to their parser implementations. It is
// populated once at startup; lookups fail fast on unsupported codes.
type Registry struct {
	parsers map[DistributorCode]parserPair
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: make(map[DistributorCode]parserPair)}
}

// Register adds a listing/detail parser pair for one distributor.
// Registering the same code twice is a programming error.
func (r *Registry) Register(listing ListingParser, detail AlbumDetailParser) error {
	if listing == nil || detail == nil {
		return fmt.Errorf("listing and detail parsers are both required")
	}
	code := listing.Distributor()
	if code != detail.Distributor() {
		return fmt.Errorf("parser pair distributor mismatch: %s vs %s", code, detail.Distributor())
	}
	if !code.Valid() {
		return fmt.Errorf("unknown distributor code %q", code)
	}
	if _, exists := r.parsers[code]; exists {
		return fmt.Errorf("parsers already registered for distributor %s", code)
	}
	r.parsers[code] = parserPair{listing: listing, detail: detail}
	return nil
}

// ListingParser resolves the listing parser for a distributor.
func (r *Registry) ListingParser(code DistributorCode) (ListingParser, error) {
	pair, ok := r.parsers[code]
	if !ok {
		return nil, fmt.Errorf("unsupported distributor %s: no listing parser registered", code)
	}
	return pair.listing, nil
}

// DetailParser resolves the album detail parser for a distributor.
func (r *Registry) DetailParser(code DistributorCode) (AlbumDetailParser, error) {
	pair, ok := r.parsers[code]
	if !ok {
		return nil, fmt.Errorf("unsupported distributor %s: no detail parser registered", code)
	}
	return pair.detail, nil
}

// Registered returns the distributor codes with parsers, sorted.
func (r *Registry) Registered() []DistributorCode {
	codes := make([]DistributorCode, 0, len(r.parsers))
	for code := range r.parsers {
		codes = append(codes, code)
	}
	sort.Slice(codes, func(i, j int) bool { return codes[i] < codes[j] })
	return codes
}
