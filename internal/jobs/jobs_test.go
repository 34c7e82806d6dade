package jobs

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/metaltracker/parser-service/internal/metrics"
	"github.com/metaltracker/parser-service/internal/parser"
)

func TestMain(m *testing.M) {
	metrics.Init()
	os.Exit(m.Run())
}

// fakeListingParser serves a fixed sequence of listing pages keyed by URL.
type fakeListingParser struct {
	code  parser.DistributorCode
	pages map[string]parser.ListingPageResult
	errs  map[string]error
	calls []string
}

func (f *fakeListingParser) Distributor() parser.DistributorCode { return f.code }

func (f *fakeListingParser) ParseListings(_ context.Context, url string) (parser.ListingPageResult, error) {
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return parser.ListingPageResult{}, err
	}
	page, ok := f.pages[url]
	if !ok {
		return parser.ListingPageResult{}, fmt.Errorf("no page at %s", url)
	}
	return page, nil
}

// fakeDetailParser serves album events keyed by detail URL.
type fakeDetailParser struct {
	code   parser.DistributorCode
	albums map[string]parser.AlbumParsedEvent
	errs   map[string]error
	calls  []string
}

func (f *fakeDetailParser) Distributor() parser.DistributorCode { return f.code }

func (f *fakeDetailParser) ParseAlbumDetail(_ context.Context, detailURL string) (parser.AlbumParsedEvent, error) {
	f.calls = append(f.calls, detailURL)
	if err, ok := f.errs[detailURL]; ok {
		return parser.AlbumParsedEvent{}, err
	}
	event, ok := f.albums[detailURL]
	if !ok {
		return parser.AlbumParsedEvent{}, fmt.Errorf("no album at %s", detailURL)
	}
	return event, nil
}

func newTestRegistry(t *testing.T, listing parser.ListingParser, detail parser.AlbumDetailParser) *parser.Registry {
	t.Helper()
	reg := parser.NewRegistry()
	if err := reg.Register(listing, detail); err != nil {
		t.Fatalf("register test parsers: %v", err)
	}
	return reg
}
