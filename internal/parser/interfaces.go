package parser

import (
	"context"
)

// ListingParser extracts catalogue items from a distributor's listing
// pages. Implementations are per-distributor and own the HTML specifics.
type ListingParser interface {
	Distributor() DistributorCode
	ParseListings(ctx context.Context, url string) (ListingPageResult, error)
}

// AlbumDetailParser extracts a full album record from a detail page.
type AlbumDetailParser interface {
	Distributor() DistributorCode
	ParseAlbumDetail(ctx context.Context, detailURL string) (AlbumParsedEvent, error)
}
