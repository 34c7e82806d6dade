// Package parser defines core domain types shared across the parsing
// pipeline: distributor identity, scraped listing/detail models, and the
// publication event emitted to the downstream bus.
package parser

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DistributorCode identifies one external distributor site.
type DistributorCode string

// Known distributor codes. Each must have a registered parser pair before
// its jobs can be scheduled.
const (
	DistributorOsmoseProductions DistributorCode = "osmose_productions"
	DistributorDrakkar           DistributorCode = "drakkar"
	DistributorBlackMetalVendor  DistributorCode = "black_metal_vendor"
	DistributorBlackMetalStore   DistributorCode = "black_metal_store"
	DistributorNapalmRecords     DistributorCode = "napalm_records"
	DistributorSeasonOfMist      DistributorCode = "season_of_mist"
	DistributorParagonRecords    DistributorCode = "paragon_records"
)

// AllDistributors lists every known code, in a stable order.
func AllDistributors() []DistributorCode {
	return []DistributorCode{
		DistributorOsmoseProductions,
		DistributorDrakkar,
		DistributorBlackMetalVendor,
		DistributorBlackMetalStore,
		DistributorNapalmRecords,
		DistributorSeasonOfMist,
		DistributorParagonRecords,
	}
}

// Valid reports whether c is a known distributor code.
func (c DistributorCode) Valid() bool {
	for _, known := range AllDistributors() {
		if c == known {
			return true
		}
	}
	return false
}

func (c DistributorCode) String() string { return string(c) }

// ParseDistributorCode converts a raw string into a DistributorCode,
// failing fast on unknown values.
func ParseDistributorCode(s string) (DistributorCode, error) {
	code := DistributorCode(s)
	if !code.Valid() {
		return "", fmt.Errorf("unknown distributor code %q", s)
	}
	return code, nil
}

// MediaType describes the physical format of a release.
type MediaType string

// Media type values carried through listing and detail records.
const (
	MediaCD       MediaType = "cd"
	MediaVinyl    MediaType = "vinyl"
	MediaTape     MediaType = "tape"
	MediaBoxSet   MediaType = "box_set"
	MediaDigital  MediaType = "digital"
	MediaClothing MediaType = "clothing"
)

// AlbumAvailability mirrors the stock status reported by a detail page.
type AlbumAvailability string

const (
	AlbumInStock    AlbumAvailability = "in_stock"
	AlbumPreorder   AlbumAvailability = "preorder"
	AlbumOutOfStock AlbumAvailability = "out_of_stock"
)

// ListingItem is one entry scraped from a distributor's listing page.
type ListingItem struct {
	BandName   string     `json:"bandName"`
	AlbumTitle string     `json:"albumTitle"`
	RawTitle   string     `json:"rawTitle"`
	DetailURL  string     `json:"detailUrl"`
	MediaType  *MediaType `json:"mediaType,omitempty"`
}

// ListingPageResult is what a ListingParser returns for a single page.
// NextPageURL is empty on the last page.
type ListingPageResult struct {
	Items       []ListingItem `json:"items"`
	NextPageURL string        `json:"nextPageUrl,omitempty"`
}

// HasMorePages reports whether pagination should continue.
func (r ListingPageResult) HasMorePages() bool { return r.NextPageURL != "" }

// AlbumParsedEvent is the record produced for one parsed album detail page.
// Its JSON encoding is the wire representation staged in the outbox and
// chunked by the publisher.
type AlbumParsedEvent struct {
	DistributorCode DistributorCode    `json:"distributorCode"`
	BandName        string             `json:"bandName"`
	SKU             string             `json:"sku"`
	Name            string             `json:"name"`
	ParsedTitle     string             `json:"parsedTitle"`
	CanonicalTitle  *string            `json:"canonicalTitle,omitempty"`
	OriginalYear    *int               `json:"originalYear,omitempty"`
	ReleaseDate     time.Time          `json:"releaseDate"`
	Genre           *string            `json:"genre,omitempty"`
	Price           float64            `json:"price"`
	PurchaseURL     string             `json:"purchaseUrl"`
	PhotoURL        string             `json:"photoUrl"`
	Media           *MediaType         `json:"media,omitempty"`
	Label           string             `json:"label"`
	Press           string             `json:"press"`
	Description     *string            `json:"description,omitempty"`
	Status          *AlbumAvailability `json:"status,omitempty"`
}

// AlbumParsedPublicationEvent is the single message published per parsing
// session once its chunked payload has been uploaded. It is the only
// contract this service emits cross-service.
type AlbumParsedPublicationEvent struct {
	ParsingSessionID uuid.UUID       `json:"parsingSessionId"`
	DistributorCode  DistributorCode `json:"distributorCode"`
	CreatedDate      time.Time       `json:"createdDate"`
	StorageFilePaths []string        `json:"storageFilePaths"`
}
