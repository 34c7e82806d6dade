// Package osmose implements listing and detail parsing for the Osmose
// Productions webshop.
package osmose

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/fetch"
	"github.com/metaltracker/parser-service/internal/parser"
)

// Parser scrapes osmoseproductions.com listing and album detail pages.
// It implements both parser.ListingParser and parser.AlbumDetailParser.
type Parser struct {
	fetcher fetch.PageFetcher
	logger  *zap.Logger
}

// New builds an Osmose Productions parser on top of the given fetcher.
func New(fetcher fetch.PageFetcher, logger *zap.Logger) *Parser {
	return &Parser{fetcher: fetcher, logger: logger}
}

// Distributor identifies the site this parser handles.
func (p *Parser) Distributor() parser.DistributorCode {
	return parser.DistributorOsmoseProductions
}

// ParseListings extracts catalogue items from one listing page and
// resolves the next page link, if any.
func (p *Parser) ParseListings(ctx context.Context, url string) (parser.ListingPageResult, error) {
	doc, err := p.document(ctx, url)
	if err != nil {
		return parser.ListingPageResult{}, err
	}

	var result parser.ListingPageResult
	doc.Find("div.row.GshopListingA div.column.three.mobile-four").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find("a").First().Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		raw := strings.TrimSpace(s.Find("span.cufonAb").First().Text())
		band, album, media := splitRawTitle(raw)
		result.Items = append(result.Items, parser.ListingItem{
			BandName:   band,
			AlbumTitle: album,
			RawTitle:   raw,
			DetailURL:  strings.TrimSpace(href),
			MediaType:  media,
		})
	})

	result.NextPageURL = nextPageURL(doc)
	p.logger.Debug("Listing page scraped",
		zap.String("url", url),
		zap.Int("items", len(result.Items)),
		zap.Bool("has_more", result.HasMorePages()),
	)
	return result, nil
}

// ParseAlbumDetail extracts a full album record from a detail page.
func (p *Parser) ParseAlbumDetail(ctx context.Context, detailURL string) (parser.AlbumParsedEvent, error) {
	doc, err := p.document(ctx, detailURL)
	if err != nil {
		return parser.AlbumParsedEvent{}, err
	}

	bandName := strings.TrimSpace(doc.Find("span.cufonAb a").First().Text())
	name := albumName(doc, bandName)
	if bandName == "" || name == "" {
		return parser.AlbumParsedEvent{}, fmt.Errorf("album header missing at %s", detailURL)
	}

	event := parser.AlbumParsedEvent{
		DistributorCode: p.Distributor(),
		BandName:        bandName,
		Name:            name,
		ParsedTitle:     name,
		SKU:             labeledValue(doc, "Press"),
		Press:           labeledValue(doc, "Press"),
		Price:           parsePrice(doc.Find("span.cufonCd").First().Text()),
		PurchaseURL:     detailURL,
		PhotoURL:        doc.Find("div.photo_prod_container a").AttrOr("access_url", ""),
		Label:           labeledAnchor(doc, "Label"),
		Media:           parseMediaType(labeledValue(doc, "Media")),
		Status:          parseAvailability(doc.Find("span.inforestock").First().Text()),
	}

	if year, err := strconv.Atoi(labeledValue(doc, "Year")); err == nil {
		event.ReleaseDate = time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if info := labeledValue(doc, "Info"); info != "" {
		event.Description = &info
	}

	return event, nil
}

func (p *Parser) document(ctx context.Context, url string) (*goquery.Document, error) {
	page, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if fetch.IsChallengePage(page.Body) {
		return nil, fmt.Errorf("anti-bot challenge at %s", url)
	}
	if page.StatusCode >= 400 {
		return nil, fmt.Errorf("fetch %s: status %d", url, page.StatusCode)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html at %s: %w", url, err)
	}
	return doc, nil
}

// nextPageURL reads the highlighted pagination button and looks for a link
// to the following page number. The last page has no such link.
func nextPageURL(doc *goquery.Document) string {
	current := strings.TrimSpace(doc.Find("div.GtoursPaginationButtonTxt.on span").First().Text())
	n, err := strconv.Atoi(current)
	if err != nil {
		return ""
	}
	href, _ := doc.Find(fmt.Sprintf("a[href*='page=%d']", n+1)).First().Attr("href")
	return strings.TrimSpace(href)
}

// albumName extracts the album part of the detail page header, which
// renders as "<a>BAND</a>&nbsp;Album Title" inside one span.
func albumName(doc *goquery.Document, bandName string) string {
	full := strings.TrimSpace(doc.Find("div.column.twelve span.cufonAb").First().Text())
	name := strings.TrimPrefix(full, bandName)
	return strings.TrimSpace(strings.TrimLeft(name, " "))
}

// labeledValue finds the "<label> : <value>" span for the given label and
// returns the value part.
func labeledValue(doc *goquery.Document, label string) string {
	var out string
	doc.Find("span.cufonEb").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		text := strings.TrimSpace(s.Text())
		if !strings.HasPrefix(text, label) {
			return true
		}
		if _, value, found := strings.Cut(text, ":"); found {
			out = strings.TrimSpace(value)
		}
		return false
	})
	return out
}

// labeledAnchor is labeledValue for fields whose value is a link.
func labeledAnchor(doc *goquery.Document, label string) string {
	var out string
	doc.Find("span.cufonEb").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.HasPrefix(strings.TrimSpace(s.Text()), label) {
			return true
		}
		out = strings.TrimSpace(s.Find("a").First().Text())
		return false
	})
	return out
}

// splitRawTitle breaks a listing title like "MGLA - Exercises in Futility
// LP" into band, album and media format.
func splitRawTitle(raw string) (band, album string, media *parser.MediaType) {
	band, album, found := strings.Cut(raw, " - ")
	if !found {
		return "", strings.TrimSpace(raw), nil
	}
	band = strings.TrimSpace(band)
	album = strings.TrimSpace(album)

	if fields := strings.Fields(album); len(fields) > 1 {
		if m := parseMediaType(fields[len(fields)-1]); m != nil {
			media = m
			album = strings.TrimSpace(strings.Join(fields[:len(fields)-1], " "))
		}
	}
	return band, album, media
}

func parsePrice(text string) float64 {
	cleaned := strings.NewReplacer(" ", " ", "EUR", " ").Replace(text)
	price, err := strconv.ParseFloat(strings.TrimSpace(cleaned), 64)
	if err != nil {
		return 0
	}
	return price
}

func parseMediaType(text string) *parser.MediaType {
	first, _, _ := strings.Cut(strings.TrimSpace(text), " ")
	var media parser.MediaType
	switch strings.ToUpper(first) {
	case "CD":
		media = parser.MediaCD
	case "LP":
		media = parser.MediaVinyl
	case "TAPE", "MC":
		media = parser.MediaTape
	default:
		return nil
	}
	return &media
}

func parseAvailability(text string) *parser.AlbumAvailability {
	var status parser.AlbumAvailability
	switch strings.ToUpper(strings.TrimSpace(text)) {
	case "NEW", "RESTOCK":
		status = parser.AlbumInStock
	case "PREORDER":
		status = parser.AlbumPreorder
	default:
		return nil
	}
	return &status
}
