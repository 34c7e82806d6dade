package jobs

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/metrics"
	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/store"
)

// CatalogueIndexJob keeps the catalogue index current for one distributor
// and flags which entries are worth detail-parsing.
type CatalogueIndexJob struct {
	registry  *parser.Registry
	catalogue store.CatalogueStore
	bandRefs  store.BandReferenceStore
	delay     DelayConfig
	logger    *zap.Logger
}

// NewCatalogueIndexJob builds a CatalogueIndexJob.
func NewCatalogueIndexJob(
	registry *parser.Registry,
	catalogue store.CatalogueStore,
	bandRefs store.BandReferenceStore,
	delay DelayConfig,
	logger *zap.Logger,
) *CatalogueIndexJob {
	return &CatalogueIndexJob{
		registry:  registry,
		catalogue: catalogue,
		bandRefs:  bandRefs,
		delay:     delay,
		logger:    logger,
	}
}

// Run paginates the distributor's listing from startURL, upserting every
// item and classifying its relevance against the known band set.
func (j *CatalogueIndexJob) Run(ctx context.Context, code parser.DistributorCode, startURL string) (err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		metrics.ObserveJobRun("catalogue_index", outcome, time.Since(start))
	}()

	listingParser, err := j.registry.ListingParser(code)
	if err != nil {
		return err
	}
	bandIDs, err := j.bandRefs.BandReferenceIDsByName(ctx)
	if err != nil {
		return fmt.Errorf("load band references: %w", err)
	}
	// Matching is case-insensitive; fold once up front.
	folded := make(map[string]foldedBand, len(bandIDs))
	for name, id := range bandIDs {
		folded[strings.ToLower(name)] = foldedBand{id: id, name: name}
	}

	logger := j.logger.With(zap.String("distributor", string(code)))
	pageURL := startURL
	firstPage := true
	var pages, indexed int

	for pageURL != "" {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("catalogue indexing canceled: %w", err)
		}
		result, err := listingParser.ParseListings(ctx, pageURL)
		if err != nil {
			if firstPage {
				// An unreachable first page means there is nothing to
				// index this cycle, not a broken pipeline.
				logger.Warn("First listing page unreachable, skipping run",
					zap.String("url", pageURL), zap.Error(err))
				return nil
			}
			return fmt.Errorf("parse listing page %s: %w", pageURL, err)
		}
		firstPage = false
		pages++
		metrics.ObserveListingPage(string(code))

		for _, item := range result.Items {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("catalogue indexing canceled: %w", err)
			}
			if err := j.indexItem(ctx, code, item, folded); err != nil {
				logger.Warn("Skipping catalogue item",
					zap.String("detail_url", item.DetailURL), zap.Error(err))
				continue
			}
			indexed++
		}

		pageURL = result.NextPageURL
		if pageURL != "" {
			if err := wait(ctx, j.delay); err != nil {
				return fmt.Errorf("catalogue indexing canceled: %w", err)
			}
		}
	}

	logger.Info("Catalogue indexing finished",
		zap.Int("pages", pages), zap.Int("items", indexed))
	return nil
}

type foldedBand struct {
	id   uuid.UUID
	name string
}

func (j *CatalogueIndexJob) indexItem(ctx context.Context, code parser.DistributorCode, item parser.ListingItem, bands map[string]foldedBand) error {
	if item.DetailURL == "" {
		return fmt.Errorf("listing item %q has no detail URL", item.RawTitle)
	}

	status := store.CatalogueNotRelevant
	entry := store.CatalogueEntry{
		DistributorCode: code,
		BandName:        item.BandName,
		AlbumTitle:      item.AlbumTitle,
		RawTitle:        item.RawTitle,
		DetailURL:       item.DetailURL,
		MediaType:       item.MediaType,
	}
	if band, ok := bands[strings.ToLower(item.BandName)]; ok {
		status = store.CatalogueRelevant
		id := band.id
		entry.BandReferenceID = &id
	}
	entry.Status = status

	saved, err := j.catalogue.Upsert(ctx, entry)
	if err != nil {
		return fmt.Errorf("upsert catalogue entry: %w", err)
	}
	// Upsert preserves the stored status. Entries still sitting in New
	// (from a run that died between insert and classification) get
	// classified now; verified or processed entries are left alone.
	if saved.Status == store.CatalogueNew && status != store.CatalogueNew {
		if err := j.catalogue.UpdateStatus(ctx, saved.ID, status); err != nil {
			return fmt.Errorf("classify catalogue entry: %w", err)
		}
		saved.Status = status
	}
	metrics.ObserveCatalogueEntry(string(code), string(saved.Status))
	return nil
}
