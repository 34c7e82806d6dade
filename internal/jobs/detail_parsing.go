package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/images"
	"github.com/metaltracker/parser-service/internal/metrics"
	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/store"
)

// DetailParsingJob turns relevant catalogue entries into durable parsed
// album records staged in the outbox, with best-effort canonicalization
// and idempotent cover mirroring.
type DetailParsingJob struct {
	registry  *parser.Registry
	sessions  store.SessionStore
	catalogue store.CatalogueStore
	outbox    store.OutboxStore
	bandRefs  store.BandReferenceStore
	uploader  *images.Uploader
	delay     DelayConfig
	logger    *zap.Logger

	// requireVerification narrows eligibility to entries that passed the
	// external verification workflow.
	requireVerification bool
}

// NewDetailParsingJob builds a DetailParsingJob.
func NewDetailParsingJob(
	registry *parser.Registry,
	sessions store.SessionStore,
	catalogue store.CatalogueStore,
	outbox store.OutboxStore,
	bandRefs store.BandReferenceStore,
	uploader *images.Uploader,
	delay DelayConfig,
	logger *zap.Logger,
) *DetailParsingJob {
	return &DetailParsingJob{
		registry:  registry,
		sessions:  sessions,
		catalogue: catalogue,
		outbox:    outbox,
		bandRefs:  bandRefs,
		uploader:  uploader,
		delay:     delay,
		logger:    logger,
	}
}

// RequireVerification restricts the job to entries confirmed by the
// verification workflow, skipping ones that are merely classified relevant.
func (j *DetailParsingJob) RequireVerification(on bool) {
	j.requireVerification = on
}

func (j *DetailParsingJob) eligibleStatuses() []store.CatalogueStatus {
	if j.requireVerification {
		return []store.CatalogueStatus{store.CatalogueAiVerified}
	}
	return []store.CatalogueStatus{store.CatalogueRelevant, store.CatalogueAiVerified}
}

// Run processes every eligible catalogue entry for the distributor,
// appending parsed albums to the active session's outbox.
func (j *DetailParsingJob) Run(ctx context.Context, code parser.DistributorCode) (err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		metrics.ObserveJobRun("detail_parsing", outcome, time.Since(start))
	}()

	detailParser, err := j.registry.DetailParser(code)
	if err != nil {
		return err
	}
	logger := j.logger.With(zap.String("distributor", string(code)))

	entries, err := j.catalogue.ListByStatuses(ctx, code, j.eligibleStatuses())
	if err != nil {
		return fmt.Errorf("list eligible catalogue entries: %w", err)
	}
	if len(entries) == 0 {
		logger.Info("No eligible catalogue entries")
		return j.finishStuckSession(ctx, code, logger)
	}

	// Resume semantics: an existing Incomplete session is picked up, so a
	// crash mid-run never orphans already-parsed albums.
	session, err := j.sessions.GetOrCreateIncomplete(ctx, code)
	if err != nil {
		return fmt.Errorf("obtain parsing session: %w", err)
	}
	logger = logger.With(zap.String("session_id", session.ID.String()))

	var parsed int
	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("detail parsing canceled: %w", err)
		}
		if err := j.parseEntry(ctx, detailParser, session, entry, logger); err != nil {
			// One album's failure never fails the session.
			logger.Warn("Skipping album",
				zap.String("detail_url", entry.DetailURL), zap.Error(err))
			continue
		}
		parsed++
		if i < len(entries)-1 {
			if err := wait(ctx, j.delay); err != nil {
				return fmt.Errorf("detail parsing canceled: %w", err)
			}
		}
	}

	// The session moves to Parsed only when it actually holds work. An
	// empty session stays Incomplete and is reused next run, so the
	// publisher never ships empty batches.
	staged, err := j.outbox.CountBySession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("count staged records: %w", err)
	}
	if staged == 0 {
		logger.Info("No albums staged, session left open")
		return nil
	}
	if err := j.sessions.UpdateStatus(ctx, session.ID, store.SessionParsed); err != nil {
		return fmt.Errorf("complete parsing session: %w", err)
	}
	logger.Info("Detail parsing finished",
		zap.Int("albums_parsed", parsed), zap.Int("staged_total", staged))
	return nil
}

// finishStuckSession completes a leftover Incomplete session whose
// entries were all processed before a crash could transition it. With no
// staged work there is nothing to do, and no session is opened.
func (j *DetailParsingJob) finishStuckSession(ctx context.Context, code parser.DistributorCode, logger *zap.Logger) error {
	sessions, err := j.sessions.ListByStatus(ctx, store.SessionIncomplete)
	if err != nil {
		return fmt.Errorf("list incomplete sessions: %w", err)
	}
	for _, session := range sessions {
		if session.DistributorCode != code {
			continue
		}
		staged, err := j.outbox.CountBySession(ctx, session.ID)
		if err != nil {
			return fmt.Errorf("count staged records: %w", err)
		}
		if staged == 0 {
			continue
		}
		if err := j.sessions.UpdateStatus(ctx, session.ID, store.SessionParsed); err != nil {
			return fmt.Errorf("complete parsing session: %w", err)
		}
		logger.Info("Finished session stranded by an earlier run",
			zap.String("session_id", session.ID.String()), zap.Int("staged_total", staged))
	}
	return nil
}

func (j *DetailParsingJob) parseEntry(
	ctx context.Context,
	detailParser parser.AlbumDetailParser,
	session store.ParsingSession,
	entry store.CatalogueEntry,
	logger *zap.Logger,
) error {
	event, err := detailParser.ParseAlbumDetail(ctx, entry.DetailURL)
	if err != nil {
		metrics.ObserveAlbumParseFailure(string(entry.DistributorCode), "parse")
		return fmt.Errorf("parse album detail: %w", err)
	}

	// SKUs are only unique per distributor, so the published record
	// carries a prefixed one.
	if event.SKU != "" {
		event.SKU = fmt.Sprintf("%s-%s", entry.DistributorCode, event.SKU)
	}
	if entry.MediaType != nil {
		event.Media = entry.MediaType
	}

	j.canonicalize(ctx, entry, &event, logger)

	// Cover mirroring degrades gracefully: on failure the event ships
	// with the distributor's own photo URL.
	if objectPath, err := j.uploader.Mirror(ctx, entry.DistributorCode, event.SKU, event.PhotoURL); err != nil {
		metrics.ObserveAlbumParseFailure(string(entry.DistributorCode), "image")
		logger.Warn("Cover mirror failed",
			zap.String("sku", event.SKU), zap.Error(err))
	} else if objectPath != "" {
		event.PhotoURL = objectPath
	}

	payload, err := json.Marshal(event)
	if err != nil {
		metrics.ObserveAlbumParseFailure(string(entry.DistributorCode), "serialize")
		return fmt.Errorf("serialize album event: %w", err)
	}
	if _, err := j.outbox.Append(ctx, session.ID, payload); err != nil {
		metrics.ObserveAlbumParseFailure(string(entry.DistributorCode), "persist")
		return fmt.Errorf("stage album event: %w", err)
	}
	if err := j.catalogue.UpdateStatus(ctx, entry.ID, store.CatalogueProcessed); err != nil {
		metrics.ObserveAlbumParseFailure(string(entry.DistributorCode), "persist")
		return fmt.Errorf("mark catalogue entry processed: %w", err)
	}
	metrics.ObserveAlbumParsed(string(entry.DistributorCode))
	return nil
}

// canonicalize resolves the scraped title against the linked discography
// entry. Without a link both canonical fields stay null and the parsed
// title stands on its own.
func (j *DetailParsingJob) canonicalize(ctx context.Context, entry store.CatalogueEntry, event *parser.AlbumParsedEvent, logger *zap.Logger) {
	if entry.BandDiscographyID == nil {
		return
	}
	ref, err := j.bandRefs.DiscographyByID(ctx, *entry.BandDiscographyID)
	if err != nil {
		// Stale reference data is tolerated; the album simply keeps its
		// parsed title.
		logger.Warn("Discography lookup failed",
			zap.String("discography_id", entry.BandDiscographyID.String()), zap.Error(err))
		return
	}
	title := ref.AlbumTitle
	event.CanonicalTitle = &title
	if ref.Year != nil {
		year := *ref.Year
		event.OriginalYear = &year
	}
}
