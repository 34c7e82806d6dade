package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metaltracker/parser-service/internal/metrics"
	"github.com/metaltracker/parser-service/internal/parser"
	"github.com/metaltracker/parser-service/internal/queue"
	"github.com/metaltracker/parser-service/internal/storage"
	"github.com/metaltracker/parser-service/internal/store"
)

// PublisherJob drains the outbox for every Parsed session: it serializes
// the staged albums, splits the bytes into bounded chunks, uploads each
// chunk to blob storage and emits exactly one publication event per
// session.
type PublisherJob struct {
	sessions store.SessionStore
	outbox   store.OutboxStore
	blobs    storage.Provider
	bus      queue.Provider
	maxChunk int
	logger   *zap.Logger
	now      func() time.Time
}

// NewPublisherJob builds a PublisherJob with the given chunk size bound.
func NewPublisherJob(
	sessions store.SessionStore,
	outbox store.OutboxStore,
	blobs storage.Provider,
	bus queue.Provider,
	maxChunkSizeInBytes int,
	logger *zap.Logger,
) (*PublisherJob, error) {
	if maxChunkSizeInBytes <= 0 {
		return nil, fmt.Errorf("max chunk size must be positive, got %d", maxChunkSizeInBytes)
	}
	return &PublisherJob{
		sessions: sessions,
		outbox:   outbox,
		blobs:    blobs,
		bus:      bus,
		maxChunk: maxChunkSizeInBytes,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run publishes every session currently in Parsed status. A failure for
// one session leaves it Parsed for the next cycle and moves on.
func (j *PublisherJob) Run(ctx context.Context) (err error) {
	start := time.Now()
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		metrics.ObserveJobRun("publisher", outcome, time.Since(start))
	}()

	sessions, err := j.sessions.ListByStatus(ctx, store.SessionParsed)
	if err != nil {
		return fmt.Errorf("list parsed sessions: %w", err)
	}

	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("publishing canceled: %w", err)
		}
		if err := j.publishSession(ctx, session); err != nil {
			metrics.ObservePublication(string(session.DistributorCode), "failure", 0)
			j.logger.Warn("Session publish failed, will retry next cycle",
				zap.String("session_id", session.ID.String()),
				zap.String("distributor", string(session.DistributorCode)),
				zap.Error(err))
			continue
		}
	}
	return nil
}

func (j *PublisherJob) publishSession(ctx context.Context, session store.ParsingSession) error {
	records, err := j.outbox.ListBySession(ctx, session.ID)
	if err != nil {
		return fmt.Errorf("load outbox: %w", err)
	}

	payload, err := serializeRecords(records)
	if err != nil {
		return err
	}
	chunks, err := splitBytes(payload, j.maxChunk)
	if err != nil {
		return err
	}

	// A fresh run id per attempt keeps retried uploads from colliding
	// with a previous half-finished attempt.
	runID := uuid.New()
	paths := make([]string, len(chunks))
	for i, chunk := range chunks {
		paths[i] = fmt.Sprintf("%s/%s_chunk%d.json", runID, session.DistributorCode, i+1)
		if err := j.blobs.Save(ctx, paths[i], chunk); err != nil {
			return fmt.Errorf("upload chunk %s: %w", paths[i], err)
		}
	}

	event := parser.AlbumParsedPublicationEvent{
		ParsingSessionID: session.ID,
		DistributorCode:  session.DistributorCode,
		CreatedDate:      j.now(),
		StorageFilePaths: paths,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serialize publication event: %w", err)
	}

	// Publish is synchronous. Only after the broker confirms does the
	// session become Published, so a crash here re-publishes rather than
	// silently dropping the batch.
	attrs := map[string]string{"distributorCode": string(session.DistributorCode)}
	if err := j.bus.Publish(ctx, data, attrs); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	if err := j.sessions.UpdateStatus(ctx, session.ID, store.SessionPublished); err != nil {
		return fmt.Errorf("mark session published: %w", err)
	}

	metrics.ObservePublication(string(session.DistributorCode), "success", len(chunks))
	j.logger.Info("Session published",
		zap.String("session_id", session.ID.String()),
		zap.String("distributor", string(session.DistributorCode)),
		zap.Int("records", len(records)),
		zap.Int("chunks", len(chunks)))
	return nil
}

// serializeRecords joins the staged album payloads into one JSON array.
// The payloads are stored as serialized JSON already, so this is a byte
// join, not a re-encode.
func serializeRecords(records []store.OutboxRecord) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, rec := range records {
		if len(rec.Payload) == 0 || !json.Valid(rec.Payload) {
			return nil, fmt.Errorf("outbox record %s holds invalid JSON", rec.ID)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(rec.Payload)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}
