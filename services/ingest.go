package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"rental-finder/fetch"
	"rental-finder/models"
	"rental-finder/parser"
	"rental-finder/storage"
	"rental-finder/utils"
)

// ListingStore is the part of the sheet session ingestion appends to.
type ListingStore interface {
	AppendRecord(ctx context.Context, rec models.ListingRecord) (int, error)
}

// RowQueue accepts freshly stored rows for background enrichment.
type RowQueue interface {
	Enqueue(row storage.StoredRow) bool
}

// IngestResult describes one stored listing.
type IngestResult struct {
	RequestID string
	Source    string
	Row       int
	Record    models.ListingRecord
}

// Ingester runs the ingestion pipeline for a single listing URL:
// resolve source -> fetch page -> parse -> append row -> archive.
type Ingester struct {
	registry *parser.Registry
	fetcher  fetch.Fetcher
	store    ListingStore
	archiver storage.RecordArchiver
	queue    RowQueue
	logger   *utils.Logger
}

// NewIngester wires the pipeline. archiver and queue may be nil.
func NewIngester(registry *parser.Registry, fetcher fetch.Fetcher, store ListingStore, archiver storage.RecordArchiver, queue RowQueue, logger *utils.Logger) *Ingester {
	return &Ingester{
		registry: registry,
		fetcher:  fetcher,
		store:    store,
		archiver: archiver,
		queue:    queue,
		logger:   logger,
	}
}

// Ingest stores the listing at rawURL as a new row. The returned error is
// one of *parser.UnsupportedSourceError, parser.ErrInvalidURL,
// *fetch.FetchError, *parser.ParseError or a storage error, unchanged, so
// callers can tell them apart. Nothing is written unless parsing succeeded.
func (i *Ingester) Ingest(ctx context.Context, rawURL string) (IngestResult, error) {
	reqID := uuid.NewString()
	log := i.logger.With("request_id", reqID)

	p, source, err := i.registry.Resolve(rawURL)
	if err != nil {
		log.Warn("[ingest] Rejected %q: %v", rawURL, err)
		return IngestResult{RequestID: reqID, Source: source}, err
	}

	body, err := i.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		log.Error("[ingest] Fetch failed: %v", err)
		return IngestResult{RequestID: reqID, Source: source}, err
	}

	rec, err := p.Parse(body, rawURL)
	if err != nil {
		log.Error("[ingest] Parse failed: %v", err)
		return IngestResult{RequestID: reqID, Source: source}, err
	}

	row, err := i.store.AppendRecord(ctx, rec)
	if err != nil {
		log.Error("[ingest] Store failed: %v", err)
		return IngestResult{RequestID: reqID, Source: source}, err
	}
	log.Info("[ingest] Stored %q (%s) at row %d", rec.Title, source, row)

	res := IngestResult{RequestID: reqID, Source: source, Row: row, Record: rec}
	i.archive(ctx, log, res)

	if i.queue != nil && rec.Coordinates != nil {
		i.queue.Enqueue(storage.StoredRow{Index: row, Coordinates: rec.Coordinates})
	}
	return res, nil
}

func (i *Ingester) archive(ctx context.Context, log *utils.Logger, res IngestResult) {
	if i.archiver == nil {
		return
	}
	err := i.archiver.Archive(ctx, storage.ArchiveEntry{
		RequestID:  res.RequestID,
		Row:        res.Row,
		IngestedAt: time.Now(),
		Record:     res.Record,
	})
	if err != nil {
		log.Warn("[ingest] Archive failed for row %d: %v", res.Row, err)
	}
}
