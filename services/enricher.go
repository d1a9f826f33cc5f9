package services

import (
	"context"
	"time"

	"rental-finder/storage"
	"rental-finder/utils"
)

// RowStore is the part of the sheet session enrichment reads and patches.
type RowStore interface {
	Rows(ctx context.Context) ([]storage.StoredRow, error)
	PatchCell(ctx context.Context, row int, column string, value any) error
}

// RowResult is the outcome of enriching one row. LookupErr is set when the
// transit provider failed, in which case the row was patched with "".
// PatchErr is set when the patch itself could not be written. Skipped rows
// were never looked up because the run was cancelled first.
type RowResult struct {
	Row       int
	Routes    string
	LookupErr error
	PatchErr  error
	Skipped   bool
}

// Enricher backfills the transit routes column. Lookups for a batch of rows
// run concurrently; the resulting patches are written one by one through
// the store session.
type Enricher struct {
	store      RowStore
	transit    TransitProvider
	maxWorkers int
	rateLimit  time.Duration
	logger     *utils.Logger

	queue chan storage.StoredRow
}

// NewEnricher creates an Enricher. queueSize bounds the number of rows that
// can wait for background enrichment.
func NewEnricher(store RowStore, transit TransitProvider, maxWorkers int, rateLimit time.Duration, queueSize int, logger *utils.Logger) *Enricher {
	if queueSize < 1 {
		queueSize = 1
	}
	return &Enricher{
		store:      store,
		transit:    transit,
		maxWorkers: maxWorkers,
		rateLimit:  rateLimit,
		logger:     logger,
		queue:      make(chan storage.StoredRow, queueSize),
	}
}

// Sweep enriches every stored row that has coordinates. Rows that already
// carry routes are skipped unless refresh is set.
func (e *Enricher) Sweep(ctx context.Context, refresh bool) ([]RowResult, error) {
	rows, err := e.store.Rows(ctx)
	if err != nil {
		return nil, err
	}

	todo := make([]storage.StoredRow, 0, len(rows))
	for _, r := range rows {
		if r.Coordinates == nil {
			e.logger.Debug("[enrich] Row %d has no coordinates, skipping", r.Index)
			continue
		}
		if r.BusRoutes != "" && !refresh {
			continue
		}
		todo = append(todo, r)
	}

	e.logger.Info("[enrich] Sweep: %d of %d rows need transit routes", len(todo), len(rows))
	return e.Run(ctx, todo), nil
}

// Run looks up and patches the given rows. One row's failure never stops the
// others; every row gets a result.
func (e *Enricher) Run(ctx context.Context, rows []storage.StoredRow) []RowResult {
	results := make([]RowResult, len(rows))
	looked := make([]bool, len(rows))
	pool := utils.NewWorkerPool(e.maxWorkers, e.rateLimit)

	// each job writes only its own slot
	for i, r := range rows {
		results[i].Row = r.Index
		if r.Coordinates == nil {
			continue
		}
		i, p := i, *r.Coordinates
		pool.Submit(ctx, func(ctx context.Context) {
			looked[i] = true
			routes, err := e.transit.NearbyRoutes(ctx, p)
			if err != nil {
				results[i].LookupErr = err
				return
			}
			results[i].Routes = JoinRoutes(routes)
		})
	}
	pool.Wait()

	ok := 0
	for i := range results {
		res := &results[i]
		if rows[i].Coordinates == nil {
			continue
		}
		if !looked[i] {
			// cancelled before the lookup started; leave the cell alone
			res.Skipped = true
			continue
		}
		if res.LookupErr != nil {
			e.logger.Warn("[enrich] Row %d: transit lookup failed: %v", res.Row, res.LookupErr)
		}
		if err := e.store.PatchCell(ctx, res.Row, storage.ColBusRoutes, res.Routes); err != nil {
			res.PatchErr = err
			e.logger.Error("[enrich] Row %d: patch failed: %v", res.Row, err)
			continue
		}
		if res.LookupErr == nil {
			ok++
		}
	}

	e.logger.Info("[enrich] Enriched %d/%d rows", ok, len(rows))
	return results
}

// Enqueue schedules a row for background enrichment. It reports false when
// the queue is full or the row has no coordinates.
func (e *Enricher) Enqueue(row storage.StoredRow) bool {
	if row.Coordinates == nil {
		return false
	}
	select {
	case e.queue <- row:
		return true
	default:
		e.logger.Warn("[enrich] Queue full, dropping row %d", row.Index)
		return false
	}
}

// Start consumes the queue until ctx is done. Rows that arrive together are
// enriched as one batch.
func (e *Enricher) Start(ctx context.Context) error {
	e.logger.Info("[enrich] Queue consumer started")
	for {
		select {
		case <-ctx.Done():
			e.logger.Info("[enrich] Queue consumer stopped")
			return nil
		case first := <-e.queue:
			batch := []storage.StoredRow{first}
		drain:
			for len(batch) < cap(e.queue) {
				select {
				case r := <-e.queue:
					batch = append(batch, r)
				default:
					break drain
				}
			}
			e.Run(ctx, batch)
		}
	}
}
