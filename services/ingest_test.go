package services

import (
	"context"
	"errors"
	"testing"

	"rental-finder/fetch"
	"rental-finder/geo"
	"rental-finder/models"
	"rental-finder/parser"
	"rental-finder/storage"
	"rental-finder/utils"
)

const craigslistURL = "https://vancouver.craigslist.org/van/apa/d/bright-2br/7712345678.html"

const craigslistPage = `<html><head>
<meta name="ICBM" content="49.2606, -123.2460">
<meta property="og:image" content="https://images.craigslist.org/abc_600x450.jpg">
</head><body>
<h1><span class="price">$1,250</span><span class="housing">/ 2br - 850ft<sup>2</sup> - </span></h1>
<div class="mapaddress">2205 Lower Mall</div>
<script type="application/ld+json" id="ld_posting_data">{"@type":"Apartment","name":"Bright 2br","numberOfBedrooms":2,"numberOfBathroomsTotal":1}</script>
</body></html>`

func testListing(t *testing.T, coords *geo.Point) models.ListingRecord {
	t.Helper()
	rec, err := models.NewListingRecord(models.ListingFields{
		SourceURL:    craigslistURL,
		Source:       "craigslist",
		Title:        "Bright 2br",
		PriceAmount:  1250,
		PriceDisplay: "$1,250",
		BedroomCount: 2,
		AreaValue:    850,
		AreaUnit:     models.AreaSqft,
		Coordinates:  coords,
	}, near)
	if err != nil {
		t.Fatalf("NewListingRecord: %v", err)
	}
	return rec
}

type fakeFetcher struct {
	body  string
	err   error
	calls int
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.body), nil
}

type fakeArchiver struct {
	entries []storage.ArchiveEntry
	err     error
}

func (a *fakeArchiver) Archive(ctx context.Context, e storage.ArchiveEntry) error {
	a.entries = append(a.entries, e)
	return a.err
}

func (a *fakeArchiver) Close() error { return nil }

type fakeQueue struct {
	rows []storage.StoredRow
}

func (q *fakeQueue) Enqueue(row storage.StoredRow) bool {
	q.rows = append(q.rows, row)
	return true
}

type pipeline struct {
	ingester *Ingester
	grid     *storage.MemoryGrid
	fetcher  *fakeFetcher
	archiver *fakeArchiver
	queue    *fakeQueue
}

func newPipeline(t *testing.T, grid storage.Grid) *pipeline {
	t.Helper()
	mem, _ := grid.(*storage.MemoryGrid)
	sheet, err := storage.NewSheetStore(context.Background(), grid, utils.NewNopLogger())
	if err != nil {
		t.Fatalf("NewSheetStore: %v", err)
	}
	p := &pipeline{
		grid:     mem,
		fetcher:  &fakeFetcher{body: craigslistPage},
		archiver: &fakeArchiver{},
		queue:    &fakeQueue{},
	}
	registry := parser.NewRegistry(parser.NewCraigslist(near))
	p.ingester = NewIngester(registry, p.fetcher, sheet, p.archiver, p.queue, utils.NewNopLogger())
	return p
}

func TestIngestStoresListing(t *testing.T) {
	p := newPipeline(t, storage.NewMemoryGrid())

	res, err := p.ingester.Ingest(context.Background(), craigslistURL)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Row != 1 || res.Source != "craigslist" || res.RequestID == "" {
		t.Errorf("result: %+v", res)
	}

	col, _ := storage.ColumnIndex(storage.ColPrice)
	if got := p.grid.Get(1, col).String(); got != "$1,250" {
		t.Errorf("stored price: %q", got)
	}

	if len(p.archiver.entries) != 1 || p.archiver.entries[0].RequestID != res.RequestID || p.archiver.entries[0].Row != 1 {
		t.Errorf("archive entries: %+v", p.archiver.entries)
	}
	if len(p.queue.rows) != 1 || p.queue.rows[0].Index != 1 || p.queue.rows[0].Coordinates == nil {
		t.Errorf("queued rows: %+v", p.queue.rows)
	}

	res, err = p.ingester.Ingest(context.Background(), craigslistURL)
	if err != nil || res.Row != 2 {
		t.Errorf("second ingest: row %d, err %v", res.Row, err)
	}
}

func TestIngestRejectsUnsupportedBeforeFetch(t *testing.T) {
	p := newPipeline(t, storage.NewMemoryGrid())

	_, err := p.ingester.Ingest(context.Background(), "https://www.kijiji.ca/v-apartments/123")
	var unsupported *parser.UnsupportedSourceError
	if !errors.As(err, &unsupported) {
		t.Fatalf("got %v, want UnsupportedSourceError", err)
	}
	if unsupported.Source != "kijiji" {
		t.Errorf("source: %q", unsupported.Source)
	}
	if p.fetcher.calls != 0 {
		t.Errorf("fetcher called %d times for an unsupported source", p.fetcher.calls)
	}
}

func TestIngestFailuresWriteNothing(t *testing.T) {
	tests := []struct {
		name  string
		setup func(p *pipeline)
		check func(t *testing.T, err error)
	}{
		{
			name:  "fetch failure",
			setup: func(p *pipeline) { p.fetcher.err = &fetch.FetchError{URL: craigslistURL, StatusCode: 503} },
			check: func(t *testing.T, err error) {
				var fe *fetch.FetchError
				if !errors.As(err, &fe) {
					t.Errorf("got %v, want FetchError", err)
				}
			},
		},
		{
			name:  "parse failure",
			setup: func(p *pipeline) { p.fetcher.body = "<html><body>expired</body></html>" },
			check: func(t *testing.T, err error) {
				if !errors.Is(err, parser.ErrStructuredDataMissing) {
					t.Errorf("got %v, want ErrStructuredDataMissing", err)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPipeline(t, storage.NewMemoryGrid())
			tt.setup(p)

			_, err := p.ingester.Ingest(context.Background(), craigslistURL)
			tt.check(t, err)

			if n, _ := p.grid.PopulatedRows(context.Background()); n != 0 {
				t.Errorf("populated rows: got %d, want 0", n)
			}
			if len(p.archiver.entries) != 0 || len(p.queue.rows) != 0 {
				t.Errorf("side effects after failure: archive %d, queue %d", len(p.archiver.entries), len(p.queue.rows))
			}
		})
	}
}

type brokenGrid struct {
	*storage.MemoryGrid
	broken bool
}

func (g *brokenGrid) PopulatedRows(ctx context.Context) (int, error) {
	if g.broken {
		return 0, errors.New("connection reset")
	}
	return g.MemoryGrid.PopulatedRows(ctx)
}

func TestIngestStoreFailure(t *testing.T) {
	g := &brokenGrid{MemoryGrid: storage.NewMemoryGrid()}
	p := newPipeline(t, g)
	g.broken = true

	_, err := p.ingester.Ingest(context.Background(), craigslistURL)
	var unavailable *storage.StoreUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("got %v, want StoreUnavailableError", err)
	}
	if len(p.archiver.entries) != 0 {
		t.Errorf("archived a listing that was never stored")
	}
}

func TestIngestArchiveFailureIsNotFatal(t *testing.T) {
	p := newPipeline(t, storage.NewMemoryGrid())
	p.archiver.err = errors.New("mongo down")

	res, err := p.ingester.Ingest(context.Background(), craigslistURL)
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if res.Row != 1 {
		t.Errorf("row: got %d", res.Row)
	}
}
