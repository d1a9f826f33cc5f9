package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"rental-finder/geo"
	"rental-finder/storage"
	"rental-finder/utils"
)

type fakeTransit struct {
	mu     sync.Mutex
	routes map[geo.Point][]string
	fail   map[geo.Point]bool
	calls  int
}

func (f *fakeTransit) NearbyRoutes(ctx context.Context, p geo.Point) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[p] {
		return nil, errors.New("provider down")
	}
	return f.routes[p], nil
}

type fakeRowStore struct {
	mu      sync.Mutex
	rows    []storage.StoredRow
	patches map[int]string
}

func (s *fakeRowStore) Rows(ctx context.Context) ([]storage.StoredRow, error) {
	return s.rows, nil
}

func (s *fakeRowStore) PatchCell(ctx context.Context, row int, column string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if column != storage.ColBusRoutes {
		return errors.New("unexpected column " + column)
	}
	if s.patches == nil {
		s.patches = make(map[int]string)
	}
	s.patches[row] = value.(string)
	return nil
}

var (
	near   = geo.Point{Lat: 49.2606, Lon: -123.2460}
	far    = geo.Point{Lat: 49.2827, Lon: -123.1207}
	broken = geo.Point{Lat: 49.2488, Lon: -123.0016}
)

func newTestEnricher(store RowStore, transit TransitProvider) *Enricher {
	return NewEnricher(store, transit, 3, 0, 8, utils.NewNopLogger())
}

func TestEnricherSweepIsolatesFailures(t *testing.T) {
	store := &fakeRowStore{rows: []storage.StoredRow{
		{Index: 1, Coordinates: &near},
		{Index: 2, Coordinates: &broken},
		{Index: 3},
		{Index: 4, Coordinates: &far},
	}}
	transit := &fakeTransit{
		routes: map[geo.Point][]string{near: {"99", "44"}, far: {"14"}},
		fail:   map[geo.Point]bool{broken: true},
	}

	results, err := newTestEnricher(store, transit).Sweep(context.Background(), false)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results: got %d, want 3 (row without coordinates skipped)", len(results))
	}

	want := map[int]string{1: "99, 44", 2: "", 4: "14"}
	for row, routes := range want {
		got, ok := store.patches[row]
		if !ok || got != routes {
			t.Errorf("row %d: got %q (patched %v), want %q", row, got, ok, routes)
		}
	}
	if _, ok := store.patches[3]; ok {
		t.Errorf("row 3 has no coordinates and must not be patched")
	}

	for _, r := range results {
		if (r.Row == 2) != (r.LookupErr != nil) {
			t.Errorf("row %d: LookupErr = %v", r.Row, r.LookupErr)
		}
	}
}

func TestEnricherSweepSkipsEnrichedRows(t *testing.T) {
	store := &fakeRowStore{rows: []storage.StoredRow{
		{Index: 1, Coordinates: &near, BusRoutes: "99"},
		{Index: 2, Coordinates: &far},
	}}
	transit := &fakeTransit{routes: map[geo.Point][]string{near: {"99", "44"}, far: {"14"}}}
	e := newTestEnricher(store, transit)

	if _, err := e.Sweep(context.Background(), false); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if transit.calls != 1 {
		t.Errorf("lookups: got %d, want 1", transit.calls)
	}

	if _, err := e.Sweep(context.Background(), true); err != nil {
		t.Fatalf("Sweep refresh: %v", err)
	}
	if store.patches[1] != "99, 44" {
		t.Errorf("refresh did not rewrite row 1: %q", store.patches[1])
	}
}

func TestEnricherAgainstSheetStore(t *testing.T) {
	ctx := context.Background()
	grid := storage.NewMemoryGrid()
	sheet, err := storage.NewSheetStore(ctx, grid, utils.NewNopLogger())
	if err != nil {
		t.Fatalf("NewSheetStore: %v", err)
	}
	row, err := sheet.AppendRecord(ctx, testListing(t, &near))
	if err != nil {
		t.Fatalf("AppendRecord: %v", err)
	}

	transit := &fakeTransit{routes: map[geo.Point][]string{near: {"99", "44"}}}
	if _, err := newTestEnricher(sheet, transit).Sweep(ctx, false); err != nil {
		t.Fatalf("Sweep: %v", err)
	}

	col, _ := storage.ColumnIndex(storage.ColBusRoutes)
	if got := grid.Get(row, col).String(); got != "99, 44" {
		t.Errorf("Bus_Routes_Nearby: got %q", got)
	}
}

func TestEnricherQueue(t *testing.T) {
	store := &fakeRowStore{}
	transit := &fakeTransit{routes: map[geo.Point][]string{near: {"99"}}}
	e := newTestEnricher(store, transit)

	if e.Enqueue(storage.StoredRow{Index: 5}) {
		t.Errorf("row without coordinates was queued")
	}
	if !e.Enqueue(storage.StoredRow{Index: 7, Coordinates: &near}) {
		t.Fatalf("Enqueue rejected a valid row")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Start(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		store.mu.Lock()
		got, ok := store.patches[7]
		store.mu.Unlock()
		if ok {
			if got != "99" {
				t.Errorf("row 7: got %q", got)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("queued row was never enriched")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Start: %v", err)
	}
}

func TestEnqueueWhenFull(t *testing.T) {
	e := NewEnricher(&fakeRowStore{}, &fakeTransit{}, 1, 0, 1, utils.NewNopLogger())
	if !e.Enqueue(storage.StoredRow{Index: 1, Coordinates: &near}) {
		t.Fatal("first Enqueue rejected")
	}
	if e.Enqueue(storage.StoredRow{Index: 2, Coordinates: &near}) {
		t.Error("Enqueue on a full queue should report false")
	}
}
