package storage

import (
	"context"
	"strings"
	"sync"

	"rental-finder/geo"
	"rental-finder/models"
	"rental-finder/utils"
)

// StoredRow is the part of a persisted listing row enrichment works from.
type StoredRow struct {
	Index int
	// Coordinates is nil unless both Lat and Lon hold numbers.
	Coordinates *geo.Point
	BusRoutes   string
}

// SheetStore is the long-lived session over one listing sheet. Every
// mutation follows load range -> mutate in memory -> save, and runs under the
// store's mutex, so appends and patches issued through one SheetStore never
// interleave. Nothing is cached between calls: the next free row is
// re-derived from the grid each time because the sheet may be edited by hand.
type SheetStore struct {
	mu     sync.Mutex
	grid   Grid
	logger *utils.Logger
}

// NewSheetStore opens a session on grid. It writes the header row to an
// empty sheet and verifies it on an existing one.
func NewSheetStore(ctx context.Context, grid Grid, logger *utils.Logger) (*SheetStore, error) {
	s := &SheetStore{grid: grid, logger: logger}
	if err := s.ensureHeader(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SheetStore) ensureHeader(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r := Range{StartRow: 0, EndRow: 1, StartCol: 0, EndCol: len(Columns)}
	block, err := s.grid.LoadCells(ctx, r)
	if err != nil {
		return &StoreUnavailableError{Op: "load header", Err: err}
	}

	empty := true
	for i, name := range Columns {
		c := block.Cell(0, i)
		if c.Empty() {
			continue
		}
		empty = false
		if strings.TrimSpace(c.String()) != name {
			return ErrHeaderMismatch
		}
	}
	if !empty {
		return nil
	}

	cells := make([]*Cell, len(Columns))
	for i, name := range Columns {
		c := block.Cell(0, i)
		c.Value, c.Formula = name, ""
		c.Format = bodyFormat()
		cells[i] = c
	}
	if err := s.grid.SaveCells(ctx, cells); err != nil {
		return &StoreUnavailableError{Op: "write header", Err: err}
	}
	s.logger.Info("[sheet] Wrote header row (%d columns)", len(Columns))
	return nil
}

// AppendRecord writes rec into the row after the last populated one and
// returns that row's index (1 for the first data row).
func (s *SheetStore) AppendRecord(ctx context.Context, rec models.ListingRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	populated, err := s.grid.PopulatedRows(ctx)
	if err != nil {
		return 0, &StoreUnavailableError{Op: "append", Err: err}
	}
	row := populated + 1

	block, err := s.grid.LoadCells(ctx, Range{StartRow: row, EndRow: row + 1, StartCol: 0, EndCol: len(Columns)})
	if err != nil {
		return 0, &StoreUnavailableError{Op: "append", Err: err}
	}

	values := recordCells(row, rec)
	cells := make([]*Cell, len(values))
	for i, v := range values {
		c := block.Cell(row, i)
		c.Value, c.Formula, c.Format = v.Value, v.Formula, v.Format
		cells[i] = c
	}

	if err := s.grid.SaveCells(ctx, cells); err != nil {
		return 0, &StoreUnavailableError{Op: "append", Err: err}
	}
	s.logger.Debug("[sheet] Appended %q at row %d", rec.Title, row)
	return row, nil
}

// PatchCell overwrites the value of one cell addressed by row index and
// column name. The cell's formatting is left as stored.
func (s *SheetStore) PatchCell(ctx context.Context, row int, column string, value any) error {
	col, ok := ColumnIndex(column)
	if !ok {
		return &UnknownColumnError{Column: column}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	populated, err := s.grid.PopulatedRows(ctx)
	if err != nil {
		return &StoreUnavailableError{Op: "patch", Err: err}
	}
	if row < 1 || row > populated {
		return &RowNotFoundError{Row: row, Populated: populated}
	}

	block, err := s.grid.LoadCells(ctx, Range{StartRow: row, EndRow: row + 1, StartCol: col, EndCol: col + 1})
	if err != nil {
		return &StoreUnavailableError{Op: "patch", Err: err}
	}
	c := block.Cell(row, col)
	c.Value, c.Formula, c.Format = value, "", nil

	if err := s.grid.SaveCells(ctx, []*Cell{c}); err != nil {
		return &StoreUnavailableError{Op: "patch", Err: err}
	}
	return nil
}

// Rows returns every populated data row with its stored coordinates.
func (s *SheetStore) Rows(ctx context.Context) ([]StoredRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	populated, err := s.grid.PopulatedRows(ctx)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "read rows", Err: err}
	}
	if populated == 0 {
		return nil, nil
	}

	block, err := s.grid.LoadCells(ctx, Range{StartRow: 1, EndRow: populated + 1, StartCol: 0, EndCol: len(Columns)})
	if err != nil {
		return nil, &StoreUnavailableError{Op: "read rows", Err: err}
	}

	latCol, lonCol, busCol := columnIndex[ColLat], columnIndex[ColLon], columnIndex[ColBusRoutes]
	rows := make([]StoredRow, 0, populated)
	for r := 1; r <= populated; r++ {
		sr := StoredRow{Index: r, BusRoutes: block.Cell(r, busCol).String()}
		lat, okLat := block.Cell(r, latCol).Float()
		lon, okLon := block.Cell(r, lonCol).Float()
		if okLat && okLon {
			sr.Coordinates = &geo.Point{Lat: lat, Lon: lon}
		}
		rows = append(rows, sr)
	}
	return rows, nil
}
