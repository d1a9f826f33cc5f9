package storage

import (
	"context"
	"time"

	"rental-finder/models"
)

// Grid is a row/column cell store, the backend a SheetStore drives. Row 0 is
// the header row; data row N lives at grid row N. Implementations need not be
// safe against interleaved read-modify-write cycles; SheetStore serializes them.
type Grid interface {
	// PopulatedRows returns the index of the last row holding any value or
	// formula, 0 when only the header (or nothing) is present.
	PopulatedRows(ctx context.Context) (int, error)
	// LoadCells reads a rectangular block.
	LoadCells(ctx context.Context, r Range) (*CellBlock, error)
	// SaveCells writes the given cells. A cell with a nil Format keeps its
	// stored format.
	SaveCells(ctx context.Context, cells []*Cell) error
}

// ArchiveEntry is one successfully stored listing.
type ArchiveEntry struct {
	RequestID  string
	Row        int
	IngestedAt time.Time
	Record     models.ListingRecord
}

// RecordArchiver keeps an append-only history of ingested listings next to
// the sheet.
type RecordArchiver interface {
	Archive(ctx context.Context, e ArchiveEntry) error
	Close() error
}
