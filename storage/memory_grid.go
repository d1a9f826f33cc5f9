package storage

import (
	"context"
	"sync"
)

// MemoryGrid is an in-process Grid. It backs tests and the "memory" store
// backend.
type MemoryGrid struct {
	mu    sync.Mutex
	cells map[[2]int]Cell
}

// NewMemoryGrid returns an empty grid.
func NewMemoryGrid() *MemoryGrid {
	return &MemoryGrid{cells: make(map[[2]int]Cell)}
}

func (g *MemoryGrid) PopulatedRows(ctx context.Context) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	last := 0
	for key, c := range g.cells {
		if key[0] > last && !c.Empty() {
			last = key[0]
		}
	}
	return last, nil
}

func (g *MemoryGrid) LoadCells(ctx context.Context, r Range) (*CellBlock, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	block := NewCellBlock(r)
	for key, c := range g.cells {
		if r.Contains(key[0], key[1]) {
			cp := c
			cp.Format = copyFormat(c.Format)
			block.put(&cp)
		}
	}
	return block, nil
}

func (g *MemoryGrid) SaveCells(ctx context.Context, cells []*Cell) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, c := range cells {
		key := [2]int{c.Row, c.Col}
		stored := g.cells[key]
		stored.Row, stored.Col = c.Row, c.Col
		stored.Value, stored.Formula = c.Value, c.Formula
		if c.Format != nil {
			stored.Format = copyFormat(c.Format)
		}
		g.cells[key] = stored
	}
	return nil
}

// Get returns a copy of the cell at (row, col).
func (g *MemoryGrid) Get(row, col int) Cell {
	g.mu.Lock()
	defer g.mu.Unlock()

	c, ok := g.cells[[2]int{row, col}]
	if !ok {
		return Cell{Row: row, Col: col}
	}
	c.Format = copyFormat(c.Format)
	return c
}

func copyFormat(f *CellFormat) *CellFormat {
	if f == nil {
		return nil
	}
	cp := *f
	if f.Padding != nil {
		p := *f.Padding
		cp.Padding = &p
	}
	return &cp
}
