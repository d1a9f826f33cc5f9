package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Padding is per-side cell padding in pixels.
type Padding struct {
	Top    int `json:"top"`
	Right  int `json:"right"`
	Bottom int `json:"bottom"`
	Left   int `json:"left"`
}

// CellFormat is the display formatting of a cell.
type CellFormat struct {
	HorizontalAlignment string   `json:"horizontal_alignment,omitempty"`
	VerticalAlignment   string   `json:"vertical_alignment,omitempty"`
	FontSize            int      `json:"font_size,omitempty"`
	WrapStrategy        string   `json:"wrap_strategy,omitempty"`
	Padding             *Padding `json:"padding,omitempty"`
}

// Cell is one grid cell. Value holds a string, float64, int or nil; when
// Formula is set it takes precedence over Value.
type Cell struct {
	Row     int
	Col     int
	Value   any
	Formula string
	Format  *CellFormat
}

// Empty reports whether the cell has neither value nor formula.
func (c Cell) Empty() bool {
	if c.Formula != "" {
		return false
	}
	switch v := c.Value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return false
	}
}

// String renders the cell's value, or its formula.
func (c Cell) String() string {
	if c.Formula != "" {
		return c.Formula
	}
	switch v := c.Value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// Float parses the cell's value as a number.
func (c Cell) Float() (float64, bool) {
	switch v := c.Value.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Range is a half-open block of rows [StartRow, EndRow) and columns
// [StartCol, EndCol), zero-based.
type Range struct {
	StartRow, EndRow int
	StartCol, EndCol int
}

// Contains reports whether (row, col) is inside r.
func (r Range) Contains(row, col int) bool {
	return row >= r.StartRow && row < r.EndRow && col >= r.StartCol && col < r.EndCol
}

// A1 renders r in A1 notation, e.g. "A2:N2".
func (r Range) A1() string {
	return fmt.Sprintf("%s%d:%s%d", columnLetter(r.StartCol), r.StartRow+1, columnLetter(r.EndCol-1), r.EndRow)
}

// columnLetter maps 0 -> A, 25 -> Z, 26 -> AA.
func columnLetter(col int) string {
	s := ""
	for col >= 0 {
		s = string(rune('A'+col%26)) + s
		col = col/26 - 1
	}
	return s
}

// CellBlock is a loaded rectangular block of cells. Cells the backend had no
// data for are materialized empty on first access.
type CellBlock struct {
	Range Range
	cells map[[2]int]*Cell
}

// NewCellBlock returns an empty block covering r.
func NewCellBlock(r Range) *CellBlock {
	return &CellBlock{Range: r, cells: make(map[[2]int]*Cell)}
}

// Cell returns the cell at (row, col), or nil if it is outside the block.
func (b *CellBlock) Cell(row, col int) *Cell {
	if !b.Range.Contains(row, col) {
		return nil
	}
	key := [2]int{row, col}
	c, ok := b.cells[key]
	if !ok {
		c = &Cell{Row: row, Col: col}
		b.cells[key] = c
	}
	return c
}

// put stores c in the block, used by backends while loading.
func (b *CellBlock) put(c *Cell) {
	if b.Range.Contains(c.Row, c.Col) {
		b.cells[[2]int{c.Row, c.Col}] = c
	}
}
