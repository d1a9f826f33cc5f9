package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// rowsGrowBy is how many rows are added when a write runs past the sheet's
// current grid size.
const rowsGrowBy = 500

// SheetsGrid is a Grid over the first tab of a Google spreadsheet. It
// authenticates once with a service-account key file.
type SheetsGrid struct {
	srv           *sheets.Service
	spreadsheetID string
	sheetID       int64
	title         string

	mu       sync.Mutex
	rowCount int64
}

// NewSheetsGrid authenticates and resolves the spreadsheet's first tab.
func NewSheetsGrid(ctx context.Context, spreadsheetID, credentialsFile string) (*SheetsGrid, error) {
	srv, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, &StoreUnavailableError{Op: "authenticate", Err: eris.Wrap(err, "sheets: new service")}
	}

	ss, err := srv.Spreadsheets.Get(spreadsheetID).Fields("sheets.properties").Context(ctx).Do()
	if err != nil {
		return nil, &StoreUnavailableError{Op: "open spreadsheet", Err: eris.Wrapf(err, "sheets: get %s", spreadsheetID)}
	}
	if len(ss.Sheets) == 0 || ss.Sheets[0].Properties == nil {
		return nil, &StoreUnavailableError{Op: "open spreadsheet", Err: eris.Errorf("sheets: spreadsheet %s has no tabs", spreadsheetID)}
	}

	props := ss.Sheets[0].Properties
	g := &SheetsGrid{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		sheetID:       props.SheetId,
		title:         props.Title,
	}
	if props.GridProperties != nil {
		g.rowCount = props.GridProperties.RowCount
	}
	return g, nil
}

func (g *SheetsGrid) a1(r string) string {
	return "'" + strings.ReplaceAll(g.title, "'", "''") + "'!" + r
}

func (g *SheetsGrid) PopulatedRows(ctx context.Context) (int, error) {
	last := columnLetter(len(Columns) - 1)
	resp, err := g.srv.Spreadsheets.Values.Get(g.spreadsheetID, g.a1("A:"+last)).
		ValueRenderOption("FORMULA").Context(ctx).Do()
	if err != nil {
		return 0, eris.Wrap(err, "sheets: read populated extent")
	}

	for i := len(resp.Values) - 1; i > 0; i-- {
		for _, v := range resp.Values[i] {
			if s := fmt.Sprint(v); v != nil && s != "" {
				return i, nil
			}
		}
	}
	return 0, nil
}

func (g *SheetsGrid) LoadCells(ctx context.Context, r Range) (*CellBlock, error) {
	resp, err := g.srv.Spreadsheets.Values.Get(g.spreadsheetID, g.a1(r.A1())).
		ValueRenderOption("FORMULA").Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: load %s", r.A1())
	}

	block := NewCellBlock(r)
	for i, rowValues := range resp.Values {
		for j, v := range rowValues {
			c := &Cell{Row: r.StartRow + i, Col: r.StartCol + j}
			if s, ok := v.(string); ok && strings.HasPrefix(s, "=") {
				c.Formula = s
			} else {
				c.Value = v
			}
			block.put(c)
		}
	}
	return block, nil
}

func (g *SheetsGrid) SaveCells(ctx context.Context, cells []*Cell) error {
	if len(cells) == 0 {
		return nil
	}

	var reqs []*sheets.Request
	if grow := g.growRequest(cells); grow != nil {
		reqs = append(reqs, grow)
	}
	for _, c := range cells {
		data := &sheets.CellData{UserEnteredValue: extendedValue(c)}
		fields := "userEnteredValue"
		if c.Format != nil {
			data.UserEnteredFormat = sheetsFormat(c.Format)
			fields += ",userEnteredFormat"
		}
		reqs = append(reqs, &sheets.Request{
			UpdateCells: &sheets.UpdateCellsRequest{
				Start: &sheets.GridCoordinate{
					SheetId:     g.sheetID,
					RowIndex:    int64(c.Row),
					ColumnIndex: int64(c.Col),
				},
				Rows:   []*sheets.RowData{{Values: []*sheets.CellData{data}}},
				Fields: fields,
			},
		})
	}

	_, err := g.srv.Spreadsheets.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: reqs,
	}).Context(ctx).Do()
	if err != nil {
		return eris.Wrapf(err, "sheets: save %d cells", len(cells))
	}
	return nil
}

// growRequest appends rows when a write would land past the sheet's grid.
func (g *SheetsGrid) growRequest(cells []*Cell) *sheets.Request {
	maxRow := int64(0)
	for _, c := range cells {
		if int64(c.Row) > maxRow {
			maxRow = int64(c.Row)
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if maxRow < g.rowCount {
		return nil
	}
	length := maxRow - g.rowCount + 1 + rowsGrowBy
	g.rowCount += length
	return &sheets.Request{
		AppendDimension: &sheets.AppendDimensionRequest{
			SheetId:   g.sheetID,
			Dimension: "ROWS",
			Length:    length,
		},
	}
}

func extendedValue(c *Cell) *sheets.ExtendedValue {
	if c.Formula != "" {
		f := c.Formula
		return &sheets.ExtendedValue{FormulaValue: &f}
	}
	switch v := c.Value.(type) {
	case float64:
		return &sheets.ExtendedValue{NumberValue: &v}
	case int:
		f := float64(v)
		return &sheets.ExtendedValue{NumberValue: &f}
	case nil:
		s := ""
		return &sheets.ExtendedValue{StringValue: &s}
	default:
		s := c.String()
		return &sheets.ExtendedValue{StringValue: &s}
	}
}

func sheetsFormat(f *CellFormat) *sheets.CellFormat {
	out := &sheets.CellFormat{
		HorizontalAlignment: f.HorizontalAlignment,
		VerticalAlignment:   f.VerticalAlignment,
		WrapStrategy:        f.WrapStrategy,
	}
	if f.FontSize > 0 {
		out.TextFormat = &sheets.TextFormat{FontSize: int64(f.FontSize)}
	}
	if f.Padding != nil {
		out.Padding = &sheets.Padding{
			Top:    int64(f.Padding.Top),
			Right:  int64(f.Padding.Right),
			Bottom: int64(f.Padding.Bottom),
			Left:   int64(f.Padding.Left),
		}
	}
	return out
}
