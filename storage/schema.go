package storage

import (
	"math"
	"strings"

	"rental-finder/models"
)

// Sheet columns, in their fixed order.
const (
	ColImage          = "Image"
	ColName           = "Name"
	ColPrice          = "Price"
	ColSize           = "Size"
	ColAddress        = "Address"
	ColDistance       = "Distance_To_UBC"
	ColBusRoutes      = "Bus_Routes_Nearby"
	ColBedrooms       = "Bedrooms"
	ColBathrooms      = "Bathrooms"
	ColPricePerPerson = "Price_Per_Person"
	ColPricePerSqft   = "Price_Per_Sqft"
	ColLon            = "Lon"
	ColLat            = "Lat"
	ColType           = "Type"
)

// Columns is the header row. Its order is part of the stored schema.
var Columns = []string{
	ColImage, ColName, ColPrice, ColSize, ColAddress, ColDistance, ColBusRoutes,
	ColBedrooms, ColBathrooms, ColPricePerPerson, ColPricePerSqft, ColLon, ColLat, ColType,
}

var columnIndex = func() map[string]int {
	m := make(map[string]int, len(Columns))
	for i, c := range Columns {
		m[c] = i
	}
	return m
}()

// ColumnIndex returns the zero-based position of a column name.
func ColumnIndex(name string) (int, bool) {
	i, ok := columnIndex[name]
	return i, ok
}

// imageFormat pads the embedded image so it does not touch the cell border.
func imageFormat() *CellFormat {
	return &CellFormat{
		WrapStrategy: "WRAP",
		Padding:      &Padding{Top: 10, Right: 10, Bottom: 10, Left: 10},
	}
}

// bodyFormat is applied to every non-image data cell.
func bodyFormat() *CellFormat {
	return &CellFormat{
		HorizontalAlignment: "CENTER",
		VerticalAlignment:   "MIDDLE",
		FontSize:            12,
		WrapStrategy:        "WRAP",
	}
}

// formatFor returns the formatting profile of a column.
func formatFor(col int) *CellFormat {
	if col == 0 {
		return imageFormat()
	}
	return bodyFormat()
}

// quoteFormula escapes s for use inside a double-quoted formula string.
func quoteFormula(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// recordCells fills the cells of one row from rec. Image and Name are
// formulas; every other column is a literal.
func recordCells(row int, rec models.ListingRecord) []*Cell {
	cells := make([]*Cell, len(Columns))
	for i := range Columns {
		cells[i] = &Cell{Row: row, Col: i, Format: formatFor(i)}
	}
	set := func(col string, v any) { cells[columnIndex[col]].Value = v }

	if rec.ImageURL != "" {
		cells[columnIndex[ColImage]].Formula = "=IMAGE(" + quoteFormula(rec.ImageURL) + ")"
	} else {
		set(ColImage, "")
	}
	cells[columnIndex[ColName]].Formula = "=HYPERLINK(" + quoteFormula(rec.SourceURL) + ", " + quoteFormula(rec.Title) + ")"

	set(ColPrice, rec.PriceDisplay)
	set(ColSize, rec.SizeDisplay())
	set(ColAddress, rec.Address)
	set(ColBusRoutes, strings.Join(rec.TransitRoutes, ", "))
	set(ColBedrooms, rec.BedroomCount)
	set(ColBathrooms, rec.BathroomCount)
	set(ColPricePerPerson, rec.PricePerOccupantDisplay())
	set(ColPricePerSqft, rec.PricePerAreaDisplay())
	set(ColType, rec.PropertyType)

	if rec.DistanceKm != nil {
		set(ColDistance, round2(*rec.DistanceKm))
	} else {
		set(ColDistance, "")
	}
	if rec.Coordinates != nil {
		set(ColLat, rec.Coordinates.Lat)
		set(ColLon, rec.Coordinates.Lon)
	} else {
		set(ColLat, "")
		set(ColLon, "")
	}
	return cells
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
