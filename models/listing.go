package models

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"rental-finder/geo"
)

// AreaUnit is the unit a listing's floor area was advertised in.
type AreaUnit string

const (
	AreaSqft AreaUnit = "AREA_SQFT"
	AreaSqm  AreaUnit = "AREA_SQM"
)

// Label returns the short display form used in the sheet ("sqft" / "m2").
func (u AreaUnit) Label() string {
	switch u {
	case AreaSqft:
		return "sqft"
	case AreaSqm:
		return "m2"
	default:
		return string(u)
	}
}

var (
	ErrInvalidArea        = errors.New("models: area must be a positive number")
	ErrInvalidAreaUnit    = errors.New("models: unknown area unit")
	ErrNegativeRoomCount  = errors.New("models: room counts must be non-negative")
	ErrInvalidPrice       = errors.New("models: price must be a finite non-negative number")
	ErrInvalidCoordinates = errors.New("models: coordinates out of range")
)

// ListingFields is the raw, parser-supplied half of a record. Derived fields
// are never supplied by callers; NewListingRecord computes them.
type ListingFields struct {
	SourceURL     string
	Source        string
	Title         string
	PropertyType  string
	PriceAmount   float64
	PriceDisplay  string
	BedroomCount  int
	BathroomCount int
	AreaValue     float64
	AreaUnit      AreaUnit
	Address       string
	ImageURL      string
	Coordinates   *geo.Point
}

// ListingRecord is the normalized result of parsing one listing page.
// It is built once by NewListingRecord and must be treated as read-only;
// later enrichment is written to the store as a separate cell patch.
type ListingRecord struct {
	ListingFields

	PricePerArea     float64
	PricePerOccupant float64
	// DistanceKm is nil when the page carried no coordinates.
	DistanceKm *float64
	// TransitRoutes stays empty until enrichment runs against the stored row.
	TransitRoutes []string
}

// NewListingRecord validates f and derives price-per-area, price-per-occupant
// and the distance to home.
func NewListingRecord(f ListingFields, home geo.Point) (ListingRecord, error) {
	if math.IsNaN(f.PriceAmount) || math.IsInf(f.PriceAmount, 0) || f.PriceAmount < 0 {
		return ListingRecord{}, fmt.Errorf("%w: %v", ErrInvalidPrice, f.PriceAmount)
	}
	if math.IsNaN(f.AreaValue) || math.IsInf(f.AreaValue, 0) || f.AreaValue <= 0 {
		return ListingRecord{}, fmt.Errorf("%w: %v", ErrInvalidArea, f.AreaValue)
	}
	if f.AreaUnit != AreaSqft && f.AreaUnit != AreaSqm {
		return ListingRecord{}, fmt.Errorf("%w: %q", ErrInvalidAreaUnit, f.AreaUnit)
	}
	if f.BedroomCount < 0 || f.BathroomCount < 0 {
		return ListingRecord{}, ErrNegativeRoomCount
	}

	rec := ListingRecord{ListingFields: f}
	rec.Title = strings.TrimSpace(f.Title)
	rec.Address = strings.TrimSpace(f.Address)
	rec.PricePerArea = f.PriceAmount / f.AreaValue
	rec.PricePerOccupant = f.PriceAmount / float64(rec.Occupants())

	if f.Coordinates != nil {
		if !f.Coordinates.Valid() {
			return ListingRecord{}, fmt.Errorf("%w: %v", ErrInvalidCoordinates, *f.Coordinates)
		}
		p := *f.Coordinates
		rec.Coordinates = &p
		d := geo.DistanceKm(home, p)
		rec.DistanceKm = &d
	}
	return rec, nil
}

// Occupants is the divisor for price-per-occupant. Studios (0 bedrooms) count as one.
func (r ListingRecord) Occupants() int {
	if r.BedroomCount < 1 {
		return 1
	}
	return r.BedroomCount
}

// SizeDisplay renders the area the way the sheet shows it, e.g. "850 sqft".
func (r ListingRecord) SizeDisplay() string {
	return trimFloat(r.AreaValue) + " " + r.AreaUnit.Label()
}

// PricePerOccupantDisplay renders e.g. "625.00 $ / person".
func (r ListingRecord) PricePerOccupantDisplay() string {
	return fmt.Sprintf("%.2f $ / person", r.PricePerOccupant)
}

// PricePerAreaDisplay renders e.g. "1.47 $ / sqft".
func (r ListingRecord) PricePerAreaDisplay() string {
	return fmt.Sprintf("%.2f $ / %s", r.PricePerArea, r.AreaUnit.Label())
}

func trimFloat(f float64) string {
	if f == math.Trunc(f) {
		return fmt.Sprintf("%.0f", f)
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}
