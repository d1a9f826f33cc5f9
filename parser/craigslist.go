package parser

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"rental-finder/geo"
	"rental-finder/models"
)

const craigslistSource = "craigslist"

// Craigslist parses craigslist housing postings. The page carries a JSON-LD
// block (#ld_posting_data) with the canonical attributes; price, size,
// address, coordinates and preview image live in presentational elements.
type Craigslist struct {
	home geo.Point
}

// NewCraigslist returns a parser that measures distances from home.
func NewCraigslist(home geo.Point) *Craigslist {
	return &Craigslist{home: home}
}

func (c *Craigslist) Source() string { return craigslistSource }

// postingData is the subset of the JSON-LD block we read.
type postingData struct {
	Type      string  `json:"@type"`
	Name      string  `json:"name"`
	Bedrooms  flexInt `json:"numberOfBedrooms"`
	Bathrooms flexInt `json:"numberOfBathroomsTotal"`
}

// flexInt accepts 2, 2.5 and "2"; fractional values are truncated.
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return fmt.Errorf("not a number: %s", b)
	}
	if n < 0 {
		return fmt.Errorf("negative count: %s", b)
	}
	f.Value, f.Set = int(n), true
	return nil
}

func (c *Craigslist) Parse(body []byte, pageURL string) (models.ListingRecord, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return models.ListingRecord{}, c.fail(ErrStructuredDataMissing, "unreadable markup", err)
	}

	// structured data
	raw := strings.TrimSpace(doc.Find("#ld_posting_data").First().Text())
	if raw == "" {
		return models.ListingRecord{}, c.fail(ErrStructuredDataMissing, "#ld_posting_data", nil)
	}
	var data postingData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return models.ListingRecord{}, c.fail(ErrStructuredDataMalformed, "#ld_posting_data", err)
	}

	// price
	priceDisplay := normaliseText(doc.Find("span.price").First().Text())
	price, ok := parsePrice(priceDisplay)
	if !ok {
		return models.ListingRecord{}, c.fail(ErrPriceUnparseable, strconv.Quote(priceDisplay), nil)
	}

	// size
	h, err := parseHousing(doc.Find("span.housing").First().Text())
	if err != nil {
		var pe *ParseError
		if errors.As(err, &pe) {
			pe.Source = craigslistSource
		}
		return models.ListingRecord{}, err
	}

	bedrooms := data.Bedrooms.Value
	if !data.Bedrooms.Set && h.HasBedrooms {
		bedrooms = h.Bedrooms
	}

	// coordinates
	coords, err := c.coordinates(doc)
	if err != nil {
		return models.ListingRecord{}, err
	}

	// preview image
	image, _ := doc.Find(`meta[property="og:image"]`).First().Attr("content")

	fields := models.ListingFields{
		SourceURL:     pageURL,
		Source:        craigslistSource,
		Title:         normaliseText(data.Name),
		PropertyType:  data.Type,
		PriceAmount:   price,
		PriceDisplay:  priceDisplay,
		BedroomCount:  bedrooms,
		BathroomCount: data.Bathrooms.Value,
		AreaValue:     h.Area,
		AreaUnit:      h.Unit,
		Address:       normaliseText(doc.Find("div.mapaddress").First().Text()),
		ImageURL:      strings.TrimSpace(image),
		Coordinates:   coords,
	}

	rec, err := models.NewListingRecord(fields, c.home)
	if err != nil {
		return models.ListingRecord{}, c.fail(kindForModelError(err), "", err)
	}
	return rec, nil
}

// coordinates reads the ICBM meta tag ("lat, lon"). A present but malformed
// tag is an error; a missing one falls back to the map element's data
// attributes and otherwise leaves the coordinates unset.
func (c *Craigslist) coordinates(doc *goquery.Document) (*geo.Point, error) {
	if content, ok := doc.Find(`meta[name="ICBM"]`).First().Attr("content"); ok {
		parts := strings.Split(content, ",")
		if len(parts) != 2 {
			return nil, c.fail(ErrCoordinatesMalformed, strconv.Quote(content), nil)
		}
		lat, errLat := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		lon, errLon := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		p := geo.Point{Lat: lat, Lon: lon}
		if errLat != nil || errLon != nil || !p.Valid() {
			return nil, c.fail(ErrCoordinatesMalformed, strconv.Quote(content), nil)
		}
		return &p, nil
	}

	mapEl := doc.Find("#map").First()
	latAttr, okLat := mapEl.Attr("data-latitude")
	lonAttr, okLon := mapEl.Attr("data-longitude")
	if !okLat || !okLon {
		return nil, nil
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(latAttr), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(lonAttr), 64)
	p := geo.Point{Lat: lat, Lon: lon}
	if errLat != nil || errLon != nil || !p.Valid() {
		return nil, nil
	}
	return &p, nil
}

func (c *Craigslist) fail(kind error, detail string, cause error) error {
	return newParseError(craigslistSource, kind, detail, cause)
}

func kindForModelError(err error) error {
	switch {
	case errors.Is(err, models.ErrInvalidArea):
		return ErrAreaUnparseable
	case errors.Is(err, models.ErrInvalidAreaUnit):
		return ErrUnitUnrecognized
	case errors.Is(err, models.ErrInvalidPrice):
		return ErrPriceUnparseable
	case errors.Is(err, models.ErrInvalidCoordinates):
		return ErrCoordinatesMalformed
	default:
		return ErrStructuredDataMalformed
	}
}
