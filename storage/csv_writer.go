package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

var csvHeader = []string{
	"request_id", "ingested_at", "row", "source", "url", "title", "type",
	"price", "bedrooms", "bathrooms", "area", "area_unit", "address",
	"lat", "lon", "distance_km", "price_per_person", "price_per_area",
}

// CSVArchiver appends every stored listing to a CSV audit log.
// It is safe for concurrent use.
type CSVArchiver struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVArchiver opens (or creates) the CSV file at path for appending and
// writes the header row when the file is new. Intermediate directories are
// created automatically.
func NewCSVArchiver(path string) (*CSVArchiver, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, eris.Wrap(err, "csv: create output dir")
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, eris.Wrapf(err, "csv: open file %q", path)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, eris.Wrapf(err, "csv: stat %q", path)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(csvHeader); err != nil {
			_ = f.Close()
			return nil, eris.Wrap(err, "csv: write header")
		}
		w.Flush()
	}

	return &CSVArchiver{file: f, writer: w}, nil
}

func (c *CSVArchiver) Archive(ctx context.Context, e ArchiveEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.writer.Write(csvRow(e)); err != nil {
		return eris.Wrap(err, "csv: write row")
	}
	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVArchiver) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.writer.Flush()
	return c.file.Close()
}

func csvRow(e ArchiveEntry) []string {
	r := e.Record
	num := func(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

	lat, lon, dist := "", "", ""
	if r.Coordinates != nil {
		lat, lon = num(r.Coordinates.Lat), num(r.Coordinates.Lon)
	}
	if r.DistanceKm != nil {
		dist = num(round2(*r.DistanceKm))
	}

	return []string{
		e.RequestID,
		e.IngestedAt.UTC().Format(time.RFC3339),
		strconv.Itoa(e.Row),
		r.Source,
		r.SourceURL,
		r.Title,
		r.PropertyType,
		num(r.PriceAmount),
		strconv.Itoa(r.BedroomCount),
		strconv.Itoa(r.BathroomCount),
		num(r.AreaValue),
		r.AreaUnit.Label(),
		strings.ReplaceAll(r.Address, "\n", " "),
		lat,
		lon,
		dist,
		num(round2(r.PricePerOccupant)),
		num(round2(r.PricePerArea)),
	}
}
