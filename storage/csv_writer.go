package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"imovel-search/models"
)

// CSVWriter exports result sets to a CSV file for offline inspection.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write([]string{
		"source", "source_id", "url", "title", "price", "size_m2",
		"bedrooms", "bathrooms", "property_type", "city", "neighborhood",
		"address", "synthetic", "fetched_at",
	}); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// Write appends every record of the result set.
func (c *CSVWriter) Write(_ context.Context, rs *models.ResultSet) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range rs.Records {
		row := []string{
			r.Source,
			r.SourceID,
			r.URL,
			r.Title,
			strconv.FormatFloat(r.Price, 'f', 2, 64),
			strconv.FormatFloat(r.SizeM2, 'f', 1, 64),
			strconv.Itoa(r.Bedrooms),
			strconv.Itoa(r.Bathrooms),
			r.PropertyType,
			r.City,
			r.Neighborhood,
			r.Address,
			strconv.FormatBool(r.Synthetic),
			r.FetchedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
