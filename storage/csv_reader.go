package storage

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"licence-trends/models"
)

// ErrSourceMissing is returned when an expected raw extract does not exist.
var ErrSourceMissing = errors.New("source missing")

// ReadRawCSV loads a CSV file into a RawTable. Empty cells become missing
// values. Short rows are padded as missing, extra cells are ignored.
func ReadRawCSV(path, source string) (*models.RawTable, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("csv: %s: %w", path, ErrSourceMissing)
		}
		return nil, fmt.Errorf("csv: open %q: %w", path, err)
	}
	defer f.Close()

	return ReadRaw(f, source)
}

// ReadRaw parses CSV content from r.
func ReadRaw(r io.Reader, source string) (*models.RawTable, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return &models.RawTable{Source: source}, nil
		}
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	t := &models.RawTable{Source: source, Columns: header}
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv: read line %d: %w", line, err)
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i >= len(rec) {
				break
			}
			if rec[i] == "" {
				continue
			}
			row[col] = rec[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}
