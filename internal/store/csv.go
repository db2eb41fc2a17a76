package store

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

// CSVStore keeps the whole dataset as one CSV object, the way a blob store
// would hold it. Save rewrites the object atomically.
type CSVStore struct {
	mu   sync.Mutex
	path string
}

// NewCSVStore returns a store backed by the file at path. The file need not
// exist yet; intermediate directories are created on Save.
func NewCSVStore(path string) (*CSVStore, error) {
	if path == "" {
		return nil, fmt.Errorf("csv: path is required")
	}
	return &CSVStore{path: path}, nil
}

// Load reads every row. A missing file is an empty dataset (first run).
func (s *CSVStore) Load(_ context.Context) (prices.Dataset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return prices.Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: open %q: %w", s.path, err)
	}
	defer f.Close()

	return readCSV(f)
}

func readCSV(r io.Reader) (prices.Dataset, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return prices.Dataset{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("csv: read header: %w", err)
	}
	columns := normalizeHeader(header)

	ds := prices.Dataset{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("csv: line %d: %w", line, err)
		}
		o, err := fromRecord(record, columns)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrMalformedRow, line, err)
		}
		ds = append(ds, o)
	}
	return ds, nil
}

// Save writes ds to a temporary file next to the target and renames it over
// the previous version.
func (s *CSVStore) Save(_ context.Context, ds prices.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("csv: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := writeCSV(tmp, ds); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("csv: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("csv: replace %q: %w", s.path, err)
	}
	return nil
}

func writeCSV(w io.Writer, ds prices.Dataset) error {
	writer := csv.NewWriter(w)
	extra := extraColumns(ds)
	if err := writer.Write(append(append([]string(nil), Columns...), extra...)); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	for _, o := range ds {
		if err := writer.Write(toRecord(o, extra)); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// Path returns the location of the CSV object.
func (s *CSVStore) Path() string {
	return s.path
}

func (s *CSVStore) Close() error {
	return nil
}
