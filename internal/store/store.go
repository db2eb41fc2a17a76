package store

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/goccy/go-json"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

// Drivers accepted by Open.
const (
	DriverMemory   = "memory"
	DriverCSV      = "csv"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var (
	// ErrUnknownDriver is returned by Open for an unsupported driver name.
	ErrUnknownDriver = errors.New("unknown store driver")
	// ErrMalformedRow is returned when a stored row cannot be decoded.
	ErrMalformedRow = errors.New("malformed dataset row")
)

// Store is a prices.Store that owns resources.
type Store interface {
	prices.Store
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Driver      string
	CSVPath     string
	SQLitePath  string
	PostgresDSN string
}

// Open returns the backend named by cfg.Driver.
func Open(cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverCSV, "":
		return NewCSVStore(cfg.CSVPath)
	case DriverSQLite:
		return NewSQLiteStore(cfg.SQLitePath)
	case DriverPostgres:
		return NewPostgresStore(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}
}

// Columns is the at-rest column order.
var Columns = []string{"group", "location_id", "store", "item_code", "value", "timestamp"}

// columnAliases maps headers written by earlier versions of the tracker.
var columnAliases = map[string]string{
	"city":  "group",
	"upc":   "item_code",
	"price": "value",
	"date":  "timestamp",
}

// extraColumns returns the sorted union of the extra keys in ds.
func extraColumns(ds prices.Dataset) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range ds {
		for k := range o.Extra {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	sort.Strings(out)
	return out
}

func toRecord(o prices.Observation, extra []string) []string {
	record := []string{o.Group, o.LocationID, o.Store, o.ItemCode, o.Value.String(), o.TimestampRaw}
	for _, k := range extra {
		record = append(record, o.Extra[k])
	}
	return record
}

func normalizeHeader(header []string) map[string]int {
	result := make(map[string]int, len(header))
	for i, value := range header {
		key := strings.ToLower(strings.TrimSpace(value))
		if i == 0 {
			key = strings.TrimPrefix(key, "\ufeff")
		}
		if alias, ok := columnAliases[key]; ok {
			key = alias
		}
		if key == "" {
			continue
		}
		result[key] = i
	}
	return result
}

func getCell(record []string, header map[string]int, key string) string {
	index, ok := header[key]
	if !ok || index >= len(record) {
		return ""
	}
	return record[index]
}

// fromRecord decodes one CSV record. Only the value cell can fail: the
// timestamp is kept raw and judged later by the normalizer.
func fromRecord(record []string, header map[string]int) (prices.Observation, error) {
	v, err := prices.ParseValue(getCell(record, header, "value"))
	if err != nil {
		return prices.Observation{}, err
	}
	o := prices.Observation{
		Group:        getCell(record, header, "group"),
		LocationID:   getCell(record, header, "location_id"),
		Store:        getCell(record, header, "store"),
		ItemCode:     getCell(record, header, "item_code"),
		Value:        v,
		TimestampRaw: getCell(record, header, "timestamp"),
	}
	for key := range header {
		if slices.Contains(Columns, key) {
			continue
		}
		if cell := getCell(record, header, key); cell != "" {
			if o.Extra == nil {
				o.Extra = make(map[string]string)
			}
			o.Extra[key] = cell
		}
	}
	return o, nil
}

// encodeExtra stores extra columns as a JSON object; none is SQL NULL.
func encodeExtra(extra map[string]string) (any, error) {
	if len(extra) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func decodeExtra(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var extra map[string]string
	if err := json.Unmarshal([]byte(raw), &extra); err != nil {
		return nil, err
	}
	if len(extra) == 0 {
		return nil, nil
	}
	return extra, nil
}
