package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

// SQLiteStore keeps the dataset in a local SQLite file. Row order is kept in
// the seq column.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite: path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Load(ctx context.Context) (prices.Dataset, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_key, location_id, store, item_code, value, observed_at, extra
		FROM price_observations
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: load: %w", err)
	}
	defer rows.Close()

	return scanObservations(rows)
}

// Save replaces the stored dataset inside one transaction.
func (s *SQLiteStore) Save(ctx context.Context, ds prices.Dataset) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM price_observations`); err != nil {
		return fmt.Errorf("sqlite: clear: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO price_observations (
			seq, group_key, location_id, store, item_code, value, observed_at, extra
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, o := range ds {
		var extra any
		if extra, err = encodeExtra(o.Extra); err != nil {
			return fmt.Errorf("sqlite: encode row %d: %w", i, err)
		}
		_, err = stmt.ExecContext(ctx, i, o.Group, o.LocationID, o.Store, o.ItemCode, nullValue(o.Value), o.TimestampRaw, extra)
		if err != nil {
			return fmt.Errorf("sqlite: insert row %d: %w", i, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) migrate() error {
	statements := []string{
		`PRAGMA journal_mode = WAL;`,
		`CREATE TABLE IF NOT EXISTS price_observations (
			seq INTEGER PRIMARY KEY,
			group_key TEXT NOT NULL,
			location_id TEXT NOT NULL,
			store TEXT NOT NULL,
			item_code TEXT NOT NULL,
			value REAL,
			observed_at TEXT NOT NULL,
			extra TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_price_observations_group ON price_observations(group_key);`,
	}

	for _, statement := range statements {
		if _, err := s.db.Exec(statement); err != nil {
			return fmt.Errorf("sqlite: migrate: %w", err)
		}
	}

	return s.addColumnIfMissing("extra", "TEXT")
}

// addColumnIfMissing upgrades tables created before a column existed.
func (s *SQLiteStore) addColumnIfMissing(name, typ string) error {
	rows, err := s.db.Query(`SELECT name FROM pragma_table_info('price_observations')`)
	if err != nil {
		return fmt.Errorf("sqlite: table info: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var column string
		if err := rows.Scan(&column); err != nil {
			return fmt.Errorf("sqlite: table info: %w", err)
		}
		if column == name {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("sqlite: table info: %w", err)
	}
	rows.Close()

	if _, err := s.db.Exec(fmt.Sprintf(`ALTER TABLE price_observations ADD COLUMN %s %s`, name, typ)); err != nil {
		return fmt.Errorf("sqlite: add column %s: %w", name, err)
	}
	return nil
}

// nullValue maps an absent value to SQL NULL.
func nullValue(v prices.Value) any {
	amount, ok := v.Get()
	if !ok {
		return nil
	}
	return amount
}

func scanObservations(rows *sql.Rows) (prices.Dataset, error) {
	ds := prices.Dataset{}
	for rows.Next() {
		var (
			o     prices.Observation
			value sql.NullFloat64
			extra sql.NullString
		)
		if err := rows.Scan(&o.Group, &o.LocationID, &o.Store, &o.ItemCode, &value, &o.TimestampRaw, &extra); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		decoded, err := decodeExtra(extra.String)
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: %w", ErrMalformedRow, len(ds), err)
		}
		o.Extra = decoded
		o.Value = prices.Absent()
		if value.Valid {
			o.Value = prices.Some(value.Float64)
			if err := o.Value.Validate(); err != nil {
				return nil, fmt.Errorf("%w: row %d: %w", ErrMalformedRow, len(ds), err)
			}
		}
		ds = append(ds, o)
	}
	return ds, rows.Err()
}
