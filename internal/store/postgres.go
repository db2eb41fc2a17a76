package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/i474232898/retail-price-tracker/internal/prices"
)

const (
	postgresBatchSize   = 50
	postgresColumnCount = 8
)

// PostgresStore keeps the dataset in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection, waits for the server to answer and
// runs schema migrations.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres: dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS price_observations (
			seq         INTEGER PRIMARY KEY,
			group_key   TEXT NOT NULL,
			location_id TEXT NOT NULL DEFAULT '',
			store       TEXT NOT NULL DEFAULT '',
			item_code   TEXT NOT NULL DEFAULT '',
			value       DOUBLE PRECISION,
			observed_at TEXT NOT NULL DEFAULT '',
			extra       JSONB
		);

		ALTER TABLE price_observations ADD COLUMN IF NOT EXISTS extra JSONB;

		CREATE INDEX IF NOT EXISTS idx_price_observations_group ON price_observations(group_key);
	`)
	return err
}

func (ps *PostgresStore) Load(ctx context.Context) (prices.Dataset, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT group_key, location_id, store, item_code, value, observed_at, extra
		FROM price_observations
		ORDER BY seq
	`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load: %w", err)
	}
	defer rows.Close()

	ds, err := scanObservations(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	return ds, nil
}

// Save clears the table and batch-inserts ds in one transaction.
func (ps *PostgresStore) Save(ctx context.Context, ds prices.Dataset) (err error) {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, "DELETE FROM price_observations"); err != nil {
		return fmt.Errorf("postgres: clear: %w", err)
	}

	for i := 0; i < len(ds); i += postgresBatchSize {
		end := i + postgresBatchSize
		if end > len(ds) {
			end = len(ds)
		}
		var (
			query string
			args  []interface{}
		)
		if query, args, err = insertBatchQuery(i, ds[i:end]); err != nil {
			return fmt.Errorf("postgres: encode batch at %d: %w", i, err)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("postgres: insert batch at %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// insertBatchQuery builds a multi-row insert. offset is the seq of the first
// row in batch.
func insertBatchQuery(offset int, batch prices.Dataset) (string, []interface{}, error) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*postgresColumnCount)

	for idx, o := range batch {
		extra, err := encodeExtra(o.Extra)
		if err != nil {
			return "", nil, err
		}
		base := idx * postgresColumnCount
		valueStrings = append(valueStrings,
			fmt.Sprintf("($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
				base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8))
		valueArgs = append(valueArgs,
			offset+idx, o.Group, o.LocationID, o.Store, o.ItemCode, nullValue(o.Value), o.TimestampRaw, extra)
	}

	query := fmt.Sprintf(`
		INSERT INTO price_observations (seq, group_key, location_id, store, item_code, value, observed_at, extra)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	return query, valueArgs, nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}
