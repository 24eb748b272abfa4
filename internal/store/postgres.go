package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/report-kpi/internal/db"
	"github.com/sells-group/report-kpi/internal/kpi"
	"github.com/sells-group/report-kpi/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

var _ Store = (*PostgresStore)(nil)

// NewPostgres connects to connString.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Open(ctx, connString, nil)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close does not close it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS kpi_records (
	company    TEXT NOT NULL,
	year       INTEGER NOT NULL,
	quarter    INTEGER NOT NULL,
	record     JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (company, year, quarter)
);

CREATE TABLE IF NOT EXISTS extractions (
	id         UUID PRIMARY KEY,
	company    TEXT NOT NULL,
	year       INTEGER NOT NULL,
	quarter    INTEGER NOT NULL,
	documents  JSONB NOT NULL,
	record     JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_extractions_key ON extractions(company, year, quarter);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) GetRecord(ctx context.Context, key model.RecordKey) (kpi.Record, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM kpi_records WHERE company = $1 AND year = $2 AND quarter = $3`,
		key.Company, key.Year, key.Quarter,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return kpi.Record{}, false, nil
	}
	if err != nil {
		return kpi.Record{}, false, eris.Wrapf(err, "postgres: get record %s", key)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return kpi.Record{}, false, err
	}
	return rec, true, nil
}

func (s *PostgresStore) SaveRecord(ctx context.Context, key model.RecordKey, rec kpi.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal record")
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO kpi_records (company, year, quarter, record, updated_at) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (company, year, quarter) DO UPDATE SET record = EXCLUDED.record, updated_at = EXCLUDED.updated_at`,
		key.Company, key.Year, key.Quarter, data, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: save record %s", key)
}

func (s *PostgresStore) ListRecords(ctx context.Context, company string) ([]StoredRecord, error) {
	query := `SELECT company, year, quarter, record, updated_at FROM kpi_records`
	var args []any
	if company != "" {
		query += ` WHERE company = $1`
		args = append(args, company)
	}
	query += ` ORDER BY year DESC, quarter DESC, company`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list records")
	}
	defer rows.Close()

	var out []StoredRecord
	for rows.Next() {
		var (
			sr   StoredRecord
			data []byte
		)
		if err := rows.Scan(&sr.Key.Company, &sr.Key.Year, &sr.Key.Quarter, &data, &sr.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan record")
		}
		if sr.Record, err = decodeRecord(data); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list records iterate")
}

func (s *PostgresStore) LogExtraction(ctx context.Context, e *Extraction) error {
	docs, rec, err := prepareExtraction(e)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO extractions (id, company, year, quarter, documents, record, created_at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID.String(), e.Key.Company, e.Key.Year, e.Key.Quarter, docs, rec, e.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: log extraction %s", e.Key)
}

func (s *PostgresStore) ListExtractions(ctx context.Context, key model.RecordKey) ([]Extraction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, documents, record, created_at FROM extractions
		 WHERE company = $1 AND year = $2 AND quarter = $3 ORDER BY created_at, id`,
		key.Company, key.Year, key.Quarter,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list extractions")
	}
	defer rows.Close()

	var out []Extraction
	for rows.Next() {
		var (
			id         string
			docs, data []byte
			e          = Extraction{Key: key}
		)
		if err := rows.Scan(&id, &docs, &data, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan extraction")
		}
		if err := e.ID.UnmarshalText([]byte(id)); err != nil {
			return nil, eris.Wrapf(err, "postgres: extraction id %q", id)
		}
		if err := json.Unmarshal(docs, &e.Documents); err != nil {
			return nil, eris.Wrap(err, "postgres: decode documents")
		}
		if e.Record, err = decodeRecord(data); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list extractions iterate")
}
