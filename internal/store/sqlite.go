package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/report-kpi/internal/kpi"
	"github.com/sells-group/report-kpi/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// One writer; WAL lets readers run alongside it.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS kpi_records (
	company    TEXT NOT NULL,
	year       INTEGER NOT NULL,
	quarter    INTEGER NOT NULL,
	record     TEXT NOT NULL,
	updated_at DATETIME NOT NULL,
	PRIMARY KEY (company, year, quarter)
);

CREATE TABLE IF NOT EXISTS extractions (
	id         TEXT PRIMARY KEY,
	company    TEXT NOT NULL,
	year       INTEGER NOT NULL,
	quarter    INTEGER NOT NULL,
	documents  TEXT NOT NULL,
	record     TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_extractions_key ON extractions(company, year, quarter);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetRecord(ctx context.Context, key model.RecordKey) (kpi.Record, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM kpi_records WHERE company = ? AND year = ? AND quarter = ?`,
		key.Company, key.Year, key.Quarter,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return kpi.Record{}, false, nil
	}
	if err != nil {
		return kpi.Record{}, false, eris.Wrapf(err, "sqlite: get record %s", key)
	}
	rec, err := decodeRecord([]byte(data))
	if err != nil {
		return kpi.Record{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteStore) SaveRecord(ctx context.Context, key model.RecordKey, rec kpi.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal record")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO kpi_records (company, year, quarter, record, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (company, year, quarter) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		key.Company, key.Year, key.Quarter, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save record %s", key)
}

func (s *SQLiteStore) ListRecords(ctx context.Context, company string) ([]StoredRecord, error) {
	query := `SELECT company, year, quarter, record, updated_at FROM kpi_records`
	var args []any
	if company != "" {
		query += ` WHERE company = ?`
		args = append(args, company)
	}
	query += ` ORDER BY year DESC, quarter DESC, company`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list records")
	}
	defer rows.Close() //nolint:errcheck

	var out []StoredRecord
	for rows.Next() {
		var (
			sr   StoredRecord
			data string
		)
		if err := rows.Scan(&sr.Key.Company, &sr.Key.Year, &sr.Key.Quarter, &data, &sr.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}
		if sr.Record, err = decodeRecord([]byte(data)); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

func (s *SQLiteStore) LogExtraction(ctx context.Context, e *Extraction) error {
	docs, rec, err := prepareExtraction(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO extractions (id, company, year, quarter, documents, record, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.Key.Company, e.Key.Year, e.Key.Quarter, string(docs), string(rec), e.CreatedAt,
	)
	return eris.Wrapf(err, "sqlite: log extraction %s", e.Key)
}

func (s *SQLiteStore) ListExtractions(ctx context.Context, key model.RecordKey) ([]Extraction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, documents, record, created_at FROM extractions
		 WHERE company = ? AND year = ? AND quarter = ? ORDER BY created_at, id`,
		key.Company, key.Year, key.Quarter,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list extractions")
	}
	defer rows.Close() //nolint:errcheck

	var out []Extraction
	for rows.Next() {
		var (
			id, docs, data string
			e              = Extraction{Key: key}
		)
		if err := rows.Scan(&id, &docs, &data, &e.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan extraction")
		}
		if e.ID, err = uuid.Parse(id); err != nil {
			return nil, eris.Wrapf(err, "sqlite: extraction id %q", id)
		}
		if err := json.Unmarshal([]byte(docs), &e.Documents); err != nil {
			return nil, eris.Wrap(err, "sqlite: decode documents")
		}
		if e.Record, err = decodeRecord([]byte(data)); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list extractions iterate")
}
