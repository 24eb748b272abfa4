// Package store persists consolidated KPI records and an audit log of
// every extraction.
package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/report-kpi/internal/config"
	"github.com/sells-group/report-kpi/internal/kpi"
	"github.com/sells-group/report-kpi/internal/model"
)

// StoredRecord is the consolidated record for one company and period.
type StoredRecord struct {
	Key       model.RecordKey `json:"key"`
	Record    kpi.Record      `json:"record"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Extraction is one analysis run's raw outcome for a key.
type Extraction struct {
	ID        uuid.UUID       `json:"id"`
	Key       model.RecordKey `json:"key"`
	Documents []string        `json:"documents"`
	Record    kpi.Record      `json:"record"`
	CreatedAt time.Time       `json:"created_at"`
}

// Store defines the persistence interface for KPI records.
type Store interface {
	// GetRecord returns the consolidated record for key; ok is false when
	// none was saved.
	GetRecord(ctx context.Context, key model.RecordKey) (rec kpi.Record, ok bool, err error)
	// SaveRecord inserts or replaces the consolidated record for key.
	SaveRecord(ctx context.Context, key model.RecordKey, rec kpi.Record) error
	// ListRecords returns stored records for company, or all when empty,
	// newest period first.
	ListRecords(ctx context.Context, company string) ([]StoredRecord, error)
	// LogExtraction appends e, assigning ID and CreatedAt when unset.
	LogExtraction(ctx context.Context, e *Extraction) error
	ListExtractions(ctx context.Context, key model.RecordKey) ([]Extraction, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the store selected by cfg.Driver and migrates it.
func Open(ctx context.Context, cfg config.StoreConfig) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "none", "":
		return Nop{}, nil
	case "sqlite":
		s, err = NewSQLite(cfg.DatabaseURL)
	case "postgres":
		s, err = NewPostgres(ctx, cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// prepareExtraction fills defaults and encodes the JSON columns.
func prepareExtraction(e *Extraction) (docs, rec []byte, err error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Documents == nil {
		e.Documents = []string{}
	}
	if docs, err = json.Marshal(e.Documents); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal documents")
	}
	if rec, err = json.Marshal(e.Record); err != nil {
		return nil, nil, eris.Wrap(err, "store: marshal record")
	}
	return docs, rec, nil
}

func decodeRecord(data []byte) (kpi.Record, error) {
	var rec kpi.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return kpi.Record{}, eris.Wrap(err, "store: decode record")
	}
	return rec, nil
}

// Nop is the store used when persistence is disabled.
type Nop struct{}

var _ Store = Nop{}

func (Nop) GetRecord(context.Context, model.RecordKey) (kpi.Record, bool, error) {
	return kpi.Record{}, false, nil
}
func (Nop) SaveRecord(context.Context, model.RecordKey, kpi.Record) error         { return nil }
func (Nop) ListRecords(context.Context, string) ([]StoredRecord, error)           { return nil, nil }
func (Nop) LogExtraction(context.Context, *Extraction) error                      { return nil }
func (Nop) ListExtractions(context.Context, model.RecordKey) ([]Extraction, error) { return nil, nil }
func (Nop) Migrate(context.Context) error                                         { return nil }
func (Nop) Close() error                                                          { return nil }
