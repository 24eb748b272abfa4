package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/report-kpi/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresWithPool(mock), mock
}

var pgKey = model.RecordKey{Company: "kitron", Year: 2024, Quarter: 2}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS kpi_records`).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record FROM kpi_records WHERE company = \$1 AND year = \$2 AND quarter = \$3`).
		WithArgs("kitron", 2024, 2).
		WillReturnError(pgx.ErrNoRows)

	_, ok, err := s.GetRecord(context.Background(), pgKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord_Found(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record FROM kpi_records`).
		WithArgs("kitron", 2024, 2).
		WillReturnRows(pgxmock.NewRows([]string{"record"}).AddRow([]byte(`{"omsetning": 10, "valuta": "NOK"}`)))

	rec, ok, err := s.GetRecord(context.Background(), pgKey)
	require.NoError(t, err)
	require.True(t, ok)
	v, _ := rec.Get("valuta")
	text, _ := v.Text()
	assert.Equal(t, "NOK", text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetRecord_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT record FROM kpi_records`).
		WithArgs("kitron", 2024, 2).
		WillReturnError(eris.New("connection lost"))

	_, _, err := s.GetRecord(context.Background(), pgKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: get record kitron/2024Q2")
}

func TestPostgresStore_SaveRecord_Upsert(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`INSERT INTO kpi_records .* ON CONFLICT \(company, year, quarter\) DO UPDATE`).
		WithArgs("kitron", 2024, 2, []byte(`{"omsetning":10}`), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveRecord(context.Background(), pgKey, mustRecord(t, `{"omsetning": 10}`)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListRecords(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT company, year, quarter, record, updated_at FROM kpi_records WHERE company = \$1 ORDER BY`).
		WithArgs("kitron").
		WillReturnRows(pgxmock.NewRows([]string{"company", "year", "quarter", "record", "updated_at"}).
			AddRow("kitron", 2024, 2, []byte(`{"omsetning": 10}`), now).
			AddRow("kitron", 2024, 1, []byte(`{"omsetning": 9}`), now))

	recs, err := s.ListRecords(context.Background(), "kitron")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, pgKey, recs[0].Key)
	assert.Equal(t, now, recs[1].UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_LogExtraction(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	id := uuid.New()
	created := time.Date(2024, 10, 24, 7, 0, 0, 0, time.UTC)
	mock.ExpectExec(`INSERT INTO extractions`).
		WithArgs(id.String(), "kitron", 2024, 2, []byte(`["q2.pdf"]`), []byte(`{"ebitda":1}`), created).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	e := &Extraction{ID: id, Key: pgKey, Documents: []string{"q2.pdf"}, Record: mustRecord(t, `{"ebitda": 1}`), CreatedAt: created}
	require.NoError(t, s.LogExtraction(context.Background(), e))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListExtractions(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	id := uuid.New()
	created := time.Date(2024, 10, 24, 7, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT id::text, documents, record, created_at FROM extractions`).
		WithArgs("kitron", 2024, 2).
		WillReturnRows(pgxmock.NewRows([]string{"id", "documents", "record", "created_at"}).
			AddRow(id.String(), []byte(`["a.pdf","b.pdf"]`), []byte(`{"ebitda": 1}`), created))

	got, err := s.ListExtractions(context.Background(), pgKey)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, got[0].Documents)
	assert.Equal(t, pgKey, got[0].Key)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CloseWithoutPool(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	assert.NoError(t, s.Close())
}
