package storage

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/model"
	"github.com/Veraticus/disaster-response-pipeline/internal/testutil"
)

func openStorage(t *testing.T, path string) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func execFixture(t *testing.T, path, query string) {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	_, err = db.Exec(query)
	require.NoError(t, err)
}

func TestNewSQLiteStorage_Errors(t *testing.T) {
	_, err := NewSQLiteStorage("")
	assert.ErrorIs(t, err, ErrEmptyString)

	_, err = NewSQLiteStorage(filepath.Join(t.TempDir(), "missing.db"))
	assert.ErrorIs(t, err, ErrDatabaseNotFound)

	_, err = NewSQLiteStorage(t.TempDir())
	assert.ErrorIs(t, err, ErrDatabaseNotFound)
}

func TestReadOnlyDSN(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/data/DisasterResponse.db", "file:///data/DisasterResponse.db?mode=ro&_busy_timeout=5000"},
		{"/data/what?.db", "file:///data/what%3F.db?mode=ro&_busy_timeout=5000"},
		{"/data/#1 100%.db", "file:///data/%231%20100%25.db?mode=ro&_busy_timeout=5000"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := readOnlyDSN(tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	rel, err := readOnlyDSN("DisasterResponse.db")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rel, "file:///"), rel)
}

func TestNewSQLiteStorage_URICharactersInPath(t *testing.T) {
	want := testutil.ToyDataset(5)
	src := testutil.CreateMessagesDB(t, want, testutil.TableOptions{})

	dir := filepath.Join(t.TempDir(), "run?1#a")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	path := filepath.Join(dir, "100%.db")
	require.NoError(t, os.Rename(src, path))

	s := openStorage(t, path)
	got, err := s.LoadDataset(context.Background(), model.DefaultSchema("messages"))
	require.NoError(t, err)
	assert.Equal(t, want.Messages, got.Messages)
}

func TestDefaultTable(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"data/DisasterResponse.db", "DisasterResponse"},
		{"DisasterResponse.db", "DisasterResponse"},
		{"/tmp/messages.sqlite", "messages"},
		{"plain", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultTable(tt.path))
		})
	}
}

func TestLoadDataset(t *testing.T) {
	want := testutil.ToyDataset(10)
	s := openStorage(t, testutil.CreateMessagesDB(t, want, testutil.TableOptions{}))

	got, err := s.LoadDataset(context.Background(), model.DefaultSchema("messages"))
	require.NoError(t, err)
	assert.Equal(t, want.Messages, got.Messages)
	assert.Equal(t, want.Labels, got.Labels)
	assert.Equal(t, model.DefaultCategories, got.Categories)
	assert.NoError(t, got.Validate())
}

func TestLoadDataset_CategoryOrderFollowsSchema(t *testing.T) {
	ds := testutil.ToyDataset(5)
	s := openStorage(t, testutil.CreateMessagesDB(t, ds, testutil.TableOptions{}))

	schema := model.DefaultSchema("messages")
	schema.Categories = []string{"water", "related"}
	got, err := s.LoadDataset(context.Background(), schema)
	require.NoError(t, err)

	assert.Equal(t, []string{"water", "related"}, got.Categories)
	assert.Equal(t, model.LabelVector{1, 1}, got.Labels[0])
	assert.Equal(t, model.LabelVector{0, 0}, got.Labels[4])
}

func TestLoadDataset_InferCategories(t *testing.T) {
	want := testutil.ToyDataset(10)
	s := openStorage(t, testutil.CreateMessagesDB(t, want, testutil.TableOptions{}))

	schema := model.DefaultSchema("messages")
	schema.InferCategories = true
	schema.Categories = nil
	got, err := s.LoadDataset(context.Background(), schema)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultCategories, got.Categories)
	assert.Equal(t, want.Labels, got.Labels)
}

func TestLoadDataset_SchemaErrors(t *testing.T) {
	ds := testutil.ToyDataset(3)
	path := testutil.CreateMessagesDB(t, ds, testutil.TableOptions{OmitCategories: []string{"water", "fire"}})
	execFixture(t, path, `CREATE TABLE "narrow" ("message" TEXT, "related" INTEGER, "water" INTEGER)`)
	execFixture(t, path, `INSERT INTO "narrow" VALUES ('help', 1, 0)`)
	s := openStorage(t, path)

	tests := []struct {
		name     string
		schema   func() model.Schema
		wantErr  error
		contains string
	}{
		{
			name:     "missing table",
			schema:   func() model.Schema { return model.DefaultSchema("DisasterResponse") },
			wantErr:  ErrTableNotFound,
			contains: "messages",
		},
		{
			name:     "missing category columns",
			schema:   func() model.Schema { return model.DefaultSchema("messages") },
			wantErr:  ErrMissingColumn,
			contains: "water, fire",
		},
		{
			name: "missing message column",
			schema: func() model.Schema {
				s := model.DefaultSchema("messages")
				s.MessageColumn = "text"
				return s
			},
			wantErr:  ErrMissingColumn,
			contains: "text",
		},
		{
			name: "too few columns",
			schema: func() model.Schema {
				s := model.DefaultSchema("narrow")
				s.InferCategories = true
				return s
			},
			wantErr: ErrTooFewColumns,
		},
		{
			name:    "invalid schema",
			schema:  func() model.Schema { return model.DefaultSchema("") },
			wantErr: model.ErrInvalidSchema,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.LoadDataset(context.Background(), tt.schema())
			require.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestLoadDataset_Labels(t *testing.T) {
	tests := []struct {
		name    string
		sqlType string
		value   any
		want    uint8
		wantErr error
	}{
		{name: "related two is binarized", sqlType: "INTEGER", value: 2, want: 1},
		{name: "float one", sqlType: "REAL", value: 1.0, want: 1},
		{name: "numeric text", sqlType: "TEXT", value: " 1 ", want: 1},
		{name: "zero text", sqlType: "TEXT", value: "0", want: 0},
		{name: "negative", sqlType: "INTEGER", value: -1, wantErr: ErrInvalidLabel},
		{name: "fractional", sqlType: "REAL", value: 0.5, wantErr: ErrInvalidLabel},
		{name: "non numeric", sqlType: "TEXT", value: "yes", wantErr: ErrInvalidLabel},
		{name: "null", sqlType: "INTEGER", value: nil, wantErr: ErrInvalidLabel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds := testutil.ToyDataset(5)
			path := testutil.CreateMessagesDB(t, ds, testutil.TableOptions{
				LabelSQLType: tt.sqlType,
				Override:     map[int]map[string]any{4: {"related": tt.value}},
			})
			s := openStorage(t, path)

			got, err := s.LoadDataset(context.Background(), model.DefaultSchema("messages"))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Contains(t, err.Error(), "row 4, column related")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Labels[4][0])
		})
	}
}

func TestLoadDataset_InvalidMessage(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"null", `UPDATE "messages" SET "message" = NULL WHERE "id" = 2`},
		{"blank", `UPDATE "messages" SET "message" = '   ' WHERE "id" = 2`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.CreateMessagesDB(t, testutil.ToyDataset(3), testutil.TableOptions{})
			execFixture(t, path, tt.query)
			s := openStorage(t, path)

			_, err := s.LoadDataset(context.Background(), model.DefaultSchema("messages"))
			assert.ErrorIs(t, err, ErrInvalidMessage)
		})
	}
}

func TestLoadDataset_Empty(t *testing.T) {
	s := openStorage(t, testutil.CreateMessagesDB(t, testutil.ToyDataset(0), testutil.TableOptions{}))

	_, err := s.LoadDataset(context.Background(), model.DefaultSchema("messages"))
	assert.ErrorIs(t, err, common.ErrEmptyDataset)
}

func TestListTables(t *testing.T) {
	path := testutil.CreateMessagesDB(t, testutil.ToyDataset(1), testutil.TableOptions{Table: "DisasterResponse"})
	execFixture(t, path, `CREATE TABLE "genres" ("name" TEXT)`)
	s := openStorage(t, path)

	tables, err := s.ListTables(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"DisasterResponse", "genres"}, tables)
}

func TestCoerceLabel(t *testing.T) {
	tests := []struct {
		cell    any
		want    int64
		wantErr bool
	}{
		{int64(0), 0, false},
		{int64(3), 3, false},
		{float64(1), 1, false},
		{[]byte("1"), 1, false},
		{"", 0, true},
		{[]byte("abc"), 0, true},
		{float64(-2), 0, true},
	}
	for _, tt := range tests {
		got, err := coerceLabel(tt.cell)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidLabel, "cell %v", tt.cell)
			continue
		}
		require.NoError(t, err, "cell %v", tt.cell)
		assert.Equal(t, tt.want, got)
	}
}
