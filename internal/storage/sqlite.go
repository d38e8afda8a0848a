package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Veraticus/disaster-response-pipeline/internal/common"
	"github.com/Veraticus/disaster-response-pipeline/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteStorage reads labeled messages from a SQLite database.
type SQLiteStorage struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStorage opens the database at dbPath read-only. The file must
// already exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if err := validateString(dbPath, "dbPath"); err != nil {
		return nil, err
	}

	info, err := os.Stat(dbPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, dbPath)
		}
		return nil, fmt.Errorf("failed to stat database: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrDatabaseNotFound, dbPath)
	}

	dsn, err := readOnlyDSN(dbPath)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Debug("Opened database", "path", dbPath, "size", humanize.Bytes(uint64(info.Size())))
	return &SQLiteStorage{db: db, dbPath: dbPath}, nil
}

// readOnlyDSN builds a read-only SQLite URI for dbPath. The path is made
// absolute and percent-escaped so '?', '#' and '%' in file names are not
// read as URI syntax.
func readOnlyDSN(dbPath string) (string, error) {
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve database path: %w", err)
	}
	u := url.URL{
		Scheme:   "file",
		Path:     filepath.ToSlash(abs),
		RawQuery: "mode=ro&_busy_timeout=5000",
	}
	return u.String(), nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// DefaultTable returns the table name the ETL step derives from a database
// path: its base name without extension.
func DefaultTable(dbPath string) string {
	base := filepath.Base(dbPath)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ListTables returns the user tables in the database, sorted by name.
func (s *SQLiteStorage) ListTables(ctx context.Context) ([]string, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// columns returns the column names of table in declaration order.
func (s *SQLiteStorage) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(table)))
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	var cols []string
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	if len(cols) == 0 {
		tables, _ := s.ListTables(ctx)
		return nil, fmt.Errorf("%w: %q (available: %s)", ErrTableNotFound, table, strings.Join(tables, ", "))
	}
	return cols, nil
}

// resolveCategories picks the label columns for schema out of the table's
// columns.
func resolveCategories(schema model.Schema, cols []string) ([]string, error) {
	if !slices.Contains(cols, schema.MessageColumn) {
		return nil, fmt.Errorf("%w: message column %q", ErrMissingColumn, schema.MessageColumn)
	}

	if schema.InferCategories {
		if len(cols) < schema.NumCategories+1 {
			return nil, fmt.Errorf("%w: table has %d columns, need %d label columns after %q",
				ErrTooFewColumns, len(cols), schema.NumCategories, schema.MessageColumn)
		}
		cats := slices.Clone(cols[len(cols)-schema.NumCategories:])
		if slices.Contains(cats, schema.MessageColumn) {
			return nil, fmt.Errorf("%w: message column %q falls inside the last %d columns",
				ErrTooFewColumns, schema.MessageColumn, schema.NumCategories)
		}
		return cats, nil
	}

	var missing []string
	for _, c := range schema.Categories {
		if !slices.Contains(cols, c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return slices.Clone(schema.Categories), nil
}

// LoadDataset reads every row of schema.Table into a dataset whose label
// columns follow the schema's category order.
func (s *SQLiteStorage) LoadDataset(ctx context.Context, schema model.Schema) (*model.Dataset, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}

	cols, err := s.columns(ctx, schema.Table)
	if err != nil {
		return nil, err
	}
	cats, err := resolveCategories(schema, cols)
	if err != nil {
		return nil, err
	}

	selected := make([]string, 0, len(cats)+1)
	selected = append(selected, quoteIdent(schema.MessageColumn))
	for _, c := range cats {
		selected = append(selected, quoteIdent(c))
	}
	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(selected, ", "), quoteIdent(schema.Table))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", schema.Table, err)
	}
	defer func() { _ = rows.Close() }()

	ds := &model.Dataset{Categories: cats}
	binarized := make(map[string]int)
	cells := make([]any, len(cats)+1)
	dest := make([]any, len(cells))
	for i := range cells {
		dest[i] = &cells[i]
	}

	for row := 0; rows.Next(); row++ {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan row %d: %w", row, err)
		}

		msg, err := coerceMessage(cells[0])
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", row, err)
		}

		labels := make(model.LabelVector, len(cats))
		for j, cell := range cells[1:] {
			v, err := coerceLabel(cell)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %s: %w", row, cats[j], err)
			}
			if v > 1 {
				binarized[cats[j]]++
				v = 1
			}
			labels[j] = uint8(v)
		}

		ds.Messages = append(ds.Messages, msg)
		ds.Labels = append(ds.Labels, labels)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", schema.Table, err)
	}

	if ds.Len() == 0 {
		return nil, fmt.Errorf("table %s: %w", schema.Table, common.ErrEmptyDataset)
	}
	for col, n := range binarized {
		slog.Warn("Binarized label values greater than 1", "column", col, "rows", n)
	}

	slog.Debug("Loaded dataset",
		"table", schema.Table,
		"messages", ds.Len(),
		"categories", len(cats))
	return ds, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
