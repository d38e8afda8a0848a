// Package testutil provides fixtures for tests: labeled toy datasets and
// SQLite message tables shaped like the disaster response database.
package testutil

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Veraticus/disaster-response-pipeline/internal/model"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// TableOptions controls how CreateMessagesTable lays out the table.
type TableOptions struct {
	// Table defaults to "messages".
	Table string
	// Categories overrides the label column names. Defaults to the dataset's.
	Categories []string
	// OmitCategories leaves these label columns out of the table.
	OmitCategories []string
	// LabelSQLType is the declared type of label columns. Defaults to INTEGER.
	LabelSQLType string
	// Override replaces the stored value of a label cell: rows[i][column].
	Override map[int]map[string]any
}

// CreateMessagesDB writes ds to a new database file in a temp dir and
// returns its path. The table has id, message, original and genre columns
// followed by one column per category, like the upstream ETL output.
func CreateMessagesDB(t *testing.T, ds *model.Dataset, opts TableOptions) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "DisasterResponse.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("failed to open fixture database: %v", err)
	}
	defer func() { _ = db.Close() }()

	if err := WriteMessagesTable(db, ds, opts); err != nil {
		t.Fatalf("failed to write fixture table: %v", err)
	}
	return path
}

// WriteMessagesTable creates and fills the messages table on db.
func WriteMessagesTable(db *sql.DB, ds *model.Dataset, opts TableOptions) error {
	table := opts.Table
	if table == "" {
		table = "messages"
	}
	labelType := opts.LabelSQLType
	if labelType == "" {
		labelType = "INTEGER"
	}
	names := opts.Categories
	if names == nil {
		names = ds.Categories
	}
	omit := make(map[string]bool, len(opts.OmitCategories))
	for _, c := range opts.OmitCategories {
		omit[c] = true
	}

	type column struct {
		name  string
		index int
	}
	var labelCols []column
	for j, name := range names {
		if !omit[name] {
			labelCols = append(labelCols, column{name: name, index: j})
		}
	}

	defs := []string{`"id" INTEGER PRIMARY KEY`, `"message" TEXT`, `"original" TEXT`, `"genre" TEXT`}
	cols := []string{`"id"`, `"message"`, `"original"`, `"genre"`}
	for _, c := range labelCols {
		defs = append(defs, fmt.Sprintf("%q %s", c.name, labelType))
		cols = append(cols, fmt.Sprintf("%q", c.name))
	}
	if _, err := db.Exec(fmt.Sprintf("CREATE TABLE %q (%s)", table, strings.Join(defs, ", "))); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	stmt, err := db.Prepare(fmt.Sprintf("INSERT INTO %q (%s) VALUES (%s)", table, strings.Join(cols, ", "), placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, msg := range ds.Messages {
		args := []any{i + 1, msg, nil, "direct"}
		for _, c := range labelCols {
			var v any = int(ds.Labels[i][c.index])
			if override, ok := opts.Override[i][c.name]; ok {
				v = override
			}
			args = append(args, v)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("failed to insert row %d: %w", i, err)
		}
	}
	return nil
}
