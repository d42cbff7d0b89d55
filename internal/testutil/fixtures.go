// Package testutil writes source fixture files for loader and connector
// tests: the same logical source serialized as JSON, sqlite, or CSV.
package testutil

import (
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// WriteJSONSource writes a JSON source document of the shape
// {"Sheet": [ {row}, ... ]} and returns its path.
func WriteJSONSource(t *testing.T, dir, name string, sheets map[string][]map[string]any) string {
	t.Helper()
	data, err := json.MarshalIndent(sheets, "", "  ")
	if err != nil {
		t.Fatalf("marshal json source: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write json source: %v", err)
	}
	return path
}

// WriteSQLiteSource writes a sqlite source database, one table per entity
// with all-text columns, and returns its path.
func WriteSQLiteSource(t *testing.T, dir, name string, tables map[string][]map[string]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open sqlite source: %v", err)
	}
	defer db.Close()

	for table, rows := range tables {
		cols := columnsOf(rows)
		if len(cols) == 0 {
			t.Fatalf("table %q: no columns", table)
		}
		ddl := fmt.Sprintf(`CREATE TABLE "%s" (`, table)
		for i, col := range cols {
			if i > 0 {
				ddl += ", "
			}
			ddl += fmt.Sprintf(`"%s" TEXT`, col)
		}
		ddl += ")"
		if _, err := db.Exec(ddl); err != nil {
			t.Fatalf("create table %q: %v", table, err)
		}

		for _, row := range rows {
			placeholders := ""
			args := make([]any, 0, len(cols))
			for i, col := range cols {
				if i > 0 {
					placeholders += ", "
				}
				placeholders += "?"
				args = append(args, row[col])
			}
			stmt := fmt.Sprintf(`INSERT INTO "%s" VALUES (%s)`, table, placeholders)
			if _, err := db.Exec(stmt, args...); err != nil {
				t.Fatalf("insert into %q: %v", table, err)
			}
		}
	}
	return path
}

// WriteCSVSource writes a CSV source file with a header row and returns its
// path. The entity key is the file base name without extension.
func WriteCSVSource(t *testing.T, dir, name string, header []string, rows [][]string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create csv source: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		t.Fatalf("write csv header: %v", err)
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			t.Fatalf("write csv row: %v", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flush csv source: %v", err)
	}
	return path
}

// Touch bumps a file's mtime so the next run sees a new source version even
// though the content is identical.
func Touch(t *testing.T, path string) {
	t.Helper()
	now := time.Now().Add(time.Second)
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("touch %q: %v", path, err)
	}
}

// columnsOf returns the sorted union of the rows' keys.
func columnsOf(rows []map[string]string) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for col := range row {
			if !seen[col] {
				seen[col] = true
				cols = append(cols, col)
			}
		}
	}
	sort.Strings(cols)
	return cols
}
