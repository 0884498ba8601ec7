package store

import (
	"path/filepath"
	"testing"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/phobologic/syncsplit/internal/model"
)

func sampleReport() *model.Report {
	return &model.Report{
		Project:   "kvstore",
		Primitive: "fsync",
		Passes:    []int{1, 2, 2},
		Wrappers:  2,
		Stats:     model.Stats{PrimitiveWeak: 1, PrimitiveDurable: 1, WrapperDurable: 1},
		Files: []model.FileReport{
			{Path: "src/main.c", Wrappers: []string{"flush", "main"}, Bodies: 3, Decls: 2, Skipped: []string{"src/main.c:gone: not found"}},
		},
		Rewrites: []model.Rewrite{
			{Caller: model.Key{File: "src/main.c", Name: "main"}, Variant: model.Durable, Callee: "flush", NewName: "dsync_flush", Line: 12},
		},
	}
}

func TestWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.db")
	if err := Write(path, sampleReport()); err != nil {
		t.Fatalf("Write: %v", err)
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = conn.Close() }()

	counts := map[string]int64{
		"run":      1,
		"passes":   3,
		"files":    1,
		"wrappers": 2,
		"skipped":  1,
		"rewrites": 1,
	}
	for table, want := range counts {
		var got int64
		err := sqlitex.ExecuteTransient(conn, "SELECT count(*) FROM "+table, &sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				got = stmt.ColumnInt64(0)
				return nil
			},
		})
		if err != nil {
			t.Fatalf("count %s: %v", table, err)
		}
		if got != want {
			t.Errorf("%s rows = %d, want %d", table, got, want)
		}
	}

	var target, variant string
	err = sqlitex.ExecuteTransient(conn,
		"SELECT target, variant FROM rewrites WHERE caller = 'main'",
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				target = stmt.ColumnText(0)
				variant = stmt.ColumnText(1)
				return nil
			},
		})
	if err != nil {
		t.Fatalf("query rewrites: %v", err)
	}
	if target != "dsync_flush" || variant != "durable" {
		t.Errorf("rewrite = %q/%q, want dsync_flush/durable", target, variant)
	}
}

func TestWriteReplacesExisting(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "report.db")
	for n := 0; n < 2; n++ {
		if err := Write(path, sampleReport()); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	conn, err := sqlite.OpenConn(path, sqlite.OpenReadOnly)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = conn.Close() }()

	var runs int64
	err = sqlitex.ExecuteTransient(conn, "SELECT count(*) FROM run", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			runs = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if runs != 1 {
		t.Errorf("run rows = %d, want 1", runs)
	}
}
