// Package store persists a run report to a SQLite database so the wrapper
// set and every rewritten call site can be queried after the fact.
package store

import (
	"fmt"
	"os"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/phobologic/syncsplit/internal/model"
)

// Write replaces the database at path with the contents of r.
func Write(path string, r *model.Report) (err error) {
	_ = os.Remove(path) // ignore if doesn't exist

	conn, err := sqlite.OpenConn(path, sqlite.OpenCreate, sqlite.OpenReadWrite, sqlite.OpenWAL)
	if err != nil {
		return fmt.Errorf("open sqlite: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := sqlitex.ExecuteTransient(conn, "PRAGMA synchronous = NORMAL", nil); err != nil {
		return err
	}
	if err := createTables(conn); err != nil {
		return err
	}

	endFn, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer endFn(&err)

	if err := insertRun(conn, r); err != nil {
		return err
	}
	if err := insertPasses(conn, r.Passes); err != nil {
		return err
	}
	if err := insertFiles(conn, r.Files); err != nil {
		return err
	}
	return insertRewrites(conn, r.Rewrites)
}

func createTables(conn *sqlite.Conn) error {
	ddl := `
CREATE TABLE run (
    project TEXT NOT NULL,
    primitive TEXT NOT NULL,
    wrappers INTEGER NOT NULL,
    primitive_weak INTEGER NOT NULL,
    primitive_durable INTEGER NOT NULL,
    wrapper_weak INTEGER NOT NULL,
    wrapper_durable INTEGER NOT NULL
);

CREATE TABLE passes (
    pass INTEGER PRIMARY KEY,
    size INTEGER NOT NULL
);

CREATE TABLE files (
    path TEXT PRIMARY KEY,
    bodies INTEGER NOT NULL,
    decls INTEGER NOT NULL
);

CREATE TABLE wrappers (
    file TEXT NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (file, name)
);

CREATE TABLE skipped (
    file TEXT NOT NULL,
    reason TEXT NOT NULL
);

CREATE TABLE rewrites (
    file TEXT NOT NULL,
    caller TEXT NOT NULL,
    variant TEXT NOT NULL,
    line INTEGER NOT NULL,
    callee TEXT NOT NULL,
    target TEXT NOT NULL
);

CREATE INDEX idx_rewrites_caller ON rewrites(file, caller);
`
	return sqlitex.ExecuteScript(conn, ddl, nil)
}

func insertRun(conn *sqlite.Conn, r *model.Report) error {
	err := sqlitex.Execute(conn,
		`INSERT INTO run (project, primitive, wrappers, primitive_weak, primitive_durable, wrapper_weak, wrapper_durable)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []any{
				r.Project, r.Primitive, r.Wrappers,
				r.Stats.PrimitiveWeak, r.Stats.PrimitiveDurable,
				r.Stats.WrapperWeak, r.Stats.WrapperDurable,
			},
		})
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func insertPasses(conn *sqlite.Conn, passes []int) error {
	stmt, err := conn.Prepare(`INSERT INTO passes (pass, size) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare passes: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()

	for i, size := range passes {
		stmt.BindInt64(1, int64(i+1))
		stmt.BindInt64(2, int64(size))
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("insert pass %d: %w", i+1, err)
		}
		_ = stmt.Reset()
	}
	return nil
}

func insertFiles(conn *sqlite.Conn, files []model.FileReport) error {
	fileStmt, err := conn.Prepare(`INSERT INTO files (path, bodies, decls) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare files: %w", err)
	}
	defer func() { _ = fileStmt.Finalize() }()

	wrapStmt, err := conn.Prepare(`INSERT OR IGNORE INTO wrappers (file, name) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare wrappers: %w", err)
	}
	defer func() { _ = wrapStmt.Finalize() }()

	skipStmt, err := conn.Prepare(`INSERT INTO skipped (file, reason) VALUES (?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare skipped: %w", err)
	}
	defer func() { _ = skipStmt.Finalize() }()

	for i := range files {
		f := &files[i]
		fileStmt.BindText(1, f.Path)
		fileStmt.BindInt64(2, int64(f.Bodies))
		fileStmt.BindInt64(3, int64(f.Decls))
		if _, err := fileStmt.Step(); err != nil {
			return fmt.Errorf("insert file %s: %w", f.Path, err)
		}
		_ = fileStmt.Reset()

		for _, name := range f.Wrappers {
			wrapStmt.BindText(1, f.Path)
			wrapStmt.BindText(2, name)
			if _, err := wrapStmt.Step(); err != nil {
				return fmt.Errorf("insert wrapper %s: %w", name, err)
			}
			_ = wrapStmt.Reset()
		}

		for _, reason := range f.Skipped {
			skipStmt.BindText(1, f.Path)
			skipStmt.BindText(2, reason)
			if _, err := skipStmt.Step(); err != nil {
				return fmt.Errorf("insert skipped: %w", err)
			}
			_ = skipStmt.Reset()
		}
	}
	return nil
}

func insertRewrites(conn *sqlite.Conn, rewrites []model.Rewrite) error {
	stmt, err := conn.Prepare(`INSERT INTO rewrites (file, caller, variant, line, callee, target) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare rewrites: %w", err)
	}
	defer func() { _ = stmt.Finalize() }()

	for i := range rewrites {
		rw := &rewrites[i]
		stmt.BindText(1, rw.Caller.File)
		stmt.BindText(2, rw.Caller.Name)
		stmt.BindText(3, rw.Variant.String())
		stmt.BindInt64(4, int64(rw.Line))
		stmt.BindText(5, rw.Callee)
		stmt.BindText(6, rw.NewName)
		if _, err := stmt.Step(); err != nil {
			return fmt.Errorf("insert rewrite: %w", err)
		}
		_ = stmt.Reset()
	}
	return nil
}
