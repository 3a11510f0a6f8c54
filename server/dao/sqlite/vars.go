// Package sqlite provides a VariableStore backed by a single sqlite table.
// Every scripted variable becomes a typed column of the user_variable table,
// so the schema of the table is derived from the loaded script at startup.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dekarrin/tunatalk/internal/machine"
	"github.com/dekarrin/tunatalk/internal/script"
	"github.com/dekarrin/tunatalk/server/dao"
	"modernc.org/sqlite"
)

type store struct {
	dbFilename string

	db     *sql.DB
	schema *machine.Schema

	// one writer at a time; sqlite itself would serialize writes but the
	// read-modify-write in Apply needs to be atomic at this level too.
	mu sync.Mutex
}

// NewVariableStore opens (or creates) the variable database at the given
// file. Unless keep is set, any existing database is removed first so the
// table always matches the current script's schema. A default row for the
// shared Guest user is inserted if it is not already present.
func NewVariableStore(file string, schema *machine.Schema, keep bool) (dao.VariableStore, error) {
	if !keep {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("remove old database: %w", err)
		}
	}

	st := &store{dbFilename: file, schema: schema}

	var err error
	st.db, err = sql.Open("sqlite", file)
	if err != nil {
		return nil, wrapDBError(err)
	}

	if err := st.init(); err != nil {
		st.db.Close()
		return nil, err
	}

	return st, nil
}

func (st *store) init() error {
	var sb strings.Builder
	sb.WriteString(`CREATE TABLE IF NOT EXISTS user_variable (
		username TEXT NOT NULL PRIMARY KEY,
		passwd TEXT NOT NULL`)

	for _, name := range st.schema.Vars() {
		vt, _ := st.schema.Type(name)
		def, _ := st.schema.Default(name)
		sb.WriteString(",\n\t\t")
		sb.WriteString(quoteIdent(name))
		sb.WriteString(" ")
		sb.WriteString(vt.SQLType())
		sb.WriteString(" NOT NULL DEFAULT ")
		sb.WriteString(sqlLiteral(def))
	}
	sb.WriteString("\n\t);")

	if _, err := st.db.Exec(sb.String()); err != nil {
		return wrapDBError(err)
	}

	// the shared anonymous row; every guest session reads and writes it.
	_, err := st.db.Exec(`INSERT OR IGNORE INTO user_variable (username, passwd) VALUES (?, ?);`, machine.GuestUser, "")
	if err != nil {
		return wrapDBError(err)
	}

	return nil
}

func (st *store) Lookup(ctx context.Context, username string) (dao.Row, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lookup(ctx, st.db, username)
}

// lookup runs against either the plain connection or an open transaction.
func (st *store) lookup(ctx context.Context, q queryer, username string) (dao.Row, error) {
	vars := st.schema.Vars()

	cols := make([]string, 0, len(vars)+1)
	cols = append(cols, "passwd")
	for _, name := range vars {
		cols = append(cols, quoteIdent(name))
	}

	r := dao.Row{Username: username, Vars: make(map[string]script.Value)}

	dests := make([]interface{}, 0, len(cols))
	dests = append(dests, &r.Passwd)
	ints := make([]int64, len(vars))
	reals := make([]float64, len(vars))
	texts := make([]string, len(vars))
	for i, name := range vars {
		vt, _ := st.schema.Type(name)
		switch vt {
		case script.Int:
			dests = append(dests, &ints[i])
		case script.Real:
			dests = append(dests, &reals[i])
		default:
			dests = append(dests, &texts[i])
		}
	}

	row := q.QueryRowContext(ctx, `SELECT `+strings.Join(cols, ", ")+` FROM user_variable WHERE username = ?;`, username)
	if err := row.Scan(dests...); err != nil {
		return r, wrapDBError(err)
	}

	for i, name := range vars {
		vt, _ := st.schema.Type(name)
		switch vt {
		case script.Int:
			r.Vars[name] = script.IntValue(ints[i])
		case script.Real:
			r.Vars[name] = script.RealValue(reals[i])
		default:
			r.Vars[name] = script.TextValue(texts[i])
		}
	}

	return r, nil
}

func (st *store) InsertDefault(ctx context.Context, username, passwd string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	_, err := st.db.ExecContext(ctx, `INSERT INTO user_variable (username, passwd) VALUES (?, ?);`, username, passwd)
	if err != nil {
		err = wrapDBError(err)
		if errors.Is(err, dao.ErrConstraintViolation) {
			return dao.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (st *store) Verify(ctx context.Context, username, passwd string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	var stored string
	row := st.db.QueryRowContext(ctx, `SELECT passwd FROM user_variable WHERE username = ?;`, username)
	if err := row.Scan(&stored); err != nil {
		return wrapDBError(err)
	}
	if stored != passwd {
		return dao.ErrBadCredentials
	}
	return nil
}

func (st *store) Read(ctx context.Context, username, varName string) (script.Value, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.read(ctx, st.db, username, varName)
}

func (st *store) read(ctx context.Context, q queryer, username, varName string) (script.Value, error) {
	vt, ok := st.schema.Type(varName)
	if !ok {
		return script.Value{}, fmt.Errorf("no variable column %q", varName)
	}

	row := q.QueryRowContext(ctx, `SELECT `+quoteIdent(varName)+` FROM user_variable WHERE username = ?;`, username)

	switch vt {
	case script.Int:
		var n int64
		if err := row.Scan(&n); err != nil {
			return st.defaultFor(varName, err)
		}
		return script.IntValue(n), nil
	case script.Real:
		var f float64
		if err := row.Scan(&f); err != nil {
			return st.defaultFor(varName, err)
		}
		return script.RealValue(f), nil
	default:
		var s string
		if err := row.Scan(&s); err != nil {
			return st.defaultFor(varName, err)
		}
		return script.TextValue(s), nil
	}
}

// defaultFor turns a missing row into the variable's default; other scan
// errors pass through.
func (st *store) defaultFor(varName string, err error) (script.Value, error) {
	err = wrapDBError(err)
	if errors.Is(err, dao.ErrNotFound) {
		def, _ := st.schema.Default(varName)
		return def, nil
	}
	return script.Value{}, err
}

func (st *store) Write(ctx context.Context, username, varName string, v script.Value) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.write(ctx, st.db, username, varName, v)
}

func (st *store) write(ctx context.Context, q queryer, username, varName string, v script.Value) error {
	if _, ok := st.schema.Type(varName); !ok {
		return fmt.Errorf("no variable column %q", varName)
	}

	res, err := q.ExecContext(ctx, `UPDATE user_variable SET `+quoteIdent(varName)+` = ? WHERE username = ?;`, driverValue(v), username)
	if err != nil {
		return wrapDBError(err)
	}
	rowsAff, err := res.RowsAffected()
	if err != nil {
		return wrapDBError(err)
	}
	if rowsAff < 1 {
		return dao.ErrNotFound
	}
	return nil
}

func (st *store) Apply(ctx context.Context, username, varName string, fn func(script.Value) (script.Value, error)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	tx, err := st.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError(err)
	}
	defer tx.Rollback()

	cur, err := st.read(ctx, tx, username, varName)
	if err != nil {
		return err
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}

	if err := st.write(ctx, tx, username, varName, next); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return wrapDBError(err)
	}
	return nil
}

func (st *store) Close() error {
	return st.db.Close()
}

// queryer is the common surface of *sql.DB and *sql.Tx that the row helpers
// need.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func driverValue(v script.Value) interface{} {
	switch v.Type {
	case script.Int:
		return v.I
	case script.Real:
		return v.R
	default:
		return v.S
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// sqlLiteral renders a default value as a DDL literal. Variable defaults come
// from the parsed script so the only thing needing escaping is quotes in
// Text defaults.
func sqlLiteral(v script.Value) string {
	switch v.Type {
	case script.Int:
		return fmt.Sprintf("%d", v.I)
	case script.Real:
		return v.String()
	default:
		return "'" + strings.ReplaceAll(v.S, "'", "''") + "'"
	}
}

func wrapDBError(err error) error {
	sqliteErr := &sqlite.Error{}
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code() == 19 {
			return dao.ErrConstraintViolation
		}
		return fmt.Errorf("%s", sqlite.ErrorCodeString[sqliteErr.Code()])
	} else if errors.Is(err, sql.ErrNoRows) {
		return dao.ErrNotFound
	}
	return err
}
