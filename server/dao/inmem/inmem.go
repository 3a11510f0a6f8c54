// Package inmem provides a map-backed VariableStore. It is used by tests
// and by servers configured without a database file; rows are lost on
// shutdown.
package inmem

import (
	"context"
	"sync"

	"github.com/dekarrin/tunatalk/internal/machine"
	"github.com/dekarrin/tunatalk/internal/script"
	"github.com/dekarrin/tunatalk/server/dao"
)

type store struct {
	mu     sync.Mutex
	schema *machine.Schema
	rows   map[string]*row
}

type row struct {
	passwd string
	vars   map[string]script.Value
}

// NewVariableStore creates an empty store whose rows hold one value per
// scripted variable in the schema. A row for the shared Guest user is
// pre-inserted.
func NewVariableStore(schema *machine.Schema) dao.VariableStore {
	st := &store{
		schema: schema,
		rows:   make(map[string]*row),
	}
	st.rows[machine.GuestUser] = st.defaultRow("")
	return st
}

func (st *store) defaultRow(passwd string) *row {
	r := &row{passwd: passwd, vars: make(map[string]script.Value)}
	for _, name := range st.schema.Vars() {
		def, _ := st.schema.Default(name)
		r.vars[name] = def
	}
	return r
}

func (st *store) Lookup(ctx context.Context, username string) (dao.Row, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	r, ok := st.rows[username]
	if !ok {
		return dao.Row{}, dao.ErrNotFound
	}

	out := dao.Row{Username: username, Passwd: r.passwd, Vars: make(map[string]script.Value)}
	for name, v := range r.vars {
		out.Vars[name] = v
	}
	return out, nil
}

func (st *store) InsertDefault(ctx context.Context, username, passwd string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if _, ok := st.rows[username]; ok {
		return dao.ErrAlreadyExists
	}
	st.rows[username] = st.defaultRow(passwd)
	return nil
}

func (st *store) Verify(ctx context.Context, username, passwd string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	r, ok := st.rows[username]
	if !ok {
		return dao.ErrNotFound
	}
	if r.passwd != passwd {
		return dao.ErrBadCredentials
	}
	return nil
}

func (st *store) Read(ctx context.Context, username, varName string) (script.Value, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.read(username, varName)
}

func (st *store) read(username, varName string) (script.Value, error) {
	if r, ok := st.rows[username]; ok {
		// the reserved columns live on the row itself, not in vars
		switch varName {
		case machine.VarUsername:
			return script.TextValue(username), nil
		case machine.VarPasswd:
			return script.TextValue(r.passwd), nil
		}
		if v, ok := r.vars[varName]; ok {
			return v, nil
		}
	}
	if def, ok := st.schema.Default(varName); ok {
		return def, nil
	}
	return script.Value{}, dao.ErrNotFound
}

func (st *store) Write(ctx context.Context, username, varName string, v script.Value) error {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.write(username, varName, v)
}

func (st *store) write(username, varName string, v script.Value) error {
	r, ok := st.rows[username]
	if !ok {
		return dao.ErrNotFound
	}
	switch varName {
	case machine.VarUsername:
		// writing the username column moves the row, same as updating the
		// primary key would in the sqlite store
		if v.S == username {
			return nil
		}
		if _, taken := st.rows[v.S]; taken {
			return dao.ErrConstraintViolation
		}
		delete(st.rows, username)
		st.rows[v.S] = r
		return nil
	case machine.VarPasswd:
		r.passwd = v.S
		return nil
	}
	if _, ok := r.vars[varName]; !ok {
		return dao.ErrNotFound
	}
	r.vars[varName] = v
	return nil
}

func (st *store) Apply(ctx context.Context, username, varName string, fn func(script.Value) (script.Value, error)) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	cur, err := st.read(username, varName)
	if err != nil {
		return err
	}
	next, err := fn(cur)
	if err != nil {
		return err
	}
	return st.write(username, varName, next)
}

func (st *store) Close() error {
	return nil
}
