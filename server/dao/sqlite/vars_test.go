package sqlite

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/dekarrin/tunatalk/internal/machine"
	"github.com/dekarrin/tunatalk/internal/script"
	"github.com/dekarrin/tunatalk/server/dao"
	"github.com/stretchr/testify/assert"
)

const storeTestSrc = `
Variable
	$name Text "newcomer"
	$count Int 3
	$ratio Real 0.5

State Welcome
	Default
		Speak $name
`

func testSchema(t *testing.T) *machine.Schema {
	t.Helper()
	prog, err := script.Parse(storeTestSrc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, schema, err := machine.Build(prog)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return schema
}

func newTestStore(t *testing.T) dao.VariableStore {
	t.Helper()
	st, err := NewVariableStore(filepath.Join(t.TempDir(), "vars.db"), testSchema(t), false)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func Test_store_InsertDefaultAndLookup(t *testing.T) {
	assert := assert.New(t)
	st := newTestStore(t)
	ctx := context.Background()

	err := st.InsertDefault(ctx, "alice", "hunter2")
	if !assert.NoError(err) {
		return
	}

	row, err := st.Lookup(ctx, "alice")
	if !assert.NoError(err) {
		return
	}
	assert.Equal("alice", row.Username)
	assert.Equal("hunter2", row.Passwd)
	assert.Equal(script.TextValue("newcomer"), row.Vars["name"])
	assert.Equal(script.IntValue(3), row.Vars["count"])
	assert.Equal(script.RealValue(0.5), row.Vars["ratio"])

	// double registration is refused
	err = st.InsertDefault(ctx, "alice", "other")
	assert.ErrorIs(err, dao.ErrAlreadyExists)

	// unknown users are not found
	_, err = st.Lookup(ctx, "bob")
	assert.ErrorIs(err, dao.ErrNotFound)
}

func Test_store_guestRowExists(t *testing.T) {
	assert := assert.New(t)
	st := newTestStore(t)

	row, err := st.Lookup(context.Background(), machine.GuestUser)
	if !assert.NoError(err) {
		return
	}
	assert.Equal("", row.Passwd)
	assert.Equal(script.IntValue(3), row.Vars["count"])
}

func Test_store_Verify(t *testing.T) {
	assert := assert.New(t)
	st := newTestStore(t)
	ctx := context.Background()

	if !assert.NoError(st.InsertDefault(ctx, "alice", "hunter2")) {
		return
	}

	assert.NoError(st.Verify(ctx, "alice", "hunter2"))
	assert.ErrorIs(st.Verify(ctx, "alice", "wrong"), dao.ErrBadCredentials)
	assert.ErrorIs(st.Verify(ctx, "bob", "hunter2"), dao.ErrNotFound)
}

func Test_store_ReadWrite(t *testing.T) {
	assert := assert.New(t)
	st := newTestStore(t)
	ctx := context.Background()

	if !assert.NoError(st.InsertDefault(ctx, "alice", "pw")) {
		return
	}

	assert.NoError(st.Write(ctx, "alice", "count", script.IntValue(10)))
	assert.NoError(st.Write(ctx, "alice", "name", script.TextValue("爱丽丝")))

	v, err := st.Read(ctx, "alice", "count")
	assert.NoError(err)
	assert.Equal(script.IntValue(10), v)

	v, err = st.Read(ctx, "alice", "name")
	assert.NoError(err)
	assert.Equal("爱丽丝", v.S)

	// a user without a row reads the declared default
	v, err = st.Read(ctx, "Guest_12345", "ratio")
	assert.NoError(err)
	assert.Equal(script.RealValue(0.5), v)

	// but cannot write
	err = st.Write(ctx, "Guest_12345", "ratio", script.RealValue(2))
	assert.ErrorIs(err, dao.ErrNotFound)
}

func Test_store_reservedColumns(t *testing.T) {
	assert := assert.New(t)
	st := newTestStore(t)
	ctx := context.Background()

	if !assert.NoError(st.InsertDefault(ctx, "alice", "pw")) {
		return
	}

	v, err := st.Read(ctx, "alice", machine.VarUsername)
	assert.NoError(err)
	assert.Equal("alice", v.S)

	v, err = st.Read(ctx, "alice", machine.VarPasswd)
	assert.NoError(err)
	assert.Equal("pw", v.S)

	// a rowless user reads the reserved defaults
	v, err = st.Read(ctx, "Guest_7", machine.VarUsername)
	assert.NoError(err)
	assert.Equal("", v.S)

	// writing passwd changes what Verify accepts
	assert.NoError(st.Write(ctx, "alice", machine.VarPasswd, script.TextValue("pw2")))
	assert.NoError(st.Verify(ctx, "alice", "pw2"))
	assert.ErrorIs(st.Verify(ctx, "alice", "pw"), dao.ErrBadCredentials)

	// writing username moves the row
	assert.NoError(st.Write(ctx, "alice", machine.VarUsername, script.TextValue("alicia")))
	_, err = st.Lookup(ctx, "alice")
	assert.ErrorIs(err, dao.ErrNotFound)
	assert.NoError(st.Verify(ctx, "alicia", "pw2"))

	// but not onto a name that already has a row
	err = st.Write(ctx, "alicia", machine.VarUsername, script.TextValue(machine.GuestUser))
	assert.ErrorIs(err, dao.ErrConstraintViolation)
}

func Test_store_Apply(t *testing.T) {
	assert := assert.New(t)
	st := newTestStore(t)
	ctx := context.Background()

	if !assert.NoError(st.InsertDefault(ctx, "alice", "pw")) {
		return
	}

	err := st.Apply(ctx, "alice", "count", func(cur script.Value) (script.Value, error) {
		return script.IntValue(cur.I + 4), nil
	})
	if !assert.NoError(err) {
		return
	}

	v, err := st.Read(ctx, "alice", "count")
	assert.NoError(err)
	assert.Equal(script.IntValue(7), v)

	// a failing transform leaves the row untouched
	err = st.Apply(ctx, "alice", "count", func(cur script.Value) (script.Value, error) {
		return script.Value{}, fmt.Errorf("nope")
	})
	assert.Error(err)

	v, _ = st.Read(ctx, "alice", "count")
	assert.Equal(script.IntValue(7), v)
}

func Test_store_keepDB(t *testing.T) {
	assert := assert.New(t)
	schema := testSchema(t)
	file := filepath.Join(t.TempDir(), "vars.db")
	ctx := context.Background()

	st, err := NewVariableStore(file, schema, false)
	if !assert.NoError(err) {
		return
	}
	if !assert.NoError(st.InsertDefault(ctx, "alice", "pw")) {
		return
	}
	assert.NoError(st.Close())

	// keep=true reopens with existing rows intact
	st, err = NewVariableStore(file, schema, true)
	if !assert.NoError(err) {
		return
	}
	_, err = st.Lookup(ctx, "alice")
	assert.NoError(err)
	assert.NoError(st.Close())

	// keep=false starts fresh
	st, err = NewVariableStore(file, schema, false)
	if !assert.NoError(err) {
		return
	}
	_, err = st.Lookup(ctx, "alice")
	assert.ErrorIs(err, dao.ErrNotFound)
	assert.NoError(st.Close())
}
