package inmem

import (
	"context"
	"testing"

	"github.com/dekarrin/tunatalk/internal/machine"
	"github.com/dekarrin/tunatalk/internal/script"
	"github.com/dekarrin/tunatalk/server/dao"
	"github.com/stretchr/testify/assert"
)

func testSchema(t *testing.T) *machine.Schema {
	t.Helper()
	prog, err := script.Parse(`
Variable
	$name Text "newcomer"
	$count Int 3

State Welcome
	Default
		Speak $name
`)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	_, schema, err := machine.Build(prog)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return schema
}

func Test_store_roundTrip(t *testing.T) {
	assert := assert.New(t)
	st := NewVariableStore(testSchema(t))
	ctx := context.Background()

	assert.NoError(st.InsertDefault(ctx, "alice", "pw"))
	assert.ErrorIs(st.InsertDefault(ctx, "alice", "pw2"), dao.ErrAlreadyExists)

	assert.NoError(st.Verify(ctx, "alice", "pw"))
	assert.ErrorIs(st.Verify(ctx, "alice", "nope"), dao.ErrBadCredentials)
	assert.ErrorIs(st.Verify(ctx, "bob", "pw"), dao.ErrNotFound)

	row, err := st.Lookup(ctx, "alice")
	if assert.NoError(err) {
		assert.Equal(script.IntValue(3), row.Vars["count"])
	}

	assert.NoError(st.Write(ctx, "alice", "count", script.IntValue(9)))
	v, err := st.Read(ctx, "alice", "count")
	assert.NoError(err)
	assert.Equal(script.IntValue(9), v)

	err = st.Apply(ctx, "alice", "count", func(cur script.Value) (script.Value, error) {
		return script.IntValue(cur.I - 2), nil
	})
	assert.NoError(err)
	v, _ = st.Read(ctx, "alice", "count")
	assert.Equal(script.IntValue(7), v)

	// rowless users read defaults and cannot write
	v, err = st.Read(ctx, "Guest_9", "name")
	assert.NoError(err)
	assert.Equal("newcomer", v.S)
	assert.ErrorIs(st.Write(ctx, "Guest_9", "name", script.TextValue("x")), dao.ErrNotFound)

	// the shared Guest row is pre-inserted and writable
	assert.NoError(st.Write(ctx, machine.GuestUser, "count", script.IntValue(1)))
}

func Test_store_reservedColumns(t *testing.T) {
	assert := assert.New(t)
	st := NewVariableStore(testSchema(t))
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
	assert.ErrorIs(st.Write(ctx, "alicia", machine.VarUsername, script.TextValue(machine.GuestUser)), dao.ErrConstraintViolation)
}
