package machine

import (
	"context"
	"sync"
	"testing"

	"github.com/dekarrin/tunatalk/internal/script"
	"github.com/stretchr/testify/assert"
)

// fakeStore is a VarStore over a plain map, sufficient for interpreter
// tests. Every user shares the same row.
type fakeStore struct {
	mu   sync.Mutex
	vars map[string]script.Value
}

func newFakeStore(schema *Schema) *fakeStore {
	fs := &fakeStore{vars: make(map[string]script.Value)}
	for _, name := range schema.Vars() {
		def, _ := schema.Default(name)
		fs.vars[name] = def
	}
	return fs
}

func (fs *fakeStore) Read(ctx context.Context, username, varName string) (script.Value, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.vars[varName], nil
}

func (fs *fakeStore) Apply(ctx context.Context, username, varName string, fn func(script.Value) (script.Value, error)) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	next, err := fn(fs.vars[varName])
	if err != nil {
		return err
	}
	fs.vars[varName] = next
	return nil
}

const machineTestSrc = `
Variable
	$name Text "新用户"
	$balance Real 0.0

State Welcome
	Speak "您好"
	Case "余额"
		Speak "您的余额为" + $balance
	Case "存款"
		Goto Deposit
	Case "退出"
		Speak "再见"
		Exit
	Default
		Speak "无法识别的输入"

State Deposit Verified
	Speak "请输入存款金额"
	Case Type Real
		Update $balance Add Copy
		Speak "已存入" + Copy
		Goto Welcome
	Default
		Speak "请输入数字"
	Timeout 60
		Speak "即将返回主菜单"
		Goto Welcome
	Timeout 120
		Exit
`

func newTestMachine(t *testing.T) (*Machine, *fakeStore) {
	t.Helper()

	prog, err := script.Parse(machineTestSrc)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	graph, schema, err := Build(prog)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	fs := newFakeStore(schema)
	return NewMachine(graph, schema, fs), fs
}

func Test_Machine_Hello(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine(t)
	sess := NewSession("Guest_1")

	msgs, err := m.Hello(context.Background(), sess)
	assert.NoError(err)
	assert.Equal([]string{"您好"}, msgs)
}

func Test_Machine_OnMessage(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine(t)
	sess := NewSession("Guest_1")

	// matched case speaks the variable and re-greets
	replies, exited, err := m.OnMessage(context.Background(), sess, "余额")
	assert.NoError(err)
	assert.False(exited)
	assert.Equal([]string{"您的余额为0", "您好"}, replies)

	// unmatched input falls through to the default clause
	replies, exited, err = m.OnMessage(context.Background(), sess, "xyz")
	assert.NoError(err)
	assert.False(exited)
	assert.Equal([]string{"无法识别的输入", "您好"}, replies)

	// exit ends the conversation with no trailing greeting
	replies, exited, err = m.OnMessage(context.Background(), sess, "退出")
	assert.NoError(err)
	assert.True(exited)
	assert.Equal([]string{"再见"}, replies)
	assert.Equal(TerminalState, sess.StateIndex())
}

func Test_Machine_OnMessage_verifiedGate(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine(t)

	// a guest cannot enter the verified state
	guest := NewSession("Guest_1")
	_, _, err := m.OnMessage(context.Background(), guest, "存款")
	assert.ErrorIs(err, ErrLoginRequired)
	assert.Equal(0, guest.StateIndex())

	// a logged-in session can
	user := NewSession("alice")
	user.SetLoggedIn(true)
	replies, exited, err := m.OnMessage(context.Background(), user, "存款")
	assert.NoError(err)
	assert.False(exited)
	assert.Equal([]string{"请输入存款金额"}, replies)
	assert.Equal(1, user.StateIndex())
}

func Test_Machine_OnMessage_updateFromInput(t *testing.T) {
	assert := assert.New(t)
	m, fs := newTestMachine(t)

	sess := NewSession("alice")
	sess.SetLoggedIn(true)

	_, _, err := m.OnMessage(context.Background(), sess, "存款")
	if !assert.NoError(err) {
		return
	}

	replies, exited, err := m.OnMessage(context.Background(), sess, "12.5")
	assert.NoError(err)
	assert.False(exited)
	assert.Equal([]string{"已存入12.5", "您好"}, replies)
	assert.Equal(script.RealValue(12.5), fs.vars["balance"])

	// non-numeric input stays in the deposit state
	replies, _, err = m.OnMessage(context.Background(), sess, "abc")
	assert.NoError(err)
	assert.Equal("请输入数字", replies[0])
	assert.Equal(1, sess.StateIndex())
}

func Test_Machine_OnTimeout(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine(t)

	sess := NewSession("alice")
	sess.SetLoggedIn(true)
	_, _, err := m.OnMessage(context.Background(), sess, "存款")
	if !assert.NoError(err) {
		return
	}

	// below every threshold nothing fires
	replies, exited, moved, err := m.OnTimeout(context.Background(), sess, 30)
	assert.NoError(err)
	assert.False(exited)
	assert.False(moved)
	assert.Empty(replies)

	// crossing 60 fires the first clause, transitions, and re-greets; the
	// 120 clause is not reached because the state changed
	replies, exited, moved, err = m.OnTimeout(context.Background(), sess, 130)
	assert.NoError(err)
	assert.False(exited)
	assert.True(moved)
	assert.Equal([]string{"即将返回主菜单", "您好"}, replies)
	assert.Equal(0, sess.StateIndex())
}

func Test_Machine_OnTimeout_thresholdWindow(t *testing.T) {
	assert := assert.New(t)
	m, _ := newTestMachine(t)

	sess := NewSession("alice")
	sess.SetLoggedIn(true)
	_, _, err := m.OnMessage(context.Background(), sess, "存款")
	if !assert.NoError(err) {
		return
	}

	// a threshold already reported as crossed does not fire again
	_, _, _, err = m.OnTimeout(context.Background(), sess, 70)
	assert.NoError(err)
	assert.Equal(0, sess.StateIndex())

	sess.setStateIndex(1)
	replies, exited, moved, err := m.OnTimeout(context.Background(), sess, 90)
	assert.NoError(err)
	assert.False(exited)
	assert.False(moved)
	assert.Empty(replies)

	// crossing the later threshold exits
	replies, exited, moved, err = m.OnTimeout(context.Background(), sess, 125)
	assert.NoError(err)
	assert.True(exited)
	assert.True(moved)
	assert.Empty(replies)
	assert.Equal(TerminalState, sess.StateIndex())
}
