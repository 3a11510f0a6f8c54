package machine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dekarrin/tunatalk/internal/script"
)

// ErrLoginRequired is returned when a Goto targets a verified state but the
// session has not authenticated. The HTTP adapter surfaces it as a 401.
var ErrLoginRequired = errors.New("login is required to continue")

// VarStore is the persistence the interpreter needs to execute actions.
// server/dao implementations satisfy it.
type VarStore interface {
	// Read returns the current value of one variable of the named user's
	// row.
	Read(ctx context.Context, username, varName string) (script.Value, error)

	// Apply atomically transforms one variable of the named user's row. The
	// whole read-modify-write happens under the store's exclusive lock and
	// is committed before Apply returns.
	Apply(ctx context.Context, username, varName string, fn func(script.Value) (script.Value, error)) error
}

// Machine interprets a compiled state graph against sessions. It is safe for
// concurrent use; all per-session mutable state lives in the Session and all
// shared mutable state lives behind the store.
type Machine struct {
	graph  *StateGraph
	schema *Schema
	store  VarStore
}

// NewMachine binds a compiled graph and its schema to a variable store.
func NewMachine(graph *StateGraph, schema *Schema, store VarStore) *Machine {
	return &Machine{graph: graph, schema: schema, store: store}
}

// Hello runs the enter speaks of the session's current state and returns the
// produced replies.
func (m *Machine) Hello(ctx context.Context, sess *Session) ([]string, error) {
	idx := sess.StateIndex()
	if idx < 0 || idx >= m.graph.States() {
		return nil, nil
	}

	var replies []string
	err := m.execAll(ctx, sess, m.graph.State(idx).Enter, &replies, "")
	return replies, err
}

// OnMessage feeds one client message to the session's current state. The
// first case clause whose condition matches consumes the message; if none
// match, the default clause runs. If the resulting state is non-terminal its
// enter speaks are appended to the replies. exited reports whether the
// conversation ended; the caller must evict the session when it did.
func (m *Machine) OnMessage(ctx context.Context, sess *Session, msg string) (replies []string, exited bool, err error) {
	idx := sess.StateIndex()
	if idx < 0 || idx >= m.graph.States() {
		return nil, true, nil
	}
	st := m.graph.State(idx)

	var actions []Action = st.Default
	for _, c := range st.Cases {
		if c.Cond.Check(msg) {
			actions = c.Actions
			break
		}
	}

	if err := m.execAll(ctx, sess, actions, &replies, msg); err != nil {
		return replies, sess.StateIndex() == TerminalState, err
	}

	if sess.StateIndex() != TerminalState {
		greeting, err := m.Hello(ctx, sess)
		if err != nil {
			return replies, false, err
		}
		replies = append(replies, greeting...)
	}

	return replies, sess.StateIndex() == TerminalState, nil
}

// OnTimeout feeds the client's reported idle seconds to the session's
// current state. Every timeout clause whose threshold was crossed since the
// last report fires in insertion order, stopping after the first clause that
// produces a state transition; the new state's enter speaks are appended
// when it is non-terminal. moved reports whether the state changed.
func (m *Machine) OnTimeout(ctx context.Context, sess *Session, nowIdleSeconds int) (replies []string, exited bool, moved bool, err error) {
	last := sess.swapIdleSeconds(nowIdleSeconds)

	oldState := sess.StateIndex()
	if oldState < 0 || oldState >= m.graph.States() {
		return nil, true, false, nil
	}
	st := m.graph.State(oldState)

	for _, tc := range st.Timeouts {
		if !(last < tc.Seconds && tc.Seconds <= nowIdleSeconds) {
			continue
		}
		if err := m.execAll(ctx, sess, tc.Actions, &replies, ""); err != nil {
			return replies, sess.StateIndex() == TerminalState, oldState != sess.StateIndex(), err
		}
		if sess.StateIndex() != oldState {
			if sess.StateIndex() != TerminalState {
				greeting, err := m.Hello(ctx, sess)
				if err != nil {
					return replies, false, true, err
				}
				replies = append(replies, greeting...)
			}
			break
		}
	}

	cur := sess.StateIndex()
	return replies, cur == TerminalState, oldState != cur, nil
}

func (m *Machine) execAll(ctx context.Context, sess *Session, actions []Action, replies *[]string, input string) error {
	for _, a := range actions {
		if err := m.execAction(ctx, sess, a, replies, input); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) execAction(ctx context.Context, sess *Session, a Action, replies *[]string, input string) error {
	switch a.Kind {
	case ActExit:
		sess.setStateIndex(TerminalState)
		return nil

	case ActGoto:
		if a.TargetVerified && !sess.LoggedIn() {
			return ErrLoginRequired
		}
		sess.setStateIndex(a.Target)
		return nil

	case ActUpdate:
		return m.execUpdate(ctx, sess, a, input)

	default: // Speak
		var sb strings.Builder
		for _, part := range a.Parts {
			switch part.Kind {
			case script.PartLit:
				sb.WriteString(part.Text)
			case script.PartVar:
				v, err := m.store.Read(ctx, sess.Username(), part.Var)
				if err != nil {
					return err
				}
				sb.WriteString(v.String())
			case script.PartCopy:
				sb.WriteString(input)
			}
		}
		*replies = append(*replies, sb.String())
		return nil
	}
}

func (m *Machine) execUpdate(ctx context.Context, sess *Session, a Action, input string) error {
	vt, ok := m.schema.Type(a.Var)
	if !ok {
		return fmt.Errorf("unknown variable $%s", a.Var)
	}

	operand := a.Lit
	if a.Copy {
		var err error
		operand, err = materialize(vt, input)
		if err != nil {
			return err
		}
	}

	return m.store.Apply(ctx, sess.Username(), a.Var, func(cur script.Value) (script.Value, error) {
		switch vt {
		case script.Int:
			switch a.Op {
			case script.OpAdd:
				return script.IntValue(cur.I + operand.I), nil
			case script.OpSub:
				return script.IntValue(cur.I - operand.I), nil
			default:
				return script.IntValue(operand.I), nil
			}
		case script.Real:
			o := operand.R
			if operand.Type == script.Int {
				o = float64(operand.I)
			}
			switch a.Op {
			case script.OpAdd:
				return script.RealValue(cur.R + o), nil
			case script.OpSub:
				return script.RealValue(cur.R - o), nil
			default:
				return script.RealValue(o), nil
			}
		default:
			return script.TextValue(operand.S), nil
		}
	})
}

// materialize converts the request input to the variable's declared type,
// for Update values given as Copy.
func materialize(vt script.VarType, input string) (script.Value, error) {
	switch vt {
	case script.Int:
		n, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
		if err != nil {
			return script.Value{}, fmt.Errorf("input %q cannot update an Int variable: %w", input, err)
		}
		return script.IntValue(n), nil
	case script.Real:
		f, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
		if err != nil {
			return script.Value{}, fmt.Errorf("input %q cannot update a Real variable: %w", input, err)
		}
		return script.RealValue(f), nil
	default:
		return script.TextValue(input), nil
	}
}
