package machine

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/dekarrin/tunatalk/internal/script"
)

// CondKind discriminates Condition variants.
type CondKind int

const (
	CondLength CondKind = iota
	CondContain
	CondType
	CondEqual
)

// Condition is a lowered case condition, checked against the raw input
// string of a request.
type Condition struct {
	Kind CondKind

	// Op and N are used by Length conditions.
	Op string
	N  int

	// Str is the needle of Contain conditions and the comparand of Equal
	// conditions, unquoted.
	Str string

	// VarType is Int or Real for Type conditions.
	VarType script.VarType
}

// Check reports whether the input satisfies the condition. Lengths are
// counted in characters, not bytes. Type Int accepts unsigned decimal digits
// only, so signed input never counts as Int. Contain is true when the input
// contains the literal as a substring. Equal compares with surrounding
// whitespace stripped from both sides.
func (c Condition) Check(input string) bool {
	switch c.Kind {
	case CondLength:
		n := utf8.RuneCountInString(input)
		switch c.Op {
		case "<":
			return n < c.N
		case ">":
			return n > c.N
		case "<=":
			return n <= c.N
		case ">=":
			return n >= c.N
		case "=":
			return n == c.N
		}
		return false
	case CondContain:
		return strings.Contains(input, c.Str)
	case CondType:
		if c.VarType == script.Int {
			return isDigits(input)
		}
		_, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
		return err == nil
	case CondEqual:
		return strings.TrimSpace(input) == strings.TrimSpace(c.Str)
	default:
		return false
	}
}

func (c Condition) String() string {
	switch c.Kind {
	case CondLength:
		return fmt.Sprintf("Length %s %d", c.Op, c.N)
	case CondContain:
		return fmt.Sprintf("Contain %q", c.Str)
	case CondType:
		return fmt.Sprintf("Type %s", c.VarType)
	default:
		return fmt.Sprintf("Equal %q", c.Str)
	}
}

func isDigits(s string) bool {
	if len(s) == 0 {
		return false
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// ActionKind discriminates Action variants.
type ActionKind int

const (
	ActExit ActionKind = iota
	ActGoto
	ActUpdate
	ActSpeak
)

// Action is one lowered IR action. Which fields are meaningful depends on
// Kind.
type Action struct {
	Kind ActionKind

	// Target is the resolved state index of a Goto; TargetVerified caches the
	// target's verified flag so entry can be gated without a graph lookup.
	Target         int
	TargetVerified bool

	// Update payload. When Copy is set the operand is materialized from the
	// request input at execution time; otherwise Lit is used.
	Var  string
	Op   script.UpdateOp
	Copy bool
	Lit  script.Value

	// Speak payload.
	Parts []script.SpeakPart
}

// CaseClause pairs a condition with the actions run when it is the first
// clause to match.
type CaseClause struct {
	Cond    Condition
	Actions []Action
}

// TimeoutClause holds the actions fired when the session's idle time crosses
// the Seconds threshold.
type TimeoutClause struct {
	Seconds int
	Actions []Action
}

// State is one node of the compiled state graph.
type State struct {
	Name     string
	Verified bool

	// Enter is run to greet the session whenever the state is entered.
	Enter []Action

	Cases   []CaseClause
	Default []Action

	// Timeouts preserves clause insertion order; a duplicate threshold
	// replaces the actions of the earlier entry in place.
	Timeouts []TimeoutClause
}

// StateGraph is the compiled script: an ordered list of states in which
// index 0 is always the Welcome state.
type StateGraph struct {
	states []State
}

// States returns the number of states in the graph.
func (g *StateGraph) States() int {
	return len(g.states)
}

// State returns the state at the given index.
func (g *StateGraph) State(i int) *State {
	return &g.states[i]
}

// Index returns the index of the named state, or -1.
func (g *StateGraph) Index(name string) int {
	for i := range g.states {
		if g.states[i].Name == name {
			return i
		}
	}
	return -1
}
