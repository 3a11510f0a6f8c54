package script

// Program is the parse tree of one or more script source files: their
// top-level definitions concatenated in source order.
type Program []Definition

// Definition is a single top-level definition. Exactly one of Vars and State
// is set.
type Definition struct {
	// Vars holds the clauses of a Variable definition.
	Vars []VarClause

	// State holds a State definition.
	State *StateDef
}

// VarClause declares one variable with its type and default value.
type VarClause struct {
	Name    string
	Type    VarType
	Default Value

	// Toks is the clause's source tokens, for error context.
	Toks []string
}

// StateDef is one State definition with its clauses in source order.
type StateDef struct {
	Name     string
	Verified bool

	// Enter is the sequence of Speak actions run when the state is entered.
	// The grammar guarantees these contain no Copy parts.
	Enter []ActionNode

	Cases   []CaseNode
	Default []ActionNode

	Timeouts []TimeoutNode

	Line int
}

// CaseNode is one Case clause: a condition and the actions taken when it is
// the first condition to match the input.
type CaseNode struct {
	Cond    CondNode
	Actions []ActionNode
}

// TimeoutNode is one Timeout clause, keyed on an idle-seconds threshold.
type TimeoutNode struct {
	Seconds int
	Actions []ActionNode
}

// CondKind discriminates CondNode variants.
type CondKind int

const (
	CondLength CondKind = iota
	CondContain
	CondType
	CondEqual
)

// CondNode is a parsed condition. Which fields are meaningful depends on
// Kind: Length uses Op and N, Contain and Equal use Str, Type uses VarType.
type CondNode struct {
	Kind    CondKind
	Op      string
	N       int
	Str     string
	VarType VarType
}

// ActionKind discriminates ActionNode variants.
type ActionKind int

const (
	ActExit ActionKind = iota
	ActGoto
	ActUpdate
	ActSpeak
)

// UpdateOp is the operation of an Update action.
type UpdateOp int

const (
	OpAdd UpdateOp = iota
	OpSub
	OpSet
)

func (op UpdateOp) String() string {
	switch op {
	case OpAdd:
		return "Add"
	case OpSub:
		return "Sub"
	default:
		return "Set"
	}
}

// ActionNode is a parsed action. Which fields are meaningful depends on Kind:
// Goto uses Target, Update uses Var/Op/Copy/Lit, Speak uses Parts.
type ActionNode struct {
	Kind ActionKind

	Target string

	Var  string
	Op   UpdateOp
	Copy bool
	Lit  Value

	Parts []SpeakPart

	// Toks is the action's source tokens, for error context.
	Toks []string
}

// PartKind discriminates SpeakPart variants.
type PartKind int

const (
	PartLit PartKind = iota
	PartVar
	PartCopy
)

// SpeakPart is one '+'-joined element of a Speak action.
type SpeakPart struct {
	Kind PartKind

	// Text is the unquoted literal content when Kind is PartLit.
	Text string

	// Var is the variable name (without '$') when Kind is PartVar.
	Var string
}
