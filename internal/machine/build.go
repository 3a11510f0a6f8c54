package machine

import (
	"fmt"
	"math"

	"github.com/dekarrin/tunatalk/internal/script"
)

// welcomeState is the canonical entry state. It must exist, must not be
// Verified, and is always moved to index 0 of the compiled graph.
const welcomeState = "Welcome"

// copyContext is the runtime type that an enclosing clause's condition has
// established for the Copy marker. Clauses with no user input (state-enter
// speaks, timeouts) carry ctxNone, which forbids Copy in Update values.
type copyContext int

const (
	ctxNone copyContext = iota
	ctxText
	ctxInt
	ctxReal
)

// Build lowers a parsed program into the compiled state graph and the
// variable schema, performing all static checks. Any failure is returned as
// a *script.GrammarError carrying the offending tokens as context.
func Build(prog script.Program) (*StateGraph, *Schema, error) {
	schema := newSchema()
	var defs []*script.StateDef

	// pass 1: enumerate definitions to fix the schema and the state list.
	for _, def := range prog {
		if def.State == nil {
			for _, clause := range def.Vars {
				if _, exists := schema.Type(clause.Name); exists {
					return nil, nil, &script.GrammarError{
						Msg:     fmt.Sprintf("variable $%s is already defined", clause.Name),
						Context: clause.Toks,
					}
				}
				schema.add(clause.Name, clause.Type, clause.Default)
			}
			continue
		}

		for _, existing := range defs {
			if existing.Name == def.State.Name {
				return nil, nil, &script.GrammarError{
					Msg:     fmt.Sprintf("state %s is already defined", def.State.Name),
					Context: []string{"State", def.State.Name},
				}
			}
		}
		defs = append(defs, def.State)
	}

	welcomeIdx := -1
	for i, st := range defs {
		if st.Name == welcomeState {
			welcomeIdx = i
			break
		}
	}
	if welcomeIdx == -1 {
		return nil, nil, &script.GrammarError{Msg: "there is no Welcome state"}
	}
	if defs[welcomeIdx].Verified {
		return nil, nil, &script.GrammarError{
			Msg:     "the Welcome state must not be Verified",
			Context: []string{"State", welcomeState, "Verified"},
		}
	}

	// canonicalize: Welcome moves to index 0, whole definition included, so
	// that clause lowering below stays aligned with the final indices. The
	// displaced state keeps its own verified flag.
	defs[0], defs[welcomeIdx] = defs[welcomeIdx], defs[0]

	b := &builder{schema: schema, defs: defs}

	// pass 2: lower every state's clauses into IR action lists.
	graph := &StateGraph{states: make([]State, len(defs))}
	for i, def := range defs {
		st, err := b.lowerState(i, def)
		if err != nil {
			return nil, nil, err
		}
		graph.states[i] = st
	}

	return graph, schema, nil
}

type builder struct {
	schema *Schema
	defs   []*script.StateDef
}

func (b *builder) lowerState(idx int, def *script.StateDef) (State, error) {
	st := State{Name: def.Name, Verified: def.Verified}

	var err error
	st.Enter, err = b.lowerActions(def.Enter, idx, ctxNone)
	if err != nil {
		return st, err
	}

	for _, c := range def.Cases {
		cond := lowerCondition(c.Cond)

		ctx := ctxText
		if cond.Kind == CondType {
			if cond.VarType == script.Int {
				ctx = ctxInt
			} else {
				ctx = ctxReal
			}
		}

		actions, err := b.lowerActions(c.Actions, idx, ctx)
		if err != nil {
			return st, err
		}
		st.Cases = append(st.Cases, CaseClause{Cond: cond, Actions: actions})
	}

	st.Default, err = b.lowerActions(def.Default, idx, ctxText)
	if err != nil {
		return st, err
	}

	for _, tn := range def.Timeouts {
		actions, err := b.lowerActions(tn.Actions, idx, ctxNone)
		if err != nil {
			return st, err
		}
		replaced := false
		for i := range st.Timeouts {
			if st.Timeouts[i].Seconds == tn.Seconds {
				st.Timeouts[i].Actions = actions
				replaced = true
				break
			}
		}
		if !replaced {
			st.Timeouts = append(st.Timeouts, TimeoutClause{Seconds: tn.Seconds, Actions: actions})
		}
	}

	return st, nil
}

func lowerCondition(cn script.CondNode) Condition {
	switch cn.Kind {
	case script.CondLength:
		return Condition{Kind: CondLength, Op: cn.Op, N: cn.N}
	case script.CondContain:
		return Condition{Kind: CondContain, Str: cn.Str}
	case script.CondType:
		return Condition{Kind: CondType, VarType: cn.VarType}
	default:
		return Condition{Kind: CondEqual, Str: cn.Str}
	}
}

func (b *builder) lowerActions(nodes []script.ActionNode, stateIdx int, ctx copyContext) ([]Action, error) {
	var actions []Action
	for _, node := range nodes {
		act, err := b.lowerAction(node, stateIdx, ctx)
		if err != nil {
			return nil, err
		}
		actions = append(actions, act)
	}
	return actions, nil
}

func (b *builder) lowerAction(node script.ActionNode, stateIdx int, ctx copyContext) (Action, error) {
	switch node.Kind {
	case script.ActExit:
		return Action{Kind: ActExit}, nil

	case script.ActGoto:
		for i, def := range b.defs {
			if def.Name == node.Target {
				return Action{Kind: ActGoto, Target: i, TargetVerified: def.Verified}, nil
			}
		}
		return Action{}, &script.GrammarError{
			Msg:     fmt.Sprintf("the Goto state %s does not exist", node.Target),
			Context: node.Toks,
		}

	case script.ActUpdate:
		return b.lowerUpdate(node, stateIdx, ctx)

	default: // Speak
		for _, part := range node.Parts {
			if part.Kind == script.PartVar {
				if _, ok := b.schema.Type(part.Var); !ok {
					return Action{}, &script.GrammarError{
						Msg:     fmt.Sprintf("the variable $%s does not exist", part.Var),
						Context: node.Toks,
					}
				}
			}
		}
		return Action{Kind: ActSpeak, Parts: node.Parts}, nil
	}
}

func (b *builder) lowerUpdate(node script.ActionNode, stateIdx int, ctx copyContext) (Action, error) {
	if !b.defs[stateIdx].Verified {
		return Action{}, &script.GrammarError{
			Msg:     "Update is not allowed in a non-verified state",
			Context: node.Toks,
		}
	}

	vt, ok := b.schema.Type(node.Var)
	if !ok {
		return Action{}, &script.GrammarError{
			Msg:     fmt.Sprintf("the variable $%s does not exist", node.Var),
			Context: node.Toks,
		}
	}

	act := Action{Kind: ActUpdate, Var: node.Var, Op: node.Op, Copy: node.Copy}

	switch vt {
	case script.Int:
		if node.Copy {
			if ctx != ctxInt {
				return Action{}, copyTypeErr(node)
			}
		} else {
			if node.Lit.Type != script.Real || node.Lit.R != math.Trunc(node.Lit.R) {
				return Action{}, valueTypeErr(node)
			}
			act.Lit = script.IntValue(int64(node.Lit.R))
		}
	case script.Real:
		if node.Copy {
			if ctx != ctxInt && ctx != ctxReal {
				return Action{}, copyTypeErr(node)
			}
		} else {
			if node.Lit.Type != script.Real {
				return Action{}, valueTypeErr(node)
			}
			act.Lit = node.Lit
		}
	default: // Text
		if node.Op != script.OpSet {
			return Action{}, &script.GrammarError{
				Msg:     "Update of a Text variable only allows the Set operation",
				Context: node.Toks,
			}
		}
		if node.Copy {
			if ctx == ctxNone {
				return Action{}, copyTypeErr(node)
			}
		} else {
			if node.Lit.Type != script.Text {
				return Action{}, valueTypeErr(node)
			}
			act.Lit = node.Lit
		}
	}

	return act, nil
}

func copyTypeErr(node script.ActionNode) error {
	return &script.GrammarError{
		Msg:     "the enclosing condition does not establish a compatible type for Update Copy",
		Context: node.Toks,
	}
}

func valueTypeErr(node script.ActionNode) error {
	return &script.GrammarError{
		Msg:     "the Update value differs from the variable's type",
		Context: node.Toks,
	}
}
