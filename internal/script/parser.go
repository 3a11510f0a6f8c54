package script

import (
	"fmt"
	"os"
)

// ParseFiles parses every named script source file and returns the
// concatenation of their top-level definitions, in order. Empty file names
// are skipped. Any parse problem is returned as a *GrammarError.
func ParseFiles(files []string) (Program, error) {
	var prog Program
	for _, file := range files {
		if len(file) == 0 {
			continue
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read script %s: %w", file, err)
		}
		fileProg, err := Parse(string(data))
		if err != nil {
			return nil, err
		}
		prog = append(prog, fileProg...)
	}
	return prog, nil
}

// Parse parses a single script source text.
func Parse(src string) (Program, error) {
	toks, err := lexText(src)
	if err != nil {
		return nil, err
	}
	p := &parser{toks: toks}
	return p.parseProgram()
}

type parser struct {
	toks []lexeme
	pos  int
}

func (p *parser) peek() lexeme {
	return p.toks[p.pos]
}

func (p *parser) next() lexeme {
	lx := p.toks[p.pos]
	if lx.typ != tokEOF {
		p.pos++
	}
	return lx
}

// peekKeyword reports whether the next token is a bare identifier with the
// given spelling.
func (p *parser) peekKeyword(kw string) bool {
	lx := p.peek()
	return lx.typ == tokIdent && lx.text == kw
}

func (p *parser) parseProgram() (Program, error) {
	var prog Program
	for {
		lx := p.peek()
		if lx.typ == tokEOF {
			return prog, nil
		}
		if lx.typ != tokIdent {
			return nil, grammarErrorf(lx, "expected a State or Variable definition, found %q", lx.raw())
		}
		switch lx.text {
		case "Variable":
			def, err := p.parseVariableDef()
			if err != nil {
				return nil, err
			}
			prog = append(prog, def)
		case "State":
			def, err := p.parseStateDef()
			if err != nil {
				return nil, err
			}
			prog = append(prog, def)
		default:
			return nil, grammarErrorf(lx, "expected a State or Variable definition, found %q", lx.raw())
		}
	}
}

func (p *parser) parseVariableDef() (Definition, error) {
	p.next() // Variable keyword

	var def Definition
	for p.peek().typ == tokVariable {
		clause, err := p.parseVarClause()
		if err != nil {
			return def, err
		}
		def.Vars = append(def.Vars, clause)
	}
	if len(def.Vars) == 0 {
		return def, grammarErrorf(p.peek(), "Variable definition requires at least one variable clause")
	}
	return def, nil
}

func (p *parser) parseVarClause() (VarClause, error) {
	nameTok := p.next()
	clause := VarClause{Name: nameTok.text}

	typeTok := p.next()
	if typeTok.typ != tokIdent {
		return clause, grammarErrorf(typeTok, "expected Int, Real, or Text after $%s", clause.Name)
	}
	valTok := p.next()
	switch typeTok.text {
	case "Int":
		clause.Type = Int
		if valTok.typ != tokInt {
			return clause, grammarErrorf(valTok, "$%s is Int but its default %q is not an integer constant", clause.Name, valTok.raw())
		}
		clause.Default = IntValue(valTok.iVal)
	case "Real":
		clause.Type = Real
		if valTok.typ != tokInt && valTok.typ != tokReal {
			return clause, grammarErrorf(valTok, "$%s is Real but its default %q is not a real constant", clause.Name, valTok.raw())
		}
		clause.Default = RealValue(valTok.fVal)
	case "Text":
		clause.Type = Text
		if valTok.typ != tokString {
			return clause, grammarErrorf(valTok, "$%s is Text but its default %q is not a string constant", clause.Name, valTok.raw())
		}
		clause.Default = TextValue(valTok.text)
	default:
		return clause, grammarErrorf(typeTok, "expected Int, Real, or Text after $%s, found %q", clause.Name, typeTok.raw())
	}

	clause.Toks = []string{nameTok.raw(), typeTok.raw(), valTok.raw()}
	return clause, nil
}

func (p *parser) parseStateDef() (Definition, error) {
	kwTok := p.next() // State keyword

	nameTok := p.next()
	if nameTok.typ != tokIdent {
		return Definition{}, grammarErrorf(nameTok, "expected a state name after State, found %q", nameTok.raw())
	}

	st := &StateDef{Name: nameTok.text, Line: kwTok.line}

	if p.peekKeyword("Verified") {
		p.next()
		st.Verified = true
	}

	for p.peekKeyword("Speak") {
		speak, err := p.parseSpeak(false)
		if err != nil {
			return Definition{}, err
		}
		st.Enter = append(st.Enter, speak)
	}

	for p.peekKeyword("Case") {
		c, err := p.parseCase()
		if err != nil {
			return Definition{}, err
		}
		st.Cases = append(st.Cases, c)
	}

	if !p.peekKeyword("Default") {
		return Definition{}, grammarErrorf(p.peek(), "state %s is missing its Default clause", st.Name)
	}
	p.next()
	defActions, err := p.parseClauseActions(true)
	if err != nil {
		return Definition{}, err
	}
	st.Default = defActions

	for p.peekKeyword("Timeout") {
		p.next()
		secTok := p.next()
		if secTok.typ != tokInt {
			return Definition{}, grammarErrorf(secTok, "expected an integer threshold after Timeout, found %q", secTok.raw())
		}
		actions, err := p.parseClauseActions(false)
		if err != nil {
			return Definition{}, err
		}
		st.Timeouts = append(st.Timeouts, TimeoutNode{Seconds: int(secTok.iVal), Actions: actions})
	}

	return Definition{State: st}, nil
}

func (p *parser) parseCase() (CaseNode, error) {
	p.next() // Case keyword

	var c CaseNode
	lx := p.peek()
	switch {
	case lx.typ == tokString:
		p.next()
		c.Cond = CondNode{Kind: CondEqual, Str: lx.text}
	case lx.typ == tokIdent && lx.text == "Length":
		p.next()
		opTok := p.next()
		if opTok.typ != tokOp {
			return c, grammarErrorf(opTok, "expected a comparison operator after Length, found %q", opTok.raw())
		}
		nTok := p.next()
		if nTok.typ != tokInt {
			return c, grammarErrorf(nTok, "expected an integer constant after Length %s, found %q", opTok.text, nTok.raw())
		}
		c.Cond = CondNode{Kind: CondLength, Op: opTok.text, N: int(nTok.iVal)}
	case lx.typ == tokIdent && lx.text == "Contain":
		p.next()
		sTok := p.next()
		if sTok.typ != tokString {
			return c, grammarErrorf(sTok, "expected a string constant after Contain, found %q", sTok.raw())
		}
		c.Cond = CondNode{Kind: CondContain, Str: sTok.text}
	case lx.typ == tokIdent && lx.text == "Type":
		p.next()
		tTok := p.next()
		if tTok.typ != tokIdent || (tTok.text != "Int" && tTok.text != "Real") {
			return c, grammarErrorf(tTok, "expected Int or Real after Type, found %q", tTok.raw())
		}
		if tTok.text == "Int" {
			c.Cond = CondNode{Kind: CondType, VarType: Int}
		} else {
			c.Cond = CondNode{Kind: CondType, VarType: Real}
		}
	default:
		return c, grammarErrorf(lx, "expected a condition after Case, found %q", lx.raw())
	}

	actions, err := p.parseClauseActions(true)
	if err != nil {
		return c, err
	}
	c.Actions = actions
	return c, nil
}

// parseClauseActions parses the action list of a Case, Default, or Timeout
// clause: zero or more Update/Speak actions followed by an optional Exit or
// Goto terminator. allowCopy controls whether Copy may appear in Speak
// contents; it is false in Timeout clauses, which have no input to echo.
func (p *parser) parseClauseActions(allowCopy bool) ([]ActionNode, error) {
	var actions []ActionNode
	for {
		lx := p.peek()
		if lx.typ != tokIdent {
			return actions, nil
		}
		switch lx.text {
		case "Update":
			act, err := p.parseUpdate()
			if err != nil {
				return nil, err
			}
			actions = append(actions, act)
		case "Speak":
			act, err := p.parseSpeak(allowCopy)
			if err != nil {
				return nil, err
			}
			actions = append(actions, act)
		case "Exit":
			p.next()
			actions = append(actions, ActionNode{Kind: ActExit, Toks: []string{"Exit"}})
			return actions, nil
		case "Goto":
			p.next()
			targetTok := p.next()
			if targetTok.typ != tokIdent {
				return nil, grammarErrorf(targetTok, "expected a state name after Goto, found %q", targetTok.raw())
			}
			actions = append(actions, ActionNode{
				Kind:   ActGoto,
				Target: targetTok.text,
				Toks:   []string{"Goto", targetTok.text},
			})
			return actions, nil
		default:
			return actions, nil
		}
	}
}

func (p *parser) parseUpdate() (ActionNode, error) {
	p.next() // Update keyword

	act := ActionNode{Kind: ActUpdate}

	varTok := p.next()
	if varTok.typ != tokVariable {
		return act, grammarErrorf(varTok, "expected a variable after Update, found %q", varTok.raw())
	}
	act.Var = varTok.text

	opTok := p.next()
	if opTok.typ != tokIdent {
		return act, grammarErrorf(opTok, "expected Add, Sub, or Set after Update %s, found %q", varTok.raw(), opTok.raw())
	}
	switch opTok.text {
	case "Add":
		act.Op = OpAdd
	case "Sub":
		act.Op = OpSub
	case "Set":
		act.Op = OpSet
	default:
		return act, grammarErrorf(opTok, "expected Add, Sub, or Set after Update %s, found %q", varTok.raw(), opTok.raw())
	}

	valTok := p.next()
	switch {
	case valTok.typ == tokIdent && valTok.text == "Copy":
		act.Copy = true
	case valTok.typ == tokInt || valTok.typ == tokReal:
		act.Lit = RealValue(valTok.fVal)
	case valTok.typ == tokString && act.Op == OpSet:
		act.Lit = TextValue(valTok.text)
	default:
		return act, grammarErrorf(valTok, "invalid Update value %q", valTok.raw())
	}

	act.Toks = []string{"Update", varTok.raw(), opTok.text, valTok.raw()}
	return act, nil
}

// parseSpeak parses a Speak action. allowCopy controls whether the Copy
// marker is legal in the content list; it is false for state-enter speaks and
// for speaks in Timeout clauses.
func (p *parser) parseSpeak(allowCopy bool) (ActionNode, error) {
	p.next() // Speak keyword

	act := ActionNode{Kind: ActSpeak, Toks: []string{"Speak"}}

	for {
		lx := p.next()
		switch {
		case lx.typ == tokVariable:
			act.Parts = append(act.Parts, SpeakPart{Kind: PartVar, Var: lx.text})
		case lx.typ == tokString:
			act.Parts = append(act.Parts, SpeakPart{Kind: PartLit, Text: lx.text})
		case lx.typ == tokIdent && lx.text == "Copy":
			if !allowCopy {
				return act, grammarErrorf(lx, "Copy is not allowed in this Speak: there is no user input to echo here")
			}
			act.Parts = append(act.Parts, SpeakPart{Kind: PartCopy})
		default:
			return act, grammarErrorf(lx, "expected a Speak content, found %q", lx.raw())
		}
		act.Toks = append(act.Toks, lx.raw())

		if p.peek().typ != tokPlus {
			return act, nil
		}
		p.next()
		act.Toks = append(act.Toks, "+")
	}
}
