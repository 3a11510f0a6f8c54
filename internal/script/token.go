package script

import "fmt"

type tokenType int

const (
	tokEOF tokenType = iota

	// a bare word of letters; keywords are idents matched by value during
	// parsing so that state names may reuse any [A-Za-z]+ spelling.
	tokIdent

	// a $-prefixed variable reference; text holds the name without the '$'.
	tokVariable

	// a double-quoted string; text holds the unquoted content.
	tokString

	tokInt
	tokReal

	// one of < > <= >= =
	tokOp

	// the '+' joining speak contents
	tokPlus
)

func (tt tokenType) String() string {
	switch tt {
	case tokEOF:
		return "end of script"
	case tokIdent:
		return "identifier"
	case tokVariable:
		return "variable"
	case tokString:
		return "string constant"
	case tokInt:
		return "integer constant"
	case tokReal:
		return "real constant"
	case tokOp:
		return "comparison operator"
	case tokPlus:
		return "'+'"
	default:
		return fmt.Sprintf("tokenType(%d)", int(tt))
	}
}

// lexeme is one token of script source along with everything needed to report
// errors against it.
type lexeme struct {
	typ  tokenType
	text string

	iVal int64
	fVal float64

	line     int
	pos      int
	fullLine string
}

// raw gives the lexeme as it should appear in a GrammarError context list.
func (lx lexeme) raw() string {
	switch lx.typ {
	case tokVariable:
		return "$" + lx.text
	case tokString:
		return `"` + lx.text + `"`
	default:
		return lx.text
	}
}
