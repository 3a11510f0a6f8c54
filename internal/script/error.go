package script

import (
	"fmt"
	"strings"
)

// GrammarError is the error produced for any lexical, syntactic, or semantic
// problem found while loading a script. It is fatal to server startup.
//
// Context holds the offending tokens (or the offending source line for
// lexical errors) so that the operator can locate the problem in the script
// source.
type GrammarError struct {
	Msg     string
	Context []string

	// Line and Pos locate the error in the source, 1-indexed. Both are 0 for
	// errors raised after parsing, where only the token context is known.
	Line int
	Pos  int
}

func (e *GrammarError) Error() string {
	if e.Line == 0 {
		return fmt.Sprintf("grammar error: %s", e.Msg)
	}
	return fmt.Sprintf("grammar error: around line %d, char %d: %s", e.Line, e.Pos, e.Msg)
}

// FullMessage shows the context followed by the error message in the format
// the server prints at startup.
func (e *GrammarError) FullMessage() string {
	var sb strings.Builder
	if len(e.Context) > 0 {
		sb.WriteString(strings.Join(e.Context, " "))
		sb.WriteRune('\n')
	}
	sb.WriteString("GrammarError: ")
	sb.WriteString(e.Msg)
	return sb.String()
}

func grammarErrorf(lx lexeme, format string, a ...interface{}) *GrammarError {
	return &GrammarError{
		Msg:     fmt.Sprintf(format, a...),
		Context: []string{lx.fullLine},
		Line:    lx.line,
		Pos:     lx.pos,
	}
}
