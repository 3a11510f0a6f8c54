package script

import (
	"strconv"
	"strings"
)

// lexText tokenizes a single source file's contents. The returned stream
// always ends with a tokEOF lexeme.
func lexText(s string) ([]lexeme, error) {
	sRunes := []rune(s)

	var tokens []lexeme

	curLine := 1
	curPos := 1
	currentFullLine := readFullLine(sRunes)

	advance := func(ch rune) {
		curPos++
		if ch == '\n' {
			curLine++
			curPos = 1
		}
	}

	for i := 0; i < len(sRunes); i++ {
		ch := sRunes[i]

		if ch == '\n' {
			currentFullLine = readFullLine(sRunes[i+1:])
		}

		switch {
		case isSpace(ch):
			advance(ch)

		case ch == '"':
			tok := lexeme{typ: tokString, line: curLine, pos: curPos, fullLine: currentFullLine}
			var sb strings.Builder
			advance(ch)
			i++
			closed := false
			for ; i < len(sRunes); i++ {
				c := sRunes[i]
				if c == '\n' {
					break
				}
				if c == '\\' && i+1 < len(sRunes) && (sRunes[i+1] == '"' || sRunes[i+1] == '\\') {
					sb.WriteRune(sRunes[i+1])
					advance(c)
					advance(sRunes[i+1])
					i++
					continue
				}
				if c == '"' {
					advance(c)
					closed = true
					break
				}
				sb.WriteRune(c)
				advance(c)
			}
			if !closed {
				return nil, &GrammarError{
					Msg:     "unterminated string constant",
					Context: []string{tok.fullLine},
					Line:    tok.line,
					Pos:     tok.pos,
				}
			}
			tok.text = sb.String()
			tokens = append(tokens, tok)

		case ch == '$':
			tok := lexeme{typ: tokVariable, line: curLine, pos: curPos, fullLine: currentFullLine}
			advance(ch)
			i++
			if i >= len(sRunes) || !isVarStart(sRunes[i]) {
				return nil, &GrammarError{
					Msg:     "'$' must be followed by a variable name",
					Context: []string{tok.fullLine},
					Line:    tok.line,
					Pos:     tok.pos,
				}
			}
			var sb strings.Builder
			for ; i < len(sRunes) && isVarChar(sRunes[i]); i++ {
				sb.WriteRune(sRunes[i])
				advance(sRunes[i])
			}
			i--
			tok.text = sb.String()
			tokens = append(tokens, tok)

		case isLetter(ch):
			tok := lexeme{typ: tokIdent, line: curLine, pos: curPos, fullLine: currentFullLine}
			var sb strings.Builder
			for ; i < len(sRunes) && isLetter(sRunes[i]); i++ {
				sb.WriteRune(sRunes[i])
				advance(sRunes[i])
			}
			i--
			tok.text = sb.String()
			tokens = append(tokens, tok)

		case isDigit(ch) || ch == '.' || ((ch == '+' || ch == '-') && i+1 < len(sRunes) && (isDigit(sRunes[i+1]) || sRunes[i+1] == '.')):
			tok := lexeme{line: curLine, pos: curPos, fullLine: currentFullLine}
			var sb strings.Builder
			real := false
			if ch == '+' || ch == '-' {
				sb.WriteRune(ch)
				advance(ch)
				i++
			}
			for ; i < len(sRunes); i++ {
				c := sRunes[i]
				if isDigit(c) {
					sb.WriteRune(c)
				} else if c == '.' && !real {
					real = true
					sb.WriteRune(c)
				} else if (c == 'e' || c == 'E') && i+1 < len(sRunes) && (isDigit(sRunes[i+1]) || sRunes[i+1] == '+' || sRunes[i+1] == '-') {
					real = true
					sb.WriteRune(c)
					advance(c)
					i++
					sb.WriteRune(sRunes[i])
					c = sRunes[i]
				} else {
					break
				}
				advance(c)
			}
			i--
			tok.text = sb.String()
			if real {
				f, err := strconv.ParseFloat(tok.text, 64)
				if err != nil {
					return nil, grammarErrorf(tok, "malformed real constant %q", tok.text)
				}
				tok.typ = tokReal
				tok.fVal = f
			} else {
				n, err := strconv.ParseInt(tok.text, 10, 64)
				if err != nil {
					return nil, grammarErrorf(tok, "malformed integer constant %q", tok.text)
				}
				tok.typ = tokInt
				tok.iVal = n
				tok.fVal = float64(n)
			}
			tokens = append(tokens, tok)

		case ch == '<' || ch == '>':
			tok := lexeme{typ: tokOp, text: string(ch), line: curLine, pos: curPos, fullLine: currentFullLine}
			advance(ch)
			if i+1 < len(sRunes) && sRunes[i+1] == '=' {
				tok.text += "="
				advance('=')
				i++
			}
			tokens = append(tokens, tok)

		case ch == '=':
			tokens = append(tokens, lexeme{typ: tokOp, text: "=", line: curLine, pos: curPos, fullLine: currentFullLine})
			advance(ch)

		case ch == '+':
			tokens = append(tokens, lexeme{typ: tokPlus, text: "+", line: curLine, pos: curPos, fullLine: currentFullLine})
			advance(ch)

		default:
			return nil, &GrammarError{
				Msg:     "unexpected character " + strconv.QuoteRune(ch),
				Context: []string{currentFullLine},
				Line:    curLine,
				Pos:     curPos,
			}
		}
	}

	tokens = append(tokens, lexeme{typ: tokEOF, line: curLine, pos: curPos, fullLine: currentFullLine})
	return tokens, nil
}

func readFullLine(sRunes []rune) string {
	var lineBuilder strings.Builder
	for i := 0; i < len(sRunes) && sRunes[i] != '\n'; i++ {
		lineBuilder.WriteRune(sRunes[i])
	}
	return lineBuilder.String()
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n'
}

func isLetter(ch rune) bool {
	return ('A' <= ch && ch <= 'Z') || ('a' <= ch && ch <= 'z')
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9'
}

func isVarStart(ch rune) bool {
	return isLetter(ch) || ch == '_'
}

func isVarChar(ch rune) bool {
	return isVarStart(ch) || isDigit(ch)
}
