// Package script contains the front-end for the TunaTalk dialog scripting
// language. It tokenizes and parses one or more script source files into a
// parse tree that the machine package lowers into an executable state graph.
//
// The language describes finite-state conversations. A script is a sequence
// of Variable definitions and State definitions; each State carries greeting
// Speak actions, Case clauses matched against user input, a mandatory Default
// clause, and Timeout clauses keyed on idle seconds.
package script

import "strconv"

// VarType is the declared type of a script variable.
type VarType int

const (
	Int VarType = iota
	Real
	Text
)

func (vt VarType) String() string {
	switch vt {
	case Int:
		return "Int"
	case Real:
		return "Real"
	case Text:
		return "Text"
	default:
		return "VarType(" + strconv.Itoa(int(vt)) + ")"
	}
}

// SQLType gives the SQL column type used to persist a variable of this type.
func (vt VarType) SQLType() string {
	switch vt {
	case Int:
		return "INT"
	case Real:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Value is a typed scalar value of a script variable. Exactly one of the
// payload fields is meaningful, selected by Type.
type Value struct {
	Type VarType
	I    int64
	R    float64
	S    string
}

// IntValue returns a Value holding an Int.
func IntValue(i int64) Value {
	return Value{Type: Int, I: i}
}

// RealValue returns a Value holding a Real.
func RealValue(r float64) Value {
	return Value{Type: Real, R: r}
}

// TextValue returns a Value holding Text.
func TextValue(s string) Value {
	return Value{Type: Text, S: s}
}

// String renders the value the way Speak actions surface it to the user.
func (v Value) String() string {
	switch v.Type {
	case Int:
		return strconv.FormatInt(v.I, 10)
	case Real:
		return strconv.FormatFloat(v.R, 'g', -1, 64)
	default:
		return v.S
	}
}
