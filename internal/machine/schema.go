// Package machine lowers a parsed dialog script into an executable state
// graph and interprets it against live sessions. It holds the user-variable
// schema, the IR for conditions and actions, the static validator, and the
// Mealy-style interpreter driven by message and timeout inputs.
package machine

import (
	"github.com/dekarrin/tunatalk/internal/script"
)

// reserved variable names present in every schema.
const (
	VarUsername = "username"
	VarPasswd   = "passwd"
)

// GuestUser is the shared row name for unauthenticated sessions. It cannot
// be registered or logged in to.
const GuestUser = "Guest"

// Schema is the immutable mapping from variable name to declared type and
// default value, in declaration order. It always contains the reserved
// username and passwd Text variables. It is built once at startup by Build
// and never mutated afterwards.
type Schema struct {
	names    []string
	types    map[string]script.VarType
	defaults map[string]script.Value
}

func newSchema() *Schema {
	s := &Schema{
		types:    make(map[string]script.VarType),
		defaults: make(map[string]script.Value),
	}
	s.add(VarUsername, script.Text, script.TextValue(""))
	s.add(VarPasswd, script.Text, script.TextValue(""))
	return s
}

func (s *Schema) add(name string, vt script.VarType, def script.Value) {
	s.names = append(s.names, name)
	s.types[name] = vt
	s.defaults[name] = def
}

// Names returns every variable name in declaration order, starting with the
// reserved username and passwd.
func (s *Schema) Names() []string {
	names := make([]string, len(s.names))
	copy(names, s.names)
	return names
}

// Vars returns the scripted variable names, excluding the reserved username
// and passwd columns, in declaration order.
func (s *Schema) Vars() []string {
	return s.Names()[2:]
}

// Type returns the declared type of the named variable.
func (s *Schema) Type(name string) (script.VarType, bool) {
	vt, ok := s.types[name]
	return vt, ok
}

// Default returns the default value of the named variable.
func (s *Schema) Default(name string) (script.Value, bool) {
	v, ok := s.defaults[name]
	return v, ok
}
