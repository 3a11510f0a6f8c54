package machine

import (
	"testing"

	"github.com/dekarrin/tunatalk/internal/script"
	"github.com/stretchr/testify/assert"
)

func mustParse(t *testing.T, src string) script.Program {
	t.Helper()
	prog, err := script.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	return prog
}

func Test_Build_welcomeMovesToFront(t *testing.T) {
	assert := assert.New(t)

	prog := mustParse(t, `
State First Verified
	Speak "first"
	Default
		Goto Welcome

State Welcome
	Speak "hi"
	Case "go"
		Goto First
	Default
		Speak "?"
`)

	graph, schema, err := Build(prog)
	if !assert.NoError(err) {
		return
	}

	assert.Equal(2, graph.States())
	assert.Equal("Welcome", graph.State(0).Name)
	assert.Equal("First", graph.State(1).Name)
	assert.True(graph.State(1).Verified)

	assert.Equal(0, graph.Index("Welcome"))
	assert.Equal(1, graph.Index("First"))
	assert.Equal(-1, graph.Index("Nowhere"))

	// gotos resolve against the canonical order
	gotoFirst := graph.State(0).Cases[0].Actions[0]
	assert.Equal(ActGoto, gotoFirst.Kind)
	assert.Equal(1, gotoFirst.Target)
	assert.True(gotoFirst.TargetVerified)

	gotoWelcome := graph.State(1).Default[0]
	assert.Equal(0, gotoWelcome.Target)
	assert.False(gotoWelcome.TargetVerified)

	// reserved columns always lead the schema
	assert.Equal([]string{VarUsername, VarPasswd}, schema.Names())
	assert.Empty(schema.Vars())
}

func Test_Build_schema(t *testing.T) {
	assert := assert.New(t)

	prog := mustParse(t, `
Variable
	$name Text "新用户"
	$count Int 2
	$ratio Real 1.5

State Welcome
	Default
		Speak $name
`)

	_, schema, err := Build(prog)
	if !assert.NoError(err) {
		return
	}

	assert.Equal([]string{"name", "count", "ratio"}, schema.Vars())

	vt, ok := schema.Type("count")
	assert.True(ok)
	assert.Equal(script.Int, vt)

	def, ok := schema.Default("ratio")
	assert.True(ok)
	assert.Equal(script.RealValue(1.5), def)

	def, ok = schema.Default("name")
	assert.True(ok)
	assert.Equal("新用户", def.S)
}

func Test_Build_intLiteralNormalization(t *testing.T) {
	assert := assert.New(t)

	prog := mustParse(t, `
Variable $count Int 0

State Welcome
	Default
		Goto Counting

State Counting Verified
	Case "more"
		Update $count Add 2
	Default
		Exit
`)

	graph, _, err := Build(prog)
	if !assert.NoError(err) {
		return
	}

	upd := graph.State(1).Cases[0].Actions[0]
	assert.Equal(ActUpdate, upd.Kind)
	assert.Equal(script.IntValue(2), upd.Lit)
}

func Test_Build_timeoutDuplicateThresholdReplaces(t *testing.T) {
	assert := assert.New(t)

	prog := mustParse(t, `
State Welcome
	Default
		Speak "?"
	Timeout 60
		Speak "first"
	Timeout 120
		Speak "other"
	Timeout 60
		Speak "second"
`)

	graph, _, err := Build(prog)
	if !assert.NoError(err) {
		return
	}

	timeouts := graph.State(0).Timeouts
	if !assert.Len(timeouts, 2) {
		return
	}
	assert.Equal(60, timeouts[0].Seconds)
	assert.Equal(120, timeouts[1].Seconds)
	assert.Equal("second", timeouts[0].Actions[0].Parts[0].Text)
}

func Test_Build_errors(t *testing.T) {
	testCases := []struct {
		name string
		src  string
	}{
		{
			name: "no Welcome state",
			src:  `State Home Default Exit`,
		},
		{
			name: "verified Welcome",
			src:  `State Welcome Verified Default Exit`,
		},
		{
			name: "duplicate state",
			src: `State Welcome Default Exit
State Welcome Default Exit`,
		},
		{
			name: "duplicate variable",
			src: `Variable $x Int 0 $x Int 1
State Welcome Default Exit`,
		},
		{
			name: "variable shadows reserved column",
			src: `Variable $passwd Text ""
State Welcome Default Exit`,
		},
		{
			name: "goto unknown state",
			src:  `State Welcome Default Goto Nowhere`,
		},
		{
			name: "speak unknown variable",
			src:  `State Welcome Default Speak $ghost`,
		},
		{
			name: "update in unverified state",
			src: `Variable $x Int 0
State Welcome Case Type Int Update $x Set Copy Default Exit`,
		},
		{
			name: "update unknown variable",
			src: `State Welcome Default Goto V
State V Verified Case "x" Update $ghost Set 1 Default Exit`,
		},
		{
			name: "int copy needs int context",
			src: `Variable $x Int 0
State Welcome Default Goto V
State V Verified Case Type Real Update $x Set Copy Default Exit`,
		},
		{
			name: "real copy needs numeric context",
			src: `Variable $x Real 0
State Welcome Default Goto V
State V Verified Case "word" Update $x Add Copy Default Exit`,
		},
		{
			name: "text copy needs input context",
			src: `Variable $x Text ""
State Welcome Default Goto V
State V Verified Default Exit Timeout 5 Update $x Set Copy`,
		},
		{
			name: "int update with fractional literal",
			src: `Variable $x Int 0
State Welcome Default Goto V
State V Verified Case "x" Update $x Set 1.5 Default Exit`,
		},
		{
			name: "text update with Add",
			src: `Variable $x Text ""
State Welcome Default Goto V
State V Verified Case "x" Update $x Add Copy Default Exit`,
		},
		{
			name: "text update with numeric literal",
			src: `Variable $x Text ""
State Welcome Default Goto V
State V Verified Case "x" Update $x Set 12 Default Exit`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)

			prog := mustParse(t, tc.src)
			_, _, err := Build(prog)
			if !assert.Error(err) {
				return
			}
			assert.IsType(&script.GrammarError{}, err)
		})
	}
}
