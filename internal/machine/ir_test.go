package machine

import (
	"testing"

	"github.com/dekarrin/tunatalk/internal/script"
	"github.com/stretchr/testify/assert"
)

func Test_Condition_Check(t *testing.T) {
	testCases := []struct {
		name   string
		cond   Condition
		input  string
		expect bool
	}{
		{
			name:   "length less-than matches",
			cond:   Condition{Kind: CondLength, Op: "<", N: 5},
			input:  "abcd",
			expect: true,
		},
		{
			name:   "length counts characters not bytes",
			cond:   Condition{Kind: CondLength, Op: "<=", N: 2},
			input:  "你好",
			expect: true,
		},
		{
			name:   "length equality",
			cond:   Condition{Kind: CondLength, Op: "=", N: 3},
			input:  "abc",
			expect: true,
		},
		{
			name:   "length greater-or-equal fails",
			cond:   Condition{Kind: CondLength, Op: ">=", N: 4},
			input:  "abc",
			expect: false,
		},
		{
			name:   "contain finds substring",
			cond:   Condition{Kind: CondContain, Str: "退出"},
			input:  "我想退出了",
			expect: true,
		},
		{
			name:   "contain missing substring",
			cond:   Condition{Kind: CondContain, Str: "help"},
			input:  "no hel p here",
			expect: false,
		},
		{
			name:   "type int accepts digits",
			cond:   Condition{Kind: CondType, VarType: script.Int},
			input:  "0042",
			expect: true,
		},
		{
			name:   "type int rejects sign",
			cond:   Condition{Kind: CondType, VarType: script.Int},
			input:  "-42",
			expect: false,
		},
		{
			name:   "type int rejects empty",
			cond:   Condition{Kind: CondType, VarType: script.Int},
			input:  "",
			expect: false,
		},
		{
			name:   "type int rejects decimal point",
			cond:   Condition{Kind: CondType, VarType: script.Int},
			input:  "4.2",
			expect: false,
		},
		{
			name:   "type real accepts decimal",
			cond:   Condition{Kind: CondType, VarType: script.Real},
			input:  " 4.25 ",
			expect: true,
		},
		{
			name:   "type real accepts signed",
			cond:   Condition{Kind: CondType, VarType: script.Real},
			input:  "-3",
			expect: true,
		},
		{
			name:   "type real rejects words",
			cond:   Condition{Kind: CondType, VarType: script.Real},
			input:  "three",
			expect: false,
		},
		{
			name:   "equal trims both sides",
			cond:   Condition{Kind: CondEqual, Str: "余额"},
			input:  "  余额  ",
			expect: true,
		},
		{
			name:   "equal is not substring match",
			cond:   Condition{Kind: CondEqual, Str: "余额"},
			input:  "查余额",
			expect: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			assert.Equal(tc.expect, tc.cond.Check(tc.input))
		})
	}
}
