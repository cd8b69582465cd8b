package nolint

import (
	"go/parser"
	"go/token"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tt "github.com/gnolang/absint/internal/types"
)

func TestParseDirective(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text    string
		rules   []string
		wantErr bool
	}{
		{"nolint", nil, false},
		{"nolint:rule1,rule2, rule3", []string{"rule1", "rule2", "rule3"}, false},
		{"nolint:", nil, true},
		{"nolintx", nil, true},
		{"lint:rule1", nil, true},
	}
	for _, tc := range tests {
		t.Run(tc.text, func(t *testing.T) {
			t.Parallel()
			rules, err := parseDirective(tc.text, keyword)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, rules, len(tc.rules))
			for _, r := range tc.rules {
				assert.Contains(t, rules, r)
			}
		})
	}
}

func TestParseComments(t *testing.T) {
	t.Parallel()
	src := `package main

//nolint:rule1,rule2
func foo() {
	// some code
}

func main() {
	//nolint
	a := 1
	b := 2
	c := a / b //nolint:division-by-zero
	//nolint:out-of-bounds
	_ = c
}
`
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, "test.go", src, parser.ParseComments)
	require.NoError(t, err)
	m := ParseComments(f, fset)

	tests := []struct {
		rule     string
		line     int
		expected bool
	}{
		{"rule1", 5, true},
		{"rule3", 5, false},
		{"anyrule", 10, true},
		{"anyrule", 11, false},
		{"division-by-zero", 12, true},
		{"null-dereference", 12, false},
		{"out-of-bounds", 14, true},
		{"out-of-bounds", 15, false},
	}
	for _, tc := range tests {
		pos := token.Position{Filename: "test.go", Line: tc.line, Column: 1}
		assert.Equal(t, tc.expected, m.IsNolint(pos, tc.rule), "line %d rule %s", tc.line, tc.rule)
	}
}

func TestParseCommentsWholeFile(t *testing.T) {
	t.Parallel()
	m, err := Parse("whole.go", []byte("//nolint:contract\n\npackage main\n\nfunc main() {}\n"))
	require.NoError(t, err)
	assert.True(t, m.IsNolint(token.Position{Filename: "whole.go", Line: 5}, "contract"))
	assert.False(t, m.IsNolint(token.Position{Filename: "whole.go", Line: 5}, "out-of-bounds"))
}

func TestParseAIR(t *testing.T) {
	t.Parallel()
	src := `; sample module
@g = global i32 0

; nolint:null-dereference
define i32 @f(ptr %p) {
entry:
  %x = load i32, ptr %p
  ret i32 %x
}

define i32 @main() {
entry:
  %q = sdiv i32 1, 0 ; nolint:division-by-zero
  ; nolint
  %r = srem i32 1, 0
  %s = udiv i32 1, 0
  ret i32 %s
}
`
	m := ParseAIR("m.air", []byte(src))
	tests := []struct {
		rule     string
		line     int
		expected bool
	}{
		{"null-dereference", 7, true},
		{"null-dereference", 13, false},
		{"division-by-zero", 13, true},
		{"division-by-zero", 15, true},
		{"division-by-zero", 16, false},
	}
	for _, tc := range tests {
		pos := token.Position{Filename: "m.air", Line: tc.line}
		assert.Equal(t, tc.expected, m.IsNolint(pos, tc.rule), "line %d rule %s", tc.line, tc.rule)
	}
}

func TestParseAIRHeader(t *testing.T) {
	t.Parallel()
	m := ParseAIR("h.air", []byte("; nolint:contract\n\ndefine void @f() {\nentry:\n  ret void\n}\n"))
	assert.True(t, m.IsNolint(token.Position{Filename: "h.air", Line: 5}, "contract"))
}

func TestFilter(t *testing.T) {
	t.Parallel()
	m := ParseAIR("m.air", []byte("define void @f() {\nentry:\n  %x = sdiv i32 1, 0 ; nolint\n  ret void\n}\n"))
	issues := []tt.Issue{
		{Rule: "division-by-zero", Filename: "m.air", Start: token.Position{Line: 3}},
		{Rule: "division-by-zero", Filename: "m.air", Start: token.Position{Filename: "m.air", Line: 4}},
		{Rule: "division-by-zero", Filename: "other.air", Start: token.Position{Filename: "other.air", Line: 3}},
	}
	got := m.Filter(issues)
	require.Len(t, got, 2)
	assert.Equal(t, 4, got[0].Start.Line)
	assert.Equal(t, "other.air", got[1].Filename)
}

func TestParseUnknownExtension(t *testing.T) {
	t.Parallel()
	m, err := Parse("x.txt", []byte("//nolint"))
	require.NoError(t, err)
	assert.False(t, m.IsNolint(token.Position{Filename: "x.txt", Line: 1}, "any"))

	_, err = Parse("bad.go", []byte("package"))
	assert.ErrorContains(t, err, "parsing bad.go")
}
