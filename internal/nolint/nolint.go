// Package nolint finds suppression comments in analyzed sources. A
// comment "//nolint" in Go or "; nolint" in an .air module silences every
// rule; "nolint:rule1,rule2" silences the listed ones.
//
// A comment above the package clause, or above the first definition of an
// .air module, covers the whole file. A comment right above a function
// covers the function, a trailing comment covers its statement and a
// comment on its own line covers the statement that follows.
package nolint

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"

	tt "github.com/gnolang/absint/internal/types"
)

const (
	airPrefix = ";"
	keyword   = "nolint"
)

var errNotNolint = errors.New("not a nolint comment")

// Manager manages nolint scopes and checks if a position is nolinted.
type Manager struct {
	// scopes maps filename to a slice of nolint scopes.
	scopes map[string][]scope
}

// scope is a line range where a set of rules is silenced. No rules
// means every rule.
type scope struct {
	rules     map[string]struct{}
	startLine int
	endLine   int
}

// Parse reads the suppression comments of src, an .air or .go file
// named filename.
func Parse(filename string, src []byte) (*Manager, error) {
	switch filepath.Ext(filename) {
	case ".go":
		fset := token.NewFileSet()
		f, err := parser.ParseFile(fset, filename, src, parser.ParseComments|parser.SkipObjectResolution)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", filename, err)
		}
		return ParseComments(f, fset), nil
	case ".air":
		return ParseAIR(filename, src), nil
	}
	return &Manager{scopes: map[string][]scope{}}, nil
}

// ParseComments parses nolint comments in the given Go file.
func ParseComments(f *ast.File, fset *token.FileSet) *Manager {
	m := &Manager{scopes: make(map[string][]scope)}
	stmts := indexStatementsByLine(f, fset)
	packageLine := fset.Position(f.Package).Line

	for _, cg := range f.Comments {
		for _, comment := range cg.List {
			rules, err := parseDirective(strings.TrimPrefix(comment.Text, "//"), keyword)
			if err != nil {
				continue
			}
			pos := fset.Position(comment.Slash)
			s := scope{rules: rules, startLine: pos.Line, endLine: pos.Line}
			switch {
			case pos.Line < packageLine:
				s.startLine, s.endLine = 1, fset.Position(f.End()).Line
			case isInline(pos, stmts, fset):
				stmt := stmts[pos.Line]
				s.startLine, s.endLine = fset.Position(stmt.Pos()).Line, fset.Position(stmt.End()).Line
			case stmts[pos.Line+1] != nil:
				s.endLine = fset.Position(stmts[pos.Line+1].End()).Line
			default:
				if decl := functionAt(fset, f, pos.Line+1); decl != nil {
					s.endLine = fset.Position(decl.End()).Line
				}
			}
			m.add(pos.Filename, s)
		}
	}
	return m
}

// ParseAIR parses the "; nolint" comments of an .air module.
func ParseAIR(filename string, src []byte) *Manager {
	m := &Manager{scopes: make(map[string][]scope)}
	var lines []string
	sc := bufio.NewScanner(bytes.NewReader(src))
	sc.Buffer(make([]byte, 0, 64*1024), len(src)+1)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}

	seenCode := false
	for i, line := range lines {
		lineNo := i + 1
		code, comment, found := strings.Cut(line, airPrefix)
		hasCode := strings.TrimSpace(code) != ""
		if !found {
			seenCode = seenCode || hasCode
			continue
		}
		rules, err := parseDirective(strings.TrimSpace(comment), keyword)
		if err != nil {
			seenCode = seenCode || hasCode
			continue
		}
		s := scope{rules: rules, startLine: lineNo, endLine: lineNo}
		switch {
		case hasCode:
		case !seenCode:
			s.startLine, s.endLine = 1, len(lines)
		case lineNo < len(lines) && strings.HasPrefix(strings.TrimSpace(lines[lineNo]), "define "):
			s.endLine = closingBrace(lines, lineNo)
		default:
			s.endLine = lineNo + 1
		}
		seenCode = seenCode || hasCode
		m.add(filename, s)
	}
	return m
}

// closingBrace returns the line of the "}" ending the function defined at
// index from.
func closingBrace(lines []string, from int) int {
	for i := from; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "}" {
			return i + 1
		}
	}
	return len(lines)
}

// parseDirective parses "nolint" or "nolint:a,b" into the silenced rules.
func parseDirective(text, prefix string) (map[string]struct{}, error) {
	rest, ok := strings.CutPrefix(text, prefix)
	if !ok {
		return nil, errNotNolint
	}
	rules := make(map[string]struct{})
	if rest == "" || strings.TrimSpace(rest) == "" {
		return rules, nil
	}
	if rest[0] != ':' {
		return nil, errNotNolint
	}
	rest = strings.TrimSpace(rest[1:])
	if rest == "" {
		return nil, errors.New("invalid nolint comment: no rules specified after colon")
	}
	for _, rule := range strings.Split(rest, ",") {
		if rule = strings.TrimSpace(rule); rule != "" {
			rules[rule] = struct{}{}
		}
	}
	return rules, nil
}

func (m *Manager) add(filename string, s scope) {
	m.scopes[filename] = append(m.scopes[filename], s)
}

// indexStatementsByLine maps each line to the first statement starting on it.
func indexStatementsByLine(f *ast.File, fset *token.FileSet) map[int]ast.Stmt {
	stmts := make(map[int]ast.Stmt)
	ast.Inspect(f, func(n ast.Node) bool {
		if stmt, ok := n.(ast.Stmt); ok {
			line := fset.Position(stmt.Pos()).Line
			if _, exists := stmts[line]; !exists {
				stmts[line] = stmt
			}
		}
		return n != nil
	})
	return stmts
}

func isInline(pos token.Position, stmts map[int]ast.Stmt, fset *token.FileSet) bool {
	stmt, ok := stmts[pos.Line]
	return ok && pos.Offset > fset.Position(stmt.Pos()).Offset
}

func functionAt(fset *token.FileSet, f *ast.File, line int) *ast.FuncDecl {
	for _, decl := range f.Decls {
		if fd, ok := decl.(*ast.FuncDecl); ok && fset.Position(fd.Pos()).Line == line {
			return fd
		}
	}
	return nil
}

// IsNolint checks if a given position and rule are nolinted.
func (m *Manager) IsNolint(pos token.Position, rule string) bool {
	for _, s := range m.scopes[pos.Filename] {
		if pos.Line < s.startLine || pos.Line > s.endLine {
			continue
		}
		if len(s.rules) == 0 {
			return true
		}
		if _, ok := s.rules[rule]; ok {
			return true
		}
	}
	return false
}

// Filter drops the issues m silences.
func (m *Manager) Filter(issues []tt.Issue) []tt.Issue {
	out := issues[:0]
	for _, is := range issues {
		pos := is.Start
		if pos.Filename == "" {
			pos.Filename = is.Filename
		}
		if !m.IsNolint(pos, is.Rule) {
			out = append(out, is)
		}
	}
	return out
}
