package cfg

import (
	"bytes"
	"strings"
	"testing"

	"github.com/gnolang/absint/internal/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// counter builds
//
//	entry -> header; header -> body | exit; body -> header
//
// plus a block nothing jumps to.
func counter() (*ir.Function, map[string]*ir.BasicBlock) {
	m := ir.NewModule("m")
	fn := m.NewFunction("count", ir.FuncOf(ir.I32, ir.I32), "n")
	blocks := map[string]*ir.BasicBlock{}
	for _, name := range []string{"entry", "header", "body", "exit", "dead"} {
		blocks[name] = fn.NewBlock(name)
	}
	b := ir.NewBuilder(blocks["entry"])
	b.Br(blocks["header"])

	b.SetBlock(blocks["header"])
	i := b.Named("i").Phi(ir.I32)
	cond := b.ICmp(ir.IntSLT, i, fn.Params[0])
	b.CondBr(cond, blocks["body"], blocks["exit"])

	b.SetBlock(blocks["body"])
	next := b.Binary(ir.OpAdd, i, ir.NewInt(ir.I32, 1))
	b.Br(blocks["header"])
	i.AddIncoming(ir.NewInt(ir.I32, 0), blocks["entry"])
	i.AddIncoming(next, blocks["body"])

	b.SetBlock(blocks["exit"])
	b.Ret(i)

	b.SetBlock(blocks["dead"])
	b.Br(blocks["exit"])
	return fn, blocks
}

func TestFromFunc(t *testing.T) {
	t.Parallel()
	fn, bb := counter()
	g := FromFunc(fn)

	assert.Equal(t, bb["entry"], g.Entry())
	assert.Len(t, g.Blocks(), 5)
	assert.ElementsMatch(t, []*ir.BasicBlock{bb["entry"], bb["body"]}, g.Preds(bb["header"]))
	assert.Equal(t, []*ir.BasicBlock{bb["body"], bb["exit"]}, g.Succs(bb["header"]))
	assert.ElementsMatch(t, []*ir.BasicBlock{bb["header"], bb["dead"]}, g.Preds(bb["exit"]))
}

func TestReversePostOrder(t *testing.T) {
	t.Parallel()
	fn, bb := counter()
	g := FromFunc(fn)

	rpo := g.ReversePostOrder()
	require.Len(t, rpo, 4)
	assert.Equal(t, bb["entry"], rpo[0])
	assert.Less(t, g.Order(bb["header"]), g.Order(bb["body"]))
	assert.Less(t, g.Order(bb["header"]), g.Order(bb["exit"]))
	assert.False(t, g.Reachable(bb["dead"]))
	assert.Equal(t, -1, g.Order(bb["dead"]))
}

func TestLoops(t *testing.T) {
	t.Parallel()
	fn, bb := counter()
	g := FromFunc(fn)

	tests := []struct {
		from, to string
		back     bool
	}{
		{"entry", "header", false},
		{"header", "body", false},
		{"body", "header", true},
		{"header", "exit", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.back, g.IsBackEdge(bb[tt.from], bb[tt.to]), "%s -> %s", tt.from, tt.to)
	}

	assert.True(t, g.IsLoopHeader(bb["header"]))
	assert.False(t, g.IsLoopHeader(bb["body"]))
	for name, want := range map[string]bool{"entry": false, "header": true, "body": true, "exit": false, "dead": false} {
		assert.Equal(t, want, g.InLoop(bb[name]), name)
	}
}

func TestSelfLoopAndDeclaration(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	fn := m.NewFunction("spin", ir.FuncOf(ir.Void))
	entry := fn.NewBlock("entry")
	loop := fn.NewBlock("loop")
	b := ir.NewBuilder(entry)
	b.Br(loop)
	b.SetBlock(loop)
	b.Br(loop)

	g := FromFunc(fn)
	assert.True(t, g.IsBackEdge(loop, loop))
	assert.True(t, g.InLoop(loop))
	assert.False(t, g.InLoop(entry))

	decl := m.NewFunction("ext", ir.FuncOf(ir.Void))
	dg := FromFunc(decl)
	assert.Nil(t, dg.Entry())
	assert.Empty(t, dg.ReversePostOrder())
}

func TestPrintDot(t *testing.T) {
	t.Parallel()
	fn, _ := counter()
	g := FromFunc(fn)

	var buf bytes.Buffer
	g.PrintDot(&buf, func(b *ir.BasicBlock) string {
		if b.Name == "entry" {
			return "ENTRY"
		}
		return ""
	})

	expected := `
digraph mgraph {
	mode="heir";
	splines="ortho";

	"ENTRY" -> "header"
	"header" -> "body"
	"header" -> "exit"
	"body" -> "header" [style=dashed]
	"dead" -> "exit"
}
`
	assert.Equal(t, normalizeDotOutput(expected), normalizeDotOutput(buf.String()))
}

func normalizeDotOutput(dot string) string {
	lines := strings.Split(dot, "\n")
	var normalized []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			normalized = append(normalized, trimmed)
		}
	}
	return strings.Join(normalized, "\n")
}
