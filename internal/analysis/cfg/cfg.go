package cfg

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/gnolang/absint/internal/ir"
)

type edge struct {
	from, to *ir.BasicBlock
}

// Graph is the control flow graph of one function.
type Graph struct {
	fn    *ir.Function
	preds map[*ir.BasicBlock][]*ir.BasicBlock
	succs map[*ir.BasicBlock][]*ir.BasicBlock

	rpo      []*ir.BasicBlock
	rpoIndex map[*ir.BasicBlock]int
	back     map[edge]bool
	headers  map[*ir.BasicBlock]bool
	inLoop   map[*ir.BasicBlock]bool
}

// FromFunc builds the graph of fn. Declarations yield an empty graph.
func FromFunc(fn *ir.Function) *Graph {
	g := &Graph{
		fn:       fn,
		preds:    make(map[*ir.BasicBlock][]*ir.BasicBlock),
		succs:    make(map[*ir.BasicBlock][]*ir.BasicBlock),
		rpoIndex: make(map[*ir.BasicBlock]int),
		back:     make(map[edge]bool),
		headers:  make(map[*ir.BasicBlock]bool),
		inLoop:   make(map[*ir.BasicBlock]bool),
	}
	for _, b := range fn.Blocks {
		succs := b.Succs()
		g.succs[b] = succs
		for _, s := range succs {
			g.preds[s] = append(g.preds[s], b)
		}
	}
	if entry := fn.Entry(); entry != nil {
		g.traverse(entry)
		g.markLoops()
	}
	return g
}

type frame struct {
	b    *ir.BasicBlock
	next int
}

// traverse runs an iterative DFS from entry, recording the post-order and
// the edges that reach a block still on the stack.
func (g *Graph) traverse(entry *ir.BasicBlock) {
	const (
		unseen = iota
		active
		done
	)
	state := make(map[*ir.BasicBlock]int)
	var post []*ir.BasicBlock
	stack := []frame{{b: entry}}
	state[entry] = active
	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		succs := g.succs[top.b]
		if top.next < len(succs) {
			s := succs[top.next]
			top.next++
			switch state[s] {
			case unseen:
				state[s] = active
				stack = append(stack, frame{b: s})
			case active:
				g.back[edge{top.b, s}] = true
				g.headers[s] = true
			}
			continue
		}
		state[top.b] = done
		post = append(post, top.b)
		stack = stack[:len(stack)-1]
	}
	g.rpo = make([]*ir.BasicBlock, len(post))
	for i, b := range post {
		k := len(post) - 1 - i
		g.rpo[k] = b
		g.rpoIndex[b] = k
	}
}

// markLoops collects the natural loop body of every back edge.
func (g *Graph) markLoops() {
	for e := range g.back {
		g.inLoop[e.to] = true
		seen := map[*ir.BasicBlock]bool{e.to: true}
		work := []*ir.BasicBlock{e.from}
		for len(work) > 0 {
			b := work[len(work)-1]
			work = work[:len(work)-1]
			if seen[b] {
				continue
			}
			seen[b] = true
			g.inLoop[b] = true
			for _, p := range g.preds[b] {
				if g.Reachable(p) {
					work = append(work, p)
				}
			}
		}
	}
}

func (g *Graph) Func() *ir.Function { return g.fn }

// Blocks returns every block in function order.
func (g *Graph) Blocks() []*ir.BasicBlock { return g.fn.Blocks }

func (g *Graph) Entry() *ir.BasicBlock { return g.fn.Entry() }

func (g *Graph) Preds(b *ir.BasicBlock) []*ir.BasicBlock { return g.preds[b] }

func (g *Graph) Succs(b *ir.BasicBlock) []*ir.BasicBlock { return g.succs[b] }

// ReversePostOrder returns the blocks reachable from the entry, each before
// its successors except along back edges.
func (g *Graph) ReversePostOrder() []*ir.BasicBlock { return g.rpo }

// Order returns the position of b in the reverse post-order, or -1 when b
// is unreachable.
func (g *Graph) Order(b *ir.BasicBlock) int {
	if k, ok := g.rpoIndex[b]; ok {
		return k
	}
	return -1
}

func (g *Graph) Reachable(b *ir.BasicBlock) bool {
	_, ok := g.rpoIndex[b]
	return ok
}

// IsBackEdge reports whether from -> to closes a cycle of the depth-first
// traversal.
func (g *Graph) IsBackEdge(from, to *ir.BasicBlock) bool {
	return g.back[edge{from, to}]
}

// IsLoopHeader reports whether some back edge targets b.
func (g *Graph) IsLoopHeader(b *ir.BasicBlock) bool { return g.headers[b] }

// InLoop reports whether b can execute more than once per call.
func (g *Graph) InLoop(b *ir.BasicBlock) bool { return g.inLoop[b] }

// PrintDot writes the graph in DOT format. label returns the text shown
// for a block; an empty label falls back to the block name.
func (g *Graph) PrintDot(w io.Writer, label func(*ir.BasicBlock) string) {
	name := func(b *ir.BasicBlock) string {
		if label != nil {
			if l := label(b); l != "" {
				return l
			}
		}
		return b.Name
	}
	fmt.Fprintf(w, `
digraph mgraph {
	mode="heir";
	splines="ortho";

`)
	for _, b := range g.fn.Blocks {
		for _, s := range g.succs[b] {
			attr := ""
			if g.IsBackEdge(b, s) {
				attr = " [style=dashed]"
			}
			fmt.Fprintf(w, "\t%q -> %q%s\n", name(b), name(s), attr)
		}
	}
	fmt.Fprintf(w, "}\n")
}

// RenderToGraphVizFile renders DOT source with the GraphViz dot binary.
// The output format follows the file extension and defaults to svg.
func RenderToGraphVizFile(dot []byte, filename string) error {
	format := strings.TrimPrefix(filepath.Ext(filename), ".")
	if format == "" {
		format = "svg"
	}
	cmd := exec.Command("dot", "-T"+format, "-o", filename)
	cmd.Stdin = bytes.NewReader(dot)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("dot: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
