// Package cfg answers control flow questions about an IR function.
//
// A Graph is built once per function with FromFunc and is read-only
// afterwards. It exposes:
//
//   - predecessor and successor lists of every basic block,
//   - a reverse post-order of the blocks reachable from the entry,
//   - retreating edges of the depth-first traversal (loop back edges),
//   - membership of blocks in natural loops.
//
// The fixpoint driver uses the reverse post-order to seed its worklist and
// the back edges to decide where widening applies. PrintDot renders the
// graph in the GraphViz DOT language.
package cfg
