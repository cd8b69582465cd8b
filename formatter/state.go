package formatter

import (
	"bytes"
	"fmt"
	"io"

	"github.com/gnolang/absint/internal/analysis/interp"
	"github.com/gnolang/absint/internal/analysis/state"
)

// WriteResult writes the converged states of every analyzed function of
// res in module order. A non-empty only restricts the output to the
// function of that name.
func WriteResult(w io.Writer, res *interp.Result, only string) error {
	found := false
	for _, fr := range res.Ordered() {
		if only != "" && fr.Func.Name != only {
			continue
		}
		if found {
			if _, err := io.WriteString(w, "\n"); err != nil {
				return err
			}
		}
		found = true
		if err := WriteFunction(w, fr); err != nil {
			return err
		}
	}
	if !found && only != "" {
		return fmt.Errorf("function %s was not analyzed", only)
	}
	return nil
}

// WriteFunction writes the entry and exit state of each block of fr in
// function order.
func WriteFunction(w io.Writer, fr *interp.FunctionResult) error {
	var err error
	switch {
	case fr.Exit == nil:
		_, err = fmt.Fprintf(w, "@%s never returns\n", fr.Func.Name)
	case fr.Return() == nil:
		_, err = fmt.Fprintf(w, "@%s returns void\n", fr.Func.Name)
	default:
		_, err = fmt.Fprintf(w, "@%s returns %s\n", fr.Func.Name, fr.Return())
	}
	if err != nil {
		return err
	}
	for _, b := range fr.Func.Blocks {
		if !fr.Reached(b) {
			if _, err := fmt.Fprintf(w, "%s (unreachable)\n", b.Name); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintln(w, b.Name); err != nil {
			return err
		}
		br := fr.Blocks[b]
		if err := writeState(w, "in", br.In); err != nil {
			return err
		}
		if br.Out == nil {
			if _, err := io.WriteString(w, "  out (no exit)\n"); err != nil {
				return err
			}
			continue
		}
		if err := writeState(w, "out", br.Out); err != nil {
			return err
		}
	}
	return nil
}

func writeState(w io.Writer, label string, st *state.State) error {
	if _, err := fmt.Fprintf(w, "  %s\n", label); err != nil {
		return err
	}
	return st.Dump(&indenter{w: w, prefix: "    "})
}

// indenter prefixes every line written through it.
type indenter struct {
	w      io.Writer
	prefix string
	mid    bool
}

func (in *indenter) Write(p []byte) (int, error) {
	var buf bytes.Buffer
	for _, line := range bytes.SplitAfter(p, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		if !in.mid {
			buf.WriteString(in.prefix)
		}
		buf.Write(line)
		in.mid = line[len(line)-1] != '\n'
	}
	if _, err := in.w.Write(buf.Bytes()); err != nil {
		return 0, err
	}
	return len(p), nil
}
