package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/absint/analyze"
	"github.com/gnolang/absint/internal/analysis/cfg"
	"github.com/gnolang/absint/internal/ir"
)

// variable for flags
var (
	funcName  string
	output    string
	reachable bool
)

var cfgCmd = &cobra.Command{
	Use:   "cfg <file>",
	Short: "Print the control flow graph of a function",
	Long: `Outputs the Control Flow Graph (CFG) of the specified function in DOT format
or renders it with GraphViz. Back edges are dashed.
Example) absint cfg --func main -o main.svg testdata/loop.air`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if funcName == "" {
			fmt.Println("error: Please provide a function with --func")
			os.Exit(1)
		}
		engine := newEngine()
		if err := runCFG(engine, args[0], funcName, output, reachable, os.Stdout); err != nil {
			logger.Error("Failed to print control flow graph", zap.String("path", args[0]), zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	cfgCmd.Flags().StringVar(&funcName, "func", "", "Function name for CFG analysis")
	cfgCmd.Flags().StringVarP(&output, "output", "o", "", "Output path for rendered GraphViz file")
	cfgCmd.Flags().BoolVar(&reachable, "reachable", false, "Run the analysis and mark unreachable blocks")
}

func runCFG(engine *analyze.Engine, path, funcName, output string, reachable bool, w io.Writer) error {
	m, err := engine.Load(path)
	if err != nil {
		return err
	}
	fn := m.Function(funcName)
	if fn == nil || fn.IsDeclaration() {
		return fmt.Errorf("function not found: %s", funcName)
	}

	var label func(*ir.BasicBlock) string
	if reachable {
		a, err := engine.Analyze(m)
		if err != nil {
			return err
		}
		fr := a.Result.Functions[fn]
		label = func(b *ir.BasicBlock) string {
			if fr == nil || !fr.Reached(b) {
				return b.Name + " (unreachable)"
			}
			return ""
		}
	}

	var buf strings.Builder
	cfg.FromFunc(fn).PrintDot(&buf, label)
	if output != "" {
		if err := cfg.RenderToGraphVizFile([]byte(buf.String()), output); err != nil {
			return err
		}
		fmt.Fprintf(w, "GraphViz file created: %s\n", output)
		return nil
	}
	fmt.Fprintf(w, "CFG for function %s in file %s:\n%s", funcName, path, buf.String())
	return nil
}
