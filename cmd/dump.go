package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/absint/analyze"
	"github.com/gnolang/absint/formatter"
)

var dumpFunc string

var dumpCmd = &cobra.Command{
	Use:   "dump <file>",
	Short: "Print the converged abstract state of every block",
	Long: `Runs the analysis and prints the entry and exit state of each block.
Example) absint dump --func main testdata/loop.air`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		engine := newEngine()
		if err := runDump(engine, args[0], dumpFunc, os.Stdout); err != nil {
			logger.Error("Failed to dump states", zap.String("path", args[0]), zap.Error(err))
			os.Exit(1)
		}
	},
}

func init() {
	dumpCmd.Flags().StringVar(&dumpFunc, "func", "", "Only print the states of this function")
}

func runDump(engine *analyze.Engine, path, funcName string, w io.Writer) error {
	m, err := engine.Load(path)
	if err != nil {
		return err
	}
	if funcName != "" && m.Function(funcName) == nil {
		return fmt.Errorf("function not found: %s", funcName)
	}
	a, err := engine.Analyze(m)
	if err != nil {
		return err
	}
	return formatter.WriteResult(w, a.Result, funcName)
}
