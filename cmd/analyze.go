package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/absint/analyze"
	"github.com/gnolang/absint/formatter"
	"github.com/gnolang/absint/internal/store"
	tt "github.com/gnolang/absint/internal/types"
)

var (
	ignoreRules string
	jsonOutput  bool
	outPath     string
	dbPath      string
	cacheDir    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [paths...]",
	Short: "Analyze files and report defects",
	Long: `Analyzes .air modules and Go files and reports the defects found.
Directories are walked recursively. Example) absint analyze --json ./testdata`,
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide file or directory paths")
			os.Exit(1)
		}

		if code := analyzePaths(args); code != 0 {
			os.Exit(code)
		}
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&ignoreRules, "ignore", "", "Comma-separated list of rules to ignore")
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output issues in JSON format")
	analyzeCmd.Flags().StringVarP(&outPath, "output", "o", "", "Output path (when using JSON)")
	analyzeCmd.Flags().StringVar(&dbPath, "db", "", "SQLite database recording each run")
	analyzeCmd.Flags().StringVar(&cacheDir, "cache", "", "Directory caching the issues of unchanged files")
}

// analyzePaths runs the analyze command and returns its exit code: 1
// when issues were found or a file failed.
func analyzePaths(paths []string) int {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	engine := newEngine()
	for _, rule := range splitList(ignoreRules) {
		engine.IgnoreRule(rule)
	}

	if dbPath != "" {
		s, err := store.Open(dbPath)
		if err != nil {
			logger.Error("Failed to open result database", zap.Error(err))
			return 1
		}
		defer s.Close()
		engine.SetStore(s)
	}

	if cacheDir != "" {
		cache, err := analyze.NewCache(cacheDir, 0)
		if err != nil {
			logger.Error("Failed to open cache", zap.Error(err))
			return 1
		}
		engine.SetCache(cache)
		defer func() {
			if err := cache.Save(); err != nil {
				logger.Error("Failed to save cache", zap.Error(err))
			}
		}()
	}

	n, err := runAnalysis(ctx, logger, engine, paths, jsonOutput, outPath, os.Stdout)
	if err != nil {
		logger.Error("Error processing files", zap.Error(err))
		return 1
	}
	if n > 0 {
		return 1
	}
	return 0
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// runAnalysis analyzes paths and prints the issues to w, or to outPath in
// JSON mode. It returns the number of issues.
func runAnalysis(
	ctx context.Context,
	logger *zap.Logger,
	engine analyze.AnalysisEngine,
	paths []string,
	isJSON bool,
	outPath string,
	w io.Writer,
) (int, error) {
	issues, err := analyze.ProcessFiles(ctx, logger, engine, paths, analyze.ProcessFile)
	if err != nil {
		return len(issues), err
	}
	if err := printIssues(logger, issues, isJSON, outPath, w); err != nil {
		return len(issues), err
	}
	return len(issues), nil
}

func printIssues(logger *zap.Logger, issues []tt.Issue, isJSON bool, outPath string, w io.Writer) error {
	if isJSON {
		if outPath == "" {
			return formatter.WriteJSON(w, issues)
		}
		f, err := os.Create(outPath)
		if err != nil {
			return fmt.Errorf("creating JSON output file: %w", err)
		}
		defer f.Close()
		return formatter.WriteJSON(f, issues)
	}

	issuesByFile := make(map[string][]tt.Issue)
	for _, issue := range issues {
		issuesByFile[issue.Filename] = append(issuesByFile[issue.Filename], issue)
	}
	sortedFiles := make([]string, 0, len(issuesByFile))
	for filename := range issuesByFile {
		sortedFiles = append(sortedFiles, filename)
	}
	sort.Strings(sortedFiles)

	for _, filename := range sortedFiles {
		sourceCode, err := tt.ReadSourceCode(filename)
		if err != nil {
			logger.Error("Error reading source file", zap.String("file", filename), zap.Error(err))
			sourceCode = tt.NewSourceCode("")
		}
		fmt.Fprintln(w, formatter.GenerateFormattedIssue(issuesByFile[filename], sourceCode))
	}
	return nil
}
