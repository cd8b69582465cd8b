package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gnolang/absint/analyze"
)

var divFile = filepath.Join("..", "analyze", "testdata", "div.air")

func testEngine(t *testing.T) *analyze.Engine {
	t.Helper()
	engine, err := analyze.New(analyze.DefaultConfig(), zap.NewNop())
	require.NoError(t, err)
	return engine
}

func TestRunAnalysisText(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	n, err := runAnalysis(context.Background(), zap.NewNop(), testEngine(t), []string{divFile}, false, "", &out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, out.String(), "division-by-zero")
	assert.Contains(t, out.String(), "sdiv i32 100, 0")
}

func TestRunAnalysisJSON(t *testing.T) {
	t.Parallel()
	outFile := filepath.Join(t.TempDir(), "issues.json")
	n, err := runAnalysis(context.Background(), zap.NewNop(), testEngine(t), []string{divFile}, true, outFile, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(outFile)
	require.NoError(t, err)
	var byFile map[string][]map[string]any
	require.NoError(t, json.Unmarshal(data, &byFile))
	require.Len(t, byFile[divFile], 1)
	assert.Equal(t, "division-by-zero", byFile[divFile][0]["rule"])
	assert.Equal(t, float64(7), byFile[divFile][0]["line"])
}

func TestRunAnalysisIgnore(t *testing.T) {
	t.Parallel()
	engine := testEngine(t)
	for _, rule := range splitList(" division-by-zero, ,contract") {
		engine.IgnoreRule(rule)
	}
	var out bytes.Buffer
	n, err := runAnalysis(context.Background(), zap.NewNop(), engine, []string{divFile}, false, "", &out)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, out.String())
}

func TestRunDump(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	require.NoError(t, runDump(testEngine(t), divFile, "main", &out))
	assert.Contains(t, out.String(), "@main returns")
	assert.Contains(t, out.String(), "entry\n  in\n")

	err := runDump(testEngine(t), divFile, "nope", &out)
	assert.ErrorContains(t, err, "function not found")
}

func TestRunCFG(t *testing.T) {
	t.Parallel()
	var out bytes.Buffer
	require.NoError(t, runCFG(testEngine(t), divFile, "main", "", false, &out))
	assert.Contains(t, out.String(), "CFG for function main")
	assert.Contains(t, out.String(), `"entry" -> "big"`)
	assert.Contains(t, out.String(), `"entry" -> "small"`)

	err := runCFG(testEngine(t), divFile, "absint.nondet", "", false, &out)
	assert.ErrorContains(t, err, "function not found")
}

func TestRunCFGReachable(t *testing.T) {
	t.Parallel()
	src := "define i32 @main() {\nentry:\n  br i1 false, label %dead, label %live\n\ndead:\n  ret i32 1\n\nlive:\n  ret i32 0\n}\n"
	path := filepath.Join(t.TempDir(), "dead.air")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	var out bytes.Buffer
	require.NoError(t, runCFG(testEngine(t), path, "main", "", true, &out))
	assert.Contains(t, out.String(), `"entry" -> "dead (unreachable)"`)
	assert.Contains(t, out.String(), `"entry" -> "live"`)
}

func TestInitConfigurationFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "absint.yaml")
	got, err := initConfigurationFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	config, err := analyze.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, analyze.DefaultConfig(), config)
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	for _, verbose := range []bool{false, true} {
		l, err := newLogger(verbose)
		require.NoError(t, err)
		assert.Equal(t, verbose, l.Core().Enabled(zap.DebugLevel))
	}
}
