package analyze

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/absint/internal/store"
	tt "github.com/gnolang/absint/internal/types"
)

func TestEngineRunAir(t *testing.T) {
	t.Parallel()
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	path := filepath.Join("testdata", "div.air")
	issues, err := engine.Run(path)
	require.NoError(t, err)
	require.Len(t, issues, 1)

	is := issues[0]
	assert.Equal(t, "division-by-zero", is.Rule)
	assert.Equal(t, path, is.Filename)
	assert.Equal(t, "main", is.Function)
	assert.Equal(t, "entry", is.Block)
	assert.Equal(t, 7, is.Start.Line)
	assert.Equal(t, tt.SeverityWarning, is.Severity)
}

func TestEngineIgnoreRule(t *testing.T) {
	t.Parallel()
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	engine.IgnoreRule("division-by-zero")

	issues, err := engine.Run(filepath.Join("testdata", "div.air"))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestEngineContracts(t *testing.T) {
	t.Parallel()
	engine, err := NewFromFile(filepath.Join("testdata", "contract.yaml"), nil)
	require.NoError(t, err)
	assert.Equal(t, "contract-test", engine.Config().Name)
	assert.Equal(t, 2, engine.Config().Analysis.WideningDelay)

	issues, err := engine.Run(filepath.Join("testdata", "contract.air"))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, "contract", issues[0].Rule)
	assert.Equal(t, 9, issues[0].Start.Line)
	assert.Equal(t, tt.SeverityWarning, issues[0].Severity)
	assert.Contains(t, issues[0].Message, "requires arg0 ge 0 of half")
}

func TestEngineRunGo(t *testing.T) {
	t.Parallel()
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	issues, err := engine.Run(filepath.Join("testdata", "index.go"))
	require.NoError(t, err)

	var rules []string
	for _, is := range issues {
		rules = append(rules, is.Rule)
		assert.True(t, strings.HasSuffix(is.Filename, "index.go"), is.Filename)
	}
	assert.Contains(t, rules, "out-of-bounds")
}

func TestEngineRunSource(t *testing.T) {
	t.Parallel()
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	src := "define i32 @f(i32 %d) {\nentry:\n  %q = sdiv i32 1, %d\n  ret i32 %q\n}\n"
	issues, err := engine.RunSource("mem.air", []byte(src))
	require.NoError(t, err)
	assert.Empty(t, issues, "an unknown divisor is not reported")

	_, err = engine.RunSource("mem.c", []byte(src))
	assert.ErrorIs(t, err, ErrUnsupportedFile)
}

func TestEngineNolint(t *testing.T) {
	t.Parallel()
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	src := "define i32 @main() {\nentry:\n  %a = sdiv i32 1, 0 ; nolint:division-by-zero\n  %b = sdiv i32 2, 0\n  ret i32 %b\n}\n"
	issues, err := engine.RunSource("quiet.air", []byte(src))
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, 4, issues[0].Start.Line)

	goSrc := "package main\n\nvar sink int\n\nfunc main() {\n\tz := 0\n\tsink = 1 / z //nolint\n}\n"
	issues, err = engine.RunSource("quiet.go", []byte(goSrc))
	require.NoError(t, err)
	assert.Empty(t, issues)
}

func TestEngineErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		path   string
		errMsg string
	}{
		{"missing", filepath.Join("testdata", "missing.air"), "error reading file"},
		{"extension", filepath.Join("testdata", "project", "notes.txt"), "unsupported file type"},
	}
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := engine.Run(tc.path)
			assert.ErrorContains(t, err, tc.errMsg)
		})
	}
}

func TestEngineMissingContracts(t *testing.T) {
	t.Parallel()
	config := DefaultConfig()
	config.Contracts = filepath.Join("testdata", "nope.yaml")
	_, err := New(config, nil)
	assert.ErrorContains(t, err, "loading contracts")
}

func TestEngineStore(t *testing.T) {
	t.Parallel()
	s, err := store.Open(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	defer s.Close()

	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	engine.SetStore(s)

	_, err = engine.Run(filepath.Join("testdata", "div.air"))
	require.NoError(t, err)

	ctx := context.Background()
	runs, err := s.Runs(ctx, "div")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Contains(t, runs[0].Config, "widening_delay: 3")

	defects, err := s.Defects(ctx, runs[0].ID)
	require.NoError(t, err)
	require.Len(t, defects, 1)
	assert.Equal(t, "division-by-zero", defects[0].Rule)

	states, err := s.States(ctx, runs[0].ID, "main")
	require.NoError(t, err)
	assert.NotEmpty(t, states)
}

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	config, err := LoadConfig(filepath.Join("testdata", "contract.yaml"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("testdata", "contracts.yaml"), config.Contracts)
	assert.Equal(t, tt.SeverityWarning, config.Rules["contract"].Severity)
	// settings the file leaves out keep their defaults
	assert.Equal(t, 8, config.Analysis.MaxCallDepth)
	assert.True(t, config.Analysis.RefineBranches)

	_, err = LoadConfig(filepath.Join("testdata", "missing.yaml"))
	assert.Error(t, err)

	_, err = ParseConfig([]byte("analysis:\n  max_call_depth: -1\n"))
	assert.ErrorContains(t, err, "must not be negative")

	_, err = ParseConfig([]byte("rules:\n  contract: {severity: loud}\n"))
	assert.ErrorContains(t, err, "unknown severity")
}

func TestWriteConfigRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), DefaultConfigFile)
	require.NoError(t, WriteConfig(path, DefaultConfig()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "division-by-zero:")
	assert.Contains(t, string(data), "severity: warning")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), config)
}
