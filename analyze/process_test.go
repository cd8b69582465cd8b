package analyze

import (
	"context"
	"errors"
	"fmt"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	tt "github.com/gnolang/absint/internal/types"
)

func init() {
	Progress = nil
}

type mockAnalysisEngine struct {
	mock.Mock
}

func (m *mockAnalysisEngine) Run(filePath string) ([]tt.Issue, error) {
	args := m.Called(filePath)
	return args.Get(0).([]tt.Issue), args.Error(1)
}

func (m *mockAnalysisEngine) IgnoreRule(rule string) {
	m.Called(rule)
}

func TestProcessFile(t *testing.T) {
	t.Parallel()
	expectedIssues := []tt.Issue{
		{
			Rule:     "test-rule",
			Filename: "test.air",
			Start:    token.Position{Filename: "test.air", Line: 1, Column: 1},
			End:      token.Position{Filename: "test.air", Line: 1, Column: 11},
			Message:  "Test issue",
		},
	}
	mockEngine := new(mockAnalysisEngine)
	mockEngine.On("Run", "test.air").Return(expectedIssues, nil)

	issues, err := ProcessFile(mockEngine, "test.air")

	assert.NoError(t, err)
	assert.Equal(t, expectedIssues, issues)
	mockEngine.AssertExpectations(t)
}

func TestProcessPathDirectory(t *testing.T) {
	t.Parallel()
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	issues, err := ProcessPath(context.Background(), nil, engine, filepath.Join("testdata", "project"), ProcessFile)
	require.NoError(t, err)
	require.Len(t, issues, 1)
	assert.Equal(t, filepath.Join("testdata", "project", "sub", "zero.air"), issues[0].Filename)
	assert.Equal(t, "division-by-zero", issues[0].Rule)
}

func TestProcessPathSkipsOtherFiles(t *testing.T) {
	t.Parallel()
	mockEngine := new(mockAnalysisEngine)

	issues, err := ProcessPath(context.Background(), nil, mockEngine, filepath.Join("testdata", "project", "notes.txt"), ProcessFile)
	require.NoError(t, err)
	assert.Empty(t, issues)
	mockEngine.AssertNotCalled(t, "Run", mock.Anything)
}

func TestProcessPathContextCancellation(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	for i := 0; i < 10; i++ {
		filename := filepath.Join(tempDir, fmt.Sprintf("test%d.air", i))
		require.NoError(t, os.WriteFile(filename, []byte("define void @main() {\nentry:\n  ret void\n}\n"), 0o644))
	}
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	issues, err := ProcessPath(ctx, nil, engine, tempDir, ProcessFile)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotNil(t, issues)
}

func TestProcessPathOrdering(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	for i := 0; i < 5; i++ {
		filename := filepath.Join(tempDir, fmt.Sprintf("test%d.air", i))
		require.NoError(t, os.WriteFile(filename, []byte("define i32 @main() {\nentry:\n  %x = sdiv i32 1, 0\n  ret i32 %x\n}\n"), 0o644))
	}
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	issues, err := ProcessPath(context.Background(), nil, engine, tempDir, ProcessFile)
	require.NoError(t, err)
	require.Len(t, issues, 5)
	for i, is := range issues {
		assert.Equal(t, filepath.Join(tempDir, fmt.Sprintf("test%d.air", i)), is.Filename)
	}
}

func TestProcessPathWithErrors(t *testing.T) {
	t.Parallel()
	tempDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "valid.air"),
		[]byte("define i32 @main() {\nentry:\n  %x = sdiv i32 1, 0\n  ret i32 %x\n}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(tempDir, "invalid.air"), []byte("this is not valid IR"), 0o644))

	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)

	issues, err := ProcessPath(context.Background(), nil, engine, tempDir, ProcessFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid.air")
	// the valid file is still reported
	assert.Len(t, issues, 1)
}

func TestProcessPathSingleFileError(t *testing.T) {
	t.Parallel()
	mockEngine := new(mockAnalysisEngine)
	failure := errors.New("boom")
	path := filepath.Join("testdata", "div.air")
	mockEngine.On("Run", path).Return([]tt.Issue(nil), failure)

	issues, err := ProcessPath(context.Background(), nil, mockEngine, path, ProcessFile)
	assert.ErrorIs(t, err, failure)
	assert.Equal(t, []tt.Issue{}, issues)
	mockEngine.AssertExpectations(t)
}

func TestProcessFiles(t *testing.T) {
	t.Parallel()
	mockEngine := new(mockAnalysisEngine)
	a := filepath.Join("testdata", "div.air")
	b := filepath.Join("testdata", "contract.air")
	mockEngine.On("Run", a).Return([]tt.Issue{{Rule: "r1"}}, nil)
	mockEngine.On("Run", b).Return([]tt.Issue{{Rule: "r2"}}, nil)

	issues, err := ProcessFiles(context.Background(), nil, mockEngine, []string{a, b}, ProcessFile)
	require.NoError(t, err)
	assert.Equal(t, []tt.Issue{{Rule: "r1"}, {Rule: "r2"}}, issues)

	_, err = ProcessFiles(context.Background(), nil, mockEngine, []string{"testdata/none"}, ProcessFile)
	assert.ErrorContains(t, err, "error accessing")
}
