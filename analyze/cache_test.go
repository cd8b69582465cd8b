package analyze

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const divSource = "define i32 @main() {\nentry:\n  %x = sdiv i32 1, 0\n  ret i32 %x\n}\n"

func TestCacheHitAndInvalidation(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "m.air")
	require.NoError(t, os.WriteFile(file, []byte(divSource), 0o644))

	cache, err := NewCache(filepath.Join(dir, "cache"), 0)
	require.NoError(t, err)
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	engine.SetCache(cache)

	first, err := engine.Run(file)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 1, cache.Len())

	// an entry for the same content is served without analysis
	cache.set(file, mustHash(t, engine, file), nil)
	cached, err := engine.Run(file)
	require.NoError(t, err)
	assert.Empty(t, cached)

	// changing the file invalidates the entry
	require.NoError(t, os.WriteFile(file, []byte(divSource+"\n"), 0o644))
	again, err := engine.Run(file)
	require.NoError(t, err)
	assert.Len(t, again, 1)

	// ignoring a rule changes the key
	engine.IgnoreRule("division-by-zero")
	ignored, err := engine.Run(file)
	require.NoError(t, err)
	assert.Empty(t, ignored)
}

func TestCachePersistence(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	file := filepath.Join(dir, "m.air")
	require.NoError(t, os.WriteFile(file, []byte(divSource), 0o644))

	cache, err := NewCache(dir, 0)
	require.NoError(t, err)
	engine, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	engine.SetCache(cache)
	_, err = engine.Run(file)
	require.NoError(t, err)
	require.NoError(t, cache.Save())

	reopened, err := NewCache(dir, 0)
	require.NoError(t, err)
	issues, ok := reopened.get(file, mustHash(t, engine, file))
	require.True(t, ok)
	require.Len(t, issues, 1)
	assert.Equal(t, "division-by-zero", issues[0].Rule)

	reopened.InvalidateAll()
	assert.Zero(t, reopened.Len())
}

func TestCacheMaxAge(t *testing.T) {
	t.Parallel()
	cache, err := NewCache(t.TempDir(), time.Nanosecond)
	require.NoError(t, err)
	cache.set("f.air", "h", nil)
	time.Sleep(time.Millisecond)
	_, ok := cache.get("f.air", "h")
	assert.False(t, ok)
}

func mustHash(t *testing.T, e *Engine, file string) string {
	t.Helper()
	src, err := os.ReadFile(file)
	require.NoError(t, err)
	return contentHash(src, e.digest, []byte(""))
}
