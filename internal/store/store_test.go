package store

import (
	"context"
	"go/token"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/absint/internal/analysis/interp"
	"github.com/gnolang/absint/internal/ir"
	tt "github.com/gnolang/absint/internal/types"
)

func open(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "absint.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenIsIdempotent(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "absint.db")
	s1, err := Open(path)
	require.NoError(t, err)
	_, err = s1.SaveRun(context.Background(), &Run{Module: "m"})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()
	runs, err := s2.Runs(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSaveAndReadRun(t *testing.T) {
	t.Parallel()
	s := open(t)
	ctx := context.Background()
	pos := token.Position{Filename: "a.air", Line: 4, Column: 3}
	run := &Run{
		Module: "a.air",
		Config: "name: absint\n",
		Defects: []tt.Issue{
			{Rule: "division-by-zero", Category: "arithmetic", Filename: "a.air", Function: "main",
				Block: "entry", Message: "divisor may be zero", Note: "%t1 = sdiv i32 10, %t0",
				Severity: tt.SeverityWarning, Start: pos, End: pos},
			{Rule: "contract", Category: "contract", Filename: "a.air", Function: "main",
				Block: "exit", Message: "assertion always fails", Severity: tt.SeverityError},
		},
		States: []StateDump{
			{Function: "main", Block: "entry", Phase: PhaseIn, Dump: ""},
			{Function: "main", Block: "entry", Phase: PhaseOut, Dump: "%x = 1\n"},
		},
	}
	id, err := s.SaveRun(ctx, run)
	require.NoError(t, err)
	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.False(t, run.StartedAt.IsZero())

	defects, err := s.Defects(ctx, id)
	require.NoError(t, err)
	require.Len(t, defects, 2)
	assert.Equal(t, run.Defects[0], defects[0])
	assert.Equal(t, "assertion always fails", defects[1].Message)
	assert.Equal(t, tt.SeverityError, defects[1].Severity)

	states, err := s.States(ctx, id, "main")
	require.NoError(t, err)
	assert.Equal(t, run.States, states)
	states, err = s.States(ctx, id, "other")
	require.NoError(t, err)
	assert.Empty(t, states)

	_, err = s.SaveRun(ctx, &Run{ID: id, Module: "a.air"})
	assert.Error(t, err, "duplicate run id")
}

func TestRunsAreNewestFirst(t *testing.T) {
	t.Parallel()
	s := open(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, module := range []string{"a.air", "b.air", "a.air"} {
		_, err := s.SaveRun(ctx, &Run{Module: module, StartedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	all, err := s.Runs(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[0].StartedAt.Equal(base.Add(2*time.Minute)))

	a, err := s.Runs(ctx, "a.air")
	require.NoError(t, err)
	require.Len(t, a, 2)
	assert.True(t, a[0].StartedAt.After(a[1].StartedAt))
}

func TestDumps(t *testing.T) {
	t.Parallel()
	m := ir.NewModule("m")
	fn := m.NewFunction("main", ir.FuncOf(ir.I32))
	entry := fn.NewBlock("entry")
	dead := fn.NewBlock("dead")
	b := ir.NewBuilder(entry)
	x := b.Named("x").Binary(ir.OpAdd, ir.NewInt(ir.I32, 1), ir.NewInt(ir.I32, 2))
	b.Ret(x)
	b.SetBlock(dead)
	b.Ret(ir.NewInt(ir.I32, 0))

	ctx, err := interp.NewContext(m, interp.DefaultConfig(), nil)
	require.NoError(t, err)
	res, err := interp.New(ctx).Run()
	require.NoError(t, err)

	dumps, err := Dumps(res)
	require.NoError(t, err)
	require.Len(t, dumps, 2)
	assert.Equal(t, StateDump{Function: "main", Block: "entry", Phase: PhaseIn}, dumps[0])
	assert.Equal(t, "main", dumps[1].Function)
	assert.Equal(t, PhaseOut, dumps[1].Phase)
	assert.Contains(t, dumps[1].Dump, "%x = 3\n")
	assert.Contains(t, dumps[1].Dump, "ret 3\n")
}
