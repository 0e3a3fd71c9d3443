package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/runctl/internal/run"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	zero, three := 0, 3

	require.NoError(t, s.Record(ctx, Entry{ID: "run-a", Label: "Terminal 1", Slot: 1, StartedAt: base, DoneAt: base.Add(time.Second), Duration: time.Second, ExitCode: &zero}))
	require.NoError(t, s.Record(ctx, Entry{ID: "run-b", Label: "Terminal 2", Slot: 2, StartedAt: base.Add(time.Minute), ExitCode: &three}))
	require.NoError(t, s.Record(ctx, Entry{ID: "run-c", Label: "Analyze: design", OnComplete: "analyze-doc", OutputPath: "design.md", StartedAt: base.Add(2 * time.Minute)}))

	got, err := s.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "run-c", got[0].ID)
	assert.Equal(t, "analyze-doc", got[0].OnComplete)
	assert.Nil(t, got[0].ExitCode)
	assert.True(t, got[0].DoneAt.IsZero())
	assert.Equal(t, "run-b", got[1].ID)
	require.NotNil(t, got[1].ExitCode)
	assert.Equal(t, 3, *got[1].ExitCode)

	all, err := s.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.True(t, all[2].StartedAt.Equal(base))
	assert.True(t, all[2].DoneAt.Equal(base.Add(time.Second)))
	assert.Equal(t, time.Second, all[2].Duration)
}

func TestStore_RecordUpserts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	start := time.Now().Truncate(time.Millisecond)

	require.NoError(t, s.Record(ctx, Entry{ID: "run-a", Label: "first", StartedAt: start}))
	require.NoError(t, s.Record(ctx, Entry{ID: "run-a", Label: "second", StartedAt: start}))

	got, err := s.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "second", got[0].Label)
}

func TestStore_RecordRun(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	reg := run.NewRegistry()
	_, err := reg.Create("run-x", "Implement All (Terminal 2)", &run.Meta{Slot: 2, OnComplete: "plan"})
	require.NoError(t, err)
	reg.MarkDone("run-x", time.Now())
	reg.SetExitCode("run-x", 1)
	r, _ := reg.Select("run-x")

	require.NoError(t, s.RecordRun(ctx, r))
	got, err := s.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Slot)
	assert.Equal(t, "plan", got[0].OnComplete)
	require.NotNil(t, got[0].ExitCode)
	assert.Equal(t, 1, *got[0].ExitCode)
	assert.False(t, got[0].DoneAt.IsZero())
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Record(context.Background(), Entry{ID: "run-a", Label: "a", StartedAt: time.Now()}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()
	got, err := s.Recent(context.Background(), 5)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
