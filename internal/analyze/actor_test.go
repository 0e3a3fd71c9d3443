package analyze

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func jobs(ids ...string) QueueData {
	q := QueueData{}
	for _, id := range ids {
		q.Jobs = append(q.Jobs, Job{ID: id, PromptPath: id + ".prompt.md", OutputPath: id + ".md", Status: StatusPending})
	}
	return q
}

func newTestActor(t *testing.T, q QueueData) (*Actor, *Store) {
	t.Helper()
	store := NewStore(afero.NewMemMapFs(), "/state/analyze-queue.json")
	require.NoError(t, store.Write(q))
	a := NewActor(store, nil)
	t.Cleanup(a.Close)
	return a, store
}

func TestActor_ClaimBatchIsFIFOAndPersisted(t *testing.T) {
	ctx := context.Background()
	q := jobs("a", "b", "c", "d", "e")
	q.Jobs[1].Status = StatusDone
	a, store := newTestActor(t, q)

	claimed, err := a.ClaimBatch(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, jobIDs(claimed))
	for _, j := range claimed {
		assert.Equal(t, StatusRunning, j.Status)
	}

	onDisk, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, 3, onDisk.Count(StatusRunning))
	assert.Equal(t, StatusPending, onDisk.Jobs[4].Status)
	assert.EqualValues(t, 1, a.Revision())
}

func TestActor_ClaimBatchNothingPending(t *testing.T) {
	q := jobs("a")
	q.Jobs[0].Status = StatusFailed
	a, _ := newTestActor(t, q)

	claimed, err := a.ClaimBatch(context.Background(), 3)
	require.NoError(t, err)
	assert.Empty(t, claimed)
	assert.EqualValues(t, 0, a.Revision(), "an empty claim should not write")
}

func TestActor_ApplyUsesFreshRead(t *testing.T) {
	ctx := context.Background()
	a, store := newTestActor(t, jobs("a", "b"))

	_, err := a.ClaimBatch(ctx, 1)
	require.NoError(t, err)

	// Another writer appends a job between claim and apply.
	q, err := store.Read()
	require.NoError(t, err)
	q.Jobs = append(q.Jobs, Job{ID: "c", Status: StatusPending})
	require.NoError(t, store.Write(q))

	got, err := a.Apply(ctx, []Outcome{{JobID: "a", Status: StatusDone}, {JobID: "gone", Status: StatusFailed}})
	require.NoError(t, err)
	require.Len(t, got.Jobs, 3)
	assert.Equal(t, StatusDone, got.Jobs[0].Status)
	assert.Equal(t, StatusPending, got.Jobs[2].Status)
}

func TestActor_ConcurrentAppliesAreNotLost(t *testing.T) {
	ctx := context.Background()
	ids := make([]string, 20)
	for i := range ids {
		ids[i] = fmt.Sprintf("job-%02d", i)
	}
	a, store := newTestActor(t, jobs(ids...))

	var wg sync.WaitGroup
	for _, id := range ids {
		id := id
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Apply(ctx, []Outcome{{JobID: id, Status: StatusDone}})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	q, err := store.Read()
	require.NoError(t, err)
	assert.Equal(t, len(ids), q.Count(StatusDone))
}

func TestActor_ResetRunning(t *testing.T) {
	q := jobs("a", "b", "c")
	q.Jobs[0].Status = StatusRunning
	q.Jobs[1].Status = StatusDone
	a, _ := newTestActor(t, q)

	n, err := a.ResetRunning(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := a.Read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Jobs[0].Status)
	assert.Equal(t, StatusDone, got.Jobs[1].Status)
}

func TestActor_Closed(t *testing.T) {
	a, _ := newTestActor(t, jobs("a"))
	a.Close()
	_, err := a.Read(context.Background())
	assert.ErrorIs(t, err, ErrActorClosed)
}
