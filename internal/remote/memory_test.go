package remote

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder collects deliveries from a subscription.
type recorder struct {
	mu      sync.Mutex
	batches [][]Change
}

func (r *recorder) handle(batch []Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

func (r *recorder) changes() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Change
	for _, b := range r.batches {
		out = append(out, b...)
	}
	return out
}

func (r *recorder) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func TestCollectionPath(t *testing.T) {
	p := CollectionPath("u1", "todos")
	assert.Equal(t, "users/u1/todos", p)

	uid, col, err := SplitPath(p)
	require.NoError(t, err)
	assert.Equal(t, "u1", uid)
	assert.Equal(t, "todos", col)

	_, _, err = SplitPath("todos")
	assert.Error(t, err)
}

func TestMemorySubscribeDeliversSnapshotThenChanges(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	path := CollectionPath("u1", "todos")

	require.NoError(t, m.Put(ctx, path, "b", []byte(`{"id":"b"}`)))
	require.NoError(t, m.Put(ctx, path, "a", []byte(`{"id":"a"}`)))

	rec := &recorder{}
	sub, err := m.Subscribe(ctx, path, rec.handle)
	require.NoError(t, err)
	defer sub.Stop()

	require.Eventually(t, func() bool { return rec.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	initial := rec.changes()
	require.Len(t, initial, 2)
	assert.Equal(t, "a", initial[0].ID)
	assert.Equal(t, Added, initial[0].Op)

	require.NoError(t, m.Put(ctx, path, "a", []byte(`{"id":"a","v":2}`)))
	require.NoError(t, m.Delete(ctx, path, "b"))
	require.NoError(t, m.Put(ctx, path, "c", []byte(`{"id":"c"}`)))

	require.Eventually(t, func() bool { return len(rec.changes()) == 5 }, time.Second, 5*time.Millisecond)
	got := rec.changes()[2:]
	assert.Equal(t, Change{Op: Modified, ID: "a", Doc: []byte(`{"id":"a","v":2}`)}, got[0])
	assert.Equal(t, Change{Op: Removed, ID: "b"}, got[1])
	assert.Equal(t, Added, got[2].Op)
}

func TestMemoryInjectDeliversOneBatch(t *testing.T) {
	m := NewMemory()
	path := CollectionPath("u1", "subtasks")
	rec := &recorder{}
	sub, err := m.Subscribe(context.Background(), path, rec.handle)
	require.NoError(t, err)
	defer sub.Stop()

	m.Inject(path,
		Change{Op: Added, ID: "x", Doc: []byte(`{}`)},
		Change{Op: Added, ID: "y", Doc: []byte(`{}`)},
		Change{Op: Removed, ID: "x"},
	)

	require.Eventually(t, func() bool { return rec.batchCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Len(t, rec.changes(), 3)
	assert.Equal(t, 1, m.Len(path))
}

func TestMemoryStopEndsDelivery(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	path := CollectionPath("u1", "todos")
	rec := &recorder{}
	sub, err := m.Subscribe(ctx, path, rec.handle)
	require.NoError(t, err)

	sub.Stop()
	sub.Stop()
	require.NoError(t, m.Put(ctx, path, "a", []byte(`{}`)))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, rec.batchCount())
}

func TestMemoryFailWrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	path := CollectionPath("u1", "todos")
	boom := errors.New("offline")

	m.FailWrites(boom)
	assert.ErrorIs(t, m.Put(ctx, path, "a", []byte(`{}`)), boom)
	assert.ErrorIs(t, m.Delete(ctx, path, "a"), boom)

	m.FailWrites(nil)
	assert.NoError(t, m.Put(ctx, path, "a", []byte(`{}`)))
	_, ok := m.Doc(path, "a")
	assert.True(t, ok)
}

func TestMemoryPathsAreIsolated(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	rec := &recorder{}
	sub, err := m.Subscribe(ctx, CollectionPath("u2", "todos"), rec.handle)
	require.NoError(t, err)
	defer sub.Stop()

	require.NoError(t, m.Put(ctx, CollectionPath("u1", "todos"), "a", []byte(`{}`)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, rec.batchCount())
}
