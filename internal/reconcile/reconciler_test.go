package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/sadopc/done/internal/model"
	"github.com/sadopc/done/internal/remote"
	"github.com/sadopc/done/internal/store"
)

const waitFor = 2 * time.Second

func newTarget(t *testing.T) Target {
	t.Helper()
	st, err := store.NewMemory()
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return Target{Store: st, Cache: model.NewCache()}
}

func newReconciler(t *testing.T, r remote.Remote, opts ...Option) (*Reconciler, *Metrics) {
	t.Helper()
	m := NewMetrics(prometheus.NewRegistry())
	rc := New(r, zap.NewNop(), append([]Option{WithMetrics(m)}, opts...)...)
	t.Cleanup(rc.Detach)
	return rc, m
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func TestAttachIngestsRemoteSnapshot(t *testing.T) {
	mem := remote.NewMemory()
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, mem.Put(ctx, remote.CollectionPath("u1", CollectionTodos), "i1",
		mustJSON(t, model.Item{ID: "i1", Title: "From other device", Status: model.ItemPending, CreatedAt: now, UpdatedAt: now})))
	require.NoError(t, mem.Put(ctx, remote.CollectionPath("u1", CollectionSubtasks), "s1",
		[]byte(`{"id":"s1","todoId":"i1","title":"legacy","completed":true}`)))

	tgt := newTarget(t)
	rc, m := newReconciler(t, mem)
	require.NoError(t, rc.Attach(ctx, "u1", tgt))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Sessions))

	require.Eventually(t, func() bool {
		_, ok := tgt.Cache.Subtask("s1")
		_, ok2 := tgt.Cache.Item("i1")
		return ok && ok2
	}, waitFor, 5*time.Millisecond)

	it, err := tgt.Store.Items().Get(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, "From other device", it.Title)

	s, _ := tgt.Cache.Subtask("s1")
	assert.Equal(t, model.SubtaskCompleted, s.Status, "status is derived for legacy documents")
}

func TestIngestLastWriteWins(t *testing.T) {
	mem := remote.NewMemory()
	ctx := context.Background()
	tgt := newTarget(t)

	older := time.Now().UTC().Add(-time.Hour)
	local := model.Item{ID: "i1", Title: "Local", Status: model.ItemPending, CreatedAt: older, UpdatedAt: older}
	require.NoError(t, tgt.Store.Items().Put(ctx, local))
	tgt.Cache.Load(model.Snapshot{Items: []model.Item{local}})

	rc, _ := newReconciler(t, mem)
	require.NoError(t, rc.Attach(ctx, "u1", tgt))

	newer := local
	newer.Title = "Remote"
	newer.UpdatedAt = time.Now().UTC()
	mem.Inject(remote.CollectionPath("u1", CollectionTodos),
		remote.Change{Op: remote.Added, ID: "i1", Doc: mustJSON(t, newer)})

	require.Eventually(t, func() bool {
		it, _ := tgt.Cache.Item("i1")
		return it.Title == "Remote"
	}, waitFor, 5*time.Millisecond)

	assert.Len(t, tgt.Cache.Items(), 1, "no duplicate entry")
	stored, err := tgt.Store.Items().All(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "Remote", stored[0].Title)
}

func TestIngestRemovedDelta(t *testing.T) {
	mem := remote.NewMemory()
	ctx := context.Background()
	tgt := newTarget(t)
	cm := model.Comment{ID: "c1", TodoID: "i1", Text: "hi", CreatedAt: time.Now().UTC()}
	require.NoError(t, tgt.Store.Comments().Put(ctx, cm))
	tgt.Cache.Load(model.Snapshot{Comments: []model.Comment{cm}})

	rc, _ := newReconciler(t, mem)
	require.NoError(t, rc.Attach(ctx, "u1", tgt))
	mem.Inject(remote.CollectionPath("u1", CollectionComments), remote.Change{Op: remote.Removed, ID: "c1"})

	require.Eventually(t, func() bool {
		_, ok := tgt.Cache.Comment("c1")
		return !ok
	}, waitFor, 5*time.Millisecond)
	_, err := tgt.Store.Comments().Get(ctx, "c1")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestIngestSkipsBadDelta(t *testing.T) {
	mem := remote.NewMemory()
	ctx := context.Background()
	tgt := newTarget(t)

	core, logs := observer.New(zap.WarnLevel)
	m := NewMetrics(prometheus.NewRegistry())
	rc := New(mem, zap.New(core), WithMetrics(m))
	t.Cleanup(rc.Detach)
	require.NoError(t, rc.Attach(ctx, "u1", tgt))

	mem.Inject(remote.CollectionPath("u1", CollectionProjects),
		remote.Change{Op: remote.Added, ID: "p1", Doc: []byte(`{"id":"p1","title":"One"}`)},
		remote.Change{Op: remote.Added, ID: "bad", Doc: []byte(`{not json`)},
		remote.Change{Op: remote.Added, ID: "p2", Doc: []byte(`{"id":"p2","title":"Two"}`)},
	)

	require.Eventually(t, func() bool { return len(tgt.Cache.Projects()) == 2 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.IngestFailures.WithLabelValues(CollectionProjects)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Ingested.WithLabelValues(CollectionProjects, "added")))
	require.Equal(t, 1, logs.FilterMessage("skipping remote change").Len())
	assert.Equal(t, "bad", logs.FilterMessage("skipping remote change").All()[0].ContextMap()["id"])
}

func TestPushWritesDocument(t *testing.T) {
	mem := remote.NewMemory()
	ctx := context.Background()
	rc, m := newReconciler(t, mem)
	require.NoError(t, rc.Attach(ctx, "u1", newTarget(t)))

	it := model.Item{ID: "i1", Title: "Pushed", Status: model.ItemPending}
	require.NoError(t, rc.Push(ctx, "u1", CollectionTodos, it.ID, it))

	doc, ok := mem.Doc(remote.CollectionPath("u1", CollectionTodos), "i1")
	require.True(t, ok)
	var got model.Item
	require.NoError(t, json.Unmarshal(doc, &got))
	assert.Equal(t, "Pushed", got.Title)
	assert.NotContains(t, string(doc), "categoryId", "empty optional fields are stripped")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pushes.WithLabelValues(CollectionTodos, ResultOK)))

	require.NoError(t, rc.PushDelete(ctx, "u1", CollectionTodos, "i1"))
	_, ok = mem.Doc(remote.CollectionPath("u1", CollectionTodos), "i1")
	assert.False(t, ok)
}

func TestPushForStaleUserIsSuppressed(t *testing.T) {
	mem := remote.NewMemory()
	ctx := context.Background()
	rc, m := newReconciler(t, mem)
	require.NoError(t, rc.Attach(ctx, "u2", newTarget(t)))

	require.NoError(t, rc.Push(ctx, "u1", CollectionTodos, "i1", model.Item{ID: "i1"}))
	assert.Equal(t, 0, mem.Len(remote.CollectionPath("u1", CollectionTodos)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pushes.WithLabelValues(CollectionTodos, ResultSuppressed)))
}

func TestPushOffline(t *testing.T) {
	ctx := context.Background()
	rc, m := newReconciler(t, nil)
	require.NoError(t, rc.Attach(ctx, "u1", newTarget(t)))

	assert.NoError(t, rc.Push(ctx, "u1", CollectionTodos, "i1", model.Item{ID: "i1"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pushes.WithLabelValues(CollectionTodos, ResultOffline)))
}

func TestPushFailureIsSyncError(t *testing.T) {
	mem := remote.NewMemory()
	ctx := context.Background()
	rc, m := newReconciler(t, mem)
	require.NoError(t, rc.Attach(ctx, "u1", newTarget(t)))

	mem.FailWrites(errors.New("network down"))
	err := rc.Push(ctx, "u1", CollectionTodos, "i1", model.Item{ID: "i1"})
	assert.ErrorIs(t, err, model.ErrSync)
	var se *model.SyncError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, CollectionTodos, se.Collection)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pushes.WithLabelValues(CollectionTodos, ResultError)))
}

func TestEchoDuringRemoteBatchIsSuppressed(t *testing.T) {
	mem := remote.NewMemory()
	ctx := context.Background()
	tgt := newTarget(t)
	rc, m := newReconciler(t, mem)

	type echo struct {
		applying bool
		userID   string
		err      error
	}
	echoed := make(chan echo, 1)
	rc.OnApply(func(_ context.Context, userID, collection string, batch []remote.Change) {
		it, _ := tgt.Cache.Item(batch[0].ID)
		it.Title = "echo"
		// A plain context, as a facade mutation would use.
		err := rc.Push(context.Background(), "u1", collection, it.ID, it)
		echoed <- echo{applying: rc.Session().Applying(), userID: userID, err: err}
	})
	require.NoError(t, rc.Attach(ctx, "u1", tgt))

	mem.Inject(remote.CollectionPath("u1", CollectionTodos),
		remote.Change{Op: remote.Added, ID: "i1", Doc: []byte(`{"id":"i1","title":"remote"}`)})

	select {
	case e := <-echoed:
		require.NoError(t, e.err)
		assert.True(t, e.applying)
		assert.Equal(t, "u1", e.userID)
	case <-time.After(waitFor):
		t.Fatal("apply hook not called")
	}
	doc, _ := mem.Doc(remote.CollectionPath("u1", CollectionTodos), "i1")
	assert.JSONEq(t, `{"id":"i1","title":"remote"}`, string(doc))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pushes.WithLabelValues(CollectionTodos, ResultSuppressed)))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Pushes.WithLabelValues(CollectionTodos, ResultOK)))

	require.Eventually(t, func() bool { return !rc.Session().Applying() }, waitFor, 5*time.Millisecond)
	require.NoError(t, rc.Push(ctx, "u1", CollectionTodos, "i2", model.Item{ID: "i2"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Pushes.WithLabelValues(CollectionTodos, ResultOK)))
}

func TestBatchHoldsTargetLock(t *testing.T) {
	mem := remote.NewMemory()
	ctx := context.Background()
	var mu sync.Mutex
	tgt := newTarget(t)
	tgt.Lock = &mu
	rc, _ := newReconciler(t, mem)

	held := make(chan bool, 1)
	rc.OnApply(func(context.Context, string, string, []remote.Change) {
		free := mu.TryLock()
		if free {
			mu.Unlock()
		}
		held <- !free
	})
	require.NoError(t, rc.Attach(ctx, "u1", tgt))

	// A local mutation in progress delays the batch until it is done.
	mu.Lock()
	mem.Inject(remote.CollectionPath("u1", CollectionTodos),
		remote.Change{Op: remote.Added, ID: "i1", Doc: []byte(`{"id":"i1","title":"remote"}`)})
	time.Sleep(20 * time.Millisecond)
	_, ok := tgt.Cache.Item("i1")
	assert.False(t, ok, "batch applied while the lock was held")
	mu.Unlock()

	select {
	case h := <-held:
		assert.True(t, h)
	case <-time.After(waitFor):
		t.Fatal("apply hook not called")
	}
	_, ok = tgt.Cache.Item("i1")
	assert.True(t, ok)
}

func TestAttachIsIdempotentAndSwitchesUsers(t *testing.T) {
	mem := remote.NewMemory()
	ctx := context.Background()
	first := newTarget(t)
	rc, m := newReconciler(t, mem)

	require.NoError(t, rc.Attach(ctx, "u1", first))
	sess := rc.Session()
	require.NoError(t, rc.Attach(ctx, "u1", first))
	assert.Same(t, sess, rc.Session())

	second := newTarget(t)
	require.NoError(t, rc.Attach(ctx, "u2", second))
	assert.Equal(t, "u2", rc.Session().UserID())

	// The first session no longer ingests.
	mem.Inject(remote.CollectionPath("u1", CollectionProjects),
		remote.Change{Op: remote.Added, ID: "p1", Doc: []byte(`{"id":"p1","title":"x"}`)})
	mem.Inject(remote.CollectionPath("u2", CollectionProjects),
		remote.Change{Op: remote.Added, ID: "p2", Doc: []byte(`{"id":"p2","title":"y"}`)})
	require.Eventually(t, func() bool { return len(second.Cache.Projects()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Empty(t, first.Cache.Projects())

	rc.Detach()
	rc.Detach()
	assert.Nil(t, rc.Session())
	assert.Equal(t, 0.0, testutil.ToFloat64(m.Sessions))
}

func TestAttachRequiresUser(t *testing.T) {
	rc, _ := newReconciler(t, remote.NewMemory())
	assert.ErrorIs(t, rc.Attach(context.Background(), "", newTarget(t)), store.ErrNoUser)
}
