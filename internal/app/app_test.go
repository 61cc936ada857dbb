package app

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sadopc/done/internal/identity"
	"github.com/sadopc/done/internal/reconcile"
	"github.com/sadopc/done/internal/remote"
	"github.com/sadopc/done/internal/store"
	"github.com/sadopc/done/internal/tasks"
)

func newApp(t *testing.T, user string) (*App, *identity.Local, *reconcile.Reconciler, *remote.Memory) {
	t.Helper()
	mem := remote.NewMemory()
	rc := reconcile.New(mem, zap.NewNop(), reconcile.WithMetrics(reconcile.NewMetrics(prometheus.NewRegistry())))
	id := identity.NewLocal(user)
	a := New(store.NewRegistry(t.TempDir()), rc, id, zap.NewNop())
	t.Cleanup(func() { a.Close() })
	return a, id, rc, mem
}

func TestStartSignedOut(t *testing.T) {
	a, _, rc, _ := newApp(t, "")
	require.NoError(t, a.Start(context.Background()))

	_, err := a.Service()
	assert.ErrorIs(t, err, ErrSignedOut)
	assert.Nil(t, rc.Session())
}

func TestSignInAttachesAndInitializes(t *testing.T) {
	ctx := context.Background()
	a, _, rc, mem := newApp(t, "alice")
	require.NoError(t, a.Start(ctx))

	svc, err := a.Service()
	require.NoError(t, err)
	assert.True(t, svc.Initialized())
	assert.Equal(t, "alice", svc.UserID())
	require.NotNil(t, rc.Session())
	assert.Equal(t, "alice", rc.Session().UserID())

	it, err := svc.AddItem(ctx, tasks.ItemInput{Title: "Pushed"})
	require.NoError(t, err)
	_, ok := mem.Doc(remote.CollectionPath("alice", reconcile.CollectionTodos), it.ID)
	assert.True(t, ok)
}

func TestIdentityChangesSwitchUser(t *testing.T) {
	ctx := context.Background()
	a, id, rc, _ := newApp(t, "alice")
	require.NoError(t, a.Start(ctx))

	alice, err := a.Service()
	require.NoError(t, err)
	_, err = alice.AddItem(ctx, tasks.ItemInput{Title: "Alice's"})
	require.NoError(t, err)

	id.Set("bob")
	bob, err := a.Service()
	require.NoError(t, err)
	assert.Equal(t, "bob", bob.UserID())
	assert.Empty(t, bob.Cache().Items(), "users do not share data")
	assert.Equal(t, "bob", rc.Session().UserID())

	id.Set("")
	_, err = a.Service()
	assert.ErrorIs(t, err, ErrSignedOut)
	assert.Nil(t, rc.Session())

	id.Set("alice")
	again, err := a.Service()
	require.NoError(t, err)
	assert.Len(t, again.Cache().Items(), 1, "data survives sign-out")
}

func TestRemoteRemovalUnpinsItem(t *testing.T) {
	ctx := context.Background()
	a, _, _, mem := newApp(t, "alice")
	require.NoError(t, a.Start(ctx))
	svc, err := a.Service()
	require.NoError(t, err)

	it, err := svc.AddItem(ctx, tasks.ItemInput{Title: "Pinned"})
	require.NoError(t, err)
	keep, err := svc.AddItem(ctx, tasks.ItemInput{Title: "Also pinned"})
	require.NoError(t, err)
	_, err = svc.Settings().TogglePinned(ctx, it.ID)
	require.NoError(t, err)
	_, err = svc.Settings().TogglePinned(ctx, keep.ID)
	require.NoError(t, err)

	mem.Inject(remote.CollectionPath("alice", reconcile.CollectionTodos),
		remote.Change{Op: remote.Removed, ID: it.ID})

	require.Eventually(t, func() bool {
		ids, err := svc.Settings().PinnedIDs(ctx)
		return err == nil && len(ids) == 1
	}, 2*time.Second, 5*time.Millisecond)
	ids, err := svc.Settings().PinnedIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{keep.ID}, ids)
	_, ok := svc.Cache().Item(it.ID)
	assert.False(t, ok)
}
