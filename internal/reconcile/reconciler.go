// Package reconcile keeps a user's local store and cache in step with the
// remote document feed. Local writes are pushed after they are persisted;
// remote deltas are written to the store and the cache. Last write wins per
// document.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sadopc/done/internal/model"
	"github.com/sadopc/done/internal/remote"
	"github.com/sadopc/done/internal/store"
)

// Remote collection names, one per entity type.
const (
	CollectionProjects = "categories"
	CollectionTodos    = "todos"
	CollectionSubtasks = "subtasks"
	CollectionComments = "comments"
)

var Collections = []string{CollectionProjects, CollectionTodos, CollectionSubtasks, CollectionComments}

// Target is where ingested deltas land. Lock, when set, is held for each
// whole batch so local mutations and their pushes never interleave with it.
type Target struct {
	Store *store.Store
	Cache *model.Cache
	Lock  sync.Locker
}

// Session is the state of one attached user. Its applying flag is held for
// the whole of each remote batch; every push made while it is held is
// treated as an echo and dropped.
type Session struct {
	userID string
	target Target

	applying atomic.Bool
	closed   atomic.Bool

	// batchMu serializes remote batches across the session's subscriptions.
	batchMu sync.Mutex

	subsMu sync.Mutex
	subs   []remote.Subscription
}

func (s *Session) UserID() string { return s.userID }

// Applying reports whether a remote batch is being applied.
func (s *Session) Applying() bool { return s.applying.Load() }

// ApplyHook is called after each remote batch has been applied, while the
// session's applying flag is still held.
type ApplyHook func(ctx context.Context, userID, collection string, batch []remote.Change)

type Option func(*Reconciler)

func WithMetrics(m *Metrics) Option {
	return func(r *Reconciler) { r.metrics = m }
}

type Reconciler struct {
	remote  remote.Remote
	log     *zap.Logger
	metrics *Metrics

	hooksMu sync.Mutex
	hooks   []ApplyHook

	mu      sync.Mutex
	session *Session
}

// New returns a Reconciler. A nil remote means offline: Attach succeeds
// without subscriptions and pushes are no-ops.
func New(r remote.Remote, log *zap.Logger, opts ...Option) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	rc := &Reconciler{remote: r, log: log.Named("reconcile")}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.metrics == nil {
		rc.metrics = NewMetrics(nil)
	}
	return rc
}

// Session returns the attached session, or nil.
func (r *Reconciler) Session() *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// OnApply registers h to run after every applied remote batch.
func (r *Reconciler) OnApply(h ApplyHook) {
	r.hooksMu.Lock()
	r.hooks = append(r.hooks, h)
	r.hooksMu.Unlock()
}

// Attach starts syncing userID into t. Attaching the user that is already
// attached is a no-op; attaching another user detaches the previous one
// first.
func (r *Reconciler) Attach(ctx context.Context, userID string, t Target) error {
	if userID == "" {
		return store.ErrNoUser
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session != nil {
		if r.session.userID == userID {
			return nil
		}
		r.detachLocked()
	}

	sess := &Session{userID: userID, target: t}
	if r.remote != nil {
		for _, col := range Collections {
			sub, err := r.remote.Subscribe(ctx, remote.CollectionPath(userID, col), func(batch []remote.Change) {
				r.ingest(sess, col, batch)
			})
			if err != nil {
				sess.stop()
				return &model.SyncError{Collection: col, Err: fmt.Errorf("subscribe: %w", err)}
			}
			sess.subsMu.Lock()
			sess.subs = append(sess.subs, sub)
			sess.subsMu.Unlock()
		}
	}

	r.session = sess
	r.metrics.Sessions.Set(1)
	r.log.Info("sync session attached",
		zap.String("user_id", userID),
		zap.Bool("offline", r.remote == nil),
	)
	return nil
}

// Detach stops the current session. It is safe to call when not attached.
func (r *Reconciler) Detach() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.detachLocked()
}

func (r *Reconciler) detachLocked() {
	if r.session == nil {
		return
	}
	r.session.stop()
	r.log.Info("sync session detached", zap.String("user_id", r.session.userID))
	r.session = nil
	r.metrics.Sessions.Set(0)
}

func (s *Session) stop() {
	s.closed.Store(true)
	s.subsMu.Lock()
	subs := s.subs
	s.subs = nil
	s.subsMu.Unlock()
	for _, sub := range subs {
		sub.Stop()
	}
}

// Push writes v as the document id of collection for userID. Pushes for a
// user that is no longer attached, and any push made while a remote batch
// is being applied, are dropped. Without a remote the push is a no-op.
func (r *Reconciler) Push(ctx context.Context, userID, collection, id string, v any) error {
	if !r.shouldPush(userID, collection) {
		return nil
	}
	doc, err := json.Marshal(v)
	if err != nil {
		r.metrics.Pushes.WithLabelValues(collection, ResultError).Inc()
		return &model.SyncError{Collection: collection, ID: id, Err: err}
	}
	if err := r.remote.Put(ctx, remote.CollectionPath(userID, collection), id, doc); err != nil {
		r.metrics.Pushes.WithLabelValues(collection, ResultError).Inc()
		return &model.SyncError{Collection: collection, ID: id, Err: err}
	}
	r.metrics.Pushes.WithLabelValues(collection, ResultOK).Inc()
	return nil
}

// PushDelete removes document id of collection, under the same rules as
// Push.
func (r *Reconciler) PushDelete(ctx context.Context, userID, collection, id string) error {
	if !r.shouldPush(userID, collection) {
		return nil
	}
	if err := r.remote.Delete(ctx, remote.CollectionPath(userID, collection), id); err != nil {
		r.metrics.Pushes.WithLabelValues(collection, ResultError).Inc()
		return &model.SyncError{Collection: collection, ID: id, Err: err}
	}
	r.metrics.Pushes.WithLabelValues(collection, ResultOK).Inc()
	return nil
}

func (r *Reconciler) shouldPush(userID, collection string) bool {
	sess := r.Session()
	switch {
	case r.remote == nil || sess == nil:
		r.metrics.Pushes.WithLabelValues(collection, ResultOffline).Inc()
		return false
	case sess.userID != userID:
		r.metrics.Pushes.WithLabelValues(collection, ResultSuppressed).Inc()
		r.log.Debug("push for detached user dropped", zap.String("collection", collection))
		return false
	case sess.Applying():
		r.metrics.Pushes.WithLabelValues(collection, ResultSuppressed).Inc()
		r.log.Debug("push during remote batch dropped", zap.String("collection", collection))
		return false
	}
	return true
}

// ingest applies one remote batch in feed order. A delta that fails is
// logged and skipped.
func (r *Reconciler) ingest(sess *Session, collection string, batch []remote.Change) {
	sess.batchMu.Lock()
	defer sess.batchMu.Unlock()
	if sess.closed.Load() {
		return
	}
	if l := sess.target.Lock; l != nil {
		l.Lock()
		defer l.Unlock()
	}

	sess.applying.Store(true)
	defer sess.applying.Store(false)

	ctx := context.Background()
	applied := make([]remote.Change, 0, len(batch))
	for _, c := range batch {
		if err := applyChange(ctx, sess.target, collection, c); err != nil {
			r.metrics.IngestFailures.WithLabelValues(collection).Inc()
			r.log.Warn("skipping remote change",
				zap.String("collection", collection),
				zap.String("id", c.ID),
				zap.Stringer("op", c.Op),
				zap.Error(err),
			)
			continue
		}
		r.metrics.Ingested.WithLabelValues(collection, c.Op.String()).Inc()
		applied = append(applied, c)
	}

	if len(applied) == 0 {
		return
	}
	r.hooksMu.Lock()
	hooks := slices.Clone(r.hooks)
	r.hooksMu.Unlock()
	for _, h := range hooks {
		h(ctx, sess.userID, collection, applied)
	}
}

var errMissingID = errors.New("document has no id")

func applyChange(ctx context.Context, t Target, collection string, c remote.Change) error {
	if c.ID == "" {
		return errMissingID
	}
	if c.Op == remote.Removed {
		return removeDoc(ctx, t, collection, c.ID)
	}

	var cs model.ChangeSet
	var err error
	switch collection {
	case CollectionProjects:
		var p model.Project
		if err = decode(c, &p, &p.ID); err == nil {
			err = t.Store.Projects().Put(ctx, p)
			cs.Projects = []model.Project{p}
		}
	case CollectionTodos:
		var it model.Item
		if err = decode(c, &it, &it.ID); err == nil {
			if it.Status != model.ItemCompleted {
				it.Status = model.ItemPending
			}
			err = t.Store.Items().Put(ctx, it)
			cs.Items = []model.Item{it}
		}
	case CollectionSubtasks:
		var s model.Subtask
		if err = decode(c, &s, &s.ID); err == nil {
			s.Normalize()
			err = t.Store.Subtasks().Put(ctx, s)
			cs.Subtasks = []model.Subtask{s}
		}
	case CollectionComments:
		var cm model.Comment
		if err = decode(c, &cm, &cm.ID); err == nil {
			err = t.Store.Comments().Put(ctx, cm)
			cs.Comments = []model.Comment{cm}
		}
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	if err != nil {
		return err
	}
	t.Cache.Apply(cs)
	return nil
}

func removeDoc(ctx context.Context, t Target, collection, id string) error {
	var cs model.ChangeSet
	var err error
	switch collection {
	case CollectionProjects:
		err = t.Store.Projects().Delete(ctx, id)
		cs.DeletedProjects = []string{id}
	case CollectionTodos:
		err = t.Store.Items().Delete(ctx, id)
		cs.DeletedItems = []string{id}
	case CollectionSubtasks:
		err = t.Store.Subtasks().Delete(ctx, id)
		cs.DeletedSubtasks = []string{id}
	case CollectionComments:
		err = t.Store.Comments().Delete(ctx, id)
		cs.DeletedComments = []string{id}
	default:
		return fmt.Errorf("unknown collection %q", collection)
	}
	if err != nil {
		return err
	}
	t.Cache.Apply(cs)
	return nil
}

// decode unmarshals the document into v. The feed's key is authoritative
// for the id.
func decode(c remote.Change, v any, id *string) error {
	if err := json.Unmarshal(c.Doc, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	*id = c.ID
	return nil
}
