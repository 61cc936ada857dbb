// Package tasks is the mutation surface the UI and CLI call. Every mutation
// is applied to the in-memory cache first, then written to the store in one
// transaction, then pushed to the remote. When the write fails the cache
// change is reverted and the error returned. Push failures are only logged.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sadopc/done/internal/hierarchy"
	"github.com/sadopc/done/internal/model"
	"github.com/sadopc/done/internal/store"
)

var (
	ErrEmptyTitle     = errors.New("title is required")
	ErrInvalidStatus  = errors.New("status not allowed for this item")
	ErrNotInitialized = errors.New("service not initialized")
	ErrItemChange     = errors.New("subtask item cannot be changed by update; move it instead")
)

// Remote collection names, mirrored from the reconciler so this package
// does not depend on it.
const (
	collectionProjects = "categories"
	collectionTodos    = "todos"
	collectionSubtasks = "subtasks"
	collectionComments = "comments"
)

// Pusher sends committed changes to the remote store.
type Pusher interface {
	Push(ctx context.Context, userID, collection, id string, v any) error
	PushDelete(ctx context.Context, userID, collection, id string) error
}

type Option func(*Service)

func WithPusher(p Pusher) Option {
	return func(s *Service) { s.pusher = p }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.log = l }
}

// WithEngine replaces the hierarchy engine, mostly to fix ids and time in
// tests.
func WithEngine(e *hierarchy.Engine) Option {
	return func(s *Service) { s.engine = e }
}

type Service struct {
	userID string
	store  *store.Store
	cache  *model.Cache
	engine *hierarchy.Engine
	pusher Pusher
	log    *zap.Logger

	// mu serializes mutations.
	mu          sync.Mutex
	initialized bool

	settings *Settings
}

func New(userID string, st *store.Store, opts ...Option) *Service {
	s := &Service{
		userID: userID,
		store:  st,
		cache:  model.NewCache(),
		engine: hierarchy.New(),
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Named("tasks").With(zap.String("user_id", userID))
	s.settings = &Settings{store: st}
	return s
}

func (s *Service) UserID() string      { return s.userID }
func (s *Service) Store() *store.Store { return s.store }
func (s *Service) Cache() *model.Cache { return s.cache }
func (s *Service) Settings() *Settings { return s.settings }

// MutationLock is the lock every mutation holds from validation to push.
// The reconciler holds it while applying a remote batch.
func (s *Service) MutationLock() sync.Locker { return &s.mu }

func (s *Service) Initialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

// Initialize loads the store into the cache once. Records written by older
// versions are repaired on the way: free-text categories become project
// references, missing default projects are created and subtask status is
// derived where absent. The repairs are persisted in one transaction.
func (s *Service) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	var snap model.Snapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		snap.Projects, err = s.store.Projects().All(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Items, err = s.store.Items().All(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Subtasks, err = s.store.Subtasks().All(gctx)
		return err
	})
	g.Go(func() (err error) {
		snap.Comments, err = s.store.Comments().All(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("load store: %w", err)
	}

	fixes := s.upgrade(&snap)
	if !fixes.Empty() {
		if err := s.store.Apply(ctx, fixes); err != nil {
			return fmt.Errorf("persist upgrade: %w", err)
		}
		s.log.Info("upgraded legacy records",
			zap.Int("projects", len(fixes.Projects)),
			zap.Int("items", len(fixes.Items)),
			zap.Int("subtasks", len(fixes.Subtasks)),
		)
	}

	s.cache.Load(snap)
	s.initialized = true
	s.push(ctx, fixes)
	s.log.Debug("initialized",
		zap.Int("projects", len(snap.Projects)),
		zap.Int("items", len(snap.Items)),
		zap.Int("subtasks", len(snap.Subtasks)),
	)
	return nil
}

// upgrade repairs snap in place and returns the records it changed.
func (s *Service) upgrade(snap *model.Snapshot) model.ChangeSet {
	var fixes model.ChangeSet
	now := s.engine.Now()

	if len(snap.Projects) == 0 {
		for i, d := range defaultProjects {
			p := model.Project{
				ID:        defaultProjectID(d.key),
				Title:     d.title,
				Color:     d.color,
				Icon:      d.icon,
				Order:     i,
				IsDefault: true,
				CreatedAt: now,
			}
			snap.Projects = append(snap.Projects, p)
			fixes.Projects = append(fixes.Projects, p)
		}
	}

	byTitle := make(map[string]string, len(snap.Projects))
	nextOrder := 0
	for _, p := range snap.Projects {
		byTitle[strings.ToLower(p.Title)] = p.ID
		if p.Order >= nextOrder {
			nextOrder = p.Order + 1
		}
	}

	for i := range snap.Items {
		it := &snap.Items[i]
		changed := false
		if it.LegacyCategory != "" {
			if it.CategoryID == nil {
				key := strings.ToLower(strings.TrimSpace(it.LegacyCategory))
				id, ok := byTitle[key]
				if !ok {
					p := model.Project{
						ID:        defaultProjectID(key),
						Title:     strings.TrimSpace(it.LegacyCategory),
						Color:     defaultColor,
						Order:     nextOrder,
						CreatedAt: now,
					}
					nextOrder++
					snap.Projects = append(snap.Projects, p)
					fixes.Projects = append(fixes.Projects, p)
					byTitle[key] = p.ID
					id = p.ID
				}
				it.CategoryID = model.StringPtr(id)
			}
			it.LegacyCategory = ""
			changed = true
		}
		if it.Status != model.ItemPending && it.Status != model.ItemCompleted {
			it.Status = model.ItemPending
			changed = true
		}
		if changed {
			it.UpdatedAt = now
			fixes.Items = append(fixes.Items, *it)
		}
	}

	for i := range snap.Subtasks {
		sub := &snap.Subtasks[i]
		before := *sub
		sub.Normalize()
		if sub.Status != before.Status || sub.Completed != before.Completed {
			fixes.Subtasks = append(fixes.Subtasks, *sub)
		}
	}
	return fixes
}

// lock takes the mutation lock once the service is initialized.
func (s *Service) lock() error {
	s.mu.Lock()
	if !s.initialized {
		s.mu.Unlock()
		return ErrNotInitialized
	}
	return nil
}

// commit applies cs optimistically, persists it and pushes it. If the write
// fails the cache is restored and the error returned. Callers hold s.mu.
func (s *Service) commit(ctx context.Context, cs model.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	undo := s.cache.Apply(cs)
	if err := s.store.Apply(ctx, cs); err != nil {
		s.cache.Apply(undo)
		s.log.Warn("mutation rolled back", zap.Error(err))
		return err
	}
	s.push(ctx, cs)
	return nil
}

func (s *Service) push(ctx context.Context, cs model.ChangeSet) {
	if s.pusher == nil || cs.Empty() {
		return
	}
	logErr := func(err error) {
		if err != nil {
			s.log.Warn("push failed", zap.Error(err))
		}
	}
	for _, id := range cs.DeletedComments {
		logErr(s.pusher.PushDelete(ctx, s.userID, collectionComments, id))
	}
	for _, id := range cs.DeletedSubtasks {
		logErr(s.pusher.PushDelete(ctx, s.userID, collectionSubtasks, id))
	}
	for _, id := range cs.DeletedItems {
		logErr(s.pusher.PushDelete(ctx, s.userID, collectionTodos, id))
	}
	for _, id := range cs.DeletedProjects {
		logErr(s.pusher.PushDelete(ctx, s.userID, collectionProjects, id))
	}
	for _, p := range cs.Projects {
		logErr(s.pusher.Push(ctx, s.userID, collectionProjects, p.ID, p))
	}
	for _, it := range cs.Items {
		logErr(s.pusher.Push(ctx, s.userID, collectionTodos, it.ID, it))
	}
	for _, sub := range cs.Subtasks {
		logErr(s.pusher.Push(ctx, s.userID, collectionSubtasks, sub.ID, sub))
	}
	for _, c := range cs.Comments {
		logErr(s.pusher.Push(ctx, s.userID, collectionComments, c.ID, c))
	}
}

// Progress returns how many of an item's subtasks are completed.
func (s *Service) Progress(itemID string) (done, total int) {
	for _, sub := range s.cache.SubtasksOf(itemID) {
		total++
		if sub.Completed {
			done++
		}
	}
	return done, total
}
