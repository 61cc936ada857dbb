// Package app wires identity, storage, the task service and sync together.
// It follows the signed-in user: signing in opens that user's store and
// starts a sync session, signing out tears both down.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/sadopc/done/internal/config"
	"github.com/sadopc/done/internal/identity"
	"github.com/sadopc/done/internal/reconcile"
	"github.com/sadopc/done/internal/remote"
	"github.com/sadopc/done/internal/store"
	"github.com/sadopc/done/internal/tasks"
)

// ErrSignedOut is returned by Service when no user is signed in.
var ErrSignedOut = errors.New("no user signed in")

type App struct {
	registry   *store.Registry
	reconciler *reconcile.Reconciler
	identity   identity.Provider
	log        *zap.Logger

	mu      sync.Mutex
	service *tasks.Service
	lastErr error
	cancel  func()

	// live is the signed-in service, read by remote batch hooks without mu.
	live atomic.Pointer[tasks.Service]
}

func New(reg *store.Registry, rc *reconcile.Reconciler, id identity.Provider, log *zap.Logger) *App {
	if log == nil {
		log = zap.NewNop()
	}
	a := &App{registry: reg, reconciler: rc, identity: id, log: log.Named("app")}
	rc.OnApply(a.remoteApplied)
	return a
}

// remoteApplied drops pins of items deleted on another device. Pins are a
// local setting and are never synced.
func (a *App) remoteApplied(ctx context.Context, userID, collection string, batch []remote.Change) {
	if collection != reconcile.CollectionTodos {
		return
	}
	svc := a.live.Load()
	if svc == nil || svc.UserID() != userID {
		return
	}
	for _, c := range batch {
		if c.Op != remote.Removed {
			continue
		}
		if _, err := svc.Settings().Unpin(ctx, c.ID); err != nil {
			a.log.Warn("unpin removed item", zap.String("id", c.ID), zap.Error(err))
		}
	}
}

// Start subscribes to identity changes. The switch to the current user runs
// before Start returns and its error is returned; later switches are only
// logged.
func (a *App) Start(ctx context.Context) error {
	first := true
	var startErr error
	cancel := a.identity.Subscribe(func(userID string) {
		err := a.switchUser(ctx, userID)
		if first {
			first = false
			startErr = err
			return
		}
		if err != nil {
			a.log.Error("switch user", zap.Error(err))
		}
	})
	a.mu.Lock()
	a.cancel = cancel
	a.mu.Unlock()
	return startErr
}

func (a *App) switchUser(ctx context.Context, userID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if userID == "" {
		a.signOutLocked()
		return nil
	}
	if a.service != nil && a.service.UserID() == userID {
		return nil
	}
	a.signOutLocked()

	st, err := a.registry.Open(ctx, userID)
	if err != nil {
		a.lastErr = err
		return err
	}
	svc := tasks.New(userID, st, tasks.WithPusher(a.reconciler), tasks.WithLogger(a.log))
	if err := svc.Initialize(ctx); err != nil {
		a.lastErr = fmt.Errorf("initialize: %w", err)
		return a.lastErr
	}
	a.live.Store(svc)
	if err := a.reconciler.Attach(ctx, userID, reconcile.Target{Store: st, Cache: svc.Cache(), Lock: svc.MutationLock()}); err != nil {
		// Local use keeps working without sync.
		a.log.Warn("sync unavailable", zap.Error(err))
	}
	a.service = svc
	a.lastErr = nil
	a.log.Info("signed in", zap.String("user_id", userID))
	return nil
}

func (a *App) signOutLocked() {
	a.live.Store(nil)
	a.reconciler.Detach()
	if a.service != nil {
		a.log.Info("signed out", zap.String("user_id", a.service.UserID()))
	}
	a.service = nil
	if err := a.registry.CloseAll(); err != nil {
		a.log.Warn("close stores", zap.Error(err))
	}
}

// Service returns the task service of the signed-in user.
func (a *App) Service() (*tasks.Service, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.service == nil {
		if a.lastErr != nil {
			return nil, a.lastErr
		}
		return nil, ErrSignedOut
	}
	return a.service, nil
}

// Close stops following identity changes and releases everything.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.live.Store(nil)
	a.reconciler.Detach()
	a.service = nil
	return a.registry.CloseAll()
}

// Bootstrap builds an App from configuration, connecting to NATS when the
// remote is enabled. The returned func releases the connection.
func Bootstrap(cfg *config.Config, reg prometheus.Registerer, log *zap.Logger) (*App, func(), error) {
	var (
		rem     remote.Remote
		cleanup = func() {}
	)
	if cfg.Remote.Kind == config.RemoteNATS {
		nc, err := nats.Connect(cfg.Remote.NATS.URL, nats.Name("done"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to nats: %w", err)
		}
		kv, err := remote.NewKV(nc, cfg.Remote.NATS.BucketPrefix, log)
		if err != nil {
			nc.Close()
			return nil, nil, err
		}
		rem = kv
		cleanup = nc.Close
	}

	rc := reconcile.New(rem, log, reconcile.WithMetrics(reconcile.NewMetrics(reg)))
	a := New(store.NewRegistry(cfg.DataDir), rc, identity.NewLocal(cfg.User), log)
	return a, cleanup, nil
}

// Identity exposes the provider so callers can sign in or out.
func (a *App) Identity() identity.Provider { return a.identity }
