// Package identity tracks which user the app is signed in as.
package identity

import "sync"

// Provider reports the current user. An empty id means signed out.
type Provider interface {
	CurrentUserID() string
	// Subscribe calls fn with the current id right away and again on every
	// change. The returned func cancels the subscription.
	Subscribe(fn func(userID string)) (cancel func())
}

// Local is a Provider whose user is set in-process, from config or a CLI
// flag.
type Local struct {
	mu     sync.Mutex
	userID string
	next   int
	subs   map[int]func(string)
}

func NewLocal(userID string) *Local {
	return &Local{userID: userID, subs: make(map[int]func(string))}
}

func (l *Local) CurrentUserID() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.userID
}

// Set changes the user and notifies subscribers. Setting the same id again
// does nothing.
func (l *Local) Set(userID string) {
	l.mu.Lock()
	if l.userID == userID {
		l.mu.Unlock()
		return
	}
	l.userID = userID
	fns := make([]func(string), 0, len(l.subs))
	for _, fn := range l.subs {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(userID)
	}
}

func (l *Local) Subscribe(fn func(userID string)) func() {
	l.mu.Lock()
	id := l.next
	l.next++
	l.subs[id] = fn
	current := l.userID
	l.mu.Unlock()

	fn(current)
	return func() {
		l.mu.Lock()
		delete(l.subs, id)
		l.mu.Unlock()
	}
}
