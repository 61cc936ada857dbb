package remote

import (
	"context"
	"slices"
	"sync"
)

// Memory is an in-process Remote. Every subscriber gets its own delivery
// goroutine, so handlers run concurrently with writers the way a network
// feed would. Writes are echoed to every subscriber of the path, the writer
// included.
type Memory struct {
	mu     sync.Mutex
	docs   map[string]map[string][]byte
	subs   map[string]map[*memorySub]struct{}
	putErr error
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]map[string][]byte),
		subs: make(map[string]map[*memorySub]struct{}),
	}
}

// FailWrites makes every later Put and Delete fail with err. A nil err
// restores normal operation.
func (m *Memory) FailWrites(err error) {
	m.mu.Lock()
	m.putErr = err
	m.mu.Unlock()
}

func (m *Memory) Subscribe(ctx context.Context, path string, h Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &memorySub{
		h:    h,
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
	}

	m.mu.Lock()
	ids := make([]string, 0, len(m.docs[path]))
	for id := range m.docs[path] {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	initial := make([]Change, 0, len(ids))
	for _, id := range ids {
		initial = append(initial, Change{Op: Added, ID: id, Doc: m.docs[path][id]})
	}
	if m.subs[path] == nil {
		m.subs[path] = make(map[*memorySub]struct{})
	}
	m.subs[path][s] = struct{}{}
	if len(initial) > 0 {
		s.enqueue(initial)
	}
	m.mu.Unlock()

	s.release = func() {
		m.mu.Lock()
		delete(m.subs[path], s)
		m.mu.Unlock()
	}
	go s.run()
	return s, nil
}

func (m *Memory) Put(ctx context.Context, path, id string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.deliver(path, []Change{m.put(path, id, doc)})
	return nil
}

func (m *Memory) Delete(ctx context.Context, path, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	if _, ok := m.docs[path][id]; !ok {
		return nil
	}
	delete(m.docs[path], id)
	m.deliver(path, []Change{{Op: Removed, ID: id}})
	return nil
}

// Inject applies changes as if another device wrote them and delivers them
// to subscribers as a single batch. Added and Modified are classified by
// the caller, which lets tests replay feeds verbatim.
func (m *Memory) Inject(path string, changes ...Change) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range changes {
		if c.Op == Removed {
			delete(m.docs[path], c.ID)
			continue
		}
		m.put(path, c.ID, c.Doc)
	}
	m.deliver(path, changes)
}

// Doc returns the stored document.
func (m *Memory) Doc(path, id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[path][id]
	return doc, ok
}

// Len returns the number of documents under path.
func (m *Memory) Len(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs[path])
}

// put stores a copy of doc. Callers hold m.mu.
func (m *Memory) put(path, id string, doc []byte) Change {
	if m.docs[path] == nil {
		m.docs[path] = make(map[string][]byte)
	}
	op := Added
	if _, ok := m.docs[path][id]; ok {
		op = Modified
	}
	cp := slices.Clone(doc)
	m.docs[path][id] = cp
	return Change{Op: op, ID: id, Doc: cp}
}

// deliver queues a batch for every subscriber of path. Callers hold m.mu.
func (m *Memory) deliver(path string, batch []Change) {
	for s := range m.subs[path] {
		s.enqueue(batch)
	}
}

type memorySub struct {
	h       Handler
	release func()

	mu    sync.Mutex
	queue [][]Change
	wake  chan struct{}
	stop  chan struct{}
	once  sync.Once
}

func (s *memorySub) enqueue(batch []Change) {
	s.mu.Lock()
	s.queue = append(s.queue, batch)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *memorySub) run() {
	for {
		select {
		case <-s.stop:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			batch := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.stop:
				return
			default:
			}
			s.h(batch)
		}
	}
}

// Stop ends delivery. It may be called from inside the handler.
func (s *memorySub) Stop() {
	s.once.Do(func() {
		close(s.stop)
		if s.release != nil {
			s.release()
		}
	})
}
