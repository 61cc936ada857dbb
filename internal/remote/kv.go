package remote

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

var validBucket = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// KV stores collections in NATS JetStream key/value buckets: one bucket per
// user, one key per document, "<collection>.<id>".
type KV struct {
	js      nats.JetStreamContext
	prefix  string
	history uint8
	log     *zap.Logger

	mu      sync.Mutex
	buckets map[string]nats.KeyValue
}

type KVOption func(*KV)

// WithHistory sets how many revisions new buckets keep per key.
func WithHistory(n uint8) KVOption {
	return func(k *KV) { k.history = n }
}

func NewKV(nc *nats.Conn, prefix string, log *zap.Logger, opts ...KVOption) (*KV, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	if prefix == "" {
		prefix = "done"
	}
	if log == nil {
		log = zap.NewNop()
	}
	k := &KV{
		js:      js,
		prefix:  prefix,
		history: 1,
		log:     log.Named("kv"),
		buckets: make(map[string]nats.KeyValue),
	}
	for _, opt := range opts {
		opt(k)
	}
	return k, nil
}

// BucketName returns the bucket holding userID's collections.
func (k *KV) BucketName(userID string) string {
	if !validBucket.MatchString(userID) {
		sum := sha256.Sum256([]byte(userID))
		userID = hex.EncodeToString(sum[:8])
	}
	return k.prefix + "_" + userID
}

func (k *KV) bucket(path string) (nats.KeyValue, string, error) {
	userID, collection, err := SplitPath(path)
	if err != nil {
		return nil, "", err
	}
	name := k.BucketName(userID)

	k.mu.Lock()
	defer k.mu.Unlock()
	if kv, ok := k.buckets[name]; ok {
		return kv, collection, nil
	}
	kv, err := k.js.KeyValue(name)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = k.js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:  name,
			History: k.history,
		})
	}
	if err != nil {
		return nil, "", fmt.Errorf("bucket %s: %w", name, err)
	}
	k.buckets[name] = kv
	return kv, collection, nil
}

func (k *KV) Put(ctx context.Context, path, id string, doc []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kv, collection, err := k.bucket(path)
	if err != nil {
		return err
	}
	if _, err := kv.Put(collection+"."+id, doc); err != nil {
		return fmt.Errorf("put %s/%s: %w", path, id, err)
	}
	return nil
}

func (k *KV) Delete(ctx context.Context, path, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	kv, collection, err := k.bucket(path)
	if err != nil {
		return err
	}
	if err := kv.Delete(collection + "." + id); err != nil && !errors.Is(err, nats.ErrKeyNotFound) {
		return fmt.Errorf("delete %s/%s: %w", path, id, err)
	}
	return nil
}

// Subscribe watches every key of the collection. The watcher's initial
// values are delivered as one batch; afterwards each delivery carries
// whatever updates are already queued.
func (k *KV) Subscribe(ctx context.Context, path string, h Handler) (Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kv, collection, err := k.bucket(path)
	if err != nil {
		return nil, err
	}
	w, err := kv.Watch(collection + ".*")
	if err != nil {
		return nil, fmt.Errorf("watch %s: %w", path, err)
	}

	sub := &kvSub{w: w}
	go sub.run(collection, h, k.log.With(zap.String("path", path)))
	return sub, nil
}

type kvSub struct {
	w    nats.KeyWatcher
	once sync.Once
}

func (s *kvSub) Stop() {
	s.once.Do(func() {
		s.w.Stop()
	})
}

func (s *kvSub) run(collection string, h Handler, log *zap.Logger) {
	seen := make(map[string]bool)
	prefix := len(collection) + 1

	toChange := func(e nats.KeyValueEntry) Change {
		id := e.Key()[prefix:]
		switch e.Operation() {
		case nats.KeyValueDelete, nats.KeyValuePurge:
			delete(seen, id)
			return Change{Op: Removed, ID: id}
		}
		op := Added
		if seen[id] {
			op = Modified
		}
		seen[id] = true
		return Change{Op: op, ID: id, Doc: e.Value()}
	}

	var batch []Change
	flush := func() {
		if len(batch) == 0 {
			return
		}
		h(batch)
		batch = nil
	}

	updates := s.w.Updates()
	initial := true
	for e := range updates {
		if e == nil {
			initial = false
			flush()
			continue
		}
		batch = append(batch, toChange(e))
		if initial {
			continue
		}
	drain:
		for {
			select {
			case e, ok := <-updates:
				if !ok {
					break drain
				}
				if e != nil {
					batch = append(batch, toChange(e))
				}
			default:
				break drain
			}
		}
		flush()
	}
	log.Debug("watcher closed")
}
