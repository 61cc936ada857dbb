// Package remote defines the change feed the sync layer talks to and two
// implementations of it: an in-process Memory store and a NATS JetStream
// key/value adapter.
package remote

import (
	"context"
	"fmt"
	"strings"
)

type Op int

const (
	Added Op = iota
	Modified
	Removed
)

func (o Op) String() string {
	switch o {
	case Added:
		return "added"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// Change is one delta of a collection. Doc is the JSON document and is
// empty for Removed.
type Change struct {
	Op  Op
	ID  string
	Doc []byte
}

// Handler receives the deltas of one delivery, in feed order.
type Handler func(batch []Change)

type Subscription interface {
	Stop()
}

// Remote is a per-collection document store with a change feed. Subscribe
// first delivers the current documents as Added, then every later change.
type Remote interface {
	Subscribe(ctx context.Context, path string, h Handler) (Subscription, error)
	Put(ctx context.Context, path, id string, doc []byte) error
	Delete(ctx context.Context, path, id string) error
}

// CollectionPath namespaces a collection per user.
func CollectionPath(userID, collection string) string {
	return "users/" + userID + "/" + collection
}

// SplitPath is the inverse of CollectionPath.
func SplitPath(path string) (userID, collection string, err error) {
	parts := strings.Split(path, "/")
	if len(parts) != 3 || parts[0] != "users" || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid collection path %q", path)
	}
	return parts[1], parts[2], nil
}
