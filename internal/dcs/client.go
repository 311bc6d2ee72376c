// Package dcs is the External Configuration Service's facade onto the
// durable coordination service (DCS): create/read/write/delete
// hierarchical znodes, list children, and register one-shot watches.
//
// No ZooKeeper/etcd/Consul client library exists in this project's
// dependency corpus, so Client is specified as a capability interface
// per the design note in spec.md §9 — any strongly consistent
// hierarchical store can back it. InProcess is the reference
// implementation shipped here; production deployments swap in a
// ZooKeeper- or etcd-backed Client without touching any other package.
package dcs

import (
	"context"
	"errors"
)

// ErrNoNode is returned by Get/Set/Delete/Children/Watch when the
// path does not exist. Exists reports a missing path as false with a
// nil error.
var ErrNoNode = errors.New("dcs: no such znode")

// ErrNodeExists is returned by Create when the path already exists.
var ErrNodeExists = errors.New("dcs: znode already exists")

// ErrVersionMismatch is returned by Set/Delete when the supplied
// version does not match the znode's current version (optimistic
// concurrency failure).
var ErrVersionMismatch = errors.New("dcs: version mismatch")

// ErrSessionLost is returned by any call made after the session has
// been observed to drop.
var ErrSessionLost = errors.New("dcs: session lost")

// CreateMode selects how a new znode is created.
type CreateMode int

const (
	// Persistent znodes survive session loss.
	Persistent CreateMode = iota
	// EphemeralSequential znodes are deleted on session loss and have
	// a monotonically increasing suffix appended to their path.
	EphemeralSequential
)

// EventType identifies what kind of change fired a watch.
type EventType int

const (
	EventDataChanged EventType = iota
	EventChildChanged
	EventDeleted
)

// Event is delivered to a watch's channel exactly once.
type Event struct {
	Type EventType
	Path string
}

// Stat carries a znode's optimistic-concurrency version.
type Stat struct {
	Version int64
}

// Client is the capability interface the rest of the ECS core depends
// on. Implementations must provide ordered watch-event delivery per
// session and monotonic per-znode version numbers.
type Client interface {
	// Connect blocks until the session reaches the connected state,
	// or ctx is done.
	Connect(ctx context.Context) error

	// Create creates path with initial data under mode. Returns
	// ErrNodeExists if the path (or, for persistent creates, the
	// final path before any sequence suffix) is already present.
	Create(ctx context.Context, path string, data []byte, mode CreateMode) (string, error)

	// Exists reports whether path exists and its current Stat.
	Exists(ctx context.Context, path string) (bool, Stat, error)

	// Get reads path's data and current Stat. Returns ErrNoNode if
	// path does not exist.
	Get(ctx context.Context, path string) ([]byte, Stat, error)

	// Set writes data to path if version matches the znode's current
	// version (or version is -1 to skip the check). Returns the new
	// Stat.
	Set(ctx context.Context, path string, data []byte, version int64) (Stat, error)

	// Delete removes path if version matches (or version is -1 to
	// skip the check).
	Delete(ctx context.Context, path string, version int64) error

	// Children lists the immediate children of path.
	Children(ctx context.Context, path string) ([]string, error)

	// Watch registers a one-shot watch on path that fires on the next
	// data change, child change, or deletion. The returned channel
	// receives exactly one Event and is then closed; if the session is
	// closed first, the channel is closed without an Event.
	Watch(ctx context.Context, path string) (<-chan Event, error)

	// Close releases the session.
	Close() error
}
