package dcs

import (
	"context"
	"fmt"
	"path"
	"sort"
	"sync"

	"go.uber.org/zap"
)

type znode struct {
	data     []byte
	version  int64
	children map[string]struct{}
	watches  []chan Event
}

// InProcess is an in-memory, goroutine-safe implementation of Client.
// It models the exact semantics the core relies on — monotonic
// per-znode versions, ordered one-shot watch delivery, and an explicit
// connected gate — without depending on a real coordination service.
// It has no session expiry: Close does not delete EphemeralSequential
// znodes, which stay in the tree like persistent ones.
type InProcess struct {
	mu        sync.Mutex
	nodes     map[string]*znode
	connected bool
	closed    bool
	seqCount  map[string]int64
	logger    *zap.Logger
}

// NewInProcess returns a disconnected InProcess client. Connect must
// be called before any other operation succeeds.
func NewInProcess(logger *zap.Logger) *InProcess {
	return &InProcess{
		nodes:    map[string]*znode{"/": {children: map[string]struct{}{}}},
		seqCount: map[string]int64{},
		logger:   logger,
	}
}

// Connect marks the session connected. Unlike the original
// implementation's zero-count latch (spec.md §9 open question), this
// genuinely blocks until the session is established — for the
// in-process client that's immediate, but the call shape lets a real
// DCS-backed client block on the network handshake without changing
// any caller.
func (c *InProcess) Connect(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = true
	if c.logger != nil {
		c.logger.Info("dcs session connected")
	}
	return nil
}

func (c *InProcess) checkConnected() error {
	if c.closed {
		return ErrSessionLost
	}
	if !c.connected {
		return ErrSessionLost
	}
	return nil
}

func (c *InProcess) Create(ctx context.Context, p string, data []byte, mode CreateMode) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return "", err
	}

	finalPath := p
	if mode == EphemeralSequential {
		n := c.seqCount[p]
		c.seqCount[p] = n + 1
		finalPath = fmt.Sprintf("%s%010d", p, n)
	} else if _, exists := c.nodes[finalPath]; exists {
		return "", ErrNodeExists
	}

	parent := path.Dir(finalPath)
	if pn, ok := c.nodes[parent]; ok {
		pn.children[path.Base(finalPath)] = struct{}{}
		c.fireLocked(parent, EventChildChanged)
	}

	c.nodes[finalPath] = &znode{data: append([]byte(nil), data...), children: map[string]struct{}{}}
	return finalPath, nil
}

func (c *InProcess) Exists(ctx context.Context, p string) (bool, Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return false, Stat{}, err
	}
	n, ok := c.nodes[p]
	if !ok {
		return false, Stat{}, nil
	}
	return true, Stat{Version: n.version}, nil
}

func (c *InProcess) Get(ctx context.Context, p string) ([]byte, Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return nil, Stat{}, err
	}
	n, ok := c.nodes[p]
	if !ok {
		return nil, Stat{}, ErrNoNode
	}
	return append([]byte(nil), n.data...), Stat{Version: n.version}, nil
}

func (c *InProcess) Set(ctx context.Context, p string, data []byte, version int64) (Stat, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return Stat{}, err
	}
	n, ok := c.nodes[p]
	if !ok {
		return Stat{}, ErrNoNode
	}
	if version >= 0 && version != n.version {
		return Stat{}, ErrVersionMismatch
	}
	n.data = append([]byte(nil), data...)
	n.version++
	c.fireLocked(p, EventDataChanged)
	return Stat{Version: n.version}, nil
}

func (c *InProcess) Delete(ctx context.Context, p string, version int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return err
	}
	n, ok := c.nodes[p]
	if !ok {
		return ErrNoNode
	}
	if version >= 0 && version != n.version {
		return ErrVersionMismatch
	}
	// Fire the node's own watches while it is still in the map, so
	// fireLocked can find them.
	c.fireLocked(p, EventDeleted)
	delete(c.nodes, p)

	parent := path.Dir(p)
	if pn, ok := c.nodes[parent]; ok {
		delete(pn.children, path.Base(p))
		c.fireLocked(parent, EventChildChanged)
	}
	return nil
}

func (c *InProcess) Children(ctx context.Context, p string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	n, ok := c.nodes[p]
	if !ok {
		return nil, ErrNoNode
	}
	out := make([]string, 0, len(n.children))
	for name := range n.children {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (c *InProcess) Watch(ctx context.Context, p string) (<-chan Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkConnected(); err != nil {
		return nil, err
	}
	n, ok := c.nodes[p]
	if !ok {
		return nil, ErrNoNode
	}
	ch := make(chan Event, 1)
	n.watches = append(n.watches, ch)
	return ch, nil
}

func (c *InProcess) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.connected = false
	for _, n := range c.nodes {
		for _, ch := range n.watches {
			close(ch)
		}
		n.watches = nil
	}
	return nil
}

// fireLocked delivers ev to every pending watch on p and clears them.
// Must be called with c.mu held.
func (c *InProcess) fireLocked(p string, evType EventType) {
	n, ok := c.nodes[p]
	if !ok {
		return
	}
	for _, ch := range n.watches {
		ch <- Event{Type: evType, Path: p}
		close(ch)
	}
	n.watches = nil
}
