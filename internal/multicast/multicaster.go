// Package multicast fans one admin command out to many target nodes
// in parallel and collects per-node outcomes under a deadline. It is
// the only internal fan-out point in the ECS core — the controller's
// control loop is otherwise serial.
package multicast

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abdulrahman86/ecs/internal/admin"
	"github.com/abdulrahman86/ecs/internal/dcs"
	"github.com/abdulrahman86/ecs/internal/node"
)

// ErrorKind classifies why a target failed to acknowledge.
type ErrorKind string

const (
	ErrTimeout     ErrorKind = "Timeout"
	ErrWriteFailed ErrorKind = "WriteFailed"
	ErrSessionLost ErrorKind = "SessionLost"
	ErrTargetGone  ErrorKind = "TargetGone"
)

// LivenessChecker reports whether a named node is currently known to
// be alive; used to distinguish TargetGone from Timeout.
type LivenessChecker interface {
	IsAlive(name string) bool
}

// Multicaster delivers admin commands to node znodes and waits for acks.
type Multicaster struct {
	dcsClient dcs.Client
	liveness  LivenessChecker
	logger    *zap.Logger
}

// New returns a Multicaster backed by client, using liveness (which
// may be nil) to classify unresponsive targets.
func New(client dcs.Client, liveness LivenessChecker, logger *zap.Logger) *Multicaster {
	return &Multicaster{dcsClient: client, liveness: liveness, logger: logger}
}

// NodePath is the per-node znode path under the DCS server root.
func NodePath(root, name string) string {
	return root + "/" + name
}

// Send writes cmd to every target's znode, registers a watch on it,
// and waits until every target has acknowledged or deadline has
// elapsed. It returns allOk (true iff every target acknowledged) and a
// map of per-node failures for those that did not.
func (m *Multicaster) Send(ctx context.Context, root string, targets []*node.Node, cmd admin.Message, deadline time.Duration) (bool, map[*node.Node]ErrorKind) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var mu sync.Mutex
	errs := make(map[*node.Node]ErrorKind)

	var g errgroup.Group
	for _, n := range targets {
		n := n
		g.Go(func() error {
			kind, err := m.sendOne(ctx, root, n, cmd)
			if err != nil {
				mu.Lock()
				errs[n] = kind
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	return len(errs) == 0, errs
}

// sendOne delivers cmd to a single target and waits for its ack or the
// parent ctx's deadline.
func (m *Multicaster) sendOne(ctx context.Context, root string, n *node.Node, cmd admin.Message) (ErrorKind, error) {
	path := NodePath(root, n.Name)

	_, stat, err := m.dcsClient.Get(ctx, path)
	if err != nil {
		return ErrWriteFailed, fmt.Errorf("get %s: %w", path, err)
	}

	payload, err := admin.Encode(cmd)
	if err != nil {
		return ErrWriteFailed, fmt.Errorf("encode command: %w", err)
	}

	// Overwrite the command first, then watch: the watch must fire on
	// the node's subsequent ack write, not on our own delivery.
	if _, err := m.dcsClient.Set(ctx, path, payload, stat.Version); err != nil {
		if err == dcs.ErrSessionLost {
			return ErrSessionLost, err
		}
		return ErrWriteFailed, fmt.Errorf("set %s: %w", path, err)
	}

	watch, err := m.dcsClient.Watch(ctx, path)
	if err != nil {
		if m.logger != nil {
			m.logger.Warn("multicast: failed to register watch", zap.String("node", n.Name), zap.Error(err))
		}
		return ErrWriteFailed, fmt.Errorf("watch %s: %w", path, err)
	}

	select {
	case ev, ok := <-watch:
		if !ok {
			return ErrWriteFailed, fmt.Errorf("watch on %s closed without firing", path)
		}
		_ = ev
		return "", nil
	case <-ctx.Done():
		if m.liveness != nil && !m.liveness.IsAlive(n.Name) {
			return ErrTargetGone, ctx.Err()
		}
		return ErrTimeout, ctx.Err()
	}
}
