// Package controller implements the ECS's top-level lifecycle
// orchestration: the node pool and node table, the provisioning and
// start/stop/shutdown/add/remove operations, and metadata publication.
// It is a direct Go translation of the original ECS's control flow
// (spec.md §4.4), serialized by a single mutex the way the original's
// single ECS instance serializes access implicitly.
package controller

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdulrahman86/ecs/internal/admin"
	"github.com/abdulrahman86/ecs/internal/dcs"
	"github.com/abdulrahman86/ecs/internal/ecserrors"
	"github.com/abdulrahman86/ecs/internal/hashring"
	"github.com/abdulrahman86/ecs/internal/launch"
	"github.com/abdulrahman86/ecs/internal/membership"
	"github.com/abdulrahman86/ecs/internal/metrics"
	"github.com/abdulrahman86/ecs/internal/multicast"
	"github.com/abdulrahman86/ecs/internal/node"
)

// Config configures a Controller's coordination paths and deadlines.
type Config struct {
	ServerRoot       string
	MetadataRoot     string
	MulticastDeadline time.Duration
}

// Controller owns the node pool, node table, and hash ring, and
// executes the lifecycle state machine. At most one control operation
// (AddNodes, Start, Stop, Shutdown, RemoveNodes) runs at a time; mu
// enforces that serialization.
type Controller struct {
	cfg Config

	dcsClient   dcs.Client
	multicaster *multicast.Multicaster
	launcher    launch.Launcher
	liveness    *membership.Detector
	metrics     *metrics.Metrics
	logger      *zap.Logger

	mu       sync.Mutex
	pool     []*node.Node
	table    map[string]*node.Node
	ring     *hashring.Ring
	nextSeq  int64
}

// New constructs a Controller. Callers populate the pool via LoadPool
// before issuing any control operation.
func New(cfg Config, dcsClient dcs.Client, multicaster *multicast.Multicaster, launcher launch.Launcher, liveness *membership.Detector, m *metrics.Metrics, logger *zap.Logger) *Controller {
	return &Controller{
		cfg:         cfg,
		dcsClient:   dcsClient,
		multicaster: multicaster,
		launcher:    launcher,
		liveness:    liveness,
		metrics:     m,
		logger:      logger,
		table:       make(map[string]*node.Node),
		ring:        hashring.New(),
	}
}

// LoadPool seeds the idle node pool from the parsed node-seed file.
func (c *Controller) LoadPool(nodes []*node.Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pool = append(c.pool, nodes...)
}

func (c *Controller) nextSequence() int64 {
	c.nextSeq++
	return c.nextSeq
}

// AddNodes reserves count IDLE nodes, provisions their init znodes,
// launches their processes, and awaits INIT acknowledgement. Nodes
// that fail to launch or ack are dropped (status REMOVED) and excluded
// from the returned slice. Returns ecserrors.InsufficientCapacity if
// fewer than count nodes are idle.
func (c *Controller) AddNodes(ctx context.Context, count int, strategy node.CacheStrategy, size int) ([]*node.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if count > len(c.pool) {
		return nil, ecserrors.InsufficientCapacity(count, len(c.pool))
	}

	reserved := c.pool[:count]
	c.pool = c.pool[count:]

	if err := c.setupNodesLocked(ctx, reserved, strategy, size); err != nil {
		// setupNodes failure: nothing was mutated beyond znode writes,
		// return the reservation to the pool.
		c.pool = append(reserved, c.pool...)
		return nil, err
	}

	var launched []*node.Node
	for _, n := range reserved {
		if err := c.launcher.Launch(ctx, n); err != nil {
			if c.logger != nil {
				c.logger.Error("failed to launch node", zap.String("node", n.Name), zap.Error(err))
			}
			n.SetStatus(node.StatusRemoved)
			continue
		}
		n.SetStatus(node.StatusInactive)
		c.table[n.Name] = n
		if c.liveness != nil {
			c.liveness.MarkKnown(n.Name)
		}
		launched = append(launched, n)
	}

	acked := c.awaitInitAcksLocked(ctx, launched)

	c.recordNodeCountsLocked()
	c.recordControlOpLocked("addNodes", outcomeLabel(len(acked) == count))

	if len(acked) == 0 {
		return nil, ecserrors.CoordinationError("no reserved node acknowledged INIT", nil)
	}
	return acked, nil
}

// setupNodesLocked creates (or re-provisions) each node's init znode,
// purging any stale child message znodes, matching ECS.java's
// setupNodes. Caller holds c.mu.
func (c *Controller) setupNodesLocked(ctx context.Context, nodes []*node.Node, strategy node.CacheStrategy, size int) error {
	exists, _, err := c.dcsClient.Exists(ctx, c.cfg.ServerRoot)
	if err != nil {
		return ecserrors.CoordinationError("failed to check server root", err)
	}
	if !exists {
		if _, err := c.dcsClient.Create(ctx, c.cfg.ServerRoot, nil, dcs.Persistent); err != nil {
			return ecserrors.CoordinationError("failed to create server root", err)
		}
	}

	policyData, err := json.Marshal(node.CachePolicy{Strategy: strategy, Size: size})
	if err != nil {
		return ecserrors.CoordinationError("failed to encode cache policy", err)
	}
	payload, err := admin.Encode(admin.Message{OpType: admin.OpInit, Payload: policyData})
	if err != nil {
		return ecserrors.CoordinationError("failed to encode init payload", err)
	}

	for _, n := range nodes {
		n.Policy = node.CachePolicy{Strategy: strategy, Size: size}
		path := multicast.NodePath(c.cfg.ServerRoot, n.Name)

		present, stat, err := c.dcsClient.Exists(ctx, path)
		if err != nil {
			return ecserrors.CoordinationError("failed to check node znode", err)
		}
		if !present {
			if _, err := c.dcsClient.Create(ctx, path, payload, dcs.Persistent); err != nil {
				return ecserrors.CoordinationError("failed to create node znode", err)
			}
			continue
		}

		if _, err := c.dcsClient.Set(ctx, path, payload, stat.Version); err != nil {
			return ecserrors.CoordinationError("failed to reset node znode", err)
		}
		children, err := c.dcsClient.Children(ctx, path)
		if err != nil {
			return ecserrors.CoordinationError("failed to list stale messages", err)
		}
		for _, child := range children {
			childPath := path + "/" + child
			if err := c.dcsClient.Delete(ctx, childPath, -1); err != nil {
				return ecserrors.CoordinationError("failed to purge stale message", err)
			}
		}
	}
	return nil
}

// awaitInitAcksLocked multicasts INIT to nodes and returns the subset
// that acknowledged, transitioning them to STOPPED; nodes that time
// out are marked REMOVED and dropped from the node table.
func (c *Controller) awaitInitAcksLocked(ctx context.Context, nodes []*node.Node) []*node.Node {
	if len(nodes) == 0 {
		return nil
	}

	start := time.Now()
	cmd := admin.NewCommand(admin.OpInit, c.nextSequence())
	_, failures := c.multicaster.Send(ctx, c.cfg.ServerRoot, nodes, cmd, c.cfg.MulticastDeadline)
	c.recordMulticastLocked("addNodes", start, len(nodes), failures)

	var acked []*node.Node
	for _, n := range nodes {
		if kind, failed := failures[n]; failed {
			if c.logger != nil {
				c.logger.Warn("node failed to acknowledge INIT", zap.String("node", n.Name), zap.String("reason", string(kind)))
			}
			n.SetStatus(node.StatusRemoved)
			delete(c.table, n.Name)
			if c.liveness != nil {
				c.liveness.Forget(n.Name)
			}
			continue
		}
		n.SetStatus(node.StatusStopped)
		acked = append(acked, n)
	}
	return acked
}

// Start multicasts START to every STOPPED node; nodes that acknowledge
// join the ring and become ACTIVE. Publishes metadata on success.
// Returns aggregate success: true iff every STOPPED node acknowledged.
func (c *Controller) Start(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	toStart := c.nodesWithStatusLocked(node.StatusStopped)
	allOK, failures := c.multicastLocked(ctx, "start", admin.OpStart, toStart)

	for _, n := range toStart {
		if _, failed := failures[n]; failed {
			continue
		}
		if err := c.ring.Add(n); err != nil {
			if c.logger != nil {
				c.logger.Error("invariant violation adding node to ring", zap.String("node", n.Name), zap.Error(err))
			}
			continue
		}
		n.SetStatus(node.StatusActive)
	}

	if err := c.publishMetadataLocked(ctx); err != nil {
		return false, err
	}
	c.recordNodeCountsLocked()
	c.recordControlOpLocked("start", outcomeLabel(allOK))
	return allOK, nil
}

// Stop multicasts STOP to every ACTIVE node; nodes that acknowledge
// leave the ring and become STOPPED. Publishes metadata on success.
func (c *Controller) Stop(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	toStop := c.nodesWithStatusLocked(node.StatusActive)
	allOK, failures := c.multicastLocked(ctx, "stop", admin.OpStop, toStop)

	for _, n := range toStop {
		if _, failed := failures[n]; failed {
			continue
		}
		if err := c.ring.Remove(n); err != nil {
			if c.logger != nil {
				c.logger.Error("invariant violation removing node from ring", zap.String("node", n.Name), zap.Error(err))
			}
			continue
		}
		n.SetStatus(node.StatusStopped)
	}

	if err := c.publishMetadataLocked(ctx); err != nil {
		return false, err
	}
	c.recordNodeCountsLocked()
	c.recordControlOpLocked("stop", outcomeLabel(allOK))
	return allOK, nil
}

// Shutdown multicasts SHUTDOWN to every provisioned node regardless of
// current status. On success it clears the ring, marks every node
// REMOVED, and publishes an empty metadata snapshot.
func (c *Controller) Shutdown(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	all := c.allProvisionedLocked()
	allOK, failures := c.multicastLocked(ctx, "shutdown", admin.OpShutdown, all)

	if allOK {
		c.ring.RemoveAll()
		for _, n := range all {
			n.SetStatus(node.StatusRemoved)
			delete(c.table, n.Name)
			if c.liveness != nil {
				c.liveness.Forget(n.Name)
			}
		}
		if err := c.publishMetadataLocked(ctx); err != nil {
			return false, err
		}
	} else {
		for n := range failures {
			if c.logger != nil {
				c.logger.Warn("node failed to acknowledge SHUTDOWN", zap.String("node", n.Name))
			}
		}
	}

	c.recordNodeCountsLocked()
	c.recordControlOpLocked("shutdown", outcomeLabel(allOK))
	return allOK, nil
}

// RemoveNodes multicasts SHUTDOWN to the named subset. Ring and table
// mutation is applied only for nodes that acknowledged, preserving
// invariants under partial success.
func (c *Controller) RemoveNodes(ctx context.Context, names []string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toRemove []*node.Node
	for _, name := range names {
		if n, ok := c.table[name]; ok {
			toRemove = append(toRemove, n)
		}
	}

	allOK, failures := c.multicastLocked(ctx, "removeNodes", admin.OpShutdown, toRemove)

	for _, n := range toRemove {
		if _, failed := failures[n]; failed {
			continue
		}
		wasActive := n.Status == node.StatusActive
		if wasActive {
			if err := c.ring.Remove(n); err != nil {
				if c.logger != nil {
					c.logger.Error("invariant violation removing node from ring", zap.String("node", n.Name), zap.Error(err))
				}
				continue
			}
		}
		n.SetStatus(node.StatusRemoved)
		delete(c.table, n.Name)
		if c.liveness != nil {
			c.liveness.Forget(n.Name)
		}
	}

	if err := c.publishMetadataLocked(ctx); err != nil {
		return false, err
	}
	c.recordNodeCountsLocked()
	c.recordControlOpLocked("removeNodes", outcomeLabel(allOK))
	return allOK, nil
}

// GetNodes returns a snapshot of every provisioned node keyed by name.
func (c *Controller) GetNodes() map[string]*node.Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]*node.Node, len(c.table))
	for k, v := range c.table {
		out[k] = v
	}
	return out
}

// GetNodeByKey delegates to the hash ring.
func (c *Controller) GetNodeByKey(key string) (*node.Node, error) {
	return c.ring.GetNodeByKey(key)
}

// AwaitNodes blocks until count provisioned nodes have reached
// STOPPED, or timeout elapses, whichever comes first.
func (c *Controller) AwaitNodes(ctx context.Context, count int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()

	for {
		if c.countStoppedOrBetter() >= count {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

func (c *Controller) countStoppedOrBetter() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, entry := range c.table {
		if entry.Status == node.StatusStopped || entry.Status == node.StatusActive {
			n++
		}
	}
	return n
}

// --- internal helpers; callers hold c.mu ---

func (c *Controller) nodesWithStatusLocked(status node.Status) []*node.Node {
	var out []*node.Node
	for _, n := range c.table {
		if n.Status == status {
			out = append(out, n)
		}
	}
	return out
}

func (c *Controller) allProvisionedLocked() []*node.Node {
	var out []*node.Node
	for _, n := range c.table {
		out = append(out, n)
	}
	return out
}

func (c *Controller) multicastLocked(ctx context.Context, op string, opType admin.OpType, targets []*node.Node) (bool, map[*node.Node]multicast.ErrorKind) {
	if len(targets) == 0 {
		return true, nil
	}
	start := time.Now()
	cmd := admin.NewCommand(opType, c.nextSequence())
	allOK, failures := c.multicaster.Send(ctx, c.cfg.ServerRoot, targets, cmd, c.cfg.MulticastDeadline)
	c.recordMulticastLocked(op, start, len(targets), failures)
	return allOK, failures
}

func (c *Controller) recordMulticastLocked(op string, start time.Time, total int, failures map[*node.Node]multicast.ErrorKind) {
	if c.metrics == nil {
		return
	}
	outcomes := map[string]int{"ok": total - len(failures)}
	for _, kind := range failures {
		outcomes[string(kind)]++
	}
	c.metrics.RecordMulticast(op, time.Since(start).Seconds(), outcomes)
}

func (c *Controller) recordControlOpLocked(op, outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.RecordControlOp(op, outcome)
}

func (c *Controller) recordNodeCountsLocked() {
	if c.metrics == nil {
		return
	}
	counts := map[node.Status]int{}
	for _, n := range c.table {
		counts[n.Status]++
	}
	for _, status := range []node.Status{node.StatusIdle, node.StatusInactive, node.StatusStopped, node.StatusActive, node.StatusRemoved} {
		c.metrics.SetNodesByStatus(string(status), counts[status])
	}
	c.metrics.SetRingSize(c.ring.Size())
}

// publishMetadataLocked atomically writes the current ACTIVE-node list
// to the metadata znode, creating it on first use.
func (c *Controller) publishMetadataLocked(ctx context.Context) error {
	start := time.Now()
	snapshot := c.activeSnapshotLocked()
	data, err := encodeMetadata(snapshot)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordPublish(time.Since(start).Seconds(), false)
		}
		return ecserrors.CoordinationError("failed to encode metadata snapshot", err)
	}

	exists, stat, err := c.dcsClient.Exists(ctx, c.cfg.MetadataRoot)
	if err != nil {
		if c.metrics != nil {
			c.metrics.RecordPublish(time.Since(start).Seconds(), false)
		}
		return ecserrors.CoordinationError("failed to check metadata znode", err)
	}

	if !exists {
		_, err = c.dcsClient.Create(ctx, c.cfg.MetadataRoot, data, dcs.Persistent)
	} else {
		_, err = c.dcsClient.Set(ctx, c.cfg.MetadataRoot, data, stat.Version)
	}
	if c.metrics != nil {
		c.metrics.RecordPublish(time.Since(start).Seconds(), err == nil)
	}
	if err != nil {
		return ecserrors.CoordinationError("failed to publish metadata", err)
	}
	return nil
}

func (c *Controller) activeSnapshotLocked() []*node.Node {
	return c.ring.Snapshot()
}

func outcomeLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "partial"
}

// metadataEntry is one node's entry in the published metadata
// snapshot, matching the "name hash range.lower range.upper host port"
// record the original ECS wrote to its metadata znode (spec.md §6).
type metadataEntry struct {
	Name  string `json:"name"`
	Host  string `json:"host"`
	Port  int    `json:"port"`
	Hash  string `json:"hash"`
	Lower string `json:"lower"`
	Upper string `json:"upper"`
}

// encodeMetadata renders the ring's current membership as the JSON
// array clients read from the metadata znode to route requests without
// going through the controller.
func encodeMetadata(nodes []*node.Node) ([]byte, error) {
	entries := make([]metadataEntry, len(nodes))
	for i, n := range nodes {
		entries[i] = metadataEntry{
			Name:  n.Name,
			Host:  n.Host,
			Port:  n.Port,
			Hash:  n.Hash.String(),
			Lower: n.Range.Lower.String(),
			Upper: n.Range.Upper.String(),
		}
	}
	return json.Marshal(entries)
}
