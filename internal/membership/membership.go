// Package membership maintains a gossip-based liveness view of
// provisioned nodes, so the multicaster can tell a node that left the
// cluster (TargetGone) apart from one that is merely slow to
// acknowledge (Timeout). It adapts the teacher's unwired gossip
// configuration (storage-node's GossipConfig) into a component the
// controller actually exercises.
package membership

import (
	"fmt"
	"sync"

	"github.com/hashicorp/memberlist"
	"go.uber.org/zap"
)

// Config configures the gossip-based liveness detector.
type Config struct {
	Enabled   bool
	BindAddr  string
	BindPort  int
	SeedNodes []string
}

// Detector tracks which gossip-known node names are currently alive.
// When gossip is disabled it treats every node as alive, so the
// multicaster falls back to pure timeout-based classification.
type Detector struct {
	enabled bool
	ml      *memberlist.Memberlist
	logger  *zap.Logger

	mu    sync.RWMutex
	alive map[string]bool
}

// New creates a Detector. When cfg.Enabled is false, New returns a
// Detector that reports every node alive without starting any gossip
// machinery.
func New(cfg Config, logger *zap.Logger) (*Detector, error) {
	d := &Detector{enabled: cfg.Enabled, logger: logger, alive: make(map[string]bool)}
	if !cfg.Enabled {
		return d, nil
	}

	mlConfig := memberlist.DefaultLocalConfig()
	mlConfig.Name = fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.BindPort)
	mlConfig.BindAddr = cfg.BindAddr
	mlConfig.BindPort = cfg.BindPort
	mlConfig.Events = &eventDelegate{d: d}

	ml, err := memberlist.Create(mlConfig)
	if err != nil {
		return nil, fmt.Errorf("membership: failed to create memberlist: %w", err)
	}
	d.ml = ml

	if len(cfg.SeedNodes) > 0 {
		if _, err := ml.Join(cfg.SeedNodes); err != nil {
			logger.Warn("membership: failed to join some seed nodes", zap.Error(err))
		}
	}
	return d, nil
}

// MarkKnown registers name as a node the controller expects gossip
// membership for. Until gossip reports otherwise, a freshly-registered
// node is assumed alive.
func (d *Detector) MarkKnown(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.alive[name]; !ok {
		d.alive[name] = true
	}
}

// Forget drops name from the liveness view, e.g. once a node reaches
// REMOVED.
func (d *Detector) Forget(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.alive, name)
}

// IsAlive reports whether name is currently believed alive. With
// gossip disabled, every node is reported alive.
func (d *Detector) IsAlive(name string) bool {
	if !d.enabled {
		return true
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	alive, known := d.alive[name]
	return !known || alive
}

// Shutdown leaves the gossip cluster, if gossip is enabled.
func (d *Detector) Shutdown() error {
	if d.ml == nil {
		return nil
	}
	return d.ml.Shutdown()
}

type eventDelegate struct {
	d *Detector
}

func (e *eventDelegate) NotifyJoin(n *memberlist.Node) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.alive[n.Name] = true
	if e.d.logger != nil {
		e.d.logger.Info("membership: node joined", zap.String("node", n.Name))
	}
}

func (e *eventDelegate) NotifyLeave(n *memberlist.Node) {
	e.d.mu.Lock()
	defer e.d.mu.Unlock()
	e.d.alive[n.Name] = false
	if e.d.logger != nil {
		e.d.logger.Info("membership: node left", zap.String("node", n.Name))
	}
}

func (e *eventDelegate) NotifyUpdate(n *memberlist.Node) {}
