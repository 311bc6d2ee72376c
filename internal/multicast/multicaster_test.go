package multicast_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdulrahman86/ecs/internal/admin"
	"github.com/abdulrahman86/ecs/internal/dcs"
	"github.com/abdulrahman86/ecs/internal/multicast"
	"github.com/abdulrahman86/ecs/internal/node"
)

type alwaysAlive struct{}

func (alwaysAlive) IsAlive(string) bool { return true }

type neverAlive struct{}

func (neverAlive) IsAlive(string) bool { return false }

func setupClient(t *testing.T, root string, names ...string) *dcs.InProcess {
	t.Helper()
	c := dcs.NewInProcess(zap.NewNop())
	require.NoError(t, c.Connect(context.Background()))
	_, err := c.Create(context.Background(), root, nil, dcs.Persistent)
	require.NoError(t, err)
	for _, name := range names {
		_, err := c.Create(context.Background(), root+"/"+name, nil, dcs.Persistent)
		require.NoError(t, err)
	}
	return c
}

// ackAfterCommand simulates a node process: it registers a watch on
// its own znode before returning, then writes an ACK back as soon as
// it observes the controller's command write. The watch must be
// registered before the caller triggers the controller's command
// write, or it would never see it — the caller must wait for the
// returned ready signal before calling Send.
func ackAfterCommand(t *testing.T, c *dcs.InProcess, path string, seq int64) <-chan struct{} {
	t.Helper()
	ready := make(chan struct{})
	go func() {
		watch, err := c.Watch(context.Background(), path)
		if err != nil {
			close(ready)
			return
		}
		close(ready)

		<-watch
		// Simulated processing delay: gives the controller's own Watch
		// call (registered immediately after its command Set) time to
		// land before this goroutine's ack Set fires it.
		time.Sleep(5 * time.Millisecond)
		_, stat, err := c.Get(context.Background(), path)
		if err != nil {
			return
		}
		ack, _ := admin.Encode(admin.NewAck(seq))
		c.Set(context.Background(), path, ack, stat.Version)
	}()
	return ready
}

func TestMulticaster_SendSuccess(t *testing.T) {
	root := "/kv_servers"
	c := setupClient(t, root, "n1")
	m := multicast.New(c, alwaysAlive{}, zap.NewNop())

	n1 := node.New("n1", "10.0.0.1", 8000)
	cmd := admin.NewCommand(admin.OpStart, 1)

	<-ackAfterCommand(t, c, multicast.NodePath(root, "n1"), 1)

	allOK, failures := m.Send(context.Background(), root, []*node.Node{n1}, cmd, time.Second)
	assert.True(t, allOK)
	assert.Empty(t, failures)
}

func TestMulticaster_TimeoutWhenNoAck(t *testing.T) {
	root := "/kv_servers"
	c := setupClient(t, root, "n1")
	m := multicast.New(c, alwaysAlive{}, zap.NewNop())

	n1 := node.New("n1", "10.0.0.1", 8000)
	cmd := admin.NewCommand(admin.OpStart, 1)
	// No simulated node: nothing ever acks.

	allOK, failures := m.Send(context.Background(), root, []*node.Node{n1}, cmd, 50*time.Millisecond)
	assert.False(t, allOK)
	require.Contains(t, failures, n1)
	assert.Equal(t, multicast.ErrTimeout, failures[n1])
}

func TestMulticaster_TargetGoneWhenLivenessSaysDead(t *testing.T) {
	root := "/kv_servers"
	c := setupClient(t, root, "n1")
	m := multicast.New(c, neverAlive{}, zap.NewNop())

	n1 := node.New("n1", "10.0.0.1", 8000)
	cmd := admin.NewCommand(admin.OpStart, 1)

	allOK, failures := m.Send(context.Background(), root, []*node.Node{n1}, cmd, 50*time.Millisecond)
	assert.False(t, allOK)
	require.Contains(t, failures, n1)
	assert.Equal(t, multicast.ErrTargetGone, failures[n1])
}

func TestMulticaster_PartialSuccess(t *testing.T) {
	root := "/kv_servers"
	c := setupClient(t, root, "n1", "n2")
	m := multicast.New(c, alwaysAlive{}, zap.NewNop())

	n1 := node.New("n1", "10.0.0.1", 8000)
	n2 := node.New("n2", "10.0.0.2", 8001)
	cmd := admin.NewCommand(admin.OpStart, 1)

	<-ackAfterCommand(t, c, multicast.NodePath(root, "n1"), 1)
	// n2 never acks.

	allOK, failures := m.Send(context.Background(), root, []*node.Node{n1, n2}, cmd, 100*time.Millisecond)
	assert.False(t, allOK)
	assert.NotContains(t, failures, n1)
	assert.Contains(t, failures, n2)
}
