package dcs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdulrahman86/ecs/internal/dcs"
)

func connected(t *testing.T) *dcs.InProcess {
	t.Helper()
	c := dcs.NewInProcess(zap.NewNop())
	require.NoError(t, c.Connect(context.Background()))
	return c
}

func TestInProcess_CreateGetSet(t *testing.T) {
	c := connected(t)
	ctx := context.Background()

	path, err := c.Create(ctx, "/kv_servers", nil, dcs.Persistent)
	require.NoError(t, err)
	assert.Equal(t, "/kv_servers", path)

	_, err = c.Create(ctx, "/kv_servers", nil, dcs.Persistent)
	assert.ErrorIs(t, err, dcs.ErrNodeExists)

	data, stat, err := c.Get(ctx, "/kv_servers")
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, int64(0), stat.Version)

	newStat, err := c.Set(ctx, "/kv_servers", []byte("hello"), stat.Version)
	require.NoError(t, err)
	assert.Equal(t, int64(1), newStat.Version)

	_, err = c.Set(ctx, "/kv_servers", []byte("stale"), stat.Version)
	assert.ErrorIs(t, err, dcs.ErrVersionMismatch)
}

func TestInProcess_UnconnectedRejectsOps(t *testing.T) {
	c := dcs.NewInProcess(zap.NewNop())
	_, _, err := c.Exists(context.Background(), "/x")
	assert.ErrorIs(t, err, dcs.ErrSessionLost)
}

func TestInProcess_WatchFiresOnceOnSet(t *testing.T) {
	c := connected(t)
	ctx := context.Background()

	_, err := c.Create(ctx, "/node-1", []byte("init"), dcs.Persistent)
	require.NoError(t, err)

	watch, err := c.Watch(ctx, "/node-1")
	require.NoError(t, err)

	_, stat, err := c.Get(ctx, "/node-1")
	require.NoError(t, err)
	_, err = c.Set(ctx, "/node-1", []byte("ack"), stat.Version)
	require.NoError(t, err)

	select {
	case ev, ok := <-watch:
		require.True(t, ok)
		assert.Equal(t, dcs.EventDataChanged, ev.Type)
	default:
		t.Fatal("watch did not fire synchronously after Set")
	}

	_, stillOpen := <-watch
	assert.False(t, stillOpen, "a one-shot watch channel closes after firing")
}

func TestInProcess_ChildrenAndDelete(t *testing.T) {
	c := connected(t)
	ctx := context.Background()

	_, err := c.Create(ctx, "/kv_servers", nil, dcs.Persistent)
	require.NoError(t, err)
	_, err = c.Create(ctx, "/kv_servers/n1", []byte("msg"), dcs.Persistent)
	require.NoError(t, err)

	children, err := c.Children(ctx, "/kv_servers")
	require.NoError(t, err)
	assert.Equal(t, []string{"n1"}, children)

	require.NoError(t, c.Delete(ctx, "/kv_servers/n1", -1))
	children, err = c.Children(ctx, "/kv_servers")
	require.NoError(t, err)
	assert.Empty(t, children)
}

func TestInProcess_CloseClosesPendingWatches(t *testing.T) {
	c := connected(t)
	ctx := context.Background()
	_, err := c.Create(ctx, "/n1", nil, dcs.Persistent)
	require.NoError(t, err)

	watch, err := c.Watch(ctx, "/n1")
	require.NoError(t, err)

	require.NoError(t, c.Close())

	_, stillOpen := <-watch
	assert.False(t, stillOpen)
}
