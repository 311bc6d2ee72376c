package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/abdulrahman86/ecs/internal/admin"
	"github.com/abdulrahman86/ecs/internal/controller"
	"github.com/abdulrahman86/ecs/internal/dcs"
	"github.com/abdulrahman86/ecs/internal/httpapi"
	"github.com/abdulrahman86/ecs/internal/launch"
	"github.com/abdulrahman86/ecs/internal/membership"
	"github.com/abdulrahman86/ecs/internal/metrics"
	"github.com/abdulrahman86/ecs/internal/multicast"
	"github.com/abdulrahman86/ecs/internal/node"
)

const testRoot = "/kv_servers"

// startFakeNode watches its own znode and acks whatever admin command
// it observes, like a real storage node process would.
func startFakeNode(t *testing.T, c *dcs.InProcess, path string) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})

	go func() {
		first := true
		for {
			if ctx.Err() != nil {
				return
			}
			watch, err := c.Watch(ctx, path)
			if err != nil {
				return
			}
			if first {
				close(ready)
				first = false
			}
			select {
			case _, ok := <-watch:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
			time.Sleep(3 * time.Millisecond)
			data, stat, err := c.Get(ctx, path)
			if err != nil {
				return
			}
			msg, err := admin.Decode(data)
			if err != nil {
				return
			}
			ackData, _ := admin.Encode(admin.NewAck(msg.Seq))
			c.Set(ctx, path, ackData, stat.Version)
		}
	}()

	<-ready
	return cancel
}

func newTestHandler(t *testing.T, poolNames []string) *httpapi.Handler {
	t.Helper()
	logger := zap.NewNop()

	client := dcs.NewInProcess(logger)
	require.NoError(t, client.Connect(context.Background()))

	liveness, err := membership.New(membership.Config{Enabled: false}, logger)
	require.NoError(t, err)

	m := metrics.New(prometheus.NewRegistry())
	mc := multicast.New(client, liveness, logger)

	launcher := &launch.InProcess{OnLaunch: func(n *node.Node) error {
		cancel := startFakeNode(t, client, multicast.NodePath(testRoot, n.Name))
		t.Cleanup(cancel)
		return nil
	}}

	ctrl := controller.New(controller.Config{
		ServerRoot:        testRoot,
		MetadataRoot:      "/metadata",
		MulticastDeadline: time.Second,
	}, client, mc, launcher, liveness, m, logger)

	var pool []*node.Node
	for i, name := range poolNames {
		pool = append(pool, node.New(name, "10.0.0.1", 8000+i))
	}
	ctrl.LoadPool(pool)

	return httpapi.New(ctrl, logger)
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAddNodes_Success(t *testing.T) {
	h := newTestHandler(t, []string{"n1", "n2"})

	body, _ := json.Marshal(map[string]interface{}{"count": 2, "cacheStrategy": node.CacheLRU, "cacheSize": 10})
	req := httptest.NewRequest(http.MethodPost, "/v1/nodes/add", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.AddNodes(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp["success"].(bool))
}

func TestAddNodes_RejectsNonPost(t *testing.T) {
	h := newTestHandler(t, []string{"n1"})

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes/add", nil)
	rec := httptest.NewRecorder()

	h.AddNodes(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestAddNodes_InvalidBody(t *testing.T) {
	h := newTestHandler(t, []string{"n1"})

	req := httptest.NewRequest(http.MethodPost, "/v1/nodes/add", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	h.AddNodes(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddNodes_InsufficientCapacityMapsToBadRequest(t *testing.T) {
	h := newTestHandler(t, []string{"n1"})

	body, _ := json.Marshal(map[string]interface{}{"count": 5})
	req := httptest.NewRequest(http.MethodPost, "/v1/nodes/add", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.AddNodes(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp["success"].(bool))
	assert.Equal(t, "InsufficientCapacity", resp["errorCode"])
}

func TestGetNodeByKey_MissingQueryParam(t *testing.T) {
	h := newTestHandler(t, []string{"n1"})

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes/by-key", nil)
	rec := httptest.NewRecorder()

	h.GetNodeByKey(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetNodeByKey_NoActiveNodesMapsToServiceUnavailable(t *testing.T) {
	h := newTestHandler(t, []string{"n1"})

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes/by-key?key=anything", nil)
	rec := httptest.NewRecorder()

	h.GetNodeByKey(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGetNodes_EmptyPool(t *testing.T) {
	h := newTestHandler(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/nodes", nil)
	rec := httptest.NewRecorder()

	h.GetNodes(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.Empty(t, resp["data"])
}

func TestStartStop_RoundTrip(t *testing.T) {
	h := newTestHandler(t, []string{"n1"})

	addBody, _ := json.Marshal(map[string]interface{}{"count": 1})
	addReq := httptest.NewRequest(http.MethodPost, "/v1/nodes/add", bytes.NewReader(addBody))
	addRec := httptest.NewRecorder()
	h.AddNodes(addRec, addReq)
	require.Equal(t, http.StatusOK, addRec.Code)

	startReq := httptest.NewRequest(http.MethodPost, "/v1/service/start", nil)
	startRec := httptest.NewRecorder()
	h.Start(startRec, startReq)
	assert.Equal(t, http.StatusOK, startRec.Code)
	startResp := decodeEnvelope(t, startRec)
	assert.True(t, startResp["data"].(map[string]interface{})["allAcknowledged"].(bool))

	stopReq := httptest.NewRequest(http.MethodPost, "/v1/service/stop", nil)
	stopRec := httptest.NewRecorder()
	h.Stop(stopRec, stopReq)
	assert.Equal(t, http.StatusOK, stopRec.Code)
}

func TestAwaitNodes_ReachedFalseWhenNoneProvisioned(t *testing.T) {
	h := newTestHandler(t, []string{"n1"})

	body, _ := json.Marshal(map[string]interface{}{"count": 1, "timeoutMillis": 20})
	req := httptest.NewRequest(http.MethodPost, "/v1/service/await", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.AwaitNodes(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp["data"].(map[string]interface{})["reached"].(bool))
}
