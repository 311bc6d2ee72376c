// Package httpapi renders the Controller's programmatic surface as a
// JSON-over-HTTP API: one handler per control operation, using the
// teacher's plain net/http + encoding/json shape (no protobuf/gRPC
// generated stubs exist in this project's dependency corpus) and its
// {success, errorCode, errorMessage, data} response envelope.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/abdulrahman86/ecs/internal/controller"
	"github.com/abdulrahman86/ecs/internal/ecserrors"
	"github.com/abdulrahman86/ecs/internal/node"
)

// Handler wires the Controller's operations to HTTP routes.
type Handler struct {
	ctrl   *controller.Controller
	logger *zap.Logger
}

// New constructs a Handler backed by ctrl.
func New(ctrl *controller.Controller, logger *zap.Logger) *Handler {
	return &Handler{ctrl: ctrl, logger: logger}
}

// RegisterRoutes attaches every admin endpoint to mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/nodes/add", h.AddNodes)
	mux.HandleFunc("/v1/nodes/remove", h.RemoveNodes)
	mux.HandleFunc("/v1/nodes", h.GetNodes)
	mux.HandleFunc("/v1/nodes/by-key", h.GetNodeByKey)
	mux.HandleFunc("/v1/service/start", h.Start)
	mux.HandleFunc("/v1/service/stop", h.Stop)
	mux.HandleFunc("/v1/service/shutdown", h.Shutdown)
	mux.HandleFunc("/v1/service/await", h.AwaitNodes)
}

// envelope is the response shape shared by every handler.
type envelope struct {
	Success      bool        `json:"success"`
	ErrorCode    string      `json:"errorCode,omitempty"`
	ErrorMessage string      `json:"errorMessage,omitempty"`
	Data         interface{} `json:"data,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeSuccess(w http.ResponseWriter, data interface{}) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: data})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "InternalError"
	if ecsErr, ok := err.(*ecserrors.ECSError); ok {
		code = ecsErr.Code.String()
		switch ecsErr.Code {
		case ecserrors.CodeInsufficientCapacity, ecserrors.CodeConfigFormat:
			status = http.StatusBadRequest
		case ecserrors.CodeTimeout, ecserrors.CodeCoordination, ecserrors.CodeLaunchFailed:
			status = http.StatusServiceUnavailable
		case ecserrors.CodeInvariantViolation:
			status = http.StatusInternalServerError
		}
	}
	if h.logger != nil {
		h.logger.Warn("admin API request failed", zap.Error(err), zap.String("errorCode", code))
	}
	writeJSON(w, status, envelope{Success: false, ErrorCode: code, ErrorMessage: err.Error()})
}

// addNodesRequest is the AddNodes request body.
type addNodesRequest struct {
	Count         int                `json:"count"`
	CacheStrategy node.CacheStrategy `json:"cacheStrategy"`
	CacheSize     int                `json:"cacheSize"`
}

func (h *Handler) AddNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Success: false, ErrorMessage: "POST required"})
		return
	}
	var req addNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, ErrorMessage: "invalid JSON body"})
		return
	}

	nodes, err := h.ctrl.AddNodes(r.Context(), req.Count, req.CacheStrategy, req.CacheSize)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, namesOf(nodes))
}

// removeNodesRequest is the RemoveNodes request body.
type removeNodesRequest struct {
	Names []string `json:"names"`
}

func (h *Handler) RemoveNodes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Success: false, ErrorMessage: "POST required"})
		return
	}
	var req removeNodesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, ErrorMessage: "invalid JSON body"})
		return
	}

	allOK, err := h.ctrl.RemoveNodes(r.Context(), req.Names)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, map[string]bool{"allAcknowledged": allOK})
}

func (h *Handler) GetNodes(w http.ResponseWriter, r *http.Request) {
	nodes := h.ctrl.GetNodes()
	out := make(map[string]nodeView, len(nodes))
	for name, n := range nodes {
		out[name] = toNodeView(n)
	}
	writeSuccess(w, out)
}

func (h *Handler) GetNodeByKey(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, ErrorMessage: "key query parameter is required"})
		return
	}
	n, err := h.ctrl.GetNodeByKey(key)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, toNodeView(n))
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	allOK, err := h.ctrl.Start(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, map[string]bool{"allAcknowledged": allOK})
}

func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	allOK, err := h.ctrl.Stop(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, map[string]bool{"allAcknowledged": allOK})
}

func (h *Handler) Shutdown(w http.ResponseWriter, r *http.Request) {
	allOK, err := h.ctrl.Shutdown(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeSuccess(w, map[string]bool{"allAcknowledged": allOK})
}

// awaitRequest is the AwaitNodes request body.
type awaitRequest struct {
	Count         int `json:"count"`
	TimeoutMillis int `json:"timeoutMillis"`
}

func (h *Handler) AwaitNodes(w http.ResponseWriter, r *http.Request) {
	var req awaitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Success: false, ErrorMessage: "invalid JSON body"})
		return
	}
	timeout := time.Duration(req.TimeoutMillis) * time.Millisecond
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	reached := h.ctrl.AwaitNodes(ctx, req.Count, timeout)
	writeSuccess(w, map[string]bool{"reached": reached})
}

// nodeView is the JSON-safe projection of a node.Node.
type nodeView struct {
	Name   string `json:"name"`
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Hash   string `json:"hash"`
	Status string `json:"status"`
}

func toNodeView(n *node.Node) nodeView {
	return nodeView{
		Name:   n.Name,
		Host:   n.Host,
		Port:   n.Port,
		Hash:   n.Hash.String(),
		Status: string(n.Status),
	}
}

func namesOf(nodes []*node.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name
	}
	return out
}
