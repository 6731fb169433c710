package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"netwatch/internal/model"
	"netwatch/internal/service"
)

// NodeHandler serves the node registry endpoints.
type NodeHandler struct {
	nodes *service.NodeService
}

func NewNodeHandler(nodes *service.NodeService) *NodeHandler {
	return &NodeHandler{nodes: nodes}
}

type createNodeRequest struct {
	NodeName     string `json:"node_name"`
	NodeIP       string `json:"node_ip"`
	NodeLocation string `json:"node_location"`
}

// Create handles POST /nodes. The response carries the plaintext API key,
// shown this one time only.
func (h *NodeHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid request body")
		return
	}

	node, apiKey, err := h.nodes.CreateNode(r.Context(), identityFrom(r),
		req.NodeName, req.NodeIP, req.NodeLocation)
	if err != nil {
		respondWithError(w, err)
		return
	}

	respondSuccess(w, "Node created successfully", Envelope{
		"node":    node,
		"api_key": apiKey,
	})
}

// List handles GET /nodes. With ?admin=true an admin sees every node with
// owner names; otherwise the caller sees their own.
func (h *NodeHandler) List(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("admin") == "true"

	nodes, err := h.nodes.ListNodes(r.Context(), identityFrom(r), all)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if nodes == nil {
		nodes = []*model.Node{}
	}

	respondSuccess(w, "", Envelope{
		"nodes": nodes,
		"count": len(nodes),
	})
}

type updateNodeRequest struct {
	NodeID int64  `json:"node_id"`
	Status string `json:"status"`
}

// UpdateStatus handles PUT /nodes.
func (h *NodeHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req updateNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid request body")
		return
	}
	if req.NodeID == 0 {
		respondBadRequest(w, "Node ID required")
		return
	}

	if err := h.nodes.UpdateStatus(r.Context(), identityFrom(r), req.NodeID, req.Status); err != nil {
		respondWithError(w, err)
		return
	}
	respondSuccess(w, "Node status updated", nil)
}

// Delete handles DELETE /nodes?node_id=.
func (h *NodeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	nodeID, err := strconv.ParseInt(r.URL.Query().Get("node_id"), 10, 64)
	if err != nil {
		respondBadRequest(w, "Node ID required")
		return
	}

	if err := h.nodes.DeleteNode(r.Context(), identityFrom(r), nodeID); err != nil {
		respondWithError(w, err)
		return
	}
	respondSuccess(w, "Node deleted", nil)
}
