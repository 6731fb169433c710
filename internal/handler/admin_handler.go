package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"netwatch/internal/model"
	"netwatch/internal/service"
)

// AdminHandler serves the admin management endpoint. All operations require
// the admin role; enforcement lives in the service layer.
type AdminHandler struct {
	admin *service.AdminService
	nodes *service.NodeService
}

func NewAdminHandler(admin *service.AdminService, nodes *service.NodeService) *AdminHandler {
	return &AdminHandler{admin: admin, nodes: nodes}
}

// Get handles GET /admin, dispatching on ?stats, ?users, ?logs.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch {
	case q.Has("stats"):
		h.stats(w, r)
	case q.Has("users"):
		h.users(w, r)
	case q.Has("logs"):
		h.logs(w, r)
	default:
		respondBadRequest(w, "Invalid action")
	}
}

func (h *AdminHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.admin.SystemStats(r.Context(), identityFrom(r))
	if err != nil {
		respondWithError(w, err)
		return
	}
	respondSuccess(w, "", Envelope{
		"stats": stats,
	})
}

func (h *AdminHandler) users(w http.ResponseWriter, r *http.Request) {
	users, err := h.admin.ListUsers(r.Context(), identityFrom(r))
	if err != nil {
		respondWithError(w, err)
		return
	}
	if users == nil {
		users = []*model.User{}
	}
	respondSuccess(w, "", Envelope{
		"users": users,
		"count": len(users),
	})
}

func (h *AdminHandler) logs(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	logs, err := h.admin.SystemLogs(r.Context(), identityFrom(r), limit)
	if err != nil {
		respondWithError(w, err)
		return
	}
	if logs == nil {
		logs = []model.AuditEvent{}
	}
	respondSuccess(w, "", Envelope{
		"logs":  logs,
		"count": len(logs),
	})
}

type adminActionRequest struct {
	Action string `json:"action"`
	UserID int64  `json:"user_id"`
	NodeID int64  `json:"node_id"`
	Role   string `json:"role"`
	Status string `json:"status"`
}

// Action handles POST and PUT /admin with an action field.
func (h *AdminHandler) Action(w http.ResponseWriter, r *http.Request) {
	var req adminActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid request body")
		return
	}
	if req.Action == "" {
		respondBadRequest(w, "Action required")
		return
	}

	identity := identityFrom(r)
	switch req.Action {
	case "update_user_role":
		if err := h.admin.UpdateUserRole(r.Context(), identity, req.UserID, req.Role); err != nil {
			respondWithError(w, err)
			return
		}
		respondSuccess(w, "User role updated", nil)
	case "update_node_status":
		// Node status changes go through the registry's owner-or-admin path;
		// for an admin caller that always passes.
		if err := service.RequireAdmin(identity); err != nil {
			respondWithError(w, err)
			return
		}
		if err := h.nodes.UpdateStatus(r.Context(), identity, req.NodeID, req.Status); err != nil {
			respondWithError(w, err)
			return
		}
		respondSuccess(w, "Node status updated", nil)
	default:
		respondBadRequest(w, "Invalid action")
	}
}

// Delete handles DELETE /admin?user_id=.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil {
		respondBadRequest(w, "User ID required")
		return
	}

	if err := h.admin.DeleteUser(r.Context(), identityFrom(r), userID); err != nil {
		respondWithError(w, err)
		return
	}
	respondSuccess(w, "User deleted", nil)
}
