package handler

import (
	"net/http"

	"github.com/dmitrymomot/biogen/core"
	"github.com/dmitrymomot/biogen/pkg/identity"
)

// adminRequest is the action-dispatch envelope of the admin endpoint.
type adminRequest struct {
	Action string `json:"action"`
	UID    string `json:"uid,omitempty"`
}

// admin dispatches operator actions. Authorization happens twice: the
// session middleware already verified the token, and the allow-list check
// here decides whether that session may operate the surface at all.
func (h *handlers) admin(w http.ResponseWriter, r *http.Request) {
	id, ok := identity.GetIdentity(r.Context())
	if !ok {
		core.JSONError(w, core.ErrUnauthorized)
		return
	}
	if err := h.deps.Admin.Authorize(id.Email); err != nil {
		h.writeError(w, r, err)
		return
	}

	var req adminRequest
	if err := decodeJSON(r, &req); err != nil {
		core.JSONError(w, core.ErrBadRequest)
		return
	}

	switch req.Action {
	case "checkAuth":
		core.JSON(w, http.StatusOK, map[string]bool{"ok": true})

	case "getStats":
		stats, err := h.deps.Admin.GetStats(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		core.JSON(w, http.StatusOK, stats)

	case "getUsers":
		users, err := h.deps.Admin.ListUsers(r.Context())
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{"users": users})

	case "getUserDetails":
		if req.UID == "" {
			core.JSONError(w, core.ErrBadRequest)
			return
		}
		details, err := h.deps.Admin.GetUserDetails(r.Context(), req.UID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		core.JSON(w, http.StatusOK, details)

	case "togglePro":
		if req.UID == "" {
			core.JSONError(w, core.ErrBadRequest)
			return
		}
		newStatus, err := h.deps.Admin.TogglePro(r.Context(), req.UID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{"success": true, "newStatus": newStatus})

	case "toggleDisableUser":
		if req.UID == "" {
			core.JSONError(w, core.ErrBadRequest)
			return
		}
		newStatus, err := h.deps.Admin.ToggleDisableUser(r.Context(), req.UID)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		core.JSON(w, http.StatusOK, map[string]any{"success": true, "newStatus": newStatus})

	default:
		core.JSONError(w, core.ErrBadRequest)
	}
}
