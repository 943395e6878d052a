package authority

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/tidemark-dev/authority/pkg/contextkeys"
)

// Handlers provides HTTP handlers for the authorization API
type Handlers struct {
	engine *Engine
}

// NewHandlers creates new authorization handlers
func NewHandlers(engine *Engine) *Handlers {
	return &Handlers{engine: engine}
}

// RegisterRoutes registers all authorization routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	// Permission checking
	router.HandleFunc("/authz/check", h.CheckPermission).Methods("POST")
	router.HandleFunc("/authz/check-any", h.CheckAnyPermission).Methods("POST")
	router.HandleFunc("/authz/check-all", h.CheckAllPermissions).Methods("POST")
	router.HandleFunc("/authz/action", h.CheckAction).Methods("POST")

	// Assignment management. Reads stay open for service-to-service
	// lookups; mutations require a principal holding roles:manage.
	manage := NewPermissionMiddleware(h.engine).RequirePermission(PermRolesManage)
	router.HandleFunc("/authz/assignments", h.ListAssignments).Methods("GET")
	router.HandleFunc("/authz/assignments/{principal}", h.GetAssignment).Methods("GET")
	router.Handle("/authz/assignments/{principal}", manage(http.HandlerFunc(h.AssignRole))).Methods("PUT")
	router.Handle("/authz/assignments/{principal}", manage(http.HandlerFunc(h.UpdateAssignment))).Methods("PATCH")
	router.Handle("/authz/assignments/{principal}", manage(http.HandlerFunc(h.RevokeRole))).Methods("DELETE")

	// Catalog introspection
	router.HandleFunc("/authz/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/authz/roles/{role}", h.GetRole).Methods("GET")
	router.HandleFunc("/authz/principals/{principal}/permissions", h.GetEffectivePermissions).Methods("GET")
}

type checkRequest struct {
	Principal   string       `json:"principal"`
	Permission  Permission   `json:"permission,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

type checkResponse struct {
	Allowed bool `json:"allowed"`
}

// CheckPermission answers a single-permission check
func (h *Handlers) CheckPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Principal == "" || req.Permission == "" {
		http.Error(w, "principal and permission are required", http.StatusBadRequest)
		return
	}

	allowed, err := h.engine.HasPermission(r.Context(), req.Principal, req.Permission)
	if err != nil {
		http.Error(w, "Permission check failed", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

// CheckAnyPermission answers an any-of permission check
func (h *Handlers) CheckAnyPermission(w http.ResponseWriter, r *http.Request) {
	h.checkCombinator(w, r, h.engine.HasAnyPermission)
}

// CheckAllPermissions answers an all-of permission check
func (h *Handlers) CheckAllPermissions(w http.ResponseWriter, r *http.Request) {
	h.checkCombinator(w, r, h.engine.HasAllPermissions)
}

func (h *Handlers) checkCombinator(w http.ResponseWriter, r *http.Request, check func(ctx context.Context, principal string, perms ...Permission) (bool, error)) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Principal == "" || len(req.Permissions) == 0 {
		http.Error(w, "principal and permissions are required", http.StatusBadRequest)
		return
	}

	allowed, err := check(r.Context(), req.Principal, req.Permissions...)
	if err != nil {
		http.Error(w, "Permission check failed", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

// CheckAction answers a permission check with resource context
func (h *Handlers) CheckAction(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Principal string        `json:"principal"`
		Action    ActionRequest `json:"action"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Principal == "" || req.Action.Permission == "" {
		http.Error(w, "principal and action.permission are required", http.StatusBadRequest)
		return
	}
	if req.Action.ClientIP == "" {
		req.Action.ClientIP = clientIP(r)
	}

	allowed, err := h.engine.CanPerformAction(r.Context(), req.Principal, req.Action)
	if err != nil {
		http.Error(w, "Permission check failed", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, checkResponse{Allowed: allowed})
}

// ListAssignments lists stored assignments, optionally filtered by role
func (h *Handlers) ListAssignments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		assignments []Assignment
		err         error
	)
	if role := r.URL.Query().Get("role"); role != "" {
		assignments, err = h.engine.store.ListByRole(ctx, Role(role))
	} else {
		assignments, err = h.engine.store.ListAll(ctx)
	}
	if err != nil {
		http.Error(w, "Listing assignments failed", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

// GetAssignment returns the currently valid assignment for a principal
func (h *Handlers) GetAssignment(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]

	assignment, err := h.engine.ResolveAssignment(r.Context(), principal)
	if err != nil {
		http.Error(w, "Resolving assignment failed", http.StatusServiceUnavailable)
		return
	}
	if assignment == nil {
		http.Error(w, "No assignment for principal", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, assignment)
}

// AssignRole grants a role to a principal
func (h *Handlers) AssignRole(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]

	var req struct {
		Role         Role          `json:"role"`
		ExpiresAt    *time.Time    `json:"expires_at,omitempty"`
		Restrictions *Restrictions `json:"restrictions,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var opts []AssignOption
	if req.ExpiresAt != nil {
		opts = append(opts, WithExpiry(*req.ExpiresAt))
	}
	if req.Restrictions != nil {
		opts = append(opts, WithRestrictions(*req.Restrictions))
	}

	assignedBy := contextkeys.GetPrincipal(r.Context())
	assignment, err := h.engine.AssignRole(r.Context(), principal, req.Role, assignedBy, opts...)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, assignment)
}

// UpdateAssignment applies a partial update to a principal's assignment
func (h *Handlers) UpdateAssignment(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]

	var patch AssignmentPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	updatedBy := contextkeys.GetPrincipal(r.Context())
	if err := h.engine.UpdateRole(r.Context(), principal, patch, updatedBy); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevokeRole removes a principal's assignment
func (h *Handlers) RevokeRole(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]

	revokedBy := contextkeys.GetPrincipal(r.Context())
	if err := h.engine.RevokeRole(r.Context(), principal, revokedBy); err != nil {
		http.Error(w, "Revoking assignment failed", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListRoles returns the role catalog ordered by descending level
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Catalog().Roles())
}

// GetRole returns a single role definition
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	role := Role(mux.Vars(r)["role"])

	def, ok := h.engine.Catalog().Definition(role)
	if !ok {
		http.Error(w, "Unknown role", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// GetEffectivePermissions returns the transitive permission set of a
// principal's resolved role
func (h *Handlers) GetEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	principal := mux.Vars(r)["principal"]

	perms, err := h.engine.EffectivePermissions(r.Context(), principal)
	if err != nil {
		http.Error(w, "Resolving permissions failed", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"principal":   principal,
		"permissions": perms,
	})
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidRole):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrCannotManage):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, "Operation failed", http.StatusServiceUnavailable)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return strings.TrimSpace(strings.Split(forwarded, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
