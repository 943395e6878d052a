package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/tidemark-dev/authority/pkg/contextkeys"
)

func setupHandlerTest(t *testing.T) (*mux.Router, *Engine) {
	t.Helper()
	engine, _, _ := newTestEngine(t)
	// Mutation routes are gated on roles:manage, so every test gets a
	// privileged actor to drive them with.
	if _, err := engine.AssignRole(context.Background(), "root@x.org", RoleSuperAdmin, "seed"); err != nil {
		t.Fatalf("seeding root failed: %v", err)
	}
	router := mux.NewRouter()
	NewHandlers(engine).RegisterRoutes(router)
	return router, engine
}

func doJSON(router *mux.Router, method, path, actor string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if actor != "" {
		req = req.WithContext(contextkeys.WithPrincipal(req.Context(), actor))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCheckPermissionHandler(t *testing.T) {
	router, engine := setupHandlerTest(t)
	if _, err := engine.AssignRole(context.Background(), "a@x.org", RoleEditor, "seed"); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}

	rec := doJSON(router, http.MethodPost, "/authz/check", "", map[string]interface{}{
		"principal":  "a@x.org",
		"permission": "articles:write",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decoding response failed: %v", err)
	}
	if !resp.Allowed {
		t.Fatal("Expected allowed")
	}

	rec = doJSON(router, http.MethodPost, "/authz/check", "", map[string]interface{}{
		"principal":  "a@x.org",
		"permission": "settings:manage",
	})
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Allowed {
		t.Fatal("Expected denied")
	}

	// Missing fields are a 400.
	rec = doJSON(router, http.MethodPost, "/authz/check", "", map[string]interface{}{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestCheckCombinatorHandlers(t *testing.T) {
	router, engine := setupHandlerTest(t)
	if _, err := engine.AssignRole(context.Background(), "a@x.org", RoleReadonly, "seed"); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}

	var resp struct {
		Allowed bool `json:"allowed"`
	}

	rec := doJSON(router, http.MethodPost, "/authz/check-any", "", map[string]interface{}{
		"principal":   "a@x.org",
		"permissions": []string{"settings:manage", "articles:read"},
	})
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Allowed {
		t.Fatal("Expected any-of grant")
	}

	rec = doJSON(router, http.MethodPost, "/authz/check-all", "", map[string]interface{}{
		"principal":   "a@x.org",
		"permissions": []string{"settings:manage", "articles:read"},
	})
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Allowed {
		t.Fatal("Expected all-of denial")
	}
}

func TestAssignmentLifecycleHandlers(t *testing.T) {
	router, engine := setupHandlerTest(t)
	ctx := context.Background()

	// Grant via PUT from a privileged actor.
	rec := doJSON(router, http.MethodPut, "/authz/assignments/new@x.org", "root@x.org", map[string]interface{}{
		"role": "EDITOR",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	// Read it back.
	rec = doJSON(router, http.MethodGet, "/authz/assignments/new@x.org", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var got Assignment
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("Decoding assignment failed: %v", err)
	}
	if got.Role != RoleEditor || got.AssignedBy != "root@x.org" {
		t.Fatalf("Unexpected assignment: %+v", got)
	}

	// Patch the role.
	rec = doJSON(router, http.MethodPatch, "/authz/assignments/new@x.org", "root@x.org", map[string]interface{}{
		"role": "READONLY",
	})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Expected 204, got %d: %s", rec.Code, rec.Body.String())
	}
	if a, _ := engine.ResolveAssignment(ctx, "new@x.org"); a == nil || a.Role != RoleReadonly {
		t.Fatalf("Expected patched role, got %+v", a)
	}

	// Revoke, twice: both succeed.
	for i := 0; i < 2; i++ {
		rec = doJSON(router, http.MethodDelete, "/authz/assignments/new@x.org", "root@x.org", nil)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("Expected 204 on revoke %d, got %d", i, rec.Code)
		}
	}
	rec = doJSON(router, http.MethodGet, "/authz/assignments/new@x.org", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 after revoke, got %d", rec.Code)
	}
}

func TestAssignHandlerErrorMapping(t *testing.T) {
	router, engine := setupHandlerTest(t)
	ctx := context.Background()

	// Unknown role is a 400.
	rec := doJSON(router, http.MethodPut, "/authz/assignments/new@x.org", "root@x.org", map[string]interface{}{
		"role": "OWNER",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	// An assigner without management rights is a 403.
	if _, err := engine.AssignRole(ctx, "manager@x.org", RoleContentManager, "seed"); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}
	rec = doJSON(router, http.MethodPut, "/authz/assignments/new@x.org", "manager@x.org", map[string]interface{}{
		"role": "ADMIN",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", rec.Code)
	}

	// Patching an absent principal is a 404.
	rec = doJSON(router, http.MethodPatch, "/authz/assignments/ghost@x.org", "root@x.org", map[string]interface{}{
		"is_active": false,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404, got %d", rec.Code)
	}
}

func TestAssignmentMutationsRequireManagementRights(t *testing.T) {
	router, engine := setupHandlerTest(t)
	ctx := context.Background()

	// No authenticated principal: the grant is refused and nothing is
	// persisted.
	rec := doJSON(router, http.MethodPut, "/authz/assignments/intruder@x.org", "", map[string]interface{}{
		"role": "SUPER_ADMIN",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401, got %d: %s", rec.Code, rec.Body.String())
	}
	if a, err := engine.ResolveAssignment(ctx, "intruder@x.org"); err != nil || a != nil {
		t.Fatalf("Expected no assignment after rejected grant, got %+v, %v", a, err)
	}

	// An authenticated principal without roles:manage fares no better.
	if _, err := engine.AssignRole(ctx, "editor@x.org", RoleEditor, "seed"); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}
	rec = doJSON(router, http.MethodPut, "/authz/assignments/intruder@x.org", "editor@x.org", map[string]interface{}{
		"role": "SUPER_ADMIN",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("Expected 403, got %d", rec.Code)
	}
	if a, _ := engine.ResolveAssignment(ctx, "intruder@x.org"); a != nil {
		t.Fatalf("Expected no assignment after rejected grant, got %+v", a)
	}

	// Revoke and patch are gated the same way.
	rec = doJSON(router, http.MethodDelete, "/authz/assignments/editor@x.org", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 on anonymous revoke, got %d", rec.Code)
	}
	rec = doJSON(router, http.MethodPatch, "/authz/assignments/editor@x.org", "", map[string]interface{}{
		"is_active": false,
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("Expected 401 on anonymous patch, got %d", rec.Code)
	}
}

func TestAssignHandlerWithExpiry(t *testing.T) {
	router, engine := setupHandlerTest(t)

	expiry := testStart.Add(time.Hour).Format(time.RFC3339)
	rec := doJSON(router, http.MethodPut, "/authz/assignments/temp@x.org", "root@x.org", map[string]interface{}{
		"role":       "EDITOR",
		"expires_at": expiry,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	a, err := engine.ResolveAssignment(context.Background(), "temp@x.org")
	if err != nil || a == nil {
		t.Fatalf("Resolution failed: %v, %v", a, err)
	}
	if a.ExpiresAt == nil {
		t.Fatal("Expected expiry on assignment")
	}
}

func TestActionHandler(t *testing.T) {
	router, engine := setupHandlerTest(t)
	ctx := context.Background()

	restrictions := Restrictions{IPAllowlist: []string{"10.0.0.0/8"}}
	if _, err := engine.AssignRole(ctx, "a@x.org", RoleEditor, "seed", WithRestrictions(restrictions)); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}

	var resp struct {
		Allowed bool `json:"allowed"`
	}

	rec := doJSON(router, http.MethodPost, "/authz/action", "", map[string]interface{}{
		"principal": "a@x.org",
		"action": map[string]interface{}{
			"permission": "articles:write",
			"client_ip":  "10.1.1.1",
		},
	})
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Allowed {
		t.Fatal("Expected allow from allow-listed address")
	}

	rec = doJSON(router, http.MethodPost, "/authz/action", "", map[string]interface{}{
		"principal": "a@x.org",
		"action": map[string]interface{}{
			"permission": "articles:write",
			"client_ip":  "8.8.8.8",
		},
	})
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Allowed {
		t.Fatal("Expected deny from outside address")
	}
}

func TestCatalogHandlers(t *testing.T) {
	router, _ := setupHandlerTest(t)

	rec := doJSON(router, http.MethodGet, "/authz/roles", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var defs []RoleDefinition
	if err := json.Unmarshal(rec.Body.Bytes(), &defs); err != nil {
		t.Fatalf("Decoding roles failed: %v", err)
	}
	if len(defs) != 5 || defs[0].Role != RoleSuperAdmin {
		t.Fatalf("Unexpected catalog listing: %+v", defs)
	}

	rec = doJSON(router, http.MethodGet, fmt.Sprintf("/authz/roles/%s", RoleEditor), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	rec = doJSON(router, http.MethodGet, "/authz/roles/OWNER", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("Expected 404 for unknown role, got %d", rec.Code)
	}
}

func TestEffectivePermissionsHandler(t *testing.T) {
	router, engine := setupHandlerTest(t)
	if _, err := engine.AssignRole(context.Background(), "a@x.org", RoleReadonly, "seed"); err != nil {
		t.Fatalf("seeding failed: %v", err)
	}

	rec := doJSON(router, http.MethodGet, "/authz/principals/a@x.org/permissions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	var resp struct {
		Principal   string       `json:"principal"`
		Permissions []Permission `json:"permissions"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Decoding response failed: %v", err)
	}
	if resp.Principal != "a@x.org" || len(resp.Permissions) != 4 {
		t.Fatalf("Unexpected response: %+v", resp)
	}

	// Unassigned principals get an empty list, not an error.
	rec = doJSON(router, http.MethodGet, "/authz/principals/ghost@x.org/permissions", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	resp.Permissions = nil
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if len(resp.Permissions) != 0 {
		t.Fatalf("Expected no permissions, got %v", resp.Permissions)
	}
}
