package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"power-dialer/internal/auth"
)

func roleRouter(role string, guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			ctx := auth.WithIdentity(c.Request.Context(), "u", role)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}, guard, func(c *gin.Context) {
		c.Status(200)
	})
	return r
}

func do(r *gin.Engine) int {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	if code := do(roleRouter(RoleAdmin, RequireAnyRole(RoleAgent))); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := do(roleRouter(RoleAdmin, RequireAdmin())); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_AgentAllowedOnlyWhereListed(t *testing.T) {
	if code := do(roleRouter(RoleAgent, RequireAnyRole(RoleAgent))); code != 200 {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := do(roleRouter(RoleAgent, RequireAdmin())); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_UnknownRoleDenied(t *testing.T) {
	if code := do(roleRouter("super_admin", RequireAnyRole("super_admin"))); code != 403 {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	if code := do(roleRouter("", RequireAnyRole(RoleAgent))); code != 401 {
		t.Fatalf("expected 401, got %d", code)
	}
}
