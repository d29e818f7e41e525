package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"telehealth-signaling/internal/auth"

	"github.com/gin-gonic/gin"
)

func do(t *testing.T, role string, allowed ...string) int {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), "u1", "U", role))
		}
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"success": true})
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AllowsListedRole(t *testing.T) {
	if code := do(t, RoleDoctor, RoleDoctor, RolePatient); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_DeniesUnlistedRole(t *testing.T) {
	if code := do(t, RolePatient, RoleDoctor); code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", code)
	}
}

func TestRequireAnyRole_SuperAdminBypasses(t *testing.T) {
	if code := do(t, RoleSuperAdmin, RoleDoctor); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
}

func TestRequireAnyRole_MissingIdentityUnauthorized(t *testing.T) {
	if code := do(t, "", RoleDoctor); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}
