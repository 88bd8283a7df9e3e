package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dynaclean/dynaflow/internal/shared"
)

func TestEffectivePermissions(t *testing.T) {
	svc := NewService(DefaultGrants(), []string{"Admin", "superadmin"})

	perms, err := svc.EffectivePermissions(context.Background(), shared.Identity{Username: "meera", Role: "sales"})
	require.NoError(t, err)
	require.Contains(t, perms, shared.PermOrderCreate)
	require.NotContains(t, perms, shared.PermOrderDelete)

	perms, err = svc.EffectivePermissions(context.Background(), shared.Identity{Username: "ravi", Role: "ADMIN"})
	require.NoError(t, err)
	require.ElementsMatch(t, shared.AllScopes(), perms)

	perms, err = svc.EffectivePermissions(context.Background(), shared.Identity{Username: "x", Role: "intern"})
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestMiddleware(t *testing.T) {
	mw := Middleware{Service: NewService(DefaultGrants(), []string{"admin"})}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	serve := func(h http.Handler, id shared.Identity) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if !id.IsZero() {
			req = req.WithContext(shared.ContextWithIdentity(req.Context(), id))
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	sales := shared.Identity{Username: "meera", Role: "sales"}
	anyOf := mw.RequireAny(shared.PermOrderDelete, shared.PermOrderCreate)(ok)
	allOf := mw.RequireAll(shared.PermOrderDelete, shared.PermOrderCreate)(ok)

	require.Equal(t, http.StatusUnauthorized, serve(anyOf, shared.Identity{}))
	require.Equal(t, http.StatusNoContent, serve(anyOf, sales))
	require.Equal(t, http.StatusForbidden, serve(allOf, sales))
	require.Equal(t, http.StatusNoContent, serve(allOf, shared.Identity{Username: "ravi", Role: "admin"}))
	require.Equal(t, http.StatusNoContent, serve(mw.RequireAny()(ok), shared.Identity{}))
}
