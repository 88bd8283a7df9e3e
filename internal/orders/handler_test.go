package orders

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/dynaclean/dynaflow/internal/rbac"
	"github.com/dynaclean/dynaflow/internal/shared"
	_ "github.com/dynaclean/dynaflow/testing"
)

// newTestRouter serves the order routes as id; a zero id leaves the request anonymous.
func newTestRouter(svc *Service, id shared.Identity) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !id.IsZero() {
				req = req.WithContext(shared.ContextWithIdentity(req.Context(), id))
			}
			next.ServeHTTP(w, req)
		})
	})
	mw := rbac.Middleware{Service: rbac.NewService(rbac.DefaultGrants(), []string{"admin", "superadmin"}), Logger: slog.Default()}
	r.Route("/orders", NewHandler(slog.Default(), svc, mw).MountRoutes)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeOutcome(t *testing.T, rec *httptest.ResponseRecorder) Outcome {
	t.Helper()
	var out Outcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

const createBody = `{"quote_number":"Q-77","client_name":"Acme","booking_by":"meera","grand_total":"5400.00",
	"items":[{"item_code":"X1","item_name":"Scrubber","zone":"Delhi","quantity":1}]}`

func TestHandlerCreateAndReplay(t *testing.T) {
	env := newTestEnv(t, false)
	sales := newTestRouter(env.svc, salesID)

	rec := do(t, sales, http.MethodPost, "/orders/", createBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decodeOutcome(t, rec)
	require.Equal(t, ResultSucceeded, out.Result)
	require.Equal(t, StageDraft, out.Order.Stage())

	rec = do(t, sales, http.MethodPost, "/orders/", createBody)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, ResultAlreadyDone, decodeOutcome(t, rec).Result)

	rec = do(t, sales, http.MethodPost, "/orders/", `{"quote_number":"Q-77","client_name":"Acme","booking_by":"meera","grand_total":"1.00","items":[{"item_code":"X1","zone":"Delhi","quantity":1}]}`)
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, sales, http.MethodPost, "/orders/", `{"quote_number":"Q-78","client_name":"Acme","booking_by":"meera","items":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))

	rec = do(t, sales, http.MethodGet, fmt.Sprintf("/orders/%d", out.Order.ID), "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"quote_number":"Q-77"`)
}

func TestHandlerStatusMapping(t *testing.T) {
	env := newTestEnv(t, false)
	o := env.book(t, "Q-1")
	admin := newTestRouter(env.svc, adminID)
	path := fmt.Sprintf("/orders/%d", o.ID)

	require.Equal(t, http.StatusUnauthorized, do(t, newTestRouter(env.svc, shared.Identity{}), http.MethodGet, path, "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, admin, http.MethodGet, "/orders/abc", "").Code)
	require.Equal(t, http.StatusNotFound, do(t, admin, http.MethodGet, "/orders/999", "").Code)
	require.Equal(t, http.StatusForbidden, do(t, newTestRouter(env.svc, otherID), http.MethodPost, path+"/account", "").Code)
	require.Equal(t, http.StatusConflict, do(t, admin, http.MethodPost, path+"/admin", "").Code)
	require.Equal(t, http.StatusForbidden, do(t, admin, http.MethodPost, path+"/delivery", "").Code)
	require.Equal(t, http.StatusConflict, do(t, newTestRouter(env.svc, salesID), http.MethodPost, path+"/delivery", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, admin, http.MethodPost, path+"/returns", `{"kind":"sideways","items":[]}`).Code)
}

func TestHandlerLifecycle(t *testing.T) {
	env := newTestEnv(t, false)
	env.repo.seedStock("X1", "Delhi", 4)
	env.repo.seedStock("Y2", "South", 4)
	o := env.book(t, "Q-1")
	_, err := env.svc.Decide(context.Background(), o.ID, shared.ApprovalApprove, "", cmd(adminID))
	require.NoError(t, err)
	path := fmt.Sprintf("/orders/%d", o.ID)

	accounts := newTestRouter(env.svc, shared.Identity{Username: "asha", Role: shared.RoleAccounts})
	dispatcher := newTestRouter(env.svc, shared.Identity{Username: "ravi", Role: shared.RoleDispatch})
	service := newTestRouter(env.svc, shared.Identity{Username: "sunil", Role: shared.RoleService})
	admin := newTestRouter(env.svc, adminID)
	sales := newTestRouter(env.svc, salesID)

	require.Equal(t, http.StatusOK, do(t, accounts, http.MethodPost, path+"/account", "").Code)
	require.Equal(t, http.StatusForbidden, do(t, accounts, http.MethodPost, path+"/admin", "").Code)
	require.Equal(t, http.StatusOK, do(t, admin, http.MethodPost, path+"/admin", "").Code)

	rec := do(t, dispatcher, http.MethodPost, path+"/reserve", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeOutcome(t, rec).Reservations, 2)

	rec = do(t, dispatcher, http.MethodPost, path+"/dispatch",
		`{"entries":[{"item_code":"X1","godown":"Delhi","serial_no":"SN-1"},{"item_code":"Y2","godown":"South"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, StageDispatched, decodeOutcome(t, rec).Order.Stage())

	rec = do(t, sales, http.MethodPost, path+"/delivery", `{"delivered_on":"2024-05-30"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Equal(t, StageDelivered, decodeOutcome(t, rec).Order.Stage())

	require.Equal(t, http.StatusOK, do(t, service, http.MethodPost, path+"/installation", "").Code)
	rec = do(t, service, http.MethodPost, path+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, StageComplete, decodeOutcome(t, rec).Order.Stage())

	rec = do(t, service, http.MethodPost, path+"/complete", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, ResultAlreadyDone, decodeOutcome(t, rec).Result)
}

func TestHandlerIdempotencyHeader(t *testing.T) {
	env := newTestEnv(t, false)
	o := env.book(t, "Q-1")
	sales := newTestRouter(env.svc, salesID)
	path := fmt.Sprintf("/orders/%d/cancel", o.ID)

	rec := do(t, sales, http.MethodPost, path, "", IdempotencyHeader, "cancel-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, ResultSucceeded, decodeOutcome(t, rec).Result)

	rec = do(t, sales, http.MethodPost, path, "", IdempotencyHeader, "cancel-1")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, ResultAlreadyDone, decodeOutcome(t, rec).Result)

	// Same key from another actor fingerprints differently.
	rec = do(t, newTestRouter(env.svc, adminID), http.MethodPost, path, "", IdempotencyHeader, "cancel-1")
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerDeleteRequiresAdmin(t *testing.T) {
	env := newTestEnv(t, false)
	o := env.book(t, "Q-1")
	path := fmt.Sprintf("/orders/%d", o.ID)

	require.Equal(t, http.StatusForbidden, do(t, newTestRouter(env.svc, salesID), http.MethodDelete, path, "").Code)
	require.Equal(t, http.StatusOK, do(t, newTestRouter(env.svc, adminID), http.MethodPost, path, "").Code)
	require.Equal(t, http.StatusNotFound, do(t, newTestRouter(env.svc, adminID), http.MethodDelete, path, "").Code)
}

func TestHandlerListFilters(t *testing.T) {
	env := newTestEnv(t, false)
	env.book(t, "Q-1")
	env.book(t, "Q-2")
	admin := newTestRouter(env.svc, adminID)

	rec := do(t, admin, http.MethodGet, "/orders/?per_page=1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Orders     []Order           `json:"orders"`
		Pagination shared.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Orders, 2, "the memory repository does not page")
	require.Equal(t, 1, body.Pagination.PerPage)

	require.Equal(t, http.StatusBadRequest, do(t, admin, http.MethodGet, "/orders/?stage=LOST", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, admin, http.MethodGet, "/orders/?cancelled=maybe", "").Code)
	require.Equal(t, http.StatusBadRequest, do(t, admin, http.MethodGet, "/orders/?created_from=2024-05-02&created_to=2024-04-30", "").Code)
}
