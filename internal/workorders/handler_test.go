package workorders

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/tana-fms/tana-fms/internal/rbac"
	"github.com/tana-fms/tana-fms/internal/shared"
	_ "github.com/tana-fms/tana-fms/testing"
)

func testRouter(t *testing.T, repo *memRepo) http.Handler {
	t.Helper()
	mw := rbac.Middleware{Logger: slog.Default()}
	h := NewHandler(slog.Default(), testService(t, repo), mw)
	r := chi.NewRouter()
	r.Use(mw.ResolveActor)
	r.Route("/work-orders", h.MountRoutes)
	return r
}

func doRequest(t *testing.T, handler http.Handler, method, path, body string, role shared.Role) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(rbac.HeaderActorID, uuid.NewString())
	req.Header.Set(rbac.HeaderActorName, "tester")
	req.Header.Set(rbac.HeaderActorRole, string(role))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func TestCreateWorkOrderEndpoint(t *testing.T) {
	repo := newMemRepo()
	router := testRouter(t, repo)

	body := `{
		"equipment_id": "` + uuid.NewString() + `",
		"workshop_id": "` + uuid.NewString() + `",
		"work_type": "corrective",
		"description": "hydraulic hose replacement",
		"planned_labor_cost": "1200.50"
	}`
	rr := doRequest(t, router, http.MethodPost, "/work-orders", body, shared.RoleSupervisor)

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"pending_approval"`)
	require.Contains(t, rr.Body.String(), `"planned_labor_cost":"1200.5"`)
	require.Len(t, repo.orders, 1)
}

func TestCreateWorkOrderRequiresRole(t *testing.T) {
	router := testRouter(t, newMemRepo())
	rr := doRequest(t, router, http.MethodPost, "/work-orders", `{}`, shared.RoleTeamMember)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestCreateWorkOrderRejectsMissingFields(t *testing.T) {
	router := testRouter(t, newMemRepo())
	rr := doRequest(t, router, http.MethodPost, "/work-orders", `{"work_type":"corrective"}`, shared.RoleSupervisor)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "Validation Failed")
}

func TestTransitionEndpointMapsInvalidEdgeTo422(t *testing.T) {
	repo := newMemRepo()
	wo := seedOrder(repo, StatusPendingApproval)
	router := testRouter(t, repo)

	rr := doRequest(t, router, http.MethodPost, "/work-orders/"+wo.ID.String()+"/transition",
		`{"status":"completed"}`, shared.RoleSupervisor)
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestTransitionEndpointApprovesToActive(t *testing.T) {
	repo := newMemRepo()
	wo := seedOrder(repo, StatusPendingApproval)
	router := testRouter(t, repo)

	rr := doRequest(t, router, http.MethodPost, "/work-orders/"+wo.ID.String()+"/transition",
		`{"status":"active"}`, shared.RoleSupervisor)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"status":"active"`)
}

func TestGetWorkOrderUnknownID(t *testing.T) {
	router := testRouter(t, newMemRepo())
	rr := doRequest(t, router, http.MethodGet, "/work-orders/"+uuid.NewString(), "", shared.RoleVerifier)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMissingActorHeadersRejected(t *testing.T) {
	router := testRouter(t, newMemRepo())
	req := httptest.NewRequest(http.MethodGet, "/work-orders", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}
