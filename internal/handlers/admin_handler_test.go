package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/BradenHooton/otpgate/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAdmin = &models.User{
	ID:     "6f1c1b52-9a57-4a8e-8d0e-2b3a1f0d9c11",
	Email:  "admin@example.com",
	Role:   models.RoleAdmin,
	Status: models.UserStatusActive,
}

// adminRouter mounts the handler the way the application does, minus the
// role middleware, which is replaced by placing testAdmin in the context.
func adminRouter(h *AdminHandler, actor *models.User) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if actor != nil {
				req = WithAdmin(req, actor)
			}
			next.ServeHTTP(w, req)
		})
	})
	r.Get("/admin/dashboard", h.Dashboard)
	r.Get("/admin/audit-logs", h.AuditLogs)
	r.Get("/admin/alerts", h.Alerts)
	r.Post("/admin/alerts/{id}/resolve", h.ResolveAlert)
	r.Post("/admin/alerts/{id}/ignore", h.IgnoreAlert)
	r.Post("/admin/users/{id}/status", h.SetUserStatus)
	return r
}

func TestAdminHandler_RequiresActor(t *testing.T) {
	router := adminRouter(NewAdminHandler(&MockAdminService{}, nil), nil)

	for _, path := range []string{"/admin/dashboard", "/admin/audit-logs", "/admin/alerts"} {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, NewTestRequest(t, "GET", path, nil))
		AssertErrorResponse(t, w, http.StatusUnauthorized, "unauthorized")
	}
}

func TestAdminHandler_Dashboard(t *testing.T) {
	svc := &MockAdminService{
		DashboardFunc: func(ctx context.Context, actor *models.User, meta services.RequestMeta) (*services.DashboardStats, error) {
			assert.Equal(t, testAdmin.ID, actor.ID)
			return &services.DashboardStats{Users: models.UserStats{Total: 3}, ActiveAlerts: 2}, nil
		},
	}
	router := adminRouter(NewAdminHandler(svc, nil), testAdmin)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "GET", "/admin/dashboard", nil))

	var resp services.DashboardStats
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, 3, resp.Users.Total)
	assert.Equal(t, 2, resp.ActiveAlerts)
}

func TestAdminHandler_AuditLogs(t *testing.T) {
	var got models.AuditFilter
	svc := &MockAdminService{
		AuditLogsFunc: func(ctx context.Context, actor *models.User, f models.AuditFilter, meta services.RequestMeta) ([]*models.AuditEvent, error) {
			got = f
			return []*models.AuditEvent{{EventType: models.EventLoginFailed}}, nil
		},
	}
	router := adminRouter(NewAdminHandler(svc, nil), testAdmin)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "GET", "/admin/audit-logs?email=Demo@Example.com&event_type=login_failed,%20otp_failed&limit=20&offset=x", nil))

	var resp AuditLogsResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "demo@example.com", got.Email)
	assert.Equal(t, []string{"login_failed", "otp_failed"}, got.EventTypes)
	assert.Equal(t, 20, got.Limit)
	assert.Equal(t, 0, got.Offset)
}

func TestAdminHandler_AuditLogs_EmptyIsArray(t *testing.T) {
	router := adminRouter(NewAdminHandler(&MockAdminService{}, nil), testAdmin)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "GET", "/admin/audit-logs", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"events":[],"count":0}`, w.Body.String())
}

func TestAdminHandler_Alerts(t *testing.T) {
	svc := &MockAdminService{
		AlertsFunc: func(ctx context.Context, actor *models.User, status string, limit int, meta services.RequestMeta) ([]*models.SecurityAlert, error) {
			if status == "bogus" {
				return nil, models.ErrBadRequest
			}
			return []*models.SecurityAlert{{AlertType: models.AlertNewIPLogin, Status: status}}, nil
		},
	}
	router := adminRouter(NewAdminHandler(svc, nil), testAdmin)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "GET", "/admin/alerts?status=active", nil))
	var resp AlertsResponse
	AssertJSONResponse(t, w, http.StatusOK, &resp)
	require.Len(t, resp.Alerts, 1)
	assert.Equal(t, models.AlertStatusActive, resp.Alerts[0].Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "GET", "/admin/alerts?status=bogus", nil))
	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestAdminHandler_UpdateAlert(t *testing.T) {
	id := uuid.New()
	var gotStatus string
	svc := &MockAdminService{
		UpdateAlertStatusFunc: func(ctx context.Context, actor *models.User, alertID uuid.UUID, status string, meta services.RequestMeta) (*models.SecurityAlert, error) {
			if alertID != id {
				return nil, models.ErrNotFound
			}
			gotStatus = status
			return &models.SecurityAlert{ID: alertID, Status: status}, nil
		},
	}
	router := adminRouter(NewAdminHandler(svc, nil), testAdmin)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "POST", "/admin/alerts/"+id.String()+"/resolve", nil))
	AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Equal(t, models.AlertStatusResolved, gotStatus)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "POST", "/admin/alerts/"+id.String()+"/ignore", nil))
	AssertJSONResponse(t, w, http.StatusOK, nil)
	assert.Equal(t, models.AlertStatusIgnored, gotStatus)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "POST", "/admin/alerts/"+uuid.NewString()+"/resolve", nil))
	AssertErrorResponse(t, w, http.StatusNotFound, "not_found")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "POST", "/admin/alerts/42/resolve", nil))
	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestAdminHandler_SetUserStatus(t *testing.T) {
	target := uuid.NewString()
	svc := &MockAdminService{
		SetUserStatusFunc: func(ctx context.Context, actor *models.User, userID, status string, meta services.RequestMeta) (*models.User, error) {
			if userID == actor.ID {
				return nil, models.ErrForbidden
			}
			return &models.User{ID: userID, Status: status}, nil
		},
	}
	router := adminRouter(NewAdminHandler(svc, nil), testAdmin)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "POST", "/admin/users/"+target+"/status", map[string]string{"status": "disabled"}))
	var user models.User
	AssertJSONResponse(t, w, http.StatusOK, &user)
	assert.Equal(t, models.UserStatusDisabled, user.Status)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "POST", "/admin/users/"+testAdmin.ID+"/status", map[string]string{"status": "disabled"}))
	AssertErrorResponse(t, w, http.StatusForbidden, "forbidden")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "POST", "/admin/users/"+target+"/status", map[string]string{"status": "banned"}))
	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, NewTestRequest(t, "POST", "/admin/users/not-a-uuid/status", map[string]string{"status": "active"}))
	AssertErrorResponse(t, w, http.StatusBadRequest, "bad_request")
}

func TestQueryInt(t *testing.T) {
	assert.Equal(t, 0, queryInt(""))
	assert.Equal(t, 0, queryInt("abc"))
	assert.Equal(t, 0, queryInt("-4"))
	assert.Equal(t, 15, queryInt("15"))
}
