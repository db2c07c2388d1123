package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/BradenHooton/otpgate/internal/auth"
	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/BradenHooton/otpgate/internal/services"
	pkghttp "github.com/BradenHooton/otpgate/pkg/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// AdminServiceInterface defines the admin service contract.
type AdminServiceInterface interface {
	Dashboard(ctx context.Context, actor *models.User, meta services.RequestMeta) (*services.DashboardStats, error)
	AuditLogs(ctx context.Context, actor *models.User, f models.AuditFilter, meta services.RequestMeta) ([]*models.AuditEvent, error)
	Alerts(ctx context.Context, actor *models.User, status string, limit int, meta services.RequestMeta) ([]*models.SecurityAlert, error)
	UpdateAlertStatus(ctx context.Context, actor *models.User, id uuid.UUID, status string, meta services.RequestMeta) (*models.SecurityAlert, error)
	SetUserStatus(ctx context.Context, actor *models.User, userID, status string, meta services.RequestMeta) (*models.User, error)
}

// AdminHandler handles admin HTTP requests. Routes are expected behind
// auth.RequireRoleMiddleware.
type AdminHandler struct {
	service  AdminServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(service AdminServiceInterface, ipConfig *pkghttp.IPConfig) *AdminHandler {
	return &AdminHandler{service: service, ipConfig: ipConfig}
}

// UserStatusRequest represents the request body for POST /admin/users/{id}/status
type UserStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active disabled"`
}

type AuditLogsResponse struct {
	Events []*models.AuditEvent `json:"events"`
	Count  int                  `json:"count"`
}

type AlertsResponse struct {
	Alerts []*models.SecurityAlert `json:"alerts"`
	Count  int                     `json:"count"`
}

// Dashboard handles GET /admin/dashboard
func (h *AdminHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		pkghttp.WriteUnauthorized(w, auth.ReasonNotAuthenticated)
		return
	}

	stats, err := h.service.Dashboard(r.Context(), actor, requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, stats)
}

// AuditLogs handles GET /admin/audit-logs
// Accepts optional ?email=, ?event_type=a,b, ?limit= and ?offset=.
func (h *AdminHandler) AuditLogs(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		pkghttp.WriteUnauthorized(w, auth.ReasonNotAuthenticated)
		return
	}

	q := r.URL.Query()
	f := models.AuditFilter{
		Email:  strings.ToLower(strings.TrimSpace(q.Get("email"))),
		Limit:  queryInt(q.Get("limit")),
		Offset: queryInt(q.Get("offset")),
	}
	if kinds := q.Get("event_type"); kinds != "" {
		for _, k := range strings.Split(kinds, ",") {
			if k = strings.TrimSpace(k); k != "" {
				f.EventTypes = append(f.EventTypes, k)
			}
		}
	}

	events, err := h.service.AuditLogs(r.Context(), actor, f, requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []*models.AuditEvent{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, AuditLogsResponse{Events: events, Count: len(events)})
}

// Alerts handles GET /admin/alerts?status=active|resolved|ignored
func (h *AdminHandler) Alerts(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		pkghttp.WriteUnauthorized(w, auth.ReasonNotAuthenticated)
		return
	}

	q := r.URL.Query()
	alerts, err := h.service.Alerts(r.Context(), actor, q.Get("status"), queryInt(q.Get("limit")), requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if alerts == nil {
		alerts = []*models.SecurityAlert{}
	}
	pkghttp.WriteJSON(w, http.StatusOK, AlertsResponse{Alerts: alerts, Count: len(alerts)})
}

// ResolveAlert handles POST /admin/alerts/{id}/resolve
func (h *AdminHandler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	h.updateAlert(w, r, models.AlertStatusResolved)
}

// IgnoreAlert handles POST /admin/alerts/{id}/ignore
func (h *AdminHandler) IgnoreAlert(w http.ResponseWriter, r *http.Request) {
	h.updateAlert(w, r, models.AlertStatusIgnored)
}

func (h *AdminHandler) updateAlert(w http.ResponseWriter, r *http.Request, status string) {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		pkghttp.WriteUnauthorized(w, auth.ReasonNotAuthenticated)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		pkghttp.WriteBadRequest(w, "Invalid alert id")
		return
	}

	alert, err := h.service.UpdateAlertStatus(r.Context(), actor, id, status, requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, alert)
}

// SetUserStatus handles POST /admin/users/{id}/status
func (h *AdminHandler) SetUserStatus(w http.ResponseWriter, r *http.Request) {
	actor := auth.UserFromContext(r.Context())
	if actor == nil {
		pkghttp.WriteUnauthorized(w, auth.ReasonNotAuthenticated)
		return
	}

	userID := chi.URLParam(r, "id")
	if _, err := uuid.Parse(userID); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid user id")
		return
	}

	var req UserStatusRequest
	if err := pkghttp.DecodeJSON(w, r, &req, maxBodyBytes); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}
	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	user, err := h.service.SetUserStatus(r.Context(), actor, userID, req.Status, requestMeta(r, h.ipConfig))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pkghttp.WriteJSON(w, http.StatusOK, user)
}

// queryInt parses a non-negative integer query value, returning 0 when
// absent or malformed.
func queryInt(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
