package services

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/otpgate/internal/captcha"
	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/BradenHooton/otpgate/internal/notify"
	"github.com/google/uuid"
)

// memUserRepo is an in-memory UserRepository keyed by email.
type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*models.User

	GetByEmailFunc func(ctx context.Context, email string) (*models.User, error)
	SetStatusFunc  func(ctx context.Context, id, status string) (*models.User, error)
}

func newMemUserRepo(users ...*models.User) *memUserRepo {
	r := &memUserRepo{users: map[string]*models.User{}}
	for _, u := range users {
		r.users[u.Email] = u
	}
	return r
}

func (r *memUserRepo) byID(id string) *models.User {
	for _, u := range r.users {
		if u.ID == id {
			return u
		}
	}
	return nil
}

func (r *memUserRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u := r.byID(id); u != nil {
		cp := *u
		return &cp, nil
	}
	return nil, models.ErrNotFound
}

func (r *memUserRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if r.GetByEmailFunc != nil {
		return r.GetByEmailFunc(ctx, email)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, models.ErrNotFound
}

func (r *memUserRepo) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.Email]; ok {
		return nil, models.ErrConflict
	}
	cp := *user
	cp.ID = uuid.NewString()
	r.users[cp.Email] = &cp
	out := cp
	return &out, nil
}

func (r *memUserRepo) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byID(id)
	if u == nil {
		return models.ErrNotFound
	}
	u.FailedLoginAttempts = 0
	u.LoginCount++
	u.LastLogin = &at
	return nil
}

func (r *memUserRepo) IncrementFailedLogins(ctx context.Context, id string, at time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byID(id)
	if u == nil {
		return 0, models.ErrNotFound
	}
	u.FailedLoginAttempts++
	u.LastFailedLogin = &at
	return u.FailedLoginAttempts, nil
}

func (r *memUserRepo) ListByRole(ctx context.Context, role string) ([]*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.User
	for _, u := range r.users {
		if u.Role == role {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memUserRepo) SetStatus(ctx context.Context, id, status string) (*models.User, error) {
	if r.SetStatusFunc != nil {
		return r.SetStatusFunc(ctx, id, status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u := r.byID(id)
	if u == nil {
		return nil, models.ErrNotFound
	}
	u.Status = status
	cp := *u
	return &cp, nil
}

func (r *memUserRepo) CountStats(ctx context.Context) (models.UserStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var s models.UserStats
	for _, u := range r.users {
		s.Total++
		if u.IsActive() {
			s.Active++
		}
		if u.IsAdmin() {
			s.Admins++
		}
	}
	return s, nil
}

func (r *memUserRepo) get(email string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r.users[email]
	return &cp
}

// memAuditRepo is an in-memory append-only audit log.
type memAuditRepo struct {
	mu     sync.Mutex
	events []*models.AuditEvent

	AppendFunc func(ctx context.Context, e *models.AuditEvent) (*models.AuditEvent, error)
}

func (r *memAuditRepo) Append(ctx context.Context, e *models.AuditEvent) (*models.AuditEvent, error) {
	if r.AppendFunc != nil {
		return r.AppendFunc(ctx, e)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *e
	cp.ID = uuid.New()
	r.events = append(r.events, &cp)
	return &cp, nil
}

func (r *memAuditRepo) CountSince(ctx context.Context, email string, kinds []string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Email == email && contains(kinds, e.EventType) && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memAuditRepo) DistinctSuccessIPs(ctx context.Context, email, excludingIP string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range r.events {
		if e.Email == email && e.EventType == models.EventLoginSuccess && e.IPAddress != excludingIP && !seen[e.IPAddress] {
			seen[e.IPAddress] = true
			out = append(out, e.IPAddress)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *memAuditRepo) ListRecent(ctx context.Context, f models.AuditFilter) ([]*models.AuditEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditEvent
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if f.Email != "" && e.Email != f.Email {
			continue
		}
		if len(f.EventTypes) > 0 && !contains(f.EventTypes, e.EventType) {
			continue
		}
		out = append(out, e)
	}
	if f.Offset >= len(out) {
		return nil, nil
	}
	out = out[f.Offset:]
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memAuditRepo) CountByTypeSince(ctx context.Context, kind string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.EventType == kind && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memAuditRepo) CountAllSince(ctx context.Context, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (r *memAuditRepo) Distribution(ctx context.Context, window int) (models.EventDistribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d := models.EventDistribution{EventTypes: map[string]int{}, DeliveryMethods: map[string]int{}}
	for _, e := range r.events {
		d.EventTypes[e.EventType]++
		if e.DeliveryMethod != "" {
			d.DeliveryMethods[e.DeliveryMethod]++
		}
	}
	return d, nil
}

func (r *memAuditRepo) kinds(email string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if email == "" || e.Email == email {
			out = append(out, e.EventType)
		}
	}
	return out
}

func (r *memAuditRepo) ofKind(kind string) []*models.AuditEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.AuditEvent
	for _, e := range r.events {
		if e.EventType == kind {
			out = append(out, e)
		}
	}
	return out
}

// MockSecurityAlertRepository records created alerts in memory.
type MockSecurityAlertRepository struct {
	mu     sync.Mutex
	alerts []*models.SecurityAlert

	CreateFunc       func(ctx context.Context, a *models.SecurityAlert) (*models.SecurityAlert, error)
	UpdateStatusFunc func(ctx context.Context, id uuid.UUID, status, resolvedBy string, at time.Time) (*models.SecurityAlert, error)
}

func (m *MockSecurityAlertRepository) Create(ctx context.Context, a *models.SecurityAlert) (*models.SecurityAlert, error) {
	if m.CreateFunc != nil {
		return m.CreateFunc(ctx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	cp.ID = uuid.New()
	if cp.Status == "" {
		cp.Status = models.AlertStatusActive
	}
	m.alerts = append(m.alerts, &cp)
	return &cp, nil
}

func (m *MockSecurityAlertRepository) ListByStatus(ctx context.Context, status string, limit int) ([]*models.SecurityAlert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.SecurityAlert
	for _, a := range m.alerts {
		if status == "" || a.Status == status {
			out = append(out, a)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockSecurityAlertRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status, resolvedBy string, at time.Time) (*models.SecurityAlert, error) {
	if m.UpdateStatusFunc != nil {
		return m.UpdateStatusFunc(ctx, id, status, resolvedBy, at)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.alerts {
		if a.ID == id && a.Status == models.AlertStatusActive {
			a.Status = status
			a.ResolvedAt = &at
			a.ResolvedBy = &resolvedBy
			return a, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *MockSecurityAlertRepository) CountActive(ctx context.Context) (int, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	active, critical := 0, 0
	for _, a := range m.alerts {
		if a.Status == models.AlertStatusActive {
			active++
			if a.Severity == models.RiskCritical {
				critical++
			}
		}
	}
	return active, critical, nil
}

func (m *MockSecurityAlertRepository) all() []*models.SecurityAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*models.SecurityAlert(nil), m.alerts...)
}

// MockActivityLogRepository records activity entries in memory.
type MockActivityLogRepository struct {
	mu      sync.Mutex
	entries []*models.ActivityLog
}

func (m *MockActivityLogRepository) Create(ctx context.Context, a *models.ActivityLog) (*models.ActivityLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	cp.ID = uuid.New()
	m.entries = append(m.entries, &cp)
	return &cp, nil
}

func (m *MockActivityLogRepository) ListRecent(ctx context.Context, limit int) ([]*models.ActivityLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*models.ActivityLog(nil), m.entries...)
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (m *MockActivityLogRepository) types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, e := range m.entries {
		out = append(out, e.ActivityType)
	}
	return out
}

type sentOTP struct {
	destination string
	channel     models.DeliveryMethod
	code        string
}

type sentAlert struct {
	recipients []string
	subject    string
	body       string
}

type sentNotification struct {
	userID   string
	title    string
	kind     string
	severity string
}

// MockNotifier records every dispatch request.
type MockNotifier struct {
	mu            sync.Mutex
	otps          []sentOTP
	alerts        []sentAlert
	notifications []sentNotification

	SendOTPFunc func(ctx context.Context, destination string, channel models.DeliveryMethod, code string) notify.DeliveryResult
	NotifyFunc  func(ctx context.Context, userID, email, title, message, kind, severity string) (*models.Notification, error)
}

func (m *MockNotifier) SendOTP(ctx context.Context, destination string, channel models.DeliveryMethod, code string) notify.DeliveryResult {
	m.mu.Lock()
	m.otps = append(m.otps, sentOTP{destination: destination, channel: channel, code: code})
	m.mu.Unlock()
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, destination, channel, code)
	}
	if destination == "" {
		return notify.Failed("no destination")
	}
	return notify.Delivered()
}

func (m *MockNotifier) SendAlert(ctx context.Context, recipients []string, subject, body string) notify.DeliveryResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, sentAlert{recipients: recipients, subject: subject, body: body})
	return notify.Delivered()
}

func (m *MockNotifier) Notify(ctx context.Context, userID, email, title, message, kind, severity string) (*models.Notification, error) {
	m.mu.Lock()
	m.notifications = append(m.notifications, sentNotification{userID: userID, title: title, kind: kind, severity: severity})
	m.mu.Unlock()
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, userID, email, title, message, kind, severity)
	}
	return &models.Notification{ID: uuid.New(), UserID: userID, Title: title}, nil
}

func (m *MockNotifier) lastCode() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.otps) == 0 {
		return ""
	}
	return m.otps[len(m.otps)-1].code
}

// stubIssuer hands out challenges with a fixed answer.
type stubIssuer struct {
	answer string
}

func (s *stubIssuer) Issue(kind captcha.Kind) (*captcha.Challenge, error) {
	return &captcha.Challenge{Kind: kind, Answer: s.answer, Image: "data:image/png;base64,"}, nil
}

// MockRecaptcha implements both reCAPTCHA verifier interfaces.
type MockRecaptcha struct {
	VerifyV2Func func(ctx context.Context, token, remoteIP string) captcha.RecaptchaResult
	VerifyV3Func func(ctx context.Context, token, expectedAction string, minScore float64, remoteIP string) captcha.RecaptchaResult
}

func (m *MockRecaptcha) VerifyV2(ctx context.Context, token, remoteIP string) captcha.RecaptchaResult {
	if m.VerifyV2Func != nil {
		return m.VerifyV2Func(ctx, token, remoteIP)
	}
	return captcha.RecaptchaResult{}
}

func (m *MockRecaptcha) VerifyV3(ctx context.Context, token, expectedAction string, minScore float64, remoteIP string) captcha.RecaptchaResult {
	if m.VerifyV3Func != nil {
		return m.VerifyV3Func(ctx, token, expectedAction, minScore, remoteIP)
	}
	return captcha.RecaptchaResult{}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}
