package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockRiskObserver implements RiskObserver for testing
type MockRiskObserver struct {
	EvaluateFunc func(ctx context.Context, e *models.AuditEvent) []*models.SecurityAlert
	seen         []*models.AuditEvent
}

func (m *MockRiskObserver) Evaluate(ctx context.Context, e *models.AuditEvent) []*models.SecurityAlert {
	m.seen = append(m.seen, e)
	if m.EvaluateFunc != nil {
		return m.EvaluateFunc(ctx, e)
	}
	return nil
}

func TestAuditService_Record(t *testing.T) {
	repo := &memAuditRepo{}
	observer := &MockRiskObserver{}
	svc := NewAuditService(repo, observer, testLogger())
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	svc.Record(context.Background(), &models.AuditEvent{Email: "u@example.com", EventType: models.EventLogout})

	require.Len(t, repo.events, 1)
	assert.Equal(t, now, repo.events[0].CreatedAt)
	assert.Equal(t, models.RiskLow, repo.events[0].RiskLevel)
	require.Len(t, observer.seen, 1)
	assert.Equal(t, models.EventLogout, observer.seen[0].EventType)
}

func TestAuditService_Record_KeepsTimestamp(t *testing.T) {
	repo := &memAuditRepo{}
	svc := NewAuditService(repo, nil, testLogger())
	at := time.Date(2025, 12, 24, 0, 0, 0, 0, time.UTC)

	svc.Record(context.Background(), &models.AuditEvent{Email: "u@example.com", EventType: models.EventLogout, CreatedAt: at, RiskLevel: models.RiskHigh})

	require.Len(t, repo.events, 1)
	assert.Equal(t, at, repo.events[0].CreatedAt)
	assert.Equal(t, models.RiskHigh, repo.events[0].RiskLevel)
}

func TestAuditService_Record_PersistenceFailureSwallowed(t *testing.T) {
	repo := &memAuditRepo{
		AppendFunc: func(ctx context.Context, e *models.AuditEvent) (*models.AuditEvent, error) {
			return nil, errors.New("connection refused")
		},
	}
	observer := &MockRiskObserver{}
	svc := NewAuditService(repo, observer, testLogger())

	assert.NotPanics(t, func() {
		svc.Record(context.Background(), &models.AuditEvent{Email: "u@example.com", EventType: models.EventLoginFailed})
	})
	assert.Len(t, observer.seen, 1)
}

func TestAuthEvent(t *testing.T) {
	e := authEvent(models.EventLoginFailed, "u@example.com", "", metaA, models.RiskMedium, "invalid_password")
	assert.Nil(t, e.UserID)
	assert.Equal(t, metaA.IPAddress, e.IPAddress)
	assert.Equal(t, metaA.UserAgent, e.UserAgent)

	e = authEvent(models.EventLoginSuccess, "u@example.com", "id-1", metaA, models.RiskLow, "")
	require.NotNil(t, e.UserID)
	assert.Equal(t, "id-1", *e.UserID)
}
