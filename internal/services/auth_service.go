package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/otpgate/internal/auth"
	"github.com/BradenHooton/otpgate/internal/config"
	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/BradenHooton/otpgate/internal/notify"
)

// Internal failure reasons recorded in the audit log. Callers only ever see
// models.ErrInvalidCredentials.
const (
	reasonUnknownEmail    = "unknown_email"
	reasonInvalidPassword = "invalid_password"
	reasonAccountDisabled = "account_disabled"
)

// LoginInput is a credential submission.
type LoginInput struct {
	Email          string
	Password       string
	DeliveryMethod models.DeliveryMethod
	Captcha        CaptchaInput
	Meta           RequestMeta
}

// LoginResult describes the session after a credential submission. It is
// returned alongside errors too, so the caller can keep the session cookie.
type LoginResult struct {
	SessionID       string                 `json:"-"`
	State           models.AuthState       `json:"state"`
	CaptchaRequired bool                   `json:"captcha_required"`
	DeliveryMethod  models.DeliveryMethod  `json:"delivery_method,omitempty"`
	Destination     string                 `json:"destination,omitempty"`
	Delivery        *notify.DeliveryResult `json:"delivery,omitempty"`
}

// StatusResult is a read-only view of a session. SessionID changes when
// a verified code elevates the session.
type StatusResult struct {
	SessionID       string                `json:"-"`
	State           models.AuthState      `json:"state"`
	Email           string                `json:"email,omitempty"`
	Role            string                `json:"role,omitempty"`
	DeliveryMethod  models.DeliveryMethod `json:"delivery_method,omitempty"`
	OTPExpiresAt    *time.Time            `json:"otp_expires_at,omitempty"`
	CaptchaRequired bool                  `json:"captcha_required"`
}

// AuthDependencies groups the collaborators of AuthService.
type AuthDependencies struct {
	Users    UserRepository
	Sessions SessionStore
	Audit    *AuditService
	Activity *ActivityService
	Captcha  *CaptchaService
	Notifier Notifier
	Codes    CodeGenerator
	Hasher   PasswordMatcher
	Timing   *auth.TimingDelay // optional
}

// AuthService runs the two-step login: password, then a one-time code.
type AuthService struct {
	users    UserRepository
	sessions SessionStore
	audit    *AuditService
	activity *ActivityService
	captcha  *CaptchaService
	notifier Notifier
	codes    CodeGenerator
	hasher   PasswordMatcher
	timing   *auth.TimingDelay
	cfg      config.AuthConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewAuthService(deps AuthDependencies, cfg config.AuthConfig, logger *slog.Logger) *AuthService {
	return &AuthService{
		users:    deps.Users,
		sessions: deps.Sessions,
		audit:    deps.Audit,
		activity: deps.Activity,
		captcha:  deps.Captcha,
		notifier: deps.Notifier,
		codes:    deps.Codes,
		hasher:   deps.Hasher,
		timing:   deps.Timing,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// SubmitCredentials checks the challenge gate, then the password, and on
// success issues and dispatches a one-time code.
func (s *AuthService) SubmitCredentials(ctx context.Context, sessionID string, in LoginInput) (*LoginResult, error) {
	start := s.now()

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || !in.DeliveryMethod.Valid() {
		return nil, models.ErrBadRequest
	}

	sess, gate, err := s.admit(ctx, sessionID, in)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to admit credential submission", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	result := &LoginResult{SessionID: sess.ID, State: sess.State()}

	if gate != nil {
		if !gate.Passed {
			s.audit.Record(ctx, authEvent(models.EventCaptchaFailed, email, "", in.Meta, models.RiskMedium, gate.Detail))
			s.recordActivity(ctx, &models.ActivityLog{
				Email:        email,
				ActivityType: models.ActivityCaptchaFailed,
				Description:  gate.Detail,
				IPAddress:    in.Meta.IPAddress,
				UserAgent:    in.Meta.UserAgent,
				Severity:     models.SeverityWarning,
			})
			result.CaptchaRequired = true
			if gate.Missing {
				return result, models.ErrCaptchaRequired
			}
			return result, models.ErrCaptchaFailed
		}
		s.audit.Record(ctx, authEvent(models.EventCaptchaSuccess, email, "", in.Meta, models.RiskLow, gate.Detail))
	}

	s.audit.Record(ctx, authEvent(models.EventLoginAttempt, email, "", in.Meta, models.RiskLow, ""))

	user, reason, err := s.checkCredentials(ctx, email, in.Password)
	if err != nil {
		return result, err
	}
	if reason != "" {
		return s.credentialFailure(ctx, sess, email, user, reason, in.Meta, start, result)
	}

	return s.beginChallenge(ctx, sess.ID, user, in, result)
}

// admit decides in one session update whether the submission may reach the
// password check. When the gate is engaged the response is judged and the
// pending answer consumed. An admitted submission is counted as a gated
// failure up front and a successful login clears the count, so concurrent
// submissions see each other's counts.
//
// The returned outcome is nil when the gate was not engaged.
func (s *AuthService) admit(ctx context.Context, sessionID string, in LoginInput) (*models.SessionState, *GateOutcome, error) {
	sess, err := ensureSession(ctx, s.sessions, sessionID)
	if err != nil {
		return nil, nil, err
	}

	var remote *GateOutcome
	if s.captcha != nil && s.captcha.Required(sess) {
		remote = s.captcha.VerifyRemote(ctx, in.Captcha, in.Meta.IPAddress)
	}

	var gate *GateOutcome
	sess, err = s.sessions.Update(ctx, sess.ID, func(st *models.SessionState) error {
		gate = nil
		if s.captcha != nil && s.captcha.Required(st) {
			out := s.captcha.Consume(st, in.Captcha, remote)
			gate = &out
			if !out.Passed {
				return nil
			}
		}
		st.RecordGatedFailure()
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return sess, gate, nil
}

// checkCredentials returns the user and an empty reason on success.
func (s *AuthService) checkCredentials(ctx context.Context, email, password string) (*models.User, string, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.hasher.Matches("", password)
			return nil, reasonUnknownEmail, nil
		}
		s.logger.ErrorContext(ctx, "failed to get user by email", slog.Any("error", err))
		return nil, "", models.ErrInternalServer
	}

	if !s.hasher.Matches(user.PasswordHash, password) {
		return user, reasonInvalidPassword, nil
	}
	if !user.IsActive() {
		return user, reasonAccountDisabled, nil
	}
	return user, "", nil
}

// credentialFailure finishes a rejected submission. The gated failure was
// already counted when the submission was admitted.
func (s *AuthService) credentialFailure(ctx context.Context, sess *models.SessionState, email string, user *models.User, reason string, meta RequestMeta, start time.Time, result *LoginResult) (*LoginResult, error) {
	userID := ""
	if user != nil {
		userID = user.ID
		if _, err := s.users.IncrementFailedLogins(ctx, user.ID, s.now()); err != nil {
			s.logger.ErrorContext(ctx, "failed to increment failed logins",
				slog.String("user_id", user.ID),
				slog.Any("error", err))
		}
	}

	result.CaptchaRequired = s.captcha != nil && s.captcha.Required(sess)

	s.audit.Record(ctx, authEvent(models.EventLoginFailed, email, userID, meta, models.RiskMedium, reason))

	if s.timing != nil {
		s.timing.WaitFrom(start, false)
	}
	return result, models.ErrInvalidCredentials
}

func (s *AuthService) beginChallenge(ctx context.Context, sessionID string, user *models.User, in LoginInput, result *LoginResult) (*LoginResult, error) {
	now := s.now()

	if err := s.users.RecordLoginSuccess(ctx, user.ID, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to record login success",
			slog.String("user_id", user.ID),
			slog.Any("error", err))
	}

	code, err := s.codes.Generate()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate otp", slog.Any("error", err))
		return result, models.ErrInternalServer
	}

	// The password step raises the session's privilege, so the id the
	// client held beforehand is retired.
	sess, err := s.sessions.Rotate(ctx, sessionID, func(st *models.SessionState) error {
		st.BeginOTPChallenge(user, in.DeliveryMethod, code, now)
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to store otp challenge", slog.Any("error", err))
		return result, models.ErrInternalServer
	}

	success := authEvent(models.EventLoginSuccess, user.Email, user.ID, in.Meta, models.RiskLow, "password verified")
	success.DeliveryMethod = string(in.DeliveryMethod)
	s.audit.Record(ctx, success)

	delivery := s.dispatch(ctx, sess, code, in.Meta, models.EventOTPSent)

	result.SessionID = sess.ID
	result.State = sess.State()
	result.CaptchaRequired = false
	result.DeliveryMethod = in.DeliveryMethod
	result.Destination = notify.MaskDestination(in.DeliveryMethod, destination(sess))
	result.Delivery = &delivery
	return result, nil
}

// dispatch sends the pending code over the session's channel and records
// okKind, or otp_failed when delivery did not happen.
func (s *AuthService) dispatch(ctx context.Context, sess *models.SessionState, code string, meta RequestMeta, okKind string) notify.DeliveryResult {
	res := s.notifier.SendOTP(ctx, destination(sess), sess.DeliveryMethod, code)

	kind, risk, detail := okKind, models.RiskLow, "delivered"
	if !res.Delivered {
		risk, detail = models.RiskMedium, "delivery failed: "+res.Reason
		if okKind == models.EventOTPSent {
			kind = models.EventOTPFailed
		}
	}

	e := authEvent(kind, sess.Email, sess.UserID, meta, risk, detail)
	e.DeliveryMethod = string(sess.DeliveryMethod)
	s.audit.Record(ctx, e)
	return res
}

func destination(sess *models.SessionState) string {
	if sess.DeliveryMethod == models.DeliverySMS {
		return sess.Phone
	}
	return sess.Email
}

type otpOutcome int

const (
	otpNoChallenge otpOutcome = iota
	otpExpired
	otpVerified
	otpMismatch
	otpLockedOut
)

// SubmitOTP checks code against the session's pending one-time code.
// Expiry is checked before the code is looked at.
func (s *AuthService) SubmitOTP(ctx context.Context, sessionID, code string, meta RequestMeta) (*StatusResult, error) {
	if sessionID == "" {
		return nil, models.ErrSessionExpired
	}

	now := s.now()
	code = strings.TrimSpace(code)

	var outcome otpOutcome
	var email, userID, method string
	var attempts int

	// A verified code moves the session to a new id; every failure path
	// returns an error and keeps the current one.
	sess, err := s.sessions.Rotate(ctx, sessionID, func(st *models.SessionState) error {
		email, userID, method = st.Email, st.UserID, string(st.DeliveryMethod)

		if st.State() != models.StatePasswordVerified {
			outcome = otpNoChallenge
			st.Reset()
			return models.ErrSessionExpired
		}

		if st.OTPExpired(now, s.cfg.OTPValidity) {
			outcome = otpExpired
			st.ExpireOTP()
			return models.ErrOTPExpired
		}

		if code != "" && subtle.ConstantTimeCompare([]byte(code), []byte(st.PendingOTP)) == 1 {
			outcome = otpVerified
			st.CompleteAuthentication()
			return nil
		}

		attempts = st.RecordOTPAttempt()
		if s.cfg.OTPMaxAttempts > 0 && attempts >= s.cfg.OTPMaxAttempts {
			outcome = otpLockedOut
			st.Reset()
			return models.ErrOTPAttemptsExceeded
		}
		outcome = otpMismatch
		return models.ErrOTPMismatch
	})
	if err != nil && sess == nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionExpired
		}
		s.logger.ErrorContext(ctx, "failed to verify otp", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	record := func(kind, risk, detail string) {
		e := authEvent(kind, email, userID, meta, risk, detail)
		e.DeliveryMethod = method
		s.audit.Record(ctx, e)
	}

	switch outcome {
	case otpNoChallenge:
		if email != "" {
			record(models.EventSessionExpired, models.RiskMedium, "no pending code")
		}
	case otpExpired:
		record(models.EventOTPExpired, models.RiskMedium, fmt.Sprintf("code older than %s", s.cfg.OTPValidity))
	case otpMismatch:
		record(models.EventOTPFailed, models.RiskMedium, "invalid code")
	case otpLockedOut:
		record(models.EventOTPFailed, models.RiskHigh, fmt.Sprintf("invalid code, %d attempts", attempts))
		s.recordActivity(ctx, &models.ActivityLog{
			UserID:       strPtr(userID),
			Email:        email,
			ActivityType: models.ActivityOTPLockout,
			Description:  fmt.Sprintf("session reset after %d invalid codes", attempts),
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
			Severity:     models.SeverityWarning,
		})
	case otpVerified:
		record(models.EventOTPVerified, models.RiskLow, "")
		s.recordActivity(ctx, &models.ActivityLog{
			UserID:       strPtr(userID),
			Email:        email,
			ActivityType: models.ActivityUserLogin,
			Description:  "signed in with one-time code",
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
			Severity:     models.SeverityInfo,
		})
		if _, nerr := s.notifier.Notify(ctx, userID, email, "Welcome back",
			fmt.Sprintf("You signed in at %s from %s.", now.UTC().Format(time.RFC1123), meta.IPAddress),
			models.NotificationInfo, models.SeverityInfo); nerr != nil {
			s.logger.WarnContext(ctx, "failed to create welcome notification", slog.Any("error", nerr))
		}
	}

	if err != nil {
		return s.status(sess), err
	}
	return s.status(sess), nil
}

// ResendOTP replaces the pending code and dispatches it again over the
// session's channel.
func (s *AuthService) ResendOTP(ctx context.Context, sessionID string, meta RequestMeta) (*LoginResult, error) {
	if sessionID == "" {
		return nil, models.ErrSessionExpired
	}

	code, err := s.codes.Generate()
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to generate otp", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	sess, err := s.sessions.Update(ctx, sessionID, func(st *models.SessionState) error {
		return st.ReissueOTP(code, now)
	})
	if err != nil {
		if errors.Is(err, models.ErrSessionExpired) || errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrSessionExpired
		}
		s.logger.ErrorContext(ctx, "failed to reissue otp", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	delivery := s.dispatch(ctx, sess, code, meta, models.EventOTPResend)

	return &LoginResult{
		SessionID:      sess.ID,
		State:          sess.State(),
		DeliveryMethod: sess.DeliveryMethod,
		Destination:    notify.MaskDestination(sess.DeliveryMethod, destination(sess)),
		Delivery:       &delivery,
	}, nil
}

// Logout discards the session.
func (s *AuthService) Logout(ctx context.Context, sessionID string, meta RequestMeta) error {
	if sessionID == "" {
		return nil
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.ErrorContext(ctx, "failed to load session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if err := s.sessions.Delete(ctx, sessionID); err != nil {
		s.logger.ErrorContext(ctx, "failed to delete session", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if sess != nil && sess.Email != "" {
		s.audit.Record(ctx, authEvent(models.EventLogout, sess.Email, sess.UserID, meta, models.RiskLow, ""))
		s.recordActivity(ctx, &models.ActivityLog{
			UserID:       strPtr(sess.UserID),
			Email:        sess.Email,
			ActivityType: models.ActivityUserLogout,
			Description:  "signed out",
			IPAddress:    meta.IPAddress,
			UserAgent:    meta.UserAgent,
			Severity:     models.SeverityInfo,
		})
	}
	return nil
}

// Status reports the state of sessionID; unknown sessions are anonymous.
func (s *AuthService) Status(ctx context.Context, sessionID string) (*StatusResult, error) {
	if sessionID == "" {
		return &StatusResult{State: models.StateAnonymous}, nil
	}

	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &StatusResult{State: models.StateAnonymous}, nil
		}
		s.logger.ErrorContext(ctx, "failed to load session", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	st := s.status(sess)
	if st.State == models.StateAuthenticated && sess.UserID != "" {
		if user, err := s.users.GetByID(ctx, sess.UserID); err == nil {
			st.Role = user.Role
		}
	}
	return st, nil
}

func (s *AuthService) status(sess *models.SessionState) *StatusResult {
	if sess == nil {
		return &StatusResult{State: models.StateAnonymous}
	}

	st := &StatusResult{
		SessionID:       sess.ID,
		State:           sess.State(),
		CaptchaRequired: s.captcha != nil && s.captcha.Required(sess),
	}
	if st.State != models.StateAnonymous {
		st.Email = sess.Email
		st.DeliveryMethod = sess.DeliveryMethod
	}
	if st.State == models.StatePasswordVerified && sess.OTPIssuedAt != nil {
		exp := sess.OTPIssuedAt.Add(s.cfg.OTPValidity)
		st.OTPExpiresAt = &exp
	}
	return st
}

func (s *AuthService) recordActivity(ctx context.Context, a *models.ActivityLog) {
	if s.activity != nil {
		s.activity.Record(ctx, a)
	}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
