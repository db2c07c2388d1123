package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/otpgate/internal/captcha"
	"github.com/BradenHooton/otpgate/internal/config"
	"github.com/BradenHooton/otpgate/internal/models"
)

// RecaptchaActionLogin is the v3 action expected on the login form.
const RecaptchaActionLogin = "login"

// CaptchaInput is what a client submits to pass the challenge gate.
type CaptchaInput struct {
	Kind     string // custom, recaptcha_v2 or recaptcha_v3
	Response string // answer to a local challenge
	Token    string // reCAPTCHA token
}

func (in CaptchaInput) empty() bool {
	return strings.TrimSpace(in.Response) == "" && strings.TrimSpace(in.Token) == ""
}

// GateOutcome is the result of checking a CaptchaInput.
type GateOutcome struct {
	Passed  bool
	Missing bool
	Detail  string
}

// CaptchaService issues session-bound challenges and checks gate responses.
type CaptchaService struct {
	cfg         config.CaptchaConfig
	issuer      ChallengeIssuer
	recaptchaV2 RecaptchaV2Verifier
	recaptchaV3 RecaptchaV3Verifier
	sessions    SessionStore
	audit       *AuditService
	logger      *slog.Logger
}

// NewCaptchaService wires the challenge provider. Either reCAPTCHA verifier
// may be nil when that version is disabled.
func NewCaptchaService(cfg config.CaptchaConfig, issuer ChallengeIssuer, v2 RecaptchaV2Verifier, v3 RecaptchaV3Verifier, sessions SessionStore, audit *AuditService, logger *slog.Logger) *CaptchaService {
	return &CaptchaService{
		cfg:         cfg,
		issuer:      issuer,
		recaptchaV2: v2,
		recaptchaV3: v3,
		sessions:    sessions,
		audit:       audit,
		logger:      logger,
	}
}

// Enabled reports whether the login gate is active at all.
func (s *CaptchaService) Enabled() bool {
	return s.cfg.Enabled
}

// Threshold is the gated-failure count at which the gate engages.
func (s *CaptchaService) Threshold() int {
	return s.cfg.AttemptsThreshold
}

// Required reports whether sess must pass a challenge before its next login.
func (s *CaptchaService) Required(sess *models.SessionState) bool {
	return s.cfg.Enabled && sess.CaptchaRequired(s.cfg.AttemptsThreshold)
}

// Issue creates a challenge of kind (or the configured default) and binds
// its answer to the session, replacing any earlier one. A new session is
// created when sessionID is empty or unknown.
func (s *CaptchaService) Issue(ctx context.Context, sessionID, kind string) (string, *captcha.Challenge, error) {
	k, err := captcha.ParseKind(kind, captcha.Kind(s.cfg.DefaultKind))
	if err != nil {
		return "", nil, models.ErrBadRequest
	}

	challenge, err := s.issuer.Issue(k)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue captcha", slog.Any("error", err))
		return "", nil, models.ErrInternalServer
	}

	sess, err := ensureSession(ctx, s.sessions, sessionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to load session", slog.Any("error", err))
		return "", nil, models.ErrInternalServer
	}

	if _, err := s.sessions.Update(ctx, sess.ID, func(st *models.SessionState) error {
		st.SetCaptcha(string(challenge.Kind), challenge.Answer)
		return nil
	}); err != nil {
		s.logger.ErrorContext(ctx, "failed to store captcha answer", slog.Any("error", err))
		return "", nil, models.ErrInternalServer
	}

	return sess.ID, challenge, nil
}

// VerifyStandalone checks a response against the session's pending answer
// without logging in. A wrong answer discards the challenge so it cannot be
// guessed repeatedly; a right one stays bound for the login that follows.
func (s *CaptchaService) VerifyStandalone(ctx context.Context, sessionID, response string, meta RequestMeta) (bool, error) {
	if sessionID == "" {
		return false, models.ErrSessionExpired
	}

	var email string
	var valid bool
	_, err := s.sessions.Update(ctx, sessionID, func(st *models.SessionState) error {
		email = st.Email
		valid = captcha.Verify(response, st.CaptchaAnswer)
		if !valid {
			st.ClearCaptcha()
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return false, models.ErrSessionExpired
		}
		s.logger.ErrorContext(ctx, "failed to verify captcha", slog.Any("error", err))
		return false, models.ErrInternalServer
	}

	if valid {
		s.audit.Record(ctx, authEvent(models.EventCaptchaSuccess, email, "", meta, models.RiskLow, "standalone verification"))
	} else {
		s.audit.Record(ctx, authEvent(models.EventCaptchaFailed, email, "", meta, models.RiskMedium, "standalone verification"))
	}
	return valid, nil
}

// VerifyRecaptcha checks a token with the given widget version.
func (s *CaptchaService) VerifyRecaptcha(ctx context.Context, version, token, action, remoteIP string) (captcha.RecaptchaResult, error) {
	switch version {
	case "v2", captcha.GateRecaptchaV2:
		if s.recaptchaV2 == nil {
			return captcha.RecaptchaResult{}, models.ErrBadRequest
		}
		return s.recaptchaV2.VerifyV2(ctx, token, remoteIP), nil
	case "", "v3", captcha.GateRecaptchaV3:
		if s.recaptchaV3 == nil {
			return captcha.RecaptchaResult{}, models.ErrBadRequest
		}
		if action == "" {
			action = RecaptchaActionLogin
		}
		return s.recaptchaV3.VerifyV3(ctx, token, action, s.cfg.RecaptchaV3MinScore, remoteIP), nil
	default:
		return captcha.RecaptchaResult{}, models.ErrBadRequest
	}
}

func (in CaptchaInput) kind() string {
	if in.Kind != "" {
		return in.Kind
	}
	if in.Response == "" && in.Token != "" {
		return captcha.GateRecaptchaV3
	}
	return captcha.GateCustom
}

// VerifyRemote checks a reCAPTCHA token with the provider. It returns nil
// for local challenges, whose answer lives in the session and is checked by
// Consume.
func (s *CaptchaService) VerifyRemote(ctx context.Context, in CaptchaInput, remoteIP string) *GateOutcome {
	if in.empty() {
		return nil
	}

	var out GateOutcome
	switch in.kind() {
	case captcha.GateRecaptchaV2:
		if s.recaptchaV2 == nil {
			out = GateOutcome{Detail: "recaptcha v2 disabled"}
			break
		}
		out = recaptchaOutcome("recaptcha v2", s.recaptchaV2.VerifyV2(ctx, in.Token, remoteIP))
	case captcha.GateRecaptchaV3:
		if s.recaptchaV3 == nil {
			out = GateOutcome{Detail: "recaptcha v3 disabled"}
			break
		}
		out = recaptchaOutcome("recaptcha v3", s.recaptchaV3.VerifyV3(ctx, in.Token, RecaptchaActionLogin, s.cfg.RecaptchaV3MinScore, remoteIP))
	default:
		return nil
	}
	return &out
}

// Consume decides a gated submission against st and discards the pending
// answer whatever the outcome. It runs inside a session update, so one
// issued challenge admits at most one submission. remote is the result of
// VerifyRemote for reCAPTCHA inputs.
func (s *CaptchaService) Consume(st *models.SessionState, in CaptchaInput, remote *GateOutcome) GateOutcome {
	out := evaluateGate(st, in, remote)
	st.ClearCaptcha()
	return out
}

func evaluateGate(st *models.SessionState, in CaptchaInput, remote *GateOutcome) GateOutcome {
	if in.empty() {
		return GateOutcome{Missing: true, Detail: "captcha response missing"}
	}

	switch kind := in.kind(); kind {
	case captcha.GateCustom, string(captcha.KindText), string(captcha.KindMath):
		if st.CaptchaAnswer == "" {
			return GateOutcome{Detail: "no captcha issued"}
		}
		if !captcha.Verify(in.Response, st.CaptchaAnswer) {
			return GateOutcome{Detail: "captcha answer mismatch"}
		}
		return GateOutcome{Passed: true, Detail: fmt.Sprintf("%s captcha", st.CaptchaKind)}

	case captcha.GateRecaptchaV2, captcha.GateRecaptchaV3:
		if remote == nil {
			return GateOutcome{Detail: "recaptcha token not verified"}
		}
		return *remote

	default:
		return GateOutcome{Detail: fmt.Sprintf("unsupported captcha type %q", kind)}
	}
}

func recaptchaOutcome(label string, res captcha.RecaptchaResult) GateOutcome {
	if res.Success {
		if res.Score != nil {
			return GateOutcome{Passed: true, Detail: fmt.Sprintf("%s score %.2f", label, *res.Score)}
		}
		return GateOutcome{Passed: true, Detail: label}
	}
	if res.Err != nil {
		return GateOutcome{Detail: fmt.Sprintf("%s unavailable: %v", label, res.Err)}
	}
	return GateOutcome{Detail: fmt.Sprintf("%s rejected: %s", label, strings.Join(res.ErrorCodes, ","))}
}

// ensureSession loads sessionID or creates a fresh session when it is empty
// or no longer stored.
func ensureSession(ctx context.Context, store SessionStore, sessionID string) (*models.SessionState, error) {
	if sessionID != "" {
		sess, err := store.Get(ctx, sessionID)
		if err == nil {
			return sess, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}
	return store.Create(ctx)
}
