package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BradenHooton/otpgate/internal/config"
	"github.com/BradenHooton/otpgate/internal/models"
	pkgauth "github.com/BradenHooton/otpgate/pkg/auth"
	pkglogger "github.com/BradenHooton/otpgate/pkg/logger"
)

// PasswordHasher hashes new passwords.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// Bootstrapper provisions the initial administrator and demo accounts.
type Bootstrapper struct {
	users    UserRepository
	hasher   PasswordHasher
	activity *ActivityService
	logger   *slog.Logger
}

func NewBootstrapper(users UserRepository, hasher PasswordHasher, activity *ActivityService, logger *slog.Logger) *Bootstrapper {
	return &Bootstrapper{users: users, hasher: hasher, activity: activity, logger: logger}
}

// Run creates the configured accounts that do not exist yet.
func (b *Bootstrapper) Run(ctx context.Context, cfg config.BootstrapConfig) error {
	if cfg.AdminEmail != "" {
		if err := b.ensureUser(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminPhone, models.RoleAdmin); err != nil {
			return err
		}
	}
	if cfg.DemoUserEmail != "" {
		if err := b.ensureUser(ctx, cfg.DemoUserEmail, cfg.DemoUserPassword, cfg.DemoUserPhone, models.RoleUser); err != nil {
			return err
		}
	}
	return nil
}

func (b *Bootstrapper) ensureUser(ctx context.Context, email, password, phone, role string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	_, err := b.users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to look up %s: %w", role, err)
	}

	if password == "" {
		return fmt.Errorf("no password configured for bootstrap %s account", role)
	}
	var verr *pkgauth.PasswordValidationError
	if err := pkgauth.ValidatePassword(password); errors.As(err, &verr) {
		b.logger.Warn("bootstrap password is weak",
			slog.String("email", pkglogger.SanitizedEmail(email)),
			slog.Any("problems", verr.Problems))
	}

	hash, err := b.hasher.Hash(password)
	if err != nil {
		return err
	}

	username := email
	if at := strings.IndexByte(email, '@'); at > 0 {
		username = email[:at]
	}

	user, err := b.users.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Phone:        phone,
		Role:         role,
		Status:       models.UserStatusActive,
	})
	if err != nil {
		return fmt.Errorf("failed to create %s account: %w", role, err)
	}

	b.logger.Info("bootstrap account created",
		slog.String("email", pkglogger.SanitizedEmail(email)),
		slog.String("role", role))
	if b.activity != nil {
		b.activity.Record(ctx, activity(models.ActivitySystemInit, user,
			fmt.Sprintf("created %s account", role), user.ID, models.SeverityInfo, RequestMeta{}))
	}
	return nil
}
