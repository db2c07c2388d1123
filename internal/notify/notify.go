// Package notify delivers OTP codes, security alerts and in-app
// notifications. Delivery outcomes are reported as DeliveryResult values;
// a failed send never aborts the caller's flow.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BradenHooton/otpgate/internal/models"
	"github.com/BradenHooton/otpgate/pkg/logger"
	"github.com/google/uuid"
)

// DeliveryResult reports whether a message left the service.
type DeliveryResult struct {
	Delivered bool   `json:"delivered"`
	Reason    string `json:"reason,omitempty"`
}

func Delivered() DeliveryResult {
	return DeliveryResult{Delivered: true}
}

func Failed(reason string) DeliveryResult {
	return DeliveryResult{Reason: reason}
}

// EmailSender sends a single multipart email.
type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, htmlBody, textBody string) error
}

// SMSSender sends a single text message.
type SMSSender interface {
	SendSMS(ctx context.Context, phone, message string) error
}

// NotificationStore persists in-app notifications.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) (*models.Notification, error)
	MarkEmailSent(ctx context.Context, id uuid.UUID) error
}

// Options controls which channels are live.
type Options struct {
	EmailAlerts bool
	OTPValidity time.Duration
	Env         string
}

// Dispatcher routes messages to the configured transports. A nil sender
// disables that channel; OTPs for a disabled channel are written to the
// log instead so local setups stay usable.
type Dispatcher struct {
	email         EmailSender
	sms           SMSSender
	notifications NotificationStore
	opts          Options
	logger        *slog.Logger
}

func NewDispatcher(email EmailSender, sms SMSSender, notifications NotificationStore, opts Options, logger *slog.Logger) *Dispatcher {
	if opts.OTPValidity <= 0 {
		opts.OTPValidity = 5 * time.Minute
	}
	return &Dispatcher{
		email:         email,
		sms:           sms,
		notifications: notifications,
		opts:          opts,
		logger:        logger,
	}
}

// SendOTP delivers code to destination over channel.
func (d *Dispatcher) SendOTP(ctx context.Context, destination string, channel models.DeliveryMethod, code string) DeliveryResult {
	var result DeliveryResult

	switch channel {
	case models.DeliveryEmail:
		result = d.sendOTPEmail(ctx, destination, code)
	case models.DeliverySMS:
		result = d.sendOTPSMS(ctx, destination, code)
	default:
		result = Failed(fmt.Sprintf("unsupported delivery method %q", channel))
	}

	if !result.Delivered {
		d.logger.WarnContext(ctx, "otp delivery failed, printing code to log",
			slog.String("channel", string(channel)),
			slog.String("destination", MaskDestination(channel, destination)),
			slog.String("reason", result.Reason),
			logger.RedactedAttr("otp", code, d.opts.Env),
		)
	}
	return result
}

func (d *Dispatcher) sendOTPEmail(ctx context.Context, to, code string) DeliveryResult {
	if d.email == nil {
		return Failed("email delivery disabled")
	}
	if to == "" {
		return Failed("no email address on file")
	}

	minutes := int(d.opts.OTPValidity / time.Minute)
	html, text := otpEmailBody(code, minutes)
	if err := d.email.SendEmail(ctx, []string{to}, "Your verification code", html, text); err != nil {
		d.logger.ErrorContext(ctx, "failed to send otp email",
			slog.String("email", logger.SanitizedEmail(to)),
			slog.Any("error", err))
		return Failed("email send failed")
	}
	return Delivered()
}

func (d *Dispatcher) sendOTPSMS(ctx context.Context, phone, code string) DeliveryResult {
	if d.sms == nil {
		return Failed("sms delivery disabled")
	}
	if phone == "" {
		return Failed("no phone number on file")
	}

	minutes := int(d.opts.OTPValidity / time.Minute)
	msg := fmt.Sprintf("Your verification code is %s. It expires in %d minutes.", code, minutes)
	if err := d.sms.SendSMS(ctx, phone, msg); err != nil {
		d.logger.ErrorContext(ctx, "failed to send otp sms",
			slog.String("phone", logger.MaskPhone(phone)),
			slog.Any("error", err))
		return Failed("sms send failed")
	}
	return Delivered()
}

// SendAlert emails a security alert to recipients when alert email is on.
func (d *Dispatcher) SendAlert(ctx context.Context, recipients []string, subject, body string) DeliveryResult {
	if !d.opts.EmailAlerts || d.email == nil {
		return Failed("email alerts disabled")
	}
	if len(recipients) == 0 {
		return Failed("no recipients")
	}

	html, text := alertEmailBody(subject, body)
	if err := d.email.SendEmail(ctx, recipients, "[Security Alert] "+subject, html, text); err != nil {
		d.logger.ErrorContext(ctx, "failed to send alert email",
			slog.Int("recipients", len(recipients)),
			slog.Any("error", err))
		return Failed("email send failed")
	}
	return Delivered()
}

// Notify stores an in-app notification for userID. Critical notifications
// are also emailed to email when alert email is on.
func (d *Dispatcher) Notify(ctx context.Context, userID, email, title, message, kind, severity string) (*models.Notification, error) {
	if d.notifications == nil {
		return nil, fmt.Errorf("notification store not configured")
	}

	n, err := d.notifications.Create(ctx, &models.Notification{
		UserID:   userID,
		Title:    title,
		Message:  message,
		Type:     kind,
		Severity: severity,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create notification: %w", err)
	}

	if severity == models.SeverityCritical && email != "" {
		if res := d.SendAlert(ctx, []string{email}, title, message); res.Delivered {
			if err := d.notifications.MarkEmailSent(ctx, n.ID); err != nil {
				d.logger.WarnContext(ctx, "failed to flag notification email",
					slog.String("notification_id", n.ID.String()),
					slog.Any("error", err))
			} else {
				n.EmailSent = true
			}
		}
	}

	return n, nil
}

// MaskDestination hides most of an address for display and logs.
func MaskDestination(channel models.DeliveryMethod, destination string) string {
	if destination == "" {
		return ""
	}
	if channel == models.DeliverySMS {
		return logger.MaskPhone(destination)
	}
	return logger.SanitizedEmail(destination)
}
