package logger

import (
	"log/slog"
	"net/url"
	"strings"
	"unicode"
)

// SanitizedEmail masks an address for logs: "demo@example.com" becomes
// "d***@*******.com". Only the first local character and the TLD survive.
func SanitizedEmail(email string) string {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return "[invalid-email]"
	}
	local, domain := email[:at], email[at+1:]

	var b strings.Builder
	b.WriteByte(local[0])
	b.WriteString(strings.Repeat("*", len(local)-1))
	b.WriteByte('@')

	if dot := strings.LastIndexByte(domain, '.'); dot > 0 {
		labels := strings.Split(domain[:dot], ".")
		for i, l := range labels {
			labels[i] = strings.Repeat("*", len(l))
		}
		b.WriteString(strings.Join(labels, "."))
		b.WriteString(domain[dot:])
	} else {
		b.WriteString(domain)
	}
	return b.String()
}

// MaskPhone keeps the last four digits of a phone number ("***-***-1234").
func MaskPhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
	if len(digits) < 4 {
		return "[invalid-phone]"
	}
	return "***-***-" + digits[len(digits)-4:]
}

// RedactedAttr hides value in production. Development logs keep it so OTPs
// can be read off the console when no provider is configured.
func RedactedAttr(key, value, env string) slog.Attr {
	if env == "production" {
		return slog.String(key, "[REDACTED]")
	}
	return slog.String(key, value)
}

var sensitiveParams = []string{"password", "token", "secret", "email", "phone", "otp", "code", "captcha"}

// RedactQuery returns rawQuery with the values of sensitive parameters
// replaced. Keys are matched case-insensitively by substring, so
// "recaptcha_token" and "Email" are both caught. A query that fails to
// parse is dropped entirely.
func RedactQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "REDACTED"
	}
	for key, vals := range values {
		if !isSensitiveParam(key) {
			continue
		}
		for i := range vals {
			vals[i] = "REDACTED"
		}
	}
	return values.Encode()
}

func isSensitiveParam(key string) bool {
	key = strings.ToLower(key)
	for _, p := range sensitiveParams {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}
