package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateRequest_Valid(t *testing.T) {
	req := LoginRequest{Email: "user@example.com", Password: "secret", DeliveryMethod: "sms"}
	assert.NoError(t, ValidateRequest(req))
}

func TestValidateRequest_UsesJSONNames(t *testing.T) {
	err := ValidateRequest(LoginRequest{Email: "nope", DeliveryMethod: "fax"})
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "email must be a valid email address")
	assert.Contains(t, msg, "password is required")
	assert.Contains(t, msg, "delivery_method must be one of: email, sms")
	assert.NotContains(t, msg, "DeliveryMethod")
}

func TestValidateRequest_OTP(t *testing.T) {
	tests := []struct {
		otp  string
		want string
	}{
		{"", "otp is required"},
		{"12ab56", "otp must contain digits only"},
		{"12", "otp is shorter than 4 characters"},
		{"123456789", "otp is longer than 8 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			err := ValidateRequest(VerifyOTPRequest{OTP: tt.otp})
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	assert.NoError(t, ValidateRequest(VerifyOTPRequest{OTP: "123456"}))
}
