package auth

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"fmt"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
)

// OTPGenerator issues fixed-length numeric passcodes. Each code is an HOTP
// value over a fresh random secret and counter, so codes are independent of
// one another and of the user.
type OTPGenerator struct {
	digits otp.Digits
}

func NewOTPGenerator(length int) *OTPGenerator {
	if length <= 0 {
		length = 6
	}
	return &OTPGenerator{digits: otp.Digits(length)}
}

// Generate returns a new numeric code of the configured length.
func (g *OTPGenerator) Generate() (string, error) {
	seed := make([]byte, 28)
	if _, err := rand.Read(seed); err != nil {
		return "", fmt.Errorf("failed to read random seed: %w", err)
	}

	secret := base32.StdEncoding.EncodeToString(seed[:20])
	counter := binary.BigEndian.Uint64(seed[20:])

	code, err := hotp.GenerateCodeCustom(secret, counter, hotp.ValidateOpts{
		Digits:    g.digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", fmt.Errorf("failed to derive otp: %w", err)
	}
	return code, nil
}
