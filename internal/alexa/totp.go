package alexa

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp/totp"
)

// padSecret pads a base32 TOTP seed with '=' to a multiple of 8 characters.
// Amazon hands out seeds without padding; the decoder wants it.
func padSecret(secret string) string {
	secret = strings.TrimSpace(secret)
	if rem := len(secret) % 8; rem != 0 {
		secret += strings.Repeat("=", 8-rem)
	}
	return secret
}

// totpCode returns the current one-time code for the (possibly unpadded)
// seed.
func totpCode(secret string, at time.Time) (string, error) {
	code, err := totp.GenerateCode(padSecret(secret), at)
	if err != nil {
		return "", fmt.Errorf("generating TOTP code: %w", err)
	}
	return code, nil
}
