// Package totp wraps TOTP key generation and validation with a fixed policy:
// 30 second period, six digits, SHA1, one step of clock skew either side.
package totp

import (
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	period = 30
	skew   = 1
)

// Engine generates and validates TOTP codes. Now is overridable for tests;
// when nil, time.Now is used.
type Engine struct {
	Issuer string
	Now    func() time.Time
}

// Key is the result of provisioning a new secret.
type Key struct {
	Secret          string
	URI             string
	FormattedSecret string
}

// GenerateSecret mints a fresh secret for the account and returns the
// otpauth:// URI authenticator apps consume.
func (e *Engine) GenerateSecret(accountName string) (Key, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.Issuer,
		AccountName: accountName,
		Period:      period,
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return Key{}, fmt.Errorf("failed to generate TOTP key: %w", err)
	}
	return Key{
		Secret:          key.Secret(),
		URI:             key.URL(),
		FormattedSecret: FormatSecret(key.Secret()),
	}, nil
}

// ValidateCode checks a code against the secret, accepting one period of
// drift in either direction.
func (e *Engine) ValidateCode(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, e.now(), totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && ok
}

// CurrentCode computes the code for the current step. Test helper and
// support tooling only; never exposed over the API.
func (e *Engine) CurrentCode(secret string) (string, error) {
	return totp.GenerateCodeCustom(secret, e.now(), totp.ValidateOpts{
		Period:    period,
		Skew:      skew,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// FormatSecret groups a base32 secret into 4-character blocks for manual entry.
func FormatSecret(secret string) string {
	var b strings.Builder
	for i, r := range secret {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}
