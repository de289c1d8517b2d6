package payment

import (
	"errors"
	"regexp"
	"strings"
)

// InvalidPhoneMessage is shown to the customer when the number cannot be used.
const InvalidPhoneMessage = "Invalid phone. Use 07XXXXXXXX or 2547XXXXXXXX."

var ErrInvalidPhone = errors.New("payment: invalid phone number")

var msisdnPattern = regexp.MustCompile(`^2547\d{8}$`)

// NormalizePhone rewrites local Safaricom formats into 2547XXXXXXXX. The
// result is not validated; see ParseMSISDN.
func NormalizePhone(raw string) string {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "+")
	var b strings.Builder
	b.Grow(len(raw) + 3)
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	switch {
	case strings.HasPrefix(digits, "0"):
		return "254" + digits[1:]
	case strings.HasPrefix(digits, "7"):
		return "254" + digits
	}
	return digits
}

// ValidMSISDN reports whether s is a full 2547XXXXXXXX number.
func ValidMSISDN(s string) bool {
	return msisdnPattern.MatchString(s)
}

// ParseMSISDN normalizes raw and rejects anything that is not 2547XXXXXXXX.
func ParseMSISDN(raw string) (string, error) {
	msisdn := NormalizePhone(raw)
	if !ValidMSISDN(msisdn) {
		return "", ErrInvalidPhone
	}
	return msisdn, nil
}

// MaskMSISDN keeps the country code and last three digits, for logs.
func MaskMSISDN(s string) string {
	if len(s) <= 6 {
		return strings.Repeat("*", len(s))
	}
	return s[:3] + strings.Repeat("*", len(s)-6) + s[len(s)-3:]
}
