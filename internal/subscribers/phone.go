package subscribers

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidPhone marks a number that is not a Brazilian mobile.
var ErrInvalidPhone = errors.New("invalid phone: expected 55 + DDD + 9 + 8 digits, e.g. 5551999999999")

var mobilePattern = regexp.MustCompile(`^55[1-9][0-9]9[0-9]{8}$`)

// NormalizePhone reduces a Brazilian mobile number to 55DDD9XXXXXXXX.
// Numbers without the country code are upgraded: 11 digits (DDD + 9 + 8) get
// 55 prepended, 10 digits (DDD + 8, pre-2016 format) also get the mobile 9.
func NormalizePhone(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case len(digits) == 11 && digits[2] == '9':
		digits = "55" + digits
	case len(digits) == 10:
		digits = "55" + digits[:2] + "9" + digits[2:]
	}

	if !mobilePattern.MatchString(digits) {
		return "", ErrInvalidPhone
	}
	return digits, nil
}
