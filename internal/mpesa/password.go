package mpesa

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

const timestampLayout = "20060102150405"

// Password builds the STK password: base64(shortcode + passkey + timestamp).
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}

// Timestamp formats t the way the provider expects, in East Africa Time.
func Timestamp(t time.Time) string {
	return t.In(eat).Format(timestampLayout)
}

// ParseTransactionTime parses a provider timestamp such as 20240115143005.
func ParseTransactionTime(s string) (time.Time, error) {
	t, err := time.ParseInLocation(timestampLayout, s, eat)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse transaction time %q: %w", s, err)
	}
	return t, nil
}

var eat = time.FixedZone("EAT", 3*60*60)

// NormalizePhone turns the common Kenyan mobile formats (07XXXXXXXX,
// 01XXXXXXXX, +2547XXXXXXXX, 7XXXXXXXX) into 2547XXXXXXXX.
func NormalizePhone(phone string) (string, error) {
	p := strings.NewReplacer(" ", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(phone))
	p = strings.TrimPrefix(p, "+")

	switch {
	case len(p) == 12 && strings.HasPrefix(p, "254"):
	case len(p) == 10 && strings.HasPrefix(p, "0"):
		p = "254" + p[1:]
	case len(p) == 9:
		p = "254" + p
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}

	if p[3] != '7' && p[3] != '1' {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	for _, r := range p {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
		}
	}
	return p, nil
}
