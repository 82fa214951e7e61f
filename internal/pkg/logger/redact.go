package logger

import (
	"regexp"
	"strings"
)

// phoneKeys are field-name fragments whose values are always masked.
var phoneKeys = []string{"phone", "handle", "wa_user_id", "recipient"}

var phoneRegex = regexp.MustCompile(`\+?[0-9]{10,15}`)

// RedactPhone masks a phone number or WhatsApp handle for safe logging,
// keeping the two leading and four trailing digits.
// "+5511999998888" → "+55*******8888"
// Inputs with fewer than 8 digits are fully masked: "12345" → "***"
func RedactPhone(phone string) string {
	prefix := ""
	digits := phone
	if strings.HasPrefix(phone, "+") {
		prefix, digits = "+", phone[1:]
	}
	if len(digits) < 8 {
		return "***"
	}
	return prefix + digits[:2] + strings.Repeat("*", len(digits)-6) + digits[len(digits)-4:]
}
