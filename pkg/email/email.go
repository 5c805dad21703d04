// Package email normalises recipient addresses and derives display names.
package email

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
)

// Normalize trims and lowercases addr and checks it parses as a single
// RFC 5322 address. A display name, if present, is dropped.
func Normalize(addr string) (string, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return "", fmt.Errorf("empty address")
	}
	parsed, err := mail.ParseAddress(addr)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return strings.ToLower(parsed.Address), nil
}

// NormalizeList normalises addrs, drops duplicates and keeps first-seen order.
// Addresses that fail to parse are returned separately.
func NormalizeList(addrs []string) (valid, invalid []string) {
	seen := make(map[string]struct{}, len(addrs))
	for _, a := range addrs {
		n, err := Normalize(a)
		if err != nil {
			if strings.TrimSpace(a) != "" {
				invalid = append(invalid, a)
			}
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		valid = append(valid, n)
	}
	return valid, invalid
}

// GreetingName picks the name used in salutations: the given name when set,
// otherwise the first word of the address's local part.
func GreetingName(name, addr string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	first, _ := DeriveNameFromEmail(addr)
	return first
}

// DeriveNameFromEmail splits the local part on . _ - + and capitalises the
// first and last words. Missing parts fall back to "Supporter".
func DeriveNameFromEmail(addr string) (string, string) {
	localPart := addr
	if at := strings.IndexByte(addr, '@'); at > 0 {
		localPart = addr[:at]
	}

	parts := strings.FieldsFunc(localPart, func(r rune) bool {
		return r == '.' || r == '_' || r == '-' || r == '+' || unicode.IsDigit(r)
	})
	if len(parts) == 0 {
		return "Supporter", "Supporter"
	}

	first := capitalize(parts[0])
	last := "Supporter"
	if len(parts) > 1 {
		last = capitalize(parts[len(parts)-1])
	}
	return first, last
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(strings.ToLower(s))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
