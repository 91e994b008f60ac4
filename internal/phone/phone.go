// internal/phone/phone.go
package phone

import "strings"

// CountryCode is the market country prefix. Local numbers are nine digits
// starting with one of validLeading.
const CountryCode = "34"

const localLength = 9

const validLeading = "6789"

// digits drops every non-digit rune.
func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Strip canonicalizes a phone number to its local digits: "+34600111222",
// "0034600111222" and "34600111222" all become "600111222". Malformed input
// comes back digits-only but otherwise unchanged.
func Strip(p string) string {
	d := digits(strings.TrimPrefix(strings.TrimSpace(p), "+"))
	if strings.HasPrefix(d, "00"+CountryCode) && len(d) == localLength+2+len(CountryCode) {
		return d[2+len(CountryCode):]
	}
	if strings.HasPrefix(d, CountryCode) && len(d) == localLength+len(CountryCode) {
		return d[len(CountryCode):]
	}
	return d
}

// WithCountryCode returns the dial form: local digits prefixed with the
// country code. Input already carrying the prefix is returned as digits.
func WithCountryCode(p string) string {
	d := Strip(p)
	if len(d) == localLength {
		return CountryCode + d
	}
	return digits(strings.TrimPrefix(strings.TrimSpace(p), "+"))
}

// IsValidLocal reports whether p is a valid nine-digit local number.
func IsValidLocal(p string) bool {
	d := digits(p)
	if len(d) != localLength {
		return false
	}
	return strings.ContainsRune(validLeading, rune(d[0]))
}
