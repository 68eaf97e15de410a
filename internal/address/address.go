package address

import (
	"strings"
	"unicode"

	"golang.org/x/net/idna"
)

// Address is the parsed form of one input email. Immutable after Parse.
// Raw keeps the caller's original casing; all comparisons and network work
// use the lowercase Normalized / Local / Domain forms.
type Address struct {
	Raw        string
	Normalized string
	Local      string
	Domain     string
}

// Parse trims whitespace, splits on the last "@" and lowercases the
// comparison forms. It does not validate grammar; call Validate for that.
func Parse(input string) (Address, bool) {
	raw := strings.TrimSpace(input)

	at := strings.LastIndex(raw, "@")
	if at < 1 || at == len(raw)-1 {
		return Address{Raw: raw}, false
	}

	local := raw[:at]
	domain := strings.ToLower(raw[at+1:])

	// Internationalized domains go through IDNA2008 so DNS and SMTP always
	// see the punycode form.
	if hasNonASCII(domain) {
		ascii, err := idna.Lookup.ToASCII(domain)
		if err != nil {
			return Address{Raw: raw}, false
		}
		domain = ascii
	}

	return Address{
		Raw:        raw,
		Normalized: strings.ToLower(local) + "@" + domain,
		Local:      local,
		Domain:     domain,
	}, true
}

// Validate checks the address against RFC 5321-style grammar.
// Returns ok plus a short human-readable reason on failure.
func Validate(input string) (Address, bool, string) {
	addr, ok := Parse(input)
	if !ok {
		if addr.Raw == "" {
			return addr, false, "empty address"
		}
		return addr, false, "missing or misplaced @"
	}

	if len(addr.Raw) > 254 {
		return addr, false, "address exceeds 254 characters"
	}
	if len(addr.Local) > 64 {
		return addr, false, "local part exceeds 64 characters"
	}
	if reason := checkLocal(addr.Local); reason != "" {
		return addr, false, reason
	}
	if reason := checkDomain(addr.Domain); reason != "" {
		return addr, false, reason
	}
	return addr, true, "valid syntax"
}

// RFC 5321 specials allowed in an unquoted local part.
const localSpecials = "!#$%&'*+/=?^_`{|}~-."

func checkLocal(local string) string {
	if local == "" {
		return "local part is empty"
	}
	// Quoted form: any printable content is acceptable.
	if strings.HasPrefix(local, `"`) && strings.HasSuffix(local, `"`) && len(local) >= 2 {
		return ""
	}
	if strings.HasPrefix(local, ".") || strings.HasSuffix(local, ".") {
		return "local part cannot start or end with a dot"
	}
	if strings.Contains(local, "..") {
		return "local part cannot contain consecutive dots"
	}
	for _, ch := range local {
		if ch > 127 {
			if unicode.IsControl(ch) {
				return "local part contains control character"
			}
			continue
		}
		if (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9') {
			continue
		}
		if !strings.ContainsRune(localSpecials, ch) {
			return "local part contains invalid character: " + string(ch)
		}
	}
	return ""
}

func checkDomain(domain string) string {
	if domain == "" {
		return "domain is empty"
	}
	labels := strings.Split(domain, ".")
	if len(labels) < 2 {
		return "domain must have at least two labels"
	}
	for _, label := range labels {
		if label == "" {
			return "domain contains empty label"
		}
		if len(label) > 63 {
			return "domain label exceeds 63 characters"
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "domain label cannot start or end with a hyphen"
		}
		for _, ch := range label {
			if !unicode.IsLetter(ch) && !unicode.IsDigit(ch) && ch != '-' {
				return "domain label contains invalid character: " + string(ch)
			}
		}
	}
	if allDigits(labels[len(labels)-1]) {
		return "TLD cannot be all digits"
	}
	return ""
}

func hasNonASCII(s string) bool {
	for _, r := range s {
		if r > 127 {
			return true
		}
	}
	return false
}

func allDigits(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
