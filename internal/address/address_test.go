package address

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		ok         bool
		normalized string
		local      string
		domain     string
	}{
		{
			name:       "Simple Address",
			input:      "User@Example.COM",
			ok:         true,
			normalized: "user@example.com",
			local:      "User",
			domain:     "example.com",
		},
		{
			name:       "Surrounding Whitespace Trimmed",
			input:      "  alice@example.com \n",
			ok:         true,
			normalized: "alice@example.com",
			local:      "alice",
			domain:     "example.com",
		},
		{
			name:       "Quoted Local With At Sign Splits On Last At",
			input:      `"a@b"@example.com`,
			ok:         true,
			normalized: `"a@b"@example.com`,
			local:      `"a@b"`,
			domain:     "example.com",
		},
		{
			name:       "IDN Domain Converted To Punycode",
			input:      "user@bücher.de",
			ok:         true,
			normalized: "user@xn--bcher-kva.de",
			local:      "user",
			domain:     "xn--bcher-kva.de",
		},
		{name: "No At Sign", input: "plainstring", ok: false},
		{name: "Leading At Sign", input: "@example.com", ok: false},
		{name: "Trailing At Sign", input: "user@", ok: false},
		{name: "Empty", input: "", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			addr, ok := Parse(tc.input)
			require.Equal(t, tc.ok, ok)
			if !tc.ok {
				return
			}
			assert.Equal(t, tc.normalized, addr.Normalized)
			assert.Equal(t, tc.local, addr.Local)
			assert.Equal(t, tc.domain, addr.Domain)
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ok    bool
	}{
		{name: "Plain Address", input: "user@example.com", ok: true},
		{name: "Plus Tag", input: "user+tag@example.com", ok: true},
		{name: "Dots In Local", input: "first.last@example.com", ok: true},
		{name: "All Specials", input: "o'brien!#$%&*@example.com", ok: true},
		{name: "Quoted Local", input: `"odd local"@example.com`, ok: true},
		{name: "Numeric Labels OK", input: "user@123.example.com", ok: true},

		{name: "Missing At", input: "userexample.com", ok: false},
		{name: "Leading Dot In Local", input: ".user@example.com", ok: false},
		{name: "Trailing Dot In Local", input: "user.@example.com", ok: false},
		{name: "Consecutive Dots", input: "us..er@example.com", ok: false},
		{name: "Space In Local", input: "us er@example.com", ok: false},
		{name: "Single Label Domain", input: "user@localhost", ok: false},
		{name: "Empty Label In Domain", input: "user@ex..com", ok: false},
		{name: "Leading Hyphen Label", input: "user@-foo.com", ok: false},
		{name: "All Digit TLD", input: "user@example.123", ok: false},
		{name: "Local Too Long", input: strings.Repeat("a", 65) + "@example.com", ok: false},
		{name: "Address Too Long", input: strings.Repeat("a", 64) + "@" + strings.Repeat("b", 60) + "." + strings.Repeat("c", 60) + "." + strings.Repeat("d", 60) + "." + strings.Repeat("e", 10) + ".com", ok: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, ok, reason := Validate(tc.input)
			assert.Equal(t, tc.ok, ok, "reason: %s", reason)
			assert.NotEmpty(t, reason)
		})
	}
}

func TestValidateDomainLabelLength(t *testing.T) {
	_, ok, reason := Validate("user@" + strings.Repeat("a", 64) + ".com")
	assert.False(t, ok)
	assert.Contains(t, reason, "63")
}

func TestRandomLocal(t *testing.T) {
	// 1. Minimum length is enforced.
	assert.Len(t, RandomLocal(4), 16)
	assert.Len(t, RandomLocal(20), 20)

	// 2. Output stays in the probe-safe alphabet.
	s := RandomLocal(64)
	for _, ch := range s {
		assert.Contains(t, randomAlphabet, string(ch))
	}

	// 3. Two draws must not collide.
	assert.NotEqual(t, RandomLocal(20), RandomLocal(20))
}
