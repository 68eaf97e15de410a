package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Temiboboye/zbai/internal/dnsx"
)

func TestDomain(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		mx     []string
		want   Provider
	}{
		{
			name:   "Consumer Outlook Beats MX Scan",
			domain: "outlook.com",
			mx:     []string{"outlook-com.olc.protection.outlook.com"},
			want:   ConsumerMicrosoft,
		},
		{
			name:   "Consumer Gmail",
			domain: "GMAIL.com",
			mx:     []string{"gmail-smtp-in.l.google.com"},
			want:   ConsumerGoogle,
		},
		{
			name:   "Microsoft 365 Tenant",
			domain: "contoso.com",
			mx:     []string{"contoso-com.mail.protection.outlook.com"},
			want:   Microsoft365,
		},
		{
			name:   "Google Workspace",
			domain: "example.com",
			mx:     []string{"ASPMX.L.GOOGLE.COM"},
			want:   GoogleWorkspace,
		},
		{
			name:   "Titan",
			domain: "startup.io",
			mx:     []string{"mx1.titan.email"},
			want:   Titan,
		},
		{
			name:   "Zoho",
			domain: "example.org",
			mx:     []string{"mx.zoho.eu"},
			want:   Zoho,
		},
		{
			name:   "ProtonMail",
			domain: "example.org",
			mx:     []string{"mail.protonmail.ch"},
			want:   ProtonMail,
		},
		{
			name:   "Yahoo",
			domain: "example.org",
			mx:     []string{"mta5.am0.yahoodns.net"},
			want:   Yahoo,
		},
		{
			name:   "Signature Order Wins Over Record Order",
			domain: "example.org",
			mx:     []string{"mx.zoho.com", "contoso.mail.protection.outlook.com"},
			want:   Microsoft365,
		},
		{
			name:   "Unknown MX Is Generic",
			domain: "example.org",
			mx:     []string{"mail.example.org"},
			want:   Generic,
		},
		{
			name:   "No MX Is Generic",
			domain: "example.org",
			want:   Generic,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var mx []dnsx.MX
			for i, host := range tc.mx {
				mx = append(mx, dnsx.MX{Host: host, Pref: uint16(10 * (i + 1))})
			}
			assert.Equal(t, tc.want, Domain(tc.domain, mx))
		})
	}
}

func TestProviderRouting(t *testing.T) {
	assert.True(t, IsMicrosoft(Microsoft365))
	assert.True(t, IsMicrosoft(ConsumerMicrosoft))
	assert.False(t, IsMicrosoft(GoogleWorkspace))

	assert.True(t, IsGoogle(GoogleWorkspace))
	assert.True(t, IsGoogle(ConsumerGoogle))
	assert.False(t, IsGoogle(Titan))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Microsoft 365", DisplayName(ConsumerMicrosoft))
	assert.Equal(t, "Google Workspace", DisplayName(GoogleWorkspace))
	assert.Equal(t, "generic", DisplayName(Generic))
}
