package classify

import (
	"strings"

	"github.com/Temiboboye/zbai/internal/dnsx"
)

// Provider is the closed set of tags the classifier can assign.
type Provider string

const (
	Microsoft365      Provider = "microsoft365"
	GoogleWorkspace   Provider = "google_workspace"
	Titan             Provider = "titan"
	Zoho              Provider = "zoho"
	ProtonMail        Provider = "protonmail"
	Yahoo             Provider = "yahoo"
	Generic           Provider = "generic"
	ConsumerMicrosoft Provider = "consumer_microsoft"
	ConsumerGoogle    Provider = "consumer_google"
)

// Consumer mailbox domains, matched literally before any MX inspection.
var consumerMicrosoft = map[string]struct{}{
	"outlook.com": {}, "hotmail.com": {}, "live.com": {}, "msn.com": {},
}

var consumerGoogle = map[string]struct{}{
	"gmail.com": {}, "googlemail.com": {},
}

// MX hostname substrings checked in order; first match wins.
var mxSignatures = []struct {
	needle string
	tag    Provider
}{
	{"mail.protection.outlook.com", Microsoft365},
	{"protection.outlook.com", Microsoft365},
	{"aspmx.l.google.com", GoogleWorkspace},
	{"googlemail.com", GoogleWorkspace},
	{"google.com", GoogleWorkspace},
	{"titan.email", Titan},
	{"zoho", Zoho},
	{"protonmail.ch", ProtonMail},
	{"proton.ch", ProtonMail},
	{"yahoodns.net", Yahoo},
}

// Domain assigns a provider tag from the literal domain name and its MX
// records. The rules run top to bottom: consumer domains first, then MX
// signature scan, then generic.
func Domain(domain string, mx []dnsx.MX) Provider {
	d := strings.ToLower(domain)
	if _, ok := consumerMicrosoft[d]; ok {
		return ConsumerMicrosoft
	}
	if _, ok := consumerGoogle[d]; ok {
		return ConsumerGoogle
	}

	for _, sig := range mxSignatures {
		for _, rec := range mx {
			if strings.Contains(strings.ToLower(rec.Host), sig.needle) {
				return sig.tag
			}
		}
	}
	return Generic
}

// IsMicrosoft reports whether the tag routes to the Microsoft probes.
func IsMicrosoft(p Provider) bool {
	return p == Microsoft365 || p == ConsumerMicrosoft
}

// IsGoogle reports whether the tag routes to the Google calendar probe.
func IsGoogle(p Provider) bool {
	return p == GoogleWorkspace || p == ConsumerGoogle
}

// DisplayName is the human-readable provider string placed in results.
func DisplayName(p Provider) string {
	switch p {
	case Microsoft365, ConsumerMicrosoft:
		return "Microsoft 365"
	case GoogleWorkspace, ConsumerGoogle:
		return "Google Workspace"
	case Titan:
		return "Titan"
	case Zoho:
		return "Zoho Mail"
	case ProtonMail:
		return "ProtonMail"
	case Yahoo:
		return "Yahoo"
	default:
		return "generic"
	}
}
