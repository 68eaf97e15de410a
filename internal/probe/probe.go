// Package probe implements the provider-specific HTTP probes: the Microsoft
// autodiscover + credential-type pair and the Google calendar header check.
// Probes never return errors to the cascade; anything that goes wrong
// downgrades to ExistsUnknown with a diagnostic string so SMTP can take over.
package probe

import (
	"net/http"
	"time"

	"github.com/Temiboboye/zbai/internal/cache"
)

// Existence is a probe's per-address verdict.
type Existence int

const (
	ExistsUnknown Existence = iota
	ExistsYes
	ExistsNo
)

func (e Existence) String() string {
	switch e {
	case ExistsYes:
		return "exists"
	case ExistsNo:
		return "not_found"
	}
	return "unknown"
}

// Outcome is the common shape both providers produce.
type Outcome struct {
	Exists   Existence
	CatchAll cache.TriState
	IsO365   bool
	Details  string
}

const (
	DefaultTimeout = 10 * time.Second

	// Outlook desktop UA; the autodiscover endpoint serves JSON to it
	// without an interactive login dance.
	officeUserAgent = "Microsoft Office/16.0 (Windows NT 10.0; Microsoft Outlook 16.0.12026; Pro)"
)

// Client carries the shared HTTP plumbing for all provider probes.
// Base URLs are configurable so tests can point at httptest servers.
type Client struct {
	AutodiscoverBase string // default https://outlook.office365.com
	LoginBase        string // default https://login.microsoftonline.com
	CalendarBase     string // default https://calendar.google.com

	httpClient       *http.Client
	noRedirectClient *http.Client
}

// NewClient builds a probe client with the production endpoints.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	transport := &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Client{
		AutodiscoverBase: "https://outlook.office365.com",
		LoginBase:        "https://login.microsoftonline.com",
		CalendarBase:     "https://calendar.google.com",
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: transport,
		},
		// Same transport, same pool, but redirects are the signal here
		// (autodiscover 302), so they must not be followed.
		noRedirectClient: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Transport: transport,
		},
	}
}
