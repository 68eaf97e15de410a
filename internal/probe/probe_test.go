package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Temiboboye/zbai/internal/cache"
)

// msFixture stands in for the two Microsoft endpoints. Addresses listed in
// mailboxes get IfExistsResult=0; everyone else gets 1. autodiscoverStatus
// controls what the autodiscover endpoint returns for real addresses.
type msFixture struct {
	mailboxes          map[string]bool
	o365               bool
	catchAll           bool
	credentialStatus   int
	autodiscoverStatus int

	autodiscover *httptest.Server
	login        *httptest.Server
}

func newMSFixture() *msFixture {
	f := &msFixture{
		mailboxes:          map[string]bool{},
		o365:               true,
		credentialStatus:   http.StatusOK,
		autodiscoverStatus: http.StatusOK,
	}

	f.autodiscover = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !f.o365 {
			http.NotFound(w, r)
			return
		}
		// Path shape: /autodiscover/autodiscover.json/v1.0/{email}
		email := strings.TrimPrefix(r.URL.Path, "/autodiscover/autodiscover.json/v1.0/")
		if f.catchAll || f.mailboxes[email] {
			w.WriteHeader(f.autodiscoverStatus)
			w.Write([]byte(`{"Protocol":"rest","Url":"https://outlook.office365.com/api"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`outlook.office365.com: mailbox not found`))
	}))

	f.login = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if f.credentialStatus != http.StatusOK {
			w.WriteHeader(f.credentialStatus)
			return
		}
		var req struct {
			Username string `json:"Username"`
		}
		json.NewDecoder(r.Body).Decode(&req)

		result := 1
		if f.mailboxes[req.Username] {
			result = 0
		}
		json.NewEncoder(w).Encode(map[string]int{"IfExistsResult": result})
	}))
	return f
}

func (f *msFixture) client() *Client {
	c := NewClient(5 * time.Second)
	c.AutodiscoverBase = f.autodiscover.URL
	c.LoginBase = f.login.URL
	return c
}

func (f *msFixture) close() {
	f.autodiscover.Close()
	f.login.Close()
}

func TestMicrosoftMailboxExists(t *testing.T) {
	f := newMSFixture()
	defer f.close()
	f.mailboxes["ceo@contoso.com"] = true

	out := f.client().Microsoft(context.Background(), "ceo@contoso.com", "contoso.com")

	assert.Equal(t, ExistsYes, out.Exists)
	assert.True(t, out.IsO365)
	assert.Equal(t, cache.False, out.CatchAll, "random probe address got a 404")
	assert.Contains(t, out.Details, "user exists")
}

func TestMicrosoftMailboxMissing(t *testing.T) {
	f := newMSFixture()
	defer f.close()

	out := f.client().Microsoft(context.Background(), "ghost@contoso.com", "contoso.com")

	assert.Equal(t, ExistsNo, out.Exists)
	assert.True(t, out.IsO365)
	assert.Contains(t, out.Details, "does not exist")
}

func TestMicrosoftCatchAllTenant(t *testing.T) {
	f := newMSFixture()
	defer f.close()
	f.catchAll = true
	f.mailboxes["user@contoso.com"] = true

	out := f.client().Microsoft(context.Background(), "user@contoso.com", "contoso.com")

	assert.Equal(t, ExistsYes, out.Exists)
	assert.Equal(t, cache.True, out.CatchAll, "random address answered 200 with a payload")
}

func TestMicrosoftHeuristicFallback(t *testing.T) {
	f := newMSFixture()
	defer f.close()
	f.credentialStatus = http.StatusTooManyRequests
	f.mailboxes["ceo@contoso.com"] = true

	out := f.client().Microsoft(context.Background(), "ceo@contoso.com", "contoso.com")

	assert.Equal(t, ExistsYes, out.Exists, "autodiscover 200 stands in when credential-type is throttled")
	assert.Contains(t, out.Details, "credential-type probe failed")
	assert.Contains(t, out.Details, "mailbox resolves")
}

func TestMicrosoftHeuristicFallbackMissing(t *testing.T) {
	f := newMSFixture()
	defer f.close()
	f.credentialStatus = http.StatusTooManyRequests

	out := f.client().Microsoft(context.Background(), "ghost@contoso.com", "contoso.com")

	assert.Equal(t, ExistsNo, out.Exists, "404 on a known-o365 domain means no mailbox")
}

func TestMicrosoftNonO365Domain(t *testing.T) {
	f := newMSFixture()
	defer f.close()
	f.o365 = false
	f.credentialStatus = http.StatusServiceUnavailable

	out := f.client().Microsoft(context.Background(), "user@example.com", "example.com")

	assert.Equal(t, ExistsUnknown, out.Exists)
	assert.False(t, out.IsO365)
	assert.Equal(t, cache.Unknown, out.CatchAll)
}

func TestMicrosoftEndpointsUnreachable(t *testing.T) {
	f := newMSFixture()
	f.close() // both endpoints down before the probe runs

	out := f.client().Microsoft(context.Background(), "user@contoso.com", "contoso.com")

	assert.Equal(t, ExistsUnknown, out.Exists)
	assert.Equal(t, cache.Unknown, out.CatchAll)
	assert.Contains(t, out.Details, "probe failed")
}

// ── Google ───────────────────────────────────────────────────────────────────

// googleFixture serves the calendar iCal endpoint: known addresses get an
// X-Frame-Options header, unknown ones none at all.
type googleFixture struct {
	mailboxes map[string]string // email -> header value
	catchAll  bool

	server *httptest.Server
}

func newGoogleFixture() *googleFixture {
	f := &googleFixture{mailboxes: map[string]string{}}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/calendar/ical/"), "/public/basic.ics")
		if xfo, ok := f.mailboxes[email]; ok {
			w.Header().Set("X-Frame-Options", xfo)
			w.WriteHeader(http.StatusOK)
			return
		}
		if f.catchAll {
			w.Header().Set("X-Frame-Options", "DENY")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	return f
}

func (f *googleFixture) client() *Client {
	c := NewClient(5 * time.Second)
	c.CalendarBase = f.server.URL
	return c
}

func TestGoogleMailboxExists(t *testing.T) {
	f := newGoogleFixture()
	defer f.server.Close()
	f.mailboxes["user@gmail.com"] = "DENY"

	out := f.client().Google(context.Background(), "user@gmail.com", "gmail.com")

	assert.Equal(t, ExistsYes, out.Exists)
	assert.Equal(t, cache.False, out.CatchAll)
	assert.Contains(t, out.Details, "calendar not public")
}

func TestGooglePublicCalendar(t *testing.T) {
	f := newGoogleFixture()
	defer f.server.Close()
	f.mailboxes["team@example.com"] = "sameorigin"

	out := f.client().Google(context.Background(), "team@example.com", "example.com")

	assert.Equal(t, ExistsYes, out.Exists)
	assert.Contains(t, out.Details, "calendar public", "header comparison is case-insensitive")
}

func TestGoogleMailboxMissing(t *testing.T) {
	f := newGoogleFixture()
	defer f.server.Close()

	out := f.client().Google(context.Background(), "ghost@gmail.com", "gmail.com")

	assert.Equal(t, ExistsNo, out.Exists)
	assert.Equal(t, cache.False, out.CatchAll)
}

func TestGoogleCatchAllDomain(t *testing.T) {
	f := newGoogleFixture()
	defer f.server.Close()
	f.mailboxes["user@example.com"] = "DENY"
	f.catchAll = true

	out := f.client().Google(context.Background(), "user@example.com", "example.com")

	assert.Equal(t, ExistsYes, out.Exists)
	assert.Equal(t, cache.True, out.CatchAll, "random local part also carried the header")
}

func TestGoogleUnreachable(t *testing.T) {
	f := newGoogleFixture()
	f.server.Close()

	out := f.client().Google(context.Background(), "user@gmail.com", "gmail.com")

	assert.Equal(t, ExistsUnknown, out.Exists)
	assert.Contains(t, out.Details, "calendar probe failed")
}

func TestExistenceString(t *testing.T) {
	assert.Equal(t, "exists", ExistsYes.String())
	assert.Equal(t, "not_found", ExistsNo.String())
	assert.Equal(t, "unknown", ExistsUnknown.String())
}

func TestNewClientDefaults(t *testing.T) {
	c := NewClient(0)
	require.NotNil(t, c.httpClient)
	require.NotNil(t, c.noRedirectClient)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
	assert.Equal(t, "https://outlook.office365.com", c.AutodiscoverBase)
	assert.Equal(t, "https://login.microsoftonline.com", c.LoginBase)
	assert.Equal(t, "https://calendar.google.com", c.CalendarBase)
}
