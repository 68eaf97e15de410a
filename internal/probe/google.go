package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Temiboboye/zbai/internal/address"
	"github.com/Temiboboye/zbai/internal/cache"
)

// Google runs the calendar iCal header probe for google_workspace and
// consumer_google domains. A HEAD on the public iCal URL carries an
// X-Frame-Options header for every existing account, public calendar or
// not; absence means the address does not exist. A second HEAD with a
// random local part establishes catch-all status for the domain.
func (c *Client) Google(ctx context.Context, email, domain string) Outcome {
	out := Outcome{Exists: ExistsUnknown, CatchAll: cache.Unknown}

	xfo, err := c.calendarHead(ctx, email)
	if err != nil {
		out.Details = fmt.Sprintf("calendar probe failed: %v", err)
		return out
	}

	if xfo == "" {
		out.Exists = ExistsNo
		out.CatchAll = cache.False
		out.Details = "calendar: no X-Frame-Options header, address does not exist"
		return out
	}

	out.Exists = ExistsYes
	if xfo == "SAMEORIGIN" {
		out.Details = "calendar: address valid, calendar public"
	} else {
		out.Details = "calendar: address valid, calendar not public"
	}

	randomAddr := address.RandomLocal(20) + "@" + domain
	randomXFO, err := c.calendarHead(ctx, randomAddr)
	if err != nil {
		out.Details = appendDetail(out.Details, fmt.Sprintf("catch-all probe failed: %v", err))
		return out
	}
	if randomXFO != "" {
		out.CatchAll = cache.True
		out.Details = appendDetail(out.Details, "random local part also resolves, domain is catch-all")
	} else {
		out.CatchAll = cache.False
	}
	return out
}

// calendarHead issues the HEAD request and returns the X-Frame-Options
// value, uppercased, or "" when the header is absent.
func (c *Client) calendarHead(ctx context.Context, email string) (string, error) {
	u := fmt.Sprintf("%s/calendar/ical/%s/public/basic.ics", c.CalendarBase, url.PathEscape(email))

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, u, nil)
	if err != nil {
		return "", err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	return strings.ToUpper(resp.Header.Get("X-Frame-Options")), nil
}
