package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Temiboboye/zbai/internal/address"
	"github.com/Temiboboye/zbai/internal/cache"
)

// IfExistsResult values returned by the credential-type endpoint.
// 0 means the user exists in a tenant, 1 means it does not; anything else
// (5 = federated, 6 = throttled, ...) is inconclusive.
const (
	ifExistsYes = 0
	ifExistsNo  = 1
)

// Microsoft runs the autodiscover + credential-type pair for microsoft365
// and consumer_microsoft domains.
//
// Step 1 probes autodiscover with a random unguessable local part: a body
// referencing outlook.office365.com tags the domain o365; a 200 for the
// random address tags it catch-all.
//
// Step 2 posts the real address to GetCredentialType. A conclusive
// IfExistsResult is the authoritative signal and overrides SMTP; on
// catch-all domains it is the only reliable per-address signal.
func (c *Client) Microsoft(ctx context.Context, email, domain string) Outcome {
	out := Outcome{Exists: ExistsUnknown, CatchAll: cache.Unknown}

	randomAddr := address.RandomLocal(20) + "@" + domain
	status, body, err := c.autodiscover(ctx, randomAddr)
	if err != nil {
		out.Details = fmt.Sprintf("autodiscover probe failed: %v", err)
	} else {
		if strings.Contains(body, "outlook.office365.com") {
			out.IsO365 = true
		}
		// The random local part cannot be a real mailbox; 200 with a real
		// payload means the tenant answers for every address.
		if status == http.StatusOK && strings.Contains(body, "Protocol") {
			out.CatchAll = cache.True
		} else if out.IsO365 {
			out.CatchAll = cache.False
		}
	}

	exists, details, err := c.credentialType(ctx, email)
	if err != nil {
		// Fall back to the autodiscover heuristic for the real address.
		out.Details = appendDetail(out.Details, fmt.Sprintf("credential-type probe failed: %v", err))
		c.autodiscoverHeuristic(ctx, email, &out)
		return out
	}

	out.Exists = exists
	out.Details = appendDetail(out.Details, details)
	return out
}

// autodiscover fetches the autodiscover JSON endpoint without following
// redirects and returns the status code plus body.
func (c *Client) autodiscover(ctx context.Context, email string) (int, string, error) {
	u := fmt.Sprintf("%s/autodiscover/autodiscover.json/v1.0/%s?Protocol=rest",
		c.AutodiscoverBase, url.PathEscape(email))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, "", err
	}
	req.Header.Set("User-Agent", officeUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.noRedirectClient.Do(req)
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, "", err
	}
	return resp.StatusCode, string(body), nil
}

// credentialType posts the real address to GetCredentialType and interprets
// IfExistsResult.
func (c *Client) credentialType(ctx context.Context, email string) (Existence, string, error) {
	payload, err := json.Marshal(map[string]string{"Username": email})
	if err != nil {
		return ExistsUnknown, "", err
	}

	u := c.LoginBase + "/common/GetCredentialType"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return ExistsUnknown, "", err
	}
	req.Header.Set("User-Agent", officeUserAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ExistsUnknown, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ExistsUnknown, "", fmt.Errorf("credential-type endpoint returned %d", resp.StatusCode)
	}

	var parsed struct {
		IfExistsResult int `json:"IfExistsResult"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&parsed); err != nil {
		return ExistsUnknown, "", err
	}

	switch parsed.IfExistsResult {
	case ifExistsYes:
		return ExistsYes, "credential-type: user exists in tenant", nil
	case ifExistsNo:
		return ExistsNo, "credential-type: user does not exist", nil
	}
	return ExistsUnknown, fmt.Sprintf("credential-type: inconclusive (IfExistsResult=%d)", parsed.IfExistsResult), nil
}

// autodiscoverHeuristic applies the secondary autodiscover signal for the
// real address: a plain 200 means the mailbox resolves, and on a known-o365
// domain a 302 that redirects away from outlook.office365.com does too.
// Heuristic only; credential-type always wins when it answered.
func (c *Client) autodiscoverHeuristic(ctx context.Context, email string, out *Outcome) {
	status, body, err := c.autodiscover(ctx, email)
	if err != nil {
		return
	}
	switch {
	case status == http.StatusOK:
		out.Exists = ExistsYes
		out.Details = appendDetail(out.Details, "autodiscover: mailbox resolves (200)")
	case status == http.StatusFound && out.IsO365 && !strings.Contains(body, "outlook.office365.com"):
		out.Exists = ExistsYes
		out.Details = appendDetail(out.Details, "autodiscover: redirect away from o365 (302)")
	case out.IsO365:
		out.Exists = ExistsNo
		out.Details = appendDetail(out.Details, fmt.Sprintf("autodiscover: mailbox not found (%d)", status))
	}
}

func appendDetail(existing, add string) string {
	if add == "" {
		return existing
	}
	if existing == "" {
		return add
	}
	return existing + "; " + add
}
