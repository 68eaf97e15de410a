// Package verify composes the probe cascade: syntax, domain A, MX,
// provider HTTP probe, SMTP conversation, catch-all detection, and the
// final decision. Probe-level failures never escape this package; they
// downgrade signals and the cascade keeps going.
package verify

import (
	"context"
	"fmt"
	"time"

	"github.com/Temiboboye/zbai/internal/address"
	"github.com/Temiboboye/zbai/internal/cache"
	"github.com/Temiboboye/zbai/internal/classify"
	"github.com/Temiboboye/zbai/internal/dnsx"
	"github.com/Temiboboye/zbai/internal/lists"
	"github.com/Temiboboye/zbai/internal/models"
	"github.com/Temiboboye/zbai/internal/probe"
	"github.com/Temiboboye/zbai/internal/smtpx"
)

// Resolver is the DNS surface the engine needs; *dnsx.Resolver satisfies it.
type Resolver interface {
	LookupA(ctx context.Context, domain string) ([]string, error)
	LookupMX(ctx context.Context, domain string) ([]dnsx.MX, error)
}

// SMTPProber runs one RCPT TO conversation; *smtpx.Prober satisfies it.
type SMTPProber interface {
	Probe(ctx context.Context, mxHost, email string) smtpx.Result
}

// ProviderProber runs the provider HTTP probes; *probe.Client satisfies it.
type ProviderProber interface {
	Microsoft(ctx context.Context, email, domain string) probe.Outcome
	Google(ctx context.Context, email, domain string) probe.Outcome
}

// Budgets are the per-address deadlines for each probe family.
type Budgets struct {
	Total time.Duration // whole cascade per address
	DNS   time.Duration
	HTTP  time.Duration
	SMTP  time.Duration
}

// DefaultBudgets match the operational defaults: 30s per address overall.
func DefaultBudgets() Budgets {
	return Budgets{
		Total: 30 * time.Second,
		DNS:   5 * time.Second,
		HTTP:  10 * time.Second,
		SMTP:  15 * time.Second,
	}
}

// Engine is the verification cascade with all collaborators injected.
// Process-wide state is confined to the domain cache.
type Engine struct {
	resolver Resolver
	smtp     SMTPProber
	provider ProviderProber
	cache    *cache.Store
	lists    *lists.Lists
	budgets  Budgets
}

func NewEngine(r Resolver, s SMTPProber, p ProviderProber, c *cache.Store, l *lists.Lists, b Budgets) *Engine {
	if b.Total <= 0 {
		b = DefaultBudgets()
	}
	return &Engine{resolver: r, smtp: s, provider: p, cache: c, lists: l, budgets: b}
}

// Verify runs the full cascade for one input address. It always returns a
// fully populated result, never an error: conclusive negatives are
// outcomes, transient failures degrade to "unknown" signals.
func (e *Engine) Verify(ctx context.Context, input string) models.VerificationResult {
	ctx, cancel := context.WithTimeout(ctx, e.budgets.Total)
	defer cancel()

	res := models.VerificationResult{
		Email:        input,
		Syntax:       models.SyntaxInvalid,
		Domain:       models.DomainInvalid,
		MX:           models.MXNotFound,
		MXRecords:    []string{},
		SMTP:         models.SMTPNoMX,
		SMTPProvider: "generic",
		Details:      map[string]interface{}{},
		Timestamp:    time.Now().UTC(),
	}
	sig := Signals{}

	// 1. Syntax
	addr, ok, reason := address.Validate(input)
	res.Email = addr.Raw
	res.Details["syntax"] = reason
	if !ok {
		return finish(res, sig)
	}
	res.Syntax = models.SyntaxValid
	sig.SyntaxValid = true

	// 2. Disposable + role lists
	if e.lists.IsDisposable(addr.Domain) {
		res.Disposable = true
		sig.Disposable = true
		return finish(res, sig)
	}
	res.RoleBased = e.lists.IsRoleAccount(addr.Local)
	sig.RoleBased = res.RoleBased

	// 3. Domain A record
	dnsCtx, dnsCancel := context.WithTimeout(ctx, e.budgets.DNS)
	_, aErr := e.resolver.LookupA(dnsCtx, addr.Domain)
	dnsCancel()
	if aErr != nil {
		res.Details["domain"] = string(dnsx.Classify(aErr))
		return finish(res, sig)
	}
	res.Domain = models.DomainValid
	res.Details["domain"] = "resolves"
	sig.DomainResolves = true

	// 4. MX records
	dnsCtx, dnsCancel = context.WithTimeout(ctx, e.budgets.DNS)
	mxRecords, mxErr := e.resolver.LookupMX(dnsCtx, addr.Domain)
	dnsCancel()
	if mxErr != nil {
		res.Details["mx"] = string(dnsx.Classify(mxErr))
		return finish(res, sig)
	}
	res.MX = models.MXFound
	for _, mx := range mxRecords {
		res.MXRecords = append(res.MXRecords, mx.Host)
	}
	res.Details["mx_records"] = res.MXRecords
	sig.MXFound = true

	// 5. Provider classification, memoized per domain
	provider := e.classifyDomain(addr.Domain, mxRecords)
	res.SMTPProvider = classify.DisplayName(provider)

	// Warm cache may already know the catch-all answer.
	catchAll := cache.Unknown
	if entry, ok := e.cache.Get(addr.Domain); ok {
		catchAll = entry.CatchAll
	}

	// 6. Provider-specific HTTP probe
	outcome := e.runProviderProbe(ctx, provider, addr)
	if outcome.IsO365 {
		res.IsO365 = true
	}
	if outcome.Details != "" {
		res.Details["specialized_check"] = outcome.Details
	}
	if outcome.CatchAll != cache.Unknown {
		catchAll = outcome.CatchAll
		e.cache.SetCatchAll(addr.Domain, outcome.CatchAll)
		res.Details["catch_all_source"] = "probe"
	}

	if outcome.Exists != probe.ExistsUnknown {
		sig.ProviderExists = outcome.Exists
		res.CatchAll = catchAll == cache.True
		sig.CatchAll = res.CatchAll
		if outcome.Exists == probe.ExistsYes {
			res.SMTP = models.SMTPResponsive
		} else {
			res.SMTP = models.SMTPRejected
		}
		return finish(res, sig)
	}

	// 7. SMTP conversation against the primary MX
	primaryMX := mxRecords[0].Host
	smtpCtx, smtpCancel := context.WithTimeout(ctx, e.budgets.SMTP)
	smtpRes := e.smtp.Probe(smtpCtx, primaryMX, addr.Normalized)
	smtpCancel()
	res.SMTP = smtpStatus(smtpRes.Verdict)
	res.Details["smtp"] = smtpDetail(smtpRes)
	sig.SMTP = res.SMTP

	// 8. Catch-all detection
	switch {
	case catchAll != cache.Unknown:
		// Cached observation wins; no extra RCPT against the domain.
		res.Details["catch_all_source"] = "cache"
	case res.SMTP == models.SMTPResponsive:
		smtpCtx, smtpCancel := context.WithTimeout(ctx, e.budgets.SMTP)
		ghost := address.RandomLocal(16) + "@" + addr.Domain
		ghostRes := e.smtp.Probe(smtpCtx, primaryMX, ghost)
		smtpCancel()
		if ghostRes.Verdict == smtpx.VerdictAccepted {
			catchAll = cache.True
		} else if ghostRes.Verdict == smtpx.VerdictRejected {
			catchAll = cache.False
		}
		e.cache.SetCatchAll(addr.Domain, catchAll)
		res.Details["catch_all_source"] = "probe"
	default:
		// SMTP blocked: fall back to the externally verified allowlist.
		if e.lists.IsKnownCatchAll(addr.Domain) {
			catchAll = cache.True
			res.Details["catch_all_source"] = "known_database"
		}
	}

	res.CatchAll = catchAll == cache.True
	sig.CatchAll = res.CatchAll
	return finish(res, sig)
}

// classifyDomain returns the cached provider tag or classifies and stores it.
func (e *Engine) classifyDomain(domain string, mx []dnsx.MX) classify.Provider {
	if entry, ok := e.cache.Get(domain); ok && entry.Provider != "" {
		return entry.Provider
	}
	p := classify.Domain(domain, mx)
	e.cache.SetProvider(domain, p)
	return p
}

func (e *Engine) runProviderProbe(ctx context.Context, p classify.Provider, addr address.Address) probe.Outcome {
	if !classify.IsMicrosoft(p) && !classify.IsGoogle(p) {
		return probe.Outcome{Exists: probe.ExistsUnknown, CatchAll: cache.Unknown}
	}

	httpCtx, cancel := context.WithTimeout(ctx, e.budgets.HTTP)
	defer cancel()

	if classify.IsMicrosoft(p) {
		return e.provider.Microsoft(httpCtx, addr.Normalized, addr.Domain)
	}
	return e.provider.Google(httpCtx, addr.Normalized, addr.Domain)
}

// finish applies the decision table and stamps the derived fields.
func finish(res models.VerificationResult, sig Signals) models.VerificationResult {
	v := Decide(sig)
	res.FinalStatus = v.Status
	res.SafetyScore = v.Score
	res.Reason = v.Reason
	res.SpamRisk = v.Risk
	return res
}

func smtpStatus(v smtpx.Verdict) models.SMTPStatus {
	switch v {
	case smtpx.VerdictAccepted:
		return models.SMTPResponsive
	case smtpx.VerdictRejected:
		return models.SMTPRejected
	default:
		return models.SMTPUnreachable
	}
}

func smtpDetail(r smtpx.Result) string {
	if r.Code == 0 {
		return r.Message
	}
	return fmt.Sprintf("%d %s", r.Code, r.Message)
}
