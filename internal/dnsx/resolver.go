package dnsx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync/atomic"
	"time"
)

// FailureKind classifies why a lookup produced nothing. The decision engine
// treats NXDOMAIN differently from a flaky recursor.
type FailureKind string

const (
	FailureNone     FailureKind = ""
	FailureNXDomain FailureKind = "nxdomain"
	FailureNoAnswer FailureKind = "no_answer"
	FailureTimeout  FailureKind = "timeout"
	FailureOther    FailureKind = "other"
)

// Default public recursors, tried round-robin.
var DefaultServers = []string{"8.8.8.8:53", "8.8.4.4:53", "1.1.1.1:53"}

const (
	DefaultQueryTimeout = 3 * time.Second
	DefaultLifetime     = 5 * time.Second
)

// MX is one mail exchanger entry, lowest Pref first after LookupMX.
type MX struct {
	Host string
	Pref uint16
}

// Resolver is the DNS facade: a fixed recursor list with a per-query timeout
// and an overall lifetime budget per call. Queries rotate across the
// configured servers with an atomic counter.
type Resolver struct {
	servers      []string
	queryTimeout time.Duration
	lifetime     time.Duration
	counter      uint64
	inner        *net.Resolver
}

// New builds a Resolver over the given recursor addresses (host:port).
// Zero values fall back to the package defaults.
func New(servers []string, queryTimeout, lifetime time.Duration) *Resolver {
	if len(servers) == 0 {
		servers = DefaultServers
	}
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	r := &Resolver{
		servers:      servers,
		queryTimeout: queryTimeout,
		lifetime:     lifetime,
	}

	// Fail fast if a recursor is slow; in a high-volume verifier we cannot
	// wait 30 seconds on a bad DNS server.
	r.inner = &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			d := net.Dialer{Timeout: r.queryTimeout}
			return d.DialContext(ctx, network, r.next())
		},
	}
	return r
}

// next rotates through the recursor list.
func (r *Resolver) next() string {
	n := atomic.AddUint64(&r.counter, 1)
	return r.servers[(n-1)%uint64(len(r.servers))]
}

// LookupA resolves the domain's A/AAAA records under the lifetime budget.
func (r *Resolver) LookupA(ctx context.Context, domain string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lifetime)
	defer cancel()

	addrs, err := r.inner.LookupHost(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("A lookup for %s: %w", domain, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("A lookup for %s: %w", domain, errNoAnswer)
	}
	return addrs, nil
}

// LookupMX resolves MX records sorted by preference ascending, so index 0 is
// always the primary exchanger.
func (r *Resolver) LookupMX(ctx context.Context, domain string) ([]MX, error) {
	ctx, cancel := context.WithTimeout(ctx, r.lifetime)
	defer cancel()

	records, err := r.inner.LookupMX(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("MX lookup for %s: %w", domain, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("MX lookup for %s: %w", domain, errNoAnswer)
	}

	out := make([]MX, 0, len(records))
	for _, rec := range records {
		out = append(out, MX{Host: trimDot(rec.Host), Pref: rec.Pref})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Pref < out[j].Pref })
	return out, nil
}

var errNoAnswer = errors.New("no answer")

// Classify maps a lookup error onto the failure taxonomy.
func Classify(err error) FailureKind {
	if err == nil {
		return FailureNone
	}
	if errors.Is(err, errNoAnswer) {
		return FailureNoAnswer
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		switch {
		case dnsErr.IsNotFound:
			return FailureNXDomain
		case dnsErr.IsTimeout:
			return FailureTimeout
		}
		return FailureOther
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	return FailureOther
}

func trimDot(host string) string {
	if len(host) > 0 && host[len(host)-1] == '.' {
		return host[:len(host)-1]
	}
	return host
}
