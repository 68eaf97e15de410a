package lists

import (
	"bufio"
	"io"
	"strings"
	"sync"
)

// Lists holds the static domain tables: disposable providers, role-based
// local parts and domains externally confirmed as catch-all. All three are
// reloadable at runtime without a restart.
type Lists struct {
	mu         sync.RWMutex
	disposable map[string]struct{}
	roles      map[string]struct{}
	catchAll   map[string]struct{}
}

// Common disposable domains
var defaultDisposable = []string{
	"tempmail.com", "temp-mail.org", "10minutemail.com", "guerrillamail.com",
	"mailinator.com", "yopmail.com", "throwaway.email", "throwawaymail.com",
	"tempmail.net", "sharklasers.com", "dispostable.com", "getnada.com",
	"maildrop.cc", "fakeinbox.com", "trashmail.com",
}

// Common role-based prefixes
var defaultRoles = []string{
	"admin", "administrator", "info", "support", "sales", "contact",
	"help", "service", "office", "noreply", "no-reply", "postmaster",
	"webmaster", "hostmaster", "marketing", "billing", "jobs", "abuse",
	"security", "privacy", "hr",
}

// Domains verified externally as accept-all. Consulted when SMTP port 25
// is blocked and the catch-all probe cannot run.
var defaultCatchAll = []string{
	"penniesuntouched.com",
}

// Default returns Lists seeded with the built-in tables.
func Default() *Lists {
	l := &Lists{}
	l.ReplaceDisposable(defaultDisposable)
	l.ReplaceRoles(defaultRoles)
	l.ReplaceCatchAll(defaultCatchAll)
	return l
}

func (l *Lists) IsDisposable(domain string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.disposable[strings.ToLower(domain)]
	return ok
}

func (l *Lists) IsRoleAccount(local string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.roles[strings.ToLower(local)]
	return ok
}

func (l *Lists) IsKnownCatchAll(domain string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.catchAll[strings.ToLower(domain)]
	return ok
}

func (l *Lists) ReplaceDisposable(domains []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.disposable = toSet(domains)
}

func (l *Lists) ReplaceRoles(locals []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.roles = toSet(locals)
}

func (l *Lists) ReplaceCatchAll(domains []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.catchAll = toSet(domains)
}

// LoadDisposable replaces the disposable table from one-entry-per-line input.
// Blank lines and lines starting with # are skipped.
func (l *Lists) LoadDisposable(r io.Reader) error {
	entries, err := readLines(r)
	if err != nil {
		return err
	}
	l.ReplaceDisposable(entries)
	return nil
}

func (l *Lists) LoadRoles(r io.Reader) error {
	entries, err := readLines(r)
	if err != nil {
		return err
	}
	l.ReplaceRoles(entries)
	return nil
}

func (l *Lists) LoadCatchAll(r io.Reader) error {
	entries, err := readLines(r)
	if err != nil {
		return err
	}
	l.ReplaceCatchAll(entries)
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	return out, sc.Err()
}

func toSet(entries []string) map[string]struct{} {
	set := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			set[e] = struct{}{}
		}
	}
	return set
}
