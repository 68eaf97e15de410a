// Package smtpx holds the raw SMTP conversation against a mail exchanger:
// banner, HELO, MAIL FROM, RCPT TO, QUIT. DATA is never sent.
package smtpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/textproto"
	"time"
)

const (
	DefaultHelo    = "verify.zbai.dev"
	DefaultTimeout = 15 * time.Second

	// Neutral envelope sender; an empty reverse path is what bounce
	// handlers use and is least likely to be rejected outright.
	mailFrom = ""
)

// Verdict is the raw outcome of one RCPT TO probe.
type Verdict int

const (
	VerdictAccepted    Verdict = iota // 250/251
	VerdictRejected                   // 550/551/553
	VerdictUnreachable                // 4xx, connect failure, timeout
)

// Result carries the verdict plus the raw reply for diagnostics.
type Result struct {
	Verdict Verdict
	Code    int
	Message string
}

// DialFunc opens the TCP connection to the MX; injectable for tests.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Prober speaks the probe conversation on port 25 with strict deadlines.
// The global semaphore bounds concurrent connections so a busy worker pool
// does not get the source IP banned by large providers.
type Prober struct {
	HeloHost string
	Timeout  time.Duration
	Port     string
	Dial     DialFunc

	sem chan struct{}
}

// NewProber builds a prober capped at maxConns concurrent conversations.
func NewProber(heloHost string, timeout time.Duration, maxConns int) *Prober {
	if heloHost == "" {
		heloHost = DefaultHelo
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxConns <= 0 {
		maxConns = 15
	}
	d := net.Dialer{Timeout: 10 * time.Second}
	return &Prober{
		HeloHost: heloHost,
		Timeout:  timeout,
		Port:     "25",
		Dial:     d.DialContext,
		sem:      make(chan struct{}, maxConns),
	}
}

// Probe runs one full conversation for the target address against mxHost.
// Network-level failures come back as VerdictUnreachable, never as an
// error the cascade has to special-case.
func (p *Prober) Probe(ctx context.Context, mxHost, email string) Result {
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{Verdict: VerdictUnreachable, Message: ctx.Err().Error()}
	}
	defer func() { <-p.sem }()

	conn, err := p.Dial(ctx, "tcp", net.JoinHostPort(mxHost, p.Port))
	if err != nil {
		return Result{Verdict: VerdictUnreachable, Message: fmt.Sprintf("connect failed: %v", err)}
	}

	// One deadline caps the entire conversation, trimmed further when the
	// caller's context expires sooner.
	deadline := time.Now().Add(p.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	tp := textproto.NewConn(conn)
	defer tp.Close()

	if _, _, err := tp.ReadResponse(220); err != nil {
		return Result{Verdict: VerdictUnreachable, Message: fmt.Sprintf("banner: %v", err)}
	}

	if _, err := tp.Cmd("EHLO %s", p.HeloHost); err != nil {
		return Result{Verdict: VerdictUnreachable, Message: err.Error()}
	}
	if _, _, err := tp.ReadResponse(250); err != nil {
		// Some legacy exchangers only speak HELO.
		if _, err := tp.Cmd("HELO %s", p.HeloHost); err != nil {
			return Result{Verdict: VerdictUnreachable, Message: err.Error()}
		}
		if _, _, err := tp.ReadResponse(250); err != nil {
			return Result{Verdict: VerdictUnreachable, Message: fmt.Sprintf("HELO rejected: %v", err)}
		}
	}

	if _, err := tp.Cmd("MAIL FROM:<%s>", mailFrom); err != nil {
		return Result{Verdict: VerdictUnreachable, Message: err.Error()}
	}
	if _, _, err := tp.ReadResponse(250); err != nil {
		quit(tp)
		return Result{Verdict: VerdictUnreachable, Message: fmt.Sprintf("MAIL FROM rejected: %v", err)}
	}

	if _, err := tp.Cmd("RCPT TO:<%s>", email); err != nil {
		return Result{Verdict: VerdictUnreachable, Message: err.Error()}
	}
	code, msg, err := tp.ReadResponse(0)
	quit(tp)

	if err != nil {
		var tpErr *textproto.Error
		if errors.As(err, &tpErr) {
			return classify(tpErr.Code, tpErr.Msg)
		}
		return Result{Verdict: VerdictUnreachable, Message: fmt.Sprintf("read error: %v", err)}
	}
	return classify(code, msg)
}

// quit is best-effort; the deadline already bounds it.
func quit(tp *textproto.Conn) {
	tp.Cmd("QUIT")
}

func classify(code int, msg string) Result {
	r := Result{Code: code, Message: msg}
	switch {
	case code == 250 || code == 251:
		r.Verdict = VerdictAccepted
	case code == 550 || code == 551 || code == 553:
		r.Verdict = VerdictRejected
	default:
		// 4xx greylisting, 552 full inbox, 554 policy blocks: all mean we
		// cannot prove anything about this mailbox right now.
		r.Verdict = VerdictUnreachable
	}
	return r
}
