package smtpx

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExchanger speaks just enough SMTP over a net.Pipe to exercise the
// prober. ehloCode 502 forces the HELO fallback; rcptCode decides the
// mailbox verdict.
type fakeExchanger struct {
	ehloCode int
	rcptCode int
	rcptMsg  string

	commands []string
	done     chan struct{}
}

func (f *fakeExchanger) serve(conn net.Conn) {
	defer close(f.done)
	defer conn.Close()
	if f.ehloCode == 0 {
		f.ehloCode = 250
	}

	w := bufio.NewWriter(conn)
	r := bufio.NewReader(conn)
	reply := func(code int, msg string) {
		fmt.Fprintf(w, "%d %s\r\n", code, msg)
		w.Flush()
	}

	reply(220, "mx.test ESMTP ready")
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return
		}
		line = strings.TrimRight(line, "\r\n")
		f.commands = append(f.commands, line)

		verb := strings.ToUpper(line)
		switch {
		case strings.HasPrefix(verb, "EHLO"):
			reply(f.ehloCode, "mx.test")
		case strings.HasPrefix(verb, "HELO"):
			reply(250, "mx.test")
		case strings.HasPrefix(verb, "MAIL FROM"):
			reply(250, "OK")
		case strings.HasPrefix(verb, "RCPT TO"):
			reply(f.rcptCode, f.rcptMsg)
		case strings.HasPrefix(verb, "QUIT"):
			reply(221, "bye")
			return
		default:
			reply(500, "unrecognized")
		}
	}
}

// pipeProber wires a Prober to the fake exchanger over net.Pipe.
func pipeProber(f *fakeExchanger) *Prober {
	f.done = make(chan struct{})
	p := NewProber("probe.test", 5*time.Second, 4)
	p.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		client, server := net.Pipe()
		go f.serve(server)
		return client, nil
	}
	return p
}

func TestProbeAccepted(t *testing.T) {
	f := &fakeExchanger{rcptCode: 250, rcptMsg: "Recipient OK"}
	p := pipeProber(f)

	res := p.Probe(context.Background(), "mx.test", "user@example.com")
	<-f.done

	assert.Equal(t, VerdictAccepted, res.Verdict)
	assert.Equal(t, 250, res.Code)
	assert.Equal(t, "Recipient OK", res.Message)

	// Conversation shape: EHLO, MAIL FROM with empty reverse path, RCPT, QUIT.
	require.Len(t, f.commands, 4)
	assert.Equal(t, "EHLO probe.test", f.commands[0])
	assert.Equal(t, "MAIL FROM:<>", f.commands[1])
	assert.Equal(t, "RCPT TO:<user@example.com>", f.commands[2])
	assert.Equal(t, "QUIT", f.commands[3])
}

func TestProbeRejected(t *testing.T) {
	tests := []struct {
		code int
		want Verdict
	}{
		{250, VerdictAccepted},
		{251, VerdictAccepted},
		{550, VerdictRejected},
		{551, VerdictRejected},
		{553, VerdictRejected},
		{450, VerdictUnreachable}, // greylisting
		{452, VerdictUnreachable},
		{552, VerdictUnreachable}, // full inbox is not proof of absence
		{554, VerdictUnreachable},
	}

	for _, tc := range tests {
		t.Run(fmt.Sprintf("Code %d", tc.code), func(t *testing.T) {
			f := &fakeExchanger{rcptCode: tc.code, rcptMsg: "reply"}
			res := pipeProber(f).Probe(context.Background(), "mx.test", "user@example.com")
			assert.Equal(t, tc.want, res.Verdict)
			assert.Equal(t, tc.code, res.Code)
		})
	}
}

func TestProbeHeloFallback(t *testing.T) {
	f := &fakeExchanger{ehloCode: 502, rcptCode: 250, rcptMsg: "OK"}
	res := pipeProber(f).Probe(context.Background(), "mx.test", "user@example.com")
	<-f.done

	assert.Equal(t, VerdictAccepted, res.Verdict)
	require.GreaterOrEqual(t, len(f.commands), 2)
	assert.Equal(t, "EHLO probe.test", f.commands[0])
	assert.Equal(t, "HELO probe.test", f.commands[1])
}

func TestProbeConnectFailure(t *testing.T) {
	p := NewProber("probe.test", time.Second, 2)
	p.Dial = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return nil, errors.New("connection refused")
	}

	res := p.Probe(context.Background(), "mx.test", "user@example.com")
	assert.Equal(t, VerdictUnreachable, res.Verdict)
	assert.Contains(t, res.Message, "connect failed")
}

func TestProbeCancelledContext(t *testing.T) {
	p := NewProber("probe.test", time.Second, 1)
	// Occupy the only slot so the probe blocks on the semaphore.
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := p.Probe(ctx, "mx.test", "user@example.com")
	assert.Equal(t, VerdictUnreachable, res.Verdict)
}

func TestProbeDefaults(t *testing.T) {
	p := NewProber("", 0, 0)
	assert.Equal(t, DefaultHelo, p.HeloHost)
	assert.Equal(t, DefaultTimeout, p.Timeout)
	assert.Equal(t, "25", p.Port)
	assert.Equal(t, 15, cap(p.sem))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, VerdictAccepted, classify(250, "ok").Verdict)
	assert.Equal(t, VerdictRejected, classify(550, "no user").Verdict)
	assert.Equal(t, VerdictUnreachable, classify(421, "busy").Verdict)
}
