// Package smtpprobe implements the probe collaborators over real SMTP:
// a pooled session provider and a MAIL FROM/RCPT TO prober.
package smtpprobe

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/mailprobe/mailprobe/probe"
)

// ErrPoolClosed is returned by WithSession after Close.
var ErrPoolClosed = errors.New("smtpprobe: pool is closed")

// Config configures the session pool and the prober.
type Config struct {
	// Port is the SMTP port. Default: 25.
	Port string
	// ConnectTimeout is the maximum time for the TCP connection. Default: 5s.
	ConnectTimeout time.Duration
	// CommandTimeout is the maximum response time per SMTP command. Default: 10s.
	CommandTimeout time.Duration
	// MaxSessionsPerHost is the max idle sessions kept per exchanger. Default: 3.
	MaxSessionsPerHost int
	// MaxUsesPerSession is the max times a session is handed out before
	// it is reconnected; commands within one checkout don't count. Default: 100.
	MaxUsesPerSession int
	// MaxSessionAge is the max lifetime of a session. Default: 5m.
	MaxSessionAge time.Duration
	// GreylistDelay is the wait the prober reports on a greylisting
	// deferral; SMTP carries no machine-readable retry hint. Default: 15s.
	GreylistDelay time.Duration
	// Dial is injectable for testing. Defaults to net.DialTimeout.
	Dial func(network, address string, timeout time.Duration) (net.Conn, error)
}

func (c Config) withDefaults() Config {
	if c.Port == "" {
		c.Port = "25"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 10 * time.Second
	}
	if c.MaxSessionsPerHost <= 0 {
		c.MaxSessionsPerHost = 3
	}
	if c.MaxUsesPerSession <= 0 {
		c.MaxUsesPerSession = 100
	}
	if c.MaxSessionAge <= 0 {
		c.MaxSessionAge = 5 * time.Minute
	}
	if c.GreylistDelay <= 0 {
		c.GreylistDelay = 15 * time.Second
	}
	if c.Dial == nil {
		c.Dial = net.DialTimeout
	}
	return c
}

// Pool is a probe.SessionProvider keeping idle SMTP sessions per exchanger.
// Sessions are keyed by destination host and the EHLO domain they were
// opened with, and reused via RSET.
type Pool struct {
	cfg    Config
	mu     sync.Mutex
	idle   map[string][]*session
	closed bool
}

var _ probe.SessionProvider = (*Pool)(nil)

// NewPool creates a session pool with the given configuration.
func NewPool(cfg Config) *Pool {
	return &Pool{
		cfg:  cfg.withDefaults(),
		idle: make(map[string][]*session),
	}
}

// WithSession runs fn with a live session against host, greeting the server
// as senderDomain on fresh connections. The session is released on every
// exit path before WithSession returns: healthy sessions go back to the
// pool, broken or errored ones are closed. fn's error is forwarded.
func (p *Pool) WithSession(ctx context.Context, host, senderDomain string, fn func(probe.Session) error) error {
	s, reused, err := p.get(ctx, host, senderDomain)
	if err != nil {
		return err
	}

	if reused {
		if resetErr := s.Reset(); resetErr != nil {
			// Stale idle connection; retry once with a fresh dial.
			_ = s.close()
			fresh, dialErr := p.dialSession(ctx, host, senderDomain)
			if dialErr != nil {
				return fmt.Errorf("reset pooled session: %w; redial: %w", resetErr, dialErr)
			}
			s = fresh
		}
	}

	return p.run(host, senderDomain, s, fn)
}

func (p *Pool) run(host, senderDomain string, s *session, fn func(probe.Session) error) error {
	s.uses++
	err := fn(s)
	if err != nil || s.failed {
		s.quit()
		_ = s.close()
		return err
	}
	p.put(key(host, senderDomain), s)
	return nil
}

// Close closes all idle sessions and rejects further use.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for k, sessions := range p.idle {
		for _, s := range sessions {
			s.quit()
			_ = s.close()
		}
		delete(p.idle, k)
	}
	return nil
}

func key(host, senderDomain string) string {
	return host + "|" + senderDomain
}

// get retrieves an idle session or dials a new one. The second return value
// reports whether the session was reused.
func (p *Pool) get(ctx context.Context, host, senderDomain string) (*session, bool, error) {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil, false, ErrPoolClosed
	}

	k := key(host, senderDomain)
	sessions := p.idle[k]

	// LIFO for better locality; discard sessions past their budget.
	for i := len(sessions) - 1; i >= 0; i-- {
		s := sessions[i]
		sessions = append(sessions[:i], sessions[i+1:]...)
		if s.uses >= p.cfg.MaxUsesPerSession || time.Since(s.createdAt) > p.cfg.MaxSessionAge {
			s.quit()
			_ = s.close()
			continue
		}
		p.idle[k] = sessions
		p.mu.Unlock()
		return s, true, nil
	}
	p.idle[k] = sessions
	p.mu.Unlock()

	s, err := p.dialSession(ctx, host, senderDomain)
	return s, false, err
}

// put returns a healthy session to the pool.
func (p *Pool) put(k string, s *session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || len(p.idle[k]) >= p.cfg.MaxSessionsPerHost {
		s.quit()
		_ = s.close()
		return
	}
	p.idle[k] = append(p.idle[k], s)
}

// dialSession opens a connection, reads the banner and greets the server.
func (p *Pool) dialSession(ctx context.Context, host, senderDomain string) (*session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	address := net.JoinHostPort(host, p.cfg.Port)
	netConn, err := p.cfg.Dial("tcp", address, p.cfg.ConnectTimeout)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", address, err)
	}

	s := &session{
		netConn:   netConn,
		reader:    bufio.NewReader(netConn),
		writer:    bufio.NewWriter(netConn),
		createdAt: time.Now(),
		timeout:   p.cfg.CommandTimeout,
	}

	code, msg, err := s.readReply()
	if err != nil {
		_ = s.close()
		return nil, fmt.Errorf("read banner from %s: %w", host, err)
	}
	if code >= 400 {
		_ = s.close()
		return nil, fmt.Errorf("%s rejected connection: %d %s", host, code, msg)
	}

	code, msg, err = s.Cmd("EHLO %s", senderDomain)
	if err != nil {
		_ = s.close()
		return nil, fmt.Errorf("EHLO against %s: %w", host, err)
	}
	if code >= 400 {
		// Fall back to HELO for servers without ESMTP.
		code, msg, err = s.Cmd("HELO %s", senderDomain)
		if err != nil {
			_ = s.close()
			return nil, fmt.Errorf("HELO against %s: %w", host, err)
		}
		if code >= 400 {
			_ = s.close()
			return nil, fmt.Errorf("%s rejected greeting: %d %s", host, code, msg)
		}
	}

	return s, nil
}

// session is a single pooled SMTP conversation. It implements probe.Session.
type session struct {
	netConn   net.Conn
	reader    *bufio.Reader
	writer    *bufio.Writer
	createdAt time.Time
	timeout   time.Duration
	uses      int
	failed    bool // transport trouble observed, do not reuse
}

var _ probe.Session = (*session)(nil)

// Cmd sends one command line and reads the server's reply.
func (s *session) Cmd(format string, args ...any) (int, string, error) {
	if err := s.netConn.SetDeadline(time.Now().Add(s.timeout)); err != nil {
		s.failed = true
		return 0, "", fmt.Errorf("set deadline: %w", err)
	}
	if _, err := fmt.Fprintf(s.writer, format+"\r\n", args...); err != nil {
		s.failed = true
		return 0, "", err
	}
	if err := s.writer.Flush(); err != nil {
		s.failed = true
		return 0, "", err
	}

	code, msg, err := s.readReply()
	if err != nil {
		s.failed = true
		return 0, "", err
	}
	return code, msg, nil
}

// Reset starts a fresh transaction on the session.
func (s *session) Reset() error {
	code, msg, err := s.Cmd("RSET")
	if err != nil {
		return fmt.Errorf("RSET: %w", err)
	}
	if code >= 400 {
		return fmt.Errorf("RSET rejected: %d %s", code, msg)
	}
	return nil
}

func (s *session) close() error {
	return s.netConn.Close()
}

// quit sends QUIT best-effort before the connection is discarded.
func (s *session) quit() {
	if s.failed {
		return
	}
	_ = s.netConn.SetDeadline(time.Now().Add(2 * time.Second))
	_, _ = s.writer.WriteString("QUIT\r\n")
	_ = s.writer.Flush()
}

// readReply reads a (possibly multi-line) SMTP reply.
func (s *session) readReply() (code int, full string, err error) {
	var lines []string
	for {
		line, readErr := s.reader.ReadString('\n')
		if readErr != nil {
			return 0, "", fmt.Errorf("read SMTP reply: %w", readErr)
		}
		line = strings.TrimRight(line, "\r\n")
		if len(line) < 3 {
			return 0, "", errors.New("SMTP reply line too short")
		}
		lines = append(lines, line)
		// The 4th character is '-' on every line but the last.
		if len(line) < 4 || line[3] != '-' {
			break
		}
	}

	last := lines[len(lines)-1]
	if _, err := fmt.Sscanf(last[:3], "%d", &code); err != nil {
		return 0, "", fmt.Errorf("invalid SMTP reply code %q: %w", last[:3], err)
	}
	return code, strings.Join(lines, " | "), nil
}
