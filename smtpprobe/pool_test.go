package smtpprobe_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailprobe/mailprobe/probe"
	"github.com/mailprobe/mailprobe/smtpprobe"
)

// scriptedServer simulates a mail exchanger on one end of a net.Pipe.
func scriptedServer(server net.Conn, banner string, responses map[string]string) {
	defer func() { _ = server.Close() }()

	_, _ = fmt.Fprintf(server, "%s\r\n", banner)

	buf := make([]byte, 4096)
	for {
		n, err := server.Read(buf)
		if err != nil {
			return
		}
		cmd := string(buf[:n])

		for prefix, resp := range responses {
			if len(cmd) >= len(prefix) && cmd[:len(prefix)] == prefix {
				_, _ = fmt.Fprintf(server, "%s\r\n", resp)
				break
			}
		}

		if len(cmd) >= 4 && cmd[:4] == "QUIT" {
			_, _ = fmt.Fprintf(server, "221 Bye\r\n")
			return
		}
	}
}

func pipeDialer(dialCount *int, banner string, responses map[string]string) func(string, string, time.Duration) (net.Conn, error) {
	return func(network, address string, timeout time.Duration) (net.Conn, error) {
		if dialCount != nil {
			*dialCount++
		}
		client, server := net.Pipe()
		go scriptedServer(server, banner, responses)
		return client, nil
	}
}

var okResponses = map[string]string{
	"EHLO": "250 OK",
	"RSET": "250 OK",
	"NOOP": "250 OK",
}

func TestPool_FreshSessionThenReuse(t *testing.T) {
	dialCount := 0
	pool := smtpprobe.NewPool(smtpprobe.Config{
		Dial: pipeDialer(&dialCount, "220 mock.smtp ESMTP", okResponses),
	})
	defer func() { _ = pool.Close() }()
	ctx := context.Background()

	err := pool.WithSession(ctx, "mx.example.com", "probe.test", func(s probe.Session) error {
		code, _, err := s.Cmd("NOOP")
		require.NoError(t, err)
		assert.Equal(t, 250, code)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dialCount)

	// Healthy session goes back to the pool and is reused via RSET.
	err = pool.WithSession(ctx, "mx.example.com", "probe.test", func(s probe.Session) error {
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, dialCount)
}

func TestPool_SessionsKeyedBySenderDomain(t *testing.T) {
	dialCount := 0
	pool := smtpprobe.NewPool(smtpprobe.Config{
		Dial: pipeDialer(&dialCount, "220 mock.smtp ESMTP", okResponses),
	})
	defer func() { _ = pool.Close() }()
	ctx := context.Background()

	noop := func(s probe.Session) error { return nil }
	require.NoError(t, pool.WithSession(ctx, "mx.example.com", "a.test", noop))
	require.NoError(t, pool.WithSession(ctx, "mx.example.com", "b.test", noop))

	// Different EHLO domains must not share a greeted connection.
	assert.Equal(t, 2, dialCount)
}

func TestPool_ErrorDiscardsSession(t *testing.T) {
	dialCount := 0
	pool := smtpprobe.NewPool(smtpprobe.Config{
		Dial: pipeDialer(&dialCount, "220 mock.smtp ESMTP", okResponses),
	})
	defer func() { _ = pool.Close() }()
	ctx := context.Background()

	attemptErr := errors.New("attempt failed")
	err := pool.WithSession(ctx, "mx.example.com", "probe.test", func(s probe.Session) error {
		return attemptErr
	})
	assert.ErrorIs(t, err, attemptErr)

	// The errored session was closed, so the next scope dials again.
	require.NoError(t, pool.WithSession(ctx, "mx.example.com", "probe.test", func(s probe.Session) error {
		return nil
	}))
	assert.Equal(t, 2, dialCount)
}

func TestPool_DialFailurePropagates(t *testing.T) {
	pool := smtpprobe.NewPool(smtpprobe.Config{
		Dial: func(network, address string, timeout time.Duration) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	})
	defer func() { _ = pool.Close() }()

	called := false
	err := pool.WithSession(context.Background(), "mx.example.com", "probe.test", func(s probe.Session) error {
		called = true
		return nil
	})
	assert.Error(t, err)
	assert.False(t, called)
}

func TestPool_BannerRejectionFails(t *testing.T) {
	pool := smtpprobe.NewPool(smtpprobe.Config{
		Dial: pipeDialer(nil, "554 go away", okResponses),
	})
	defer func() { _ = pool.Close() }()

	err := pool.WithSession(context.Background(), "mx.example.com", "probe.test", func(s probe.Session) error {
		return nil
	})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rejected connection")
}

func TestPool_HeloFallback(t *testing.T) {
	responses := map[string]string{
		"EHLO": "500 unrecognized",
		"HELO": "250 mock.smtp",
		"NOOP": "250 OK",
	}
	pool := smtpprobe.NewPool(smtpprobe.Config{
		Dial: pipeDialer(nil, "220 mock.smtp", responses),
	})
	defer func() { _ = pool.Close() }()

	err := pool.WithSession(context.Background(), "mx.example.com", "probe.test", func(s probe.Session) error {
		code, _, err := s.Cmd("NOOP")
		assert.Equal(t, 250, code)
		return err
	})
	assert.NoError(t, err)
}

func TestPool_ClosedPoolRejectsSessions(t *testing.T) {
	pool := smtpprobe.NewPool(smtpprobe.Config{
		Dial: pipeDialer(nil, "220 mock.smtp ESMTP", okResponses),
	})
	require.NoError(t, pool.Close())

	err := pool.WithSession(context.Background(), "mx.example.com", "probe.test", func(s probe.Session) error {
		return nil
	})
	assert.ErrorIs(t, err, smtpprobe.ErrPoolClosed)
}

func TestPool_CancelledContext(t *testing.T) {
	pool := smtpprobe.NewPool(smtpprobe.Config{
		Dial: pipeDialer(nil, "220 mock.smtp ESMTP", okResponses),
	})
	defer func() { _ = pool.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := pool.WithSession(ctx, "mx.example.com", "probe.test", func(s probe.Session) error {
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPool_MultilineReply(t *testing.T) {
	responses := map[string]string{
		"EHLO": "250-mock.smtp\r\n250-PIPELINING\r\n250 SIZE 10240000",
		"NOOP": "250 OK",
	}
	pool := smtpprobe.NewPool(smtpprobe.Config{
		Dial: pipeDialer(nil, "220 mock.smtp ESMTP", responses),
	})
	defer func() { _ = pool.Close() }()

	err := pool.WithSession(context.Background(), "mx.example.com", "probe.test", func(s probe.Session) error {
		code, _, err := s.Cmd("NOOP")
		assert.Equal(t, 250, code)
		return err
	})
	assert.NoError(t, err)
}

func TestPool_ResetAndRedialFailureReportsBoth(t *testing.T) {
	resetRejecting := map[string]string{
		"EHLO": "250 OK",
		"RSET": "421 shutting down",
	}
	dialFailure := errors.New("network is unreachable")
	dials := 0
	pool := smtpprobe.NewPool(smtpprobe.Config{
		Dial: func(network, address string, timeout time.Duration) (net.Conn, error) {
			dials++
			if dials > 1 {
				return nil, dialFailure
			}
			client, server := net.Pipe()
			go scriptedServer(server, "220 mock.smtp ESMTP", resetRejecting)
			return client, nil
		},
	})
	defer func() { _ = pool.Close() }()
	ctx := context.Background()

	require.NoError(t, pool.WithSession(ctx, "mx.example.com", "probe.test", func(s probe.Session) error {
		return nil
	}))

	// The pooled session refuses RSET and the replacement dial fails too;
	// both causes must reach the caller.
	err := pool.WithSession(ctx, "mx.example.com", "probe.test", func(s probe.Session) error {
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, dialFailure)
	assert.Contains(t, err.Error(), "reset pooled session")
}

func TestPool_UseBudgetCountsCheckoutsNotCommands(t *testing.T) {
	dialCount := 0
	pool := smtpprobe.NewPool(smtpprobe.Config{
		MaxUsesPerSession: 2,
		Dial:              pipeDialer(&dialCount, "220 mock.smtp ESMTP", okResponses),
	})
	defer func() { _ = pool.Close() }()
	ctx := context.Background()

	twoNoops := func(s probe.Session) error {
		for i := 0; i < 2; i++ {
			if _, _, err := s.Cmd("NOOP"); err != nil {
				return err
			}
		}
		return nil
	}

	// Several commands per checkout; only checkouts count against the budget.
	require.NoError(t, pool.WithSession(ctx, "mx.example.com", "probe.test", twoNoops))
	require.NoError(t, pool.WithSession(ctx, "mx.example.com", "probe.test", twoNoops))
	assert.Equal(t, 1, dialCount)

	// The session has spent its two checkouts; the next one dials fresh.
	require.NoError(t, pool.WithSession(ctx, "mx.example.com", "probe.test", twoNoops))
	assert.Equal(t, 2, dialCount)
}
