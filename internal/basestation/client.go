package basestation

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"
)

// IngestFunc consumes one connection's byte stream until it ends or fails
type IngestFunc func(ctx context.Context, r io.Reader) error

// Client streams the BaseStation (port 30003) feed from dump1090, reconnecting with
// exponential backoff whenever the connection fails or the stream ends.
type Client struct {
	addr         string
	useTLS       bool
	maxRetries   int
	retryBackoff time.Duration
	maxBackoff   time.Duration
	dialTimeout  time.Duration
}

func NewClient(addr string, useTLS bool) *Client {
	return &Client{
		addr:         addr,
		useTLS:       useTLS,
		maxRetries:   -1, // -1 means infinite retries
		retryBackoff: 1 * time.Second,
		maxBackoff:   30 * time.Second,
		dialTimeout:  5 * time.Second,
	}
}

// connect establishes a TCP (optionally TLS) connection to the feed
func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout: c.dialTimeout,
	}

	var (
		conn net.Conn
		err  error
	)
	if c.useTLS {
		tlsDialer := &tls.Dialer{NetDialer: dialer}
		conn, err = tlsDialer.DialContext(ctx, "tcp", c.addr)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", c.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.addr, err)
	}
	return conn, nil
}

// Run feeds every connection to ingest until ctx is cancelled or the retry budget runs out
func (c *Client) Run(ctx context.Context, ingest IngestFunc) error {
	retryCount := 0
	backoff := c.retryBackoff

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		conn, err := c.connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			retryCount++
			if c.maxRetries > 0 && retryCount > c.maxRetries {
				return fmt.Errorf("max retries (%d) exceeded: %w", c.maxRetries, err)
			}
			slog.Warn("Failed to connect to BaseStation feed", "addr", c.addr, "retry", retryCount, "error", err)
			if err := sleep(ctx, backoff); err != nil {
				return err
			}
			// Exponential backoff: 1s, 2s, 4s, 8s, max 30s
			backoff *= 2
			if backoff > c.maxBackoff {
				backoff = c.maxBackoff
			}
			continue
		}

		retryCount = 0
		backoff = c.retryBackoff
		slog.Info("Connected to BaseStation feed", "addr", c.addr)

		err = c.stream(ctx, conn, ingest)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slog.Warn("BaseStation feed interrupted, reconnecting", "addr", c.addr, "error", err)
		if err := sleep(ctx, c.retryBackoff); err != nil {
			return err
		}
	}
}

// stream hands conn to ingest and closes it when ingest returns or ctx is cancelled
func (c *Client) stream(ctx context.Context, conn net.Conn, ingest IngestFunc) error {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer func() {
		stop()
		conn.Close()
	}()

	err := ingest(ctx, conn)
	if err == nil {
		err = errors.New("ingest returned")
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
