// Package netcheck answers whether the device can currently reach the
// remote store. Answers are best-effort; a true result does not guarantee
// the next remote call succeeds.
package netcheck

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds a single probe.
const DefaultTimeout = 2 * time.Second

// Checker reports connectivity.
type Checker interface {
	IsConnected(ctx context.Context) bool
}

// Pinger is the part of remote.Store a PingChecker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker probes the remote store itself.
type PingChecker struct {
	Pinger  Pinger
	Timeout time.Duration
}

// NewPingChecker returns a checker that pings p. A zero timeout uses
// DefaultTimeout.
func NewPingChecker(p Pinger, timeout time.Duration) *PingChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &PingChecker{Pinger: p, Timeout: timeout}
}

// IsConnected implements Checker.
func (c *PingChecker) IsConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	return c.Pinger.Ping(ctx) == nil
}

// DialChecker opens and closes a TCP connection to Addr.
type DialChecker struct {
	Addr    string
	Timeout time.Duration

	dialer net.Dialer
}

// NewDialChecker returns a checker that dials addr (host:port).
func NewDialChecker(addr string, timeout time.Duration) *DialChecker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &DialChecker{Addr: addr, Timeout: timeout}
}

// IsConnected implements Checker.
func (c *DialChecker) IsConnected(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", c.Addr)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Static returns a fixed answer that can be flipped at runtime.
type Static struct {
	online atomic.Bool
}

// NewStatic returns a Static checker starting at online.
func NewStatic(online bool) *Static {
	s := &Static{}
	s.online.Store(online)
	return s
}

// Set changes the answer.
func (s *Static) Set(online bool) {
	s.online.Store(online)
}

// IsConnected implements Checker.
func (s *Static) IsConnected(context.Context) bool {
	return s.online.Load()
}
