// Package shaper is an in-process enforcement backend for hosts where the
// guardian is embedded inside a Go service and tc is unavailable: instead of
// a kernel qdisc, the cap is a token bucket that the embedding service
// consumes through WaitN or a wrapped net.Conn.
package shaper

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/time/rate"

	"github.com/qqncnc/VPS-Traffic-Guardian/internal/ports"
)

// minBurst keeps small caps usable; a burst below one MTU would stall
// full-sized segment writes forever.
const minBurst = 64 << 10

// Shaper implements ports.Enforcer with a dynamically retuned rate.Limiter.
// The limiter meters bytes, so installed bit-per-second caps are divided by
// eight.
type Shaper struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	cappedBPS  float64
	maxConns   int
	onShutdown func(reason string) error
}

// New builds an uncapped shaper. onShutdown is invoked when the evaluator
// orders a host shutdown; embedders typically cancel their root context
// there. A nil hook makes shutdown enforcement fail, which the actuator
// escalates.
func New(onShutdown func(reason string) error) *Shaper {
	return &Shaper{
		limiter:    rate.NewLimiter(rate.Inf, minBurst),
		onShutdown: onShutdown,
	}
}

func (s *Shaper) InstallRateCap(ctx context.Context, bps float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bytesPerSec := bps / 8
	burst := int(bytesPerSec)
	if burst < minBurst {
		burst = minBurst
	}
	s.limiter.SetLimit(rate.Limit(bytesPerSec))
	s.limiter.SetBurst(burst)
	s.cappedBPS = bps
	return nil
}

func (s *Shaper) RemoveRateCap(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.limiter.SetLimit(rate.Inf)
	s.cappedBPS = 0
	return nil
}

func (s *Shaper) InstallConnLimit(ctx context.Context, maxConns int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxConns = maxConns
	return nil
}

func (s *Shaper) ShutdownHost(ctx context.Context, reason string) error {
	if s.onShutdown == nil {
		return fmt.Errorf("shaper: no shutdown hook installed")
	}
	return s.onShutdown(reason)
}

// CappedBPS returns the currently installed cap, 0 when uncapped.
func (s *Shaper) CappedBPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cappedBPS
}

// MaxConns returns the connection limit for embedding accept loops to
// enforce; 0 means unlimited.
func (s *Shaper) MaxConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxConns
}

// WaitN blocks until n bytes of quota are available. Requests larger than
// the current burst are split so they cannot deadlock against the bucket.
func (s *Shaper) WaitN(ctx context.Context, n int) error {
	for n > 0 {
		s.mu.Lock()
		chunk := s.limiter.Burst()
		s.mu.Unlock()
		if chunk > n {
			chunk = n
		}
		if err := s.limiter.WaitN(ctx, chunk); err != nil {
			return err
		}
		n -= chunk
	}
	return nil
}

// WrapConn returns a net.Conn whose reads and writes consume shaper quota,
// so all wrapped traffic together obeys the installed cap.
func (s *Shaper) WrapConn(c net.Conn) net.Conn {
	return &conn{Conn: c, shaper: s}
}

type conn struct {
	net.Conn
	shaper *Shaper
}

func (c *conn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	if n > 0 {
		if werr := c.shaper.WaitN(context.Background(), n); werr != nil && err == nil {
			err = werr
		}
	}
	return n, err
}

func (c *conn) Write(b []byte) (int, error) {
	if err := c.shaper.WaitN(context.Background(), len(b)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

var _ ports.Enforcer = (*Shaper)(nil)
