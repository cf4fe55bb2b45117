package server

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/thruflo/goalboard/internal/logging"
)

// RateLimitConfig bounds login attempts per client IP.
type RateLimitConfig struct {
	MaxAttempts int           // Attempts allowed per window
	Window      time.Duration // Sliding window length
	BlockAfter  int           // Consecutive failures before a block
	BlockTime   time.Duration // First block length, doubled for each further block
}

// DefaultRateLimitConfig returns the login limits used by the dashboard.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts: 5,
		Window:      time.Minute,
		BlockAfter:  10,
		BlockTime:   5 * time.Minute,
	}
}

// maxBlockTime caps exponential blocking.
const maxBlockTime = 24 * time.Hour

// loginLimiter is a sliding window limiter that blocks IPs with
// exponentially growing penalties after repeated failures.
type loginLimiter struct {
	cfg RateLimitConfig
	now func() time.Time
	log *logging.Logger

	mu       sync.Mutex
	attempts map[string][]time.Time
	failures map[string]int
	blocked  map[string]time.Time // ip -> block expiry
}

func newLoginLimiter(cfg RateLimitConfig, log *logging.Logger) *loginLimiter {
	def := DefaultRateLimitConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.BlockAfter <= 0 {
		cfg.BlockAfter = def.BlockAfter
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = def.BlockTime
	}
	if log == nil {
		log = logging.Default()
	}
	return &loginLimiter{
		cfg:      cfg,
		now:      time.Now,
		log:      log,
		attempts: make(map[string][]time.Time),
		failures: make(map[string]int),
		blocked:  make(map[string]time.Time),
	}
}

// decision is the outcome of a limiter check.
type decision struct {
	Allowed    bool
	Blocked    bool // rejected because of repeated failures, not volume
	RetryAfter time.Duration
	Reason     string
}

// allow records an attempt from ip if it is permitted.
func (l *loginLimiter) allow(ip string) decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if until, ok := l.blocked[ip]; ok {
		if now.Before(until) {
			return decision{Blocked: true, RetryAfter: until.Sub(now), Reason: "too many failed attempts"}
		}
		delete(l.blocked, ip)
	}

	recent := l.pruneLocked(ip, now)
	if len(recent) >= l.cfg.MaxAttempts {
		retry := recent[0].Add(l.cfg.Window).Sub(now)
		if retry <= 0 {
			retry = time.Second
		}
		return decision{RetryAfter: retry, Reason: "rate limit exceeded"}
	}

	l.attempts[ip] = append(recent, now)
	return decision{Allowed: true}
}

// pruneLocked drops attempts that fell out of the window.
func (l *loginLimiter) pruneLocked(ip string, now time.Time) []time.Time {
	start := now.Add(-l.cfg.Window)
	kept := l.attempts[ip][:0]
	for _, ts := range l.attempts[ip] {
		if ts.After(start) {
			kept = append(kept, ts)
		}
	}
	if len(kept) == 0 {
		delete(l.attempts, ip)
		return nil
	}
	l.attempts[ip] = kept
	return kept
}

// succeeded clears the failure history for ip.
func (l *loginLimiter) succeeded(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.failures, ip)
	delete(l.blocked, ip)
}

// failed counts a wrong password and blocks ip once the threshold is hit.
// Every further BlockAfter failures doubles the block.
func (l *loginLimiter) failed(ip string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures[ip]++
	n := l.failures[ip]
	if n < l.cfg.BlockAfter {
		return
	}

	blocks := (n - l.cfg.BlockAfter) / l.cfg.BlockAfter
	d := l.cfg.BlockTime
	for i := 0; i < blocks && d < maxBlockTime; i++ {
		d *= 2
	}
	if d > maxBlockTime {
		d = maxBlockTime
	}

	l.blocked[ip] = l.now().Add(d)
	l.log.Warn("login blocked", "ip", ip, "failures", n, "duration", d.String())
}

// sweep removes expired state. It is called periodically by the server.
func (l *loginLimiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for ip := range l.attempts {
		l.pruneLocked(ip, now)
	}
	for ip, until := range l.blocked {
		if !now.Before(until) {
			delete(l.blocked, ip)
		}
	}
	for ip := range l.failures {
		_, blocked := l.blocked[ip]
		_, active := l.attempts[ip]
		if !blocked && !active {
			delete(l.failures, ip)
		}
	}
}

// clientIP returns the caller's address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
