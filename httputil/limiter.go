package httputil

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// HostLimiter spaces requests per host: a token bucket of one request per
// delay, plus a random jitter on top of every wait.
type HostLimiter struct {
	delay  time.Duration
	jitter time.Duration

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewHostLimiter(delay, jitter time.Duration) *HostLimiter {
	return &HostLimiter{
		delay:    delay,
		jitter:   jitter,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Wait blocks until a request to host is allowed or ctx is done.
func (l *HostLimiter) Wait(ctx context.Context, host string) error {
	if l == nil || host == "" {
		return nil
	}

	if limiter := l.limiter(strings.ToLower(host)); limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
	}

	if l.jitter <= 0 {
		return nil
	}
	timer := time.NewTimer(time.Duration(rand.Int63n(int64(l.jitter))))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *HostLimiter) limiter(host string) *rate.Limiter {
	if l.delay <= 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(l.delay), 1)
		l.limiters[host] = limiter
	}
	return limiter
}
