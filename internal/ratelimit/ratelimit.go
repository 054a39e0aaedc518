// Package ratelimit decides whether a client may make another request.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one Allow call. RetryAfter is set when the
// request was rejected.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// Limiter is satisfied by the in-process and Redis-backed limiters.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

const defaultBucketTTL = 5 * time.Minute

type bucket struct {
	lim *rate.Limiter
	ts  time.Time
}

// Local is a token bucket per key held in process memory.
type Local struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewLocal allows burst requests at once and refills perSecond tokens per second.
func NewLocal(burst, perSecond int) *Local {
	if burst < 1 {
		burst = 1
	}
	if perSecond < 1 {
		perSecond = 1
	}
	return &Local{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		ttl:     defaultBucketTTL,
		now:     time.Now,
	}
}

func (l *Local) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.buckets[key] = b
	}
	b.ts = now
	l.mu.Unlock()

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return Decision{Allowed: false, RetryAfter: time.Second}, nil
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{Allowed: false, RetryAfter: delay}, nil
	}
	return Decision{Allowed: true}, nil
}

// Sweep drops buckets idle for longer than the bucket TTL.
func (l *Local) Sweep() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, b := range l.buckets {
		if now.Sub(b.ts) > l.ttl {
			delete(l.buckets, k)
		}
	}
}

// Run sweeps every interval until ctx is done.
func (l *Local) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

func (l *Local) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}
