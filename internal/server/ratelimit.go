package server

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/ragdemo-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained /ask rate per client in questions
	// per second when RATE_LIMIT is unset.
	defaultRateLimit = 10
	// defaultRateBurst is the number of back-to-back questions a client may
	// send when RATE_BURST is unset.
	defaultRateBurst = 20

	// clientIdleTTL is how long a client's bucket survives without traffic.
	clientIdleTTL = 5 * time.Minute
	// sweepInterval is how often idle buckets are dropped.
	sweepInterval = time.Minute
)

// clientBucket is one client's token bucket.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// askThrottle limits how often each client address may call /ask.
// The zero value is not usable; construct with newAskThrottle.
type askThrottle struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket

	limit rate.Limit
	burst int

	// now is the clock, replaced in tests.
	now func() time.Time
	// rejected is called once per refused request.
	rejected func()
}

// newAskThrottle returns a throttle allowing limit questions per second with
// the given burst. rejected may be nil.
func newAskThrottle(limit float64, burst int, rejected func()) *askThrottle {
	if rejected == nil {
		rejected = func() {}
	}
	return &askThrottle{
		buckets:  make(map[string]*clientBucket),
		limit:    rate.Limit(limit),
		burst:    burst,
		now:      time.Now,
		rejected: rejected,
	}
}

// reserve takes a token for client. It returns zero when the request may
// proceed, otherwise how long the client has to wait.
func (t *askThrottle) reserve(client string) time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	b, ok := t.buckets[client]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[client] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return time.Duration(math.MaxInt64)
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return wait
	}
	return 0
}

// sweep drops buckets idle for longer than clientIdleTTL and returns how
// many were removed.
func (t *askThrottle) sweep() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-clientIdleTTL)
	removed := 0
	for client, b := range t.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(t.buckets, client)
			removed++
		}
	}
	return removed
}

// run sweeps idle buckets until ctx is done.
func (t *askThrottle) run(ctx context.Context, log *slog.Logger) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.sweep(); n > 0 {
				log.Debug("ratelimit: dropped idle clients", slog.Int("count", n))
			}
		}
	}
}

// middleware answers 429 with a Retry-After header, rounded up to whole
// seconds, when the client has no token left.
func (t *askThrottle) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		wait := t.reserve(client)
		if wait == 0 {
			next.ServeHTTP(w, r)
			return
		}

		t.rejected()
		logging.FromContext(r.Context()).Warn("ratelimit: question refused",
			slog.String("client", client),
			slog.Duration("retry_after", wait),
		)
		w.Header().Set("Retry-After", retryAfter(wait))
		writeError(r.Context(), w, http.StatusTooManyRequests, "rate limit exceeded")
	})
}

// retryAfter formats wait as a Retry-After value of at least one second.
func retryAfter(wait time.Duration) string {
	secs := int64(math.Ceil(wait.Seconds()))
	if secs < 1 || wait == time.Duration(math.MaxInt64) {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// clientIP returns the host part of RemoteAddr. X-Forwarded-For is ignored;
// the server binds to localhost by default.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
