package handler

import (
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// LoginLimiter locks a username out after repeated failed logins.
type LoginLimiter struct {
	mu       sync.Mutex // serializes Fail so concurrent attempts all count
	failures *cache.Cache
	max      int
}

func NewLoginLimiter(maxFailures int, lockout time.Duration) *LoginLimiter {
	return &LoginLimiter{failures: cache.New(lockout, 2*lockout), max: maxFailures}
}

func limiterKey(username string) string {
	return "login_" + strings.ToLower(username)
}

// Locked reports whether username has used up its attempts.
func (l *LoginLimiter) Locked(username string) bool {
	if l.max <= 0 {
		return false
	}
	n, ok := l.failures.Get(limiterKey(username))
	return ok && n.(int) >= l.max
}

// Fail records a failed attempt. The lockout window restarts with each one.
func (l *LoginLimiter) Fail(username string) {
	key := limiterKey(username)
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 1
	if v, ok := l.failures.Get(key); ok {
		n += v.(int)
	}
	l.failures.SetDefault(key, n)
}

func (l *LoginLimiter) Reset(username string) {
	l.failures.Delete(limiterKey(username))
}
