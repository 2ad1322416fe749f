package handler

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoginLimiter(t *testing.T) {
	l := NewLoginLimiter(3, time.Minute)
	for i := 0; i < 2; i++ {
		l.Fail("Ayla")
	}
	assert.False(t, l.Locked("ayla"))

	l.Fail("AYLA")
	assert.True(t, l.Locked("ayla"), "usernames are case-insensitive")
	assert.False(t, l.Locked("bren"))

	l.Reset("ayla")
	assert.False(t, l.Locked("ayla"))
}

func TestLoginLimiter_Disabled(t *testing.T) {
	l := NewLoginLimiter(0, time.Minute)
	for i := 0; i < 10; i++ {
		l.Fail("ayla")
	}
	assert.False(t, l.Locked("ayla"))
}

func TestLoginLimiter_Expires(t *testing.T) {
	l := NewLoginLimiter(1, 20*time.Millisecond)
	l.Fail("ayla")
	assert.True(t, l.Locked("ayla"))
	time.Sleep(40 * time.Millisecond)
	assert.False(t, l.Locked("ayla"))
}

func TestLoginLimiter_ConcurrentFailuresAllCount(t *testing.T) {
	l := NewLoginLimiter(64, time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 63; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l.Fail("ayla")
		}()
	}
	wg.Wait()
	assert.False(t, l.Locked("ayla"))

	l.Fail("ayla")
	assert.True(t, l.Locked("ayla"))
}
