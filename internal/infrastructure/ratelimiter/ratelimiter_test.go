package ratelimiter

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowConsumesBurst(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1, MaxBurst: 3})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("client"), "request %d within burst", i+1)
	}
	assert.False(t, rl.Allow("client"), "burst exhausted")
}

func TestRefillAfterElapsedTime(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1000, MaxBurst: 2})

	assert.True(t, rl.Allow("client"))
	assert.True(t, rl.Allow("client"))
	assert.False(t, rl.Allow("client"))

	// At 1000 tokens/s a few milliseconds is enough to refill.
	time.Sleep(10 * time.Millisecond)
	assert.True(t, rl.Allow("client"))
}

func TestRemainingNeverExceedsBurst(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1000, MaxBurst: 5})

	assert.Equal(t, 5, rl.Remaining("client"))
	require.True(t, rl.Allow("client"))

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 5, rl.Remaining("client"), "refill caps at max burst")
}

func TestSourcesAreIndependent(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1, MaxBurst: 1})

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"))
}

func TestGetSourceKey(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 1, SourceHeaderKey: "X-Client-ID"})

	r := httptest.NewRequest("GET", "/", nil)
	r.RemoteAddr = "10.0.0.1:1234"
	assert.Equal(t, "10.0.0.1:1234", rl.GetSourceKey(r))

	r.Header.Set("X-Client-ID", "client-7")
	assert.Equal(t, "client-7", rl.GetSourceKey(r))
}

func TestDefaultBurstFallsBackToRate(t *testing.T) {
	rl := New(Options{MaxRatePerSecond: 9})
	assert.Equal(t, 9, rl.GetMaxBurst())
}
