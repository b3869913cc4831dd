package breaker

import (
	"testing"
	"time"

	"jobagg-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }

func newBreaker(clk *fakeClock) *Breaker {
	return New(Config{FailureThreshold: 2, SuccessThreshold: 2, HalfOpenMaxRequests: 1, ResetTimeout: time.Minute, Now: clk.Now})
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	b := newBreaker(clk)

	for i := 0; i < 2; i++ {
		require.NoError(t, b.Allow())
		b.Failure()
	}
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_HalfOpenProbeThenClose(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	b := newBreaker(clk)
	for i := 0; i < 2; i++ {
		_ = b.Allow()
		b.Failure()
	}

	clk.t = clk.t.Add(time.Minute)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrTooManyRequests)

	b.Success()
	require.NoError(t, b.Allow())
	b.Success()
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clk := &fakeClock{t: time.Unix(0, 0)}
	b := newBreaker(clk)
	for i := 0; i < 2; i++ {
		_ = b.Allow()
		b.Failure()
	}
	clk.t = clk.t.Add(2 * time.Minute)
	require.NoError(t, b.Allow())
	b.Failure()

	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := newBreaker(&fakeClock{t: time.Unix(0, 0)})
	_ = b.Allow()
	b.Failure()
	_ = b.Allow()
	b.Success()
	_ = b.Allow()
	b.Failure()

	assert.Equal(t, StateClosed, b.State())
}

func TestSet_RecordIgnoresCallerFaults(t *testing.T) {
	s := NewSet(Config{FailureThreshold: 1})

	require.NoError(t, s.Allow("pnet"))
	s.Record(domain.SourceResult{SourceID: "pnet", ErrorKind: domain.ErrKindCancelled})
	require.NoError(t, s.Allow("pnet"))
	s.Record(domain.SourceResult{SourceID: "pnet", ErrorKind: domain.ErrKindTimeout})

	assert.ErrorIs(t, s.Allow("pnet"), ErrCircuitOpen)
	assert.NoError(t, s.Allow("careerjunction"))
	assert.Equal(t, "open", s.Stats()["pnet"].State)
}

func TestSet_NilAllowsEverything(t *testing.T) {
	var s *Set
	assert.NoError(t, s.Allow("pnet"))
	s.Record(domain.SourceResult{SourceID: "pnet"})
	assert.Nil(t, s.Stats())
}
