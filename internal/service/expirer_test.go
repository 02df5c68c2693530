package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type evictorFunc func(cutoff time.Time) int

func (f evictorFunc) EvictFinished(cutoff time.Time) int { return f(cutoff) }

func TestExpirerService_RunUsesRetention(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var got time.Time
	e := NewExpirerService(evictorFunc(func(cutoff time.Time) int {
		got = cutoff
		return 3
	}), zap.NewNop())
	e.now = func() time.Time { return now }
	e.SetRetention(30 * time.Minute)

	assert.Equal(t, 3, e.run(context.Background()))
	assert.Equal(t, now.Add(-30*time.Minute), got)
}

func TestExpirerService_IgnoresNonPositiveDurations(t *testing.T) {
	e := NewExpirerService(evictorFunc(func(time.Time) int { return 0 }), zap.NewNop())
	e.SetInterval(0)
	e.SetRetention(-time.Second)
	assert.Equal(t, defaultExpirerInterval, e.interval)
	assert.Equal(t, defaultRetention, e.retention)
}

func TestExpirerService_CancelledContext(t *testing.T) {
	called := false
	e := NewExpirerService(evictorFunc(func(time.Time) int {
		called = true
		return 1
	}), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Zero(t, e.run(ctx))
	assert.False(t, called)
}

func TestExpirerService_StartStop(t *testing.T) {
	calls := make(chan time.Time, 8)
	e := NewExpirerService(evictorFunc(func(cutoff time.Time) int {
		select {
		case calls <- cutoff:
		default:
		}
		return 0
	}), zap.NewNop())
	e.SetInterval(5 * time.Millisecond)
	e.Start()

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("expirer did not run")
	}
	e.Stop()
}
