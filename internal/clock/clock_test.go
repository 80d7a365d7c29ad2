package clock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_AdvanceFiresWaiters(t *testing.T) {
	start := time.Date(2026, 1, 6, 9, 15, 0, 0, time.UTC)
	f := NewFake(start)

	ch := f.After(5 * time.Minute)
	assert.Equal(t, 1, f.Waiters())

	f.Advance(4 * time.Minute)
	select {
	case <-ch:
		t.Fatal("waiter fired too early")
	default:
	}

	f.Advance(time.Minute)
	select {
	case got := <-ch:
		assert.Equal(t, start.Add(5*time.Minute), got)
	default:
		t.Fatal("waiter did not fire")
	}
	assert.Equal(t, 0, f.Waiters())
}

func TestSleep_CancelledContext(t *testing.T) {
	f := NewFake(time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, f, time.Hour)
	require.ErrorIs(t, err, context.Canceled)
}

func TestSleep_ZeroDuration(t *testing.T) {
	err := Sleep(context.Background(), Real{}, 0)
	assert.NoError(t, err)
}
