package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFake_AdvanceMovesNow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	require.Equal(t, start, f.Now())

	f.Advance(2 * time.Second)
	require.Equal(t, start.Add(2*time.Second), f.Now())
}

func TestFake_AfterAdvancesAndFiresImmediately(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	ch := f.After(5 * time.Second)
	fired := <-ch
	require.Equal(t, start.Add(5*time.Second), fired)
	require.Equal(t, start.Add(5*time.Second), f.Now())
}

func TestFake_SleepAdvancesNow(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)
	f.Sleep(1 * time.Minute)
	require.Equal(t, start.Add(1*time.Minute), f.Now())
}

func TestFake_IntnRangeIsDeterministic(t *testing.T) {
	f := NewFake(time.Now())
	require.Equal(t, 3, f.IntnRange(3, 10))
}

func TestReal_IntnRange_DegenerateRangeReturnsMin(t *testing.T) {
	r := NewReal()
	require.Equal(t, 5, r.IntnRange(5, 5))
	require.Equal(t, 5, r.IntnRange(5, 3))
}

func TestReal_IntnRange_WithinBounds(t *testing.T) {
	r := NewReal()
	for i := 0; i < 50; i++ {
		v := r.IntnRange(10, 20)
		require.GreaterOrEqual(t, v, 10)
		require.Less(t, v, 20)
	}
}
