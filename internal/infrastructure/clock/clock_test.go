package clock_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zyfty/zyftyd/internal/infrastructure/clock"
)

func TestFakeClock(t *testing.T) {
	start := time.Unix(1700000000, 0)
	fake := clock.Fake(start)
	require.Equal(t, start, fake.Now())

	fake.Advance(6 * time.Second)
	require.Equal(t, start.Add(6*time.Second), fake.Now())

	fake.Advance(-time.Hour)
	require.Equal(t, start.Add(6*time.Second), fake.Now())

	fake.Set(start)
	require.Equal(t, start, fake.Now())
}

func TestRealClock(t *testing.T) {
	before := time.Now()
	now := clock.New().Now()
	require.False(t, now.Before(before))
}
