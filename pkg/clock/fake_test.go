package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestFake_FiresInDeadlineOrder(t *testing.T) {
	c := NewFake(epoch)
	var got []string
	c.AfterFunc(2*time.Second, func() { got = append(got, "b") })
	c.AfterFunc(1*time.Second, func() { got = append(got, "a") })
	c.AfterFunc(5*time.Second, func() { got = append(got, "c") })

	c.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, epoch.Add(3*time.Second), c.Now())
	assert.Equal(t, 1, c.Pending())
}

func TestFake_RearmedTimersInterleaveWithLaterDeadlines(t *testing.T) {
	c := NewFake(epoch)
	var got []time.Duration
	var tick func()
	tick = func() {
		got = append(got, c.Now().Sub(epoch))
		c.AfterFunc(3*time.Second, tick)
	}
	c.AfterFunc(3*time.Second, tick)
	timedOut := time.Duration(0)
	c.AfterFunc(10*time.Second, func() { timedOut = c.Now().Sub(epoch) })

	c.Advance(10 * time.Second)
	assert.Equal(t, []time.Duration{3 * time.Second, 6 * time.Second, 9 * time.Second}, got)
	assert.Equal(t, 10*time.Second, timedOut)
}

func TestFake_TiesFireInSchedulingOrder(t *testing.T) {
	c := NewFake(epoch)
	var got []int
	for i := 0; i < 4; i++ {
		i := i
		c.AfterFunc(time.Second, func() { got = append(got, i) })
	}
	c.Advance(time.Second)
	assert.Equal(t, []int{0, 1, 2, 3}, got)
}

func TestFake_Stop(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	tm := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	c.Advance(time.Minute)
	assert.False(t, fired)
	assert.Zero(t, c.Pending())
}

func TestFake_StopAfterFire(t *testing.T) {
	c := NewFake(epoch)
	tm := c.AfterFunc(time.Second, func() {})
	c.Advance(time.Second)
	assert.False(t, tm.Stop())
}

func TestFake_ZeroDelayFiresOnAdvanceZero(t *testing.T) {
	c := NewFake(epoch)
	fired := false
	c.AfterFunc(0, func() { fired = true })
	assert.False(t, fired)
	c.Advance(0)
	assert.True(t, fired)
}
