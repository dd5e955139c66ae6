package clock

import (
	"testing"
	"time"
)

func TestClock_Now_DefaultsToSystemClock(t *testing.T) {
	c := New()
	before := time.Now()
	got := c.Now()
	after := time.Now()

	if got.Before(before) || got.After(after) {
		t.Errorf("Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestClock_SetNowFunc_Override(t *testing.T) {
	c := New()
	fixed := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	c.SetNowFunc(func() time.Time { return fixed })

	if got := c.Now(); !got.Equal(fixed) {
		t.Errorf("Now() = %v, want %v", got, fixed)
	}
}
