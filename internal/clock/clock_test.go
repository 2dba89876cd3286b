package clock

import (
	"testing"
	"time"
)

func TestMockClock_SetAndAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewMockClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	c.Advance(90 * time.Second)
	if got, want := c.Now(), start.Add(90*time.Second); !got.Equal(want) {
		t.Errorf("after Advance, Now() = %v, want %v", got, want)
	}

	earlier := start.Add(-time.Hour)
	c.Set(earlier)
	if got := c.Now(); !got.Equal(earlier) {
		t.Errorf("after Set, Now() = %v, want %v", got, earlier)
	}
}

func TestRealClock_IsUTC(t *testing.T) {
	if loc := NewRealClock().Now().Location(); loc != time.UTC {
		t.Errorf("Location() = %v, want UTC", loc)
	}
}
