package clock

import (
	"sync"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	result := Real.Now()
	after := time.Now()

	if result.Before(before) || result.After(after) {
		t.Errorf("Now() returned %v, expected between %v and %v", result, before, after)
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(start)

	mock.Advance(time.Hour)

	if got, want := mock.Now(), start.Add(time.Hour); !got.Equal(want) {
		t.Errorf("After Advance, Now() = %v, expected %v", got, want)
	}
	if got := mock.Since(start); got != time.Hour {
		t.Errorf("Since() = %v, expected 1h", got)
	}
}

func TestMockClock_Set(t *testing.T) {
	mock := NewMockClock(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))

	newTime := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	mock.Set(newTime)

	if result := mock.Now(); !result.Equal(newTime) {
		t.Errorf("After Set, Now() = %v, expected %v", result, newTime)
	}
}

func TestMockClock_Concurrent(t *testing.T) {
	mock := NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			mock.Advance(time.Second)
		}()
		go func() {
			defer wg.Done()
			_ = mock.Now()
		}()
	}
	wg.Wait()

	if got := mock.Since(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)); got != 10*time.Second {
		t.Errorf("Since() = %v, expected 10s", got)
	}
}

func TestOr(t *testing.T) {
	if Or(nil) != Real {
		t.Error("Or(nil) should return Real")
	}
	mock := NewMockClock(time.Time{})
	if Or(mock) != Clock(mock) {
		t.Error("Or(mock) should return mock")
	}
}
