package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_AfterFunc(t *testing.T) {
	clock := RealClock{}
	fired := make(chan struct{})
	timer := clock.AfterFunc(10*time.Millisecond, func() { close(fired) })
	defer timer.Stop()

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Error("AfterFunc did not fire")
	}
}

func TestMockClock_AdvanceFiresInOrder(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	var order []int
	var seen []time.Time
	clock.AfterFunc(30*time.Millisecond, func() {
		order = append(order, 3)
		seen = append(seen, clock.Now())
	})
	clock.AfterFunc(10*time.Millisecond, func() {
		order = append(order, 1)
		seen = append(seen, clock.Now())
	})
	clock.AfterFunc(20*time.Millisecond, func() {
		order = append(order, 2)
		seen = append(seen, clock.Now())
	})

	clock.Advance(25 * time.Millisecond)
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("fired %v, want [1 2]", order)
	}
	if !seen[0].Equal(start.Add(10 * time.Millisecond)) {
		t.Errorf("first callback saw %v, want deadline instant", seen[0])
	}
	if got := clock.Now(); !got.Equal(start.Add(25 * time.Millisecond)) {
		t.Errorf("Now() = %v after Advance", got)
	}

	clock.Advance(5 * time.Millisecond)
	if len(order) != 3 {
		t.Fatalf("fired %v, want third timer at its deadline", order)
	}
}

func TestMockClock_RescheduleWithinWindow(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))

	count := 0
	var tick func()
	tick = func() {
		count++
		if count < 5 {
			clock.AfterFunc(10*time.Millisecond, tick)
		}
	}
	clock.AfterFunc(10*time.Millisecond, tick)

	clock.Advance(time.Second)
	if count != 5 {
		t.Errorf("count = %d, want 5", count)
	}
	if clock.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", clock.Pending())
	}
}

func TestMockTimer_Stop(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	fired := false
	timer := clock.AfterFunc(time.Millisecond, func() { fired = true })

	if !timer.Stop() {
		t.Error("first Stop() should report pending timer")
	}
	if timer.Stop() {
		t.Error("second Stop() should be a no-op")
	}

	clock.Advance(time.Second)
	if fired {
		t.Error("stopped timer fired")
	}
}
