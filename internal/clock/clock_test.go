package clock

import (
	"testing"
	"time"
)

func TestFake_AdvanceFiresInOrder(t *testing.T) {
	c := NewFake()

	var order []string
	c.AfterFunc(2*time.Second, func() { order = append(order, "second") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "first") })

	c.Advance(500 * time.Millisecond)
	if len(order) != 0 {
		t.Fatalf("nothing should fire yet, got %v", order)
	}

	c.Advance(2 * time.Second)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("fire order = %v, want [first second]", order)
	}
}

func TestFake_Stop(t *testing.T) {
	c := NewFake()

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	if !timer.Stop() {
		t.Error("Stop before firing should return true")
	}
	c.Advance(2 * time.Second)

	if fired {
		t.Error("stopped timer must not fire")
	}
	if timer.Stop() {
		t.Error("second Stop should return false")
	}
	if c.PendingCount() != 0 {
		t.Errorf("pending = %d, want 0", c.PendingCount())
	}
}

func TestFake_NowAdvances(t *testing.T) {
	c := NewFake()
	start := c.Now()
	c.Advance(3 * time.Minute)
	if got := c.Now().Sub(start); got != 3*time.Minute {
		t.Errorf("elapsed = %v, want 3m", got)
	}
}
