package debounce

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRapidSchedulesCoalesce(t *testing.T) {
	d := New()
	var calls, last atomic.Int32

	for i := 1; i <= 5; i++ {
		n := int32(i)
		d.Schedule(func() {
			calls.Add(1)
			last.Store(n)
		}, 40*time.Millisecond)
		time.Sleep(5 * time.Millisecond)
	}
	if !d.Pending() {
		t.Fatal("expected a pending invocation")
	}

	time.Sleep(150 * time.Millisecond)
	if calls.Load() != 1 {
		t.Fatalf("want exactly one call, got %d", calls.Load())
	}
	if last.Load() != 5 {
		t.Fatalf("want the last scheduled fn to run, got %d", last.Load())
	}
	if d.Pending() {
		t.Fatal("nothing should be pending after firing")
	}
}

func TestFiresAfterQuiescence(t *testing.T) {
	d := New()
	fired := make(chan time.Time, 1)
	start := time.Now()
	d.Schedule(func() { fired <- time.Now() }, 30*time.Millisecond)

	select {
	case at := <-fired:
		if at.Sub(start) < 30*time.Millisecond {
			t.Fatalf("fired too early after %v", at.Sub(start))
		}
	case <-time.After(time.Second):
		t.Fatal("debounced fn never ran")
	}
}

func TestCancelAndStop(t *testing.T) {
	d := New()
	var calls atomic.Int32

	d.Schedule(func() { calls.Add(1) }, 20*time.Millisecond)
	d.Cancel()
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatal("cancelled fn must not run")
	}

	d.Schedule(func() { calls.Add(1) }, 20*time.Millisecond)
	d.Stop()
	d.Schedule(func() { calls.Add(1) }, 20*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 0 {
		t.Fatalf("stopped debouncer ran %d times", calls.Load())
	}
}
