package coalesce

import (
	"testing"
	"time"
)

func newTest(t *testing.T) *Coalescer[string] {
	t.Helper()
	c := New[string](2*time.Millisecond, 8)
	t.Cleanup(c.Stop)
	return c
}

func TestAddAndFlush(t *testing.T) {
	c := newTest(t)

	c.Add("a", "b")
	if c.Pending() != 2 {
		t.Fatalf("expected 2 pending, got %d", c.Pending())
	}

	got := c.Flush()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b], got %q", got)
	}

	if c.Pending() != 0 {
		t.Fatalf("expected 0 pending after flush, got %d", c.Pending())
	}
	if c.Flush() != nil {
		t.Fatal("expected nil from second flush")
	}
}

func TestDefaults(t *testing.T) {
	c := New[int](0, -1)
	defer c.Stop()
	if c.delay != DefaultDelay {
		t.Fatalf("delay = %v, want %v", c.delay, DefaultDelay)
	}
	if c.threshold != DefaultThreshold {
		t.Fatalf("threshold = %d, want %d", c.threshold, DefaultThreshold)
	}
}

func TestThreshold(t *testing.T) {
	c := newTest(t)

	for i := range 7 {
		if c.Add("x") {
			t.Fatalf("should not hit threshold at item %d", i+1)
		}
	}
	if !c.Add("x") {
		t.Fatal("should hit threshold")
	}
}

func TestTimerFires(t *testing.T) {
	c := newTest(t)

	c.Add("x")

	timer := c.Timer()
	if timer == nil {
		t.Fatal("timer should be non-nil after Add")
	}

	select {
	case <-timer:
		// expected
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timer should have fired within 100ms")
	}
}

func TestTimerNotResetOnSubsequentAdd(t *testing.T) {
	c := newTest(t)

	c.Add("first")
	t1 := time.Now()

	time.Sleep(1 * time.Millisecond) // 1ms into the 2ms deadline
	c.Add("second")

	// Timer should fire around 2ms from first add, not from second
	select {
	case <-c.Timer():
		elapsed := time.Since(t1)
		if elapsed > 10*time.Millisecond {
			t.Fatalf("timer took too long: %v (deadline not reset)", elapsed)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("timer should have fired")
	}
}

func TestFlushStopsTimer(t *testing.T) {
	c := newTest(t)

	c.Add("data")
	c.Flush()

	if c.Timer() != nil {
		t.Fatal("timer should be nil after flush")
	}
}

func TestFlushReturnsCopy(t *testing.T) {
	c := newTest(t)

	c.Add("first")
	batch1 := c.Flush()

	c.Add("second")
	batch2 := c.Flush()

	// batch1 should still be "first", not overwritten by the second batch
	if batch1[0] != "first" {
		t.Fatalf("first flush corrupted: got %q", batch1)
	}
	if batch2[0] != "second" {
		t.Fatalf("second flush wrong: got %q", batch2)
	}
}

func TestEmptyAdd(t *testing.T) {
	c := newTest(t)

	if c.Add() {
		t.Fatal("empty add should return false")
	}
	if c.Pending() != 0 {
		t.Fatal("pending should be 0 after empty add")
	}
	if c.Timer() != nil {
		t.Fatal("empty add should not arm the timer")
	}
}

func TestTimerNilWhenEmpty(t *testing.T) {
	c := newTest(t)

	if c.Timer() != nil {
		t.Fatal("timer should be nil when nothing is buffered")
	}
}

// --- Fuzz tests ---

// FuzzCoalescerOrder adds items in random-sized groups, flushing
// periodically, and verifies the concatenation of all flushed batches equals
// the sequence of added items. This catches loss, duplication or reordering
// in the Add/Flush cycle.
func FuzzCoalescerOrder(f *testing.F) {
	f.Add([]byte("hello world"), 3, 5)
	f.Add([]byte{}, 1, 1)
	f.Add([]byte("abcdefghij"), 2, 4)
	f.Fuzz(func(t *testing.T, data []byte, nGroups int, flushEvery int) {
		if nGroups < 0 {
			nGroups = -nGroups
		}
		nGroups = nGroups%20 + 1
		if flushEvery < 0 {
			flushEvery = -flushEvery
		}
		flushEvery = flushEvery%5 + 1

		c := New[byte](time.Second, 4)
		defer c.Stop()

		var out []byte
		for i := 0; i < nGroups; i++ {
			start := len(data) * i / nGroups
			end := len(data) * (i + 1) / nGroups
			c.Add(data[start:end]...)

			if (i+1)%flushEvery == 0 {
				out = append(out, c.Flush()...)
			}
		}
		out = append(out, c.Flush()...)

		if len(out) != len(data) {
			t.Fatalf("length mismatch: input %d items, output %d items", len(data), len(out))
		}
		for i := range data {
			if data[i] != out[i] {
				t.Fatalf("item mismatch at %d: input 0x%02x, output 0x%02x", i, data[i], out[i])
			}
		}
	})
}
