package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	var counter int32
	go func() {
		time.Sleep(30 * time.Millisecond)
		atomic.StoreInt32(&counter, 1)
	}()

	Eventually(t, func() bool {
		return atomic.LoadInt32(&counter) == 1
	}, 500*time.Millisecond, 5*time.Millisecond)
}

func TestWaitForInt64(t *testing.T) {
	var value int64
	go func() {
		time.Sleep(20 * time.Millisecond)
		atomic.StoreInt64(&value, 410)
	}()

	WaitForInt64(t, &value, 410, 500*time.Millisecond)
}

func TestMockClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(10 * time.Second)
	AssertEqual(t, clock.Now(), start.Add(10*time.Second))

	clock.Set(start)
	AssertEqual(t, clock.Now(), start)

	if NewMockClock(time.Time{}).Now().IsZero() {
		t.Error("zero start should default to the current time")
	}
}

func TestCallbackTracker(t *testing.T) {
	tracker := NewCallbackTracker()
	if tracker.Called() {
		t.Fatal("tracker should start uncalled")
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.Mark("refill")
		}()
	}
	wg.Wait()

	AssertEqual(t, tracker.CallCount(), 10)
	AssertEqual(t, tracker.Value(), interface{}("refill"))
}

func TestAssertions(t *testing.T) {
	AssertNoError(t, nil)
	AssertError(t, context.Canceled)
	AssertErrorIs(t, context.Canceled, context.Canceled)
	AssertEqual(t, 500, 500)
	AssertNotEqual(t, 400, 500)

	ctx, cancel := WithTimeout(t)
	defer cancel()
	if _, ok := ctx.Deadline(); !ok {
		t.Fatal("context should have a deadline")
	}
}
