package http

import (
	"context"
	"testing"
	"time"
)

func TestInFlightTracker_Count(t *testing.T) {
	tracker := &InFlightTracker{}

	tracker.Increment()
	tracker.Increment()
	tracker.Decrement()
	if got := tracker.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}
	tracker.Decrement()
	if got := tracker.Count(); got != 0 {
		t.Errorf("Count() = %d, want 0 after full drain", got)
	}
}

func TestInFlightTracker_WaitForZeroReturnsOnDrain(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- tracker.WaitForZero(ctx, time.Millisecond)
	}()

	time.Sleep(10 * time.Millisecond)
	tracker.Decrement()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForZero returned %v after drain", err)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("WaitForZero still blocked after count reached zero")
	}
}

func TestInFlightTracker_WaitForZeroHonorsContext(t *testing.T) {
	tracker := &InFlightTracker{}
	tracker.Increment()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := tracker.WaitForZero(ctx, time.Millisecond); err == nil {
		t.Error("WaitForZero = nil with a stuck request and cancelled context")
	}
}

func TestInFlightTracker_WaitForZeroImmediateWhenIdle(t *testing.T) {
	tracker := &InFlightTracker{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Count is already zero; the cancelled context must not matter.
	if err := tracker.WaitForZero(ctx, time.Millisecond); err != nil {
		t.Errorf("WaitForZero = %v on an idle tracker", err)
	}
}
