package testutil

import (
	"testing"
	"time"
)

func TestWaitFor_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	if !WaitFor(t, func() bool { return true }, WithTimeout(time.Second)) {
		t.Error("expected WaitFor to return true for an immediately met condition")
	}
}

func TestWaitFor_EventualSuccess(t *testing.T) {
	t.Parallel()
	polls := 0
	ok := WaitFor(t, func() bool {
		polls++
		return polls >= 3
	}, WithTimeout(time.Second), WithInterval(10*time.Millisecond))

	if !ok {
		t.Error("expected WaitFor to return true once the condition came good")
	}
	if polls < 3 {
		t.Errorf("expected at least 3 polls, got %d", polls)
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()
	ok := WaitFor(t, func() bool { return false },
		WithTimeout(50*time.Millisecond), WithInterval(10*time.Millisecond))

	if ok {
		t.Error("expected WaitFor to return false on timeout")
	}
}

func TestWaitOptions(t *testing.T) {
	t.Parallel()

	opts := defaultOptions()
	if opts.Timeout != 30*time.Second || opts.Interval != 100*time.Millisecond {
		t.Errorf("unexpected defaults: %+v", opts)
	}

	WithTimeout(5 * time.Second)(&opts)
	WithInterval(50 * time.Millisecond)(&opts)
	if opts.Timeout != 5*time.Second {
		t.Errorf("expected Timeout 5s, got %v", opts.Timeout)
	}
	if opts.Interval != 50*time.Millisecond {
		t.Errorf("expected Interval 50ms, got %v", opts.Interval)
	}
}
