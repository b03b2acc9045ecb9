// Package testutil holds helpers shared by the package tests.
package testutil

import (
	"fmt"
	"time"
)

// T is the subset of testing.TB the helpers need.
type T interface {
	Helper()
	Fatalf(format string, args ...any)
}

// RequireReceive reads one value from ch within timeout, or fails the test.
func RequireReceive[V any](t T, ch <-chan V, timeout time.Duration, msg string, args ...any) V {
	t.Helper()
	select {
	case v, ok := <-ch:
		if !ok {
			t.Fatalf("channel closed while %s", fmt.Sprintf(msg, args...))
		}
		return v
	case <-time.After(timeout):
		t.Fatalf("timed out after %v while %s", timeout, fmt.Sprintf(msg, args...))
	}
	panic("unreachable")
}

// RequireNoReceive fails the test if ch yields a value within wait.
func RequireNoReceive[V any](t T, ch <-chan V, wait time.Duration, msg string, args ...any) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected value %v while %s", v, fmt.Sprintf(msg, args...))
	case <-time.After(wait):
	}
}

// Eventually polls cond every few milliseconds until it holds or timeout elapses.
func Eventually(t T, timeout time.Duration, cond func() bool, msg string, args ...any) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met after %v: %s", timeout, fmt.Sprintf(msg, args...))
		}
		time.Sleep(5 * time.Millisecond)
	}
}
