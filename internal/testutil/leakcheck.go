// Package testutil provides testing utilities for the Mantra engine.
package testutil

import (
	"testing"

	"go.uber.org/goleak"
)

// VerifyNoLeaks should be deferred at the start of tests that spawn goroutines.
// It verifies that no goroutines were leaked during the test.
func VerifyNoLeaks(t *testing.T, opts ...goleak.Option) {
	t.Helper()
	goleak.VerifyNone(t, append(opts, IgnoreBackgroundGoroutines()...)...)
}

// IgnoreBackgroundGoroutines returns goleak options for goroutines owned by
// third-party packages that outlive a single test.
func IgnoreBackgroundGoroutines() []goleak.Option {
	return []goleak.Option{
		// fsnotify keeps a reader goroutine until the watcher's fd is fully closed
		goleak.IgnoreAnyFunction("github.com/fsnotify/fsnotify.(*inotify).readEvents"),
		// net/http test servers keep idle keep-alive connections around briefly
		goleak.IgnoreAnyFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreAnyFunction("net/http.(*persistConn).writeLoop"),
	}
}
