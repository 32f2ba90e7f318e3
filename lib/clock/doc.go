// Copyright 2026 The Tether Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction for testability.
//
// Tether's protocol behavior is almost entirely timer-driven: the edit
// batcher's coalescing window, the transport heartbeat, the client's
// reconnect delay, and the host's reconnect grace window. Production
// code accepts a Clock parameter instead of calling time.Now,
// time.After, time.NewTicker, or time.AfterFunc directly. In
// production, Real() provides the standard library behavior. In tests,
// Fake() provides a deterministic clock that advances only when
// Advance is called.
//
// # Wiring pattern
//
// Add a Clock field to structs that use time:
//
//	type Batcher struct {
//	    clock clock.Clock
//	    // ...
//	}
//
// In production:
//
//	b := NewBatcher(clock.Real(), ...)
//
// In tests:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	b := NewBatcher(c, ...)
//	c.WaitForTimers(1)               // the coalescing timer is armed
//	c.Advance(40 * time.Millisecond) // fire it deterministically
//
// # FakeClock synchronization
//
// When a goroutine calls After, NewTicker, or AfterFunc on a
// FakeClock, it registers a pending waiter. Use WaitForTimers to block
// until a given number of waiters exist before calling Advance. This
// eliminates the race between timer registration and time advancement
// that plagues tests built on real sleeps.
package clock
