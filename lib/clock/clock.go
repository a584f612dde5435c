// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import "time"

// Clock is the time surface used by this repository. Functions that
// need the current time, a timeout channel, or a periodic tick accept
// a Clock (or live on a struct holding one) instead of calling the
// time package directly.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives once duration d has
	// elapsed. Equivalent to time.After; if d <= 0 the channel
	// receives immediately.
	After(d time.Duration) <-chan time.Time

	// NewTicker returns a Ticker delivering ticks every d. Panics if
	// d <= 0, matching time.NewTicker.
	NewTicker(d time.Duration) *Ticker

	// Sleep pauses the calling goroutine for at least d.
	Sleep(d time.Duration)
}

// Ticker delivers periodic ticks on C. Call Stop to release it; Stop
// does not close C.
type Ticker struct {
	// C delivers ticks. Buffered with capacity 1, so a slow consumer
	// drops ticks rather than queueing them, matching time.Ticker.
	C <-chan time.Time

	stopFunc func()
}

// Stop turns the ticker off. No ticks are delivered after Stop.
func (ticker *Ticker) Stop() { ticker.stopFunc() }
