// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock frozen at initial. Time moves only through
// Advance. Safe for concurrent use.
func Fake(initial time.Time) *FakeClock {
	fake := &FakeClock{current: initial}
	fake.registered = sync.NewCond(&fake.mu)
	return fake
}

// FakeClock is a deterministic Clock for tests. After channels and
// ticker channels fire during Advance, in deadline order.
type FakeClock struct {
	mu         sync.Mutex
	current    time.Time
	waiters    []*waiter
	registered *sync.Cond
}

// waiter is one pending After channel or ticker tick.
type waiter struct {
	deadline time.Time
	channel  chan time.Time

	// interval is non-zero for tickers: after firing, the waiter is
	// rescheduled at deadline+interval.
	interval time.Duration

	stopped bool
}

// Now returns the current fake time.
func (fake *FakeClock) Now() time.Time {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.current
}

// After returns a channel that receives when the clock advances past
// the deadline. If d <= 0 the channel receives immediately.
func (fake *FakeClock) After(d time.Duration) <-chan time.Time {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- fake.current
		return channel
	}
	fake.waiters = append(fake.waiters, &waiter{
		deadline: fake.current.Add(d),
		channel:  channel,
	})
	fake.registered.Broadcast()
	return channel
}

// NewTicker returns a ticker that fires once per interval as the clock
// advances. Panics if d <= 0.
func (fake *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()

	channel := make(chan time.Time, 1)
	pending := &waiter{
		deadline: fake.current.Add(d),
		channel:  channel,
		interval: d,
	}
	fake.waiters = append(fake.waiters, pending)
	fake.registered.Broadcast()

	return &Ticker{
		C: channel,
		stopFunc: func() {
			fake.mu.Lock()
			defer fake.mu.Unlock()
			pending.stopped = true
		},
	}
}

// Sleep blocks the calling goroutine until the clock advances past d.
func (fake *FakeClock) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	<-fake.After(d)
}

// Advance moves the clock forward by d and fires every waiter whose
// deadline falls within the new time, in deadline order. Ticker sends
// that find the tick channel full are dropped, matching time.Ticker.
func (fake *FakeClock) Advance(d time.Duration) {
	fake.mu.Lock()
	fake.current = fake.current.Add(d)
	target := fake.current
	fake.mu.Unlock()

	for {
		next := fake.takeNextExpired(target)
		if next == nil {
			return
		}
		select {
		case next.channel <- target:
		default:
		}
	}
}

// takeNextExpired removes and returns the earliest-deadline waiter at
// or before target, rescheduling tickers. Returns nil when none remain.
func (fake *FakeClock) takeNextExpired(target time.Time) *waiter {
	fake.mu.Lock()
	defer fake.mu.Unlock()

	var earliest *waiter
	earliestIndex := -1
	for i, pending := range fake.waiters {
		if pending.stopped || pending.deadline.After(target) {
			continue
		}
		if earliest == nil || pending.deadline.Before(earliest.deadline) {
			earliest = pending
			earliestIndex = i
		}
	}
	if earliest == nil {
		return nil
	}

	if earliest.interval > 0 {
		earliest.deadline = earliest.deadline.Add(earliest.interval)
	} else {
		fake.waiters = append(fake.waiters[:earliestIndex], fake.waiters[earliestIndex+1:]...)
	}
	return earliest
}

// WaitForTimers blocks until at least n waiters (After channels,
// tickers, sleeps) are registered and pending. Tests use this to
// eliminate the race between a goroutine registering a timer and the
// test advancing the clock.
func (fake *FakeClock) WaitForTimers(n int) {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	for fake.pendingLocked() < n {
		fake.registered.Wait()
	}
}

// PendingCount returns the number of active pending waiters. Useful
// for test assertions.
func (fake *FakeClock) PendingCount() int {
	fake.mu.Lock()
	defer fake.mu.Unlock()
	return fake.pendingLocked()
}

// pendingLocked counts active waiters. Caller holds mu.
func (fake *FakeClock) pendingLocked() int {
	count := 0
	for _, pending := range fake.waiters {
		if !pending.stopped {
			count++
		}
	}
	return count
}
