// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfter(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fake := Fake(start)

	ch := fake.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before Advance")
	default:
	}

	fake.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before its deadline")
	default:
	}

	fake.Advance(time.Second)
	select {
	case fired := <-ch:
		if !fired.Equal(start.Add(5 * time.Second)) {
			t.Errorf("fired at %v, want %v", fired, start.Add(5*time.Second))
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterNonPositive(t *testing.T) {
	t.Parallel()

	fake := Fake(time.Unix(0, 0))
	select {
	case <-fake.After(0):
	default:
		t.Fatal("After(0) should fire immediately")
	}
}

func TestFakeTicker(t *testing.T) {
	t.Parallel()

	fake := Fake(time.Unix(100, 0))
	ticker := fake.NewTicker(time.Minute)
	defer ticker.Stop()

	// Three intervals in one advance: the channel holds one tick, the
	// overflow is dropped, and the ticker stays scheduled.
	fake.Advance(3 * time.Minute)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire")
	}

	ticker.Stop()
	fake.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestFakeOrdering(t *testing.T) {
	t.Parallel()

	fake := Fake(time.Unix(0, 0))
	first := fake.After(time.Second)
	second := fake.After(2 * time.Second)

	fake.Advance(3 * time.Second)

	<-first
	<-second
	if fake.PendingCount() != 0 {
		t.Errorf("PendingCount = %d, want 0", fake.PendingCount())
	}
}

func TestFakePendingCount(t *testing.T) {
	t.Parallel()

	fake := Fake(time.Unix(0, 0))
	fake.After(time.Hour)
	fake.After(time.Hour)
	if fake.PendingCount() != 2 {
		t.Errorf("PendingCount = %d, want 2", fake.PendingCount())
	}
}
