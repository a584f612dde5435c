// Copyright 2026 The Forge Authors
// SPDX-License-Identifier: Apache-2.0

package step

import (
	"errors"
	"sync"
	"time"

	"github.com/forge-foundation/forge/lib/clock"
)

// Status is a step's lifecycle state.
type Status string

const (
	// Idle means the step is known but has not started.
	Idle Status = "idle"
	// Running means the step is in progress.
	Running Status = "running"
	// Success means the step completed.
	Success Status = "success"
	// Error means the step failed; Output carries the diagnostic.
	Error Status = "error"
)

// Step is one id-keyed, UI-facing progress record for a build stage.
type Step struct {
	// ID is the stable key. Re-adding a step with an existing ID
	// updates that entry in place rather than appending, so re-running
	// a stage like "install" reuses its record.
	ID string `json:"id"`

	// Name is the human-readable label.
	Name string `json:"name"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Output is accumulated display text (normalized process output
	// or an error diagnostic). May be empty.
	Output string `json:"output,omitempty"`

	// Timestamp is when the step was last upserted or updated.
	Timestamp time.Time `json:"timestamp"`
}

// ErrUnknownStep is returned by Update and AppendOutput for an id that
// was never upserted. Update deliberately does not create steps: a
// partial patch has no name to create one with.
var ErrUnknownStep = errors.New("step: unknown step id")

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name   *string
	Status *Status
	Output *string
}

// Tracker holds the ordered step list and notifies subscribers on
// every change. Safe for concurrent use.
type Tracker struct {
	mu          sync.Mutex
	clk         clock.Clock
	steps       []Step
	subscribers map[int]chan []Step
	nextSubID   int
}

// NewTracker returns an empty tracker stamping timestamps from clk.
func NewTracker(clk clock.Clock) *Tracker {
	return &Tracker{
		clk:         clk,
		subscribers: make(map[int]chan []Step),
	}
}

// Upsert adds or replaces the step with the given id. When the id
// exists, its name, status, and output are replaced and the timestamp
// refreshed; the step keeps its position in the list. Otherwise the
// step is appended. Returns the resulting snapshot.
func (tracker *Tracker) Upsert(id, name string, status Status, output string) []Step {
	tracker.mu.Lock()
	entry := Step{
		ID:        id,
		Name:      name,
		Status:    status,
		Output:    output,
		Timestamp: tracker.clk.Now(),
	}
	replaced := false
	for i := range tracker.steps {
		if tracker.steps[i].ID == id {
			tracker.steps[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		tracker.steps = append(tracker.steps, entry)
	}
	snapshot := tracker.snapshotLocked()
	tracker.notifyLocked(snapshot)
	tracker.mu.Unlock()
	return snapshot
}

// Update merges patch into the step with the given id and refreshes
// its timestamp. Returns ErrUnknownStep when the id is absent.
func (tracker *Tracker) Update(id string, patch Patch) error {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	for i := range tracker.steps {
		if tracker.steps[i].ID != id {
			continue
		}
		if patch.Name != nil {
			tracker.steps[i].Name = *patch.Name
		}
		if patch.Status != nil {
			tracker.steps[i].Status = *patch.Status
		}
		if patch.Output != nil {
			tracker.steps[i].Output = *patch.Output
		}
		tracker.steps[i].Timestamp = tracker.clk.Now()
		tracker.notifyLocked(tracker.snapshotLocked())
		return nil
	}
	return ErrUnknownStep
}

// AppendOutput appends text to the step's output without touching its
// status. Returns ErrUnknownStep when the id is absent.
func (tracker *Tracker) AppendOutput(id, text string) error {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	for i := range tracker.steps {
		if tracker.steps[i].ID != id {
			continue
		}
		tracker.steps[i].Output += text
		tracker.steps[i].Timestamp = tracker.clk.Now()
		tracker.notifyLocked(tracker.snapshotLocked())
		return nil
	}
	return ErrUnknownStep
}

// Snapshot returns a copy of the ordered step list.
func (tracker *Tracker) Snapshot() []Step {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return tracker.snapshotLocked()
}

// Subscribe registers for change notification. The returned channel
// delivers the latest snapshot after every mutation; a slow consumer
// sees stale intermediate snapshots replaced by newer ones rather than
// an unbounded queue. The cancel function removes the subscription and
// closes the channel.
func (tracker *Tracker) Subscribe() (<-chan []Step, func()) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	id := tracker.nextSubID
	tracker.nextSubID++
	channel := make(chan []Step, 1)
	tracker.subscribers[id] = channel

	cancel := func() {
		tracker.mu.Lock()
		defer tracker.mu.Unlock()
		if ch, ok := tracker.subscribers[id]; ok {
			delete(tracker.subscribers, id)
			close(ch)
		}
	}
	return channel, cancel
}

// snapshotLocked copies the step list. Caller holds mu.
func (tracker *Tracker) snapshotLocked() []Step {
	snapshot := make([]Step, len(tracker.steps))
	copy(snapshot, tracker.steps)
	return snapshot
}

// notifyLocked pushes snapshot to every subscriber, replacing an
// undelivered older snapshot if the channel is full. Caller holds mu.
func (tracker *Tracker) notifyLocked(snapshot []Step) {
	for _, channel := range tracker.subscribers {
		select {
		case channel <- snapshot:
		default:
			select {
			case <-channel:
			default:
			}
			select {
			case channel <- snapshot:
			default:
			}
		}
	}
}
