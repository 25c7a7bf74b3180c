package manager

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type streamSlot struct {
	inUse bool
	// bound counts live sessions created on this stream.
	bound int
}

// StreamRegistry is a fixed set of GPU execution streams. Slots are created
// once and only ever checked out and returned.
type StreamRegistry struct {
	policy  StreamPolicy
	maxWait time.Duration

	mu    sync.Mutex
	slots []streamSlot
	free  int
	// changed is closed and replaced whenever a slot becomes free.
	changed chan struct{}
}

// NewStreamRegistry creates n stream slots (at least one).
func NewStreamRegistry(n int, policy StreamPolicy, maxWait time.Duration) *StreamRegistry {
	if n < 1 {
		n = 1
	}
	if policy == "" {
		policy = PolicyBlock
	}
	if maxWait <= 0 {
		maxWait = defaultMaxWait
	}
	return &StreamRegistry{
		policy:  policy,
		maxWait: maxWait,
		slots:   make([]streamSlot, n),
		free:    n,
		changed: make(chan struct{}),
	}
}

// Total returns the number of slots.
func (r *StreamRegistry) Total() int { return len(r.slots) }

// Available returns the number of slots not checked out.
func (r *StreamRegistry) Available() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.free
}

// Policy returns the exhaustion policy.
func (r *StreamRegistry) Policy() StreamPolicy { return r.policy }

// Checkout reserves any free slot, preferring the one with the fewest bound
// sessions and then the lowest id.
func (r *StreamRegistry) Checkout(ctx context.Context) (int, error) {
	return r.checkout(ctx, noStream)
}

// CheckoutID reserves the given slot.
func (r *StreamRegistry) CheckoutID(ctx context.Context, id int) error {
	if id < 0 || id >= len(r.slots) {
		return fmt.Errorf("stream %d out of range [0,%d)", id, len(r.slots))
	}
	_, err := r.checkout(ctx, id)
	return err
}

func (r *StreamRegistry) checkout(ctx context.Context, want int) (int, error) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	for {
		if err := ctx.Err(); err != nil {
			return noStream, err
		}
		r.mu.Lock()
		if id := r.pickLocked(want); id != noStream {
			r.slots[id].inUse = true
			r.free--
			streamsAvailable.Set(float64(r.free))
			r.mu.Unlock()
			return id, nil
		}
		wait := r.changed
		r.mu.Unlock()

		if r.policy == PolicyFail {
			return noStream, ErrNoStreamAvailable
		}
		if timer == nil {
			timer = time.NewTimer(r.maxWait)
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return noStream, ctx.Err()
		case <-timer.C:
			return noStream, fmt.Errorf("%w: waited %s", ErrNoStreamAvailable, r.maxWait)
		}
	}
}

func (r *StreamRegistry) pickLocked(want int) int {
	if want != noStream {
		if r.slots[want].inUse {
			return noStream
		}
		return want
	}
	best := noStream
	for i, s := range r.slots {
		if s.inUse {
			continue
		}
		if best == noStream || s.bound < r.slots[best].bound {
			best = i
		}
	}
	return best
}

// Return frees a checked-out slot. Returning a free slot is an error.
func (r *StreamRegistry) Return(id int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.slots) || !r.slots[id].inUse {
		return fmt.Errorf("stream %d: %w", id, errNotHeld)
	}
	r.slots[id].inUse = false
	r.free++
	streamsAvailable.Set(float64(r.free))
	r.broadcastLocked()
	return nil
}

// bindLeast records a new session on the slot with the fewest bound sessions.
// prefer wins ties, then the lowest id. It returns the chosen slot.
func (r *StreamRegistry) bindLeast(prefer int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	best := noStream
	if prefer >= 0 && prefer < len(r.slots) {
		best = prefer
	}
	for i, s := range r.slots {
		if best == noStream || s.bound < r.slots[best].bound {
			best = i
		}
	}
	r.slots[best].bound++
	return best
}

// Bound returns the number of live sessions bound to slot id.
func (r *StreamRegistry) Bound(id int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.slots) {
		return 0
	}
	return r.slots[id].bound
}

func (r *StreamRegistry) unbind(id int) {
	r.mu.Lock()
	if r.slots[id].bound > 0 {
		r.slots[id].bound--
	}
	r.mu.Unlock()
}

// Reset frees every slot and clears bindings. It returns the number of slots
// that were still checked out.
func (r *StreamRegistry) Reset() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	held := 0
	for i := range r.slots {
		if r.slots[i].inUse {
			held++
		}
		r.slots[i] = streamSlot{}
	}
	r.free = len(r.slots)
	streamsAvailable.Set(float64(r.free))
	r.broadcastLocked()
	return held
}

func (r *StreamRegistry) broadcastLocked() {
	close(r.changed)
	r.changed = make(chan struct{})
}
