package manager

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestStreamRegistryCheckoutReturn(t *testing.T) {
	r := NewStreamRegistry(2, PolicyFail, 0)
	ctx := context.Background()
	a, err := r.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	b, err := r.Checkout(ctx)
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if a == b {
		t.Fatalf("slot %d issued twice", a)
	}
	if r.Available() != 0 {
		t.Fatalf("expected 0 available, got %d", r.Available())
	}
	if _, err := r.Checkout(ctx); !IsNoStreamAvailable(err) {
		t.Fatalf("expected no stream available, got %v", err)
	}
	if err := r.Return(a); err != nil {
		t.Fatalf("return: %v", err)
	}
	if err := r.Return(a); !errors.Is(err, errNotHeld) {
		t.Fatalf("double return should fail, got %v", err)
	}
	if r.Available() != 1 {
		t.Fatalf("expected 1 available, got %d", r.Available())
	}
}

func TestStreamRegistryBlockWaitsForReturn(t *testing.T) {
	r := NewStreamRegistry(1, PolicyBlock, time.Second)
	id, err := r.Checkout(context.Background())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	got := make(chan error, 1)
	go func() {
		_, err := r.Checkout(context.Background())
		got <- err
	}()
	select {
	case err := <-got:
		t.Fatalf("checkout returned before return: %v", err)
	case <-time.After(20 * time.Millisecond):
	}
	if err := r.Return(id); err != nil {
		t.Fatalf("return: %v", err)
	}
	select {
	case err := <-got:
		if err != nil {
			t.Fatalf("blocked checkout: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("blocked checkout did not wake")
	}
}

func TestStreamRegistryBlockTimesOut(t *testing.T) {
	r := NewStreamRegistry(1, PolicyBlock, 15*time.Millisecond)
	if _, err := r.Checkout(context.Background()); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	start := time.Now()
	_, err := r.Checkout(context.Background())
	if !IsNoStreamAvailable(err) {
		t.Fatalf("expected no stream available after wait, got %v", err)
	}
	if time.Since(start) < 15*time.Millisecond {
		t.Fatalf("returned before max wait")
	}
}

func TestStreamRegistryCheckoutCanceled(t *testing.T) {
	r := NewStreamRegistry(1, PolicyBlock, time.Minute)
	if _, err := r.Checkout(context.Background()); err != nil {
		t.Fatalf("checkout: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, err := r.Checkout(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if r.Available() != 0 {
		t.Fatalf("canceled checkout must not take a slot")
	}
}

func TestStreamRegistryPrefersLeastBound(t *testing.T) {
	r := NewStreamRegistry(3, PolicyFail, 0)
	r.slots[0].bound = 2
	r.slots[1].bound = 1
	id, err := r.Checkout(context.Background())
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if id != 2 {
		t.Fatalf("expected least-bound slot 2, got %d", id)
	}
}

func TestStreamRegistryCheckoutIDRange(t *testing.T) {
	r := NewStreamRegistry(1, PolicyFail, 0)
	if err := r.CheckoutID(context.Background(), 3); err == nil {
		t.Fatalf("expected out of range error")
	}
}

func TestStreamRegistryReset(t *testing.T) {
	r := NewStreamRegistry(2, PolicyFail, 0)
	_, _ = r.Checkout(context.Background())
	if held := r.Reset(); held != 1 {
		t.Fatalf("expected 1 held, got %d", held)
	}
	if r.Available() != 2 {
		t.Fatalf("expected all slots free after reset")
	}
}

func TestStreamRegistryBindLeast(t *testing.T) {
	r := NewStreamRegistry(3, PolicyFail, 0)
	if id := r.bindLeast(1); id != 1 {
		t.Fatalf("tie should keep preferred slot, got %d", id)
	}
	if id := r.bindLeast(1); id != 0 {
		t.Fatalf("expected least-bound slot 0, got %d", id)
	}
	if id := r.bindLeast(noStream); id != 2 {
		t.Fatalf("expected least-bound slot 2, got %d", id)
	}
	for i := 0; i < 3; i++ {
		if n := r.Bound(i); n != 1 {
			t.Fatalf("slot %d bound %d, want 1", i, n)
		}
	}
}
