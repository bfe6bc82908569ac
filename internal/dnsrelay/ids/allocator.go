// Package ids implements a free transaction-id allocator: a pool of ids
// drawn from {1...512}, handed out in deterministic (smallest-first) order,
// blocking when exhausted.
package ids

import (
	"context"
	"fmt"
	"sync"

	"github.com/bits-and-blooms/bitset"
)

// MaxID is the size of the id pool. It bounds per-connection in-flight
// requests and provides natural backpressure.
const MaxID = 512

// Allocator is a blocking pool of 16-bit upstream-scoped transaction ids.
type Allocator struct {
	mu    sync.Mutex
	cond  *sync.Cond
	avail *bitset.BitSet // bit i set means id i+1 is free
}

// New returns an Allocator with all MaxID ids available.
func New() *Allocator {
	a := &Allocator{avail: bitset.New(MaxID)}
	a.cond = sync.NewCond(&a.mu)
	a.avail.SetAll()
	return a
}

// Get returns the smallest available id, blocking until one is free or ctx
// is cancelled. Deterministic min-element choice keeps the protocol
// reproducible in tests.
func (a *Allocator) Get(ctx context.Context) (uint16, error) {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			a.mu.Lock()
			a.cond.Broadcast()
			a.mu.Unlock()
		case <-stop:
		}
	}()

	a.mu.Lock()
	defer a.mu.Unlock()
	for a.avail.None() {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		a.cond.Wait()
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	idx, ok := a.avail.NextSet(0)
	if !ok {
		// Unreachable: avail.None() was false above under the same lock.
		return 0, fmt.Errorf("ids: allocator invariant violated")
	}
	a.avail.Clear(idx)
	return uint16(idx) + 1, nil
}

// Put returns id to the pool, waking one blocked Get. Returning an id that
// is already present is a programming error and panics.
func (a *Allocator) Put(id uint16) {
	if id == 0 || id > MaxID {
		panic(fmt.Sprintf("ids: id %d out of range [1, %d]", id, MaxID))
	}
	idx := uint(id - 1)

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.avail.Test(idx) {
		panic(fmt.Sprintf("ids: id %d returned twice", id))
	}
	a.avail.Set(idx)
	a.cond.Signal()
}

// Len returns the number of ids currently available, mostly useful for
// tests asserting reclamation.
func (a *Allocator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int(a.avail.Count())
}
