package concurrent

import "sync/atomic"

type AtomicBool struct {
	val atomic.Bool
}

func NewAtomicBool() *AtomicBool {
	return &AtomicBool{}
}

func (a *AtomicBool) Get() bool {
	return a.val.Load()
}

func (a *AtomicBool) Set(b bool) {
	a.val.Store(b)
}

// Compare-and-swap from e to t.  Returns true if the swap happened.
func (a *AtomicBool) Swap(e bool, t bool) bool {
	return a.val.CompareAndSwap(e, t)
}

type AtomicCounter struct {
	val atomic.Int64
}

func NewAtomicCounter() *AtomicCounter {
	return &AtomicCounter{}
}

func (a *AtomicCounter) Get() int {
	return int(a.val.Load())
}

func (a *AtomicCounter) Inc() int {
	return int(a.val.Add(1))
}

func (a *AtomicCounter) Dec() int {
	return int(a.val.Add(-1))
}
