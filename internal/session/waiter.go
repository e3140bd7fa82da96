package session

import (
	"sync"
	"time"

	"github.com/kestrelnet/ms2bot/internal/protocol"
)

// WaitResult is the outcome delivered to a Waiter: either the raw
// plaintext (opcode included) of the packet that satisfied it, or an
// error (ErrTimeout or ErrCancelled).
type WaitResult struct {
	Packet protocol.Packet
	Err    error
}

// Waiter is a one-shot future parameterized by an opcode and a deadline,
// per spec.md §3. It is satisfied by the first packet with its opcode to
// arrive after it's enqueued (spec.md §4.2's dispatch precedence).
type Waiter struct {
	op protocol.SendOp

	mu       sync.Mutex
	resolved bool
	resultCh chan WaitResult
	timer    *time.Timer
}

func newWaiter(op protocol.SendOp, timeout time.Duration) *Waiter {
	w := &Waiter{
		op:       op,
		resultCh: make(chan WaitResult, 1),
	}
	w.timer = time.AfterFunc(timeout, func() {
		w.resolve(WaitResult{Err: ErrTimeout})
	})
	return w
}

// resolve delivers result exactly once; later calls are no-ops, which is
// what makes one-shot consumption and deadline-vs-arrival races safe
// (spec.md §8 property 4).
func (w *Waiter) resolve(result WaitResult) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.resolved {
		return false
	}
	w.resolved = true
	w.timer.Stop()
	w.resultCh <- result
	return true
}

// Wait blocks until the waiter resolves and returns its result.
func (w *Waiter) Wait() WaitResult {
	return <-w.resultCh
}
