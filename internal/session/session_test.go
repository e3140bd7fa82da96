package session

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/ms2bot/internal/protocol"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(nopWriter{})
	return logger
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }

func newTestSession() *Session {
	return New(testLogger(), 1)
}

func opcodePacket(op protocol.SendOp, body ...byte) protocol.Packet {
	pkt := make(protocol.Packet, 2+len(body))
	binary.LittleEndian.PutUint16(pkt[0:2], uint16(op))
	copy(pkt[2:], body)
	return pkt
}

// A waiter registered for an opcode must claim a matching packet ahead of
// any persistent handler for the same opcode.
func TestSession_DispatchPrefersWaiterOverHandler(t *testing.T) {
	s := newTestSession()

	handlerCalled := false
	s.On(protocol.FieldAddNpc, func(pkt protocol.Packet) error {
		handlerCalled = true
		return nil
	})

	waiter := s.WaitFor(protocol.FieldAddNpc, time.Second)
	s.dispatch(opcodePacket(protocol.FieldAddNpc, 0x01))

	result := waiter.Wait()
	if result.Err != nil {
		t.Fatalf("waiter resolved with unexpected error: %v", result.Err)
	}
	if handlerCalled {
		t.Fatal("persistent handler ran even though a waiter was pending for the same opcode")
	}
}

// Multiple waiters queued for the same opcode resolve in the order they
// were registered.
func TestSession_WaitersResolveFIFO(t *testing.T) {
	s := newTestSession()

	first := s.WaitFor(protocol.SkillUse, time.Second)
	second := s.WaitFor(protocol.SkillUse, time.Second)

	s.dispatch(opcodePacket(protocol.SkillUse, 0xAA))
	s.dispatch(opcodePacket(protocol.SkillUse, 0xBB))

	firstResult := first.Wait()
	secondResult := second.Wait()

	if firstResult.Packet.Body()[0] != 0xAA {
		t.Fatalf("first waiter got body %v, want [0xAA]", firstResult.Packet.Body())
	}
	if secondResult.Packet.Body()[0] != 0xBB {
		t.Fatalf("second waiter got body %v, want [0xBB]", secondResult.Packet.Body())
	}
}

// A waiter that isn't satisfied before its deadline resolves with
// ErrTimeout, never blocking forever.
func TestSession_WaiterTimesOut(t *testing.T) {
	s := newTestSession()

	waiter := s.WaitFor(protocol.LoginResult, 10*time.Millisecond)
	result := waiter.Wait()

	if result.Err != ErrTimeout {
		t.Fatalf("want ErrTimeout, got %v", result.Err)
	}
}

// Dispose cancels every waiter still pending rather than leaving callers
// blocked indefinitely.
func TestSession_DisposeCancelsPendingWaiters(t *testing.T) {
	s := newTestSession()

	waiter := s.WaitFor(protocol.RequestKey, time.Minute)

	if err := s.Dispose(); err != nil {
		t.Fatalf("Dispose() returned an unexpected error: %v", err)
	}

	result := waiter.Wait()
	if result.Err != ErrCancelled {
		t.Fatalf("want ErrCancelled, got %v", result.Err)
	}
}

// A handler that panics must not take down the receive path; the packet is
// simply logged and dispatch returns normally.
func TestSession_HandlerPanicIsRecovered(t *testing.T) {
	s := newTestSession()

	s.On(protocol.SkillDamage, func(pkt protocol.Packet) error {
		panic("boom")
	})

	s.dispatch(opcodePacket(protocol.SkillDamage))
}

// Once a waiter is satisfied, a second packet for the same opcode with no
// waiter left in queue falls through to any persistent handler.
func TestSession_HandlerRunsAfterWaitersDrain(t *testing.T) {
	s := newTestSession()

	handled := make(chan struct{}, 1)
	s.On(protocol.RequestHeartbeat, func(pkt protocol.Packet) error {
		handled <- struct{}{}
		return nil
	})

	waiter := s.WaitFor(protocol.RequestHeartbeat, time.Second)
	s.dispatch(opcodePacket(protocol.RequestHeartbeat, 0x01))
	if result := waiter.Wait(); result.Err != nil {
		t.Fatalf("waiter resolved with unexpected error: %v", result.Err)
	}

	s.dispatch(opcodePacket(protocol.RequestHeartbeat, 0x02))

	select {
	case <-handled:
	case <-time.After(time.Second):
		t.Fatal("handler was never invoked for the packet with no waiter left to claim it")
	}
}
