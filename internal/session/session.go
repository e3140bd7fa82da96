// Package session implements the session transport (spec.md §4.2, C2): a
// TCP connection with a background receive loop that frames the encrypted
// byte stream into packets and dispatches each one to either a one-shot
// waiter or a persistent handler.
//
// The send path is grounded on archon's Client.Send/transmit
// (internal/server/client.go in the teacher): a mutex-guarded encrypt,
// then a write loop that doesn't return until every byte is on the wire.
// The receive loop and waiter/handler dispatch are this module's own
// addition — archon's servers never needed to *wait* on a reply, only to
// answer one — but the precedence rule it implements is exactly spec.md
// §4.2 step by step.
package session

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/ms2bot/internal/cipher"
	"github.com/kestrelnet/ms2bot/internal/protocol"
)

const receiveScratchSize = 4096

// Handler is a persistent callback invoked for every packet of an opcode
// not consumed by a waiter. Handler errors are caught and logged; they
// never kill the receive loop (spec.md §4.2, §7).
type Handler func(pkt protocol.Packet) error

// Session is the C2 session transport. Exactly one receive goroutine per
// Session mutates dec and accumulator; sendMu serializes writers on enc
// (spec.md §3, §5).
type Session struct {
	logger  *logrus.Logger
	version uint32

	conn net.Conn

	sendMu sync.Mutex
	enc    *cipher.Encryptor

	// Owned exclusively by the receive loop goroutine.
	dec         *cipher.Decryptor
	accumulator []byte

	mapsMu   sync.Mutex
	waiters  map[protocol.SendOp][]*Waiter
	handlers map[protocol.SendOp]Handler

	disposed atomic.Bool
	wg       sync.WaitGroup
}

// New returns an unconnected Session. version is the compiled-in protocol
// version the handshake must match (spec.md §9: injected configuration,
// not a package global).
func New(logger *logrus.Logger, version uint32) *Session {
	return &Session{
		logger:   logger,
		version:  version,
		waiters:  make(map[protocol.SendOp][]*Waiter),
		handlers: make(map[protocol.SendOp]Handler),
	}
}

// Connect dials host:port, completes the plaintext handshake described in
// spec.md §4.2/§6, performs the IV-sync step (spec.md §4.1), and starts
// the background receive loop.
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	dialer := net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", host, port))
	if err != nil {
		return fmt.Errorf("session: dial %s:%d: %w", host, port, err)
	}
	s.conn = conn

	header := make([]byte, cipher.HeaderSize)
	if _, err := readFull(conn, header); err != nil {
		conn.Close()
		return fmt.Errorf("session: reading handshake header: %w", wrapReadErr(err))
	}
	_, payloadLen, err := cipher.ParseHandshakeHeader(header)
	if err != nil {
		conn.Close()
		return err
	}

	payload := make([]byte, payloadLen)
	if _, err := readFull(conn, payload); err != nil {
		conn.Close()
		return fmt.Errorf("session: reading handshake payload: %w", wrapReadErr(err))
	}

	opcode := protocol.SendOp(binary.LittleEndian.Uint16(payload[0:2]))
	if opcode != protocol.RequestVersion {
		conn.Close()
		return ErrUnexpectedHandshakeOpcode
	}

	serverVersion := binary.LittleEndian.Uint32(payload[2:6])
	if serverVersion != s.version {
		conn.Close()
		return ErrVersionMismatch
	}

	serverRIV := binary.LittleEndian.Uint32(payload[6:10])
	serverSIV := binary.LittleEndian.Uint32(payload[10:14])
	blockIV := binary.LittleEndian.Uint32(payload[14:18])

	// Swapped by design (spec.md §4.1): the server's read channel is the
	// client's write channel and vice versa.
	s.enc = cipher.NewEncryptor(serverVersion, serverRIV, blockIV)
	s.dec = cipher.NewDecryptor(serverVersion, serverSIV, blockIV)

	// The server's encryptor advanced its IV once while framing this
	// plaintext handshake (cipher.Encryptor.WriteHeader); advance the
	// client's receive IV by the same length to match, without touching
	// its chaining seed (see cipher.Decryptor.AdvanceIV).
	s.dec.AdvanceIV(cipher.HeaderSize + len(payload))

	s.wg.Add(1)
	go s.receiveLoop()

	return nil
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// wrapReadErr maps a peer-closed handshake read to the distinct
// ErrConnectionClosed failure mode (spec.md §4.2's ConnectionClosed), rather
// than surfacing the raw io.EOF/io.ErrUnexpectedEOF.
func wrapReadErr(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrConnectionClosed
	}
	return err
}

// Send serializes, encrypts under sendMu (serializing all writers), and
// writes the frame atomically to the socket.
func (s *Session) Send(pkt []byte) error {
	if s.disposed.Load() {
		return ErrNotConnected
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	frame := s.enc.Encrypt(pkt)
	return s.transmit(frame)
}

func (s *Session) transmit(data []byte) error {
	sent := 0
	for sent < len(data) {
		n, err := s.conn.Write(data[sent:])
		if err != nil {
			return fmt.Errorf("session: write: %w", err)
		}
		sent += n
	}
	return nil
}

// WaitFor enqueues a waiter for op with the given timeout and returns it.
// Per spec.md §4.2, this must be called (and the Waiter held) before the
// triggering Send, or a fast reply can be dispatched to a handler (or
// dropped) before the waiter exists to claim it.
func (s *Session) WaitFor(op protocol.SendOp, timeout time.Duration) *Waiter {
	w := newWaiter(op, timeout)

	s.mapsMu.Lock()
	s.waiters[op] = append(s.waiters[op], w)
	s.mapsMu.Unlock()

	return w
}

// On installs or replaces the persistent handler for op.
func (s *Session) On(op protocol.SendOp, h Handler) {
	s.mapsMu.Lock()
	s.handlers[op] = h
	s.mapsMu.Unlock()
}

// receiveLoop is the sole mutator of dec and accumulator (spec.md §3, §5).
func (s *Session) receiveLoop() {
	defer s.wg.Done()

	scratch := make([]byte, receiveScratchSize)
	for {
		n, err := s.conn.Read(scratch)
		if n > 0 {
			s.accumulator = append(s.accumulator, scratch[:n]...)
			s.drainAccumulator()
		}
		if err != nil {
			return
		}
	}
}

func (s *Session) drainAccumulator() {
	for {
		consumed, pkt := s.dec.TryDecrypt(s.accumulator)
		if consumed == 0 {
			return
		}
		s.dispatch(protocol.Packet(pkt))
		s.accumulator = s.accumulator[consumed:]
	}
}

// dispatch implements spec.md §4.2's precedence exactly: pop a waiter for
// the opcode first (and return without touching the handler); otherwise
// invoke the persistent handler; otherwise drop.
func (s *Session) dispatch(pkt protocol.Packet) {
	if len(pkt) < 2 {
		s.logger.WithField("len", len(pkt)).Warn("dropping undersized packet")
		return
	}
	op := pkt.Opcode()

	s.logger.WithFields(logrus.Fields{"opcode": op, "bytes": len(pkt)}).Debug("packet received")

	if w := s.popWaiter(op); w != nil {
		if w.resolve(WaitResult{Packet: pkt}) {
			return
		}
	}

	s.mapsMu.Lock()
	handler, ok := s.handlers[op]
	s.mapsMu.Unlock()
	if !ok {
		return
	}

	s.invokeHandler(op, handler, pkt)
}

// invokeHandler runs h, catching both returned errors and panics so a
// single bad handler never kills the receive loop (spec.md §4.2, §7).
func (s *Session) invokeHandler(op protocol.SendOp, h Handler, pkt protocol.Packet) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithFields(logrus.Fields{"opcode": op, "panic": r}).Error("packet handler panicked")
		}
	}()
	if err := h(pkt); err != nil {
		s.logger.WithFields(logrus.Fields{"opcode": op, "error": err}).Error("packet handler returned an error")
	}
}

// popWaiter removes and returns the first waiter queued for op, preserving
// FIFO order (spec.md §8 property 3). It doesn't check whether the waiter
// already timed out; resolve on an expired Waiter is a no-op (see
// Waiter.resolve), so dispatch falls through to the persistent handler in
// that case.
func (s *Session) popWaiter(op protocol.SendOp) *Waiter {
	s.mapsMu.Lock()
	defer s.mapsMu.Unlock()

	queue := s.waiters[op]
	if len(queue) == 0 {
		return nil
	}
	w := queue[0]
	s.waiters[op] = queue[1:]
	return w
}

// Dispose closes the socket, joins the receive goroutine (bounded wait),
// and cancels every pending waiter.
func (s *Session) Dispose() error {
	if s.disposed.Swap(true) {
		return nil
	}

	var closeErr error
	if s.conn != nil {
		closeErr = s.conn.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		s.logger.Warn("receive loop did not exit within 2s of Dispose")
	}

	s.mapsMu.Lock()
	for op, queue := range s.waiters {
		for _, w := range queue {
			w.resolve(WaitResult{Err: ErrCancelled})
		}
		delete(s.waiters, op)
	}
	s.mapsMu.Unlock()

	return closeErr
}
