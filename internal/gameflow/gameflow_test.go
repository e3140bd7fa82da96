package gameflow

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/ms2bot/internal/cipher"
	"github.com/kestrelnet/ms2bot/internal/core"
	"github.com/kestrelnet/ms2bot/internal/core/binstruct"
	"github.com/kestrelnet/ms2bot/internal/protocol"
	"github.com/kestrelnet/ms2bot/internal/session"
)

const (
	testVersion   = uint32(12)
	testServerRIV = 0xAABBCCDD
	testServerSIV = 0x11223344
	testBlockIV   = 0x55667788
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(discardWriter{})
	return logger
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func testConfig() *core.Config {
	cfg := core.DefaultConfig()
	cfg.Protocol.Version = testVersion
	cfg.Timeouts.FieldWait = "2s"
	return cfg
}

// fakeGameServer plays the server side of the game-server handshake and
// field-entry exchange, grounded the same way as loginflow's fake server
// harness on cipher_test.go's TestIVHandshakeSync.
type fakeGameServer struct {
	t    *testing.T
	conn net.Conn
	enc  *cipher.Encryptor
	dec  *cipher.Decryptor
}

func acceptFakeGameServer(t *testing.T, ln net.Listener) *fakeGameServer {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Errorf("accept: %v", err)
		return &fakeGameServer{t: t}
	}
	return &fakeGameServer{t: t, conn: conn}
}

func (s *fakeGameServer) handshake() {
	s.t.Helper()
	if s.conn == nil {
		return
	}

	payload := make([]byte, 18)
	binary.LittleEndian.PutUint16(payload[0:2], uint16(protocol.RequestVersion))
	binary.LittleEndian.PutUint32(payload[2:6], testVersion)
	binary.LittleEndian.PutUint32(payload[6:10], testServerRIV)
	binary.LittleEndian.PutUint32(payload[10:14], testServerSIV)
	binary.LittleEndian.PutUint32(payload[14:18], testBlockIV)

	s.enc = cipher.NewEncryptor(testVersion, testServerSIV, testBlockIV)
	s.dec = cipher.NewDecryptor(testVersion, testServerRIV, testBlockIV)

	frame := s.enc.WriteHeader(1, payload)
	if _, err := s.conn.Write(frame); err != nil {
		s.t.Errorf("writing handshake: %v", err)
	}
}

func (s *fakeGameServer) send(op protocol.SendOp, body []byte) {
	s.t.Helper()
	if s.conn == nil {
		return
	}
	pkt := make([]byte, 2+len(body))
	binary.LittleEndian.PutUint16(pkt[0:2], uint16(op))
	copy(pkt[2:], body)

	if _, err := s.conn.Write(s.enc.Encrypt(pkt)); err != nil {
		s.t.Errorf("writing %v: %v", op, err)
	}
}

func (s *fakeGameServer) recv() (protocol.RecvOp, []byte) {
	s.t.Helper()
	if s.conn == nil {
		return 0, nil
	}

	var accumulator []byte
	buf := make([]byte, 4096)
	for {
		if len(accumulator) >= 2 {
			frameLen := int(binary.LittleEndian.Uint16(accumulator[0:2]))
			if frameLen >= 2 && len(accumulator) >= frameLen {
				_, plain := s.dec.TryDecrypt(accumulator)
				op := protocol.RecvOp(binary.LittleEndian.Uint16(plain[0:2]))
				return op, plain[2:]
			}
		}
		n, err := s.conn.Read(buf)
		if err != nil {
			s.t.Errorf("reading client frame: %v", err)
			return 0, nil
		}
		accumulator = append(accumulator, buf[:n]...)
	}
}

func (s *fakeGameServer) close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func newListener(t *testing.T) (net.Listener, [4]byte, uint16) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	return ln, [4]byte{127, 0, 0, 1}, uint16(addr.Port)
}

// TestFlow_Connect_FieldEntry reproduces scenario S4: the client
// authenticates and enters the field, and its tracked FieldState reflects
// the server's RequestFieldEnter payload.
func TestFlow_Connect_FieldEntry(t *testing.T) {
	ln, address, port := newListener(t)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv := acceptFakeGameServer(t, ln)
		defer srv.close()
		srv.handshake()

		if op, _ := srv.recv(); op != protocol.ResponseVersion {
			t.Errorf("want ResponseVersion, got %v", op)
			return
		}
		srv.send(protocol.RequestKey, nil)

		if op, _ := srv.recv(); op != protocol.ResponseKey {
			t.Errorf("want ResponseKey, got %v", op)
			return
		}

		fieldEnter := binstruct.NewWriter().
			Uint8(0).       // migrationError
			Int32(42).      // mapId
			Uint8(0).       // fieldType
			Uint8(0).       // instanceType
			Int32(0).       // instanceId
			Int32(0).       // dungeonId
			Float32(1.5).   // position.x
			Float32(2.5).   // position.y
			Float32(3.5).   // position.z
			Build()
		srv.send(protocol.RequestFieldEnter, fieldEnter)

		op, _ := srv.recv() // ResponseFieldEnter
		if op != protocol.ResponseFieldEnter {
			t.Errorf("want ResponseFieldEnter, got %v", op)
		}
	}()

	flow := New(testLogger(), testConfig(), 1001, 0xFEEDFACE, [16]byte{1, 2, 3})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := flow.Connect(ctx, address, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-done

	field := flow.Field()
	if field.MapID != 42 {
		t.Errorf("MapID = %d, want 42", field.MapID)
	}
	if field.Position.X != 1.5 || field.Position.Y != 2.5 || field.Position.Z != 3.5 {
		t.Errorf("Position = %+v, want {1.5 2.5 3.5}", field.Position)
	}
}

// TestFlow_Connect_MigrationFailure reproduces the migrationError branch:
// a non-zero code surfaces as session.ErrMigrationFailed and the field
// state is never populated.
func TestFlow_Connect_MigrationFailure(t *testing.T) {
	ln, address, port := newListener(t)
	defer ln.Close()

	go func() {
		srv := acceptFakeGameServer(t, ln)
		defer srv.close()
		srv.handshake()

		srv.recv() // ResponseVersion
		srv.send(protocol.RequestKey, nil)

		srv.recv() // ResponseKey
		fieldEnter := binstruct.NewWriter().
			Uint8(3). // migrationError
			Int32(0).
			Uint8(0).
			Uint8(0).
			Int32(0).
			Int32(0).
			Float32(0).
			Float32(0).
			Float32(0).
			Build()
		srv.send(protocol.RequestFieldEnter, fieldEnter)
	}()

	flow := New(testLogger(), testConfig(), 1001, 0xFEEDFACE, [16]byte{1, 2, 3})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := flow.Connect(ctx, address, port)
	if err == nil {
		t.Fatal("expected a migration error, got nil")
	}
	if !errors.Is(err, session.ErrMigrationFailed) {
		t.Errorf("Connect error = %v, want session.ErrMigrationFailed", err)
	}
	if field := flow.Field(); field.MapID != 0 {
		t.Errorf("MapID = %d after a failed migration, want 0", field.MapID)
	}
}
