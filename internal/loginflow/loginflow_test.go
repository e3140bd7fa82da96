package loginflow

import (
	"context"
	"encoding/binary"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/ms2bot/internal/cipher"
	"github.com/kestrelnet/ms2bot/internal/core"
	"github.com/kestrelnet/ms2bot/internal/core/binstruct"
	"github.com/kestrelnet/ms2bot/internal/protocol"
)

const (
	testVersion   = uint32(12)
	testServerRIV = 0xDEADBEEF
	testServerSIV = 0xCAFEBABE
	testBlockIV   = 0x12345678
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
	cfg.Timeouts.DefaultWait = "2s"
	return cfg
}

// fakeLoginServer plays the server side of the handshake and login
// exchange over a real TCP connection, using the same cipher package the
// client does, grounded on cipher_test.go's TestIVHandshakeSync.
type fakeLoginServer struct {
	t    *testing.T
	conn net.Conn
	enc  *cipher.Encryptor
	dec  *cipher.Decryptor
}

// acceptFakeLoginServer runs on the test's server goroutine, so it reports
// failures with Errorf rather than Fatalf: FailNow is only safe to call
// from the goroutine running the test itself.
func acceptFakeLoginServer(t *testing.T, ln net.Listener) *fakeLoginServer {
	t.Helper()
	conn, err := ln.Accept()
	if err != nil {
		t.Errorf("accept: %v", err)
		return &fakeLoginServer{t: t}
	}
	return &fakeLoginServer{t: t, conn: conn}
}

// handshake writes the plaintext RequestVersion handshake and sets up this
// harness's matching swapped cipher pair.
func (s *fakeLoginServer) handshake() {
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

	// The server's encryptor sends on serverSIV (the client's decryptor
	// IV); its decryptor reads on serverRIV (the client's encryptor IV).
	s.enc = cipher.NewEncryptor(testVersion, testServerSIV, testBlockIV)
	s.dec = cipher.NewDecryptor(testVersion, testServerRIV, testBlockIV)

	frame := s.enc.WriteHeader(1, payload)
	if _, err := s.conn.Write(frame); err != nil {
		s.t.Errorf("writing handshake: %v", err)
	}
}

// send encrypts and writes a client-bound packet.
func (s *fakeLoginServer) send(op protocol.SendOp, body []byte) {
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

// recv reads and decrypts exactly one client-sent frame.
func (s *fakeLoginServer) recv() (protocol.RecvOp, []byte) {
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

func (s *fakeLoginServer) close() {
	if s.conn != nil {
		s.conn.Close()
	}
}

func newListener(t *testing.T) (net.Listener, string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().(*net.TCPAddr)
	return ln, "127.0.0.1", addr.Port
}

func TestFlow_Connect(t *testing.T) {
	ln, host, port := newListener(t)
	defer ln.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv := acceptFakeLoginServer(t, ln)
		defer srv.close()
		srv.handshake()

		if op, _ := srv.recv(); op != protocol.ResponseVersion {
			t.Errorf("want ResponseVersion, got %v", op)
			return
		}
		srv.send(protocol.RequestLogin, nil)
	}()

	flow := New(testLogger(), testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := flow.Connect(ctx, host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	<-done
}

func TestFlow_Login_HappyPath(t *testing.T) {
	ln, host, port := newListener(t)
	defer ln.Close()

	go func() {
		srv := acceptFakeLoginServer(t, ln)
		defer srv.close()
		srv.handshake()

		srv.recv() // ResponseVersion
		srv.send(protocol.RequestLogin, nil)

		op, body := srv.recv() // ResponseLogin
		if op != protocol.ResponseLogin {
			t.Errorf("want ResponseLogin, got %v", op)
			return
		}
		r := binstruct.NewReader(body)
		r.Uint8() // command
		username, _ := r.UnicodeLenPrefixed()
		if username != "alice" {
			t.Errorf("username = %q, want alice", username)
		}

		entries := binstruct.NewWriter().
			Uint8(protocol.CharacterListCommandEntries).
			Uint8(1).
			Int64(555).
			Int64(1001).
			Bytes(binstruct.ToUTF16("Hero")).
			Build()
		srv.send(protocol.CharacterList, entries)

		endList := binstruct.NewWriter().Uint8(protocol.CharacterListCommandEndList).Build()
		srv.send(protocol.CharacterList, endList)

		loginResult := binstruct.NewWriter().
			Uint8(0).
			Int32(0).
			UnicodeLenPrefixed("").
			Int64(555).
			Build()
		srv.send(protocol.LoginResult, loginResult)
	}()

	flow := New(testLogger(), testConfig())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := flow.Connect(ctx, host, port); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	result, err := flow.Login(ctx, "alice", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !result.Success || result.AccountID != 555 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(result.Characters) != 1 || result.Characters[0].CharacterID != 1001 || result.Characters[0].Name != "Hero" {
		t.Fatalf("unexpected characters: %+v", result.Characters)
	}
}
