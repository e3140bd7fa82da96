// Package loginflow implements the login-server state machine (C3): version
// exchange, credential submission, character-list collection, and the
// migration handoff to a game server. It composes internal/session's
// Send/WaitFor/On primitives the way dcrodman-archon's internal/login
// package composes its own transport primitives into a handler sequence,
// generalized here to a client driving the exchange instead of a server
// answering it.
package loginflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/ms2bot/internal/core"
	"github.com/kestrelnet/ms2bot/internal/core/binstruct"
	"github.com/kestrelnet/ms2bot/internal/protocol"
	"github.com/kestrelnet/ms2bot/internal/session"
)

// Flow drives one login session end to end. Not safe for concurrent use
// by more than one caller; the state machine is single-threaded by design
// (spec.md §4.3).
type Flow struct {
	logger *logrus.Logger
	cfg    *core.Config
	sess   *session.Session

	machineID [16]byte

	charsMu    sync.Mutex
	characters []CharacterEntry
	listDone   chan struct{}
	listOnce   sync.Once
}

// New returns a Flow ready to Connect. machineID is generated once per
// Flow via uuid.New(), satisfying spec.md §4.3's "per-client random
// 128-bit value, stable across the session."
func New(logger *logrus.Logger, cfg *core.Config) *Flow {
	return &Flow{
		logger:    logger,
		cfg:       cfg,
		sess:      session.New(logger, cfg.Protocol.Version),
		machineID: uuid.New(),
		listDone:  make(chan struct{}),
	}
}

// Session exposes the underlying transport, e.g. so a caller can Dispose
// it once the flow is done.
func (f *Flow) Session() *session.Session { return f.sess }

func (f *Flow) defaultWait() time.Duration {
	d, err := time.ParseDuration(f.cfg.Timeouts.DefaultWait)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// Connect dials the login server, registers a WaitFor(RequestLogin)
// before sending ResponseVersion, and resolves once RequestLogin arrives
// (spec.md §4.3).
func (f *Flow) Connect(ctx context.Context, host string, port int) error {
	if err := f.sess.Connect(ctx, host, port); err != nil {
		return fmt.Errorf("loginflow: connect: %w", err)
	}

	waiter := f.sess.WaitFor(protocol.RequestLogin, f.defaultWait())

	body := binstruct.NewWriter().
		Uint32(f.cfg.Protocol.Version).
		Int16(protocol.ResponseVersionUnknownField).
		Uint32(f.cfg.Protocol.Locale).
		Build()
	pkt := protocol.NewBuilder(protocol.ResponseVersion).Write(body).Bytes()

	if err := f.sess.Send(pkt); err != nil {
		return fmt.Errorf("loginflow: sending ResponseVersion: %w", err)
	}

	result := waiter.Wait()
	if result.Err != nil {
		return fmt.Errorf("loginflow: waiting for RequestLogin: %w", result.Err)
	}
	return nil
}

// Login installs the incremental CharacterList handler, submits
// credentials, and parses LoginResult. Only the first advertised
// character is extracted (spec.md §9's documented limitation).
func (f *Flow) Login(ctx context.Context, username, password string) (Result, error) {
	f.sess.On(protocol.CharacterList, f.handleCharacterList)

	waiter := f.sess.WaitFor(protocol.LoginResult, f.defaultWait())

	body := binstruct.NewWriter().
		Uint8(protocol.LoginCommandCharacterList).
		UnicodeLenPrefixed(username).
		UnicodeLenPrefixed(password).
		Int16(protocol.ResponseLoginReservedField).
		Bytes16(f.machineID).
		Build()
	pkt := protocol.NewBuilder(protocol.ResponseLogin).Write(body).Bytes()

	if err := f.sess.Send(pkt); err != nil {
		return Result{}, fmt.Errorf("loginflow: sending ResponseLogin: %w", err)
	}

	result := waiter.Wait()
	if result.Err != nil {
		return Result{}, fmt.Errorf("loginflow: waiting for LoginResult: %w", result.Err)
	}

	r := binstruct.NewReader(result.Packet.Body())
	state, err := r.Uint8()
	if err != nil {
		return Result{}, fmt.Errorf("loginflow: parsing LoginResult: %w", err)
	}
	if _, err := r.Int32(); err != nil {
		return Result{}, fmt.Errorf("loginflow: parsing LoginResult: %w", err)
	}
	banReason, err := r.Unicode(256)
	if err != nil {
		return Result{}, fmt.Errorf("loginflow: parsing LoginResult: %w", err)
	}
	accountID, err := r.Int64()
	if err != nil {
		return Result{}, fmt.Errorf("loginflow: parsing LoginResult: %w", err)
	}

	if state != 0 {
		return Result{Success: false, AccountID: accountID, ErrorCode: state, ErrorMessage: banReason}, nil
	}

	select {
	case <-f.listDone:
	case <-time.After(10 * time.Second):
		return Result{}, fmt.Errorf("loginflow: timed out waiting for character list")
	case <-ctx.Done():
		return Result{}, fmt.Errorf("loginflow: %w", ctx.Err())
	}

	f.charsMu.Lock()
	characters := append([]CharacterEntry(nil), f.characters...)
	f.charsMu.Unlock()

	return Result{Success: true, AccountID: accountID, Characters: characters}, nil
}

// handleCharacterList parses entries incrementally as they're broadcast
// and closes listDone on the terminal EndList sub-command. Only the first
// entry of a CommandEntries packet is decoded; a count greater than one is
// logged at warn level and the remaining entries are left unparsed
// (spec.md §9: the entry layout beyond the first field isn't fully known).
func (f *Flow) handleCharacterList(pkt protocol.Packet) error {
	r := binstruct.NewReader(pkt.Body())
	cmd, err := r.Uint8()
	if err != nil {
		return fmt.Errorf("loginflow: parsing CharacterList: %w", err)
	}

	switch cmd {
	case protocol.CharacterListCommandEntries:
		count, err := r.Uint8()
		if err != nil {
			return fmt.Errorf("loginflow: parsing CharacterList entry count: %w", err)
		}
		if count == 0 {
			return nil
		}
		if count > 1 {
			f.logger.WithField("count", count).Warn("server advertised more than one character, only the first will be used")
		}
		if _, err := r.Int64(); err != nil { // accountId, skipped
			return fmt.Errorf("loginflow: parsing CharacterList entry: %w", err)
		}
		characterID, err := r.Int64()
		if err != nil {
			return fmt.Errorf("loginflow: parsing CharacterList entry: %w", err)
		}
		name, err := r.Unicode(64)
		if err != nil {
			return fmt.Errorf("loginflow: parsing CharacterList entry: %w", err)
		}
		f.charsMu.Lock()
		f.characters = append(f.characters, CharacterEntry{CharacterID: characterID, Name: name})
		f.charsMu.Unlock()
	case protocol.CharacterListCommandEndList:
		f.listOnce.Do(func() { close(f.listDone) })
	}
	return nil
}

// SelectCharacter requests migration to the game server hosting
// characterID (spec.md §4.3).
func (f *Flow) SelectCharacter(ctx context.Context, characterID int64) (GameServerHandle, error) {
	waiter := f.sess.WaitFor(protocol.LoginToGame, 10*time.Second)

	body := binstruct.NewWriter().
		Uint8(protocol.CharacterManagementSelect).
		Int64(characterID).
		Int16(protocol.CharacterManagementWorldChannel).
		Build()
	pkt := protocol.NewBuilder(protocol.CharacterManagement).Write(body).Bytes()

	if err := f.sess.Send(pkt); err != nil {
		return GameServerHandle{}, fmt.Errorf("loginflow: sending CharacterManagement: %w", err)
	}

	result := waiter.Wait()
	if result.Err != nil {
		return GameServerHandle{}, fmt.Errorf("loginflow: waiting for LoginToGame: %w", result.Err)
	}

	r := binstruct.NewReader(result.Packet.Body())
	migrationError, err := r.Uint8()
	if err != nil {
		return GameServerHandle{}, fmt.Errorf("loginflow: parsing LoginToGame: %w", err)
	}
	if migrationError != 0 {
		return GameServerHandle{}, fmt.Errorf("loginflow: %w: code %d", session.ErrMigrationFailed, migrationError)
	}

	addrBytes, err := r.Bytes(4)
	if err != nil {
		return GameServerHandle{}, fmt.Errorf("loginflow: parsing LoginToGame: %w", err)
	}
	var addr [4]byte
	copy(addr[:], addrBytes)

	port, err := r.Uint16()
	if err != nil {
		return GameServerHandle{}, fmt.Errorf("loginflow: parsing LoginToGame: %w", err)
	}
	token, err := r.Uint64()
	if err != nil {
		return GameServerHandle{}, fmt.Errorf("loginflow: parsing LoginToGame: %w", err)
	}
	mapID, err := r.Int32()
	if err != nil {
		return GameServerHandle{}, fmt.Errorf("loginflow: parsing LoginToGame: %w", err)
	}

	return GameServerHandle{Address: addr, Port: port, Token: token, MapID: mapID}, nil
}

// MachineID returns the 128-bit value generated for this flow, resubmitted
// unchanged to the game server by gameflow.Connect.
func (f *Flow) MachineID() [16]byte { return f.machineID }
