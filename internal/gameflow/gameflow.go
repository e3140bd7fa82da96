// Package gameflow implements the game-server state machine (C4): key
// authentication, field entry, combat verbs, and the persistent handlers
// that keep the client alive against periodic server probes. It is the
// client-side counterpart to dcrodman-archon's block/ship packet handlers,
// generalized from "answer requests" to "drive an exchange and track the
// replies."
package gameflow

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kestrelnet/ms2bot/internal/core"
	"github.com/kestrelnet/ms2bot/internal/core/binstruct"
	"github.com/kestrelnet/ms2bot/internal/protocol"
	"github.com/kestrelnet/ms2bot/internal/session"
)

// Flow drives one game-server session: field entry, combat, and keep-alive.
type Flow struct {
	logger *logrus.Logger
	cfg    *core.Config
	sess   *session.Session

	accountID int64
	token     uint64
	machineID [16]byte

	startedAt time.Time

	fieldMu sync.Mutex
	field   FieldState

	// skillUIDCounter is pre-incremented so the first allocation returns 2,
	// per spec.md §4.4 ("first ID is 2 because attack allocates another
	// from the same counter").
	skillUIDCounter int64
}

// New returns a Flow ready to Connect. accountID and token come from
// loginflow.SelectCharacter; machineID must be the same value submitted at
// login (spec.md §4.4).
func New(logger *logrus.Logger, cfg *core.Config, accountID int64, token uint64, machineID [16]byte) *Flow {
	return &Flow{
		logger:          logger,
		cfg:             cfg,
		sess:            session.New(logger, cfg.Protocol.Version),
		accountID:       accountID,
		token:           token,
		machineID:       machineID,
		skillUIDCounter: 1,
	}
}

// Session exposes the underlying transport.
func (f *Flow) Session() *session.Session { return f.sess }

// Field returns a snapshot of the client-tracked field state.
func (f *Flow) Field() FieldState {
	f.fieldMu.Lock()
	defer f.fieldMu.Unlock()
	npcs := make(map[int32]NpcInfo, len(f.field.NPCs))
	for k, v := range f.field.NPCs {
		npcs[k] = v
	}
	return FieldState{MapID: f.field.MapID, OwnObjectID: f.field.OwnObjectID, Position: f.field.Position, NPCs: npcs}
}

func (f *Flow) fieldWait() time.Duration {
	d, err := time.ParseDuration(f.cfg.Timeouts.FieldWait)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// clientTickMs is the client's local monotonic clock, in milliseconds
// since Connect, echoed back in ResponseHeartbeat and used as the
// clientTick field of outbound skill packets.
func (f *Flow) clientTickMs() int32 {
	return int32(time.Since(f.startedAt).Milliseconds())
}

// Connect performs the game-server handshake described in spec.md §4.4:
// dial, install persistent handlers before authenticating, then run the
// key-auth and field-entry exchanges.
func (f *Flow) Connect(ctx context.Context, address [4]byte, port uint16) error {
	f.startedAt = time.Now()
	f.field.NPCs = make(map[int32]NpcInfo)

	host := fmt.Sprintf("%d.%d.%d.%d", address[0], address[1], address[2], address[3])
	if err := f.sess.Connect(ctx, host, int(port)); err != nil {
		return fmt.Errorf("gameflow: connect: %w", err)
	}

	f.installHandlers()

	keyWaiter := f.sess.WaitFor(protocol.RequestKey, f.fieldWait())
	versionBody := binstruct.NewWriter().
		Uint32(f.cfg.Protocol.Version).
		Int16(protocol.ResponseVersionUnknownField).
		Uint32(f.cfg.Protocol.Locale).
		Build()
	if err := f.sess.Send(protocol.NewBuilder(protocol.ResponseVersion).Write(versionBody).Bytes()); err != nil {
		return fmt.Errorf("gameflow: sending ResponseVersion: %w", err)
	}
	if result := keyWaiter.Wait(); result.Err != nil {
		return fmt.Errorf("gameflow: waiting for RequestKey: %w", result.Err)
	}

	fieldEnterWaiter := f.sess.WaitFor(protocol.RequestFieldEnter, f.fieldWait())
	keyBody := binstruct.NewWriter().
		Int64(f.accountID).
		Uint64(f.token).
		Bytes16(f.machineID).
		Build()
	if err := f.sess.Send(protocol.NewBuilder(protocol.ResponseKey).Write(keyBody).Bytes()); err != nil {
		return fmt.Errorf("gameflow: sending ResponseKey: %w", err)
	}

	result := fieldEnterWaiter.Wait()
	if result.Err != nil {
		return fmt.Errorf("gameflow: waiting for RequestFieldEnter: %w", result.Err)
	}

	r := binstruct.NewReader(result.Packet.Body())
	migrationError, err := r.Uint8()
	if err != nil {
		return fmt.Errorf("gameflow: parsing RequestFieldEnter: %w", err)
	}
	mapID, err := r.Int32()
	if err != nil {
		return fmt.Errorf("gameflow: parsing RequestFieldEnter: %w", err)
	}
	if _, err := r.Uint8(); err != nil { // fieldType, not tracked
		return fmt.Errorf("gameflow: parsing RequestFieldEnter: %w", err)
	}
	if _, err := r.Uint8(); err != nil { // instanceType, not tracked
		return fmt.Errorf("gameflow: parsing RequestFieldEnter: %w", err)
	}
	if _, err := r.Int32(); err != nil { // instanceId, not tracked
		return fmt.Errorf("gameflow: parsing RequestFieldEnter: %w", err)
	}
	if _, err := r.Int32(); err != nil { // dungeonId, not tracked
		return fmt.Errorf("gameflow: parsing RequestFieldEnter: %w", err)
	}
	position, err := readVec3(r)
	if err != nil {
		return fmt.Errorf("gameflow: parsing RequestFieldEnter: %w", err)
	}
	if migrationError != 0 {
		return fmt.Errorf("gameflow: %w: code %d", session.ErrMigrationFailed, migrationError)
	}

	f.fieldMu.Lock()
	f.field.MapID = mapID
	f.field.Position = position
	f.fieldMu.Unlock()

	fieldKeyBody := binstruct.NewWriter().Int32(f.cfg.Protocol.FieldKey).Build()
	if err := f.sess.Send(protocol.NewBuilder(protocol.ResponseFieldEnter).Write(fieldKeyBody).Bytes()); err != nil {
		return fmt.Errorf("gameflow: sending ResponseFieldEnter: %w", err)
	}
	return nil
}

func readVec3(r *binstruct.Reader) (protocol.Vec3, error) {
	x, err := r.Float32()
	if err != nil {
		return protocol.Vec3{}, err
	}
	y, err := r.Float32()
	if err != nil {
		return protocol.Vec3{}, err
	}
	z, err := r.Float32()
	if err != nil {
		return protocol.Vec3{}, err
	}
	return protocol.Vec3{X: x, Y: y, Z: z}, nil
}

func writeVec3(w *binstruct.Writer, v protocol.Vec3) *binstruct.Writer {
	return w.Float32(v.X).Float32(v.Y).Float32(v.Z)
}

// installHandlers wires the persistent handlers spec.md §4.4 requires to
// be live before authenticating, so the server's immediate post-entry
// broadcasts are never dropped.
func (f *Flow) installHandlers() {
	f.sess.On(protocol.ResponseTimeSync, f.handleResponseTimeSync)
	f.sess.On(protocol.RequestHeartbeat, f.handleRequestHeartbeat)
	f.sess.On(protocol.FieldAddUser, f.handleFieldAddUser)
	f.sess.On(protocol.FieldAddNpc, f.handleFieldAddNpc)
	f.sess.On(protocol.FieldRemoveNpc, f.handleFieldRemoveNpc)
	f.sess.On(protocol.SkillDamage, f.handleSkillDamage)
}

const timeSyncServerRequest uint8 = 2

func (f *Flow) handleResponseTimeSync(pkt protocol.Packet) error {
	r := binstruct.NewReader(pkt.Body())
	cmd, err := r.Uint8()
	if err != nil {
		return fmt.Errorf("gameflow: parsing ResponseTimeSync: %w", err)
	}
	if cmd != timeSyncServerRequest {
		return nil
	}
	body := binstruct.NewWriter().Uint8(0).Int32(0).Build()
	return f.sess.Send(protocol.NewBuilder(protocol.TimeSync).Write(body).Bytes())
}

func (f *Flow) handleRequestHeartbeat(pkt protocol.Packet) error {
	r := binstruct.NewReader(pkt.Body())
	serverTick, err := r.Int32()
	if err != nil {
		return fmt.Errorf("gameflow: parsing RequestHeartbeat: %w", err)
	}
	body := binstruct.NewWriter().Int32(serverTick).Int32(f.clientTickMs()).Build()
	return f.sess.Send(protocol.NewBuilder(protocol.ResponseHeartbeat).Write(body).Bytes())
}

func (f *Flow) handleFieldAddUser(pkt protocol.Packet) error {
	r := binstruct.NewReader(pkt.Body())
	objectID, err := r.Int32()
	if err != nil {
		return fmt.Errorf("gameflow: parsing FieldAddUser: %w", err)
	}

	f.fieldMu.Lock()
	if f.field.OwnObjectID == 0 {
		f.field.OwnObjectID = objectID
	}
	f.fieldMu.Unlock()
	return nil
}

func (f *Flow) handleFieldAddNpc(pkt protocol.Packet) error {
	info, err := parseNpcInfo(pkt)
	if err != nil {
		return fmt.Errorf("gameflow: parsing FieldAddNpc: %w", err)
	}
	f.fieldMu.Lock()
	f.field.NPCs[info.ObjectID] = info
	f.fieldMu.Unlock()
	return nil
}

func (f *Flow) handleFieldRemoveNpc(pkt protocol.Packet) error {
	r := binstruct.NewReader(pkt.Body())
	objectID, err := r.Int32()
	if err != nil {
		return fmt.Errorf("gameflow: parsing FieldRemoveNpc: %w", err)
	}
	f.fieldMu.Lock()
	delete(f.field.NPCs, objectID)
	f.fieldMu.Unlock()
	return nil
}

func (f *Flow) handleSkillDamage(pkt protocol.Packet) error {
	f.logger.WithField("bytes", len(pkt)).Debug("unsolicited SkillDamage observed")
	return nil
}

func parseNpcInfo(pkt protocol.Packet) (NpcInfo, error) {
	r := binstruct.NewReader(pkt.Body())
	objectID, err := r.Int32()
	if err != nil {
		return NpcInfo{}, err
	}
	npcID, err := r.Int32()
	if err != nil {
		return NpcInfo{}, err
	}
	position, err := readVec3(r)
	if err != nil {
		return NpcInfo{}, err
	}
	return NpcInfo{ObjectID: objectID, NpcID: npcID, Position: position}, nil
}

// SpawnNPC issues the "/npc <id>" chat command and waits for the
// resulting FieldAddNpc broadcast, inserting it into the tracked field
// state directly from the waiter result rather than the persistent
// handler (spec.md §4.2's documented waiter-precedence consequence: the
// handler never sees a packet a waiter already consumed). A timeout
// returns (nil, nil): the spawn may simply have been denied.
func (f *Flow) SpawnNPC(npcID int) (*NpcInfo, error) {
	waiter := f.sess.WaitFor(protocol.FieldAddNpc, 5*time.Second)

	message := fmt.Sprintf("/npc %d", npcID)
	body := binstruct.NewWriter().
		Uint32(0).
		UnicodeLenPrefixed(message).
		UnicodeLenPrefixed("").
		Int64(0).
		Build()
	if err := f.sess.Send(protocol.NewBuilder(protocol.UserChat).Write(body).Bytes()); err != nil {
		return nil, fmt.Errorf("gameflow: sending UserChat: %w", err)
	}

	result := waiter.Wait()
	if result.Err != nil {
		return nil, nil
	}

	info, err := parseNpcInfo(result.Packet)
	if err != nil {
		return nil, fmt.Errorf("gameflow: parsing FieldAddNpc: %w", err)
	}

	f.fieldMu.Lock()
	f.field.NPCs[info.ObjectID] = info
	f.fieldMu.Unlock()

	return &info, nil
}

// CastSkill allocates a skillUid, sends Skill(Use), and waits for the
// server's SkillUse acknowledgement. A timeout is logged but not fatal:
// the allocated skillUid is still returned so the caller may proceed to
// AttackTarget.
func (f *Flow) CastSkill(skillID int32, level int16) (int64, error) {
	skillUID := atomic.AddInt64(&f.skillUIDCounter, 1)

	waiter := f.sess.WaitFor(protocol.SkillUse, 5*time.Second)

	position := f.Field().Position
	w := binstruct.NewWriter().
		Uint8(protocol.SkillSubUse).
		Int64(skillUID).
		Int32(0). // serverTick, unknown to the client
		Int32(skillID).
		Int16(level).
		Uint8(0) // motionPoint
	writeVec3(w, position)
	writeVec3(w, protocol.Vec3{Z: 1}) // direction
	writeVec3(w, protocol.Vec3{})     // rotation
	w.Float32(0).                     // rotate2Z
				Int32(f.clientTickMs()).
				Bool(false). // unknown
				Int64(0).    // itemUid
				Bool(false)  // isHold

	if err := f.sess.Send(protocol.NewBuilder(protocol.Skill).Write(w.Build()).Bytes()); err != nil {
		return skillUID, fmt.Errorf("gameflow: sending Skill(Use): %w", err)
	}

	if result := waiter.Wait(); result.Err != nil {
		f.logger.WithFields(logrus.Fields{"skillId": skillID, "skillUid": skillUID, "error": result.Err}).Warn("timed out waiting for SkillUse acknowledgement")
	}

	return skillUID, nil
}

// AttackTarget allocates a targetUid from the same counter as CastSkill
// and sends Skill(Attack, Target) against the first targetCount entries of
// targetObjectIDs. Pre-condition: len(targetObjectIDs) >= targetCount.
func (f *Flow) AttackTarget(skillUID int64, targetObjectIDs []int32, targetCount int) error {
	if len(targetObjectIDs) < targetCount {
		return fmt.Errorf("gameflow: AttackTarget: %w: %d target IDs given, targetCount %d", ErrInvalidArgument, len(targetObjectIDs), targetCount)
	}

	targetUID := atomic.AddInt64(&f.skillUIDCounter, 1)

	waiter := f.sess.WaitFor(protocol.SkillDamage, 5*time.Second)

	impactPos := f.Field().Position
	w := binstruct.NewWriter().
		Uint8(protocol.SkillSubAttack).
		Uint8(protocol.SkillTargetTarget).
		Int64(skillUID).
		Int64(targetUID)
	writeVec3(w, impactPos)
	writeVec3(w, impactPos)
	writeVec3(w, protocol.Vec3{Z: 1}) // direction
	w.Uint8(0).                       // attackPoint
				Uint8(uint8(targetCount)).
				Int32(0) // iterations
	for i := 0; i < targetCount; i++ {
		w.Int32(targetObjectIDs[i]).Uint8(0)
	}

	if err := f.sess.Send(protocol.NewBuilder(protocol.Skill).Write(w.Build()).Bytes()); err != nil {
		return fmt.Errorf("gameflow: sending Skill(Attack): %w", err)
	}

	if result := waiter.Wait(); result.Err != nil {
		f.logger.WithFields(logrus.Fields{"targetObjectIds": targetObjectIDs[:targetCount], "error": result.Err}).Warn("timed out waiting for SkillDamage")
	}
	return nil
}

// StayAlive blocks until ctx is cancelled; all work happens in the
// receive loop's persistent handlers.
func (f *Flow) StayAlive(ctx context.Context) error {
	<-ctx.Done()
	return nil
}
