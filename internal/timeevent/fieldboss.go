package timeevent

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kestrelnet/ms2bot/internal/timeevent/api"
)

// ErrConflict is returned by FieldBossLookup.Create when metadataId is
// already present. spec.md §9 leaves whether the scheduler should Dispose
// first before retrying as an open question; this module does not guess
// and surfaces the conflict to the caller unchanged.
var ErrConflict = errors.New("timeevent: a field boss manager already exists for this metadataId")

// FieldBossManager tracks one active field-boss window and the channels
// that have acknowledged it (spec.md §3).
type FieldBossManager struct {
	logger   *logrus.Logger
	registry ChannelRegistry

	metadataID         int64
	eventID            int64
	endTick            int64
	spawnTimestamp     int64
	nextSpawnTimestamp int64
	metadata           BossMetadata

	mu            sync.Mutex
	aliveChannels map[int32]struct{}
}

func newFieldBossManager(logger *logrus.Logger, registry ChannelRegistry, metadataID, eventID, endTick, nextSpawnTimestamp int64, metadata BossMetadata) *FieldBossManager {
	return &FieldBossManager{
		logger:             logger,
		registry:           registry,
		metadataID:         metadataID,
		eventID:            eventID,
		endTick:            endTick,
		nextSpawnTimestamp: nextSpawnTimestamp,
		metadata:           metadata,
		aliveChannels:      make(map[int32]struct{}),
	}
}

func (m *FieldBossManager) snapshot() FieldBossSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := make([]int32, 0, len(m.aliveChannels))
	for c := range m.aliveChannels {
		channels = append(channels, c)
	}
	return FieldBossSnapshot{
		MetadataID:         m.metadataID,
		EventID:            m.eventID,
		SpawnTimestamp:     m.spawnTimestamp,
		NextSpawnTimestamp: m.nextSpawnTimestamp,
		AliveChannels:      channels,
	}
}

// broadcast sends kind to every registered channel. On success, and only
// for kind "announce", the channel is recorded into aliveChannels
// (spec.md §4.5: "Announce additionally records the channel ... iff its
// call succeeded"). A codes.Unavailable failure is logged as a warning; any
// other failure is logged as an error. Neither aborts the broadcast.
func (m *FieldBossManager) broadcast(ctx context.Context, kind string) {
	notification := &api.FieldBossNotification{MetadataID: m.metadataID, EventID: m.eventID, Kind: kind}

	for _, channel := range m.registry.Channels() {
		_, err := channel.Client.NotifyFieldBossEvent(ctx, notification)
		if err != nil {
			if status.Code(err) == codes.Unavailable {
				m.logger.WithFields(logrus.Fields{"channel": channel.ID, "metadataId": m.metadataID}).Warn("channel unavailable for field boss broadcast")
			} else {
				m.logger.WithFields(logrus.Fields{"channel": channel.ID, "metadataId": m.metadataID, "error": err}).Error("field boss broadcast failed")
			}
			continue
		}
		if kind == "announce" {
			m.mu.Lock()
			m.aliveChannels[channel.ID] = struct{}{}
			m.mu.Unlock()
		}
	}
}

// Announce broadcasts the boss's spawn to every connected channel.
func (m *FieldBossManager) Announce(ctx context.Context) { m.broadcast(ctx, "announce") }

// WarnChannels broadcasts the boss's impending despawn.
func (m *FieldBossManager) WarnChannels(ctx context.Context) { m.broadcast(ctx, "warn") }

// Dispose broadcasts that the boss window has closed. It does not remove
// the manager from its FieldBossLookup; that's the scheduler's job.
func (m *FieldBossManager) Dispose(ctx context.Context) { m.broadcast(ctx, "dispose") }

func (m *FieldBossManager) removeChannel(channel int32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.aliveChannels, channel)
}

// FieldBossLookup is the concurrent metadataId -> FieldBossManager map
// described in spec.md §4.5, plus the atomic eventId allocator.
type FieldBossLookup struct {
	logger      *logrus.Logger
	registry    ChannelRegistry
	nextEventID int64

	mu       sync.RWMutex
	managers map[int64]*FieldBossManager
}

func NewFieldBossLookup(logger *logrus.Logger, registry ChannelRegistry) *FieldBossLookup {
	return &FieldBossLookup{
		logger:   logger,
		registry: registry,
		managers: make(map[int64]*FieldBossManager),
	}
}

// Create allocates a new eventId and inserts a manager iff metadataId is
// absent; returns ErrConflict otherwise.
func (l *FieldBossLookup) Create(metadataID int64, metadata BossMetadata, endTick, nextSpawnTimestamp int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.managers[metadataID]; exists {
		return 0, ErrConflict
	}

	eventID := atomic.AddInt64(&l.nextEventID, 1)
	l.managers[metadataID] = newFieldBossManager(l.logger, l.registry, metadataID, eventID, endTick, nextSpawnTimestamp, metadata)
	return eventID, nil
}

// GetAll returns a snapshot of every tracked field boss.
func (l *FieldBossLookup) GetAll() []FieldBossSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]FieldBossSnapshot, 0, len(l.managers))
	for _, m := range l.managers {
		out = append(out, m.snapshot())
	}
	return out
}

// Get returns the manager for metadataID, or nil if none is tracked.
func (l *FieldBossLookup) Get(metadataID int64) *FieldBossManager {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.managers[metadataID]
}

// RemoveChannel removes channel from the alive set of the manager tracking
// metadataID. The manager itself is never disposed here (spec.md §4.5).
func (l *FieldBossLookup) RemoveChannel(metadataID int64, channel int32) error {
	l.mu.RLock()
	m, ok := l.managers[metadataID]
	l.mu.RUnlock()
	if !ok {
		return nil
	}
	m.removeChannel(channel)
	return nil
}

// Remove drops the manager for metadataID entirely, for use by the
// external scheduler once a boss window closes.
func (l *FieldBossLookup) Remove(metadataID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.managers, metadataID)
}
