package timeevent

import "time"

// BossMetadata is the scheduling window a field boss's manager is created
// from (spec.md §4.5's "spawn-time computation").
type BossMetadata struct {
	StartTime time.Time
	EndTime   time.Time
	CycleTime time.Duration
}

// GlobalPortalEntry is one destination offered by an active global portal.
type GlobalPortalEntry struct {
	MapID    int32
	PortalID int32
	Name     string
}

// GlobalPortal is the payload of the one active global portal, if any.
type GlobalPortal struct {
	MetadataID int64
	EventID    int64
	Entries    []GlobalPortalEntry
}

// FieldBossSnapshot is the read-only view GetAll/GetActiveFieldBosses
// returns for one boss manager.
type FieldBossSnapshot struct {
	MetadataID         int64
	EventID            int64
	SpawnTimestamp     int64
	NextSpawnTimestamp int64
	AliveChannels      []int32
}
