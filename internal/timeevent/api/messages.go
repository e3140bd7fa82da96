package api

import "google.golang.org/protobuf/types/known/emptypb"

// TimeEventRequest is the tagged union spec.md §4.5 specifies: exactly one
// field is populated per call.
type TimeEventRequest struct {
	JoinGlobalPortal     *JoinGlobalPortalRequest `json:"joinGlobalPortal,omitempty"`
	GetGlobalPortal      *emptypb.Empty           `json:"getGlobalPortal,omitempty"`
	GetActiveFieldBosses *emptypb.Empty           `json:"getActiveFieldBosses,omitempty"`
	FieldBossKilled      *FieldBossKilledRequest  `json:"fieldBossKilled,omitempty"`
}

// TimeEventResponse carries at most one populated sub-message, matching
// whichever request variant was sent.
type TimeEventResponse struct {
	GlobalPortal       *GlobalPortalInfo             `json:"globalPortal,omitempty"`
	GlobalPortalStatus *GetGlobalPortalResponse      `json:"globalPortalStatus,omitempty"`
	FieldBosses        *GetActiveFieldBossesResponse `json:"fieldBosses,omitempty"`
}

type JoinGlobalPortalRequest struct {
	EventID int64 `json:"eventId"`
	Index   int32 `json:"index"`
}

// GlobalPortalInfo is left unset (TimeEventResponse.GlobalPortal is nil)
// when the selected entry's mapId==0 or the eventId/active-portal checks
// fail (spec.md §4.5, scenario S6).
type GlobalPortalInfo struct {
	Channel  int32  `json:"channel"`
	RoomID   string `json:"roomId"`
	MapID    int32  `json:"mapId"`
	PortalID int32  `json:"portalId"`
}

type GetGlobalPortalResponse struct {
	MetadataID int64 `json:"metadataId"`
	EventID    int64 `json:"eventId"`
}

type FieldBossInfo struct {
	MetadataID         int64   `json:"metadataId"`
	EventID            int64   `json:"eventId"`
	SpawnTimestamp     int64   `json:"spawnTimestamp"`
	NextSpawnTimestamp int64   `json:"nextSpawnTimestamp"`
	AliveChannels      []int32 `json:"aliveChannels"`
}

type GetActiveFieldBossesResponse struct {
	Bosses []*FieldBossInfo `json:"bosses"`
}

type FieldBossKilledRequest struct {
	MetadataID int64 `json:"metadataId"`
	Channel    int32 `json:"channel"`
}

// FieldBossNotification is the sub-message a FieldBossManager broadcasts to
// every connected game channel (spec.md §4.5's Announce/WarnChannels/Dispose).
type FieldBossNotification struct {
	MetadataID int64  `json:"metadataId"`
	EventID    int64  `json:"eventId"`
	Kind       string `json:"kind"` // "announce" | "warn" | "dispose"
}

// CreateGlobalPortalRoomRequest is sent to the channel a global portal is
// bound to the first time a given entry index is joined.
type CreateGlobalPortalRoomRequest struct {
	MapID int32 `json:"mapId"`
	Index int32 `json:"index"`
}

type CreateGlobalPortalRoomResponse struct {
	RoomID string `json:"roomId"`
}
