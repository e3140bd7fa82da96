package gameflow

import "github.com/kestrelnet/ms2bot/internal/protocol"

// NpcInfo is the parsed body of a FieldAddNpc packet, returned by SpawnNPC.
type NpcInfo struct {
	ObjectID int32
	NpcID    int32
	Position protocol.Vec3
}

// FieldState is the client-tracked view of the currently loaded map
// (spec.md §3). OwnObjectID is populated from the first FieldAddUser
// packet observed after field entry; later FieldAddUser packets refer to
// other players and never overwrite it.
type FieldState struct {
	MapID       int32
	OwnObjectID int32
	Position    protocol.Vec3
	NPCs        map[int32]NpcInfo
}
