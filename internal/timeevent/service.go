package timeevent

import (
	"context"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kestrelnet/ms2bot/internal/timeevent/api"
)

// Service implements api.TimeEventServiceServer, dispatching the tagged
// union synchronously against FieldBossLookup and GlobalPortalManager
// (spec.md §4.5). It carries no state of its own.
type Service struct {
	logger  *logrus.Logger
	bosses  *FieldBossLookup
	portals *GlobalPortalManager
}

func NewService(logger *logrus.Logger, bosses *FieldBossLookup, portals *GlobalPortalManager) *Service {
	return &Service{logger: logger, bosses: bosses, portals: portals}
}

func (s *Service) TimeEvent(ctx context.Context, req *api.TimeEventRequest) (*api.TimeEventResponse, error) {
	switch {
	case req.JoinGlobalPortal != nil:
		return s.joinGlobalPortal(ctx, req.JoinGlobalPortal)
	case req.GetGlobalPortal != nil:
		return s.getGlobalPortal(), nil
	case req.GetActiveFieldBosses != nil:
		return s.getActiveFieldBosses(), nil
	case req.FieldBossKilled != nil:
		return s.fieldBossKilled(req.FieldBossKilled)
	default:
		return nil, status.Error(codes.InvalidArgument, "timeevent: request carried no recognized sub-message")
	}
}

// joinGlobalPortal implements spec.md §4.5's JoinGlobalPortal rules: no
// active portal, or a mismatched eventId, or a zero mapId on the selected
// entry all yield an empty response (scenario S6).
func (s *Service) joinGlobalPortal(ctx context.Context, req *api.JoinGlobalPortalRequest) (*api.TimeEventResponse, error) {
	portal, ok := s.portals.Active()
	if !ok || portal.EventID != req.EventID {
		return &api.TimeEventResponse{}, nil
	}
	if req.Index < 0 || int(req.Index) >= len(portal.Entries) {
		return &api.TimeEventResponse{}, nil
	}
	entry := portal.Entries[req.Index]
	if entry.MapID == 0 {
		return &api.TimeEventResponse{}, nil
	}

	channel, roomID, err := s.portals.Join(ctx, req.Index, entry.MapID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "timeevent: %s", err)
	}

	return &api.TimeEventResponse{
		GlobalPortal: &api.GlobalPortalInfo{
			Channel:  channel,
			RoomID:   roomID,
			MapID:    entry.MapID,
			PortalID: entry.PortalID,
		},
	}, nil
}

func (s *Service) getGlobalPortal() *api.TimeEventResponse {
	portal, ok := s.portals.Active()
	if !ok {
		return &api.TimeEventResponse{}
	}
	return &api.TimeEventResponse{
		GlobalPortalStatus: &api.GetGlobalPortalResponse{MetadataID: portal.MetadataID, EventID: portal.EventID},
	}
}

func (s *Service) getActiveFieldBosses() *api.TimeEventResponse {
	snapshots := s.bosses.GetAll()
	bosses := make([]*api.FieldBossInfo, 0, len(snapshots))
	for _, snap := range snapshots {
		bosses = append(bosses, &api.FieldBossInfo{
			MetadataID:         snap.MetadataID,
			EventID:            snap.EventID,
			SpawnTimestamp:     snap.SpawnTimestamp,
			NextSpawnTimestamp: snap.NextSpawnTimestamp,
			AliveChannels:      snap.AliveChannels,
		})
	}
	return &api.TimeEventResponse{FieldBosses: &api.GetActiveFieldBossesResponse{Bosses: bosses}}
}

func (s *Service) fieldBossKilled(req *api.FieldBossKilledRequest) (*api.TimeEventResponse, error) {
	if err := s.bosses.RemoveChannel(req.MetadataID, req.Channel); err != nil {
		return nil, status.Errorf(codes.Internal, "timeevent: %s", err)
	}
	return &api.TimeEventResponse{}, nil
}
