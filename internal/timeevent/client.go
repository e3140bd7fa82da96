package timeevent

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/kestrelnet/ms2bot/internal/timeevent/api"
)

// ChannelClient is a thin RPC wrapper used by game channels to consult the
// dispatcher, grounded on archon's ShipRegistrationClient shape
// (internal/shipgate/client.go) generalized from "ship list" to the four
// TimeEvent sub-requests.
type ChannelClient struct {
	conn *grpc.ClientConn
	rpc  api.TimeEventServiceClient
}

// DialChannelClient opens a plaintext gRPC connection to the dispatcher at
// addr. Insecure transport credentials are used deliberately (see
// DESIGN.md): this module has no cross-datacenter hop to protect, unlike
// login-to-shipgate in the teacher.
func DialChannelClient(addr string) (*ChannelClient, error) {
	conn, err := grpc.Dial(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("timeevent: dialing dispatcher at %s: %w", addr, err)
	}
	return &ChannelClient{conn: conn, rpc: api.NewTimeEventServiceClient(conn)}, nil
}

func (c *ChannelClient) Close() error { return c.conn.Close() }

func (c *ChannelClient) JoinGlobalPortal(ctx context.Context, eventID int64, index int32) (*api.GlobalPortalInfo, error) {
	resp, err := c.rpc.TimeEvent(ctx, &api.TimeEventRequest{
		JoinGlobalPortal: &api.JoinGlobalPortalRequest{EventID: eventID, Index: index},
	})
	if err != nil {
		return nil, err
	}
	return resp.GlobalPortal, nil
}

func (c *ChannelClient) GetGlobalPortal(ctx context.Context) (*api.GetGlobalPortalResponse, error) {
	resp, err := c.rpc.TimeEvent(ctx, &api.TimeEventRequest{GetGlobalPortal: &emptypb.Empty{}})
	if err != nil {
		return nil, err
	}
	return resp.GlobalPortalStatus, nil
}

func (c *ChannelClient) GetActiveFieldBosses(ctx context.Context) ([]*api.FieldBossInfo, error) {
	resp, err := c.rpc.TimeEvent(ctx, &api.TimeEventRequest{GetActiveFieldBosses: &emptypb.Empty{}})
	if err != nil {
		return nil, err
	}
	return resp.FieldBosses.Bosses, nil
}

func (c *ChannelClient) ReportFieldBossKilled(ctx context.Context, metadataID int64, channel int32) error {
	_, err := c.rpc.TimeEvent(ctx, &api.TimeEventRequest{
		FieldBossKilled: &api.FieldBossKilledRequest{MetadataID: metadataID, Channel: channel},
	})
	return err
}
