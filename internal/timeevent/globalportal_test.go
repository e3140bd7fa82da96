package timeevent

import (
	"context"
	"testing"
)

func TestGlobalPortalManager_JoinIsIdempotentPerIndex(t *testing.T) {
	client := &fakeChannelClient{}
	registry := &fakeRegistry{channels: []GameChannel{{ID: 5, Client: client}}}

	manager := NewGlobalPortalManager(registry)
	manager.SetActive(GlobalPortal{
		MetadataID: 1,
		EventID:    1,
		Entries:    []GlobalPortalEntry{{MapID: 100, PortalID: 1}},
	}, 5)

	channel1, room1, err := manager.Join(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("first Join: %v", err)
	}
	channel2, room2, err := manager.Join(context.Background(), 0, 100)
	if err != nil {
		t.Fatalf("second Join: %v", err)
	}

	if room1 != room2 || channel1 != channel2 {
		t.Fatalf("Join was not idempotent: first=(%d,%s) second=(%d,%s)", channel1, room1, channel2, room2)
	}
	if room1 != "room-1" {
		t.Fatalf("unexpected room id %q", room1)
	}
}

func TestGlobalPortalManager_JoinWithoutActivePortal(t *testing.T) {
	manager := NewGlobalPortalManager(&fakeRegistry{})

	if _, _, err := manager.Join(context.Background(), 0, 100); err == nil {
		t.Fatal("expected an error joining with no active portal")
	}
}

func TestGlobalPortalManager_SetActiveResetsRooms(t *testing.T) {
	client := &fakeChannelClient{}
	registry := &fakeRegistry{channels: []GameChannel{{ID: 5, Client: client}}}

	manager := NewGlobalPortalManager(registry)
	manager.SetActive(GlobalPortal{MetadataID: 1, EventID: 1, Entries: []GlobalPortalEntry{{MapID: 100}}}, 5)
	if _, _, err := manager.Join(context.Background(), 0, 100); err != nil {
		t.Fatalf("Join: %v", err)
	}

	manager.SetActive(GlobalPortal{MetadataID: 2, EventID: 2, Entries: []GlobalPortalEntry{{MapID: 200}}}, 5)
	portal, ok := manager.Active()
	if !ok || portal.EventID != 2 {
		t.Fatalf("Active() after SetActive = (%v, %v), want eventId 2", portal, ok)
	}
	if len(manager.roomIDs) != 0 {
		t.Fatalf("roomIDs after SetActive = %v, want empty", manager.roomIDs)
	}
}
