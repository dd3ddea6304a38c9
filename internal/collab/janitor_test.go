package collab

import (
	"testing"
	"time"
)

func TestSweepReleasesStaleLocksAndNotifiesRoom(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	service := NewService(ServiceConfig{Clock: func() time.Time { return current }})
	janitor := NewJanitor(JanitorConfig{Service: service, TTL: 30 * time.Second})

	first := service.Connect()
	second := service.Connect()
	service.HandleMessage(first, joinFrame("r1", "A"))
	service.HandleMessage(first, lockFrame("r1", "hoTen", "A"))
	service.HandleMessage(second, joinFrame("r1", "B"))
	drainEvents(first)
	drainEvents(second)

	current = current.Add(31 * time.Second)
	janitor.Sweep()

	unlock := expectEvent(t, second, EventTypeUnlock)
	if unlock.FieldID != "hoTen" || unlock.By != "A" {
		t.Fatalf("expected stale hoTen lock by A released, got field %q by %q", unlock.FieldID, unlock.By)
	}
	snapshot := expectEvent(t, second, EventTypeLocks)
	if len(snapshot.Locks) != 0 {
		t.Fatalf("expected empty snapshot after sweep, got %v", snapshot.Locks)
	}

	info, _ := service.RoomInfo("r1")
	if len(info.Locks) != 0 {
		t.Fatalf("expected lock table emptied by sweep, got %v", info.Locks)
	}
}

func TestSweepKeepsLocksYoungerThanTTL(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	service := NewService(ServiceConfig{Clock: func() time.Time { return current }})
	janitor := NewJanitor(JanitorConfig{Service: service, TTL: 30 * time.Second})

	editor := service.Connect()
	service.HandleMessage(editor, joinFrame("r1", "A"))
	service.HandleMessage(editor, lockFrame("r1", "hoTen", "A"))
	drainEvents(editor)

	current = current.Add(29 * time.Second)
	janitor.Sweep()

	expectNoEvent(t, editor)
	info, _ := service.RoomInfo("r1")
	if info.Locks["hoTen"].Owner != "A" {
		t.Fatalf("expected fresh lock to survive the sweep, got %v", info.Locks)
	}
}

func TestZeroTTLDisablesExpiry(t *testing.T) {
	current := time.Unix(1_700_000_000, 0)
	service := NewService(ServiceConfig{Clock: func() time.Time { return current }})
	janitor := NewJanitor(JanitorConfig{Service: service})

	editor := service.Connect()
	service.HandleMessage(editor, joinFrame("r1", "A"))
	service.HandleMessage(editor, lockFrame("r1", "hoTen", "A"))
	drainEvents(editor)

	current = current.Add(24 * time.Hour)
	janitor.Sweep()

	info, _ := service.RoomInfo("r1")
	if info.Locks["hoTen"].Owner != "A" {
		t.Fatal("expected lock to be held forever without a TTL")
	}
}
