package history

import (
	"path/filepath"
	"testing"
	"time"

	"classwire/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Writes are asynchronous; poll until the reader sees them.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("Timed out waiting for %s", what)
}

func TestStore_ChatMessages(t *testing.T) {
	store := newTestStore(t)

	store.SaveChatMessage(types.ChatMessage{ID: "m1", Kind: "text", Content: "first", Username: "alice", UserID: 7, Timestamp: "2026-08-30T10:00:00Z"})
	store.SaveChatMessage(types.ChatMessage{ID: "m2", Kind: "system", Content: "bob joined the chat", Timestamp: "2026-08-30T10:00:01Z"})

	eventually(t, "chat writes", func() bool {
		msgs, err := store.RecentChatMessages(10)
		return err == nil && len(msgs) == 2
	})

	msgs, err := store.RecentChatMessages(10)
	if err != nil {
		t.Fatalf("RecentChatMessages failed: %v", err)
	}
	if msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Errorf("Expected oldest first, got %s then %s", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].Content != "first" || msgs[0].UserID != 7 {
		t.Errorf("Round trip lost fields: %+v", msgs[0])
	}

	// Limit keeps the most recent entries.
	limited, err := store.RecentChatMessages(1)
	if err != nil {
		t.Fatalf("RecentChatMessages failed: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "m2" {
		t.Errorf("Expected only the newest entry, got %+v", limited)
	}
}

func TestStore_ChatMessageWithoutID(t *testing.T) {
	store := newTestStore(t)

	store.SaveChatMessage(types.ChatMessage{Kind: "text", Content: "no id", Username: "alice"})

	eventually(t, "chat write", func() bool {
		msgs, err := store.RecentChatMessages(10)
		return err == nil && len(msgs) == 1 && msgs[0].ID != ""
	})
}

func TestStore_Notifications(t *testing.T) {
	store := newTestStore(t)

	store.SaveNotification(types.Notification{ID: "n1", Title: "a", Message: "m"})
	store.SaveNotification(types.Notification{ID: "n2", Title: "b", Message: "m", Read: true})

	eventually(t, "notification writes", func() bool {
		items, err := store.UnreadNotifications()
		return err == nil && len(items) == 1
	})

	store.MarkNotificationRead("n1")
	eventually(t, "read flag update", func() bool {
		items, err := store.UnreadNotifications()
		return err == nil && len(items) == 0
	})
}

func TestStore_Executions(t *testing.T) {
	store := newTestStore(t)

	store.SaveExecution(types.ExecutionRecord{ID: "ex1", Language: "python", Status: "success", Output: "hi\n", ExecutionTime: 42})
	store.SaveExecution(types.ExecutionRecord{ID: "ex2", Language: "go", Status: "error", Error: "compile failed"})

	eventually(t, "execution writes", func() bool {
		recs, err := store.Executions(10)
		return err == nil && len(recs) == 2
	})

	recs, err := store.Executions(10)
	if err != nil {
		t.Fatalf("Executions failed: %v", err)
	}
	if recs[0].ID != "ex2" {
		t.Errorf("Expected most recent first, got %s", recs[0].ID)
	}
	if recs[1].Output != "hi\n" || recs[1].ExecutionTime != 42 {
		t.Errorf("Round trip lost fields: %+v", recs[1])
	}

	// INSERT OR REPLACE keeps one row per execution id.
	store.SaveExecution(types.ExecutionRecord{ID: "ex1", Language: "python", Status: "success", Output: "updated"})
	eventually(t, "execution upsert", func() bool {
		recs, err := store.Executions(10)
		if err != nil || len(recs) != 2 {
			return false
		}
		for _, r := range recs {
			if r.ID == "ex1" && r.Output == "updated" {
				return true
			}
		}
		return false
	})
}

func TestStore_ClearChat(t *testing.T) {
	store := newTestStore(t)

	store.SaveChatMessage(types.ChatMessage{ID: "m1", Kind: "text", Content: "bye", Username: "alice"})
	eventually(t, "chat write", func() bool {
		msgs, err := store.RecentChatMessages(10)
		return err == nil && len(msgs) == 1
	})

	if err := store.ClearChat(); err != nil {
		t.Fatalf("ClearChat failed: %v", err)
	}
	msgs, err := store.RecentChatMessages(10)
	if err != nil {
		t.Fatalf("RecentChatMessages failed: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("Expected empty log, got %d", len(msgs))
	}
}

func TestStore_ClearNotifications(t *testing.T) {
	store := newTestStore(t)

	store.SaveNotification(types.Notification{ID: "n1", Title: "a", Message: "m"})
	store.SaveNotification(types.Notification{ID: "n2", Title: "b", Message: "m"})
	eventually(t, "notification writes", func() bool {
		items, err := store.UnreadNotifications()
		return err == nil && len(items) == 2
	})

	if err := store.ClearNotifications(); err != nil {
		t.Fatalf("ClearNotifications failed: %v", err)
	}
	items, err := store.UnreadNotifications()
	if err != nil {
		t.Fatalf("UnreadNotifications failed: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("Expected empty feed, got %d", len(items))
	}
}

func TestStore_CloseIsIdempotent(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}

	// Writes after close are silently dropped.
	store.SaveChatMessage(types.ChatMessage{ID: "m1", Content: "late", Username: "alice"})
}
