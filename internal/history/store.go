// Package history persists chat messages, notifications, and finished
// executions to a local SQLite database so a session survives process
// restarts. It is optional: every session accepts a nil store.
package history

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"classwire/pkg/types"
)

// Store wraps the SQLite handle. All writes flow through a single
// goroutine; SQLite allows concurrent readers but serializes writers.
type Store struct {
	db      *sql.DB
	writeCh chan writeOp
	done    chan struct{}
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

type writeOp func(*sql.DB) error

// Open creates (or reopens) the history database at path and applies
// the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply history schema: %w", err)
	}

	s := &Store{
		db:      db,
		writeCh: make(chan writeOp, 100),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop serializes all writes; a failed write is retried once.
func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeCh:
			if err := op(s.db); err != nil {
				log.Printf("History write failed, retrying: %v", err)
				if err := op(s.db); err != nil {
					log.Printf("History write failed after retry: %v", err)
				}
			}
		case <-s.done:
			return
		}
	}
}

// enqueue hands a write to the writer goroutine without blocking the
// delivery path; when the queue is full the record is dropped with a
// log line rather than stalling message dispatch.
func (s *Store) enqueue(op writeOp) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return
	}

	select {
	case s.writeCh <- op:
	default:
		log.Printf("History write queue full, dropping record")
	}
}

// SaveChatMessage persists one chat log entry.
func (s *Store) SaveChatMessage(msg types.ChatMessage) {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT OR IGNORE INTO chat_messages (id, kind, content, username, user_id, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			msg.ID, msg.Kind, msg.Content, msg.Username, msg.UserID, timestampOrNow(msg.Timestamp),
		)
		return err
	})
}

// SaveNotification persists one notification.
func (s *Store) SaveNotification(n types.Notification) {
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT OR IGNORE INTO notifications (id, title, body, category, read, created_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			n.ID, n.Title, n.Message, n.Category, n.Read, timestampOrNow(n.Timestamp),
		)
		return err
	})
}

// MarkNotificationRead mirrors a local read-flag edit.
func (s *Store) MarkNotificationRead(id string) {
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`UPDATE notifications SET read = 1 WHERE id = ?`, id)
		return err
	})
}

// SaveExecution persists a finished execution record.
func (s *Store) SaveExecution(rec types.ExecutionRecord) {
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(
			`INSERT OR REPLACE INTO executions (id, language, status, output, stdout, stderr, error, execution_ms, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.Language, rec.Status, rec.Output, rec.Stdout, rec.Stderr, rec.Error,
			rec.ExecutionTime, time.Now().UTC().Format(time.RFC3339),
		)
		return err
	})
}

// RecentChatMessages returns up to limit messages, oldest first.
func (s *Store) RecentChatMessages(limit int) ([]types.ChatMessage, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, content, username, user_id, created_at FROM
		 (SELECT * FROM chat_messages ORDER BY created_at DESC, rowid DESC LIMIT ?)
		 ORDER BY created_at ASC, rowid ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat history: %w", err)
	}
	defer rows.Close()

	var messages []types.ChatMessage
	for rows.Next() {
		var msg types.ChatMessage
		if err := rows.Scan(&msg.ID, &msg.Kind, &msg.Content, &msg.Username, &msg.UserID, &msg.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// UnreadNotifications returns persisted notifications not yet read.
func (s *Store) UnreadNotifications() ([]types.Notification, error) {
	rows, err := s.db.Query(
		`SELECT id, title, body, category, read, created_at FROM notifications
		 WHERE read = 0 ORDER BY created_at ASC, rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var items []types.Notification
	for rows.Next() {
		var n types.Notification
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.Category, &n.Read, &n.Timestamp); err != nil {
			return nil, err
		}
		items = append(items, n)
	}
	return items, rows.Err()
}

// Executions returns up to limit finished executions, most recent first.
func (s *Store) Executions(limit int) ([]types.ExecutionRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, language, status, output, stdout, stderr, error, execution_ms
		 FROM executions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions: %w", err)
	}
	defer rows.Close()

	var records []types.ExecutionRecord
	for rows.Next() {
		var rec types.ExecutionRecord
		if err := rows.Scan(&rec.ID, &rec.Language, &rec.Status, &rec.Output,
			&rec.Stdout, &rec.Stderr, &rec.Error, &rec.ExecutionTime); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ClearChat deletes all persisted chat messages.
func (s *Store) ClearChat() error {
	result := make(chan error, 1)
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM chat_messages`)
		result <- err
		return err
	})

	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	}
}

// ClearNotifications deletes all persisted notifications.
func (s *Store) ClearNotifications() error {
	result := make(chan error, 1)
	s.enqueue(func(db *sql.DB) error {
		_, err := db.Exec(`DELETE FROM notifications`)
		result <- err
		return err
	})

	select {
	case err := <-result:
		return err
	case <-time.After(5 * time.Second):
		return ErrWriteTimeout
	}
}

// Close drains the writer and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}

func timestampOrNow(ts string) string {
	if ts != "" {
		return ts
	}
	return time.Now().UTC().Format(time.RFC3339)
}
