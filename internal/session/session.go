// Package session keeps the active conversation and a bounded archive of
// past sessions.
//
// The store is memory-first: every mutation is snapshotted through an
// optional Persister so a restart recovers both the active conversation
// and the archive.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/taarya/taarya/internal/agent"
	"github.com/taarya/taarya/internal/log"
)

// Capacity limits.
const (
	// MaxActiveMessages bounds the active conversation; oldest dropped first.
	MaxActiveMessages = agent.MaxHistoryMessages
	// MaxArchives bounds the archive ring; oldest evicted first.
	MaxArchives = 10
	// MaxTitleLength is the title budget before truncation.
	MaxTitleLength = 30
)

// ErrNotFound indicates no archived session has the requested id.
var ErrNotFound = errors.New("session not found")

// Session is one archived conversation.
type Session struct {
	ID        int64           `json:"id"`
	Timestamp time.Time       `json:"timestamp"`
	Title     string          `json:"title"`
	Messages  []agent.Message `json:"messages"`
}

// Snapshot is the persisted store state.
type Snapshot struct {
	Active   []agent.Message `json:"active"`
	Archives []Session       `json:"archives"`
}

// Persister saves and restores store snapshots. Implementations must be
// safe for calls from multiple goroutines.
type Persister interface {
	Save(snap Snapshot) error
	Load() (Snapshot, bool, error)
}

// Store holds the active conversation and the archive.
// Safe for concurrent use.
type Store struct {
	mu        sync.Mutex
	active    []agent.Message
	archives  []Session // most recent first
	unsaved   bool
	lastID    int64
	persister Persister
	logger    log.Logger

	now func() time.Time // test hook
}

// New creates a Store. persister may be nil for a memory-only store;
// when set, previously persisted state is loaded.
func New(persister Persister, logger log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.NewNop()
	}
	s := &Store{persister: persister, logger: logger, now: time.Now}

	if persister != nil {
		snap, ok, err := persister.Load()
		if err != nil {
			return nil, fmt.Errorf("loading persisted sessions: %w", err)
		}
		if ok {
			s.active = snap.Active
			s.archives = snap.Archives
			for _, arch := range s.archives {
				if arch.ID > s.lastID {
					s.lastID = arch.ID
				}
			}
			logger.Debug("sessions restored from disk",
				"active", len(s.active), "archives", len(s.archives))
		}
	}
	return s, nil
}

// Append adds a message to the active conversation, dropping the oldest
// when the cap is exceeded.
func (s *Store) Append(msg agent.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active = append(s.active, msg)
	if len(s.active) > MaxActiveMessages {
		s.active = s.active[len(s.active)-MaxActiveMessages:]
	}
	s.unsaved = true
	s.persistLocked()
}

// Active returns a copy of the active conversation in order.
func (s *Store) Active() []agent.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]agent.Message(nil), s.active...)
}

// HasUnsaved reports whether the active conversation has messages not yet
// archived.
func (s *Store) HasUnsaved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsaved && len(s.active) > 0
}

// ArchiveCurrent moves the active conversation into the archive and
// clears it. A no-op returning false when the conversation is empty.
// The oldest archive is evicted when the ring is full.
func (s *Store) ArchiveCurrent() (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.active) == 0 {
		return Session{}, false
	}

	now := s.now()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id

	sess := Session{
		ID:        id,
		Timestamp: now,
		Title:     deriveTitle(s.active),
		Messages:  s.active,
	}

	s.archives = append([]Session{sess}, s.archives...)
	if len(s.archives) > MaxArchives {
		s.archives = s.archives[:MaxArchives]
	}
	s.active = nil
	s.unsaved = false
	s.persistLocked()

	s.logger.Info("session archived", "id", id, "title", sess.Title, "archives", len(s.archives))
	return sess, true
}

// ListArchives returns archived sessions, most recent first.
func (s *Store) ListArchives() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Session(nil), s.archives...)
}

// Restore replaces the active conversation with the archived session's
// messages. On an unknown id the active conversation is left untouched
// and ErrNotFound is returned. The archive entry is kept.
func (s *Store) Restore(id int64) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, arch := range s.archives {
		if arch.ID == id {
			s.active = append([]agent.Message(nil), arch.Messages...)
			s.unsaved = true
			s.persistLocked()
			s.logger.Info("session restored", "id", id)
			return arch, nil
		}
	}
	return Session{}, fmt.Errorf("%w: id %d", ErrNotFound, id)
}

// Clear discards the active conversation without archiving it.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
	s.unsaved = false
	s.persistLocked()
}

// persistLocked snapshots the store through the persister. Persistence
// failures are logged, not surfaced: the in-memory state stays canonical.
func (s *Store) persistLocked() {
	if s.persister == nil {
		return
	}
	snap := Snapshot{
		Active:   append([]agent.Message(nil), s.active...),
		Archives: append([]Session(nil), s.archives...),
	}
	if err := s.persister.Save(snap); err != nil {
		s.logger.Warn("persisting sessions failed", "error", err)
	}
}

// deriveTitle builds a session title from the first user message,
// truncated to MaxTitleLength runes with an ellipsis.
func deriveTitle(messages []agent.Message) string {
	for _, msg := range messages {
		if msg.Role != agent.RoleUser || msg.Content == "" {
			continue
		}
		runes := []rune(msg.Content)
		if len(runes) <= MaxTitleLength {
			return msg.Content
		}
		return string(runes[:MaxTitleLength]) + "…"
	}
	return "Untitled session"
}
