// Package inmemory provides a process-local objectstore.ObjectStore backed
// by maps, for tests and single-node deployments that don't need session
// state to survive a restart. It registers itself under the name
// "inmemory" in the objectstore registry.
package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/veridex/veridex/objectstore"
	"github.com/veridex/veridex/schema"
)

func init() {
	objectstore.Register("inmemory", func(cfg objectstore.Config) (objectstore.ObjectStore, error) {
		return New(), nil
	})
}

// Store is an in-memory objectstore.ObjectStore.
type Store struct {
	mu       sync.Mutex
	sessions map[string]schema.IngestSession
	chats    map[string]schema.ChatSession
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		sessions: make(map[string]schema.IngestSession),
		chats:    make(map[string]schema.ChatSession),
	}
}

// UpsertSession creates or updates the session document named by
// in.SessionID, applying the patch, array pushes and increments atomically
// under the store's single lock.
func (s *Store) UpsertSession(_ context.Context, in objectstore.UpsertSessionInput) error {
	if in.SessionID == "" {
		return fmt.Errorf("objectstore/inmemory: session ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[in.SessionID]
	now := time.Now()
	if !ok {
		sess = schema.IngestSession{SessionID: in.SessionID, CreatedAt: now}
	}

	for field, value := range in.Patch {
		applyIngestSessionField(&sess, field, value)
	}
	for _, push := range in.ArrayPushes {
		applyIngestSessionPush(&sess, push)
	}
	for _, inc := range in.Inc {
		applyIngestSessionInc(&sess, inc)
	}
	// files_count always tracks len(files); any explicit inc targeting it
	// is superseded, keeping the session's files_count == len(files)
	// invariant regardless of caller input.
	sess.FilesCount = len(sess.Files)
	sess.LastUpdated = now

	s.sessions[in.SessionID] = sess
	return nil
}

// GetSession returns the session document for sessionID, or (nil, nil) if
// no such session exists.
func (s *Store) GetSession(_ context.Context, sessionID string) (*schema.IngestSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// PullFromArray removes every element of arrayName matching pred from the
// named session's document. Only the "files" array is supported, matching
// the object store's actual session schema.
func (s *Store) PullFromArray(_ context.Context, sessionID, arrayName string, pred objectstore.Predicate) error {
	if arrayName != "files" {
		return fmt.Errorf("objectstore/inmemory: unsupported array %q", arrayName)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil
	}

	kept := sess.Files[:0]
	for _, f := range sess.Files {
		if !documentRecordMatches(f, pred) {
			kept = append(kept, f)
		}
	}
	sess.Files = kept
	sess.FilesCount = len(sess.Files)
	sess.LastUpdated = time.Now()
	s.sessions[sessionID] = sess
	return nil
}

// DeleteSession removes a session document entirely.
func (s *Store) DeleteSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}

// FindOneByArrayField returns the first session whose array field matches
// q, or (nil, nil) if none does. Only the "files" array is supported.
func (s *Store) FindOneByArrayField(_ context.Context, q objectstore.ArrayFieldQuery) (*schema.IngestSession, error) {
	if q.Array != "files" {
		return nil, fmt.Errorf("objectstore/inmemory: unsupported array %q", q.Array)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, sess := range s.sessions {
		for _, f := range sess.Files {
			if documentRecordMatches(f, objectstore.Predicate{Field: q.Field, Value: q.Value}) {
				result := sess
				return &result, nil
			}
		}
	}
	return nil, nil
}

// ListSessions returns every stored session document.
func (s *Store) ListSessions(_ context.Context) ([]schema.IngestSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.IngestSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess)
	}
	return out, nil
}

// AppendMessage appends msg to sessionID's chat history, creating the chat
// session document if it does not yet exist.
func (s *Store) AppendMessage(_ context.Context, sessionID string, msg schema.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[sessionID]
	if !ok {
		chat = schema.ChatSession{SessionID: sessionID}
	}
	chat.Messages = append(chat.Messages, msg)
	chat.MessageCount = len(chat.Messages)
	s.chats[sessionID] = chat
	return nil
}

// ReadMessages returns the last limit messages of sessionID's chat history
// (or all of them if limit <= 0 or there are fewer).
func (s *Store) ReadMessages(_ context.Context, sessionID string, limit int) ([]schema.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[sessionID]
	if !ok {
		return nil, nil
	}
	if limit <= 0 || limit >= len(chat.Messages) {
		out := make([]schema.ChatMessage, len(chat.Messages))
		copy(out, chat.Messages)
		return out, nil
	}
	start := len(chat.Messages) - limit
	out := make([]schema.ChatMessage, limit)
	copy(out, chat.Messages[start:])
	return out, nil
}

// DeleteChat removes sessionID's chat history document.
func (s *Store) DeleteChat(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.chats, sessionID)
	return nil
}

// applyIngestSessionField sets the named top-level field on sess from a
// generic patch value, matching the field names schema.IngestSession
// exposes for upsert_session's patch argument.
func applyIngestSessionField(sess *schema.IngestSession, field string, value any) {
	switch field {
	case "author":
		if v, ok := value.(string); ok {
			sess.Author = v
		}
	case "created_at":
		if v, ok := value.(time.Time); ok {
			sess.CreatedAt = v
		}
	}
}

func applyIngestSessionPush(sess *schema.IngestSession, push objectstore.ArrayPush) {
	if push.Array != "files" {
		return
	}
	if rec, ok := push.Value.(schema.DocumentRecord); ok {
		sess.Files = append(sess.Files, rec)
	}
}

func applyIngestSessionInc(sess *schema.IngestSession, inc objectstore.IncField) {
	if inc.Field == "files_count" {
		sess.FilesCount += int(inc.By)
	}
}

func documentRecordMatches(rec schema.DocumentRecord, pred objectstore.Predicate) bool {
	switch pred.Field {
	case "file_hash":
		v, _ := pred.Value.(string)
		return rec.FileHash == v
	case "source_id":
		v, _ := pred.Value.(string)
		return rec.SourceID == v
	default:
		return false
	}
}

var _ objectstore.ObjectStore = (*Store)(nil)
