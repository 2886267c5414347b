// Package objectstore provides the Mongo-like document store abstraction
// backing ingest sessions and chat history: a single ObjectStore interface,
// a provider registry, and the session-document operations the ingest
// pipeline and query engine need (upsert-with-push, pull-by-predicate,
// find-by-array-field, and chat append/read), all atomic at the granularity
// of one session document.
//
// Providers register themselves via init():
//
//	import _ "github.com/veridex/veridex/objectstore/providers/mongodb"
//
//	store, err := objectstore.New("mongodb", cfg)
package objectstore

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/veridex/veridex/schema"
)

// ArrayPush appends Value to the named array field of a session document.
type ArrayPush struct {
	Array string
	Value any
}

// IncField increments the named numeric field of a session document by By.
type IncField struct {
	Field string
	By    int64
}

// UpsertSessionInput describes one atomic upsert against a session
// document: Patch fields are set, ArrayPushes are appended, and Inc fields
// are incremented, all in a single write.
type UpsertSessionInput struct {
	SessionID   string
	Patch       map[string]any
	ArrayPushes []ArrayPush
	Inc         []IncField
}

// Predicate narrows PullFromArray to array elements whose Field equals
// Value.
type Predicate struct {
	Field string
	Value any
}

// ArrayFieldQuery locates a session whose named array contains an element
// with Field equal to Value (e.g. files.file_hash = <hash>).
type ArrayFieldQuery struct {
	Array string
	Field string
	Value any
}

// ObjectStore persists ingest sessions and chat sessions, keyed by session
// ID. Every method is atomic at the granularity of one session document;
// callers never need cross-document transactions.
type ObjectStore interface {
	// UpsertSession creates or updates the session document named by
	// in.SessionID, applying in.Patch, in.ArrayPushes and in.Inc atomically.
	UpsertSession(ctx context.Context, in UpsertSessionInput) error

	// GetSession returns the session document for sessionID, or (nil, nil)
	// if no such session exists.
	GetSession(ctx context.Context, sessionID string) (*schema.IngestSession, error)

	// PullFromArray removes every element of arrayName matching pred from
	// the named session's document.
	PullFromArray(ctx context.Context, sessionID, arrayName string, pred Predicate) error

	// DeleteSession removes a session document entirely.
	DeleteSession(ctx context.Context, sessionID string) error

	// FindOneByArrayField returns the first session whose array field
	// matches q, or (nil, nil) if none does.
	FindOneByArrayField(ctx context.Context, q ArrayFieldQuery) (*schema.IngestSession, error)

	// ListSessions returns every stored session document.
	ListSessions(ctx context.Context) ([]schema.IngestSession, error)

	// AppendMessage appends msg to sessionID's chat history, creating the
	// chat session document if it does not yet exist.
	AppendMessage(ctx context.Context, sessionID string, msg schema.ChatMessage) error

	// ReadMessages returns the last limit messages of sessionID's chat
	// history (or all of them if limit <= 0 or there are fewer).
	ReadMessages(ctx context.Context, sessionID string, limit int) ([]schema.ChatMessage, error)

	// DeleteChat removes sessionID's chat history document.
	DeleteChat(ctx context.Context, sessionID string) error
}

// Config holds configuration for creating an ObjectStore via the registry.
type Config struct {
	// Options holds provider-specific configuration key-value pairs (e.g.
	// a *mongo.Database for the mongodb provider).
	Options map[string]any
}

// Factory constructs an ObjectStore from Config. Providers register one via
// Register in their init() function.
type Factory func(cfg Config) (ObjectStore, error)

var (
	mu       sync.RWMutex
	registry = make(map[string]Factory)
)

// Register adds a named object store factory to the global registry. It is
// intended to be called from provider init() functions. Registering a
// duplicate name overwrites the previous factory.
func Register(name string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = f
}

// New creates an ObjectStore by looking up the named factory in the
// registry and calling it with cfg.
func New(name string, cfg Config) (ObjectStore, error) {
	mu.RLock()
	f, ok := registry[name]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("objectstore: unknown provider %q (registered: %v)", name, List())
	}
	return f(cfg)
}

// List returns the names of all registered providers, sorted alphabetically.
func List() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
