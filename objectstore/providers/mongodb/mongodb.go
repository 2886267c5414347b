// Package mongodb provides a MongoDB-backed objectstore.ObjectStore.
// Session and chat documents are stored as BSON documents, one collection
// each, with atomic single-document updates via $set/$push/$pull/$inc.
//
// Usage:
//
//	import _ "github.com/veridex/veridex/objectstore/providers/mongodb"
//
//	store, err := mongodb.New(mongodb.Config{
//	    Sessions: db.Collection("ingest_sessions"),
//	    Chats:    db.Collection("chat_sessions"),
//	})
package mongodb

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/veridex/veridex/objectstore"
	"github.com/veridex/veridex/schema"
)

func init() {
	objectstore.Register("mongodb", func(cfg objectstore.Config) (objectstore.ObjectStore, error) {
		sessions, _ := cfg.Options["sessions"].(Collection)
		chats, _ := cfg.Options["chats"].(Collection)
		return New(Config{Sessions: sessions, Chats: chats})
	})
}

// Collection defines the subset of mongo.Collection methods used by this
// store. This interface enables testing with mock implementations.
type Collection interface {
	Find(ctx context.Context, filter any, opts ...options.Lister[options.FindOptions]) (*mongo.Cursor, error)
	UpdateOne(ctx context.Context, filter, update any, opts ...options.Lister[options.UpdateOneOptions]) (*mongo.UpdateResult, error)
	DeleteOne(ctx context.Context, filter any, opts ...options.Lister[options.DeleteOneOptions]) (*mongo.DeleteResult, error)
}

// Config holds configuration for the MongoDB ObjectStore.
type Config struct {
	// Sessions is the collection holding IngestSession documents. Required.
	Sessions Collection
	// Chats is the collection holding ChatSession documents. Required.
	Chats Collection
}

// Store is a MongoDB-backed objectstore.ObjectStore.
type Store struct {
	sessions Collection
	chats    Collection
}

// New creates a new MongoDB Store with the given config.
func New(cfg Config) (*Store, error) {
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("objectstore/mongodb: sessions collection is required")
	}
	if cfg.Chats == nil {
		return nil, fmt.Errorf("objectstore/mongodb: chats collection is required")
	}
	return &Store{sessions: cfg.Sessions, chats: cfg.Chats}, nil
}

// UpsertSession creates or updates the session document named by
// in.SessionID in a single atomic $set/$push/$inc update.
func (s *Store) UpsertSession(ctx context.Context, in objectstore.UpsertSessionInput) error {
	if in.SessionID == "" {
		return fmt.Errorf("objectstore/mongodb: session ID is required")
	}

	now := time.Now()
	set := bson.M{"last_updated": now}
	for field, value := range in.Patch {
		set[field] = value
	}
	update := bson.M{
		"$set":         set,
		"$setOnInsert": bson.M{"session_id": in.SessionID, "created_at": now},
	}

	if len(in.ArrayPushes) > 0 {
		push := bson.M{}
		for _, ap := range in.ArrayPushes {
			push[ap.Array] = ap.Value
		}
		update["$push"] = push
	}
	if len(in.Inc) > 0 {
		inc := bson.M{}
		for _, f := range in.Inc {
			inc[f.Field] = f.By
		}
		update["$inc"] = inc
	}

	opts := options.UpdateOne().SetUpsert(true)
	_, err := s.sessions.UpdateOne(ctx, bson.M{"session_id": in.SessionID}, update, opts)
	if err != nil {
		return fmt.Errorf("objectstore/mongodb: upsert session: %w", err)
	}
	return nil
}

// GetSession returns the session document for sessionID, or (nil, nil) if
// no such session exists.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*schema.IngestSession, error) {
	return s.findOneSession(ctx, bson.M{"session_id": sessionID})
}

// PullFromArray removes every element of arrayName matching pred from the
// named session's document.
func (s *Store) PullFromArray(ctx context.Context, sessionID, arrayName string, pred objectstore.Predicate) error {
	update := bson.M{
		"$pull": bson.M{arrayName: bson.M{pred.Field: pred.Value}},
		"$set":  bson.M{"last_updated": time.Now()},
	}
	_, err := s.sessions.UpdateOne(ctx, bson.M{"session_id": sessionID}, update)
	if err != nil {
		return fmt.Errorf("objectstore/mongodb: pull from array: %w", err)
	}
	return nil
}

// DeleteSession removes a session document entirely.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := s.sessions.DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("objectstore/mongodb: delete session: %w", err)
	}
	return nil
}

// FindOneByArrayField returns the first session whose array field matches
// q, or (nil, nil) if none does.
func (s *Store) FindOneByArrayField(ctx context.Context, q objectstore.ArrayFieldQuery) (*schema.IngestSession, error) {
	filter := bson.M{fmt.Sprintf("%s.%s", q.Array, q.Field): q.Value}
	return s.findOneSession(ctx, filter)
}

// ListSessions returns every stored session document.
func (s *Store) ListSessions(ctx context.Context) ([]schema.IngestSession, error) {
	cursor, err := s.sessions.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("objectstore/mongodb: list sessions: %w", err)
	}
	defer cursor.Close(ctx)

	var out []schema.IngestSession
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("objectstore/mongodb: decode sessions: %w", err)
	}
	return out, nil
}

// AppendMessage appends msg to sessionID's chat history, creating the chat
// session document if it does not yet exist.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg schema.ChatMessage) error {
	update := bson.M{
		"$push":        bson.M{"messages": msg},
		"$inc":         bson.M{"message_count": int64(1)},
		"$setOnInsert": bson.M{"session_id": sessionID},
	}
	opts := options.UpdateOne().SetUpsert(true)
	_, err := s.chats.UpdateOne(ctx, bson.M{"session_id": sessionID}, update, opts)
	if err != nil {
		return fmt.Errorf("objectstore/mongodb: append message: %w", err)
	}
	return nil
}

// ReadMessages returns the last limit messages of sessionID's chat history
// (or all of them if limit <= 0 or there are fewer).
func (s *Store) ReadMessages(ctx context.Context, sessionID string, limit int) ([]schema.ChatMessage, error) {
	cursor, err := s.chats.Find(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return nil, fmt.Errorf("objectstore/mongodb: read messages: %w", err)
	}
	defer cursor.Close(ctx)

	var chats []schema.ChatSession
	if err := cursor.All(ctx, &chats); err != nil {
		return nil, fmt.Errorf("objectstore/mongodb: decode chat: %w", err)
	}
	if len(chats) == 0 {
		return nil, nil
	}

	messages := chats[0].Messages
	if limit <= 0 || limit >= len(messages) {
		return messages, nil
	}
	return messages[len(messages)-limit:], nil
}

// DeleteChat removes sessionID's chat history document.
func (s *Store) DeleteChat(ctx context.Context, sessionID string) error {
	_, err := s.chats.DeleteOne(ctx, bson.M{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("objectstore/mongodb: delete chat: %w", err)
	}
	return nil
}

// findOneSession runs filter through Find with a limit of 1 and decodes
// the first match, mirroring the cursor-based read path used throughout
// this store rather than depending on mongo.Collection's FindOne, whose
// *mongo.SingleResult has no public constructor suitable for test doubles.
func (s *Store) findOneSession(ctx context.Context, filter bson.M) (*schema.IngestSession, error) {
	cursor, err := s.sessions.Find(ctx, filter, options.Find().SetLimit(1))
	if err != nil {
		return nil, fmt.Errorf("objectstore/mongodb: find session: %w", err)
	}
	defer cursor.Close(ctx)

	var sessions []schema.IngestSession
	if err := cursor.All(ctx, &sessions); err != nil {
		return nil, fmt.Errorf("objectstore/mongodb: decode session: %w", err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

var _ objectstore.ObjectStore = (*Store)(nil)
