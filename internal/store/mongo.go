package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/soyeahso/chatconn/internal/domain"
	"github.com/soyeahso/chatconn/internal/logging"
)

// Collection names shared with the bot's existing database.
const (
	collConnections = "connections"
	collChats       = "chat_list"
	collUsers       = "user_list"
	collSettings    = "chat_connection_settings"
	collAdmins      = "chat_admins"
)

// MongoStore implements the connection reader and writer on MongoDB.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *logging.Logger
}

// OpenMongo connects to uri, pings it and ensures indexes on database.
func OpenMongo(ctx context.Context, uri, database string, log *logging.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri).SetConnectTimeout(10 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(database), log: log.Sub("store")}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}

	s.log.Info().Str("database", database).Msg("mongo store opened")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		collConnections: {{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: unique}},
		collChats:       {{Keys: bson.D{{Key: "chat_id", Value: 1}}, Options: unique}},
		collUsers:       {{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: unique}},
		collSettings:    {{Keys: bson.D{{Key: "chat_id", Value: 1}}, Options: unique}},
		collAdmins:      {{Keys: bson.D{{Key: "chat_id", Value: 1}, {Key: "user_id", Value: 1}}, Options: unique}},
	}
	for coll, models := range indexes {
		if _, err := s.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("creating indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// findOne decodes the first match into out and reports whether one existed.
func (s *MongoStore) findOne(ctx context.Context, coll string, filter bson.M, out any) (bool, error) {
	err := s.db.Collection(coll).FindOne(ctx, filter).Decode(out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("finding in %s: %w", coll, err)
	}
	return true, nil
}

func (s *MongoStore) upsert(ctx context.Context, coll string, filter, update bson.M) error {
	_, err := s.db.Collection(coll).UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting into %s: %w", coll, err)
	}
	return nil
}

func (s *MongoStore) FindConnection(ctx context.Context, userID int64) (*domain.Connection, error) {
	var conn domain.Connection
	ok, err := s.findOne(ctx, collConnections, bson.M{"user_id": userID}, &conn)
	if !ok || err != nil {
		return nil, err
	}
	return &conn, nil
}

// UpsertConnection sets the active chat and adds it to the history with
// $addToSet, in one document update.
func (s *MongoStore) UpsertConnection(ctx context.Context, userID, chatID int64) error {
	return s.upsert(ctx, collConnections,
		bson.M{"user_id": userID},
		bson.M{
			"$set":      bson.M{"chat_id": chatID},
			"$addToSet": bson.M{"history": chatID},
		},
	)
}

// UnsetConnectionChat removes the active chat field, leaving history.
func (s *MongoStore) UnsetConnectionChat(ctx context.Context, userID int64) error {
	return s.upsert(ctx, collConnections,
		bson.M{"user_id": userID},
		bson.M{"$unset": bson.M{"chat_id": ""}},
	)
}

func (s *MongoStore) FindChat(ctx context.Context, chatID int64) (*domain.Chat, error) {
	var chat domain.Chat
	ok, err := s.findOne(ctx, collChats, bson.M{"chat_id": chatID}, &chat)
	if !ok || err != nil {
		return nil, err
	}
	return &chat, nil
}

func (s *MongoStore) SaveChat(ctx context.Context, chat domain.Chat) error {
	return s.upsert(ctx, collChats,
		bson.M{"chat_id": chat.ID},
		bson.M{"$set": bson.M{"chat_title": chat.Title}},
	)
}

func (s *MongoStore) FindUserMembership(ctx context.Context, userID int64) (*domain.Membership, error) {
	var m domain.Membership
	ok, err := s.findOne(ctx, collUsers, bson.M{"user_id": userID}, &m)
	if !ok || err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *MongoStore) AddUserChat(ctx context.Context, userID, chatID int64) error {
	return s.upsert(ctx, collUsers,
		bson.M{"user_id": userID},
		bson.M{"$addToSet": bson.M{"chats": chatID}},
	)
}

func (s *MongoStore) FindChatConnectionSettings(ctx context.Context, chatID int64) (*domain.ChatConnectionSettings, error) {
	var cs domain.ChatConnectionSettings
	ok, err := s.findOne(ctx, collSettings, bson.M{"chat_id": chatID}, &cs)
	if !ok || err != nil {
		return nil, err
	}
	return &cs, nil
}

func (s *MongoStore) SetAllowUsersConnect(ctx context.Context, chatID int64, allow *bool) error {
	update := bson.M{"$unset": bson.M{"allow_users_connect": ""}}
	if allow != nil {
		update = bson.M{"$set": bson.M{"allow_users_connect": *allow}}
	}
	return s.upsert(ctx, collSettings, bson.M{"chat_id": chatID}, update)
}

func (s *MongoStore) SetChatAdmin(ctx context.Context, chatID, userID int64, admin bool) error {
	filter := bson.M{"chat_id": chatID, "user_id": userID}
	if admin {
		return s.upsert(ctx, collAdmins, filter, bson.M{"$setOnInsert": filter})
	}
	if _, err := s.db.Collection(collAdmins).DeleteOne(ctx, filter); err != nil {
		return fmt.Errorf("removing admin %d from chat %d: %w", userID, chatID, err)
	}
	return nil
}

func (s *MongoStore) IsChatAdmin(ctx context.Context, chatID, userID int64) (bool, error) {
	n, err := s.db.Collection(collAdmins).CountDocuments(ctx, bson.M{"chat_id": chatID, "user_id": userID})
	if err != nil {
		return false, fmt.Errorf("checking admin %d in chat %d: %w", userID, chatID, err)
	}
	return n > 0, nil
}

func (s *MongoStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		coll   string
		filter bson.M
		dst    *int
	}{
		{collChats, bson.M{}, &st.Chats},
		{collConnections, bson.M{}, &st.Connections},
		{collConnections, bson.M{"chat_id": bson.M{"$exists": true, "$ne": nil}}, &st.ActiveConnections},
	}
	for _, c := range counts {
		n, err := s.db.Collection(c.coll).CountDocuments(ctx, c.filter)
		if err != nil {
			return Stats{}, fmt.Errorf("counting %s: %w", c.coll, err)
		}
		*c.dst = int(n)
	}
	return st, nil
}
