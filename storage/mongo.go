package storage

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/richinex/musicbi/internal/apperror"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore implements ChunkStore on a MongoDB collection; the blob
// name is the document _id.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	prefix     string
}

type chunkDoc struct {
	Name    string    `bson:"_id"`
	Content string    `bson:"content"`
	Updated time.Time `bson:"updated_at"`
}

// NewMongoStore connects and pings.
func NewMongoStore(ctx context.Context, uri, database, collection, prefix string) (*MongoStore, error) {
	if uri == "" {
		return nil, apperror.Config("mongo uri is required")
	}
	if database == "" {
		database = "musicbi"
	}
	if collection == "" {
		collection = "chunks"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, apperror.Wrap(apperror.CodeConfig, "mongo connect", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, apperror.Transient("mongo ping", err)
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
		prefix:     prefix,
	}, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Put upserts a chunk document.
func (s *MongoStore) Put(ctx context.Context, key, content string) error {
	name := BlobName(s.prefix, key)
	_, err := s.collection.ReplaceOne(ctx,
		bson.M{"_id": name},
		chunkDoc{Name: name, Content: content, Updated: time.Now().UTC()},
		options.Replace().SetUpsert(true))
	if err != nil {
		return apperror.Transient("failed to store chunk in mongo", err)
	}
	return nil
}

// Get loads a chunk document.
func (s *MongoStore) Get(ctx context.Context, key string) (string, error) {
	var doc chunkDoc
	err := s.collection.FindOne(ctx, bson.M{"_id": BlobName(s.prefix, key)}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", notFound(key)
	}
	if err != nil {
		return "", apperror.Transient("failed to load chunk from mongo", err)
	}
	return doc.Content, nil
}

// Clear deletes every document whose _id starts with the prefix.
func (s *MongoStore) Clear(ctx context.Context) error {
	filter := bson.M{}
	if s.prefix != "" {
		filter = bson.M{"_id": bson.M{"$regex": "^" + regexp.QuoteMeta(s.prefix)}}
	}
	if _, err := s.collection.DeleteMany(ctx, filter); err != nil {
		return apperror.Transient("failed to clear mongo chunks", err)
	}
	return nil
}

var _ ChunkStore = (*MongoStore)(nil)
