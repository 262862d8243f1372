package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// GridFSStore keeps blobs in a MongoDB GridFS bucket, using the key as filename.
type GridFSStore struct {
	client *mongo.Client
	bucket *gridfs.Bucket
}

// ConnectGridFS dials MongoDB and opens the "uploads" bucket of database.
func ConnectGridFS(ctx context.Context, uri, database string) (*GridFSStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	bucket, err := gridfs.NewBucket(client.Database(database), options.GridFSBucket().SetName("uploads"))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("open gridfs bucket: %w", err)
	}
	return &GridFSStore{client: client, bucket: bucket}, nil
}

func (g *GridFSStore) Save(ctx context.Context, key string, body io.Reader) error {
	if !ValidKey(key) {
		return fmt.Errorf("invalid blob key %q", key)
	}
	// keys are unique, so a leftover file under the same name is replaced
	if err := g.Delete(ctx, key); err != nil {
		return err
	}
	_, err := g.bucket.UploadFromStream(key, body)
	return err
}

func (g *GridFSStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	stream, err := g.bucket.OpenDownloadStreamByName(key)
	if errors.Is(err, gridfs.ErrFileNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return stream, nil
}

// Delete removes every revision stored under key.
func (g *GridFSStore) Delete(ctx context.Context, key string) error {
	cursor, err := g.bucket.FindContext(ctx, bson.M{"filename": key})
	if err != nil {
		return err
	}
	var files []struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := cursor.All(ctx, &files); err != nil {
		return err
	}
	for _, f := range files {
		if err := g.bucket.DeleteContext(ctx, f.ID); err != nil && !errors.Is(err, gridfs.ErrFileNotFound) {
			return err
		}
	}
	return nil
}

func (g *GridFSStore) Close(ctx context.Context) error {
	return g.client.Disconnect(ctx)
}
