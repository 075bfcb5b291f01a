package docstore

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore implements Store on top of a MongoDB database. The collection
// part of a path maps to a mongo collection (slashes become dots) and the id
// part becomes the document _id.
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore creates a document store backed by the given database.
func NewMongoStore(db *mongo.Database) *MongoStore {
	if db == nil {
		panic("docstore: mongo database is required")
	}
	return &MongoStore{db: db}
}

func (s *MongoStore) Get(ctx context.Context, path string, dest any) error {
	col, id, err := SplitPath(path)
	if err != nil {
		return err
	}

	err = s.collection(col).FindOne(ctx, bson.M{"_id": id}).Decode(dest)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return err
}

func (s *MongoStore) Set(ctx context.Context, path string, fields map[string]any, merge bool) error {
	col, id, err := SplitPath(path)
	if err != nil {
		return err
	}

	if merge {
		// $set touches only the provided fields: this is the merge-patch
		// contract the concurrent writers rely on.
		_, err = s.collection(col).UpdateByID(ctx, id,
			bson.M{"$set": bson.M(fields)},
			options.UpdateOne().SetUpsert(true),
		)
		return err
	}

	doc := bson.M(fields)
	_, err = s.collection(col).ReplaceOne(ctx, bson.M{"_id": id}, doc,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) Delete(ctx context.Context, path string) error {
	col, id, err := SplitPath(path)
	if err != nil {
		return err
	}

	_, err = s.collection(col).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

func (s *MongoStore) Count(ctx context.Context, collection string, filter map[string]any) (int64, error) {
	f := bson.M{}
	for k, v := range filter {
		f[k] = v
	}
	return s.collection(collection).CountDocuments(ctx, f)
}

func (s *MongoStore) List(ctx context.Context, collection, orderByDesc string, limit int) ([]map[string]any, error) {
	cur, err := s.collection(collection).Find(ctx, bson.M{},
		options.Find().
			SetSort(bson.D{{Key: orderByDesc, Value: -1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var docs []map[string]any
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

func (s *MongoStore) collection(path string) *mongo.Collection {
	return s.db.Collection(strings.ReplaceAll(path, "/", "."))
}
