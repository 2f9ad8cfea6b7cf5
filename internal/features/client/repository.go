package client

import (
	"context"
	"errors"
	"time"

	"crm-bridge/internal/database"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ClientRepository interface {
	Get(ctx context.Context, id string) (*Client, error)
	GetByEspoCrmID(ctx context.Context, espocrmID string) (*Client, error)
	List(ctx context.Context) ([]Client, error)
	Save(ctx context.Context, client *Client) error
	Delete(ctx context.Context, id string) error
}

type ClientRepositoryImpl struct {
	collection *mongo.Collection
}

func NewClientRepository(db *database.MongodbDB) ClientRepository {
	return &ClientRepositoryImpl{
		collection: db.DB.Collection("clients"),
	}
}

func (r *ClientRepositoryImpl) Get(ctx context.Context, id string) (*Client, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, err
	}

	var c Client
	err = r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&c)
	if err != nil {
		return nil, err
	}

	return &c, nil
}

// GetByEspoCrmID returns (nil, nil) when no client carries the remote id
func (r *ClientRepositoryImpl) GetByEspoCrmID(ctx context.Context, espocrmID string) (*Client, error) {
	var c Client
	err := r.collection.FindOne(ctx, bson.M{"espocrm_id": espocrmID}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &c, nil
}

func (r *ClientRepositoryImpl) List(ctx context.Context) ([]Client, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var clients []Client
	if err = cursor.All(ctx, &clients); err != nil {
		return nil, err
	}

	return clients, nil
}

// Save inserts new clients and replaces existing ones
func (r *ClientRepositoryImpl) Save(ctx context.Context, client *Client) error {
	now := time.Now()
	if client.ID.IsZero() {
		client.ID = primitive.NewObjectID()
		client.CreatedAt = now
	}
	client.UpdatedAt = now

	opts := options.Replace().SetUpsert(true)
	_, err := r.collection.ReplaceOne(ctx, bson.M{"_id": client.ID}, client, opts)
	return err
}

func (r *ClientRepositoryImpl) Delete(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	_, err = r.collection.DeleteOne(ctx, bson.M{"_id": oid})
	return err
}
