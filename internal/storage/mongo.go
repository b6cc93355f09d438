package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/IshaanNene/mediabias/internal/config"
	"github.com/IshaanNene/mediabias/internal/types"
)

// mongoDocument is the stored form of a types.Document.
type mongoDocument struct {
	URL         string    `bson:"url"`
	Publisher   string    `bson:"publisher"`
	Title       string    `bson:"title,omitempty"`
	PublishedAt time.Time `bson:"published_at,omitempty"`
	FetchedAt   time.Time `bson:"fetched_at"`
	Content     string    `bson:"content"`
	Seq         int64     `bson:"seq"`
}

func toMongo(d types.Document, seq int64) mongoDocument {
	return mongoDocument{
		URL:         d.URL,
		Publisher:   d.Publisher,
		Title:       d.Title,
		PublishedAt: d.PublishedAt.UTC(),
		FetchedAt:   d.FetchedAt.UTC(),
		Content:     d.Content,
		Seq:         seq,
	}
}

func (m mongoDocument) document() types.Document {
	d := types.Document{
		URL:       m.URL,
		Publisher: m.Publisher,
		Title:     m.Title,
		FetchedAt: m.FetchedAt.UTC(),
		Content:   m.Content,
	}
	if !m.PublishedAt.IsZero() {
		d.PublishedAt = m.PublishedAt.UTC()
	}
	return d
}

// MongoStore keeps a dataset's documents in the collection
// <dataset>_documents.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	timeout    time.Duration
	logger     *slog.Logger
	// transactional is set when the deployment is a replica set or a
	// sharded cluster, where Append runs in a transaction.
	transactional bool
}

// helloReply holds the fields of the hello command that tell the
// deployment topology.
type helloReply struct {
	SetName string `bson:"setName"`
	Msg     string `bson:"msg"`
}

// supportsTransactions reports whether the deployment accepts
// multi-document transactions. Standalone servers do not.
func (h helloReply) supportsTransactions() bool {
	return h.SetName != "" || h.Msg == "isdbgrid"
}

// NewMongoStore connects to MongoDB and ensures the unique url index.
func NewMongoStore(ctx context.Context, cfg config.StorageConfig, dataset string, logger *slog.Logger) (*MongoStore, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("connect: %w", err)}
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("ping: %w", err)}
	}

	coll := client.Database(cfg.MongoDatabase).Collection(dataset + "_documents")
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "url", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("create index: %w", err)}
	}

	logger = logger.With("component", "mongo_store", "dataset", dataset)

	var hello helloReply
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "hello", Value: 1}}).Decode(&hello); err != nil {
		logger.Warn("topology unknown, appending without transactions", "error", err)
	}
	logger.Debug("connected", "replica_set", hello.SetName, "transactions", hello.supportsTransactions())

	return &MongoStore{
		client:        client,
		collection:    coll,
		timeout:       timeout,
		logger:        logger,
		transactional: hello.supportsTransactions(),
	}, nil
}

func (s *MongoStore) Name() string { return "mongodb" }

func (s *MongoStore) Load(ctx context.Context) ([]types.Document, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cur, err := s.collection.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Err: err}
	}
	defer cur.Close(ctx)

	var docs []types.Document
	for cur.Next(ctx) {
		var m mongoDocument
		if err := cur.Decode(&m); err != nil {
			return nil, &types.StorageError{Backend: "mongodb", Err: err}
		}
		docs = append(docs, m.document())
	}
	if err := cur.Err(); err != nil {
		return nil, &types.StorageError{Backend: "mongodb", Err: err}
	}
	return docs, nil
}

// Append upserts docs with $setOnInsert, so a URL already stored is left
// untouched. On a replica set or sharded cluster the batch runs in one
// transaction and a failure stores nothing. A standalone server has no
// multi-document transactions; there a failed batch may have inserted a
// prefix, which the next Append skips by URL.
func (s *MongoStore) Append(ctx context.Context, docs []types.Document) (int, error) {
	_, fresh := Merge(nil, docs)
	if len(fresh) == 0 {
		return 0, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	base := time.Now().UnixNano()
	models := make([]mongo.WriteModel, len(fresh))
	for i, d := range fresh {
		models[i] = mongo.NewUpdateOneModel().
			SetFilter(bson.D{{Key: "url", Value: d.URL}}).
			SetUpdate(bson.D{{Key: "$setOnInsert", Value: toMongo(d, base+int64(i))}}).
			SetUpsert(true)
	}

	res, err := s.bulkWrite(ctx, models)
	if err != nil {
		return 0, &types.StorageError{Backend: "mongodb", Err: fmt.Errorf("bulk upsert: %w", err)}
	}

	added := int(res.UpsertedCount)
	s.logger.Info("documents stored", "added", added, "offered", len(docs))
	return added, nil
}

func (s *MongoStore) bulkWrite(ctx context.Context, models []mongo.WriteModel) (*mongo.BulkWriteResult, error) {
	opts := options.BulkWrite().SetOrdered(true)
	if !s.transactional {
		return s.collection.BulkWrite(ctx, models, opts)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	out, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return s.collection.BulkWrite(sc, models, opts)
	})
	if err != nil {
		return nil, err
	}
	return out.(*mongo.BulkWriteResult), nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
