// Package mongostore persists call log entries in a MongoDB collection with
// secondary indexes on page and url.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/devops-sunny/turbofetch/calllog"
)

const (
	DefaultDatabase   = "ApiCallLogs"
	DefaultCollection = "logs"

	defaultConnectTimeout = 10 * time.Second

	// codeBackgroundOperationInProgress is returned by drop while an index
	// build on the collection is still running.
	codeBackgroundOperationInProgress = 12587
)

// Config selects the deployment, database and collection.
type Config struct {
	URI        string
	Database   string
	Collection string
}

func (c *Config) applyDefaults() {
	if c.Database == "" {
		c.Database = DefaultDatabase
	}
	if c.Collection == "" {
		c.Collection = DefaultCollection
	}
}

// Store implements calllog.Store on a MongoDB collection.
type Store struct {
	client     *mongo.Client
	coll       *mongo.Collection
	ownsClient bool
}

var (
	_ calllog.Store       = (*Store)(nil)
	_ calllog.Initializer = (*Store)(nil)
)

var connectMongoDB = func(opts *options.ClientOptions) (*mongo.Client, error) {
	return mongo.Connect(opts)
}

// Connect dials cfg.URI and returns a Store that owns the client.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	cfg.applyDefaults()
	if cfg.URI == "" {
		return nil, errors.New("mongostore: empty URI")
	}

	client, err := connectMongoDB(options.Client().ApplyURI(cfg.URI).SetConnectTimeout(defaultConnectTimeout))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}

	s := New(client.Database(cfg.Database), cfg.Collection)
	s.client = client
	s.ownsClient = true
	return s, nil
}

// New wraps an existing database handle. The caller keeps ownership of the
// client.
func New(db *mongo.Database, collection string) *Store {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Store{
		client: db.Client(),
		coll:   db.Collection(collection),
	}
}

type document struct {
	ID           bson.ObjectID `bson:"_id,omitempty"`
	URL          string        `bson:"url"`
	Method       string        `bson:"method"`
	Status       string        `bson:"status"`
	Response     string        `bson:"response,omitempty"`
	DurationMs   int64         `bson:"durationMs"`
	ErrorMessage string        `bson:"errorMessage,omitempty"`
	Page         string        `bson:"page"`
	Agent        string        `bson:"agent"`
	Timestamp    time.Time     `bson:"timestamp"`
}

func toDocument(e *calllog.Entry) document {
	return document{
		URL:          e.URL,
		Method:       e.Method,
		Status:       string(e.Status),
		Response:     string(e.Response),
		DurationMs:   e.DurationMs,
		ErrorMessage: e.ErrorMessage,
		Page:         e.Page,
		Agent:        e.Agent,
		Timestamp:    e.Timestamp.UTC(),
	}
}

func (d document) entry() *calllog.Entry {
	e := &calllog.Entry{
		ID:           d.ID.Hex(),
		URL:          d.URL,
		Method:       d.Method,
		Status:       calllog.Status(d.Status),
		DurationMs:   d.DurationMs,
		ErrorMessage: d.ErrorMessage,
		Page:         d.Page,
		Agent:        d.Agent,
		Timestamp:    d.Timestamp,
	}
	if d.Response != "" {
		e.Response = []byte(d.Response)
	}
	return e
}

func indexModels() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: string(calllog.IndexPage), Value: 1}},
			Options: options.Index().SetName(string(calllog.IndexPage)),
		},
		{
			Keys:    bson.D{{Key: string(calllog.IndexURL), Value: 1}},
			Options: options.Index().SetName(string(calllog.IndexURL)),
		},
	}
}

// Init creates the page and url indexes. It is idempotent.
func (s *Store) Init(ctx context.Context) error {
	if _, err := s.coll.Indexes().CreateMany(ctx, indexModels()); err != nil {
		return &calllog.StoreError{Op: "init", Store: "mongo", Cause: err}
	}
	return nil
}

// Add implements calllog.Store.
func (s *Store) Add(ctx context.Context, e *calllog.Entry) (string, error) {
	res, err := s.coll.InsertOne(ctx, toDocument(e))
	if err != nil {
		return "", &calllog.StoreError{Op: "add", Store: "mongo", Cause: err}
	}
	id, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return "", &calllog.StoreError{Op: "add", Store: "mongo", Cause: fmt.Errorf("unexpected id type %T", res.InsertedID)}
	}
	return id.Hex(), nil
}

// Update implements calllog.Store. Only the outcome fields are written, the
// indexed url and page stay as inserted.
func (s *Store) Update(ctx context.Context, id string, e *calllog.Entry) error {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return calllog.ErrNotFound
	}
	d := toDocument(e)
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "status", Value: d.Status},
		{Key: "response", Value: d.Response},
		{Key: "durationMs", Value: d.DurationMs},
		{Key: "errorMessage", Value: d.ErrorMessage},
		{Key: "timestamp", Value: d.Timestamp},
	}}}
	res, err := s.coll.UpdateByID(ctx, oid, update)
	if err != nil {
		return &calllog.StoreError{Op: "update", Store: "mongo", Cause: err}
	}
	if res.MatchedCount == 0 {
		return calllog.ErrNotFound
	}
	return nil
}

// QueryByIndex implements calllog.Store.
func (s *Store) QueryByIndex(ctx context.Context, idx calllog.Index, value string) ([]*calllog.Entry, error) {
	if !calllog.ValidIndex(idx) {
		return nil, calllog.ErrUnknownIndex
	}
	return s.find(ctx, "query", bson.D{{Key: string(idx), Value: value}})
}

// GetAll implements calllog.Store.
func (s *Store) GetAll(ctx context.Context) ([]*calllog.Entry, error) {
	return s.find(ctx, "get all", bson.D{})
}

func (s *Store) find(ctx context.Context, op string, filter bson.D) ([]*calllog.Entry, error) {
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, &calllog.StoreError{Op: op, Store: "mongo", Cause: err}
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, &calllog.StoreError{Op: op, Store: "mongo", Cause: err}
	}
	out := make([]*calllog.Entry, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.entry())
	}
	return out, nil
}

// DeleteStore drops the collection. A drop refused because an index build
// is still running is reported as calllog.ErrBlocked.
func (s *Store) DeleteStore(ctx context.Context) error {
	err := s.coll.Drop(ctx)
	if err == nil {
		return nil
	}
	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) && serverErr.HasErrorCode(codeBackgroundOperationInProgress) {
		return calllog.ErrBlocked
	}
	return &calllog.StoreError{Op: "delete store", Store: "mongo", Cause: err}
}

// Close disconnects the client if the Store created it.
func (s *Store) Close(ctx context.Context) error {
	if !s.ownsClient || s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}
