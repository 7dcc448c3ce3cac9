package store

import (
	"context"
	stderrors "errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/matzehuels/cppsbom/pkg/errors"
)

// Defaults for the MongoDB archive.
const (
	DefaultDatabase   = "cppsbom"
	DefaultCollection = "sboms"
)

// document is the BSON shape of a record.
type document struct {
	ID             string    `bson:"_id"`
	Project        string    `bson:"project"`
	CreatedAt      time.Time `bson:"createdAt"`
	ComponentCount int       `bson:"componentCount"`
	Strategies     []string  `bson:"strategies"`
	Format         string    `bson:"format"`
	BOM            []byte    `bson:"bom,omitempty"`
}

func toDocument(r *Record) document {
	return document{
		ID:             r.ID,
		Project:        r.Project,
		CreatedAt:      r.CreatedAt,
		ComponentCount: r.ComponentCount,
		Strategies:     r.Strategies,
		Format:         r.Format,
		BOM:            r.Document,
	}
}

func (d document) record() Record {
	return Record{
		ID:             d.ID,
		Project:        d.Project,
		CreatedAt:      d.CreatedAt.UTC(),
		ComponentCount: d.ComponentCount,
		Strategies:     d.Strategies,
		Format:         d.Format,
		Document:       d.BOM,
	}
}

// MongoStore archives records in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// NewMongoStore connects to uri, verifies the connection and ensures the
// createdAt index exists. An empty database selects [DefaultDatabase].
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	if err := errors.ValidateURL(uri, "mongodb", "mongodb+srv"); err != nil {
		return nil, err
	}
	if database == "" {
		database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "connect mongodb")
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "ping mongodb")
	}

	s := &MongoStore{
		client: client,
		coll:   client.Database(database).Collection(DefaultCollection),
		now:    time.Now,
	}
	_, err = s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "createdAt", Value: -1}},
	})
	if err != nil {
		_ = client.Disconnect(context.Background())
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "create index")
	}
	return s, nil
}

// Save implements Store.
func (s *MongoStore) Save(ctx context.Context, rec *Record) error {
	prepare(rec, s.now)
	if _, err := s.coll.InsertOne(ctx, toDocument(rec)); err != nil {
		return errors.Wrap(errors.ErrCodeStorage, err, "insert sbom %s", rec.ID)
	}
	return nil
}

// Get implements Store.
func (s *MongoStore) Get(ctx context.Context, id string) (*Record, error) {
	var d document
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	switch {
	case stderrors.Is(err, mongo.ErrNoDocuments):
		return nil, errors.New(errors.ErrCodeNotFound, "sbom %s not found", id)
	case err != nil:
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "find sbom %s", id)
	}
	r := d.record()
	return &r, nil
}

// List implements Store.
func (s *MongoStore) List(ctx context.Context, limit int) ([]Record, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: 1}}).
		SetLimit(int64(listLimit(limit))).
		SetProjection(bson.M{"bom": 0})

	cur, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "list sboms")
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStorage, err, "decode sboms")
	}

	out := make([]Record, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.record())
	}
	return out, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}
