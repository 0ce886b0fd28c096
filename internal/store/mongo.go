package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Mongo is a Store backed by a MongoDB database. Document ids are ObjectID
// hex strings.
type Mongo struct {
	db *mongo.Database
}

// NewMongo wraps an already connected database handle.
func NewMongo(db *mongo.Database) *Mongo {
	return &Mongo{db: db}
}

// ConnectMongo connects to uri, verifies the primary is reachable and
// returns a store for database name.
func ConnectMongo(ctx context.Context, uri, name string) (*Mongo, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo ping: %w", err)
	}
	return NewMongo(client.Database(name)), nil
}

// EnsureIndexes creates unique indexes for the given collection fields.
func (m *Mongo) EnsureIndexes(ctx context.Context, unique map[string][]string) error {
	for coll, fields := range unique {
		models := make([]mongo.IndexModel, 0, len(fields))
		for _, f := range fields {
			models = append(models, mongo.IndexModel{
				Keys:    bson.D{{Key: f, Value: 1}},
				Options: options.Index().SetUnique(true),
			})
		}
		if len(models) == 0 {
			continue
		}
		if _, err := m.db.Collection(coll).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create indexes on %s: %w", coll, err)
		}
	}
	return nil
}

// List implements Store.
func (m *Mongo) List(ctx context.Context, collection string, q Query) ([]Document, int64, error) {
	filter, err := toFilter(q.Filter)
	if err != nil {
		return nil, 0, err
	}

	coll := m.db.Collection(collection)
	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("count %s: %w", collection, err)
	}

	opts := options.Find().SetSkip(q.Skip)
	if q.Limit > 0 {
		opts.SetLimit(q.Limit)
	}
	if sort := sortSpec(q.Sort); len(sort) > 0 {
		opts.SetSort(sort)
	}
	if len(q.Select) > 0 {
		proj := bson.M{}
		for _, f := range q.Select {
			proj[f] = 1
		}
		opts.SetProjection(proj)
	}

	cur, err := coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find %s: %w", collection, err)
	}
	defer cur.Close(ctx)

	var raw []bson.M
	if err := cur.All(ctx, &raw); err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", collection, err)
	}

	out := make([]Document, 0, len(raw))
	for _, r := range raw {
		out = append(out, fromBSON(r))
	}
	return out, total, nil
}

// Get implements Store.
func (m *Mongo) Get(ctx context.Context, collection, id string) (Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}
	return m.findOne(ctx, collection, bson.M{IDField: oid})
}

// FindOne implements Store.
func (m *Mongo) FindOne(ctx context.Context, collection string, filter map[string]any) (Document, error) {
	f, err := toFilter(filter)
	if err != nil {
		return nil, err
	}
	return m.findOne(ctx, collection, f)
}

func (m *Mongo) findOne(ctx context.Context, collection string, filter bson.M) (Document, error) {
	var raw bson.M
	err := m.db.Collection(collection).FindOne(ctx, filter).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", collection, err)
	}
	return fromBSON(raw), nil
}

// Create implements Store.
func (m *Mongo) Create(ctx context.Context, collection string, doc Document) (Document, error) {
	in := bson.M{}
	for k, v := range doc {
		if k != IDField {
			in[k] = v
		}
	}
	oid := primitive.NewObjectID()
	in[IDField] = oid

	if _, err := m.db.Collection(collection).InsertOne(ctx, in); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("insert %s: %w", collection, ErrDuplicate)
		}
		return nil, fmt.Errorf("insert %s: %w", collection, err)
	}
	return fromBSON(in), nil
}

// Update implements Store.
func (m *Mongo) Update(ctx context.Context, collection, id string, patch Document) (Document, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrInvalidID
	}

	set := bson.M{}
	for k, v := range patch {
		if k != IDField {
			set[k] = v
		}
	}
	if len(set) == 0 {
		return m.Get(ctx, collection, id)
	}

	var raw bson.M
	err = m.db.Collection(collection).FindOneAndUpdate(ctx,
		bson.M{IDField: oid},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&raw)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return nil, ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return nil, fmt.Errorf("update %s: %w", collection, ErrDuplicate)
	case err != nil:
		return nil, fmt.Errorf("update %s: %w", collection, err)
	}
	return fromBSON(raw), nil
}

// Delete implements Store.
func (m *Mongo) Delete(ctx context.Context, collection, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrInvalidID
	}
	res, err := m.db.Collection(collection).DeleteOne(ctx, bson.M{IDField: oid})
	if err != nil {
		return fmt.Errorf("delete %s: %w", collection, err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping implements Store.
func (m *Mongo) Ping(ctx context.Context) error {
	return m.db.Client().Ping(ctx, readpref.Primary())
}

// Close implements Store.
func (m *Mongo) Close(ctx context.Context) error {
	return m.db.Client().Disconnect(ctx)
}

func toFilter(in map[string]any) (bson.M, error) {
	out := bson.M{}
	for k, v := range in {
		if strings.HasPrefix(k, "$") {
			continue
		}
		if k == IDField {
			s, _ := v.(string)
			oid, err := primitive.ObjectIDFromHex(s)
			if err != nil {
				return nil, ErrInvalidID
			}
			out[k] = oid
			continue
		}
		out[k] = v
	}
	return out, nil
}

func sortSpec(fields []string) bson.D {
	var d bson.D
	for _, f := range fields {
		dir := 1
		if strings.HasPrefix(f, "-") {
			dir = -1
			f = f[1:]
		}
		if f != "" {
			d = append(d, bson.E{Key: f, Value: dir})
		}
	}
	return d
}

// fromBSON converts driver values into plain Go values: ObjectIDs become hex
// strings and BSON datetimes become time.Time.
func fromBSON(m bson.M) Document {
	out := make(Document, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case primitive.ObjectID:
		return t.Hex()
	case primitive.DateTime:
		return t.Time().UTC()
	case time.Time:
		return t.UTC()
	case bson.M:
		return map[string]any(fromBSON(t))
	case bson.D:
		return map[string]any(fromBSON(t.Map()))
	case bson.A:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = normalize(e)
		}
		return out
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	}
	return v
}
