// Package mongo implements the customer store on MongoDB, keeping one
// document per tenant with customers and their ledgers embedded.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pointsledger/pointsledger/internal/ledger"
	"github.com/pointsledger/pointsledger/internal/model"
	"github.com/pointsledger/pointsledger/internal/repository"
	"github.com/pointsledger/pointsledger/internal/tenant"
)

// Defaults for the database and collection names.
const (
	DefaultDatabase   = "loyalty-program"
	DefaultCollection = "loyalty-points"
)

// compile-time interface checks
var (
	_ repository.Store       = (*Store)(nil)
	_ repository.Provisioner = (*Store)(nil)
)

// Store implements repository.Store on a single collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// New connects to uri and verifies the connection.
func New(ctx context.Context, uri, database, collection string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	return &Store{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

// Migrate creates the indexes the store relies on. The unique companyId
// index is what makes CreateCustomer reject duplicates.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, migrationIndexes())
	if err != nil {
		return fmt.Errorf("mongo: migrate indexes: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) FindCustomer(ctx context.Context, tenantID string, key tenant.LookupKey) (*model.Customer, error) {
	opts := options.FindOne().SetProjection(bson.M{
		"companyId": 1,
		"customers": bson.M{"$elemMatch": elemFilter(key)},
	})

	var doc tenantDocument
	err := s.coll.FindOne(ctx, bson.M{"companyId": tenantID}, opts).Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, repository.ErrCustomerNotFound
		}
		return nil, fmt.Errorf("mongo: find customer: %w", err)
	}
	if len(doc.Customers) == 0 {
		return nil, repository.ErrCustomerNotFound
	}

	return fromCustomerDocument(tenantID, doc.Customers[0]), nil
}

// AppendEntry pushes e in a single UpdateOne. The filter only matches when
// the customer exists and its live balance plus e.Amount is non-negative,
// so the check and the write are one atomic document update.
func (s *Store) AppendEntry(ctx context.Context, tenantID string, key tenant.LookupKey, e ledger.Entry, now time.Time) error {
	if e.ID == "" {
		e.ID = ulid.Make().String()
	}

	filter := bson.M{
		"companyId": tenantID,
		"customers": bson.M{"$elemMatch": elemFilter(key)},
		"$expr": bson.M{"$gte": bson.A{
			bson.M{"$add": bson.A{liveBalanceExpr(key, now.UTC()), e.Amount}},
			0,
		}},
	}
	update := bson.M{"$push": bson.M{"customers.$.points": toEntryDocument(e)}}

	res, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongo: append entry: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	// Nothing matched: either the customer is absent or the guard failed.
	if _, err := s.FindCustomer(ctx, tenantID, key); err != nil {
		return err
	}
	return repository.ErrWouldUnderflow
}

// CreateCustomer pushes c into the tenant document, creating the document
// on first use.
func (s *Store) CreateCustomer(ctx context.Context, tenantID string, c *model.Customer) error {
	if c.ID == "" {
		c.ID = ulid.Make().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	c.TenantID = tenantID
	for i := range c.Entries {
		if c.Entries[i].ID == "" {
			c.Entries[i].ID = ulid.Make().String()
		}
	}

	filter := bson.M{
		"companyId": tenantID,
		"customers": bson.M{"$not": bson.M{"$elemMatch": bson.M{
			"email":       c.Email,
			"secondaryId": c.SecondaryID,
		}}},
	}
	update := bson.M{"$push": bson.M{"customers": toCustomerDocument(c)}}

	_, err := s.coll.UpdateOne(ctx, filter, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		// The filter misses when the customer exists, and the upsert then
		// collides with the unique companyId index.
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrCustomerExists
		}
		return fmt.Errorf("mongo: create customer: %w", err)
	}
	return nil
}

// elemFilter is the query-language form of the lookup key.
func elemFilter(key tenant.LookupKey) bson.M {
	f := bson.M{"email": key.Email}
	if key.SecondaryID != "" {
		f["secondaryId"] = key.SecondaryID
	}
	return f
}

// matchExpr is the aggregation form of elemFilter over the variable $$c.
func matchExpr(key tenant.LookupKey) bson.M {
	conds := bson.A{bson.M{"$eq": bson.A{"$$c.email", key.Email}}}
	if key.SecondaryID != "" {
		conds = append(conds, bson.M{"$eq": bson.A{"$$c.secondaryId", key.SecondaryID}})
	}
	return bson.M{"$and": conds}
}

// liveBalanceExpr sums points with expiry > now on the first customer
// matching key, the same element the positional $ update targets.
func liveBalanceExpr(key tenant.LookupKey, now time.Time) bson.M {
	customer := bson.M{"$arrayElemAt": bson.A{
		bson.M{"$filter": bson.M{"input": "$customers", "as": "c", "cond": matchExpr(key)}},
		0,
	}}
	points := bson.M{"$ifNull": bson.A{
		bson.M{"$let": bson.M{"vars": bson.M{"target": customer}, "in": "$$target.points"}},
		bson.A{},
	}}
	return bson.M{"$reduce": bson.M{
		"input": bson.M{"$filter": bson.M{
			"input": points,
			"as":    "p",
			"cond":  bson.M{"$gt": bson.A{"$$p.expiry", now}},
		}},
		"initialValue": int64(0),
		"in":           bson.M{"$add": bson.A{"$$value", "$$this.points"}},
	}}
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

func migrationIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "companyId", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "companyId", Value: 1}, {Key: "customers.email", Value: 1}}},
	}
}
