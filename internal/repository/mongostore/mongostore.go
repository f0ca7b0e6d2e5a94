// Package mongostore keeps users and claims in MongoDB. It satisfies the same
// contract as the SQL repository and reuses its sentinel errors.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Dan9191/claims-service/internal/models"
	"github.com/Dan9191/claims-service/internal/repository"
)

// Store provides database operations backed by MongoDB
type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	claims *mongo.Collection
}

// Connect dials MongoDB, checks the connection and ensures indexes
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	s := New(client, client.Database(database))
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client and database
func New(client *mongo.Client, db *mongo.Database) *Store {
	return &Store{
		client: client,
		users:  db.Collection("users"),
		claims: db.Collection("claims"),
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create user indexes: %w", err)
	}

	_, err = s.claims.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "patient", Value: 1}}},
		{Keys: bson.D{{Key: "submission_date", Value: -1}}},
		{Keys: bson.D{{Key: "document_key", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create claim indexes: %w", err)
	}
	return nil
}

// Close disconnects the client
func (s *Store) Close() error {
	return s.client.Disconnect(context.Background())
}

// CreateUser inserts a user, rejecting duplicate emails
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = models.NormalizeEmail(user.Email)
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return repository.ErrDuplicateEmail
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// FindUserByEmail retrieves a user by email
func (s *Store) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"email": models.NormalizeEmail(email)})
}

// FindUserByID retrieves a user by id
func (s *Store) FindUserByID(ctx context.Context, id string) (*models.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*models.User, error) {
	var user models.User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	user.CreatedAt = user.CreatedAt.UTC()
	return &user, nil
}

// CreateClaim inserts a new claim
func (s *Store) CreateClaim(ctx context.Context, c *models.Claim) error {
	if _, err := s.claims.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to create claim: %w", err)
	}
	return nil
}

// GetClaim retrieves a claim by id
func (s *Store) GetClaim(ctx context.Context, id string) (*models.Claim, error) {
	var c models.Claim
	err := s.claims.FindOne(ctx, bson.M{"_id": id}).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim: %w", err)
	}
	normalizeTimes(&c)
	return &c, nil
}

// ListClaims returns claims matching filter, newest submission first
func (s *Store) ListClaims(ctx context.Context, filter models.ClaimFilter) ([]*models.Claim, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "submission_date", Value: -1},
		{Key: "_id", Value: -1},
	})

	cur, err := s.claims.Find(ctx, claimQuery(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	defer cur.Close(ctx)

	claims := make([]*models.Claim, 0)
	for cur.Next(ctx) {
		var c models.Claim
		if err := cur.Decode(&c); err != nil {
			return nil, fmt.Errorf("failed to decode claim: %w", err)
		}
		normalizeTimes(&c)
		claims = append(claims, &c)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}
	return claims, nil
}

func claimQuery(filter models.ClaimFilter) bson.M {
	q := bson.M{}
	if filter.PatientID != "" {
		q["patient"] = filter.PatientID
	}
	if filter.Status != "" {
		q["status"] = filter.Status
	}

	dates := bson.M{}
	if filter.From != nil {
		dates["$gte"] = filter.From.UTC()
	}
	if filter.To != nil {
		dates["$lte"] = filter.To.UTC()
	}
	if len(dates) > 0 {
		q["submission_date"] = dates
	}

	amounts := bson.M{}
	if filter.MinAmount != nil {
		amounts["$gte"] = *filter.MinAmount
	}
	if filter.MaxAmount != nil {
		amounts["$lte"] = *filter.MaxAmount
	}
	if len(amounts) > 0 {
		q["claim_amount"] = amounts
	}
	return q
}

// UpdateClaim replaces the stored claim if its status still equals expected
func (s *Store) UpdateClaim(ctx context.Context, c *models.Claim, expected models.ClaimStatus) error {
	res, err := s.claims.ReplaceOne(ctx, bson.M{"_id": c.ID, "status": expected}, c)
	if err != nil {
		return fmt.Errorf("failed to update claim: %w", err)
	}
	if res.MatchedCount == 0 {
		return s.staleOrMissing(ctx, c.ID)
	}
	return nil
}

// DeleteClaim removes a claim if its status still equals expected
func (s *Store) DeleteClaim(ctx context.Context, id string, expected models.ClaimStatus) error {
	res, err := s.claims.DeleteOne(ctx, bson.M{"_id": id, "status": expected})
	if err != nil {
		return fmt.Errorf("failed to delete claim: %w", err)
	}
	if res.DeletedCount == 0 {
		return s.staleOrMissing(ctx, id)
	}
	return nil
}

// DocumentReferenced reports whether any claim points at the object key
func (s *Store) DocumentReferenced(ctx context.Context, key string) (bool, error) {
	n, err := s.claims.CountDocuments(ctx, bson.M{"document_key": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count document references: %w", err)
	}
	return n > 0, nil
}

func (s *Store) staleOrMissing(ctx context.Context, id string) error {
	if _, err := s.GetClaim(ctx, id); err != nil {
		return err
	}
	return repository.ErrStale
}

func normalizeTimes(c *models.Claim) {
	c.SubmissionDate = c.SubmissionDate.UTC()
	c.LastUpdated = c.LastUpdated.UTC()
}
