package repository

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"smedia/internal/database"
	"smedia/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoUserRepository struct {
	coll *mongo.Collection
}

// NewMongoUserRepository reads accounts from the users collection of db.
func NewMongoUserRepository(db *mongo.Database) UserRepository {
	return &mongoUserRepository{coll: db.Collection(database.UsersCollection)}
}

func (r *mongoUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	now := time.Now().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, user); err != nil {
		return models.NewStorageError(err)
	}
	return nil
}

func (r *mongoUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	if err := r.coll.FindOne(ctx, bson.M{"email": email}).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFoundError("User", email)
		}
		return nil, models.NewStorageError(err)
	}
	return &user, nil
}

func (r *mongoUserRepository) FindByIDs(ctx context.Context, ids []string) ([]*models.User, error) {
	users := make([]*models.User, 0, len(ids))
	if len(ids) == 0 {
		return users, nil
	}

	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	if err := cur.All(ctx, &users); err != nil {
		return nil, models.NewStorageError(err)
	}
	return users, nil
}

func (r *mongoUserRepository) Search(ctx context.Context, query string, limit int) ([]*models.User, error) {
	re := bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}
	filter := bson.M{"$or": bson.A{
		bson.M{"name": re},
		bson.M{"username": re},
	}}
	opts := options.Find().SetSort(bson.D{{Key: "name", Value: 1}}).SetLimit(int64(limit))

	users := make([]*models.User, 0, limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, models.NewStorageError(err)
	}
	if err := cur.All(ctx, &users); err != nil {
		return nil, models.NewStorageError(err)
	}
	return users, nil
}
