package repository

import (
	"context"
	"errors"
	"regexp"
	"time"

	"smedia/internal/database"
	"smedia/internal/models"
	"smedia/internal/observability"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoPostRepository struct {
	coll    *mongo.Collection
	metrics *observability.DatabaseMetrics
	log     *observability.RepoLogger
}

// NewMongoPostRepository stores one document per post in the posts collection of db.
func NewMongoPostRepository(db *mongo.Database) PostRepository {
	return &mongoPostRepository{
		coll:    db.Collection(database.PostsCollection),
		metrics: observability.NewDatabaseMetrics("mongodb"),
		log:     observability.NewRepoLogger("mongodb", database.PostsCollection),
	}
}

func (r *mongoPostRepository) span(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, "mongodb", op, database.PostsCollection)
	done := r.metrics.TrackQuery(op, database.PostsCollection)
	return ctx, func(err error) {
		done()
		observability.RecordErrorInContext(ctx, err)
		span.End()
	}
}

func (r *mongoPostRepository) Create(ctx context.Context, post *models.Post) (err error) {
	ctx, end := r.span(ctx, "create")
	defer func() { end(err) }()

	post.Prepare()
	now := time.Now().UTC()
	if post.CreatedAt.IsZero() {
		post.CreatedAt = now
	}
	post.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, post); err != nil {
		return r.storageErr(ctx, "create", err)
	}
	return nil
}

func (r *mongoPostRepository) GetByID(ctx context.Context, id string) (_ *models.Post, err error) {
	ctx, end := r.span(ctx, "get_by_id")
	defer func() { end(err) }()

	var post models.Post
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&post); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			r.log.LogMiss(ctx, "get_by_id", map[string]interface{}{"id": id})
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, r.storageErr(ctx, "get_by_id", err)
	}
	post.Prepare()
	return &post, nil
}

func (r *mongoPostRepository) List(ctx context.Context, limit, offset int) (_ []*models.Post, _ int64, err error) {
	ctx, end := r.span(ctx, "list")
	defer func() { end(err) }()

	total, err := r.coll.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, 0, r.storageErr(ctx, "list", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	posts, err := r.find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, 0, r.storageErr(ctx, "list", err)
	}
	return posts, total, nil
}

func (r *mongoPostRepository) Search(ctx context.Context, query string, limit int) (_ []*models.Post, err error) {
	ctx, end := r.span(ctx, "search")
	defer func() { end(err) }()

	filter := bson.M{"text": bson.M{"$regex": regexp.QuoteMeta(query), "$options": "i"}}
	opts := options.Find().
		SetSort(bson.D{{Key: "views", Value: -1}, {Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))
	posts, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, r.storageErr(ctx, "search", err)
	}
	return posts, nil
}

func (r *mongoPostRepository) ListReportedByAuthor(ctx context.Context, authorEmail string) (_ []*models.Post, err error) {
	ctx, end := r.span(ctx, "list_reported")
	defer func() { end(err) }()

	filter := bson.M{"authorEmail": authorEmail, "reports": bson.M{"$gt": 0}}
	opts := options.Find().SetSort(bson.D{{Key: "reports", Value: -1}, {Key: "createdAt", Value: -1}})
	posts, err := r.find(ctx, filter, opts)
	if err != nil {
		return nil, r.storageErr(ctx, "list_reported", err)
	}
	return posts, nil
}

func (r *mongoPostRepository) Save(ctx context.Context, post *models.Post) (err error) {
	ctx, end := r.span(ctx, "save")
	defer func() { end(err) }()

	post.Prepare()
	post.UpdatedAt = time.Now().UTC()

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": post.ID}, post)
	if err != nil {
		return r.storageErr(ctx, "save", err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Post", post.ID)
	}
	return nil
}

func (r *mongoPostRepository) IncrementViews(ctx context.Context, id string) (err error) {
	ctx, end := r.span(ctx, "increment_views")
	defer func() { end(err) }()

	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": 1}})
	if err != nil {
		return r.storageErr(ctx, "increment_views", err)
	}
	if res.MatchedCount == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

func (r *mongoPostRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := r.span(ctx, "delete")
	defer func() { end(err) }()

	res, err := r.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return r.storageErr(ctx, "delete", err)
	}
	if res.DeletedCount == 0 {
		return models.NewNotFoundError("Post", id)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"id": id})
	return nil
}

func (r *mongoPostRepository) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]*models.Post, error) {
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cur.Close(ctx) }()

	posts := make([]*models.Post, 0)
	for cur.Next(ctx) {
		var post models.Post
		if err := cur.Decode(&post); err != nil {
			return nil, err
		}
		post.Prepare()
		posts = append(posts, &post)
	}
	return posts, cur.Err()
}

func (r *mongoPostRepository) storageErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	r.log.LogError(ctx, err, op)
	return models.NewStorageError(err)
}
