// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"
	"errors"
	"strings"

	"smedia/internal/models"
	"smedia/internal/observability"

	"gorm.io/gorm"
)

// PostRepository is the authoritative post store. Every implementation reports an
// absent post as a NOT_FOUND AppError and any other failure as STORAGE_UNAVAILABLE.
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	List(ctx context.Context, limit, offset int) ([]*models.Post, int64, error)
	Search(ctx context.Context, query string, limit int) ([]*models.Post, error)
	ListReportedByAuthor(ctx context.Context, authorEmail string) ([]*models.Post, error)
	// Save overwrites the whole stored post. Concurrent saves are last writer wins.
	Save(ctx context.Context, post *models.Post) error
	// IncrementViews adds one to the view counter in a single atomic statement.
	IncrementViews(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}

// postRepository implements PostRepository on gorm (PostgreSQL or SQLite).
type postRepository struct {
	db      *gorm.DB
	system  string
	metrics *observability.DatabaseMetrics
	log     *observability.RepoLogger
}

// NewPostRepository creates a new gorm-backed post repository.
func NewPostRepository(db *gorm.DB) PostRepository {
	system := db.Dialector.Name()
	return &postRepository{
		db:      db,
		system:  system,
		metrics: observability.NewDatabaseMetrics(system),
		log:     observability.NewRepoLogger(system, "posts"),
	}
}

func (r *postRepository) span(ctx context.Context, op string) (context.Context, func(error)) {
	ctx, span := observability.GetTraceLayer().TraceRepositoryMethod(ctx, r.system, op, "posts")
	done := r.metrics.TrackQuery(op, "posts")
	return ctx, func(err error) {
		done()
		observability.RecordErrorInContext(ctx, err)
		span.End()
	}
}

func (r *postRepository) Create(ctx context.Context, post *models.Post) (err error) {
	ctx, end := r.span(ctx, "create")
	defer func() { end(err) }()

	if err := r.db.WithContext(ctx).Create(post).Error; err != nil {
		return r.storageErr(ctx, "create", err)
	}
	return nil
}

func (r *postRepository) GetByID(ctx context.Context, id string) (_ *models.Post, err error) {
	ctx, end := r.span(ctx, "get_by_id")
	defer func() { end(err) }()

	var post models.Post
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&post).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			r.log.LogMiss(ctx, "get_by_id", map[string]interface{}{"id": id})
			return nil, models.NewNotFoundError("Post", id)
		}
		return nil, r.storageErr(ctx, "get_by_id", err)
	}
	return &post, nil
}

func (r *postRepository) List(ctx context.Context, limit, offset int) (_ []*models.Post, _ int64, err error) {
	ctx, end := r.span(ctx, "list")
	defer func() { end(err) }()

	var total int64
	if err := r.db.WithContext(ctx).Model(&models.Post{}).Count(&total).Error; err != nil {
		return nil, 0, r.storageErr(ctx, "list", err)
	}

	var posts []*models.Post
	err = r.db.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	if err != nil {
		return nil, 0, r.storageErr(ctx, "list", err)
	}
	return posts, total, nil
}

func (r *postRepository) Search(ctx context.Context, query string, limit int) (_ []*models.Post, err error) {
	ctx, end := r.span(ctx, "search")
	defer func() { end(err) }()

	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var posts []*models.Post
	err = r.db.WithContext(ctx).
		Where(`LOWER(text) LIKE ? ESCAPE '\'`, pattern).
		Order("views DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&posts).Error
	if err != nil {
		return nil, r.storageErr(ctx, "search", err)
	}
	return posts, nil
}

func (r *postRepository) ListReportedByAuthor(ctx context.Context, authorEmail string) (_ []*models.Post, err error) {
	ctx, end := r.span(ctx, "list_reported")
	defer func() { end(err) }()

	var posts []*models.Post
	err = r.db.WithContext(ctx).
		Where("author_email = ? AND reports > 0", authorEmail).
		Order("reports DESC").
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		return nil, r.storageErr(ctx, "list_reported", err)
	}
	return posts, nil
}

// Save writes every column of post. Unlike gorm's Save it never inserts, so a post
// deleted concurrently stays deleted and the caller gets NOT_FOUND.
func (r *postRepository) Save(ctx context.Context, post *models.Post) (err error) {
	ctx, end := r.span(ctx, "save")
	defer func() { end(err) }()

	post.Prepare()
	result := r.db.WithContext(ctx).
		Model(post).
		Select("*").
		Omit("id", "created_at").
		Updates(post)
	if result.Error != nil {
		return r.storageErr(ctx, "save", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Post", post.ID)
	}
	return nil
}

func (r *postRepository) IncrementViews(ctx context.Context, id string) (err error) {
	ctx, end := r.span(ctx, "increment_views")
	defer func() { end(err) }()

	result := r.db.WithContext(ctx).
		Model(&models.Post{}).
		Where("id = ?", id).
		UpdateColumn("views", gorm.Expr("views + ?", 1))
	if result.Error != nil {
		return r.storageErr(ctx, "increment_views", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	return nil
}

func (r *postRepository) Delete(ctx context.Context, id string) (err error) {
	ctx, end := r.span(ctx, "delete")
	defer func() { end(err) }()

	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Post{})
	if result.Error != nil {
		return r.storageErr(ctx, "delete", result.Error)
	}
	if result.RowsAffected == 0 {
		return models.NewNotFoundError("Post", id)
	}
	r.log.LogDelete(ctx, map[string]interface{}{"id": id})
	return nil
}

func (r *postRepository) storageErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	r.log.LogError(ctx, err, op)
	return models.NewStorageError(err)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
