package repository

import (
	"context"

	"smedia/internal/cache"
	"smedia/internal/models"
)

type skipCacheKey struct{}

// WithoutCache marks ctx so GetByID on a cached store reads the backing store.
// Read-modify-write paths use it: a whole-document save must start from the
// committed version, never from a cached copy.
func WithoutCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, skipCacheKey{}, true)
}

func cacheSkipped(ctx context.Context) bool {
	skip, _ := ctx.Value(skipCacheKey{}).(bool)
	return skip
}

// cachedPostRepository puts Redis in front of single-post reads. Fills are
// stamped with the post's write generation and every mutation bumps it, so a
// fill that raced a write is discarded instead of being served for PostTTL.
type cachedPostRepository struct {
	PostRepository
}

// NewCachedPostRepository wraps next with post-by-id caching. Without a Redis client
// the cache helpers are no-ops and every call goes straight to next.
func NewCachedPostRepository(next PostRepository) PostRepository {
	return &cachedPostRepository{PostRepository: next}
}

// postEntry is the cached form of a post. ReportedBy is not part of the
// post's JSON, so it is carried alongside.
type postEntry struct {
	Post       models.Post `json:"post"`
	ReportedBy []string    `json:"reportedBy"`
}

func (r *cachedPostRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	if cacheSkipped(ctx) {
		return r.PostRepository.GetByID(ctx, id)
	}

	var entry postEntry
	err := cache.AsideGuarded(ctx, cache.PostKey(id), cache.PostGenKey(id), &entry, cache.PostTTL, func() error {
		p, err := r.PostRepository.GetByID(ctx, id)
		if err != nil {
			return err
		}
		entry = postEntry{Post: *p, ReportedBy: p.ReportedBy}
		return nil
	})
	if err != nil {
		return nil, err
	}
	post := entry.Post
	post.ReportedBy = entry.ReportedBy
	post.Prepare()
	return &post, nil
}

func (r *cachedPostRepository) Save(ctx context.Context, post *models.Post) error {
	defer cache.InvalidatePost(ctx, post.ID)
	return r.PostRepository.Save(ctx, post)
}

func (r *cachedPostRepository) IncrementViews(ctx context.Context, id string) error {
	defer cache.InvalidatePost(ctx, id)
	return r.PostRepository.IncrementViews(ctx, id)
}

func (r *cachedPostRepository) Delete(ctx context.Context, id string) error {
	defer cache.InvalidatePost(ctx, id)
	return r.PostRepository.Delete(ctx, id)
}
