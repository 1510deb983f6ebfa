package service

import (
	"context"
	"strings"
	"time"

	"smedia/internal/cache"
	"smedia/internal/models"
	"smedia/internal/notifications"
	"smedia/internal/observability"
	"smedia/internal/repository"
	"smedia/internal/validation"
)

// Feed paging and search limits.
const (
	DefaultPageSize = 20
	MaxPageSize     = 50
	SearchLimit     = 20

	unknownAuthorName   = "Unknown"
	unknownAuthorHandle = "@unknown"
)

// PostService assembles the feed: creating posts, listing, search and the
// author's reported-posts view.
type PostService struct {
	posts  repository.PostRepository
	users  repository.UserRepository
	events EventPublisher
}

type CreatePostInput struct {
	AuthorID    string
	AuthorEmail string
	Text        string
	ImageURL    string
	ImageFileID string
}

type ListPostsInput struct {
	Page  int
	Limit int
}

// PostPage is one page of the feed, newest first.
type PostPage struct {
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
	Total int64          `json:"total"`
	Posts []*models.Post `json:"posts"`
}

// SearchResult is a post decorated with its counters and author for search listings.
type SearchResult struct {
	ID        string       `json:"id"`
	Content   string       `json:"content"`
	Image     string       `json:"image,omitempty"`
	CreatedAt time.Time    `json:"createdAt"`
	Stats     SearchStats  `json:"stats"`
	Author    SearchAuthor `json:"author"`
}

type SearchStats struct {
	Likes   int   `json:"likes"`
	Reposts int   `json:"reposts"`
	Replies int   `json:"replies"`
	Views   int64 `json:"views"`
}

type SearchAuthor struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
	Avatar string `json:"avatar,omitempty"`
	Email  string `json:"email,omitempty"`
}

// UserResult is the public profile returned by user search.
type UserResult struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
	Image    string `json:"image,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

// NewPostService returns a PostService. users and events may be nil.
func NewPostService(posts repository.PostRepository, users repository.UserRepository, events EventPublisher) *PostService {
	return &PostService{posts: posts, users: users, events: publisherOrNoop(events)}
}

func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (_ *models.Post, err error) {
	span, ctx := startSpan(ctx, "PostService.CreatePost", "")
	defer func() { span.SetError(err); span.End() }()

	email, err := actor(in.AuthorEmail)
	if err != nil {
		return nil, err
	}
	text, err := validation.PostBody(in.Text, in.ImageURL)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	post := &models.Post{
		AuthorID:    in.AuthorID,
		AuthorEmail: email,
		Text:        text,
		ImageURL:    strings.TrimSpace(in.ImageURL),
		ImageFileID: strings.TrimSpace(in.ImageFileID),
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}

	observability.PostInteractions.WithLabelValues("create").Inc()
	s.events.PublishBroadcast(ctx, notifications.EventPostCreated, post)
	return post, nil
}

func (s *PostService) GetPost(ctx context.Context, id string) (*models.Post, error) {
	return s.posts.GetByID(ctx, id)
}

// ListPosts returns a page of the feed. Page is clamped to at least 1 and limit
// to [1, MaxPageSize], with DefaultPageSize when unset.
func (s *PostService) ListPosts(ctx context.Context, in ListPostsInput) (*PostPage, error) {
	page, limit := in.Page, in.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	posts, total, err := s.posts.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return &PostPage{Page: page, Limit: limit, Total: total, Posts: posts}, nil
}

// SearchPosts matches text case-insensitively and returns the most viewed posts
// first. An empty query lists the most viewed posts overall. Results are cached
// briefly, so counters may lag behind the store by up to SearchTTL.
func (s *PostService) SearchPosts(ctx context.Context, query string) (_ []SearchResult, err error) {
	span, ctx := startSpan(ctx, "PostService.SearchPosts", "")
	defer func() { span.SetError(err); span.End() }()

	query = strings.TrimSpace(query)
	var results []SearchResult
	err = cache.Aside(ctx, cache.SearchKey(query), &results, cache.SearchTTL, func() error {
		posts, err := s.posts.Search(ctx, query, SearchLimit)
		if err != nil {
			return err
		}
		authors, err := s.authorsOf(ctx, posts)
		if err != nil {
			return err
		}

		results = make([]SearchResult, 0, len(posts))
		for _, p := range posts {
			results = append(results, SearchResult{
				ID:        p.ID,
				Content:   p.Text,
				Image:     p.ImageURL,
				CreatedAt: p.CreatedAt,
				Stats: SearchStats{
					Likes:   p.LikeCount(),
					Reposts: p.RepostCount(),
					Replies: len(p.Comments),
					Views:   p.Views,
				},
				Author: authorOf(authors[p.AuthorID]),
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// SearchUsers matches name or username case-insensitively.
func (s *PostService) SearchUsers(ctx context.Context, query string) ([]UserResult, error) {
	results := []UserResult{}
	if s.users == nil {
		return results, nil
	}
	users, err := s.users.Search(ctx, strings.TrimSpace(query), SearchLimit)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		results = append(results, UserResult{ID: u.ID, Name: u.Name, Username: u.Username, Image: u.Image, Bio: u.Bio})
	}
	return results, nil
}

// ListReportedPosts returns the author's posts that carry at least one report,
// most reported first.
func (s *PostService) ListReportedPosts(ctx context.Context, authorEmail string) ([]*models.Post, error) {
	email, err := actor(authorEmail)
	if err != nil {
		return nil, err
	}
	posts, err := s.posts.ListReportedByAuthor(ctx, email)
	if err != nil {
		return nil, err
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	return posts, nil
}

func (s *PostService) authorsOf(ctx context.Context, posts []*models.Post) (map[string]*models.User, error) {
	byID := make(map[string]*models.User)
	if s.users == nil || len(posts) == 0 {
		return byID, nil
	}

	seen := make(map[string]struct{}, len(posts))
	ids := make([]string, 0, len(posts))
	for _, p := range posts {
		if _, ok := seen[p.AuthorID]; ok || p.AuthorID == "" {
			continue
		}
		seen[p.AuthorID] = struct{}{}
		ids = append(ids, p.AuthorID)
	}

	users, err := s.users.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range users {
		byID[u.ID] = u
	}
	return byID, nil
}

func authorOf(u *models.User) SearchAuthor {
	if u == nil {
		return SearchAuthor{Name: unknownAuthorName, Handle: unknownAuthorHandle}
	}
	return SearchAuthor{
		Name:   orDefault(u.Name, unknownAuthorName),
		Handle: orDefault(u.Username, unknownAuthorHandle),
		Avatar: u.Image,
		Email:  u.Email,
	}
}
