// Package seed provides helpers to create demo data for development and tests.
// Everything goes through the repositories, so it works against any store.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"smedia/internal/models"
	"smedia/internal/moderation"
	"smedia/internal/repository"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Factory builds users and posts with fake content and persists them.
type Factory struct {
	users repository.UserRepository
	posts repository.PostRepository
	fake  *gofakeit.Faker
	opts  Options
}

// NewFactory creates a Factory. A zero opts.RandSeed gives a random sequence.
func NewFactory(users repository.UserRepository, posts repository.PostRepository, opts Options) *Factory {
	return &Factory{users: users, posts: posts, fake: gofakeit.New(opts.RandSeed), opts: opts}
}

// BuildUser returns an unsaved user with a unique email and handle.
func (f *Factory) BuildUser() *models.User {
	first, last := f.fake.FirstName(), f.fake.LastName()
	handle := strings.ToLower(fmt.Sprintf("%s%s%d", first, last, f.fake.Number(10, 9999)))
	return &models.User{
		ID:       uuid.NewString(),
		Email:    handle + "@example.com",
		Name:     first + " " + last,
		Username: handle,
		Image:    fmt.Sprintf("https://i.pravatar.cc/150?u=%s", handle),
		Bio:      f.fake.Sentence(8),
	}
}

// BuildPost returns an unsaved post by author with a created time spread over
// the last opts.MaxDays days. Roughly a third of posts carry an image.
func (f *Factory) BuildPost(author *models.User) *models.Post {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	back := time.Duration(f.fake.Number(0, maxDays*24*60)) * time.Minute

	post := &models.Post{
		AuthorID:    author.ID,
		AuthorEmail: author.Email,
		Text:        truncate(f.fake.Paragraph(1, f.fake.Number(1, 3), 12, " "), models.MaxPostTextLength),
		CreatedAt:   time.Now().UTC().Add(-back),
	}
	if f.fake.Number(0, 2) == 0 {
		fileID := f.fake.UUID()
		post.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/800/800", fileID)
		post.ImageFileID = fileID
	}
	return post
}

// CreateUser builds and persists a user.
func (f *Factory) CreateUser(ctx context.Context, overrides ...func(*models.User)) (*models.User, error) {
	user := f.BuildUser()
	for _, o := range overrides {
		o(user)
	}
	if err := f.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user %s: %w", user.Email, err)
	}
	return user, nil
}

// CreatePost builds and persists a post.
func (f *Factory) CreatePost(ctx context.Context, author *models.User, overrides ...func(*models.Post)) (*models.Post, error) {
	post := f.BuildPost(author)
	for _, o := range overrides {
		o(post)
	}
	if err := f.posts.Create(ctx, post); err != nil {
		return nil, fmt.Errorf("create post: %w", err)
	}
	return post, nil
}

// Engage applies likes, reposts, comments, views and reports from audience to
// post and saves it. Reports stay below the moderation threshold so seeded posts
// are never removed.
func (f *Factory) Engage(ctx context.Context, post *models.Post, audience []*models.User) error {
	for _, u := range audience {
		if u.Email == post.AuthorEmail {
			continue
		}
		if f.fake.Number(0, 2) == 0 {
			post.ToggleLike(u.Email)
		}
		if f.fake.Number(0, 6) == 0 {
			post.ToggleRepost(u.Email)
		}
		if f.fake.Number(0, 4) == 0 {
			post.AppendComment(models.Comment{
				ID:           uuid.NewString(),
				Text:         f.fake.Sentence(f.fake.Number(3, 14)),
				AuthorEmail:  u.Email,
				AuthorName:   u.Name,
				AuthorAvatar: u.Image,
				CreatedAt:    post.CreatedAt.Add(time.Duration(f.fake.Number(1, 600)) * time.Minute),
			})
		}
		if f.fake.Number(0, 9) == 0 && post.Reports < moderation.Threshold-1 {
			post.AddReport(u.Email)
		}
	}
	post.Views = int64(f.fake.Number(len(post.Likes), len(post.Likes)*20+50))
	return f.posts.Save(ctx, post)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
