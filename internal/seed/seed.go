package seed

import (
	"context"
	"fmt"
	"log/slog"

	"smedia/internal/models"
	"smedia/internal/observability"
	"smedia/internal/repository"
)

// Options configures a seeding run.
type Options struct {
	NumUsers int
	NumPosts int
	// MaxDays bounds how far back post timestamps are spread.
	MaxDays int
	// Audience is how many users may interact with each post.
	Audience int
	RandSeed int64
}

// DefaultOptions is a small feed suitable for local development.
func DefaultOptions() Options {
	return Options{NumUsers: 12, NumPosts: 60, MaxDays: 30, Audience: 8}
}

// Result lists what a run created.
type Result struct {
	Users []*models.User
	Posts []*models.Post
}

// Seed creates opts.NumUsers users, then opts.NumPosts posts spread across them
// with engagement from a rotating audience.
func Seed(ctx context.Context, users repository.UserRepository, posts repository.PostRepository, opts Options) (*Result, error) {
	if opts.NumUsers <= 0 {
		return nil, fmt.Errorf("seed needs at least one user")
	}
	f := NewFactory(users, posts, opts)
	res := &Result{}

	for i := 0; i < opts.NumUsers; i++ {
		u, err := f.CreateUser(ctx)
		if err != nil {
			return nil, err
		}
		res.Users = append(res.Users, u)
	}
	observability.GlobalLogger.InfoContext(ctx, "seeded users", slog.Int("count", len(res.Users)))

	audience := opts.Audience
	if audience <= 0 || audience > len(res.Users) {
		audience = len(res.Users)
	}

	for i := 0; i < opts.NumPosts; i++ {
		author := res.Users[i%len(res.Users)]
		post, err := f.CreatePost(ctx, author)
		if err != nil {
			return nil, err
		}

		start := (i * 3) % len(res.Users)
		viewers := make([]*models.User, 0, audience)
		for j := 0; j < audience; j++ {
			viewers = append(viewers, res.Users[(start+j)%len(res.Users)])
		}
		if err := f.Engage(ctx, post, viewers); err != nil {
			return nil, fmt.Errorf("engage post %s: %w", post.ID, err)
		}
		res.Posts = append(res.Posts, post)
	}
	observability.GlobalLogger.InfoContext(ctx, "seeded posts", slog.Int("count", len(res.Posts)))

	return res, nil
}
