package service

import (
	"context"
	"sync"
	"testing"

	"smedia/internal/models"
	"smedia/internal/repository"
	"smedia/internal/testutil"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordedEvent struct {
	Target  string
	Type    string
	Payload interface{}
}

// recordingPublisher captures events instead of delivering them.
type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) PublishBroadcast(_ context.Context, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Target: "*", Type: eventType, Payload: payload})
}

func (p *recordingPublisher) PublishUser(_ context.Context, email, eventType string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{Target: email, Type: eventType, Payload: payload})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Target+" "+e.Type)
	}
	return out
}

type fixture struct {
	db          *gorm.DB
	posts       repository.PostRepository
	users       repository.UserRepository
	events      *recordingPublisher
	interaction *InteractionService
	feed        *PostService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.NewSQLiteDB(t)
	return wire(db, repository.NewPostRepository(db))
}

// newCachedFixture puts the Redis-backed post cache in front of the store.
func newCachedFixture(t *testing.T) *fixture {
	t.Helper()
	testutil.UseCache(t)
	db := testutil.NewSQLiteDB(t)
	return wire(db, repository.NewCachedPostRepository(repository.NewPostRepository(db)))
}

func wire(db *gorm.DB, posts repository.PostRepository) *fixture {
	f := &fixture{
		db:     db,
		posts:  posts,
		users:  repository.NewUserRepository(db),
		events: &recordingPublisher{},
	}
	f.interaction = NewInteractionService(f.posts, f.events)
	f.feed = NewPostService(f.posts, f.users, f.events)
	return f
}

// eachStore runs fn against the plain store and against the cached store.
func eachStore(t *testing.T, fn func(t *testing.T, f *fixture)) {
	t.Helper()
	for _, tc := range []struct {
		name string
		new  func(*testing.T) *fixture
	}{
		{"store", newFixture},
		{"cached store", newCachedFixture},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fn(t, tc.new(t))
		})
	}
}

func (f *fixture) createPost(t *testing.T, authorEmail, text string) *models.Post {
	t.Helper()
	post, err := f.feed.CreatePost(context.Background(), CreatePostInput{
		AuthorID:    "author-" + authorEmail,
		AuthorEmail: authorEmail,
		Text:        text,
	})
	require.NoError(t, err)
	return post
}

func (f *fixture) reload(t *testing.T, id string) *models.Post {
	t.Helper()
	post, err := f.posts.GetByID(context.Background(), id)
	require.NoError(t, err)
	return post
}

// postRepoStub lets a test control a single repository call and fails on the rest.
type postRepoStub struct {
	t              *testing.T
	getByIDFn      func(context.Context, string) (*models.Post, error)
	saveFn         func(context.Context, *models.Post) error
	incrementFn    func(context.Context, string) error
	deleteFn       func(context.Context, string) error
	searchFn       func(context.Context, string, int) ([]*models.Post, error)
	listFn         func(context.Context, int, int) ([]*models.Post, int64, error)
	listReportedFn func(context.Context, string) ([]*models.Post, error)
}

func (s *postRepoStub) unexpected(name string) {
	s.t.Helper()
	s.t.Fatalf("unexpected call to %s", name)
}

func (s *postRepoStub) Create(context.Context, *models.Post) error {
	s.unexpected("Create")
	return nil
}

func (s *postRepoStub) GetByID(ctx context.Context, id string) (*models.Post, error) {
	if s.getByIDFn == nil {
		s.unexpected("GetByID")
	}
	return s.getByIDFn(ctx, id)
}

func (s *postRepoStub) List(ctx context.Context, limit, offset int) ([]*models.Post, int64, error) {
	if s.listFn == nil {
		s.unexpected("List")
	}
	return s.listFn(ctx, limit, offset)
}

func (s *postRepoStub) Search(ctx context.Context, query string, limit int) ([]*models.Post, error) {
	if s.searchFn == nil {
		s.unexpected("Search")
	}
	return s.searchFn(ctx, query, limit)
}

func (s *postRepoStub) ListReportedByAuthor(ctx context.Context, email string) ([]*models.Post, error) {
	if s.listReportedFn == nil {
		s.unexpected("ListReportedByAuthor")
	}
	return s.listReportedFn(ctx, email)
}

func (s *postRepoStub) Save(ctx context.Context, post *models.Post) error {
	if s.saveFn == nil {
		s.unexpected("Save")
	}
	return s.saveFn(ctx, post)
}

func (s *postRepoStub) IncrementViews(ctx context.Context, id string) error {
	if s.incrementFn == nil {
		s.unexpected("IncrementViews")
	}
	return s.incrementFn(ctx, id)
}

func (s *postRepoStub) Delete(ctx context.Context, id string) error {
	if s.deleteFn == nil {
		s.unexpected("Delete")
	}
	return s.deleteFn(ctx, id)
}
