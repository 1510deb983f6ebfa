package repository

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"
	"testing"
	"time"

	"smedia/internal/models"
	"smedia/internal/testutil"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

func newPost(author, text string, createdAt time.Time) *models.Post {
	return &models.Post{
		AuthorID:    "id-" + author,
		AuthorEmail: author,
		Text:        text,
		CreatedAt:   createdAt,
	}
}

func TestPostRepository_GetByID_SQL(t *testing.T) {
	tests := []struct {
		name         string
		mockBehavior func(mock sqlmock.Sqlmock)
		expectedCode string
	}{
		{
			name: "Found",
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE id = $1 ORDER BY "posts"."id" LIMIT $2`)).
					WithArgs("p1", 1).
					WillReturnRows(sqlmock.NewRows([]string{"id", "author_id", "text", "likes", "views"}).
						AddRow("p1", "u1", "hello", `["a@example.com"]`, 3))
			},
		},
		{
			name: "Not Found",
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE id = $1`)).
					WithArgs("p1", 1).
					WillReturnError(gorm.ErrRecordNotFound)
			},
			expectedCode: models.CodeNotFound,
		},
		{
			name: "Driver Error",
			mockBehavior: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "posts" WHERE id = $1`)).
					WithArgs("p1", 1).
					WillReturnError(errors.New("connection reset"))
			},
			expectedCode: models.CodeStorageUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := setupMockDB(t)
			repo := NewPostRepository(db)
			tt.mockBehavior(mock)

			post, err := repo.GetByID(context.Background(), "p1")
			if tt.expectedCode != "" {
				assert.True(t, models.HasCode(err, tt.expectedCode), "got %v", err)
				assert.Nil(t, post)
			} else {
				require.NoError(t, err)
				assert.Equal(t, "hello", post.Text)
				assert.Equal(t, int64(3), post.Views)
				assert.True(t, post.HasLiked("a@example.com"))
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostRepository_IncrementViews_SQL(t *testing.T) {
	t.Run("Atomic update", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "posts" SET "views"=views + $1 WHERE id = $2`)).
			WithArgs(1, "p1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		assert.NoError(t, repo.IncrementViews(context.Background(), "p1"))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Missing post", func(t *testing.T) {
		db, mock := setupMockDB(t)
		repo := NewPostRepository(db)

		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE "posts" SET "views"=views + $1 WHERE id = $2`)).
			WithArgs(1, "gone").
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		err := repo.IncrementViews(context.Background(), "gone")
		assert.True(t, models.IsNotFound(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestPostRepository_Delete_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewPostRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "posts" WHERE id = $1`)).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "posts" WHERE id = $1`)).
		WithArgs("p1").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	ctx := context.Background()
	assert.NoError(t, repo.Delete(ctx, "p1"))
	assert.True(t, models.IsNotFound(repo.Delete(ctx, "p1")), "second delete must report not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostRepository_SQLiteRoundTrip(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	post := newPost("owner@example.com", "first post", time.Now())
	require.NoError(t, repo.Create(ctx, post))
	require.NotEmpty(t, post.ID)

	loaded, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Likes)
	assert.Empty(t, loaded.Comments)

	loaded.ToggleLike("a@example.com")
	loaded.ToggleRepost("b@example.com")
	loaded.AddReport("c@example.com")
	loaded.AppendComment(models.Comment{ID: "c1", Text: "nice", AuthorEmail: "a@example.com", AuthorName: "A", CreatedAt: time.Now()})
	require.NoError(t, repo.Save(ctx, loaded))

	again, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com"}, []string(again.Likes))
	assert.Equal(t, []string{"b@example.com"}, []string(again.Reposts))
	assert.Equal(t, 1, again.Reports)
	require.Len(t, again.Comments, 1)
	assert.Equal(t, "nice", again.Comments[0].Text)
	assert.Equal(t, post.CreatedAt.Unix(), again.CreatedAt.Unix())
}

func TestPostRepository_SaveAfterDeleteIsNotFound(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	post := newPost("owner@example.com", "short lived", time.Now())
	require.NoError(t, repo.Create(ctx, post))
	require.NoError(t, repo.Delete(ctx, post.ID))

	post.ToggleLike("a@example.com")
	assert.True(t, models.IsNotFound(repo.Save(ctx, post)))

	_, err := repo.GetByID(ctx, post.ID)
	assert.True(t, models.IsNotFound(err), "save must not resurrect a deleted post")
}

func TestPostRepository_ConcurrentViewIncrements(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	post := newPost("owner@example.com", "popular", time.Now())
	require.NoError(t, repo.Create(ctx, post))

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, repo.IncrementViews(ctx, post.ID))
		}()
	}
	wg.Wait()

	loaded, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(n), loaded.Views)
	assert.True(t, models.IsNotFound(repo.IncrementViews(ctx, "missing")))
}

func TestPostRepository_ListPagesNewestFirst(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Create(ctx, newPost("a@example.com", fmt.Sprintf("post %d", i), base.Add(time.Duration(i)*time.Minute))))
	}

	page, total, err := repo.List(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(5), total)
	require.Len(t, page, 2)
	assert.Equal(t, "post 4", page[0].Text)
	assert.Equal(t, "post 3", page[1].Text)

	page, _, err = repo.List(ctx, 2, 4)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "post 0", page[0].Text)
}

func TestPostRepository_SearchOrdering(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	now := time.Now()
	low := newPost("a@example.com", "Go is fun", now)
	high := newPost("b@example.com", "I love GO", now.Add(-time.Hour))
	newer := newPost("c@example.com", "go go go", now.Add(time.Minute))
	other := newPost("d@example.com", "rust only", now)
	literal := newPost("e@example.com", "100% sure", now)
	for _, p := range []*models.Post{low, high, newer, other, literal} {
		require.NoError(t, repo.Create(ctx, p))
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.IncrementViews(ctx, high.ID))
	}

	results, err := repo.Search(ctx, "go", 20)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, high.ID, results[0].ID, "most viewed first")
	assert.Equal(t, newer.ID, results[1].ID, "then newest")
	assert.Equal(t, low.ID, results[2].ID)

	results, err = repo.Search(ctx, "%", 20)
	require.NoError(t, err)
	require.Len(t, results, 1, "wildcards in the query match literally")
	assert.Equal(t, literal.ID, results[0].ID)

	results, err = repo.Search(ctx, "go", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestPostRepository_ListReportedByAuthor(t *testing.T) {
	db := testutil.NewSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	now := time.Now()
	clean := newPost("owner@example.com", "clean", now)
	once := newPost("owner@example.com", "once", now)
	twice := newPost("owner@example.com", "twice", now.Add(-time.Hour))
	foreign := newPost("other@example.com", "foreign", now)
	for _, p := range []*models.Post{clean, once, twice, foreign} {
		require.NoError(t, repo.Create(ctx, p))
	}

	report := func(p *models.Post, emails ...string) {
		for _, e := range emails {
			p.AddReport(e)
		}
		require.NoError(t, repo.Save(ctx, p))
	}
	report(once, "x@example.com")
	report(twice, "x@example.com", "y@example.com")
	report(foreign, "x@example.com")

	posts, err := repo.ListReportedByAuthor(ctx, "owner@example.com")
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, twice.ID, posts[0].ID)
	assert.Equal(t, once.ID, posts[1].ID)
}

func TestCachedPostRepository_InvalidatesOnMutation(t *testing.T) {
	mr := testutil.UseCache(t)
	db := testutil.NewSQLiteDB(t)
	repo := NewCachedPostRepository(NewPostRepository(db))
	ctx := context.Background()

	post := newPost("owner@example.com", "cached", time.Now())
	require.NoError(t, repo.Create(ctx, post))

	_, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists("post:"+post.ID))

	require.NoError(t, repo.IncrementViews(ctx, post.ID))
	assert.False(t, mr.Exists("post:"+post.ID))

	loaded, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), loaded.Views)

	loaded.ToggleLike("a@example.com")
	require.NoError(t, repo.Save(ctx, loaded))
	assert.False(t, mr.Exists("post:"+post.ID))

	fresh, err := repo.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, fresh.HasLiked("a@example.com"))

	require.NoError(t, repo.Delete(ctx, post.ID))
	_, err = repo.GetByID(ctx, post.ID)
	assert.True(t, models.IsNotFound(err))
}

// gatedRepository holds its first GetByID after reading, until release is closed.
type gatedRepository struct {
	PostRepository
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func newGatedRepository(next PostRepository) *gatedRepository {
	return &gatedRepository{PostRepository: next, read: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRepository) GetByID(ctx context.Context, id string) (*models.Post, error) {
	post, err := g.PostRepository.GetByID(ctx, id)
	hold := false
	g.once.Do(func() { hold = true })
	if hold {
		close(g.read)
		<-g.release
	}
	return post, err
}

func TestCachedPostRepository_SlowFillRacingSave(t *testing.T) {
	testutil.UseCache(t)
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()

	gated := newGatedRepository(NewPostRepository(db))
	reader := NewCachedPostRepository(gated)
	writer := NewCachedPostRepository(NewPostRepository(db))

	post := newPost("owner@example.com", "race", time.Now())
	require.NoError(t, writer.Create(ctx, post))

	done := make(chan error, 1)
	go func() {
		_, err := reader.GetByID(ctx, post.ID)
		done <- err
	}()
	<-gated.read

	current, err := writer.GetByID(WithoutCache(ctx), post.ID)
	require.NoError(t, err)
	current.ToggleLike("a@example.com")
	require.NoError(t, writer.Save(ctx, current))

	close(gated.release)
	require.NoError(t, <-done)

	loaded, err := reader.GetByID(ctx, post.ID)
	require.NoError(t, err)
	assert.True(t, loaded.HasLiked("a@example.com"))
	assert.Equal(t, 1, loaded.LikeCount())
}

func TestCachedPostRepository_SlowFillRacingDelete(t *testing.T) {
	testutil.UseCache(t)
	db := testutil.NewSQLiteDB(t)
	ctx := context.Background()

	gated := newGatedRepository(NewPostRepository(db))
	reader := NewCachedPostRepository(gated)
	writer := NewCachedPostRepository(NewPostRepository(db))

	post := newPost("owner@example.com", "doomed", time.Now())
	require.NoError(t, writer.Create(ctx, post))

	done := make(chan error, 1)
	go func() {
		_, err := reader.GetByID(ctx, post.ID)
		done <- err
	}()
	<-gated.read

	require.NoError(t, writer.Delete(ctx, post.ID))

	close(gated.release)
	require.NoError(t, <-done)

	_, err := reader.GetByID(ctx, post.ID)
	assert.True(t, models.IsNotFound(err))
}

func TestCachedPostRepository_WithoutCacheSkipsRedis(t *testing.T) {
	mr := testutil.UseCache(t)
	db := testutil.NewSQLiteDB(t)
	repo := NewCachedPostRepository(NewPostRepository(db))
	ctx := context.Background()

	post := newPost("owner@example.com", "uncached", time.Now())
	require.NoError(t, repo.Create(ctx, post))

	_, err := repo.GetByID(WithoutCache(ctx), post.ID)
	require.NoError(t, err)
	assert.False(t, mr.Exists("post:"+post.ID))
}

func TestCachedPostRepository_KeepsReporters(t *testing.T) {
	testutil.UseCache(t)
	db := testutil.NewSQLiteDB(t)
	repo := NewCachedPostRepository(NewPostRepository(db))
	ctx := context.Background()

	post := newPost("owner@example.com", "reported", time.Now())
	require.NoError(t, repo.Create(ctx, post))
	post.AddReport("x@example.com")
	require.NoError(t, repo.Save(ctx, post))

	for range 2 {
		loaded, err := repo.GetByID(ctx, post.ID)
		require.NoError(t, err)
		assert.True(t, loaded.HasReported("x@example.com"))
		assert.Equal(t, 1, loaded.Reports)
	}
}
