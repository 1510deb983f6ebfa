package service

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"smedia/internal/models"
	"smedia/internal/moderation"
	"smedia/internal/notifications"
	"smedia/internal/observability"
	"smedia/internal/repository"
	"smedia/internal/validation"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// InteractionService applies user interactions and moderation to a single post.
// Every mutation except views is a read-modify-write followed by a full save, so
// concurrent writers to the same post race and the last save wins.
type InteractionService struct {
	posts  repository.PostRepository
	events EventPublisher
}

// LikeResult is the post's like count after a toggle and whether the caller now likes it.
type LikeResult struct {
	Likes int  `json:"likes"`
	Liked bool `json:"liked"`
}

// RepostResult is the post's repost count after a toggle.
type RepostResult struct {
	Reposts  int  `json:"reposts"`
	Reposted bool `json:"reposted"`
}

// ReportResult carries the report count, or Deleted when moderation removed the post.
type ReportResult struct {
	Reports int
	Deleted bool
}

type AddCommentInput struct {
	PostID       string
	AuthorEmail  string
	AuthorName   string
	AuthorAvatar string
	Text         string
}

type EditPostInput struct {
	PostID     string
	ActorEmail string
	Text       string
}

// NewInteractionService returns an InteractionService. events may be nil.
func NewInteractionService(posts repository.PostRepository, events EventPublisher) *InteractionService {
	return &InteractionService{posts: posts, events: publisherOrNoop(events)}
}

// load reads the committed post, bypassing any read cache in front of the store.
func (s *InteractionService) load(ctx context.Context, postID string) (*models.Post, error) {
	return s.posts.GetByID(repository.WithoutCache(ctx), postID)
}

func (s *InteractionService) ToggleLike(ctx context.Context, postID, email string) (_ LikeResult, err error) {
	span, ctx := startSpan(ctx, "InteractionService.ToggleLike", postID)
	defer func() { span.SetError(err); span.End() }()

	email, err = actor(email)
	if err != nil {
		return LikeResult{}, err
	}
	post, err := s.load(ctx, postID)
	if err != nil {
		return LikeResult{}, err
	}

	liked := post.ToggleLike(email)
	if err := s.posts.Save(ctx, post); err != nil {
		return LikeResult{}, err
	}

	observability.PostInteractions.WithLabelValues(toggleAction("like", liked)).Inc()
	s.events.PublishBroadcast(ctx, notifications.EventPostReactionUpdated, reaction(post))
	return LikeResult{Likes: post.LikeCount(), Liked: liked}, nil
}

func (s *InteractionService) ToggleRepost(ctx context.Context, postID, email string) (_ RepostResult, err error) {
	span, ctx := startSpan(ctx, "InteractionService.ToggleRepost", postID)
	defer func() { span.SetError(err); span.End() }()

	email, err = actor(email)
	if err != nil {
		return RepostResult{}, err
	}
	post, err := s.load(ctx, postID)
	if err != nil {
		return RepostResult{}, err
	}

	reposted := post.ToggleRepost(email)
	if err := s.posts.Save(ctx, post); err != nil {
		return RepostResult{}, err
	}

	observability.PostInteractions.WithLabelValues(toggleAction("repost", reposted)).Inc()
	s.events.PublishBroadcast(ctx, notifications.EventPostReactionUpdated, reaction(post))
	return RepostResult{Reposts: post.RepostCount(), Reposted: reposted}, nil
}

// AddComment appends a comment. Empty text is rejected before the post is read.
func (s *InteractionService) AddComment(ctx context.Context, in AddCommentInput) (_ *models.Comment, err error) {
	span, ctx := startSpan(ctx, "InteractionService.AddComment", in.PostID)
	defer func() { span.SetError(err); span.End() }()

	email, err := actor(in.AuthorEmail)
	if err != nil {
		return nil, err
	}
	text, err := validation.CommentText(in.Text)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}

	post, err := s.load(ctx, in.PostID)
	if err != nil {
		return nil, err
	}

	comment := models.Comment{
		ID:           uuid.NewString(),
		Text:         text,
		AuthorEmail:  email,
		AuthorName:   orDefault(in.AuthorName, models.DefaultCommentAuthorName),
		AuthorAvatar: orDefault(in.AuthorAvatar, models.DefaultCommentAuthorAvatar),
		CreatedAt:    time.Now().UTC(),
	}
	post.AppendComment(comment)
	if err := s.posts.Save(ctx, post); err != nil {
		return nil, err
	}

	observability.PostInteractions.WithLabelValues("comment").Inc()
	s.events.PublishBroadcast(ctx, notifications.EventCommentCreated, CommentPayload{
		PostID:  post.ID,
		Comment: &comment,
		Replies: len(post.Comments),
	})
	return &comment, nil
}

// IncrementView adds one view atomically. Callers treat failures as best-effort.
func (s *InteractionService) IncrementView(ctx context.Context, postID string) (err error) {
	span, ctx := startSpan(ctx, "InteractionService.IncrementView", postID)
	defer func() { span.SetError(err); span.End() }()

	if err := s.posts.IncrementViews(ctx, postID); err != nil {
		observability.ViewIncrementFailures.Inc()
		return err
	}
	observability.PostInteractions.WithLabelValues("view").Inc()
	return nil
}

// ReportPost records a report from email. The report is counted first and the
// moderation decision taken on the new count: at the threshold the post is
// deleted instead of saved.
func (s *InteractionService) ReportPost(ctx context.Context, postID, email string) (_ ReportResult, err error) {
	span, ctx := startSpan(ctx, "InteractionService.ReportPost", postID)
	defer func() { span.SetError(err); span.End() }()

	email, err = actor(email)
	if err != nil {
		return ReportResult{}, err
	}
	post, err := s.load(ctx, postID)
	if err != nil {
		return ReportResult{}, err
	}
	if !post.AddReport(email) {
		return ReportResult{}, models.NewAlreadyReportedError()
	}

	decision := moderation.Decide(post.Reports)
	span.AddAttributes(
		attribute.Int("post.reports", post.Reports),
		attribute.String("moderation.decision", decision.String()),
	)

	if decision == moderation.Delete {
		if err := s.posts.Delete(ctx, post.ID); err != nil {
			return ReportResult{}, err
		}
		observability.ModerationDecisions.WithLabelValues(decision.String()).Inc()
		observability.PostInteractions.WithLabelValues("report").Inc()

		payload := DeletePayload{PostID: post.ID, Reason: DeletedByModeration}
		s.events.PublishBroadcast(ctx, notifications.EventPostDeleted, payload)
		s.events.PublishUser(ctx, post.AuthorEmail, notifications.EventPostDeleted, payload)
		return ReportResult{Reports: post.Reports, Deleted: true}, nil
	}

	if err := s.posts.Save(ctx, post); err != nil {
		return ReportResult{}, err
	}
	observability.ModerationDecisions.WithLabelValues(decision.String()).Inc()
	observability.PostInteractions.WithLabelValues("report").Inc()

	s.events.PublishUser(ctx, post.AuthorEmail, notifications.EventPostReported, ReportPayload{
		PostID:  post.ID,
		Reports: post.Reports,
	})
	return ReportResult{Reports: post.Reports}, nil
}

// EditPost replaces the text of a post owned by the actor.
func (s *InteractionService) EditPost(ctx context.Context, in EditPostInput) (_ *models.Post, err error) {
	span, ctx := startSpan(ctx, "InteractionService.EditPost", in.PostID)
	defer func() { span.SetError(err); span.End() }()

	email, err := actor(in.ActorEmail)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(in.Text)
	if utf8.RuneCountInString(text) > models.MaxPostTextLength {
		return nil, models.NewValidationError(validation.ErrTextTooLong.Error())
	}

	post, err := s.load(ctx, in.PostID)
	if err != nil {
		return nil, err
	}
	if !post.IsOwnedBy(email) {
		return nil, models.NewForbiddenError("You can only edit your own posts")
	}
	if text == "" && post.ImageURL == "" {
		return nil, models.NewValidationError(validation.ErrEmptyPost.Error())
	}

	post.Text = text
	if err := s.posts.Save(ctx, post); err != nil {
		return nil, err
	}

	observability.PostInteractions.WithLabelValues("edit").Inc()
	s.events.PublishBroadcast(ctx, notifications.EventPostUpdated, post)
	return post, nil
}

// DeletePost removes a post owned by the actor. Deleting twice gives NOT_FOUND.
func (s *InteractionService) DeletePost(ctx context.Context, postID, actorEmail string) (err error) {
	span, ctx := startSpan(ctx, "InteractionService.DeletePost", postID)
	defer func() { span.SetError(err); span.End() }()

	email, err := actor(actorEmail)
	if err != nil {
		return err
	}
	post, err := s.load(ctx, postID)
	if err != nil {
		return err
	}
	if !post.IsOwnedBy(email) {
		return models.NewForbiddenError("You can only delete your own posts")
	}
	if err := s.posts.Delete(ctx, post.ID); err != nil {
		return err
	}

	observability.PostInteractions.WithLabelValues("delete").Inc()
	s.events.PublishBroadcast(ctx, notifications.EventPostDeleted, DeletePayload{
		PostID: post.ID,
		Reason: DeletedByAuthor,
	})
	return nil
}

func startSpan(ctx context.Context, name, postID string) (*observability.Span, context.Context) {
	span, ctx := observability.NewSpan(ctx, name)
	if postID != "" {
		span.AddAttributes(attribute.String("post.id", postID))
	}
	return span, ctx
}

func actor(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", models.NewUnauthorizedError("Unauthorized")
	}
	return email, nil
}

func reaction(post *models.Post) ReactionPayload {
	return ReactionPayload{PostID: post.ID, Likes: post.LikeCount(), Reposts: post.RepostCount()}
}

func toggleAction(action string, on bool) string {
	if on {
		return action
	}
	return "un" + action
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
