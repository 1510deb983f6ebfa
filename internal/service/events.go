package service

import (
	"context"

	"smedia/internal/models"
)

// EventPublisher fans feed events out to live clients. Implementations must not
// block on slow consumers and must swallow their own failures.
type EventPublisher interface {
	PublishBroadcast(ctx context.Context, eventType string, payload interface{})
	PublishUser(ctx context.Context, email, eventType string, payload interface{})
}

type noopPublisher struct{}

func (noopPublisher) PublishBroadcast(context.Context, string, interface{}) {}
func (noopPublisher) PublishUser(context.Context, string, string, interface{}) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

// ReactionPayload is sent with post_reaction_updated.
type ReactionPayload struct {
	PostID  string `json:"postId"`
	Likes   int    `json:"likes"`
	Reposts int    `json:"reposts"`
}

// CommentPayload is sent with comment_created.
type CommentPayload struct {
	PostID  string          `json:"postId"`
	Comment *models.Comment `json:"comment"`
	Replies int             `json:"replies"`
}

// ReportPayload is sent to the author with post_reported.
type ReportPayload struct {
	PostID  string `json:"postId"`
	Reports int    `json:"reports"`
}

// DeletePayload is sent with post_deleted.
type DeletePayload struct {
	PostID string `json:"postId"`
	Reason string `json:"reason"`
}

// Reasons carried by DeletePayload.
const (
	DeletedByAuthor     = "author"
	DeletedByModeration = "moderation"
)
