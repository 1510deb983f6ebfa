package notifications

import (
	"context"
	"encoding/json"
	"log/slog"

	"smedia/internal/observability"
)

// Feed event types.
const (
	EventPostReactionUpdated = "post_reaction_updated"
	EventCommentCreated      = "comment_created"
	EventPostReported        = "post_reported"
	EventPostDeleted         = "post_deleted"
	EventPostUpdated         = "post_updated"
	EventPostCreated         = "post_created"
)

// Event is the frame written to websocket clients.
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// FeedPublisher delivers feed events. With Redis configured events go through
// the notifier so every instance sees them; otherwise they go straight to the
// local hub. A nil publisher drops everything.
type FeedPublisher struct {
	notifier *Notifier
	hub      *FeedHub
}

// NewFeedPublisher wires a publisher. Either argument may be nil.
func NewFeedPublisher(notifier *Notifier, hub *FeedHub) *FeedPublisher {
	return &FeedPublisher{notifier: notifier, hub: hub}
}

// PublishBroadcast sends an event to every feed subscriber.
func (p *FeedPublisher) PublishBroadcast(ctx context.Context, eventType string, payload interface{}) {
	if p == nil {
		return
	}
	frame, ok := encode(eventType, payload)
	if !ok {
		return
	}
	if p.notifier.Enabled() {
		err := p.notifier.PublishBroadcast(ctx, frame)
		if err == nil {
			return
		}
		p.failed(ctx, eventType, err)
	}
	if p.hub != nil {
		p.hub.BroadcastAll(frame)
	}
}

// PublishUser sends an event to the connections of a single user.
func (p *FeedPublisher) PublishUser(ctx context.Context, email, eventType string, payload interface{}) {
	if p == nil || email == "" {
		return
	}
	frame, ok := encode(eventType, payload)
	if !ok {
		return
	}
	if p.notifier.Enabled() {
		err := p.notifier.PublishUser(ctx, email, frame)
		if err == nil {
			return
		}
		p.failed(ctx, eventType, err)
	}
	if p.hub != nil {
		p.hub.Broadcast(email, frame)
	}
}

func (p *FeedPublisher) failed(ctx context.Context, eventType string, err error) {
	observability.RealtimePublishFailures.WithLabelValues(eventType).Inc()
	observability.GlobalLogger.WarnContext(ctx, "feed publish failed, delivering locally",
		slog.String("event_type", eventType),
		slog.String("error", err.Error()))
}

func encode(eventType string, payload interface{}) (string, bool) {
	b, err := json.Marshal(Event{Type: eventType, Payload: payload})
	if err != nil {
		observability.RealtimePublishFailures.WithLabelValues(eventType).Inc()
		return "", false
	}
	return string(b), true
}
