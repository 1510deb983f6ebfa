// Package notifications provides real-time delivery of feed events to websocket clients.
package notifications

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"

	"smedia/internal/observability"

	"github.com/redis/go-redis/v9"
)

// Redis channels carrying feed events.
const (
	BroadcastChannel  = "feed:broadcast"
	userChannelPrefix = "feed:user:"
)

// Notifier provides helpers to publish feed events into Redis channels.
type Notifier struct {
	rdb *redis.Client
}

// NewNotifier creates a new Notifier instance using the provided Redis client.
func NewNotifier(rdb *redis.Client) *Notifier {
	return &Notifier{rdb: rdb}
}

// Enabled reports whether events travel through Redis.
func (n *Notifier) Enabled() bool {
	return n != nil && n.rdb != nil
}

// PublishUser sends a payload to every instance holding a connection for email.
func (n *Notifier) PublishUser(ctx context.Context, email, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, UserChannel(email), payload).Err()
}

// PublishBroadcast sends a payload to every connected client on every instance.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload string) error {
	if !n.Enabled() {
		return nil
	}
	return n.rdb.Publish(ctx, BroadcastChannel, payload).Err()
}

// StartPatternSubscriber subscribes to the broadcast and per-user channels and calls
// onMessage for each incoming message until ctx is cancelled.
func (n *Notifier) StartPatternSubscriber(
	ctx context.Context, onMessage func(channel string, payload string),
) error {
	if !n.Enabled() {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", BroadcastChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return err
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							observability.GlobalLogger.Error("panic in feed subscriber",
								slog.Any("panic", r),
								slog.String("stack", string(debug.Stack())))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}

// UserChannel derives the Redis channel name for a user.
func UserChannel(email string) string {
	return userChannelPrefix + strings.ToLower(email)
}

// emailFromChannel extracts the email from a per-user channel name.
func emailFromChannel(channel string) (string, bool) {
	email, ok := strings.CutPrefix(channel, userChannelPrefix)
	return email, ok && email != ""
}
