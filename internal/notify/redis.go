package notify

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	adminsChannel     = "notify:admins"
	userChannelPrefix = "notify:user:"
)

// RedisNotifier publishes notifications on pub/sub channels consumed by the
// push-delivery workers. Publish failures are logged and swallowed.
type RedisNotifier struct {
	Client *redis.Client
}

func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{Client: client}
}

func (n *RedisNotifier) NotifyUser(ctx context.Context, userID, title, body string, severity Severity, link string) {
	n.publish(ctx, userChannelPrefix+userID, Notification{
		Title:     title,
		Body:      body,
		Severity:  severity,
		Link:      link,
		UserID:    userID,
		CreatedAt: time.Now().UTC(),
	})
}

func (n *RedisNotifier) NotifyAdmins(ctx context.Context, title, body string, severity Severity, link string) {
	n.publish(ctx, adminsChannel, Notification{
		Title:     title,
		Body:      body,
		Severity:  severity,
		Link:      link,
		CreatedAt: time.Now().UTC(),
	})
}

func (n *RedisNotifier) publish(ctx context.Context, channel string, msg Notification) {
	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("notify marshal failed channel=%s: %v", channel, err)
		return
	}
	if err := n.Client.Publish(ctx, channel, payload).Err(); err != nil {
		log.Printf("notify publish failed channel=%s: %v", channel, err)
	}
}
