package redis

import (
	"context"
	"encoding/json"

	"placement-service/internal/domain"

	"github.com/redis/go-redis/v9"
)

// Publisher delivers notifications over Redis pub/sub on one channel per recipient, so any instance
// holding the recipient's connection can forward it.
type Publisher struct {
	client *redis.Client
}

func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

func (p *Publisher) Deliver(ctx context.Context, n domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, Channel(n.Recipient), payload).Err()
}

// Channel names the pub/sub channel of one recipient.
func Channel(recipient string) string {
	return "notifications:" + recipient
}
