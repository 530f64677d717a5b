package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	Enqueue(ctx context.Context, task ReconcileTask) error
	Close() error
}

type redisProducer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client *redis.Client, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, task ReconcileTask) error {
	attempt := task.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := map[string]any{
		"since_unix": task.Since.Unix(),
		"limit":      task.Limit,
		"attempt":    attempt,
	}
	if task.ProviderMessageID != "" {
		fields["provider_message_id"] = task.ProviderMessageID
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Err(); err != nil {
		return fmt.Errorf("enqueue reconcile task: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued reconcile task",
		"since", task.Since,
		"limit", task.Limit,
		"provider_message_id", task.ProviderMessageID)
	return nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}
