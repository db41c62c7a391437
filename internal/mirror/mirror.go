// Package mirror delivers accepted ledger entries to an external append-only log.
package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	redis "github.com/redis/go-redis/v9"
)

// Record is one ledger entry as handed to the external log.
type Record struct {
	TransactionID string
	ProductID     string
	Sequence      int64
	Payload       map[string]interface{}
}

// Mirror appends records to an external log and returns the external reference.
// Delivery is at-least-once; consumers dedupe on TransactionID.
type Mirror interface {
	Append(ctx context.Context, rec Record) (string, error)
}

// streamClient is the subset of *redis.Client used here.
type streamClient interface {
	XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd
}

// RedisStreamMirror appends records to a Redis stream with XADD.
type RedisStreamMirror struct {
	client streamClient
	stream string
}

func NewRedisStreamMirror(client *redis.Client, stream string) *RedisStreamMirror {
	return newRedisStreamMirror(client, stream)
}

func newRedisStreamMirror(client streamClient, stream string) *RedisStreamMirror {
	if strings.TrimSpace(stream) == "" {
		stream = "supplychain:ledger"
	}
	return &RedisStreamMirror{client: client, stream: stream}
}

// Connect parses a redis:// URL and returns a client.
func Connect(ctx context.Context, rawURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (m *RedisStreamMirror) Append(ctx context.Context, rec Record) (string, error) {
	if m == nil || m.client == nil {
		return "", errors.New("mirror client not configured")
	}
	if rec.TransactionID == "" || rec.ProductID == "" {
		return "", errors.New("mirror record is missing its ids")
	}

	body, err := json.Marshal(rec.Payload)
	if err != nil {
		return "", fmt.Errorf("encode mirror payload: %w", err)
	}
	id, err := m.client.XAdd(ctx, &redis.XAddArgs{
		Stream: m.stream,
		Values: map[string]interface{}{
			"transaction_id": rec.TransactionID,
			"product_id":     rec.ProductID,
			"sequence":       strconv.FormatInt(rec.Sequence, 10),
			"payload":        string(body),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", m.stream, err)
	}
	return id, nil
}
