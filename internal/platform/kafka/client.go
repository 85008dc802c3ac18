// Package kafka wraps the franz-go client used for lifecycle notifications.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"

	"mppchs/internal/platform/config"
)

// Client wraps a kgo producer with topic bootstrap and health checking.
type Client struct {
	*kgo.Client
	topic string
}

// New creates a producer for cfg. Returns nil if no brokers are configured.
func New(ctx context.Context, cfg config.KafkaConfig) (*Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.DefaultProduceTopic(cfg.Topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerLinger(5*time.Millisecond),
		kgo.RecordDeliveryTimeout(10*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := cl.Ping(pingCtx); err != nil {
		cl.Close()
		return nil, fmt.Errorf("kafka ping failed: %w", err)
	}

	return &Client{Client: cl, topic: cfg.Topic}, nil
}

// Topic is the default produce topic.
func (c *Client) Topic() string {
	return c.topic
}

// EnsureTopic creates the topic if it does not exist yet.
func (c *Client) EnsureTopic(ctx context.Context, partitions int32, replicationFactor int16) error {
	adm := kadm.NewClient(c.Client)
	resp, err := adm.CreateTopics(ctx, partitions, replicationFactor, nil, c.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", c.topic, err)
	}
	for _, r := range resp {
		if r.Err != nil && !errors.Is(r.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", r.Topic, r.Err)
		}
	}
	return nil
}

// Health checks broker reachability.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx)
}

// Close flushes buffered records and closes the client.
func (c *Client) Close(ctx context.Context) {
	_ = c.Flush(ctx)
	c.Client.Close()
}
