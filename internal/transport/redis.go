package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	"github.com/redis/go-redis/v9"

	"propdesk/collab/internal/util"
)

// RedisChannel implements Channel over Redis pub/sub. Every peer in a
// deployment publishes and subscribes on the same Redis channel; a peer
// skips messages carrying its own origin id.
type RedisChannel struct {
	client  *redis.Client
	channel string
	origin  string
	pubsub  *redis.PubSub
	logger  *log.Logger

	mu      sync.Mutex
	handler Handler
	closed  bool
}

func NewRedisChannel(client *redis.Client, channel string, logger *log.Logger) *RedisChannel {
	if logger == nil {
		logger = log.Default()
	}
	c := &RedisChannel{
		client:  client,
		channel: channel,
		origin:  util.NewID("peer"),
		logger:  logger,
	}
	c.pubsub = client.Subscribe(context.Background(), channel)
	go c.readLoop()
	return c
}

func (c *RedisChannel) readLoop() {
	for raw := range c.pubsub.Channel() {
		var msg Message
		if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
			c.logger.Printf("transport: dropping malformed message: %v", err)
			continue
		}
		if msg.Origin == c.origin {
			continue
		}

		c.mu.Lock()
		handler := c.handler
		c.mu.Unlock()
		if handler != nil {
			handler(msg)
		}
	}
}

func (c *RedisChannel) Send(msg Message) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrChannelClosed
	}

	msg.Origin = c.origin
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := c.client.Publish(context.Background(), c.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (c *RedisChannel) OnMessage(fn Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = fn
}

func (c *RedisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.pubsub.Close()
}
