package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/kozaktomas/face-attendance/internal/constants"
)

// Publisher is the subset of a Redis client used for publishing.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// RedisPublisher publishes events as JSON to a Redis pub/sub channel. Events
// are queued and sent by a single worker, so a slow or unreachable server
// never delays a punch. When the queue is full new events are dropped.
type RedisPublisher struct {
	client  Publisher
	channel string
	logger  *zap.Logger

	queue  chan Event
	done   chan struct{}
	mu     sync.RWMutex
	closed bool
}

// NewRedisPublisher creates a publisher on channel and starts its worker.
// A nil logger disables logging. Call Close to flush queued events.
func NewRedisPublisher(client Publisher, channel string, logger *zap.Logger) *RedisPublisher {
	if channel == "" {
		channel = constants.DefaultRedisChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &RedisPublisher{
		client:  client,
		channel: channel,
		logger:  logger,
		queue:   make(chan Event, constants.NotifyQueueSize),
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

// DialRedis parses a redis:// URL and verifies the server is reachable.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, constants.NotifyTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// Notify queues e for publishing. It never blocks.
func (p *RedisPublisher) Notify(_ context.Context, e Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- e:
	default:
		p.logger.Warn("notification queue full, dropping punch event",
			zap.String("channel", p.channel),
			zap.String("identity", e.Identity),
		)
	}
}

// Close stops accepting events and waits until the queued ones are sent.
func (p *RedisPublisher) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()
	<-p.done
}

func (p *RedisPublisher) run() {
	defer close(p.done)
	for e := range p.queue {
		p.publish(e)
	}
}

// publish sends one event. Failures are logged and otherwise ignored.
func (p *RedisPublisher) publish(e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error("marshal punch event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), constants.NotifyTimeout)
	defer cancel()

	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		p.logger.Warn("publish punch event",
			zap.String("channel", p.channel),
			zap.String("identity", e.Identity),
			zap.Error(err),
		)
	}
}
