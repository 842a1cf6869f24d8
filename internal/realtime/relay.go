package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-presence-api/internal/models"
	"github.com/noah-isme/sma-presence-api/pkg/jobs"
)

// Deliverer hands relayed events to local observers.
type Deliverer interface {
	Deliver(event models.SessionEvent)
}

type redisPubSub interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
	PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub
}

type relayEnvelope struct {
	Origin string              `json:"origin"`
	Event  models.SessionEvent `json:"event"`
}

// RedisRelay fans session events out to every API process through Redis
// pub/sub so observers connected to any node see them.
type RedisRelay struct {
	client redisPubSub
	prefix string
	origin string
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewRedisRelay builds a relay publishing on "<prefix>:<session id>".
func NewRedisRelay(client redisPubSub, prefix string, logger *zap.Logger) *RedisRelay {
	if logger == nil {
		logger = zap.NewNop()
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "presence"
	}
	r := &RedisRelay{
		client: client,
		prefix: prefix,
		origin: uuid.NewString(),
		logger: logger.With(zap.String("component", "relay")),
	}
	r.queue = jobs.NewQueue("relay", r.publish, jobs.QueueConfig{
		Workers:    1,
		BufferSize: 256,
		MaxRetries: 2,
		Logger:     logger,
	})
	return r
}

// Start launches the publishing worker.
func (r *RedisRelay) Start(ctx context.Context) {
	r.queue.Start(ctx)
}

// Stop halts publishing; events still buffered are discarded.
func (r *RedisRelay) Stop() {
	r.queue.Stop()
}

// Publish queues an event without blocking the caller. Events are dropped
// when the queue is full.
func (r *RedisRelay) Publish(event models.SessionEvent) {
	err := r.queue.TryEnqueue(jobs.Job{
		ID:      event.SessionID,
		Type:    string(event.Kind),
		Payload: event,
	})
	if err != nil {
		r.logger.Warn("relay event dropped", zap.String("session_id", event.SessionID), zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

func (r *RedisRelay) channel(sessionID string) string {
	return r.prefix + ":" + sessionID
}

func (r *RedisRelay) publish(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.SessionEvent)
	if !ok {
		return nil
	}
	body, err := json.Marshal(relayEnvelope{Origin: r.origin, Event: event})
	if err != nil {
		return nil
	}
	if err := r.client.Publish(ctx, r.channel(event.SessionID), body).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Kind, err)
	}
	return nil
}

// Run subscribes to every session channel and delivers events produced by
// other processes until ctx is cancelled.
func (r *RedisRelay) Run(ctx context.Context, deliverer Deliverer) error {
	pubsub := r.client.PSubscribe(ctx, r.prefix+":*")
	defer func() {
		_ = pubsub.Close()
	}()
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe relay: %w", err)
	}
	r.logger.Info("relay subscribed", zap.String("pattern", r.prefix+":*"))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			r.handleMessage(msg.Payload, deliverer)
		}
	}
}

func (r *RedisRelay) handleMessage(payload string, deliverer Deliverer) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.logger.Warn("relay message ignored", zap.Error(err))
		return
	}
	if env.Origin == r.origin || env.Event.SessionID == "" {
		return
	}
	deliverer.Deliver(env.Event)
}
