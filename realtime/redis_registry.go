package realtime

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisChannelPrefix = "campus:"

// RedisRegistry fans events out across processes. Membership stays local in
// a Hub; every Publish goes through Redis and each process forwards what it
// receives to its own members.
type RedisRegistry struct {
	client *redis.Client
	pubsub *redis.PubSub
	local  *Hub
	log    *zap.Logger
	done   chan struct{}
}

var _ Registry = (*RedisRegistry)(nil)

// NewRedisClient parses url and checks the server is reachable
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return c, nil
}

func NewRedisRegistry(ctx context.Context, client *redis.Client, log *zap.Logger) (*RedisRegistry, error) {
	pubsub := client.PSubscribe(ctx, redisChannelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis: psubscribe: %w", err)
	}

	r := &RedisRegistry{
		client: client,
		pubsub: pubsub,
		local:  NewHub(log),
		log:    log.Named("redis_registry"),
		done:   make(chan struct{}),
	}
	go r.forward(pubsub.Channel())
	return r, nil
}

func (r *RedisRegistry) forward(ch <-chan *redis.Message) {
	defer close(r.done)
	for msg := range ch {
		group := strings.TrimPrefix(msg.Channel, redisChannelPrefix)
		_ = r.local.Publish(context.Background(), group, []byte(msg.Payload))
	}
}

func (r *RedisRegistry) Join(group string, sub Subscriber) {
	r.local.Join(group, sub)
}

func (r *RedisRegistry) Leave(group string, sub Subscriber) {
	r.local.Leave(group, sub)
}

func (r *RedisRegistry) Publish(ctx context.Context, group string, payload []byte) error {
	if err := r.client.Publish(ctx, redisChannelPrefix+group, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", group, err)
	}
	return nil
}

// Close stops forwarding. The redis client stays open; its owner closes it.
func (r *RedisRegistry) Close() error {
	err := r.pubsub.Close()
	<-r.done
	_ = r.local.Close()
	return err
}
