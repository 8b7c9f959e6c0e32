package quiz

import (
	"context"
	"encoding/json"
	"time"

	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/nishantshetty7/quizania-backend/internal/app"
	"github.com/nishantshetty7/quizania-backend/pkg/metrics"
)

// All intents ride a single channel so every instance replays them in one
// total order, join and leave included.
const intentChannel = "quiz:intents"

type RedisBus struct {
	rdb *redis.Client
	log *slog.Logger
}

// NewRedisBus connects to redis and verifies connectivity
func NewRedisBus(ctx context.Context, cfg app.Config, log *slog.Logger) (*RedisBus, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: cfg.RedisAddr,
		DB:   cfg.RedisDB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &RedisBus{rdb: rdb, log: log}, nil
}

// Publish sends an intent on the shared channel. Fire-and-forget from the
// caller's perspective; the intent takes effect when it is replayed.
func (b *RedisBus) Publish(ctx context.Context, in Intent) error {
	raw, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, intentChannel, raw).Err()
}

// Subscribe consumes the intent channel until ctx is cancelled, invoking fn
// for each message in delivery order. If the subscription is lost it is
// re-established; messages published during the gap are missed by this
// instance only, and the mirror converges again from the resume point.
func (b *RedisBus) Subscribe(ctx context.Context, fn func(Intent)) {
	for {
		pubsub := b.rdb.Subscribe(ctx, intentChannel)
		ch := pubsub.Channel()

	recv:
		for {
			select {
			case <-ctx.Done():
				_ = pubsub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var in Intent
				if err := json.Unmarshal([]byte(msg.Payload), &in); err != nil {
					b.log.Warn("bus.decode", "err", err)
					continue
				}
				if in.Room == "" {
					continue
				}
				fn(in)
			}
		}

		_ = pubsub.Close()
		if ctx.Err() != nil {
			return
		}
		metrics.BusResubscribes.Inc()
		b.log.Warn("bus.resubscribe")
		time.Sleep(time.Second)
	}
}

// Close shuts down the redis connection
func (b *RedisBus) Close() { _ = b.rdb.Close() }
