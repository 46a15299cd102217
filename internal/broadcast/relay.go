package broadcast

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// NotifyChannel is the Redis Pub/Sub channel shared by all instances.
const NotifyChannel = "chat:notify"

type notice struct {
	Origin string `json:"origin"`
	RoomID uint64 `json:"room_id"`
}

// RedisRelay extends a Broadcaster across instances.  Notify wakes local
// waiters first and then publishes the room id; every other instance wakes
// its own waiters when the notice arrives.
type RedisRelay struct {
	*Broadcaster
	rdb    *redis.Client
	origin string
	logger *zap.Logger
}

// NewRedisRelay wraps b.  Call Run to start receiving notices.
func NewRedisRelay(b *Broadcaster, rdb *redis.Client, logger *zap.Logger) *RedisRelay {
	return &RedisRelay{
		Broadcaster: b,
		rdb:         rdb,
		origin:      uuid.NewString(),
		logger:      logger.Named("relay"),
	}
}

// Notify wakes local waiters and publishes the wake to other instances.
// Publishing is best effort: the local wake has already happened and remote
// pollers fall back to their timeout.
func (r *RedisRelay) Notify(roomID uint64) int {
	n := r.Broadcaster.Notify(roomID)
	payload, err := json.Marshal(notice{Origin: r.origin, RoomID: roomID})
	if err != nil {
		r.logger.Error("encode notice", zap.Error(err))
		return n
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.rdb.Publish(ctx, NotifyChannel, payload).Err(); err != nil {
		r.logger.Warn("publish notice", zap.Uint64("room_id", roomID), zap.Error(err))
	}
	return n
}

// Run subscribes to NotifyChannel and wakes local waiters until ctx is done.
func (r *RedisRelay) Run(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, NotifyChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	r.logger.Info("relay subscribed", zap.String("channel", NotifyChannel), zap.String("origin", r.origin))
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RedisRelay) handle(payload string) {
	var n notice
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		r.logger.Warn("malformed notice", zap.Error(err))
		return
	}
	if n.Origin == r.origin {
		return
	}
	r.Broadcaster.Notify(n.RoomID)
}
