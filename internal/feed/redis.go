package feed

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultChannel é o canal Redis Pub/Sub do feed de apostas
const DefaultChannel = "wager_feed_broadcast"

// RedisBroadcaster publica updates no canal; cada instância do serviço repassa ao seu Hub
type RedisBroadcaster struct {
	r       *redis.Client
	channel string
}

func NewRedisBroadcaster(r *redis.Client, channel string) *RedisBroadcaster {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroadcaster{r: r, channel: channel}
}

func (b *RedisBroadcaster) Broadcast(ctx context.Context, u Update) error {
	payload, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return b.r.Publish(ctx, b.channel, payload).Err()
}

// StartRedisSubscriber escuta o canal e repassa cada update ao hub até o contexto acabar
func StartRedisSubscriber(ctx context.Context, r *redis.Client, channel string, hub *Hub, log *zap.Logger) {
	if channel == "" {
		channel = DefaultChannel
	}
	sub := r.Subscribe(ctx, channel)
	ch := sub.Channel()
	go func() {
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if msg == nil {
					continue
				}
				var u Update
				if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
					log.Warn("feed subscriber unmarshal error", zap.Error(err))
					continue
				}
				hub.Broadcast(u)
			}
		}
	}()
}
