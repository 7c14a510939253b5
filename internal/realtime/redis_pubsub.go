package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/pulseclass/backend/internal/live"
)

const (
	channelPrefix = "live:"
	msgSeqSuffix  = ":msgid"
	publishTTL    = 5 * time.Second
	msgSeqTTL     = 24 * time.Hour
)

// wirePayload is the message published to Redis for cross-instance fan-out.
// Origin lets each instance skip its own publications.
type wirePayload struct {
	Origin string          `json:"origin"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
	At     int64           `json:"at"`
}

// RedisBridge implements live.Bridge on Redis pub/sub, one channel per session.
type RedisBridge struct {
	client *redis.Client
	origin string
	logger *zap.Logger
}

// NewRedisBridge creates a Redis-backed cross-instance event bridge.
func NewRedisBridge(client *redis.Client, logger *zap.Logger) *RedisBridge {
	return &RedisBridge{client: client, origin: uuid.New().String(), logger: logger}
}

// Publish sends an event to the session's Redis channel.
func (b *RedisBridge) Publish(sessionID uuid.UUID, ev live.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	body, err := json.Marshal(wirePayload{
		Origin: b.origin,
		Event:  ev.EventName(),
		Data:   data,
		At:     time.Now().Unix(),
	})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTTL)
	defer cancel()
	return b.client.Publish(ctx, channelPrefix+sessionID.String(), body).Err()
}

// NextMessageID implements live.Sequencer on a shared Redis counter, so chat
// messages accepted on different instances never carry the same id. The key
// expires well after any session is gone.
func (b *RedisBridge) NextMessageID(ctx context.Context, sessionID uuid.UUID) (int64, error) {
	key := channelPrefix + sessionID.String() + msgSeqSuffix
	id, err := b.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	b.client.Expire(ctx, key, msgSeqTTL)
	return id, nil
}

// Subscribe listens on a session's channel and delivers decoded events that
// originated on other instances. Returns a cancel function.
func (b *RedisBridge) Subscribe(sessionID uuid.UUID, deliver func(ev live.Event)) (func(), error) {
	channel := channelPrefix + sessionID.String()
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := b.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, fmt.Errorf("subscribe: %w", err)
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var p wirePayload
				if err := json.Unmarshal([]byte(msg.Payload), &p); err != nil {
					continue
				}
				if p.Origin == b.origin {
					continue
				}
				ev, err := live.DecodeEvent(p.Event, p.Data)
				if err != nil {
					b.logger.Debug("skip remote event", zap.Error(err), zap.String("event", p.Event))
					continue
				}
				deliver(ev)
			}
		}
	}()
	return func() { cancelCtx() }, nil
}
