package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/slidewire/slidewire/internal/collab/wire"
)

const roomChannelPrefix = "slidewire:room:"

// bridgeEnvelope wraps a relayed message with its origin node so a node
// can drop its own echoes.
type bridgeEnvelope struct {
	Node    string       `json:"node"`
	Message wire.Message `json:"message"`
}

// RedisBridge relays room broadcasts between server nodes over Redis
// pub/sub, so participants of the same presentation can land on different
// nodes behind a load balancer.
type RedisBridge struct {
	client  *redis.Client
	nodeID  string
	log     *slog.Logger
	deliver func(roomID string, msg wire.Message)
}

// NewRedisBridge creates a bridge. deliver is invoked for every message
// published by another node, with the target room ID.
func NewRedisBridge(client *redis.Client, log *slog.Logger, deliver func(roomID string, msg wire.Message)) *RedisBridge {
	if log == nil {
		log = slog.Default()
	}
	return &RedisBridge{
		client:  client,
		nodeID:  uuid.NewString(),
		log:     log,
		deliver: deliver,
	}
}

// Publish relays a room broadcast to the other nodes.
func (b *RedisBridge) Publish(ctx context.Context, roomID string, msg wire.Message) error {
	payload, err := json.Marshal(bridgeEnvelope{Node: b.nodeID, Message: msg})
	if err != nil {
		return fmt.Errorf("encode bridge envelope: %w", err)
	}
	if err := b.client.Publish(ctx, roomChannelPrefix+roomID, payload).Err(); err != nil {
		return fmt.Errorf("publish to room %s: %w", roomID, err)
	}
	return nil
}

// Run subscribes to all room channels and forwards remote traffic to the
// deliver callback until the context is cancelled.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, roomChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env bridgeEnvelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.log.Warn("dropping malformed bridge payload", "channel", msg.Channel, "error", err)
				continue
			}
			if env.Node == b.nodeID {
				continue
			}
			roomID := msg.Channel[len(roomChannelPrefix):]
			b.deliver(roomID, env.Message)
		}
	}
}
