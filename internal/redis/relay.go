package redis

import (
	"context"
	"encoding/json"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RelayFrame is one whole-room frame travelling between instances.
type RelayFrame struct {
	Node  string          `json:"node"`
	Room  string          `json:"room"`
	Frame json.RawMessage `json:"frame"`
}

// Deliverer fans a relayed frame out to this node's members of a room.
type Deliverer interface {
	DeliverToRoom(roomID string, frame []byte) int
}

// Relay fans whole-room frames out to the other instances over one pub/sub channel.
type Relay struct {
	client  *goredis.Client
	channel string
	node    string
	logger  *zap.Logger
}

func NewRelay(client *goredis.Client, channel, node string, logger *zap.Logger) *Relay {
	return &Relay{client: client, channel: channel, node: node, logger: logger}
}

func (r *Relay) Publish(ctx context.Context, roomID string, frame []byte) error {
	b, err := json.Marshal(RelayFrame{Node: r.node, Room: roomID, Frame: frame})
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, b).Err()
}

// Run delivers frames published by other instances until ctx is done.
// ready, when not nil, is closed once the subscription is confirmed.
func (r *Relay) Run(ctx context.Context, d Deliverer, ready chan<- struct{}) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var rf RelayFrame
			if err := json.Unmarshal([]byte(msg.Payload), &rf); err != nil {
				r.logger.Warn("bad relay frame", zap.Error(err))
				continue
			}
			if rf.Node == r.node {
				continue
			}
			n := d.DeliverToRoom(rf.Room, rf.Frame)
			r.logger.Debug("relay delivered", zap.String("room", rf.Room), zap.String("from", rf.Node), zap.Int("sessions", n))
		}
	}
}
