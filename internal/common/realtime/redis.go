package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "realtime:"

// Envelope is the wire format published to Redis. Gateway nodes subscribe to
// the room channels and forward events to their connected clients.
type Envelope struct {
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sentAt"`
}

// RedisTransport implements Transport on Redis pub/sub.
type RedisTransport struct {
	client *redis.Client
}

func NewRedisTransport(client *redis.Client) (*RedisTransport, error) {
	if client == nil {
		return nil, fmt.Errorf("client cannot be nil")
	}
	return &RedisTransport{client: client}, nil
}

func (t *RedisTransport) Emit(ctx context.Context, room, event string, payload interface{}) error {
	if room == "" {
		return fmt.Errorf("room is required")
	}
	if event == "" {
		return fmt.Errorf("event is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}
	env := Envelope{
		Room:    room,
		Event:   event,
		Payload: raw,
		SentAt:  time.Now(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope failed: %w", err)
	}
	return t.client.Publish(ctx, channelPrefix+room, data).Err()
}

func (t *RedisTransport) Close() error {
	return t.client.Close()
}

// Subscribe returns a channel of envelopes for the given rooms. Used by
// gateway processes that bridge Redis pub/sub to client connections.
func (t *RedisTransport) Subscribe(ctx context.Context, rooms ...string) (<-chan Envelope, func() error, error) {
	if len(rooms) == 0 {
		return nil, nil, fmt.Errorf("rooms are required")
	}
	channels := make([]string, 0, len(rooms))
	for _, room := range rooms {
		if room == "" {
			return nil, nil, fmt.Errorf("room is required")
		}
		channels = append(channels, channelPrefix+room)
	}

	sub := t.client.Subscribe(ctx, channels...)
	out := make(chan Envelope, 64)
	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				continue
			}
			select {
			case out <- env:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, sub.Close, nil
}

var _ Transport = (*RedisTransport)(nil)
