package broadcast

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// ChannelPrefix namespaces the Pub/Sub channels. Room events go to
// ChannelPrefix+"room:"+roomClass, global events to ChannelPrefix+"all".
const ChannelPrefix = "pfb:events:"

// RedisBroker relays events through Redis Pub/Sub so subscribers connected to
// any node see every write.
type RedisBroker struct {
	rdb    *redis.Client
	hub    *Hub
	logger logrus.FieldLogger
}

func NewRedisBroker(rdb *redis.Client, hub *Hub, logger logrus.FieldLogger) *RedisBroker {
	return &RedisBroker{rdb: rdb, hub: hub, logger: logger}
}

func channelFor(ev Event) string {
	if ev.RoomClass == "" {
		return ChannelPrefix + "all"
	}
	return ChannelPrefix + "room:" + ev.RoomClass
}

// Publish sends ev to every node, including this one.
func (b *RedisBroker) Publish(ctx context.Context, ev Event) error {
	msg, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := b.rdb.Publish(ctx, channelFor(ev), msg).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", ev.Type, err)
	}
	return nil
}

// Run relays received events into the local hub until ctx is done.
// ready, if non-nil, is closed once the subscription is confirmed.
func (b *RedisBroker) Run(ctx context.Context, ready chan<- struct{}) error {
	sub := b.rdb.PSubscribe(ctx, ChannelPrefix+"*")
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("redis psubscribe: %w", err)
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
			var ev Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.logger.WithError(err).WithField("channel", msg.Channel).Warn("dropping malformed event")
				continue
			}
			b.hub.Deliver(ev)
		}
	}
}
