package broadcast

import (
	"context"
	"sort"

	"github.com/jason-s-yu/picofermibagel/internal/models"
)

// Broker carries events to every node's hub.
type Broker interface {
	Publish(ctx context.Context, ev Event) error
}

// LocalBroker delivers straight into an in-process hub. Used for single-node
// deployments and tests.
type LocalBroker struct {
	hub *Hub
}

func NewLocalBroker(hub *Hub) *LocalBroker {
	return &LocalBroker{hub: hub}
}

func (b *LocalBroker) Publish(_ context.Context, ev Event) error {
	b.hub.Deliver(ev)
	return nil
}

// Publisher turns domain snapshots into push events.
type Publisher struct {
	broker Broker
}

func NewPublisher(broker Broker) *Publisher {
	return &Publisher{broker: broker}
}

// PublishLobby pushes a lobby_update to the room's subscribers.
func (p *Publisher) PublishLobby(ctx context.Context, summary models.LobbySummary) error {
	ev, err := NewEvent(EventLobbyUpdate, summary.RoomClass, summary)
	if err != nil {
		return err
	}
	return p.broker.Publish(ctx, ev)
}

// PublishInterest pushes the full interest table to every subscriber.
func (p *Publisher) PublishInterest(ctx context.Context, counts []models.InterestRecord) error {
	sorted := append([]models.InterestRecord{}, counts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].RoomClass < sorted[j].RoomClass })
	ev, err := NewEvent(EventInterestUpdate, "", sorted)
	if err != nil {
		return err
	}
	return p.broker.Publish(ctx, ev)
}

// PublishGameStart pushes the launch event to the room's subscribers.
func (p *Publisher) PublishGameStart(ctx context.Context, start models.GameStartEvent) error {
	ev, err := NewEvent(EventGameStart, start.RoomClass, start)
	if err != nil {
		return err
	}
	return p.broker.Publish(ctx, ev)
}
