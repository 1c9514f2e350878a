// Package dispatcher carries persisted messages and per-user errors
// across nodes over the event bus and hands them to the local hub.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/weiawesome/wes-io-chat/internal/domain"
	"github.com/weiawesome/wes-io-chat/pkg/log"
	"github.com/weiawesome/wes-io-chat/pkg/pubsub"
)

// LocalDelivery fans frames out to this node's connections.
type LocalDelivery interface {
	BroadcastToRoom(roomID int64, frame interface{}) error
	SendToUser(userID int64, frame interface{}) error
}

type Dispatcher struct {
	bus   pubsub.PubSub
	local LocalDelivery
	wg    sync.WaitGroup
}

func NewDispatcher(bus pubsub.PubSub, local LocalDelivery) *Dispatcher {
	return &Dispatcher{
		bus:   bus,
		local: local,
	}
}

// BroadcastMessage publishes msg on the room's channel.
func (d *Dispatcher) BroadcastMessage(ctx context.Context, roomID int64, msg *domain.Message) error {
	event, err := pubsub.NewEvent(pubsub.EventChatMessage, pubsub.FormatKey(roomID), msg)
	if err != nil {
		return fmt.Errorf("encode message event: %w", err)
	}
	return d.bus.Publish(ctx, pubsub.RoomChannel(roomID), event)
}

// NotifyUser publishes an error addressed to every session of userID.
func (d *Dispatcher) NotifyUser(ctx context.Context, userID int64, code, text string) error {
	event, err := pubsub.NewEvent(pubsub.EventChatError, pubsub.FormatKey(userID), pubsub.ErrorPayload{
		UserID:  userID,
		Code:    code,
		Message: text,
	})
	if err != nil {
		return fmt.Errorf("encode error event: %w", err)
	}
	return d.bus.Publish(ctx, pubsub.UserErrorChannel(userID), event)
}

// Start subscribes to room and user channels and forwards their events
// to the local hub until ctx is done. It returns once both subscriptions
// are live.
func (d *Dispatcher) Start(ctx context.Context) error {
	rooms, err := d.bus.SubscribePattern(ctx, pubsub.PatternRoomSubscribers)
	if err != nil {
		return err
	}
	users, err := d.bus.SubscribePattern(ctx, pubsub.PatternUserErrors)
	if err != nil {
		d.bus.Unsubscribe(ctx, pubsub.PatternRoomSubscribers)
		return err
	}

	d.wg.Add(2)
	go d.forward(ctx, rooms)
	go d.forward(ctx, users)
	return nil
}

// Wait blocks until the forwarding goroutines have exited.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) forward(ctx context.Context, events <-chan *pubsub.Event) {
	defer d.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			d.handle(ctx, event)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, event *pubsub.Event) {
	l := log.Ctx(ctx)

	id, err := pubsub.ParseKey(event.Key)
	if err != nil {
		l.Warn().Err(err).Str("key", event.Key).Msg("event with malformed key, skipping")
		return
	}

	switch event.Type {
	case pubsub.EventChatMessage:
		msg, err := pubsub.Decode[domain.Message](event)
		if err != nil {
			l.Warn().Err(err).Int64(log.FieldRoomID, id).Msg("failed to unmarshal message event")
			return
		}
		if err := d.local.BroadcastToRoom(id, domain.NewChatMessageFrame(&msg)); err != nil {
			l.Error().Err(err).Int64(log.FieldRoomID, id).Msg("local broadcast failed")
		}

	case pubsub.EventChatError:
		payload, err := pubsub.Decode[pubsub.ErrorPayload](event)
		if err != nil {
			l.Warn().Err(err).Int64(log.FieldUserID, id).Msg("failed to unmarshal error event")
			return
		}
		if err := d.local.SendToUser(id, domain.NewErrorFrame(payload.Code, payload.Message)); err != nil {
			l.Error().Err(err).Int64(log.FieldUserID, id).Msg("local error delivery failed")
		}

	default:
		l.Debug().Str("type", event.Type).Msg("ignoring unknown event type")
	}
}
