package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"practice-duel-service/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	declared  []string
	published []published
	failWith  error
	closed    bool
}

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

func (c *recordingChannel) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	c.declared = append(c.declared, name+"/"+kind)
	return nil
}

func (c *recordingChannel) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.failWith != nil {
		return c.failWith
	}
	c.published = append(c.published, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func (c *recordingChannel) Close() error {
	c.closed = true
	return nil
}

func TestPublisherRoutesByEventType(t *testing.T) {
	ch := &recordingChannel{}
	p, err := NewPublisher(ch, "duel.events")
	require.NoError(t, err)
	require.Equal(t, []string{"duel.events/topic"}, ch.declared)

	event := domain.RoomEvent{
		Type:   domain.EventRoomCompleted,
		RoomID: "room-1",
		Room:   domain.Room{ID: "room-1", Status: domain.StatusCompleted},
		At:     time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, p.Publish(context.Background(), event))

	require.Len(t, ch.published, 1)
	got := ch.published[0]
	require.Equal(t, "duel.events", got.exchange)
	require.Equal(t, "room.room_completed", got.key)
	require.Equal(t, "application/json", got.msg.ContentType)
	require.Equal(t, amqp.Persistent, got.msg.DeliveryMode)

	var decoded domain.RoomEvent
	require.NoError(t, json.Unmarshal(got.msg.Body, &decoded))
	require.Equal(t, domain.StatusCompleted, decoded.Room.Status)

	require.NoError(t, p.Close())
	require.True(t, ch.closed)
}

func TestPublisherWrapsBrokerErrors(t *testing.T) {
	broker := errors.New("channel closed")
	p, err := NewPublisher(&recordingChannel{failWith: broker}, "duel.events")
	require.NoError(t, err)

	err = p.Publish(context.Background(), domain.RoomEvent{Type: domain.EventRoomStarted, RoomID: "room-1"})
	require.ErrorIs(t, err, broker)
}
