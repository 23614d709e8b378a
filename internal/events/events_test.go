package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	events []Event
	err    error
}

func (r *recorder) Publish(ctx context.Context, evt Event) error {
	r.events = append(r.events, evt)
	return r.err
}

func TestBufferFlushPublishesOnceInOrder(t *testing.T) {
	buf := NewBuffer()
	buf.Add(New(StockReceived, 1, nil))
	buf.Add(New(ReorderPointReached, 1, nil))
	require.Len(t, buf.Events(), 2)

	rec := &recorder{}
	buf.Flush(context.Background(), rec, nil)
	require.Len(t, rec.events, 2)
	require.Equal(t, StockReceived, rec.events[0].Name)
	require.Equal(t, ReorderPointReached, rec.events[1].Name)

	buf.Flush(context.Background(), rec, nil)
	require.Len(t, rec.events, 2)
}

func TestBufferFlushSurvivesPublisherFailure(t *testing.T) {
	buf := NewBuffer()
	buf.Add(New(StockIssued, 1, nil))
	rec := &recorder{err: errors.New("down")}
	buf.Flush(context.Background(), rec, nil)
	require.Len(t, rec.events, 1)
	require.Empty(t, buf.Events())
}

func TestFanoutReachesEveryPublisher(t *testing.T) {
	a := &recorder{err: errors.New("a failed")}
	b := &recorder{}
	err := Fanout{a, nil, b}.Publish(context.Background(), New(StockReserved, 3, nil))
	require.EqualError(t, err, "a failed")
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
}

func TestRedisPublisherPublishesJSON(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	pub := NewRedisPublisher(client, "test.events")
	ctx := context.Background()
	sub := client.Subscribe(ctx, pub.Channel(StockReceived))
	defer sub.Close()
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	evt := New(StockReceived, 7, map[string]string{"qty": "20"})
	require.NoError(t, pub.Publish(ctx, evt))

	select {
	case msg := <-sub.Channel():
		var decoded Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &decoded))
		require.Equal(t, evt.ID, decoded.ID)
		require.Equal(t, int64(7), decoded.TenantID)
	case <-time.After(2 * time.Second):
		t.Fatal("event not delivered")
	}
}
