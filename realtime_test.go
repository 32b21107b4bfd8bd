package main

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestAttendanceHub_PublishToSessionSubscribers(t *testing.T) {
	hub := newAttendanceHub(zap.NewNop())
	a := hub.subscribe(1)
	b := hub.subscribe(1)
	other := hub.subscribe(2)
	assert.Equal(t, 2, hub.subscriberCount(1))

	at := time.Date(2026, 10, 19, 8, 5, 0, 0, time.UTC)
	hub.publish(1, attendanceEvent{Type: "check_in", SessionID: 1, UserID: 42, At: at})

	for _, sub := range []*liveSubscriber{a, b} {
		select {
		case msg := <-sub.send:
			var ev attendanceEvent
			require.NoError(t, json.Unmarshal(msg, &ev))
			assert.Equal(t, "check_in", ev.Type)
			assert.Equal(t, 42, ev.UserID)
			assert.True(t, at.Equal(ev.At))
		default:
			t.Fatal("subscriber did not receive event")
		}
	}
	assert.Empty(t, other.send)
}

func TestAttendanceHub_UnsubscribeIsIdempotent(t *testing.T) {
	hub := newAttendanceHub(zap.NewNop())
	sub := hub.subscribe(5)

	hub.unsubscribe(5, sub)
	hub.unsubscribe(5, sub)
	assert.Equal(t, 0, hub.subscriberCount(5))

	_, open := <-sub.send
	assert.False(t, open, "channel should be closed")

	// Publishing to a session with no subscribers is a no-op.
	hub.publish(5, attendanceEvent{Type: "check_out"})
}

func TestAttendanceHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := newAttendanceHub(zap.NewNop())
	sub := hub.subscribe(9)

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuf+5; i++ {
			hub.publish(9, attendanceEvent{Type: "check_in", UserID: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	assert.Len(t, sub.send, subscriberBuf)
}
