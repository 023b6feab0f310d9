package realtime

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chuckafile/logging"
	"chuckafile/metrics"
	"chuckafile/models"
)

type fakeSubscriber struct {
	mu     sync.Mutex
	frames [][]byte
	limit  int
	closed bool
}

func (f *fakeSubscriber) Deliver(frame []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed || (f.limit > 0 && len(f.frames) >= f.limit) {
		return false
	}
	f.frames = append(f.frames, frame)
	return true
}

func (f *fakeSubscriber) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeSubscriber) received() []models.WebSocketMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.WebSocketMessage, 0, len(f.frames))
	for _, frame := range f.frames {
		var msg models.WebSocketMessage
		if err := json.Unmarshal(frame, &msg); err == nil {
			out = append(out, msg)
		}
	}
	return out
}

func TestPublishReachesEverySubscriberOfUser(t *testing.T) {
	hub := NewHub(logging.Discard(), nil)
	laptop, phone, other := &fakeSubscriber{}, &fakeSubscriber{}, &fakeSubscriber{}
	hub.Subscribe(1, laptop)
	hub.Subscribe(1, phone)
	hub.Subscribe(2, other)

	assert.Equal(t, 2, hub.Publish(1, EventRefreshFriends, nil))

	require.Len(t, laptop.received(), 1)
	assert.Equal(t, EventRefreshFriends, laptop.received()[0].Type)
	assert.Len(t, phone.received(), 1)
	assert.Empty(t, other.received())
}

func TestSubscribeIsIdempotent(t *testing.T) {
	hub := NewHub(logging.Discard(), nil)
	sub := &fakeSubscriber{}
	hub.Subscribe(1, sub)
	hub.Subscribe(1, sub)

	assert.Equal(t, 1, hub.Subscribers(1))
	assert.Equal(t, 1, hub.Publish(1, EventNewMessage, map[string]string{"text": "hi"}))
}

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	m := metrics.New()
	hub := NewHub(logging.Discard(), m)

	assert.Equal(t, 0, hub.Publish(7, EventNewMessage, nil))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped.WithLabelValues(EventNewMessage)))
}

func TestUnsubscribe(t *testing.T) {
	hub := NewHub(logging.Discard(), nil)
	sub := &fakeSubscriber{}
	hub.Subscribe(1, sub)
	assert.True(t, hub.IsOnline(1))

	hub.Unsubscribe(1, sub)
	hub.Unsubscribe(1, sub)
	assert.False(t, hub.IsOnline(1))
	assert.Equal(t, 0, hub.Publish(1, EventNewMessage, nil))
}

func TestFullSubscriberIsEvicted(t *testing.T) {
	m := metrics.New()
	hub := NewHub(logging.Discard(), m)
	slow := &fakeSubscriber{limit: 1}
	fast := &fakeSubscriber{}
	hub.Subscribe(1, slow)
	hub.Subscribe(1, fast)

	assert.Equal(t, 2, hub.Publish(1, EventNewMessage, nil))
	assert.Equal(t, 1, hub.Publish(1, EventNewMessage, nil))

	assert.True(t, slow.closed)
	assert.Equal(t, 1, hub.Subscribers(1))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SubscribersEvicted))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.EventsDelivered.WithLabelValues(EventNewMessage)))
}

func TestPublishAllAndClose(t *testing.T) {
	hub := NewHub(logging.Discard(), nil)
	a, b := &fakeSubscriber{}, &fakeSubscriber{}
	hub.Subscribe(1, a)
	hub.Subscribe(2, b)

	hub.PublishAll(EventRefreshFriends, nil, 1, 2)
	assert.Len(t, a.received(), 1)
	assert.Len(t, b.received(), 1)

	hub.Close()
	assert.True(t, a.closed)
	assert.True(t, b.closed)
	assert.False(t, hub.IsOnline(1))
}
