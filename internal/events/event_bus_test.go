package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testctl/internal/resulttree"
)

func update(nodeID string, status resulttree.Status) *UpdateEvent {
	return NewUpdateEvent("test", "", nodeID, status, "", nil)
}

func receive(t *testing.T, sub *EventSubscription) Event {
	t.Helper()
	select {
	case ev := <-sub.Channel:
		return ev
	case <-time.After(time.Second):
		t.Fatal("Expected to receive event from channel")
		return nil
	}
}

func TestNewEventBus(t *testing.T) {
	bus := NewEventBus()
	require.NotNil(t, bus)
	assert.Equal(t, Stats{}, bus.Stats())
}

func TestEventBus_FilterByType(t *testing.T) {
	bus := NewEventBus()
	updates := bus.SubscribeChannel(FilterByType(EventTypeTreeUpdate), 10)
	runs := bus.SubscribeChannel(FilterByType(EventTypeRunStarted, EventTypeRunFinished), 10)
	require.NotEmpty(t, updates.ID)
	assert.NotEqual(t, updates.ID, runs.ID)

	bus.Publish(update("a.py::t1", resulttree.StatusRunning))
	bus.Publish(NewRunEvent(EventTypeRunStarted, "test", "run-1", "a.py::t1", resulttree.StatusRunning, nil))

	assert.Equal(t, EventTypeTreeUpdate, receive(t, updates).Type())
	ev := receive(t, runs)
	assert.Equal(t, EventTypeRunStarted, ev.Type())
	assert.Equal(t, "run-1", ev.CorrelationID())
	assert.Empty(t, updates.Channel)
	assert.Empty(t, runs.Channel)

	stats := bus.Stats()
	assert.Equal(t, uint64(2), stats.Published)
	assert.Equal(t, uint64(2), stats.Delivered)
	assert.Equal(t, 2, stats.Subscribers)
}

func TestEventBus_ChannelKeepsOrder(t *testing.T) {
	bus := NewEventBus()
	sub := bus.SubscribeChannel(nil, 10)

	statuses := []resulttree.Status{resulttree.StatusRunning, resulttree.StatusFailed, resulttree.StatusPassed}
	for _, s := range statuses {
		bus.Publish(update("a.py::t1", s))
	}
	for _, want := range statuses {
		assert.Equal(t, want, receive(t, sub).(*UpdateEvent).Status)
	}
}

func TestEventBus_SlowSubscriberLosesEvents(t *testing.T) {
	bus := NewEventBus()
	slow := bus.SubscribeChannel(nil, 2)
	fast := bus.SubscribeChannel(nil, 10)

	for i := 0; i < 5; i++ {
		bus.Publish(update("a.py", resulttree.StatusInit))
	}

	assert.Len(t, slow.Channel, 2)
	assert.Len(t, fast.Channel, 5)
	assert.Equal(t, uint64(3), slow.Dropped())
	assert.Equal(t, uint64(0), fast.Dropped())

	stats := bus.Stats()
	assert.Equal(t, uint64(5), stats.Published)
	assert.Equal(t, uint64(7), stats.Delivered)
	assert.Equal(t, uint64(3), stats.Dropped)
}

func TestEventBus_Unsubscribe(t *testing.T) {
	bus := NewEventBus()
	sub := bus.SubscribeChannel(nil, 1)
	assert.Equal(t, 1, bus.Stats().Subscribers)

	bus.Unsubscribe(sub)
	assert.True(t, sub.IsClosed())
	_, open := <-sub.Channel
	assert.False(t, open)
	assert.Equal(t, 0, bus.Stats().Subscribers)

	// a removed or nil subscription is ignored
	bus.Publish(update("a.py", resulttree.StatusInit))
	bus.Unsubscribe(sub)
	bus.Unsubscribe(nil)
}

func TestEventBus_Close(t *testing.T) {
	bus := NewEventBus()
	sub := bus.SubscribeChannel(nil, 5)

	bus.Close()
	bus.Close()

	assert.True(t, sub.IsClosed())
	assert.Nil(t, bus.SubscribeChannel(nil, 1))
	bus.Publish(update("a.py", resulttree.StatusInit))
	assert.Equal(t, uint64(0), bus.Stats().Published)
}

func TestEventBus_ConcurrentPublishAndUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				bus.Publish(update("a.py", resulttree.StatusInit))
			}
		}()
	}
	for i := 0; i < 20; i++ {
		bus.Unsubscribe(bus.SubscribeChannel(nil, 1))
	}
	wg.Wait()
	assert.Equal(t, uint64(400), bus.Stats().Published)
}

func TestEvent_String(t *testing.T) {
	runEvent := NewRunEvent(EventTypeRunFinished, "orchestrator", "run-7", "a.py", resulttree.StatusFailed, errors.New("boom"))
	other := NewUpdateEvent("orchestrator", "", "b.py", resulttree.StatusInit, "", nil)

	assert.Equal(t, `run.finished "a.py": failed (boom)`, runEvent.String())
	assert.Equal(t, `update "b.py": init`, other.String())
	assert.Equal(t, "boom", runEvent.Error)
}
