package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) (*Loop, context.CancelFunc) {
	t.Helper()
	l := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l, cancel
}

func TestLoop_RunsTasksInOrder(t *testing.T) {
	l, _ := startLoop(t)

	var order []int
	for i := 0; i < 50; i++ {
		i := i
		l.Post(func() { order = append(order, i) })
	}
	require.NoError(t, l.Do(context.Background(), func() error { return nil }))

	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestLoop_DoReturnsError(t *testing.T) {
	l, _ := startLoop(t)

	want := errors.New("boom")
	assert.Equal(t, want, l.Do(context.Background(), func() error { return want }))

	err := l.Do(context.Background(), func() error { panic("bad task") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad task")

	// the loop survives a panicking task
	assert.NoError(t, l.Do(context.Background(), func() error { return nil }))
}

func TestLoop_DoAfterStop(t *testing.T) {
	l, cancel := startLoop(t)
	cancel()
	<-l.Done()

	assert.True(t, errors.Is(l.Do(context.Background(), func() error { return nil }), ErrStopped))
}

func TestLoop_DoHonoursContext(t *testing.T) {
	l, _ := startLoop(t)

	block := make(chan struct{})
	l.Post(func() { <-block })
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.True(t, errors.Is(l.Do(ctx, func() error { return nil }), context.DeadlineExceeded))
}

func TestLoop_After(t *testing.T) {
	l, _ := startLoop(t)

	fired := make(chan struct{})
	l.After(10*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("delayed task never ran")
	}
}

func TestDrain_HandlerPanicKeepsDraining(t *testing.T) {
	l, _ := startLoop(t)
	ch := make(chan int, 3)
	ch <- 1
	ch <- 2
	ch <- 3

	var got []int
	finished := Drain(l, ch, DrainOptions{PollInterval: time.Millisecond}, func(v int) bool {
		if v == 1 {
			panic("bad message")
		}
		got = append(got, v)
		return v != 3
	})

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("drain stopped after a handler panic")
	}

	var snapshot []int
	require.NoError(t, l.Do(context.Background(), func() error {
		snapshot = append(snapshot, got...)
		return nil
	}))
	assert.Equal(t, []int{2, 3}, snapshot)
}

func TestDrain_HandlesMessagesInOrder(t *testing.T) {
	l, _ := startLoop(t)
	ch := make(chan int, 10)

	var got []int
	finished := Drain(l, ch, DrainOptions{PollInterval: time.Millisecond, MaxPollInterval: 5 * time.Millisecond}, func(v int) bool {
		got = append(got, v)
		return v != 3
	})

	go func() {
		for i := 1; i <= 5; i++ {
			ch <- i
			time.Sleep(2 * time.Millisecond)
		}
	}()

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("drain did not finish")
	}

	var snapshot []int
	require.NoError(t, l.Do(context.Background(), func() error {
		snapshot = append(snapshot, got...)
		return nil
	}))
	assert.Equal(t, []int{1, 2, 3}, snapshot)
}

func TestDrain_LoopStaysResponsive(t *testing.T) {
	l, _ := startLoop(t)
	ch := make(chan int)
	defer close(ch)

	Drain(l, ch, DrainOptions{PollInterval: time.Millisecond, MaxPollInterval: 2 * time.Millisecond}, func(int) bool { return true })

	var calls atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Do(context.Background(), func() error {
			calls.Add(1)
			return nil
		}))
	}
	assert.Equal(t, int32(10), calls.Load())
}

func TestDrain_ClosedChannelFinishes(t *testing.T) {
	l, _ := startLoop(t)
	ch := make(chan int)
	close(ch)

	finished := Drain(l, ch, DrainOptions{}, func(int) bool { return true })
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("drain did not notice the closed channel")
	}
}

func TestDrainOptions_Defaults(t *testing.T) {
	o := DrainOptions{}.withDefaults()
	assert.Equal(t, DefaultPollInterval, o.PollInterval)
	assert.Equal(t, DefaultMaxPollInterval, o.MaxPollInterval)

	o = DrainOptions{PollInterval: 5 * time.Second}.withDefaults()
	assert.Equal(t, 5*time.Second, o.MaxPollInterval)
}

func TestQueue(t *testing.T) {
	q := NewQueue[string]()
	q.Push("a")
	q.Push("b")
	assert.Equal(t, 2, q.Len())

	ctx := context.Background()
	v, ok := q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "a", v)

	go func() {
		time.Sleep(5 * time.Millisecond)
		q.Push("c")
	}()

	v, ok = q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "b", v)
	v, ok = q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "c", v)

	q.Push("d")
	q.Close()
	q.Push("ignored")
	v, ok = q.Pop(ctx)
	require.True(t, ok)
	assert.Equal(t, "d", v)
	_, ok = q.Pop(ctx)
	assert.False(t, ok)
}

func TestQueue_PopCancelled(t *testing.T) {
	q := NewQueue[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, ok := q.Pop(ctx)
	assert.False(t, ok)
}
