package scheduler

import (
	"time"

	"testctl/pkg/logging"
)

const (
	DefaultPollInterval    = 100 * time.Millisecond
	DefaultMaxPollInterval = time.Second
)

// DrainOptions tunes the polling delay used when the channel is empty.
type DrainOptions struct {
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

func (o DrainOptions) withDefaults() DrainOptions {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.MaxPollInterval < o.PollInterval {
		o.MaxPollInterval = DefaultMaxPollInterval
		if o.MaxPollInterval < o.PollInterval {
			o.MaxPollInterval = o.PollInterval
		}
	}
	return o
}

// Drain consumes ch from the loop without ever blocking it. Every step is a
// loop task: a non-blocking receive, then either handle and re-post
// immediately, or re-arm after a delay that doubles up to the maximum while
// the channel stays empty. Draining stops when handle returns false or ch
// is closed. The returned channel is closed at that point.
//
// A handler panic is logged and the message skipped; draining goes on.
//
// This is the only place loop code waits on another goroutine.
func Drain[T any](l *Loop, ch <-chan T, opts DrainOptions, handle func(T) bool) <-chan struct{} {
	opts = opts.withDefaults()
	finished := make(chan struct{})
	delay := opts.PollInterval

	safeHandle := func(msg T) (more bool) {
		defer func() {
			if r := recover(); r != nil {
				logging.Error("Scheduler", nil, "Drain handler panicked: %v", r)
				more = true
			}
		}()
		return handle(msg)
	}

	var step func()
	step = func() {
		select {
		case msg, ok := <-ch:
			if !ok {
				close(finished)
				return
			}
			delay = opts.PollInterval
			if !safeHandle(msg) {
				close(finished)
				return
			}
			l.Post(step)
		default:
			l.After(delay, step)
			delay *= 2
			if delay > opts.MaxPollInterval {
				delay = opts.MaxPollInterval
			}
		}
	}
	l.Post(step)
	return finished
}
