// Package eventloop runs callbacks one at a time on a single goroutine.
//
// Work arrives from other goroutines through Post, and from timers registered
// with OnRepeat and OnDelay. Nothing posted to the loop may block for long:
// radio operations run elsewhere and post their outcome back.
package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultQueueSize bounds the number of callbacks waiting to run
const DefaultQueueSize = 256

// ErrStopped is returned by Post once the loop has finished
var ErrStopped = errors.New("event loop stopped")

// Loop is a cooperative single-goroutine event loop
type Loop struct {
	queue  chan func()
	done   chan struct{}
	logger *logrus.Logger

	running atomic.Bool
	once    sync.Once

	mu     sync.Mutex
	timers map[*timer]struct{}
}

type timer struct {
	stop    chan struct{}
	once    sync.Once
	pending atomic.Bool
}

func (t *timer) cancel() {
	t.once.Do(func() { close(t.stop) })
}

// New creates a loop; it does nothing until Run is called
func New(logger *logrus.Logger) *Loop {
	if logger == nil {
		logger = logrus.New()
	}
	return &Loop{
		queue:  make(chan func(), DefaultQueueSize),
		done:   make(chan struct{}),
		logger: logger,
		timers: make(map[*timer]struct{}),
	}
}

// Post queues fn to run on the loop goroutine. It blocks only while the queue
// is full and returns ErrStopped once the loop has finished.
func (l *Loop) Post(fn func()) error {
	select {
	case <-l.done:
		return ErrStopped
	default:
	}

	select {
	case l.queue <- fn:
		return nil
	case <-l.done:
		return ErrStopped
	}
}

// OnRepeat runs fn every period on the loop. A tick that finds the previous
// one still queued is skipped. The returned function cancels the repetition.
func (l *Loop) OnRepeat(period time.Duration, fn func()) (cancel func()) {
	t := l.addTimer()

	go func() {
		defer l.removeTimer(t)
		ticker := time.NewTicker(period)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if !t.pending.CompareAndSwap(false, true) {
					continue
				}
				err := l.Post(func() {
					t.pending.Store(false)
					select {
					case <-t.stop:
						return
					default:
					}
					fn()
				})
				if err != nil {
					return
				}
			case <-t.stop:
				return
			case <-l.done:
				return
			}
		}
	}()

	return t.cancel
}

// OnDelay runs fn once on the loop after d. The returned function cancels it
// if it has not been queued yet.
func (l *Loop) OnDelay(d time.Duration, fn func()) (cancel func()) {
	t := l.addTimer()

	go func() {
		defer l.removeTimer(t)
		tm := time.NewTimer(d)
		defer tm.Stop()

		select {
		case <-tm.C:
			_ = l.Post(func() {
				select {
				case <-t.stop:
					return
				default:
				}
				fn()
			})
		case <-t.stop:
		case <-l.done:
		}
	}()

	return t.cancel
}

// Run executes queued callbacks until ctx is done. It may be called once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return errors.New("event loop already running")
	}
	defer l.finish()

	l.logger.Debug("Event loop started")
	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("Event loop stopped")
			return ctx.Err()
		case fn := <-l.queue:
			l.invoke(fn)
		}
	}
}

func (l *Loop) invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.WithField("panic", r).Error("Event loop callback panicked")
		}
	}()
	fn()
}

func (l *Loop) addTimer() *timer {
	t := &timer{stop: make(chan struct{})}
	l.mu.Lock()
	l.timers[t] = struct{}{}
	l.mu.Unlock()
	return t
}

// removeTimer forgets t once its goroutine has exited
func (l *Loop) removeTimer(t *timer) {
	l.mu.Lock()
	delete(l.timers, t)
	l.mu.Unlock()
}

func (l *Loop) finish() {
	l.once.Do(func() {
		close(l.done)

		l.mu.Lock()
		timers := l.timers
		l.timers = make(map[*timer]struct{})
		l.mu.Unlock()

		for t := range timers {
			t.cancel()
		}
	})
}
