package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"goa.design/clue/log"
)

var ErrEngineStopped = errors.New("engine stopped")

// Loop serializes all session mutations. Post queues fn to run on the loop
// goroutine; Go runs blocking work off the loop.
type Loop interface {
	Post(fn func(ctx context.Context))
	Go(fn func())
}

// Scheduler runs fn on the loop every d until the returned cancel is called.
type Scheduler interface {
	Every(d time.Duration, fn func(ctx context.Context)) (cancel func())
}

// Engine is the single goroutine that owns every live session.
type Engine struct {
	events chan func(ctx context.Context)
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

// NewEngine creates an engine; call Run to start processing.
func NewEngine(buffer int) *Engine {
	if buffer <= 0 {
		buffer = 256
	}
	return &Engine{
		events: make(chan func(ctx context.Context), buffer),
		done:   make(chan struct{}),
	}
}

// Run processes posted events until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer e.once.Do(func() { close(e.done) })
	log.Info(ctx, log.KV{K: "msg", V: "engine started"})
	for {
		select {
		case fn := <-e.events:
			e.dispatch(ctx, fn)
		case <-ctx.Done():
			log.Info(ctx, log.KV{K: "msg", V: "engine stopped"})
			return
		}
	}
}

func (e *Engine) dispatch(ctx context.Context, fn func(ctx context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf(ctx, errors.New("handler panic"), "recovered: %v", r)
		}
	}()
	fn(ctx)
}

// Post queues fn. Events posted after the engine stopped are dropped.
func (e *Engine) Post(fn func(ctx context.Context)) {
	select {
	case e.events <- fn:
	case <-e.done:
	}
}

// Go runs fn on its own goroutine and tracks it for Wait.
func (e *Engine) Go(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

// Wait blocks until every goroutine started with Go has returned.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Call runs fn on the loop and waits for it to finish.
func (e *Engine) Call(ctx context.Context, fn func(ctx context.Context)) error {
	finished := make(chan struct{})
	wrapped := func(loopCtx context.Context) {
		defer close(finished)
		fn(loopCtx)
	}
	select {
	case e.events <- wrapped:
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-e.done:
		return ErrEngineStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TickerScheduler drives round timers from time.Ticker, posting each tick
// into the loop.
type TickerScheduler struct {
	loop Loop
}

func NewTickerScheduler(loop Loop) *TickerScheduler {
	return &TickerScheduler{loop: loop}
}

func (s *TickerScheduler) Every(d time.Duration, fn func(ctx context.Context)) func() {
	ticker := time.NewTicker(d)
	stop := make(chan struct{})
	var once sync.Once
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.loop.Post(fn)
			case <-stop:
				return
			}
		}
	}()
	return func() { once.Do(func() { close(stop) }) }
}
