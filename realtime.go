package main

import (
	"context"
	"fmt"
	"time"

	eventloop "github.com/joeycumines/go-eventloop"
)

// RealtimeScheduler runs tile callbacks on an event loop, mapping one tick
// to a fixed wall-clock duration. Callbacks all run on the loop goroutine.
type RealtimeScheduler struct {
	loop  *eventloop.Loop
	tick  time.Duration
	start time.Time
}

// NewRealtimeScheduler creates a scheduler whose ticks last tick.
func NewRealtimeScheduler(tick time.Duration) (*RealtimeScheduler, error) {
	if tick <= 0 {
		return nil, fmt.Errorf("tick duration must be positive, got %v", tick)
	}
	loop, err := eventloop.New()
	if err != nil {
		return nil, fmt.Errorf("create event loop: %w", err)
	}
	return &RealtimeScheduler{loop: loop, tick: tick, start: time.Now()}, nil
}

// Now returns the number of whole ticks since the scheduler was created.
func (r *RealtimeScheduler) Now() int64 {
	return int64(time.Since(r.start) / r.tick)
}

// After runs fn on the loop once delay ticks have elapsed.
func (r *RealtimeScheduler) After(delay int64, fn func()) {
	if delay < 0 {
		delay = 0
	}
	r.loop.ScheduleTimer(time.Duration(delay)*r.tick, fn)
}

// Submit queues fn to run on the loop goroutine.
func (r *RealtimeScheduler) Submit(fn func()) error {
	return r.loop.Submit(fn)
}

// Run blocks running the loop until ctx ends or Shutdown is called.
func (r *RealtimeScheduler) Run(ctx context.Context) error {
	return r.loop.Run(ctx)
}

// Shutdown stops the loop after queued work drains.
func (r *RealtimeScheduler) Shutdown(ctx context.Context) error {
	return r.loop.Shutdown(ctx)
}
