package controller

import (
	"context"

	"github.com/micro-nova/callaudio-go/internal/models"
)

// envelope carries a queued event and, for Submit, the reply channel.
type envelope struct {
	ev   Event
	done chan models.AudioState
}

// Run is the controller's control loop. It handles queued events one at a
// time until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info("routing: control loop started", "queue", cap(c.queue), "backend", c.hw.Name())
	for {
		select {
		case <-ctx.Done():
			c.log.Info("routing: control loop stopped")
			return ctx.Err()
		case env := <-c.queue:
			c.metrics.SetQueueDepth(len(c.queue))
			c.Handle(env.ev)
			if env.done != nil {
				env.done <- c.store.State()
			}
		}
	}
}

// Post queues ev for the control loop. It blocks while the queue is full,
// until ctx is done.
func (c *Controller) Post(ctx context.Context, ev Event) error {
	select {
	case c.queue <- envelope{ev: ev}:
		c.metrics.SetQueueDepth(len(c.queue))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit queues ev and waits until the control loop has handled it. It
// returns the AudioState in effect right after.
func (c *Controller) Submit(ctx context.Context, ev Event) (models.AudioState, error) {
	done := make(chan models.AudioState, 1)
	select {
	case c.queue <- envelope{ev: ev, done: done}:
	case <-ctx.Done():
		return models.AudioState{}, ctx.Err()
	}
	select {
	case st := <-done:
		return st, nil
	case <-ctx.Done():
		return models.AudioState{}, ctx.Err()
	}
}
