// Package clock supplies the view time the viewer renders at and the frame
// ticks that drive the refresh loop.
package clock

import (
	"context"
	"sync"
	"time"
)

// Clock reports the current view time.
type Clock interface {
	Now() time.Time
}

// MaxRate bounds how fast view time may run relative to wall time.
const MaxRate = 3600.0

// Controller maps wall time onto view time at an adjustable rate. At rate 1
// view time tracks the wall clock; at rate 60 one wall second is one view
// minute. Negative rates run time backwards. Safe for concurrent use.
type Controller struct {
	mu         sync.RWMutex
	wall       func() time.Time
	anchorWall time.Time
	anchorView time.Time
	rate       float64
}

// NewController starts view time at the current wall time with rate 1.
func NewController() *Controller {
	return newController(time.Now)
}

func newController(wall func() time.Time) *Controller {
	now := wall()
	return &Controller{
		wall:       wall,
		anchorWall: now,
		anchorView: now,
		rate:       1,
	}
}

// Now returns the current view time. Implements Clock.
func (c *Controller) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewAt(c.wall())
}

func (c *Controller) viewAt(wall time.Time) time.Time {
	elapsed := float64(wall.Sub(c.anchorWall)) * c.rate
	return c.anchorView.Add(time.Duration(elapsed))
}

// Rate returns the current time rate.
func (c *Controller) Rate() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rate
}

// SetRate changes the rate without a jump in view time. The rate is clamped
// to [-MaxRate, MaxRate].
func (c *Controller) SetRate(rate float64) {
	if rate > MaxRate {
		rate = MaxRate
	}
	if rate < -MaxRate {
		rate = -MaxRate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	wall := c.wall()
	c.anchorView = c.viewAt(wall)
	c.anchorWall = wall
	c.rate = rate
}

// Set jumps view time to t, keeping the current rate.
func (c *Controller) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorWall = c.wall()
	c.anchorView = t
}

// Reset returns view time to the wall clock at rate 1.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.wall()
	c.anchorWall = now
	c.anchorView = now
	c.rate = 1
}

// Frames emits the view time every interval until ctx is done, then closes
// the channel. A tick is dropped when the receiver has not taken the previous
// one, so a slow frame never queues a backlog.
func (c *Controller) Frames(ctx context.Context, interval time.Duration) <-chan time.Time {
	out := make(chan time.Time, 1)
	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				select {
				case out <- c.Now():
				default:
				}
			}
		}
	}()
	return out
}
