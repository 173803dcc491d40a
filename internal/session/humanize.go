package session

import (
	"context"
	"math/rand"
	"time"
)

// humanize spends roughly d on randomized pointer moves and wheel scrolls so
// the warm-up visit looks like someone reading the page.
func (c *Controller) humanize(ctx context.Context, page Page, d time.Duration) error {
	width, height := page.Viewport()
	if width <= 0 || height <= 0 {
		width, height = 1366, 768
	}

	actions := 3 + c.rng.Intn(3)
	pause := d / time.Duration(actions)

	for i := 0; i < actions; i++ {
		x := float64(c.rng.Intn(width))
		y := float64(c.rng.Intn(height))
		if err := page.MoveMouse(x, y, 5+c.rng.Intn(15)); err != nil {
			c.logger.Debug("mouse move failed", "error", err)
		}

		if i%2 == 1 {
			if err := page.Wheel(0, float64(100+c.rng.Intn(300))); err != nil {
				c.logger.Debug("scroll failed", "error", err)
			}
		}

		if err := c.sleep(ctx, jitter(c.rng, pause)); err != nil {
			return err
		}
	}

	return nil
}

// jitter returns d scaled by a random factor in [0.75, 1.25).
func jitter(rng *rand.Rand, d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return time.Duration(float64(d) * (0.75 + rng.Float64()/2))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
