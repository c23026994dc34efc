package session

import (
	"context"
	"time"
)

// DefaultTickInterval is how often the cosmetic progress advances
const DefaultTickInterval = 1200 * time.Millisecond

// maxIncrement bounds the random progress step per tick
const maxIncrement = 5.0

// startTicker calls tick every interval until the returned stop func is
// called. stop blocks until the goroutine has exited, so no tick can land
// after it returns.
func startTicker(interval time.Duration, tick func()) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				tick()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
