package device

import (
	"sync"
	"time"
)

// Drives a step function from a goroutine at a fixed period, standing in for
// a hardware audio thread.
type clock struct {
	period time.Duration
	step   func()

	stop    chan struct{}
	closeWg sync.WaitGroup
}

func periodDuration(frames, sampleRate int) time.Duration {
	return max(time.Duration(frames)*time.Second/time.Duration(sampleRate), time.Microsecond)
}

func (c *clock) running() bool {
	return c.stop != nil
}

func (c *clock) start() {
	if c.running() {
		return
	}
	c.stop = make(chan struct{})
	c.closeWg.Add(1)
	go c.run(c.stop)
}

func (c *clock) run(stop <-chan struct{}) {
	defer c.closeWg.Done()

	ticker := time.NewTicker(c.period)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.step()
		}
	}
}

// Returns once the step in flight, if any, has finished.
func (c *clock) halt() {
	if !c.running() {
		return
	}
	close(c.stop)
	c.closeWg.Wait()
	c.stop = nil
}
