package agent

import "sync"

// Countdown derives a locally ticking remaining-seconds value from
// authoritative snapshot values. It never smooths or resists the server's
// value: every new (question, remaining) pair resets the local count, and
// identical repeats for the same question leave the running tick alone.
// While the answer is revealed the countdown is suppressed entirely.
type Countdown struct {
	mu          sync.Mutex
	questionID  int
	anchored    bool
	anchorValue int
	remaining   *int
}

func NewCountdown() *Countdown {
	return &Countdown{questionID: -1}
}

// Reanchor resynchronizes with an authoritative snapshot value.
func (c *Countdown) Reanchor(questionID int, remaining *int, revealed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if revealed || remaining == nil || questionID < 0 {
		c.questionID = questionID
		c.anchored = false
		c.remaining = nil
		return
	}
	if c.anchored && c.questionID == questionID && c.anchorValue == *remaining {
		// Identical repeat: do not reset the tick again.
		return
	}
	c.questionID = questionID
	c.anchored = true
	c.anchorValue = *remaining
	value := *remaining
	c.remaining = &value
}

// Tick decrements the local countdown by one second, floored at zero.
func (c *Countdown) Tick() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining != nil && *c.remaining > 0 {
		*c.remaining--
	}
}

// Remaining returns the current local value, or nil when no countdown
// applies.
func (c *Countdown) Remaining() *int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.remaining == nil {
		return nil
	}
	value := *c.remaining
	return &value
}
