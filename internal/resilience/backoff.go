package resilience

import "time"

// Backoff is the polling policy shared by the algorithmic orders. The
// delay starts at Min, grows by Step on every idle poll and is capped at Max.
type Backoff struct {
	Min  time.Duration
	Max  time.Duration
	Step time.Duration
}

// DefaultBackoff polls every second when busy and every 10 seconds when idle.
func DefaultBackoff() Backoff {
	return Backoff{
		Min:  1 * time.Second,
		Max:  10 * time.Second,
		Step: 1 * time.Second,
	}
}

// Start returns the first delay of a polling loop.
func (b Backoff) Start() PollDelay {
	return PollDelay{policy: b.normalized(), current: b.normalized().Min}
}

func (b Backoff) normalized() Backoff {
	if b.Min <= 0 {
		b.Min = time.Second
	}
	if b.Max < b.Min {
		b.Max = b.Min
	}
	if b.Step < 0 {
		b.Step = 0
	}
	return b
}

// PollDelay is the current delay of one polling loop. It is a value; each
// transition returns the next state.
type PollDelay struct {
	policy  Backoff
	current time.Duration
}

// Duration is how long to wait before the next poll.
func (d PollDelay) Duration() time.Duration {
	return d.current
}

// Idle grows the delay after a poll that changed nothing.
func (d PollDelay) Idle() PollDelay {
	next := d.current + d.policy.Step
	if next > d.policy.Max {
		next = d.policy.Max
	}
	d.current = next
	return d
}

// Reset drops back to the minimum delay after something happened.
func (d PollDelay) Reset() PollDelay {
	d.current = d.policy.Min
	return d
}
