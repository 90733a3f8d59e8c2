package bus

import "time"

// Delayer is the millisecond/microsecond delay primitive used for settle
// delays. Every delay in the protocol is a replayed constant.
type Delayer interface {
	Sleep(d time.Duration)
}

// DelayFunc adapts a plain sleep function to Delayer
type DelayFunc func(d time.Duration)

func (f DelayFunc) Sleep(d time.Duration) {
	f(d)
}

// HostDelay spins for sub-millisecond delays and sleeps for longer ones.
// The scheduler cannot wake a goroutine in a few microseconds.
type HostDelay struct{}

func (HostDelay) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if d < time.Millisecond {
		deadline := time.Now().Add(d)
		for time.Now().Before(deadline) {
		}
		return
	}
	time.Sleep(d)
}

// NoDelay skips every delay. Used by the simulated wire, where ordering is
// enforced by the wire itself.
type NoDelay struct{}

func (NoDelay) Sleep(time.Duration) {}
