package reconcile

import (
	"context"
	"time"
)

// alarmClock emits a wakeup immediately, then on every tick or nudge until stopped.
type alarmClock struct {
	interval time.Duration
	cancel   func()
	nudgeC   chan struct{}
	C        chan time.Time
}

func newAlarmClock(interval time.Duration) *alarmClock {
	return &alarmClock{
		interval: interval,
		nudgeC:   make(chan struct{}, 1),
		C:        make(chan time.Time),
	}
}

func (a *alarmClock) Start(ctx context.Context) <-chan time.Time {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go func() {
		defer close(a.C)
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		send := func(t time.Time) bool {
			select {
			case a.C <- t:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !send(time.Now()) {
			return
		}
		for {
			select {
			case t := <-ticker.C:
				if !send(t) {
					return
				}
			case <-a.nudgeC:
				if !send(time.Now()) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return a.C
}

// Nudge requests an early wakeup. Nudges coalesce while one is pending.
func (a *alarmClock) Nudge() {
	select {
	case a.nudgeC <- struct{}{}:
	default:
	}
}

func (a *alarmClock) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}
