package triage

import (
	"context"
	"time"

	"prtriage/internal/ci"
	gh "prtriage/internal/github"
)

// PollPolicy bounds the check-status polling loop. Clock and sleeper are
// injectable so tests run without real delays.
type PollPolicy struct {
	Interval time.Duration
	Timeout  time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

func NewPollPolicy(interval, timeout time.Duration) PollPolicy {
	return PollPolicy{
		Interval: interval,
		Timeout:  timeout,
		now:      time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// WithClock replaces the wall clock and sleeper, for tests.
func (p PollPolicy) WithClock(now func() time.Time, sleep func(context.Context, time.Duration) error) PollPolicy {
	p.now = now
	p.sleep = sleep
	return p
}

// WaitForChecks re-fetches a PR's check statuses on a fixed interval until
// the aggregate reaches a terminal state (success or failure) or the
// timeout elapses, returning the last observed status either way. Each
// poll invalidates the gateway's cached copy first so it sees fresh state.
func WaitForChecks(ctx context.Context, gw gh.Gateway, number int, p PollPolicy) ci.Overall {
	deadline := p.now().Add(p.Timeout)
	last := ci.OverallUnknown
	for {
		gw.InvalidatePR(number)
		last = ci.OverallStatus(gw.GetCheckStatuses(ctx, number))
		if last == ci.OverallSuccess || last == ci.OverallFailure {
			return last
		}
		if p.now().After(deadline) {
			return last
		}
		if err := p.sleep(ctx, p.Interval); err != nil {
			return last
		}
	}
}
