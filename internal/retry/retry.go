// Package retry holds the bounded-retry policy shared by the row fetcher
// and the upsert writer. Sleep is injectable so tests run without waiting.
package retry

import "time"

type Policy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(time.Duration)
}

// Linear returns a policy that waits attempt*step between attempts.
func Linear(maxAttempts int, step time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff:     func(attempt int) time.Duration { return time.Duration(attempt) * step },
	}
}

// Fixed returns a policy that waits the same delay between attempts.
func Fixed(maxAttempts int, delay time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Backoff:     func(int) time.Duration { return delay },
	}
}

// Do runs fn up to MaxAttempts times, waiting between attempts. It returns
// nil on the first success, or the last error once attempts are exhausted.
func (p Policy) Do(fn func(attempt int) error) error {
	var err error
	for attempt := 1; attempt <= p.attempts(); attempt++ {
		err = fn(attempt)
		if err == nil {
			return nil
		}
		if attempt < p.attempts() {
			p.Wait(attempt)
		}
	}
	return err
}

// Wait sleeps for the backoff of the given attempt.
func (p Policy) Wait(attempt int) {
	if p.Backoff == nil {
		return
	}
	d := p.Backoff(attempt)
	if d <= 0 {
		return
	}
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}

func (p Policy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}
