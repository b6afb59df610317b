package retry

import (
	"errors"
	"testing"
	"time"
)

func TestDoStopsOnFirstSuccess(t *testing.T) {
	calls := 0
	p := Linear(3, time.Second)
	p.Sleep = func(time.Duration) { t.Fatal("should not sleep") }

	err := p.Do(func(int) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("calls: got %d want 1", calls)
	}
}

func TestDoReturnsLastErrorAfterExhaustion(t *testing.T) {
	var slept []time.Duration
	p := Linear(3, 5*time.Second)
	p.Sleep = func(d time.Duration) { slept = append(slept, d) }

	boom := errors.New("boom")
	calls := 0
	err := p.Do(func(attempt int) error {
		calls++
		if attempt != calls {
			t.Fatalf("attempt %d on call %d", attempt, calls)
		}
		return boom
	})

	if !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls: got %d want 3", calls)
	}
	if len(slept) != 2 || slept[0] != 5*time.Second || slept[1] != 10*time.Second {
		t.Fatalf("slept: %v", slept)
	}
}

func TestFixedBackoff(t *testing.T) {
	p := Fixed(3, 5*time.Second)
	if p.Backoff(1) != 5*time.Second || p.Backoff(2) != 5*time.Second {
		t.Fatalf("fixed backoff should not grow")
	}
}

func TestZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	p := Policy{}
	_ = p.Do(func(int) error {
		calls++
		return errors.New("boom")
	})
	if calls != 1 {
		t.Fatalf("calls: got %d want 1", calls)
	}
}
