package platform

import (
	"context"
	"errors"
	"testing"
	"time"
)

type floodError struct{ wait time.Duration }

func (e floodError) Error() string              { return "too many requests" }
func (e floodError) RetryDelay() time.Duration { return e.wait }

func TestRetry(t *testing.T) {
	sentinel := errors.New("getMe: connection reset")
	tests := []struct {
		name      string
		attempts  int
		failFirst int // calls that fail before success; -1 fails forever
		wantCalls int
		wantErr   error
	}{
		{"success first attempt", 3, 0, 1, nil},
		{"success after retries", 3, 2, 3, nil},
		{"all attempts fail", 3, -1, 3, sentinel},
		{"single attempt", 1, -1, 1, sentinel},
		{"zero attempts", 0, -1, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), tt.attempts, time.Millisecond, func() error {
				calls++
				if tt.failFirst < 0 || calls <= tt.failFirst {
					return sentinel
				}
				return nil
			})
			if !errors.Is(err, tt.wantErr) || (tt.wantErr == nil && err != nil) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestRetry_contextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, 5, 100*time.Millisecond, func() error {
		calls++
		if calls == 1 {
			cancel()
		}
		return errors.New("fail")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", calls)
	}
}

func TestRetry_contextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()
	err := Retry(ctx, 100, 50*time.Millisecond, func() error { return errors.New("fail") })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}

func TestRetry_exponentialBackoff(t *testing.T) {
	baseDelay := 10 * time.Millisecond
	var timestamps []time.Time
	err := Retry(context.Background(), 4, baseDelay, func() error {
		timestamps = append(timestamps, time.Now())
		if len(timestamps) < 4 {
			return errors.New("fail")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	// 10ms, 20ms, 40ms with 50% tolerance.
	for i := 1; i < len(timestamps); i++ {
		gap := timestamps[i].Sub(timestamps[i-1])
		if min := baseDelay * (1 << (i - 1)) / 2; gap < min {
			t.Errorf("gap %d: %v < %v", i, gap, min)
		}
	}
}

func TestRetry_permanentStopsEarly(t *testing.T) {
	cause := errors.New("token revoked")
	calls := 0
	err := Retry(context.Background(), 5, time.Millisecond, func() error {
		calls++
		return Permanent(cause)
	})
	if err != cause {
		t.Fatalf("expected bare cause, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRetry_honoursRequestedDelay(t *testing.T) {
	start := time.Now()
	calls := 0
	err := Retry(context.Background(), 2, time.Millisecond, func() error {
		calls++
		if calls == 1 {
			return floodError{wait: 30 * time.Millisecond}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
		t.Fatalf("waited %v, want at least the requested 30ms", elapsed)
	}
}

func TestBackoff(t *testing.T) {
	orig := MaxRetryDelay
	t.Cleanup(func() { MaxRetryDelay = orig })
	MaxRetryDelay = time.Second

	plain := errors.New("fail")
	tests := []struct {
		name    string
		attempt int
		err     error
		want    time.Duration
	}{
		{"first", 0, plain, 100 * time.Millisecond},
		{"third", 2, plain, 400 * time.Millisecond},
		{"capped", 5, plain, time.Second},
		{"requested longer", 0, floodError{wait: 700 * time.Millisecond}, 700 * time.Millisecond},
		{"requested shorter", 2, floodError{wait: time.Millisecond}, 400 * time.Millisecond},
		{"requested over cap", 0, floodError{wait: time.Minute}, time.Second},
		{"wrapped request", 0, Permanent(floodError{wait: 200 * time.Millisecond}), 200 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := backoff(100*time.Millisecond, tt.attempt, tt.err); got != tt.want {
				t.Fatalf("backoff = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPermanent(t *testing.T) {
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
	cause := errors.New("boom")
	err := Permanent(cause)
	if !errors.Is(err, cause) || err.Error() != "boom" {
		t.Fatalf("Permanent lost its cause: %v", err)
	}
}
