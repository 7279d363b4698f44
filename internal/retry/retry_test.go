package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPolicyDo(t *testing.T) {
	errBoom := errors.New("boom")

	tests := []struct {
		name             string
		maxAttempts      int
		failures         int
		expectedAttempts int
		expectErr        bool
	}{
		{"succeeds first try", 3, 0, 1, false},
		{"succeeds on third", 3, 2, 3, false},
		{"exhausts three", 3, 10, 3, true},
		{"zero uses default", 0, 10, DefaultMaxAttempts, true},
		{"single attempt", 1, 1, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			attempts := 0
			p := Policy{MaxAttempts: tt.maxAttempts, Backoff: time.Millisecond}

			err := p.Do(context.Background(), "test", func(context.Context) error {
				attempts++
				if attempts <= tt.failures {
					return errBoom
				}
				return nil
			})

			if (err != nil) != tt.expectErr {
				t.Fatalf("expected error: %v, got: %v", tt.expectErr, err)
			}
			if tt.expectErr {
				if !errors.Is(err, ErrExhausted) {
					t.Errorf("error %v does not wrap ErrExhausted", err)
				}
				if !errors.Is(err, errBoom) {
					t.Errorf("error %v does not wrap last failure", err)
				}
			}
			if attempts != tt.expectedAttempts {
				t.Fatalf("attempts: got %d, want %d", attempts, tt.expectedAttempts)
			}
		})
	}
}

func TestPolicyDoNoSleepAfterLastAttempt(t *testing.T) {
	p := Policy{MaxAttempts: 1, Backoff: time.Hour}

	done := make(chan error, 1)
	go func() {
		done <- p.Do(context.Background(), "test", func(context.Context) error {
			return errors.New("fail")
		})
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected error")
		}
	case <-time.After(time.Second):
		t.Fatal("Do slept after the final attempt")
	}
}

func TestPolicyDoCanceledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 3, Backoff: time.Hour}

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := p.Do(ctx, "test", func(context.Context) error {
		attempts++
		return errors.New("fail")
	})

	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestDefault(t *testing.T) {
	p := Default()
	if p.MaxAttempts != 3 || p.Backoff != time.Second {
		t.Errorf("Default() = %+v", p)
	}
	if (Policy{}).Attempts() != 3 {
		t.Error("zero Policy should allow 3 attempts")
	}
}
