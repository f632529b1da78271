package retry

import (
	"context"
	"errors"
	"testing"
)

var errBusy = errors.New("busy")
var errFatal = errors.New("fatal")

func isBusy(err error) bool { return errors.Is(err, errBusy) }

func TestDoSucceedsAfterRetries(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), isBusy, func() error {
		attempts++
		if attempts < 3 {
			return errBusy
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
}

func TestDoStopsImmediatelyOnNonRetryableError(t *testing.T) {
	attempts := 0
	err := Do(context.Background(), isBusy, func() error {
		attempts++
		return errFatal
	})
	if !errors.Is(err, errFatal) {
		t.Fatalf("err = %v, want errFatal", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (no retry on non-retryable error)", attempts)
	}
}

func TestDoRespectsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Do(ctx, isBusy, func() error {
		attempts++
		return errBusy
	})
	if err == nil {
		t.Fatalf("expected an error when context is already cancelled")
	}
}
