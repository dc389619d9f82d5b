package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func retryOnlyConfig() Config {
	return Config{
		RetryMaxAttempts:    3,
		RetryInitialBackoff: 1 * time.Millisecond,
		RetryMaxBackoff:     2 * time.Millisecond,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	}
}

func classifyAs(retryable, record bool) ErrorClassifier {
	return func(error) ErrorClassification {
		return ErrorClassification{Retryable: retryable, RecordFailure: record}
	}
}

func TestExecuteRetriesUntilBackendRecovers(t *testing.T) {
	exec := NewExecutor(retryOnlyConfig())

	errFlaky := errors.New("connection reset")
	attempts := 0
	err := exec.Execute(context.Background(), "gemini.generate", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errFlaky
		}
		return nil
	}, classifyAs(true, true))
	if err != nil {
		t.Fatalf("expected success once the backend recovers, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteGivesUpOnNonRetryableError(t *testing.T) {
	exec := NewExecutor(retryOnlyConfig())

	errBadRequest := errors.New("invalid payload")
	attempts := 0
	err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
		attempts++
		return errBadRequest
	}, classifyAs(false, false))
	if !errors.Is(err, errBadRequest) {
		t.Fatalf("expected the original error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("non-retryable errors must not be retried, got %d attempts", attempts)
	}
}

func TestExecuteStopsRetryingWhenContextCanceled(t *testing.T) {
	cfg := retryOnlyConfig()
	cfg.RetryMaxAttempts = 10
	cfg.RetryInitialBackoff = 50 * time.Millisecond
	cfg.RetryMaxBackoff = 50 * time.Millisecond
	exec := NewExecutor(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	errFlaky := errors.New("timeout")
	attempts := 0
	err := exec.Execute(ctx, "gemini.upload", func(context.Context) error {
		attempts++
		cancel()
		return errFlaky
	}, classifyAs(true, true))
	if !errors.Is(err, errFlaky) {
		t.Fatalf("expected the last operation error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("cancellation must stop the retry loop, got %d attempts", attempts)
	}
}

func breakerConfig() Config {
	return Config{
		RetryMaxAttempts:        1,
		RetryInitialBackoff:     1 * time.Millisecond,
		RetryMaxBackoff:         1 * time.Millisecond,
		RetryMultiplier:         2,
		BreakerEnabled:          true,
		BreakerMinRequests:      2,
		BreakerFailureRatio:     0.5,
		BreakerOpenTimeout:      50 * time.Millisecond,
		BreakerHalfOpenMaxCalls: 1,
	}
}

func TestExecuteOpensCircuitAfterRecordedFailures(t *testing.T) {
	exec := NewExecutor(breakerConfig())

	errDown := errors.New("backend down")
	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "gemini.generate", func(context.Context) error {
			return errDown
		}, classifyAs(false, true))
		if !errors.Is(err, errDown) {
			t.Fatalf("iteration %d: expected backend error, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "gemini.generate", func(context.Context) error {
		t.Fatal("open circuit must not invoke the operation")
		return nil
	}, classifyAs(false, true))
	if !IsCircuitOpen(err) {
		t.Fatalf("expected an open-circuit error, got %v", err)
	}
}

func TestExecuteBreakersAreIsolatedPerOperation(t *testing.T) {
	exec := NewExecutor(breakerConfig())

	errDown := errors.New("backend down")
	for i := 0; i < 3; i++ {
		_ = exec.Execute(context.Background(), "gemini.generate", func(context.Context) error {
			return errDown
		}, classifyAs(false, true))
	}

	err := exec.Execute(context.Background(), "nats.publish", func(context.Context) error {
		return nil
	}, classifyAs(false, true))
	if err != nil {
		t.Fatalf("an open breaker on one operation must not affect another, got %v", err)
	}
}

func TestExecuteUnrecordedFailuresDoNotTripBreaker(t *testing.T) {
	exec := NewExecutor(breakerConfig())

	errClient := errors.New("unprocessable input")
	for i := 0; i < 5; i++ {
		err := exec.Execute(context.Background(), "gemini.generate", func(context.Context) error {
			return errClient
		}, classifyAs(false, false))
		if IsCircuitOpen(err) {
			t.Fatalf("iteration %d: client errors must not open the circuit", i)
		}
		if !errors.Is(err, errClient) {
			t.Fatalf("iteration %d: expected client error, got %v", i, err)
		}
	}
}
