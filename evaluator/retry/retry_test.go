/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package retry_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/reposcore/evaluator/retry"
)

func testConfig() retry.Config {
	return retry.Config{
		MaxRetries:  3,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  10 * time.Millisecond,
		MaxJitter:   time.Millisecond,
	}
}

// alwaysRetryable considers every error retryable.
func alwaysRetryable(err error) bool {
	return err != nil
}

func TestDoSuccess(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	result, err := retry.Do(context.Background(), testConfig(), "test_op", alwaysRetryable, func() (string, error) {
		attempts.Add(1)
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Fatalf("got result %q, wanted %q", result, "ok")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("got %d attempts, wanted 1", got)
	}
}

func TestDoSuccessAfterRetries(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	transient := errors.New("429 rate limited")

	result, err := retry.Do(context.Background(), testConfig(), "test_op", alwaysRetryable, func() (string, error) {
		if attempts.Add(1) < 3 {
			return "", transient
		}
		return "recovered", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "recovered" {
		t.Fatalf("got result %q, wanted %q", result, "recovered")
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("got %d attempts, wanted 3", got)
	}
}

func TestDoExhaustedRetries(t *testing.T) {
	t.Parallel()
	transient := errors.New("503 overloaded")

	var attempts atomic.Int32
	_, err := retry.Do(context.Background(), testConfig(), "test_op", alwaysRetryable, func() (string, error) {
		attempts.Add(1)
		return "", transient
	})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !errors.Is(err, transient) {
		t.Errorf("got error %v, wanted wrapped %v", err, transient)
	}
	// MaxRetries retries means MaxRetries+1 total attempts.
	if got := attempts.Load(); got != 4 {
		t.Fatalf("got %d attempts, wanted 4", got)
	}
}

func TestDoNonRetryableError(t *testing.T) {
	t.Parallel()
	permanent := errors.New("400 bad request")

	var attempts atomic.Int32
	_, err := retry.Do(context.Background(), testConfig(), "test_op", func(error) bool { return false }, func() (string, error) {
		attempts.Add(1)
		return "", permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("got error %v, wanted %v", err, permanent)
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("got %d attempts, wanted 1", got)
	}
}

func TestDoContextCancellation(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	transient := errors.New("429 rate limited")

	cfg := testConfig()
	cfg.BaseBackoff = time.Minute

	var attempts atomic.Int32
	done := make(chan error, 1)
	go func() {
		_, err := retry.Do(ctx, cfg, "test_op", alwaysRetryable, func() (string, error) {
			attempts.Add(1)
			return "", transient
		})
		done <- err
	}()

	// Let the first attempt fail and enter backoff, then cancel.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("got error %v, wanted context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("retry did not observe cancellation")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("got %d attempts, wanted 1", got)
	}
}

func TestDoZeroRetries(t *testing.T) {
	t.Parallel()
	cfg := testConfig()
	cfg.MaxRetries = 0
	transient := errors.New("429 rate limited")

	var attempts atomic.Int32
	_, err := retry.Do(context.Background(), cfg, "test_op", alwaysRetryable, func() (string, error) {
		attempts.Add(1)
		return "", transient
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("got %d attempts, wanted 1", got)
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	if err := retry.DefaultConfig().Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	bad := []retry.Config{
		{MaxRetries: -1},
		{BaseBackoff: -time.Second},
		{MaxBackoff: -time.Second},
		{MaxJitter: -time.Second},
	}
	for i, cfg := range bad {
		if err := cfg.Validate(); err == nil {
			t.Errorf("config %d: expected validation error", i)
		}
	}
}
