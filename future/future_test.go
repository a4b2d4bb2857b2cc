package future

import (
	"context"
	"errors"
	"testing"
	"time"

	amqp "github.com/cordio/amqp91"
)

func TestCompleteResolvesWait(t *testing.T) {
	f := New[string]()
	f.Complete("hello")
	v, err := f.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != "hello" {
		t.Fatalf("expected hello, got %q", v)
	}
}

func TestFailResolvesWaitWithError(t *testing.T) {
	f := New[string]()
	wantErr := errors.New("boom")
	f.Fail(wantErr)
	_, err := f.Wait(context.Background())
	if err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}
}

func TestOnlyFirstResolutionWins(t *testing.T) {
	f := New[string]()
	f.Complete("first")
	f.Complete("second")
	f.Fail(errors.New("too late"))

	v, err := f.Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if v != "first" {
		t.Fatalf("expected first resolution to win, got %q", v)
	}
}

func TestCancelFailsWithErrCancelled(t *testing.T) {
	f := New[string]()
	f.Cancel()
	_, err := f.Wait(context.Background())
	if err != amqp.ErrCancelled {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
}

func TestCancelThenLateReplyIsNoOp(t *testing.T) {
	f := New[string]()
	f.Cancel()
	f.Complete("late")

	v, err := f.Wait(context.Background())
	if err != amqp.ErrCancelled {
		t.Fatalf("expected ErrCancelled to have won, got value %q err %v", v, err)
	}
}

func TestWaitRespectsContextCancellation(t *testing.T) {
	f := New[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Wait(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected DeadlineExceeded, got %v", err)
	}
}
