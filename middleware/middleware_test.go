package middleware

import (
	"context"
	"testing"
	"time"

	amqp "github.com/cordio/amqp91"
)

func echoHandler(ctx context.Context, inv *Invocation) *Result {
	return &Result{Value: "ok"}
}

func slowHandler(ctx context.Context, inv *Invocation) *Result {
	time.Sleep(200 * time.Millisecond)
	return &Result{Value: "ok"}
}

func TestLogging(t *testing.T) {
	handler := LoggingMiddleware(nil)(echoHandler)
	res := handler(context.Background(), &Invocation{Method: "queue.declare"})
	if res.Err != nil {
		t.Fatalf("expect no error, got %v", res.Err)
	}
	if res.Value != "ok" {
		t.Fatalf("expect value 'ok', got %v", res.Value)
	}
}

func TestTimeoutPass(t *testing.T) {
	handler := TimeoutMiddleware(500 * time.Millisecond)(echoHandler)
	res := handler(context.Background(), &Invocation{Method: "queue.declare"})
	if res.Err != nil {
		t.Fatalf("expect no error, got %v", res.Err)
	}
}

func TestTimeoutExceeded(t *testing.T) {
	handler := TimeoutMiddleware(50 * time.Millisecond)(slowHandler)
	res := handler(context.Background(), &Invocation{Method: "queue.declare"})
	if res.Err == nil {
		t.Fatal("expect timeout error, got nil")
	}
	if _, ok := res.Err.(*amqp.TimeoutError); !ok {
		t.Fatalf("expect *amqp.TimeoutError, got %T", res.Err)
	}
}

func TestRateLimit(t *testing.T) {
	// rate=1/sec, burst=2: the first two calls pass immediately, the third is rejected.
	handler := RateLimitMiddleware(1, 2)(echoHandler)
	inv := &Invocation{Method: "basic.publish"}

	for i := 0; i < 2; i++ {
		res := handler(context.Background(), inv)
		if res.Err != nil {
			t.Fatalf("call %d should pass, got error: %v", i, res.Err)
		}
	}

	res := handler(context.Background(), inv)
	if res.Err == nil {
		t.Fatal("expect call 3 to be rate limited")
	}
	if _, ok := res.Err.(*amqp.InvalidArgumentError); !ok {
		t.Fatalf("expect *amqp.InvalidArgumentError, got %T", res.Err)
	}
}

func TestRetryOnlyRetriesIoErrors(t *testing.T) {
	attempts := 0
	flaky := func(ctx context.Context, inv *Invocation) *Result {
		attempts++
		if attempts < 3 {
			return &Result{Err: &amqp.IoError{Cause: context.DeadlineExceeded}}
		}
		return &Result{Value: "ok"}
	}
	handler := RetryMiddleware(5, time.Millisecond, nil)(flaky)
	res := handler(context.Background(), &Invocation{Method: "basic.get"})
	if res.Err != nil {
		t.Fatalf("expect eventual success, got %v", res.Err)
	}
	if attempts != 3 {
		t.Fatalf("expect 3 attempts, got %d", attempts)
	}
}

func TestRetryDoesNotRetryNonIoErrors(t *testing.T) {
	attempts := 0
	alwaysInvalid := func(ctx context.Context, inv *Invocation) *Result {
		attempts++
		return &Result{Err: &amqp.InvalidArgumentError{Message: "bad args"}}
	}
	handler := RetryMiddleware(5, time.Millisecond, nil)(alwaysInvalid)
	res := handler(context.Background(), &Invocation{Method: "basic.get"})
	if res.Err == nil {
		t.Fatal("expect error to propagate")
	}
	if attempts != 1 {
		t.Fatalf("expect exactly 1 attempt for a non-i/o error, got %d", attempts)
	}
}

func TestChain(t *testing.T) {
	chained := Chain(LoggingMiddleware(nil), TimeoutMiddleware(500*time.Millisecond))
	handler := chained(echoHandler)
	res := handler(context.Background(), &Invocation{Method: "queue.declare"})
	if res.Err != nil {
		t.Fatalf("expect no error, got %v", res.Err)
	}
	if res.Value != "ok" {
		t.Fatalf("expect value 'ok', got %v", res.Value)
	}
}

func TestInvokeUnboxesTypedResult(t *testing.T) {
	chain := Chain(LoggingMiddleware(nil))
	n, err := Invoke(chain, context.Background(), "queue.purge", func(ctx context.Context) (uint32, error) {
		return 42, nil
	})
	if err != nil {
		t.Fatalf("expect no error, got %v", err)
	}
	if n != 42 {
		t.Fatalf("expect 42, got %d", n)
	}
}

func TestInvokePropagatesError(t *testing.T) {
	_, err := Invoke[uint32](nil, context.Background(), "queue.purge", func(ctx context.Context) (uint32, error) {
		return 0, &amqp.InvalidArgumentError{Message: "boom"}
	})
	if err == nil {
		t.Fatal("expect error to propagate")
	}
}
