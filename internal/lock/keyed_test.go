package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Shivanand-hulikatti/seat-reservations/internal/model"
)

func TestKeyed_SerializesSameKey(t *testing.T) {
	t.Parallel()

	k := NewKeyed("test", time.Second)
	ctx := context.Background()

	var inside int32
	var maxInside int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := k.Acquire(ctx, "event-1")
			if err != nil {
				t.Errorf("acquire: %v", err)
				return
			}
			n := atomic.AddInt32(&inside, 1)
			for {
				cur := atomic.LoadInt32(&maxInside)
				if n <= cur || atomic.CompareAndSwapInt32(&maxInside, cur, n) {
					break
				}
			}
			time.Sleep(100 * time.Microsecond)
			atomic.AddInt32(&inside, -1)
			release()
		}()
	}
	wg.Wait()

	if maxInside != 1 {
		t.Fatalf("expected at most 1 holder at a time, saw %d", maxInside)
	}
	if k.Len() != 0 {
		t.Fatalf("expected entries to be dropped, got %d", k.Len())
	}
}

func TestKeyed_DifferentKeysDoNotBlock(t *testing.T) {
	t.Parallel()

	k := NewKeyed("test", 50*time.Millisecond)
	ctx := context.Background()

	release, err := k.Acquire(ctx, "event-1")
	if err != nil {
		t.Fatalf("acquire event-1: %v", err)
	}
	defer release()

	other, err := k.Acquire(ctx, "event-2")
	if err != nil {
		t.Fatalf("expected event-2 to be free, got %v", err)
	}
	other()
}

func TestKeyed_TimeoutIsUnavailable(t *testing.T) {
	t.Parallel()

	k := NewKeyed("event", 20*time.Millisecond)
	ctx := context.Background()

	release, err := k.Acquire(ctx, "event-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	_, err = k.Acquire(ctx, "event-1")
	if !errors.Is(err, model.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	release()
	release() // second call is a no-op

	again, err := k.Acquire(ctx, "event-1")
	if err != nil {
		t.Fatalf("expected lock to be free after release, got %v", err)
	}
	again()
}

func TestKeyed_CanceledContext(t *testing.T) {
	t.Parallel()

	k := NewKeyed("event", time.Second)
	release, err := k.Acquire(context.Background(), "event-1")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = k.Acquire(ctx, "event-1")
	if !errors.Is(err, model.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cause context.Canceled, got %v", err)
	}
}
