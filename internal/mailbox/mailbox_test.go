package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
)

// TestMemoryMailbox tests the in-memory mailbox implementation
func TestMemoryMailbox(t *testing.T) {
	t.Run("new mailbox is empty", func(t *testing.T) {
		mb := NewMemoryMailbox()

		if n := mb.Pending(0); n != 0 {
			t.Errorf("Expected no pending payloads, got %d", n)
		}
		st := mb.Stats()
		if st.Queued != 0 || st.Bytes != 0 || st.Delivered != 0 {
			t.Errorf("Expected zero stats, got %+v", st)
		}
	})

	t.Run("push and pop preserve order per source", func(t *testing.T) {
		mb := NewMemoryMailbox()
		ctx := context.Background()

		for i := 0; i < 3; i++ {
			if err := mb.Push(1, []byte(fmt.Sprintf("m%d", i))); err != nil {
				t.Fatalf("Failed to push: %v", err)
			}
		}

		for i := 0; i < 3; i++ {
			got, err := mb.Pop(ctx, 1)
			if err != nil {
				t.Fatalf("Failed to pop: %v", err)
			}
			want := []byte(fmt.Sprintf("m%d", i))
			if !bytes.Equal(got, want) {
				t.Errorf("Expected %s, got %s", want, got)
			}
		}
	})

	t.Run("sources are independent", func(t *testing.T) {
		mb := NewMemoryMailbox()
		ctx := context.Background()

		mb.Push(1, []byte("from-1"))
		mb.Push(2, []byte("from-2"))

		got, err := mb.Pop(ctx, 2)
		if err != nil {
			t.Fatalf("Failed to pop: %v", err)
		}
		if string(got) != "from-2" {
			t.Errorf("Expected from-2, got %s", got)
		}
		if mb.Pending(1) != 1 {
			t.Errorf("Expected rank 1 queue untouched, got %d pending", mb.Pending(1))
		}
	})

	t.Run("push copies the payload", func(t *testing.T) {
		mb := NewMemoryMailbox()
		buf := []byte("original")
		mb.Push(0, buf)
		buf[0] = 'X'

		got, _ := mb.Pop(context.Background(), 0)
		if string(got) != "original" {
			t.Errorf("Expected stored copy to be unaffected, got %s", got)
		}
	})

	t.Run("stats track queued bytes and deliveries", func(t *testing.T) {
		mb := NewMemoryMailbox()
		mb.Push(0, []byte("abc"))
		mb.Push(1, []byte("de"))
		mb.Pop(context.Background(), 0)

		st := mb.Stats()
		if st.Queued != 1 {
			t.Errorf("Expected 1 queued, got %d", st.Queued)
		}
		if st.Bytes != 2 {
			t.Errorf("Expected 2 bytes, got %d", st.Bytes)
		}
		if st.Delivered != 1 {
			t.Errorf("Expected 1 delivered, got %d", st.Delivered)
		}
	})
}

// TestMemoryMailboxBlocking tests that Pop waits for a matching Push
func TestMemoryMailboxBlocking(t *testing.T) {
	t.Run("pop unblocks on push", func(t *testing.T) {
		mb := NewMemoryMailbox()
		done := make(chan []byte)

		go func() {
			got, err := mb.Pop(context.Background(), 3)
			if err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			done <- got
		}()

		time.Sleep(20 * time.Millisecond)
		mb.Push(3, []byte("late"))

		select {
		case got := <-done:
			if string(got) != "late" {
				t.Errorf("Expected late, got %s", got)
			}
		case <-time.After(time.Second):
			t.Fatal("Pop did not unblock")
		}
	})

	t.Run("pop honours context cancellation", func(t *testing.T) {
		mb := NewMemoryMailbox()
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := mb.Pop(ctx, 0)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Expected deadline exceeded, got %v", err)
		}
	})

	t.Run("close releases blocked readers", func(t *testing.T) {
		mb := NewMemoryMailbox()
		errs := make(chan error)

		go func() {
			_, err := mb.Pop(context.Background(), 0)
			errs <- err
		}()

		time.Sleep(20 * time.Millisecond)
		mb.Close()

		select {
		case err := <-errs:
			if err != ErrClosed {
				t.Errorf("Expected ErrClosed, got %v", err)
			}
		case <-time.After(time.Second):
			t.Fatal("Close did not release reader")
		}

		if err := mb.Push(0, []byte("x")); err != ErrClosed {
			t.Errorf("Expected ErrClosed on push, got %v", err)
		}
		if err := mb.Close(); err != nil {
			t.Errorf("Second close should be a no-op, got %v", err)
		}
	})
}

// TestMemoryMailboxConcurrency tests concurrent producers feeding one reader
func TestMemoryMailboxConcurrency(t *testing.T) {
	mb := NewMemoryMailbox()
	const producers = 4
	const perProducer = 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				mb.Push(p, []byte(fmt.Sprintf("%d", i)))
			}
		}(p)
	}

	ctx := context.Background()
	for p := 0; p < producers; p++ {
		for i := 0; i < perProducer; i++ {
			got, err := mb.Pop(ctx, p)
			if err != nil {
				t.Fatalf("Failed to pop: %v", err)
			}
			if string(got) != fmt.Sprintf("%d", i) {
				t.Fatalf("Producer %d: expected %d, got %s", p, i, got)
			}
		}
	}
	wg.Wait()

	if st := mb.Stats(); st.Delivered != producers*perProducer {
		t.Errorf("Expected %d delivered, got %d", producers*perProducer, st.Delivered)
	}
}
