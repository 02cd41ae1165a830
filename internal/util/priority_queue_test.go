package util

import "testing"

func TestPriorityQueueOrdering(t *testing.T) {
	q := NewPriorityQueue[string]()
	for _, p := range []struct {
		v string
		p int
	}{
		{"low", 1}, {"high", 5}, {"mid-a", 3}, {"mid-b", 3},
	} {
		if err := q.Push(p.v, p.p); err != nil {
			t.Fatalf("Push(%q): %v", p.v, err)
		}
	}

	// Highest priority first; equal priorities pop in insertion order.
	want := []string{"high", "mid-a", "mid-b", "low"}
	for _, w := range want {
		got, err := q.Pop()
		if err != nil {
			t.Fatalf("Pop: %v", err)
		}
		if got != w {
			t.Fatalf("popped %q, want %q", got, w)
		}
	}

	if _, err := q.Pop(); err != ErrPriorityQueueEmpty {
		t.Fatalf("empty pop error = %v, want ErrPriorityQueueEmpty", err)
	}
}

func TestPriorityQueueClose(t *testing.T) {
	q := NewPriorityQueue[int]()
	if err := q.Push(1, 1); err != nil {
		t.Fatalf("Push: %v", err)
	}
	q.Close()

	if err := q.Push(2, 2); err != ErrPriorityQueueClosed {
		t.Fatalf("push after close error = %v, want ErrPriorityQueueClosed", err)
	}
	if _, err := q.Pop(); err != ErrPriorityQueueClosed {
		t.Fatalf("pop after close error = %v, want ErrPriorityQueueClosed", err)
	}
	if q.Len() != 0 {
		t.Fatalf("close should drop queued items, len = %d", q.Len())
	}
}
