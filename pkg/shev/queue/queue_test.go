package queue

import (
	"testing"
	"time"

	"github.com/rhkang/shev/pkg/shev/models"
)

func TestFIFOOrder(t *testing.T) {
	q := New(10)
	defer q.Close()

	var sent []models.Event
	for i := 0; i < 5; i++ {
		e := models.NewEvent("tick", "")
		sent = append(sent, e)
		if err := q.Send(e); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		got := <-q.Receive()
		if got.ID != sent[i].ID {
			t.Fatalf("event %d out of order: got %s, want %s", i, got.ID, sent[i].ID)
		}
	}
}

func TestSendBlocksWhenFull(t *testing.T) {
	q := New(1)
	defer q.Close()

	if err := q.Send(models.NewEvent("a", "")); err != nil {
		t.Fatalf("first send: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- q.Send(models.NewEvent("b", ""))
	}()

	select {
	case err := <-done:
		t.Fatalf("send on a full queue returned early: %v", err)
	case <-time.After(100 * time.Millisecond):
	}

	// Draining one slot unblocks the sender.
	<-q.Receive()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("unblocked send: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sender stayed blocked after drain")
	}
}

func TestCloseUnblocksSender(t *testing.T) {
	q := New(1)
	if err := q.Send(models.NewEvent("a", "")); err != nil {
		t.Fatalf("first send: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- q.Send(models.NewEvent("b", ""))
	}()

	time.Sleep(50 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		if err != ErrClosed {
			t.Fatalf("send after close = %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("sender stayed blocked after close")
	}

	if err := q.Send(models.NewEvent("c", "")); err != ErrClosed {
		t.Fatalf("send on closed queue = %v, want ErrClosed", err)
	}
}
