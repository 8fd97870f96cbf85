package handler

import (
	"context"
	"testing"
	"time"

	"tools.zach/dev/sigdispatch/callback"
)

func TestMailbox_FIFO(t *testing.T) {
	box := newMailbox(0)
	for _, sec := range []int{3, 1, 2} {
		if res := box.trySend(callback.NewInfoAt(at(sec))); res != sendOK {
			t.Fatalf("trySend = %v, want sendOK", res)
		}
	}
	for _, want := range []int{3, 1, 2} {
		info, res := box.recv(context.Background())
		if res != recvOK || !info.Time().Equal(at(want)) {
			t.Fatalf("recv = (%v, %v), want T%d", info, res, want)
		}
	}
}

func TestMailbox_Bounded(t *testing.T) {
	box := newMailbox(2)
	box.trySend(callback.NewInfo())
	box.trySend(callback.NewInfo())
	if res := box.trySend(callback.NewInfo()); res != sendFull {
		t.Fatalf("third send = %v, want sendFull", res)
	}
	box.recv(context.Background())
	if res := box.trySend(callback.NewInfo()); res != sendOK {
		t.Fatalf("send after recv = %v, want sendOK", res)
	}
}

func TestMailbox_Unbounded(t *testing.T) {
	box := newMailbox(0)
	for i := range 1000 {
		if res := box.trySend(callback.NewInfo()); res != sendOK {
			t.Fatalf("send %d = %v", i, res)
		}
	}
	if box.len() != 1000 {
		t.Errorf("len = %d, want 1000", box.len())
	}
}

func TestMailbox_CloseDrainsThenReportsClosed(t *testing.T) {
	box := newMailbox(0)
	box.trySend(callback.NewInfoAt(at(1)))
	box.close()

	if res := box.trySend(callback.NewInfo()); res != sendClosed {
		t.Fatalf("send after close = %v, want sendClosed", res)
	}
	if _, res := box.recv(context.Background()); res != recvOK {
		t.Fatalf("first recv after close = %v, want the queued item", res)
	}
	if _, res := box.recv(context.Background()); res != recvClosed {
		t.Fatalf("second recv = %v, want recvClosed", res)
	}
}

func TestMailbox_CancelWinsOverQueued(t *testing.T) {
	box := newMailbox(0)
	box.trySend(callback.NewInfo())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, res := box.recv(ctx); res != recvCancelled {
		t.Fatalf("recv = %v, want recvCancelled", res)
	}
}

func TestMailbox_RecvBlocksUntilSend(t *testing.T) {
	box := newMailbox(0)
	got := make(chan recvResult, 1)
	go func() {
		_, res := box.recv(context.Background())
		got <- res
	}()

	select {
	case res := <-got:
		t.Fatalf("recv returned %v on an empty mailbox", res)
	case <-time.After(20 * time.Millisecond):
	}

	box.trySend(callback.NewInfo())
	select {
	case res := <-got:
		if res != recvOK {
			t.Fatalf("recv = %v, want recvOK", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("recv not woken by send")
	}
}

func TestMailbox_RecvWokenByClose(t *testing.T) {
	box := newMailbox(0)
	got := make(chan recvResult, 1)
	go func() {
		_, res := box.recv(context.Background())
		got <- res
	}()

	time.Sleep(10 * time.Millisecond)
	box.close()
	select {
	case res := <-got:
		if res != recvClosed {
			t.Fatalf("recv = %v, want recvClosed", res)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("recv not woken by close")
	}
}

func TestMailbox_AbandonDiscardsQueued(t *testing.T) {
	box := newMailbox(0)
	for range 3 {
		box.trySend(callback.NewInfo())
	}
	box.abandon()

	if box.len() != 0 {
		t.Errorf("len = %d, want 0", box.len())
	}
	if res := box.trySend(callback.NewInfo()); res != sendClosed {
		t.Errorf("send after abandon = %v, want sendClosed", res)
	}
	if _, res := box.recv(context.Background()); res != recvClosed {
		t.Errorf("recv = %v, want recvClosed", res)
	}
	box.close()
}
