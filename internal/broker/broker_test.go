package broker

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWindowDropsNewestAndKeepsTail(t *testing.T) {
	bars := []Bar{{Close: 1}, {Close: 2}, {Close: 3}, {Close: 4}, {Close: 5}}

	got := window(bars, 1, 2)
	if len(got) != 2 || got[0].Close != 3 || got[1].Close != 4 {
		t.Fatalf("unexpected window: %+v", got)
	}

	got = window(bars, 0, 10)
	if len(got) != 5 {
		t.Fatalf("expected all bars, got %d", len(got))
	}

	got = window(bars, 5, 3)
	if len(got) != 0 {
		t.Fatalf("expected empty window, got %d", len(got))
	}

	window(bars, 1, 2)[0].Close = 99
	if bars[2].Close != 3 {
		t.Fatalf("window must not alias input")
	}
}

func TestWaitForContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WaitForContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WaitForContext(context.Background(), time.Millisecond); err != nil {
		t.Fatalf("expected nil after delay, got %v", err)
	}
}

func TestPositionTypeSides(t *testing.T) {
	if Long.Side() != Buy || Long.CloseSide() != Sell {
		t.Fatalf("long sides wrong")
	}
	if Short.Side() != Sell || Short.CloseSide() != Buy {
		t.Fatalf("short sides wrong")
	}
}

func TestRetcodeString(t *testing.T) {
	if RetcodeDone.String() != "done" {
		t.Fatalf("unexpected %s", RetcodeDone)
	}
	if Retcode(12345).String() != "retcode_12345" {
		t.Fatalf("unexpected %s", Retcode(12345))
	}
	if !(OrderResult{Retcode: RetcodeDone}).OK() || (OrderResult{Retcode: RetcodeRequote}).OK() {
		t.Fatalf("only done is ok")
	}
}
