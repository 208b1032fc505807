package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSwitchDelivery(t *testing.T) {
	sw := NewSwitch()
	a, err := sw.Listen("A")
	if err != nil {
		t.Fatal(err)
	}
	b, err := sw.Listen("B")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	defer b.Close()

	if err := a.Send("B", []byte("hi")); err != nil {
		t.Fatalf("send: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	from, got, ok := b.RecvFrom(ctx)
	if !ok || string(got) != "hi" || from != "A" {
		t.Fatalf("recv mismatch: ok=%v from=%q got=%q", ok, from, got)
	}
}

func TestSwitchDuplicateListen(t *testing.T) {
	sw := NewSwitch()
	if _, err := sw.Listen("A"); err != nil {
		t.Fatal(err)
	}
	if _, err := sw.Listen("A"); err == nil {
		t.Fatal("expected duplicate listen to fail")
	}
}

func TestSendToUnknown(t *testing.T) {
	sw := NewSwitch()
	a, err := sw.Listen("A")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Send("ghost", []byte("x")); err == nil {
		t.Fatal("expected error for unknown destination")
	}
}

func TestClosedEndpointUnreachable(t *testing.T) {
	sw := NewSwitch()
	a, _ := sw.Listen("A")
	b, _ := sw.Listen("B")
	b.Close()
	if err := a.Send("B", []byte("x")); err == nil {
		t.Fatal("expected send to closed endpoint to fail")
	}
}

func TestChaosLinkDown(t *testing.T) {
	sw := NewSwitch()
	a, _ := sw.Listen("A")
	b, _ := sw.Listen("B")
	defer b.Close()

	chaos := WrapChaos(a, ChaosConfig{Up: false, Seed: 1})
	defer chaos.Close()

	if err := chaos.Send("B", []byte("hi")); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled when link down, got %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if _, _, ok := b.RecvFrom(ctx); ok {
		t.Fatal("expected no frame when link down")
	}

	chaos.SetUp(true)
	if err := chaos.Send("B", []byte("hi")); err != nil {
		t.Fatalf("send after SetUp: %v", err)
	}
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	if _, got, ok := b.RecvFrom(ctx2); !ok || string(got) != "hi" {
		t.Fatalf("recv mismatch: ok=%v got=%q", ok, got)
	}
}

func TestChaosLossDropsEverything(t *testing.T) {
	sw := NewSwitch()
	a, _ := sw.Listen("A")
	b, _ := sw.Listen("B")
	defer b.Close()

	chaos := WrapChaos(a, ChaosConfig{Up: true, Loss: 1, Seed: 1})
	defer chaos.Close()

	for i := 0; i < 20; i++ {
		if err := chaos.Send("B", []byte("x")); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, _, ok := b.RecvFrom(ctx); ok {
		t.Fatal("expected total loss")
	}
}

func TestChaosDup(t *testing.T) {
	sw := NewSwitch()
	a, _ := sw.Listen("A")
	b, _ := sw.Listen("B")
	defer b.Close()

	chaos := WrapChaos(a, ChaosConfig{Up: true, Dup: 1, Seed: 1})
	defer chaos.Close()

	if err := chaos.Send("B", []byte("x")); err != nil {
		t.Fatalf("send: %v", err)
	}
	for i := 0; i < 2; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_, got, ok := b.RecvFrom(ctx)
		cancel()
		if !ok || string(got) != "x" {
			t.Fatalf("copy %d: ok=%v got=%q", i, ok, got)
		}
	}
}
