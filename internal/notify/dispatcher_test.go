package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, ev Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Event(nil), p.events...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDispatcher_DeliversToEveryPublisher(t *testing.T) {
	failing := &recordingPublisher{err: errors.New("redis down")}
	ok := &recordingPublisher{}
	d := NewDispatcher(nil, 8, time.Second, failing, ok)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	at := time.Now()
	for _, to := range []string{"OPEN", "HALF_OPEN", "CLOSED"} {
		if err := d.Enqueue(CircuitEvent("a", "X", to, at)); err != nil {
			t.Fatalf("Enqueue() error = %v", err)
		}
	}

	waitFor(t, func() bool { return len(ok.Events()) == 3 })
	cancel()
	<-done

	if got := len(failing.Events()); got != 3 {
		t.Errorf("failing publisher saw %d events, want 3", got)
	}
	for i, want := range []string{"OPEN", "HALF_OPEN", "CLOSED"} {
		change := ok.Events()[i].Data.(CircuitChange)
		if change.To != want {
			t.Errorf("event %d to = %s, want %s (order preserved)", i, change.To, want)
		}
	}
}

func TestDispatcher_EnqueueNeverBlocks(t *testing.T) {
	d := NewDispatcher(nil, 2, time.Second, &recordingPublisher{})

	ev := CircuitEvent("a", "CLOSED", "OPEN", time.Now())
	if err := d.Enqueue(ev); err != nil {
		t.Fatalf("first Enqueue() error = %v", err)
	}
	if err := d.Enqueue(ev); err != nil {
		t.Fatalf("second Enqueue() error = %v", err)
	}
	if err := d.Enqueue(ev); !errors.Is(err, ErrQueueFull) {
		t.Errorf("third Enqueue() error = %v, want ErrQueueFull", err)
	}
}

func TestDispatcher_NoPublishers(t *testing.T) {
	var nilDispatcher *Dispatcher
	if err := nilDispatcher.Enqueue(Event{}); err != nil {
		t.Errorf("nil dispatcher Enqueue() error = %v", err)
	}

	d := NewDispatcher(nil, 1, time.Second)
	for i := 0; i < 3; i++ {
		if err := d.Enqueue(Event{}); err != nil {
			t.Errorf("Enqueue() without publishers error = %v", err)
		}
	}
}
