package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"aiclock/logging"
)

func TestAsyncWriter_Write(t *testing.T) {
	var mu sync.Mutex
	var got []string

	writer := NewAsyncWriter(func(_ context.Context, rec Record) error {
		mu.Lock()
		got = append(got, rec.CorrelationID)
		mu.Unlock()
		return nil
	}, 0, nil)
	writer.Start()

	for _, id := range []string{"first", "second", "third"} {
		if !writer.Write(Record{CorrelationID: id}) {
			t.Errorf("Write(%s) returned false, expected true", id)
		}
	}

	if !writer.Stop(time.Second) {
		t.Fatal("Stop() timed out")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 3 || got[0] != "first" || got[2] != "third" {
		t.Errorf("handled = %v, want [first second third]", got)
	}
}

func TestAsyncWriter_StopDrainsBuffer(t *testing.T) {
	var handled atomic.Int64
	release := make(chan struct{})

	writer := NewAsyncWriter(func(_ context.Context, rec Record) error {
		if rec.CorrelationID == "gate" {
			<-release
		}
		handled.Add(1)
		return nil
	}, 10, nil)
	writer.Start()

	writer.Write(Record{CorrelationID: "gate"})
	for i := 0; i < 5; i++ {
		writer.Write(Record{CorrelationID: "queued"})
	}

	stopped := make(chan bool)
	go func() { stopped <- writer.Stop(2 * time.Second) }()
	close(release)

	if !<-stopped {
		t.Fatal("Stop() timed out")
	}
	if n := handled.Load(); n != 6 {
		t.Errorf("handled = %d, want 6", n)
	}
}

func TestAsyncWriter_FullBufferDrops(t *testing.T) {
	writer := NewAsyncWriter(func(context.Context, Record) error { return nil }, 2, nil)

	// Not started, so nothing consumes the buffer.
	if !writer.Write(Record{}) || !writer.Write(Record{}) {
		t.Fatal("Write() into empty buffer returned false")
	}
	if writer.Write(Record{}) {
		t.Error("Write() into full buffer returned true")
	}
	if writer.Pending() != 2 {
		t.Errorf("Pending() = %d, want 2", writer.Pending())
	}
	if writer.Dropped() != 1 {
		t.Errorf("Dropped() = %d, want 1", writer.Dropped())
	}
}

func TestAsyncWriter_WriteAfterStop(t *testing.T) {
	writer := NewAsyncWriter(func(context.Context, Record) error { return nil }, 0, nil)
	writer.Start()
	writer.Stop(time.Second)

	if writer.Write(Record{}) {
		t.Error("Write() after Stop returned true")
	}
	writer.Start()
	if !writer.IsStarted() {
		t.Error("IsStarted() = false after the first Start")
	}
}

func TestAsyncWriter_HandlerErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	writer := NewAsyncWriter(func(context.Context, Record) error {
		return errors.New("disk full")
	}, 0, logging.NewFromZap(zap.New(core)))
	writer.Start()

	writer.Write(Record{CorrelationID: "corr-1", Outcome: "success"})
	writer.Stop(time.Second)

	if writer.Failed() != 1 {
		t.Errorf("Failed() = %d, want 1", writer.Failed())
	}
	entries := logs.FilterMessage("failed to persist generation record").All()
	if len(entries) != 1 {
		t.Fatalf("got %d warning entries, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["correlation_id"]; got != "corr-1" {
		t.Errorf("correlation_id field = %v, want corr-1", got)
	}
}
