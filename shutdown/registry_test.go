package shutdown

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestShutdownRegistry_Order(t *testing.T) {
	r := NewShutdownRegistry()

	var order []string
	add := func(name string, priority int) {
		r.Register(name, priority, func(ctx context.Context) error {
			order = append(order, name)
			return nil
		})
	}
	add("c", 30)
	add("a1", 10)
	add("b", 20)
	add("a2", 10)

	wantNames := []string{"a1", "a2", "b", "c"}
	names := r.Names()
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Errorf("Names()[%d] = %s, want %s", i, names[i], wantNames[i])
		}
	}

	results := r.Shutdown(context.Background())
	if len(results) != 4 {
		t.Fatalf("Shutdown() returned %d results, want 4", len(results))
	}
	for i := range wantNames {
		if order[i] != wantNames[i] || results[i].Name != wantNames[i] {
			t.Errorf("step %d ran %s (result %s), want %s", i, order[i], results[i].Name, wantNames[i])
		}
	}
}

func TestShutdownRegistry_ErrorsAndPanics(t *testing.T) {
	r := NewShutdownRegistry()
	errClose := errors.New("close failed")

	r.Register("failing", 10, func(ctx context.Context) error { return errClose })
	r.Register("panicking", 20, func(ctx context.Context) error { panic("boom") })
	r.Register("ok", 30, func(ctx context.Context) error { return nil })

	results := r.Shutdown(context.Background())
	if len(results) != 3 {
		t.Fatalf("Shutdown() returned %d results, want 3", len(results))
	}
	if !errors.Is(results[0].Err, errClose) || !strings.HasPrefix(results[0].Err.Error(), "failing: ") {
		t.Errorf("failing result = %v", results[0].Err)
	}
	if results[1].Err == nil || !strings.Contains(results[1].Err.Error(), "panic: boom") {
		t.Errorf("panicking result = %v", results[1].Err)
	}
	if results[2].Err != nil {
		t.Errorf("ok result = %v", results[2].Err)
	}
}

func TestShutdownRegistry_Closed(t *testing.T) {
	r := NewShutdownRegistry()
	r.Register("first", 10, func(ctx context.Context) error { return nil })

	r.Shutdown(context.Background())
	if !r.IsClosed() {
		t.Error("IsClosed() = false after Shutdown")
	}

	r.Register("late", 10, func(ctx context.Context) error { return nil })
	if r.Count() != 1 {
		t.Errorf("Count() = %d, registration after Shutdown should be ignored", r.Count())
	}
	if results := r.Shutdown(context.Background()); results != nil {
		t.Errorf("second Shutdown() = %v, want nil", results)
	}
}
