package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCloser struct {
	closed bool
	err    error
}

func (f *fakeCloser) Close() error {
	f.closed = true
	return f.err
}

func TestManager_ShutdownLIFO(t *testing.T) {
	m := New(time.Second)

	var order []string
	m.Register(func(ctx context.Context) error {
		order = append(order, "first")
		return nil
	})
	m.Register(func(ctx context.Context) error {
		order = append(order, "second")
		return nil
	})

	m.Shutdown()

	if len(order) != 2 || order[0] != "second" || order[1] != "first" {
		t.Errorf("Expected LIFO order [second first], got %v", order)
	}
}

func TestCloseResource(t *testing.T) {
	closer := &fakeCloser{}
	fn := CloseResource(closer, "store")

	if err := fn(context.Background()); err != nil {
		t.Fatalf("Expected clean close, got %v", err)
	}
	if !closer.closed {
		t.Error("Close was not called")
	}

	failing := &fakeCloser{err: errors.New("disk gone")}
	if err := CloseResource(failing, "store")(context.Background()); err == nil {
		t.Error("Expected close error to propagate")
	}
}
