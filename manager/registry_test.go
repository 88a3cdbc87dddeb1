package manager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func emptyRecord() (*record, error) { return &record{}, nil }

func TestRegistryInsertRemove(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(0)

	if err := r.insert(ctx, "COM1", emptyRecord); err != nil {
		t.Fatalf("insert() failed: %v", err)
	}
	created := false
	err := r.insert(ctx, "COM1", func() (*record, error) {
		created = true
		return &record{}, nil
	})
	if !errors.Is(err, ErrAlreadyOpen) {
		t.Errorf("duplicate insert() error = %v, want ErrAlreadyOpen", err)
	}
	if created {
		t.Error("insert() built a record for an id already present")
	}

	openErr := errors.New("permission denied")
	if err := r.insert(ctx, "COM3", func() (*record, error) { return nil, openErr }); !errors.Is(err, openErr) {
		t.Errorf("insert() with failing create error = %v, want %v", err, openErr)
	}
	if keys, _ := r.keys(ctx); len(keys) != 1 {
		t.Errorf("keys() = %v after failed insert, want only COM1", keys)
	}

	if _, err := r.remove(ctx, "COM2"); !errors.Is(err, ErrNotFound) {
		t.Errorf("remove(COM2) error = %v, want ErrNotFound", err)
	}
	rec, err := r.remove(ctx, "COM1")
	if err != nil || rec == nil {
		t.Fatalf("remove(COM1) = %v, %v", rec, err)
	}
	if err := r.with(ctx, "COM1", func(*record) error { return nil }); !errors.Is(err, ErrNotFound) {
		t.Errorf("with() after remove error = %v, want ErrNotFound", err)
	}
}

func TestRegistryWithReturnsCallbackError(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(0)
	if err := r.insert(ctx, "COM1", emptyRecord); err != nil {
		t.Fatalf("insert() failed: %v", err)
	}

	want := errors.New("device busy")
	if err := r.with(ctx, "COM1", func(*record) error { return want }); !errors.Is(err, want) {
		t.Errorf("with() error = %v, want %v", err, want)
	}
}

func TestRegistryKeysAndDrain(t *testing.T) {
	ctx := context.Background()
	r := newRegistry(0)
	for _, id := range []string{"COM2", "COM10", "/dev/ttyS0"} {
		if err := r.insert(ctx, id, emptyRecord); err != nil {
			t.Fatalf("insert(%s) failed: %v", id, err)
		}
	}

	keys, err := r.keys(ctx)
	if err != nil {
		t.Fatalf("keys() failed: %v", err)
	}
	want := []string{"/dev/ttyS0", "COM10", "COM2"}
	if diff := cmp.Diff(want, keys); diff != "" {
		t.Errorf("keys() mismatch (-want +got):\n%s", diff)
	}

	entries, err := r.drain(ctx)
	if err != nil {
		t.Fatalf("drain() failed: %v", err)
	}
	var drained []string
	for _, e := range entries {
		drained = append(drained, e.id)
	}
	if diff := cmp.Diff(want, drained); diff != "" {
		t.Errorf("drain() order mismatch (-want +got):\n%s", diff)
	}
	if keys, _ := r.keys(ctx); len(keys) != 0 {
		t.Errorf("keys() after drain() = %v, want none", keys)
	}
}

func TestRegistryLockTimeout(t *testing.T) {
	r := newRegistry(30 * time.Millisecond)
	if err := r.lock(context.Background()); err != nil {
		t.Fatalf("lock() failed: %v", err)
	}

	start := time.Now()
	err := r.insert(context.Background(), "COM1", emptyRecord)
	if !errors.Is(err, ErrLockFailure) {
		t.Errorf("insert() with held lock error = %v, want ErrLockFailure", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("lock wait took %v, want about 30ms", elapsed)
	}

	r.unlock()
	if err := r.insert(context.Background(), "COM1", emptyRecord); err != nil {
		t.Errorf("insert() after unlock error = %v", err)
	}
}

func TestRegistryLockWaitsForRelease(t *testing.T) {
	r := newRegistry(0)
	if err := r.lock(context.Background()); err != nil {
		t.Fatalf("lock() failed: %v", err)
	}
	go func() {
		time.Sleep(20 * time.Millisecond)
		r.unlock()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := r.keys(ctx); err != nil {
		t.Errorf("keys() after release error = %v", err)
	}
}
