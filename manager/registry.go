package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	serial "github.com/allbin/go-serialhost"
)

// record is the state kept for one open port. A non-nil listener carries
// both its cancel channel and its join handle. Listeners cancelled without
// a join wait in retired until the next start or close joins them.
type record struct {
	port     serial.Port
	listener *listener
	retired  []*listener
	stats    *portStats
}

// takeListener detaches the active listener, if any
func (r *record) takeListener() *listener {
	l := r.listener
	r.listener = nil
	return l
}

// joinRetired waits for every cancelled listener and forgets them
func (r *record) joinRetired() error {
	var errs []error
	for _, l := range r.retired {
		if err := l.join(); err != nil {
			errs = append(errs, err)
		}
	}
	r.retired = nil
	return errors.Join(errs...)
}

// registry maps port identifiers to records under a single lock. The lock is
// a one-slot channel so waiting can be abandoned on context or timeout.
type registry struct {
	sem         chan struct{}
	ports       map[string]*record
	lockTimeout time.Duration
}

func newRegistry(lockTimeout time.Duration) *registry {
	return &registry{
		sem:         make(chan struct{}, 1),
		ports:       make(map[string]*record),
		lockTimeout: lockTimeout,
	}
}

func (r *registry) lock(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	default:
	}

	var expired <-chan time.Time
	if r.lockTimeout > 0 {
		timer := time.NewTimer(r.lockTimeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrLockFailure, ctx.Err())
	case <-expired:
		return fmt.Errorf("%w: waited %s", ErrLockFailure, r.lockTimeout)
	}
}

func (r *registry) unlock() { <-r.sem }

// do runs fn with the registry locked
func (r *registry) do(ctx context.Context, fn func(ports map[string]*record) error) error {
	if err := r.lock(ctx); err != nil {
		return err
	}
	defer r.unlock()
	return fn(r.ports)
}

// insert registers the record built by create. create runs under the lock
// and only when id is absent.
func (r *registry) insert(ctx context.Context, id string, create func() (*record, error)) error {
	return r.do(ctx, func(ports map[string]*record) error {
		if _, ok := ports[id]; ok {
			return ErrAlreadyOpen
		}
		rec, err := create()
		if err != nil {
			return err
		}
		ports[id] = rec
		return nil
	})
}

func (r *registry) remove(ctx context.Context, id string) (*record, error) {
	var rec *record
	err := r.do(ctx, func(ports map[string]*record) error {
		var ok bool
		if rec, ok = ports[id]; !ok {
			return ErrNotFound
		}
		delete(ports, id)
		return nil
	})
	return rec, err
}

// with runs fn against the record for id while holding the lock
func (r *registry) with(ctx context.Context, id string, fn func(rec *record) error) error {
	return r.do(ctx, func(ports map[string]*record) error {
		rec, ok := ports[id]
		if !ok {
			return ErrNotFound
		}
		return fn(rec)
	})
}

func (r *registry) keys(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.do(ctx, func(ports map[string]*record) error {
		ids = make([]string, 0, len(ports))
		for id := range ports {
			ids = append(ids, id)
		}
		return nil
	})
	sort.Strings(ids)
	return ids, err
}

type entry struct {
	id  string
	rec *record
}

// drain empties the registry and returns its records ordered by id
func (r *registry) drain(ctx context.Context) ([]entry, error) {
	var entries []entry
	err := r.do(ctx, func(ports map[string]*record) error {
		entries = make([]entry, 0, len(ports))
		for id, rec := range ports {
			entries = append(entries, entry{id: id, rec: rec})
		}
		clear(ports)
		return nil
	})
	sort.Slice(entries, func(i, j int) bool { return entries[i].id < entries[j].id })
	return entries, err
}
