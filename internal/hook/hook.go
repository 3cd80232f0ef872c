// Package hook provides named, staged callback points for the build pipeline.
//
// A hook holds an ordered list of taps. Plugins register taps while the
// compiler is being set up; the pipeline calls the hook when it reaches the
// matching stage. Taps run in registration order.
package hook

import (
	"context"

	"golang.org/x/sync/errgroup"
)

type tap[F any] struct {
	name string
	fn   F
}

type taps[F any] struct {
	list []tap[F]
}

func (t *taps[F]) add(name string, fn F) {
	t.list = append(t.list, tap[F]{name: name, fn: fn})
}

// Taps returns the names of the registered taps in registration order.
func (t *taps[F]) Taps() []string {
	names := make([]string, len(t.list))
	for i, tp := range t.list {
		names[i] = tp.name
	}
	return names
}

// SyncHook calls every tap with the same argument. The first error stops
// the call and is returned.
type SyncHook[T any] struct {
	taps[func(T) error]
}

// Tap registers fn under name.
func (h *SyncHook[T]) Tap(name string, fn func(T) error) {
	h.add(name, fn)
}

// Call runs the taps in order.
func (h *SyncHook[T]) Call(arg T) error {
	for _, tp := range h.list {
		if err := tp.fn(arg); err != nil {
			return &TapError{Tap: tp.name, Err: err}
		}
	}
	return nil
}

// SyncBailHook calls taps in order until one of them reports ok. The value
// of that tap is returned and the remaining taps are skipped.
type SyncBailHook[T, R any] struct {
	taps[func(T) (R, bool, error)]
}

// Tap registers fn under name.
func (h *SyncBailHook[T, R]) Tap(name string, fn func(T) (R, bool, error)) {
	h.add(name, fn)
}

// Call runs the taps in order. ok is false when no tap produced a value.
func (h *SyncBailHook[T, R]) Call(arg T) (result R, ok bool, err error) {
	for _, tp := range h.list {
		r, ok, err := tp.fn(arg)
		if err != nil {
			return result, false, &TapError{Tap: tp.name, Err: err}
		}
		if ok {
			return r, true, nil
		}
	}
	return result, false, nil
}

// SyncWaterfallHook threads a value through its taps. Each tap receives the
// value returned by the previous one together with a fixed extra argument.
type SyncWaterfallHook[T, A any] struct {
	taps[func(T, A) T]
}

// Tap registers fn under name.
func (h *SyncWaterfallHook[T, A]) Tap(name string, fn func(T, A) T) {
	h.add(name, fn)
}

// Call returns the value produced by the last tap, or v if there are none.
func (h *SyncWaterfallHook[T, A]) Call(v T, extra A) T {
	for _, tp := range h.list {
		v = tp.fn(v, extra)
	}
	return v
}

// AsyncSeriesHook calls taps one after another, each possibly blocking.
type AsyncSeriesHook[T any] struct {
	taps[func(context.Context, T) error]
}

// Tap registers fn under name.
func (h *AsyncSeriesHook[T]) Tap(name string, fn func(context.Context, T) error) {
	h.add(name, fn)
}

// Call runs the taps in order and stops at the first error or when ctx is
// done.
func (h *AsyncSeriesHook[T]) Call(ctx context.Context, arg T) error {
	for _, tp := range h.list {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := tp.fn(ctx, arg); err != nil {
			return &TapError{Tap: tp.name, Err: err}
		}
	}
	return nil
}

// AsyncParallelHook calls all taps concurrently and waits for them.
type AsyncParallelHook[T any] struct {
	taps[func(context.Context, T) error]
}

// Tap registers fn under name.
func (h *AsyncParallelHook[T]) Tap(name string, fn func(context.Context, T) error) {
	h.add(name, fn)
}

// Call starts every tap and returns the first error. The context passed to
// the taps is cancelled once any of them fails.
func (h *AsyncParallelHook[T]) Call(ctx context.Context, arg T) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, tp := range h.list {
		g.Go(func() error {
			if err := tp.fn(ctx, arg); err != nil {
				return &TapError{Tap: tp.name, Err: err}
			}
			return nil
		})
	}
	return g.Wait()
}

// TapError records which tap failed.
type TapError struct {
	Tap string
	Err error
}

func (e *TapError) Error() string {
	return e.Tap + ": " + e.Err.Error()
}

func (e *TapError) Unwrap() error {
	return e.Err
}
