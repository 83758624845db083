package hooks

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeTurn struct{ id string }

func (f *fakeTurn) SessionID() string                { return f.id }
func (f *fakeTurn) StreamID() string                 { return "stream-" + f.id }
func (f *fakeTurn) YieldResponse(chunk string) error { return nil }

func TestDispatchOrderIsRegistrationOrder(t *testing.T) {
	r := NewRegistry(nil)
	var order []int

	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		order = append(order, 1)
		return nil
	}, "first")
	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		order = append(order, 2)
		return nil
	}, "second")
	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		order = append(order, 3)
		return nil
	}, "third")

	ev := &CompletionEvent{}
	require.NoError(t, r.Dispatch(context.Background(), ev, DispatchOptions{}))
	require.Equal(t, []int{1, 2, 3}, order)
}

func TestDependencyFactoryUnavailableSkipsHandler(t *testing.T) {
	r := NewRegistry(nil)
	called := false

	unavailable := NewFactory(func(ctx context.Context, ev Event) (any, error) {
		return nil, ErrUnavailable
	})

	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		called = true
		return nil
	}, "needs-dep", Depends(unavailable))

	require.NoError(t, r.Dispatch(context.Background(), &CompletionEvent{}, DispatchOptions{}))
	require.False(t, called, "handler must be skipped when a dependency is unavailable")
}

func TestDependencyFactoriesResolveConcurrently(t *testing.T) {
	r := NewRegistry(nil)

	var inFlight int32
	var maxInFlight int32
	slow := func(ctx context.Context, ev Event) (any, error) {
		n := atomic.AddInt32(&inFlight, 1)
		defer atomic.AddInt32(&inFlight, -1)
		for {
			cur := atomic.LoadInt32(&maxInFlight)
			if n <= cur || atomic.CompareAndSwapInt32(&maxInFlight, cur, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		return "v", nil
	}

	var got []any
	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		got = params
		return nil
	}, "three-deps",
		Depends(NewFactory(slow)),
		Depends(NewFactory(slow)),
		Depends(NewFactory(slow)),
	)

	start := time.Now()
	require.NoError(t, r.Dispatch(context.Background(), &CompletionEvent{}, DispatchOptions{}))
	elapsed := time.Since(start)

	require.Len(t, got, 3)
	require.Greater(t, int(atomic.LoadInt32(&maxInFlight)), 1, "expected concurrent resolution")
	require.Less(t, elapsed, 60*time.Millisecond, "sequential resolution would take ~60ms")
}

func TestArgByTypeBindsPositionalHookArg(t *testing.T) {
	r := NewRegistry(nil)
	type marker struct{ V string }

	var got marker
	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		got = params[0].(marker)
		return nil
	}, "by-type", ArgByType(reflect.TypeOf(marker{})))

	opts := DispatchOptions{HookArgs: []any{marker{V: "hi"}}}
	require.NoError(t, r.Dispatch(context.Background(), &CompletionEvent{}, opts))
	require.Equal(t, "hi", got.V)
}

func TestArgByTypeSkipsWhenNoMatch(t *testing.T) {
	r := NewRegistry(nil)
	type marker struct{}
	called := false
	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		called = true
		return nil
	}, "by-type", ArgByType(reflect.TypeOf(marker{})))

	require.NoError(t, r.Dispatch(context.Background(), &CompletionEvent{}, DispatchOptions{}))
	require.False(t, called)
}

func TestKwargUnwrapsNestedFactory(t *testing.T) {
	r := NewRegistry(nil)
	f := NewFactory(func(ctx context.Context, ev Event) (any, error) { return 42, nil })

	var got any
	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		got = params[0]
		return nil
	}, "kwarg-factory", Kwarg("x"))

	opts := DispatchOptions{HookKwargs: map[string]any{"x": f}}
	require.NoError(t, r.Dispatch(context.Background(), &CompletionEvent{}, opts))
	require.Equal(t, 42, got)
}

func TestDependsCycleIsDetected(t *testing.T) {
	r := NewRegistry(nil)

	var self *Factory
	self = NewFactory(func(ctx context.Context, ev Event) (any, error) {
		return "never", nil
	})
	self.Params = []ParamBinding{Depends(self)}

	errIgnored := errors.New("nonmatching")
	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		t.Fatal("handler should never run")
		return nil
	}, "cyclic", Depends(self))

	err := r.Dispatch(context.Background(), &CompletionEvent{}, DispatchOptions{ExceptionIgnored: []error{errIgnored}})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrDependsCycle)
}

func TestIgnoredExceptionIsReraisedImmediately(t *testing.T) {
	r := NewRegistry(nil)
	sentinel := errors.New("boom")

	factory := NewFactory(func(ctx context.Context, ev Event) (any, error) {
		return nil, sentinel
	})

	calledSecond := false
	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		return nil
	}, "first", Depends(factory))
	r.On(KindCompletion, func(ctx context.Context, ev Event, params []any) error {
		calledSecond = true
		return nil
	}, "second")

	err := r.Dispatch(context.Background(), &CompletionEvent{}, DispatchOptions{ExceptionIgnored: []error{sentinel}})
	require.ErrorIs(t, err, sentinel)
	require.False(t, calledSecond, "dispatch must stop at the re-raised exception")
}
