package hooks

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// ErrUnavailable is the sentinel a Factory returns to mean "no value for
// this slot" — the handler it would have fed is silently skipped, not
// treated as an error.
var ErrUnavailable = errors.New("hooks: dependency unavailable")

// ErrDependsCycle reports a Factory that (directly or transitively)
// declares itself as one of its own parameters.
var ErrDependsCycle = errors.New("hooks: dependency cycle detected")

// FactoryFunc produces a value for a dependency slot. It may return
// ErrUnavailable to skip the handler without error, or any other error to
// contribute to the resolution's aggregate failure.
type FactoryFunc func(ctx context.Context, ev Event) (any, error)

// Factory is a named, possibly-parameterized dependency. A Factory's own
// Params are resolved (recursively, in parallel) before Fn is called; an
// unavailable one skips the factory and an error fails it, but the
// resolved values are not passed to Fn. A Factory may not appear as one of
// its own (transitive) Params; see ErrDependsCycle.
type Factory struct {
	id     string
	Fn     FactoryFunc
	Params []ParamBinding
}

// NewFactory wraps fn as a dependency factory usable with Depends.
func NewFactory(fn FactoryFunc, params ...ParamBinding) *Factory {
	return &Factory{id: uuid.New().String(), Fn: fn, Params: params}
}

// source identifies how a handler parameter slot is resolved.
type source int

const (
	sourceDep source = iota
	sourceKwarg
	sourceArgByType
)

// ParamBinding declares how one handler (or factory) parameter slot is
// resolved. Build one with Depends, Kwarg, or ArgByType.
type ParamBinding struct {
	Name    string
	Type    reflect.Type
	src     source
	factory *Factory
}

// Depends declares that a parameter slot is filled by invoking f
// (concurrently with sibling Depends slots on the same handler/factory).
func Depends(f *Factory) ParamBinding {
	return ParamBinding{src: sourceDep, factory: f}
}

// Kwarg declares that a parameter slot is filled from the caller-supplied
// hook_kwargs map under name. If the supplied value is itself a *Factory,
// it is resolved as a dependency.
func Kwarg(name string) ParamBinding {
	return ParamBinding{Name: name, src: sourceKwarg}
}

// ArgByType declares that a parameter slot is filled by the first
// caller-supplied positional hook_args element assignable to typ.
func ArgByType(typ reflect.Type) ParamBinding {
	return ParamBinding{Type: typ, src: sourceArgByType}
}

// resolveCtx carries per-dispatch state: the context, the event, and the
// caller-supplied args/kwargs. The set of factory IDs currently being
// resolved, for cycle detection, travels separately as the visiting map.
type resolveCtx struct {
	ctx      context.Context
	event    Event
	hookArgs []any
	hookKw   map[string]any
}

// resolveParam resolves a single ParamBinding. ok=false (err=nil) means the
// handler should be silently skipped (ErrUnavailable or "no binding
// found"). visiting tracks the in-flight factory ID chain for cycle
// detection.
func resolveParam(rc *resolveCtx, b ParamBinding, visiting map[string]bool) (any, bool, error) {
	switch b.src {
	case sourceDep:
		return resolveFactory(rc, b.factory, visiting)
	case sourceKwarg:
		v, present := rc.hookKw[b.Name]
		if !present {
			return nil, false, nil
		}
		if f, isFactory := v.(*Factory); isFactory {
			return resolveFactory(rc, f, visiting)
		}
		return v, true, nil
	case sourceArgByType:
		for _, v := range rc.hookArgs {
			if f, isFactory := v.(*Factory); isFactory {
				val, ok, err := resolveFactory(rc, f, visiting)
				if err != nil || !ok {
					continue
				}
				if b.Type == nil || reflect.TypeOf(val).AssignableTo(b.Type) {
					return val, true, nil
				}
				continue
			}
			if b.Type != nil && v != nil && reflect.TypeOf(v).AssignableTo(b.Type) {
				return v, true, nil
			}
		}
		return nil, false, nil
	default:
		return nil, false, nil
	}
}

func resolveFactory(rc *resolveCtx, f *Factory, visiting map[string]bool) (any, bool, error) {
	if f == nil {
		return nil, false, nil
	}
	if visiting[f.id] {
		return nil, false, fmt.Errorf("%w: factory %s", ErrDependsCycle, f.id)
	}
	visiting[f.id] = true
	defer delete(visiting, f.id)

	params, err := resolveAll(rc, f.Params, visiting)
	if err != nil {
		return nil, false, err
	}
	if params.skip {
		return nil, false, nil
	}

	val, err := f.Fn(rc.ctx, rc.event)
	if err != nil {
		if errors.Is(err, ErrUnavailable) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return val, true, nil
}

// resolvedSet is the outcome of resolving a slice of ParamBindings in
// parallel: either a positional value list, or a signal to skip (any slot
// unavailable) or an aggregate error (any slot errored).
type resolvedSet struct {
	values []any
	skip   bool
}

// resolveAll resolves every binding in params concurrently (one goroutine
// per slot), matching §4.4 rule 4 ("all dependency factories are resolved
// in parallel").
func resolveAll(rc *resolveCtx, params []ParamBinding, visiting map[string]bool) (resolvedSet, error) {
	if len(params) == 0 {
		return resolvedSet{}, nil
	}

	values := make([]any, len(params))
	oks := make([]bool, len(params))
	errs := make([]error, len(params))

	// Sibling slots resolve concurrently (§4.4 rule 4); errgroup just gives
	// us the goroutine-per-slot fan-out, not its first-error short-circuit,
	// since we need every slot's outcome to build the aggregate below.
	g, _ := errgroup.WithContext(rc.ctx)
	for i, b := range params {
		idx, binding := i, b
		g.Go(func() error {
			// Each goroutine gets its own visiting copy so sibling
			// branches of the dependency graph don't falsely collide.
			localVisiting := make(map[string]bool, len(visiting))
			for k := range visiting {
				localVisiting[k] = true
			}
			v, ok, err := resolveParam(rc, binding, localVisiting)
			values[idx] = v
			oks[idx] = ok
			errs[idx] = err
			return nil
		})
	}
	_ = g.Wait()

	var aggregate error
	for _, err := range errs {
		if err != nil {
			aggregate = errors.Join(aggregate, err)
		}
	}
	if aggregate != nil {
		return resolvedSet{}, aggregate
	}
	for _, ok := range oks {
		if !ok {
			return resolvedSet{skip: true}, nil
		}
	}
	return resolvedSet{values: values}, nil
}
