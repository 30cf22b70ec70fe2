// Copyright 2024 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package compose

import (
	"sort"
	"sync"

	"github.com/canonical/sqlstore/expr"
)

// DefaultPriority is the priority of the built-in resolvers.
const DefaultPriority = 0

// Resolver turns expressions of kind Input into expressions of kind Output.
// Resolve returns false, and no error, when it does not handle the given
// expression; the next candidate is then tried.
type Resolver interface {
	Input() expr.Kind
	Output() expr.Kind
	Priority() int
	Resolve(ctx *Context, e expr.Expression) (expr.Expression, bool, error)
}

// ResolveFunc is the signature of a resolver function.
type ResolveFunc func(ctx *Context, e expr.Expression) (expr.Expression, bool, error)

type resolver struct {
	input    expr.Kind
	output   expr.Kind
	priority int
	resolve  ResolveFunc
}

func (r *resolver) Input() expr.Kind {
	return r.input
}

func (r *resolver) Output() expr.Kind {
	return r.output
}

func (r *resolver) Priority() int {
	return r.priority
}

func (r *resolver) Resolve(ctx *Context, e expr.Expression) (expr.Expression, bool, error) {
	return r.resolve(ctx, e)
}

// NewResolver returns a resolver from input to output kinds.
func NewResolver(input, output expr.Kind, priority int, fn ResolveFunc) Resolver {
	return &resolver{input: input, output: output, priority: priority, resolve: fn}
}

// Typed returns a resolver for expressions of Go type E. Expressions of the
// input kind that are not an E are skipped.
func Typed[E expr.Expression, R expr.Expression](input, output expr.Kind, priority int, fn func(ctx *Context, e E) (R, bool, error)) Resolver {
	return NewResolver(input, output, priority, func(ctx *Context, e expr.Expression) (expr.Expression, bool, error) {
		typed, ok := e.(E)
		if !ok {
			return nil, false, nil
		}
		r, ok, err := fn(ctx, typed)
		if err != nil || !ok {
			return nil, false, err
		}
		return r, true, nil
	})
}

// Registry is an ordered set of resolvers.
//
// Resolvers are expected to be registered at startup. A Registry is safe for
// concurrent resolution but registering while operations are running must be
// synchronized by the caller.
type Registry struct {
	resolvers []Resolver
}

// NewRegistry returns a registry holding rs, in order.
func NewRegistry(rs ...Resolver) *Registry {
	r := &Registry{}
	r.Register(rs...)
	return r
}

// Register appends resolvers to the registry.
func (r *Registry) Register(rs ...Resolver) {
	for _, res := range rs {
		if res != nil {
			r.resolvers = append(r.resolvers, res)
		}
	}
}

// Len returns the number of registered resolvers.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.resolvers)
}

// candidates returns the resolvers accepting kind in and producing a kind
// assignable to out, highest priority first, then in registration order.
func (r *Registry) candidates(in, out expr.Kind) []Resolver {
	if r == nil {
		return nil
	}
	var cs []Resolver
	for _, res := range r.resolvers {
		if in.AssignableTo(res.Input()) && res.Output().AssignableTo(out) {
			cs = append(cs, res)
		}
	}
	sort.SliceStable(cs, func(i, j int) bool {
		return cs[i].Priority() > cs[j].Priority()
	})
	return cs
}

// ResolverProvider is implemented by dialects contributing their own
// resolvers.
type ResolverProvider interface {
	Resolvers() []Resolver
}

// DialectResolvers returns the registry of resolvers contributed by d, or
// nil if it contributes none.
func DialectResolvers(d any) *Registry {
	p, ok := d.(ResolverProvider)
	if !ok {
		return nil
	}
	return NewRegistry(p.Resolvers()...)
}

// Builtins returns the registry of built-in resolvers, which every context
// falls back to.
var Builtins = sync.OnceValue(func() *Registry {
	return NewRegistry(builtinResolvers()...)
})
