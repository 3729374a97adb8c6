// Package udf provides the explicit function registry the expression
// compiler resolves calls against.
//
// Resolution happens once, at compile time: each call site gets its own
// Function instance from Descriptor.New, and that instance is bound into the
// compiled expression and shared by every evaluation afterwards, potentially
// from many goroutines at once. Built-in functions are stateless. A
// registered function with internal mutable state is not re-entrant and
// must say so in its Description.
package udf

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/streamsql/internal/schema"
)

// Function is one call-site instance of a registered function.
type Function interface {
	// Name returns the registered function name.
	Name() string

	// Evaluate computes the result. Arguments arrive already evaluated, in
	// call order, in their runtime representations.
	Evaluate(args ...any) (any, error)
}

// Descriptor describes a registered function.
type Descriptor struct {
	// Name is the upper-case function name.
	Name string

	// Description is shown by tooling.
	Description string

	// ReturnType infers the result type from the static argument types,
	// failing on a bad arity or argument type.
	ReturnType func(args []schema.Type) (schema.Type, error)

	// New creates the instance for one call site.
	New func() Function

	// CallOnNull means the function receives NULL arguments. Otherwise any
	// NULL argument yields NULL without calling it.
	CallOnNull bool
}

// Registry maps function names to descriptors.
//
// Thread-safety: Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]Descriptor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]Descriptor)}
}

// NewDefaultRegistry creates a registry holding the built-in functions.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	for _, d := range builtins() {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a function. Names are case-insensitive and must be unique.
func (r *Registry) Register(d Descriptor) error {
	name := strings.ToUpper(d.Name)
	if name == "" {
		return fmt.Errorf("register function: empty name")
	}
	if d.ReturnType == nil || d.New == nil {
		return fmt.Errorf("register function %s: ReturnType and New are required", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("register function %s: already registered", name)
	}
	d.Name = name
	r.funcs[name] = d
	return nil
}

// Lookup finds a function by case-insensitive name.
func (r *Registry) Lookup(name string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.funcs[strings.ToUpper(name)]
	return d, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for n := range r.funcs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// FuncOf adapts a plain Go function to Function.
func FuncOf(name string, fn func(args []any) (any, error)) Function {
	return &funcAdapter{name: name, fn: fn}
}

type funcAdapter struct {
	name string
	fn   func(args []any) (any, error)
}

func (f *funcAdapter) Name() string { return f.name }

func (f *funcAdapter) Evaluate(args ...any) (any, error) {
	return f.fn(args)
}

// Constructor returns a New func creating one instance of fn per call site.
func Constructor(name string, fn func(args []any) (any, error)) func() Function {
	return func() Function { return FuncOf(name, fn) }
}

// Signature builds a ReturnType for fixed-arity functions whose arguments
// must widen to the given parameter types.
func Signature(name string, ret schema.Type, params ...schema.Type) func([]schema.Type) (schema.Type, error) {
	return func(args []schema.Type) (schema.Type, error) {
		if len(args) != len(params) {
			return "", fmt.Errorf("%s expects %d argument(s), got %d", name, len(params), len(args))
		}
		for i, a := range args {
			if !schema.CanWiden(a, params[i]) {
				return "", fmt.Errorf("%s argument %d: expected %s, got %s", name, i+1, params[i], a)
			}
		}
		return ret, nil
	}
}
