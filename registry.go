package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/gobwas/glob"
	"github.com/qri-io/jsonschema"
)

// Capability is a named unit of work reachable through a method name.
//
// Execute receives the raw params value of the call (JSON null when absent) and returns the raw
// result value. Implementations should honor ctx cancellation. Returning an error built with
// InvalidParamsError or NotFoundError selects the matching wire code; any other error is reported
// as a tool execution error.
type Capability interface {
	Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
}

// CapabilityFunc adapts an ordinary function to Capability.
type CapabilityFunc func(ctx context.Context, params json.RawMessage) (json.RawMessage, error)

// Registry maps method names to capabilities. A built Registry is read-only and may be shared by
// any number of dispatchers.
type Registry struct {
	capabilities map[string]Capability
}

// RegistryBuilder accumulates capabilities for a Registry.
type RegistryBuilder struct {
	capabilities map[string]Capability
	patterns     []string
	errs         []error
}

type schemaCapability struct {
	schema *jsonschema.Schema
	next   Capability
}

type typedCapability[I, O any] struct {
	fn func(ctx context.Context, params I) (O, error)
}

// Execute implements Capability.
func (f CapabilityFunc) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	return f(ctx, params)
}

// NewRegistryBuilder returns an empty RegistryBuilder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{capabilities: make(map[string]Capability)}
}

// Register adds c under name. A later registration under the same name replaces the earlier one.
func (b *RegistryBuilder) Register(name string, c Capability) *RegistryBuilder {
	switch {
	case name == "":
		b.errs = append(b.errs, errors.New("capability name must not be empty"))
	case strings.HasPrefix(name, reservedMethodPrefix):
		b.errs = append(b.errs, fmt.Errorf("capability name %q uses the reserved prefix %q", name, reservedMethodPrefix))
	case c == nil:
		b.errs = append(b.errs, fmt.Errorf("capability %q is nil", name))
	default:
		b.capabilities[name] = c
	}
	return b
}

// RegisterFunc adds fn under name.
func (b *RegistryBuilder) RegisterFunc(
	name string,
	fn func(ctx context.Context, params json.RawMessage) (json.RawMessage, error),
) *RegistryBuilder {
	if fn == nil {
		return b.Register(name, nil)
	}
	return b.Register(name, CapabilityFunc(fn))
}

// Expose restricts the built Registry to capabilities whose name matches at least one of the glob
// patterns. Patterns treat '/' as the separator, so "math/*" matches "math/add" but not
// "math/int/add". Calling Expose with no patterns keeps every capability.
func (b *RegistryBuilder) Expose(patterns ...string) *RegistryBuilder {
	b.patterns = append(b.patterns, patterns...)
	return b
}

// Build returns the Registry. It fails if any registration was rejected or an Expose pattern does
// not compile.
func (b *RegistryBuilder) Build() (*Registry, error) {
	if len(b.errs) > 0 {
		return nil, fmt.Errorf("failed to build registry: %w", errors.Join(b.errs...))
	}

	matchers := make([]glob.Glob, 0, len(b.patterns))
	for _, p := range b.patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("failed to compile expose pattern %q: %w", p, err)
		}
		matchers = append(matchers, g)
	}

	capabilities := make(map[string]Capability, len(b.capabilities))
	for name, c := range b.capabilities {
		if len(matchers) > 0 && !slices.ContainsFunc(matchers, func(g glob.Glob) bool { return g.Match(name) }) {
			continue
		}
		capabilities[name] = c
	}
	return &Registry{capabilities: capabilities}, nil
}

// MustBuild is like Build but panics on error.
func (b *RegistryBuilder) MustBuild() *Registry {
	r, err := b.Build()
	if err != nil {
		panic(err)
	}
	return r
}

// Get returns the capability registered under name.
func (r *Registry) Get(name string) (Capability, bool) {
	if r == nil {
		return nil, false
	}
	c, ok := r.capabilities[name]
	return c, ok
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.capabilities))
	for name := range r.capabilities {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Len returns the number of registered capabilities.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.capabilities)
}

// Insert adds or replaces a capability after the Registry was built. It must not be called while
// the Registry is in use by a dispatcher.
func (r *Registry) Insert(name string, c Capability) {
	if r.capabilities == nil {
		r.capabilities = make(map[string]Capability)
	}
	r.capabilities[name] = c
}

// WithSchema wraps c so its params are validated against schema before c runs. Params that fail
// validation are rejected with an invalid params error listing every violation.
func WithSchema(schema *jsonschema.Schema, c Capability) Capability {
	return schemaCapability{schema: schema, next: c}
}

func (s schemaCapability) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var doc any
	if len(params) > 0 {
		if err := json.Unmarshal(params, &doc); err != nil {
			return nil, InvalidParamsError("params are not valid JSON", err)
		}
	}
	vs := s.schema.Validate(ctx, doc)
	errs := *vs.Errs
	if len(errs) > 0 {
		var errStr []string
		for _, err := range errs {
			errStr = append(errStr, err.Message)
		}
		return nil, InvalidParamsError(fmt.Sprintf("params validation failed: %s", strings.Join(errStr, ", ")), nil)
	}
	return s.next.Execute(ctx, params)
}

// Typed adapts fn to Capability. Params are decoded into I, where JSON null or absent params
// leave I at its zero value, and the returned O is encoded as the result.
func Typed[I, O any](fn func(ctx context.Context, params I) (O, error)) Capability {
	return typedCapability[I, O]{fn: fn}
}

func (t typedCapability[I, O]) Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error) {
	var in I
	if len(params) > 0 && !bytes.Equal(bytes.TrimSpace(params), nullParams) {
		if err := json.Unmarshal(params, &in); err != nil {
			return nil, InvalidParamsError("failed to decode params", err)
		}
	}
	out, err := t.fn(ctx, in)
	if err != nil {
		return nil, err
	}
	bs, err := json.Marshal(out)
	if err != nil {
		return nil, InternalError("failed to encode result", err)
	}
	return bs, nil
}
