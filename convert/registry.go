package convert

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/poiesic/tuplerepo/core"
)

var (
	// ErrRegistryFrozen is returned by Register once the registry has been used.
	ErrRegistryFrozen = errors.New("converter registry is frozen")

	// ErrInvalidConverter is returned by Register for an incomplete converter.
	ErrInvalidConverter = errors.New("invalid converter")
)

// Registry is an ordered converter stack.
//
// Converters are registered during setup. The first conversion (or an
// explicit Freeze) freezes the stack; lookups afterwards read an immutable
// slice and take no locks.
type Registry struct {
	mu      sync.Mutex
	pending []Converter
	frozen  atomic.Pointer[[]Converter]
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for registration warnings.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
	}
}

// NewRegistry creates an empty registry. Only the identity fallback applies
// until converters are registered.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewDefaultRegistry creates a registry preloaded with Builtins.
func NewDefaultRegistry(opts ...Option) *Registry {
	r := NewRegistry(opts...)
	for _, c := range Builtins() {
		// Builtins are valid and the registry is not frozen yet.
		_ = r.Register(c)
	}
	return r
}

var (
	defaultRegistry     *Registry
	defaultRegistryOnce sync.Once
)

// Default returns the process-wide registry, preloaded with Builtins.
// Register custom converters on it before the first repository is built.
func Default() *Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewDefaultRegistry()
	})
	return defaultRegistry
}

// Register appends c to the stack. A converter claiming the same host type
// and store kind as an earlier one replaces it in place, with a warning.
func (r *Registry) Register(c Converter) error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConverter, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen.Load() != nil {
		return fmt.Errorf("%w: cannot register %s", ErrRegistryFrozen, c)
	}
	for i, existing := range r.pending {
		if existing.HostType == c.HostType && existing.StoreKind == c.StoreKind {
			r.logger.Warn("replacing converter", "host_type", c.HostType.String(), "store_kind", c.StoreKind.String())
			r.pending[i] = c
			return nil
		}
	}
	r.pending = append(r.pending, c)
	return nil
}

// Freeze ends the registration phase. It is idempotent.
func (r *Registry) Freeze() {
	r.stack()
}

// Frozen reports whether the registration phase is over.
func (r *Registry) Frozen() bool {
	return r.frozen.Load() != nil
}

// Converters returns the stack in resolution order, freezing the registry.
func (r *Registry) Converters() []Converter {
	stack := r.stack()
	out := make([]Converter, len(stack))
	copy(out, stack)
	return out
}

func (r *Registry) stack() []Converter {
	if s := r.frozen.Load(); s != nil {
		return *s
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.frozen.Load(); s != nil {
		return *s
	}
	s := make([]Converter, len(r.pending))
	copy(s, r.pending)
	r.frozen.Store(&s)
	return s
}

// ToStore converts a host value to its store-native form.
//
// Resolution: the first converter whose host type equals the runtime type of
// v, then the first whose host type v converts to without loss of family,
// then the identity fallback for plain Go kinds.
func (r *Registry) ToStore(v any, declared reflect.Type) (any, error) {
	if v == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	stack := r.stack()
	for _, c := range stack {
		if c.HostType == rv.Type() {
			return c.encode(rv)
		}
	}
	for _, c := range stack {
		if sameFamily(rv.Type(), c.HostType) {
			if overflows(rv, c.HostType) {
				return nil, fmt.Errorf("%w: %v overflows %s", core.ErrUnsupportedConversion, rv.Interface(), c.HostType)
			}
			return c.encode(rv.Convert(c.HostType))
		}
	}
	return r.identityToStore(rv, declared)
}

func (r *Registry) identityToStore(rv reflect.Value, declared reflect.Type) (any, error) {
	switch rv.Kind() {
	case reflect.Bool:
		return rv.Bool(), nil
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return rv.Uint(), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Slice:
		if rv.IsNil() {
			return nil, nil
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return append([]byte(nil), rv.Bytes()...), nil
		}
		fallthrough
	case reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			item, err := r.ToStore(rv.Index(i).Interface(), elemType(declared))
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", i, err)
			}
			out[i] = item
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return nil, nil
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			item, err := r.ToStore(iter.Value().Interface(), elemType(declared))
			if err != nil {
				return nil, fmt.Errorf("key %q: %w", iter.Key().String(), err)
			}
			out[iter.Key().String()] = item
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: no converter for %s", core.ErrUnsupportedConversion, rv.Type())
}

// FromStore converts a store cell to the declared host type.
//
// The declared type decides first: a converter claiming exactly that type
// wins whatever the cell kind. Otherwise the first converter whose store
// kind matches the cell and whose host type converts to the declared type
// wins, so registration order settles ambiguous numeric cells. The identity
// fallback handles the rest.
func (r *Registry) FromStore(v any, declared reflect.Type) (reflect.Value, error) {
	if declared == nil {
		return reflect.Value{}, fmt.Errorf("%w: no declared type", core.ErrUnsupportedConversion)
	}
	if v == nil {
		if null, ok := r.nullValue(declared); ok {
			return null, nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil cell for %s", core.ErrMissingRequiredField, declared)
	}

	stack := r.stack()
	for _, c := range stack {
		if c.HostType == declared {
			return c.decode(v)
		}
	}
	if declared.Kind() == reflect.Pointer {
		inner, err := r.FromStore(v, declared.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		ptr := reflect.New(declared.Elem())
		ptr.Elem().Set(inner)
		return ptr, nil
	}

	kind := core.KindOf(v)
	for _, c := range stack {
		if c.StoreKind != kind {
			continue
		}
		if declared.Kind() == reflect.Interface {
			if !c.HostType.Implements(declared) {
				continue
			}
			out, err := c.decode(v)
			if err != nil {
				return reflect.Value{}, err
			}
			return out.Convert(declared), nil
		}
		if sameFamily(c.HostType, declared) {
			out, err := c.decode(v)
			if err != nil {
				return reflect.Value{}, err
			}
			if overflows(out, declared) {
				return reflect.Value{}, fmt.Errorf("%w: %v overflows %s", core.ErrUnsupportedConversion, out.Interface(), declared)
			}
			return out.Convert(declared), nil
		}
	}
	return r.identityFromStore(v, declared)
}

func (r *Registry) identityFromStore(v any, declared reflect.Type) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	switch {
	case declared.Kind() == reflect.Interface && rv.Type().Implements(declared):
		out := reflect.New(declared).Elem()
		out.Set(rv)
		return out, nil
	case sameFamily(rv.Type(), declared):
		if overflows(rv, declared) {
			return reflect.Value{}, fmt.Errorf("%w: %v overflows %s", core.ErrUnsupportedConversion, v, declared)
		}
		return rv.Convert(declared), nil
	}

	switch cell := v.(type) {
	case []any:
		switch declared.Kind() {
		case reflect.Slice:
			out := reflect.MakeSlice(declared, len(cell), len(cell))
			for i, item := range cell {
				elem, err := r.FromStore(item, declared.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
				}
				out.Index(i).Set(elem)
			}
			return out, nil
		case reflect.Array:
			if len(cell) != declared.Len() {
				break
			}
			out := reflect.New(declared).Elem()
			for i, item := range cell {
				elem, err := r.FromStore(item, declared.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("element %d: %w", i, err)
				}
				out.Index(i).Set(elem)
			}
			return out, nil
		}
	case map[string]any:
		if declared.Kind() == reflect.Map && declared.Key().Kind() == reflect.String {
			out := reflect.MakeMapWithSize(declared, len(cell))
			for key, item := range cell {
				elem, err := r.FromStore(item, declared.Elem())
				if err != nil {
					return reflect.Value{}, fmt.Errorf("key %q: %w", key, err)
				}
				out.SetMapIndex(reflect.ValueOf(key).Convert(declared.Key()), elem)
			}
			return out, nil
		}
	}
	return reflect.Value{}, fmt.Errorf("%w: cannot decode %s into %s", core.ErrUnsupportedConversion, core.KindOf(v), declared)
}

// Claims reports whether a converter is registered for exactly t.
func (r *Registry) Claims(t reflect.Type) bool {
	for _, c := range r.stack() {
		if c.HostType == t {
			return true
		}
	}
	return false
}

// Nullable reports whether a nil cell decodes into t without error.
func (r *Registry) Nullable(t reflect.Type) bool {
	_, ok := r.nullValue(t)
	return ok
}

func (r *Registry) nullValue(t reflect.Type) (reflect.Value, bool) {
	for _, c := range r.stack() {
		if c.HostType == t && c.null != nil {
			return c.null(), true
		}
	}
	switch t.Kind() {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Interface:
		return reflect.Zero(t), true
	}
	return reflect.Value{}, false
}

// Reachable reports whether some conversion path exists for t.
func (r *Registry) Reachable(t reflect.Type) bool {
	return r.reachable(t, map[reflect.Type]bool{})
}

func (r *Registry) reachable(t reflect.Type, seen map[reflect.Type]bool) bool {
	if seen[t] {
		return true
	}
	seen[t] = true
	for _, c := range r.stack() {
		if c.HostType == t || sameFamily(t, c.HostType) {
			return true
		}
	}
	switch t.Kind() {
	case reflect.Bool, reflect.String,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64, reflect.Interface:
		return true
	case reflect.Pointer, reflect.Slice, reflect.Array:
		return r.reachable(t.Elem(), seen)
	case reflect.Map:
		return t.Key().Kind() == reflect.String && r.reachable(t.Elem(), seen)
	}
	return false
}

type family int

const (
	familyOther family = iota
	familyBool
	familyString
	familySigned
	familyUnsigned
	familyFloat
	familyBytes
)

func familyOf(t reflect.Type) family {
	switch t.Kind() {
	case reflect.Bool:
		return familyBool
	case reflect.String:
		return familyString
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return familySigned
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return familyUnsigned
	case reflect.Float32, reflect.Float64:
		return familyFloat
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return familyBytes
		}
	}
	return familyOther
}

// sameFamily reports whether from converts to to without changing meaning.
// Go allows int -> string conversions; this does not.
func sameFamily(from, to reflect.Type) bool {
	f := familyOf(from)
	if f == familyOther {
		return false
	}
	return f == familyOf(to) && from.ConvertibleTo(to)
}

func overflows(v reflect.Value, to reflect.Type) bool {
	switch familyOf(to) {
	case familySigned:
		return reflect.Zero(to).OverflowInt(v.Int())
	case familyUnsigned:
		return reflect.Zero(to).OverflowUint(v.Uint())
	case familyFloat:
		return reflect.Zero(to).OverflowFloat(v.Float())
	}
	return false
}

func elemType(t reflect.Type) reflect.Type {
	if t == nil {
		return nil
	}
	switch t.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Pointer:
		return t.Elem()
	}
	return nil
}

func wrapUnsupported(c Converter, err error) error {
	if errors.Is(err, core.ErrUnsupportedConversion) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", core.ErrUnsupportedConversion, c, err)
}
