// ABOUTME: Immutable status/type code table built from additive TOML resources.
// ABOUTME: Malformed resources fail construction; lookups of unknown codes render numerically.

package registry

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Code is a numeric status code carried back to senders.
type Code int32

// Well-known status codes. They are always present in a built Registry.
const (
	OK                  Code = 0
	AlreadyWritten      Code = 1
	UnknownError        Code = 2
	UnknownErrorNoRetry Code = 3
	UnknownMessageType  Code = 4
	CorruptFrame        Code = 5
)

const (
	typeNamespace      = "type"
	unknownErrorName   = "UNKNOWN_ERROR"
	unknownErrorNoRetr = "UNKNOWN_ERROR_NO_RETRY"
	endOfStreamType    = 0xFF
)

// ErrMalformed is wrapped by every resource validation failure.
var ErrMalformed = errors.New("registry: malformed entry")

//go:embed codes.toml
var builtin []byte

// Registry is a read-only bidirectional name/code table.
type Registry struct {
	statusByCode map[Code]string
	statusByName map[string]Code
	typeByCode   map[uint8]string
	typeByName   map[string]uint8
}

// Resource is one named registry source.
type Resource struct {
	Name string
	Data []byte
}

// Builder accumulates resources before producing a Registry.
type Builder struct {
	statusByCode map[Code]string
	statusByName map[string]Code
	typeByCode   map[uint8]string
	typeByName   map[string]uint8
}

// NewBuilder returns a builder seeded with the built-in resource.
func NewBuilder() *Builder {
	b := &Builder{
		statusByCode: make(map[Code]string),
		statusByName: make(map[string]Code),
		typeByCode:   make(map[uint8]string),
		typeByName:   make(map[string]uint8),
	}
	if err := b.Add(Resource{Name: "builtin", Data: builtin}); err != nil {
		panic(fmt.Sprintf("registry: built-in resource invalid: %v", err))
	}
	return b
}

// Add merges one resource into the builder.
func (b *Builder) Add(res Resource) error {
	var raw map[string]any
	if _, err := toml.Decode(string(res.Data), &raw); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, res.Name, err)
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := raw[key]
		if key == typeNamespace {
			table, ok := value.(map[string]any)
			if !ok {
				return fmt.Errorf("%w: %s: %q must be a table", ErrMalformed, res.Name, key)
			}
			if err := b.addTypes(res.Name, table); err != nil {
				return err
			}
			continue
		}
		code, err := toCode(value, 0, math.MaxInt32)
		if err != nil {
			return fmt.Errorf("%w: %s: %s: %v", ErrMalformed, res.Name, key, err)
		}
		if err := b.addStatus(res.Name, key, Code(code)); err != nil {
			return err
		}
	}
	return nil
}

// AddFile reads and merges a resource file.
func (b *Builder) AddFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading registry resource: %w", err)
	}
	return b.Add(Resource{Name: path, Data: data})
}

// Build freezes the accumulated entries into a Registry.
func (b *Builder) Build() *Registry {
	r := &Registry{
		statusByCode: make(map[Code]string, len(b.statusByCode)),
		statusByName: make(map[string]Code, len(b.statusByName)),
		typeByCode:   make(map[uint8]string, len(b.typeByCode)),
		typeByName:   make(map[string]uint8, len(b.typeByName)),
	}
	for k, v := range b.statusByCode {
		r.statusByCode[k] = v
	}
	for k, v := range b.statusByName {
		r.statusByName[k] = v
	}
	for k, v := range b.typeByCode {
		r.typeByCode[k] = v
	}
	for k, v := range b.typeByName {
		r.typeByName[k] = v
	}
	return r
}

// Load builds a Registry from the built-in resource plus the given files.
func Load(paths ...string) (*Registry, error) {
	b := NewBuilder()
	for _, p := range paths {
		if err := b.AddFile(p); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}

// Default returns a Registry holding only the built-in codes.
func Default() *Registry {
	return NewBuilder().Build()
}

func (b *Builder) addStatus(source, name string, code Code) error {
	if existing, ok := b.statusByName[name]; ok && existing != code {
		return fmt.Errorf("%w: %s: status %s redefined from %d to %d", ErrMalformed, source, name, existing, code)
	}
	if existing, ok := b.statusByCode[code]; ok && existing != name {
		return fmt.Errorf("%w: %s: status code %d claimed by %s and %s", ErrMalformed, source, code, existing, name)
	}
	b.statusByName[name] = code
	b.statusByCode[code] = name
	return nil
}

func (b *Builder) addTypes(source string, table map[string]any) error {
	names := make([]string, 0, len(table))
	for k := range table {
		names = append(names, k)
	}
	sort.Strings(names)

	for _, name := range names {
		v, err := toCode(table[name], 0, endOfStreamType-1)
		if err != nil {
			return fmt.Errorf("%w: %s: type.%s: %v", ErrMalformed, source, name, err)
		}
		code := uint8(v)
		if existing, ok := b.typeByName[name]; ok && existing != code {
			return fmt.Errorf("%w: %s: type %s redefined from %d to %d", ErrMalformed, source, name, existing, code)
		}
		if existing, ok := b.typeByCode[code]; ok && existing != name {
			return fmt.Errorf("%w: %s: type code %d claimed by %s and %s", ErrMalformed, source, code, existing, name)
		}
		b.typeByName[name] = code
		b.typeByCode[code] = name
	}
	return nil
}

func toCode(v any, lo, hi int64) (int64, error) {
	n, ok := v.(int64)
	if !ok {
		return 0, fmt.Errorf("value %v is not an integer", v)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("value %d outside [%d, %d]", n, lo, hi)
	}
	return n, nil
}

// Name returns the status name for code, or its decimal form when unmapped.
func (r *Registry) Name(code Code) string {
	if name, ok := r.statusByCode[code]; ok {
		return name
	}
	return strconv.FormatInt(int64(code), 10)
}

// Code looks up a status code by name.
func (r *Registry) Code(name string) (Code, bool) {
	c, ok := r.statusByName[name]
	return c, ok
}

// TypeName returns the message-type name for t, or its decimal form when unmapped.
func (r *Registry) TypeName(t uint8) string {
	if t == endOfStreamType {
		return "END_OF_STREAM"
	}
	if name, ok := r.typeByCode[t]; ok {
		return name
	}
	return strconv.Itoa(int(t))
}

// Type looks up a message-type code by name.
func (r *Registry) Type(name string) (uint8, bool) {
	t, ok := r.typeByName[name]
	return t, ok
}

// Succeeded reports whether code means the message is on the receiver.
func (r *Registry) Succeeded(code Code) bool {
	return code == OK || code == AlreadyWritten
}

// Retryable reports whether a sender may try the same bytes again. Only the
// UNKNOWN_ERROR family is retryable, except UNKNOWN_ERROR_NO_RETRY.
func (r *Registry) Retryable(code Code) bool {
	name := r.Name(code)
	if name == unknownErrorNoRetr {
		return false
	}
	return name == unknownErrorName || strings.HasPrefix(name, unknownErrorName+"_")
}

// Statuses returns all status codes in ascending order.
func (r *Registry) Statuses() []Code {
	out := make([]Code, 0, len(r.statusByCode))
	for c := range r.statusByCode {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Types returns all message-type codes in ascending order.
func (r *Registry) Types() []uint8 {
	out := make([]uint8, 0, len(r.typeByCode))
	for t := range r.typeByCode {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
