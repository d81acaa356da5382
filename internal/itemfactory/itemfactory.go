// Package itemfactory interns names, descriptors, types, and field/method
// references for a single compilation, guaranteeing that any two calls with
// equal arguments return the same instance. Equality on the returned values
// is by identity thereafter, and hashing is O(1).
//
// The factory is the only piece of global mutable state in the pipeline; it
// is a concurrent, append-only registry keeping one stable identity per
// type/field/method descriptor.
package itemfactory

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// InvalidDescriptor is returned when a created descriptor is syntactically
// malformed.
type InvalidDescriptor struct {
	Descriptor string
	Reason     string
}

func (e *InvalidDescriptor) Error() string {
	return fmt.Sprintf("invalid descriptor %q: %s", e.Descriptor, e.Reason)
}

const shardCount = 32

// internTable is a sharded get-or-insert map keyed by a string descriptor.
// Each shard carries its own mutex so that writers to unrelated descriptors
// never contend, matching the concurrency model's "writers block only on a
// per-bucket basis" invariant.
type internTable[V any] struct {
	shards [shardCount]internShard[V]
}

type internShard[V any] struct {
	mu sync.Mutex
	m  map[string]V
}

func (t *internTable[V]) shard(key string) *internShard[V] {
	h := fnv32(key)
	return &t.shards[h%shardCount]
}

func (t *internTable[V]) getOrCreate(key string, create func() V) V {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.m == nil {
		s.m = make(map[string]V)
	}
	if v, ok := s.m[key]; ok {
		return v
	}
	v := create()
	s.m[key] = v
	return v
}

func (t *internTable[V]) each(f func(key string, v V)) {
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		for k, v := range s.m {
			f(k, v)
		}
		s.mu.Unlock()
	}
}

func fnv32(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}

// Factory is the single process-wide registry for one compilation.
type Factory struct {
	nextID atomic.Uint32

	strings internTable[*DexString]
	types   internTable[*DexType]
	protos  internTable[*DexProto]
	fields  internTable[*DexField]
	methods internTable[*DexMethod]

	// Well-known references other components compare against by identity.
	Well WellKnown
}

// WellKnown holds references that are materialized once and compared against
// by identity elsewhere in the pipeline.
type WellKnown struct {
	Object            DexType
	Class             DexType
	String            DexType
	Throwable         DexType
	Enum              DexType
	MethodHandle      DexType
	ServiceLoader     DexType
	KotlinMetadata    DexType
	BoxedBoolean      DexType
	BoxedByte         DexType
	BoxedChar         DexType
	BoxedShort        DexType
	BoxedInt          DexType
	BoxedLong         DexType
	BoxedFloat        DexType
	BoxedDouble       DexType
}

// New creates a fresh, empty item factory and materializes its well-known
// references.
func New() *Factory {
	f := &Factory{}
	f.Well = WellKnown{
		Object:         f.CreateType("Ljava/lang/Object;"),
		Class:          f.CreateType("Ljava/lang/Class;"),
		String:         f.CreateType("Ljava/lang/String;"),
		Throwable:      f.CreateType("Ljava/lang/Throwable;"),
		Enum:           f.CreateType("Ljava/lang/Enum;"),
		MethodHandle:   f.CreateType("Ljava/lang/invoke/MethodHandle;"),
		ServiceLoader:  f.CreateType("Ljava/util/ServiceLoader;"),
		KotlinMetadata: f.CreateType("Lkotlin/Metadata;"),
		BoxedBoolean:   f.CreateType("Ljava/lang/Boolean;"),
		BoxedByte:      f.CreateType("Ljava/lang/Byte;"),
		BoxedChar:      f.CreateType("Ljava/lang/Character;"),
		BoxedShort:     f.CreateType("Ljava/lang/Short;"),
		BoxedInt:       f.CreateType("Ljava/lang/Integer;"),
		BoxedLong:      f.CreateType("Ljava/lang/Long;"),
		BoxedFloat:     f.CreateType("Ljava/lang/Float;"),
		BoxedDouble:    f.CreateType("Ljava/lang/Double;"),
	}
	return f
}

func (f *Factory) allocID() uint32 {
	return f.nextID.Add(1)
}

// CreateString returns the canonical DexString for text.
func (f *Factory) CreateString(text string) DexString {
	p := f.strings.getOrCreate(text, func() *DexString {
		return &DexString{id: f.allocID(), value: text}
	})
	return *p
}

// CreateType returns the canonical DexType for descriptor, e.g.
// "Lcom/example/Foo;", "[I", or "I". Fails only if descriptor is
// syntactically malformed.
func (f *Factory) CreateType(descriptor string) DexType {
	if err := validateTypeDescriptor(descriptor); err != nil {
		panic(err)
	}
	p := f.types.getOrCreate(descriptor, func() *DexType {
		return &DexType{id: f.allocID(), descriptor: descriptor}
	})
	return *p
}

// TryCreateType is like CreateType but returns an error instead of panicking
// on a malformed descriptor.
func (f *Factory) TryCreateType(descriptor string) (DexType, error) {
	if err := validateTypeDescriptor(descriptor); err != nil {
		return DexType{}, err
	}
	return f.CreateType(descriptor), nil
}

// CreateProto returns the canonical DexProto for the given return type and
// parameter types.
func (f *Factory) CreateProto(ret DexType, params ...DexType) *DexProto {
	key := protoKey(ret, params)
	return f.protos.getOrCreate(key, func() *DexProto {
		ps := make([]DexType, len(params))
		copy(ps, params)
		return &DexProto{id: f.allocID(), shorty: key, returnType: ret, params: ps}
	})
}

// CreateField returns the canonical DexField for the given holder, name, and
// field type.
func (f *Factory) CreateField(holder DexType, name DexString, fieldType DexType) DexField {
	key := holder.descriptor + "." + name.value + ":" + fieldType.descriptor
	p := f.fields.getOrCreate(key, func() *DexField {
		return &DexField{id: f.allocID(), holder: holder, name: name, fieldType: fieldType}
	})
	return *p
}

// CreateMethod returns the canonical DexMethod for the given holder, name,
// and prototype.
func (f *Factory) CreateMethod(holder DexType, name DexString, proto *DexProto) DexMethod {
	key := holder.descriptor + "." + name.value + proto.shorty
	p := f.methods.getOrCreate(key, func() *DexMethod {
		return &DexMethod{id: f.allocID(), holder: holder, name: name, proto: proto}
	})
	return *p
}

func protoKey(ret DexType, params []DexType) string {
	s := "("
	for _, p := range params {
		s += p.descriptor
	}
	s += ")" + ret.descriptor
	return s
}

// AllTypes returns every type the factory has interned so far, sorted
// lexicographically by descriptor — the stable sort order the concurrency
// model requires for deterministic output.
func (f *Factory) AllTypes() []DexType {
	var out []DexType
	f.types.each(func(_ string, v *DexType) { out = append(out, *v) })
	sort.Slice(out, func(i, j int) bool { return out[i].descriptor < out[j].descriptor })
	return out
}
