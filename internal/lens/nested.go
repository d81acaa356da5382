package lens

import "github.com/r8core/r8/internal/itemfactory"

// MethodDelta rewrites a method reference (and optionally its invoke kind),
// e.g. member-rebinding moving a call up to the class that actually
// declares the target.
type MethodDelta struct {
	To   itemfactory.DexMethod
	Kind InvokeKind
	// HasKind is false when the delta only changes the reference and
	// leaves the invoke kind for the previous lens (or the original
	// bytecode) to decide.
	HasKind bool
}

// Builder accumulates the delta maps for one Nested lens on top of a fixed
// previous lens, one rewrite at a time, before the lens is frozen and
// consulted.
type Builder struct {
	previous Lens
	pinned   map[interface{}]bool

	typeDelta   map[itemfactory.DexType]itemfactory.DexType
	fieldDelta  map[itemfactory.DexField]itemfactory.DexField
	methodDelta map[itemfactory.DexMethod]MethodDelta
	protoDelta  map[itemfactory.DexMethod]PrototypeChange

	contextFree bool
}

// NewBuilder creates a Builder for a lens chained on top of previous.
// Pinned references — once a reference is pinned in the root set, no lens
// in the chain may rewrite it — are refused by every Rename* method.
// contextFree should be true unless this lens's LookupMethod override
// depends on the calling context.
func NewBuilder(previous Lens, pinned map[interface{}]bool, contextFree bool) *Builder {
	if previous == nil {
		previous = Identity
	}
	return &Builder{
		previous:    previous,
		pinned:      pinned,
		typeDelta:   make(map[itemfactory.DexType]itemfactory.DexType),
		fieldDelta:  make(map[itemfactory.DexField]itemfactory.DexField),
		methodDelta: make(map[itemfactory.DexMethod]MethodDelta),
		protoDelta:  make(map[itemfactory.DexMethod]PrototypeChange),
		contextFree: contextFree,
	}
}

// IsPinned reports whether ref (a DexType, DexField, or DexMethod) is
// pinned and must not be renamed.
func (b *Builder) IsPinned(ref interface{}) bool { return b.pinned[ref] }

// RenameType records that original now resolves to renamed. Refused
// (returns false, no-op) if original is pinned.
func (b *Builder) RenameType(original, renamed itemfactory.DexType) bool {
	if b.pinned[original] {
		return false
	}
	b.typeDelta[original] = renamed
	return true
}

// RenameField records that original now resolves to renamed.
func (b *Builder) RenameField(original, renamed itemfactory.DexField) bool {
	if b.pinned[original] {
		return false
	}
	b.fieldDelta[original] = renamed
	return true
}

// RenameMethod records that original now resolves to renamed, leaving the
// invoke kind to the previous lens; RenameMethodWithKind also changes it.
func (b *Builder) RenameMethod(original, renamed itemfactory.DexMethod) bool {
	if b.pinned[original] {
		return false
	}
	b.methodDelta[original] = MethodDelta{To: renamed}
	return true
}

// RenameMethodWithKind is like RenameMethod but also pins the new invoke
// kind, used by member-rebinding and class-merging when devirtualization
// changes how a call site must be encoded.
func (b *Builder) RenameMethodWithKind(original, renamed itemfactory.DexMethod, kind InvokeKind) bool {
	if b.pinned[original] {
		return false
	}
	b.methodDelta[original] = MethodDelta{To: renamed, Kind: kind, HasKind: true}
	return true
}

// SetPrototypeChange records a prototype change for a method under its
// *original* (pre-rename) reference.
func (b *Builder) SetPrototypeChange(original itemfactory.DexMethod, change PrototypeChange) {
	b.protoDelta[original] = change
}

// Build freezes the builder into an immutable Lens.
func (b *Builder) Build() Lens {
	return &nested{
		previous:    b.previous,
		typeDelta:   b.typeDelta,
		fieldDelta:  b.fieldDelta,
		methodDelta: b.methodDelta,
		protoDelta:  b.protoDelta,
		contextFree: b.contextFree && b.previous.IsContextFreeForMethods(),
	}
}

// nested is a Lens holding one stage's delta maps chained on top of a
// previous lens.
type nested struct {
	previous    Lens
	typeDelta   map[itemfactory.DexType]itemfactory.DexType
	fieldDelta  map[itemfactory.DexField]itemfactory.DexField
	methodDelta map[itemfactory.DexMethod]MethodDelta
	protoDelta  map[itemfactory.DexMethod]PrototypeChange
	contextFree bool
}

func (n *nested) LookupType(ref itemfactory.DexType) itemfactory.DexType {
	rewritten := n.previous.LookupType(ref)
	if to, ok := n.typeDelta[rewritten]; ok {
		return to
	}
	return rewritten
}

func (n *nested) LookupField(ref itemfactory.DexField) itemfactory.DexField {
	rewritten := n.previous.LookupField(ref)
	if to, ok := n.fieldDelta[rewritten]; ok {
		return to
	}
	return rewritten
}

func (n *nested) LookupMethod(ref itemfactory.DexMethod, ctx MethodLookupContext, kind InvokeKind) (itemfactory.DexMethod, InvokeKind) {
	rewritten, kind := n.previous.LookupMethod(ref, ctx, kind)
	if delta, ok := n.methodDelta[rewritten]; ok {
		if delta.HasKind {
			return delta.To, delta.Kind
		}
		return delta.To, kind
	}
	return rewritten, kind
}

func (n *nested) LookupPrototypeChanges(ref itemfactory.DexMethod) PrototypeChange {
	prev := n.previous.LookupPrototypeChanges(ref)
	own, ok := n.protoDelta[ref]
	if !ok {
		return prev
	}
	if prev.IsIdentity() {
		return own
	}
	// Compose: the previous lens's removed indices apply to the original
	// signature; own's removed indices are expressed against the
	// signature after prev's rewrite, so they don't collide positionally,
	// but both sets of removed indices are meaningful only relative to
	// the original signature the caller started from. Concatenating is
	// correct because indices are never reused once removed.
	merged := PrototypeChange{
		RemovedParameterIndices: append(append([]int{}, prev.RemovedParameterIndices...), own.RemovedParameterIndices...),
		AppendedParameterTypes:  append(append([]itemfactory.DexType{}, prev.AppendedParameterTypes...), own.AppendedParameterTypes...),
	}
	return merged
}

func (n *nested) IsContextFreeForMethods() bool { return n.contextFree }
