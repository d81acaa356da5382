// Package lens implements the graph lens stack: a chain of reference
// rewriters through which every pass after the first answers "what does
// this original reference resolve to now."
//
// Each stage that changes names (tree-pruner, member-rebinder,
// vertical-class-merger, minifier) appends a Lens on top of the previous
// one instead of mutating a shared map, so earlier stages' output is never
// invalidated by a later stage's rewrite.
package lens

import "github.com/r8core/r8/internal/itemfactory"

// InvokeKind mirrors usereg.InvokeKind for the narrow purpose of letting a
// lens change how a call site dispatches (e.g. a devirtualized invoke after
// class merging), without importing the usereg package and creating a
// cycle.
type InvokeKind uint8

const (
	InvokeVirtual InvokeKind = iota
	InvokeSuper
	InvokeDirect
	InvokeStatic
	InvokeInterface
)

// PrototypeChange describes how a lens alters a method's parameter list,
// e.g. member-rebinding appending a synthetic bridge receiver, or an
// optimization pass removing a provably-unused argument. Invocation-site
// rewriters consult this to adjust arguments at every call site of the
// affected method.
type PrototypeChange struct {
	// RemovedParameterIndices are original parameter positions the new
	// signature no longer carries, in ascending order.
	RemovedParameterIndices []int
	// AppendedParameterTypes are extra parameter types added at the end of
	// the new signature.
	AppendedParameterTypes []itemfactory.DexType
}

// IsIdentity reports whether the change is a no-op.
func (c PrototypeChange) IsIdentity() bool {
	return len(c.RemovedParameterIndices) == 0 && len(c.AppendedParameterTypes) == 0
}

// MethodLookupContext names the caller a method lookup is performed on
// behalf of, needed only by lenses whose rewrite depends on the calling
// context.
type MethodLookupContext struct {
	Holder itemfactory.DexType
	Method itemfactory.DexMethod
}

// Lens answers, for any original reference, its current rewritten
// reference. Lenses compose: a nested lens queries its previous lens first,
// then applies its own delta on top.
type Lens interface {
	LookupType(ref itemfactory.DexType) itemfactory.DexType
	LookupField(ref itemfactory.DexField) itemfactory.DexField
	LookupMethod(ref itemfactory.DexMethod, ctx MethodLookupContext, kind InvokeKind) (itemfactory.DexMethod, InvokeKind)
	LookupPrototypeChanges(ref itemfactory.DexMethod) PrototypeChange
	// IsContextFreeForMethods reports whether LookupMethod's result never
	// depends on ctx, i.e. every lens in the chain up to and including this
	// one rewrites purely by reference. Required to hold before the final
	// writer runs.
	IsContextFreeForMethods() bool
}

// identityLens is the base of every chain: it returns every input
// unchanged.
type identityLens struct{}

// Identity is the identity lens: every lookup returns its input unchanged.
var Identity Lens = identityLens{}

func (identityLens) LookupType(ref itemfactory.DexType) itemfactory.DexType { return ref }
func (identityLens) LookupField(ref itemfactory.DexField) itemfactory.DexField {
	return ref
}
func (identityLens) LookupMethod(ref itemfactory.DexMethod, _ MethodLookupContext, kind InvokeKind) (itemfactory.DexMethod, InvokeKind) {
	return ref, kind
}
func (identityLens) LookupPrototypeChanges(itemfactory.DexMethod) PrototypeChange {
	return PrototypeChange{}
}
func (identityLens) IsContextFreeForMethods() bool { return true }
