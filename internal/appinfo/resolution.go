package appinfo

import (
	"sort"

	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
)

// ResolutionKind tags the outcome of a member resolution query.
type ResolutionKind uint8

const (
	// ResolvedSingle means resolution found exactly one applicable
	// definition.
	ResolvedSingle ResolutionKind = iota
	// ResolvedNone means no definition for the reference exists anywhere
	// in the hierarchy (a missing-class/missing-member diagnostic).
	ResolvedNone
	// ResolvedAmbiguous means more than one maximally-specific default
	// method applies and neither overrides the other (an interface
	// diamond with no unique most-specific default), so a caller must
	// throw IncompatibleClassChangeError at run time. The pipeline treats
	// every candidate as a possible dispatch target.
	ResolvedAmbiguous
)

// MethodResolutionResult is the outcome of resolving a method reference
// against the class it's invoked on, following Java's method resolution
// algorithm (JLS §15.12.2 generalized to dex): direct declaration first,
// then superclass chain, then maximally-specific interface default methods.
type MethodResolutionResult struct {
	Kind       ResolutionKind
	Single     *definitions.Method
	Candidates []*definitions.Method // populated when Kind == ResolvedAmbiguous
}

// FieldResolutionResult is the outcome of resolving a field reference.
// Unlike methods, field resolution has no default-method analog: the
// first matching declaration found walking superclasses then interfaces
// wins, by the JVM's field-shadowing rules.
type FieldResolutionResult struct {
	Kind   ResolutionKind
	Single *definitions.Field
}

// Resolver answers member-resolution queries against a fixed program and
// hierarchy snapshot.
type Resolver struct {
	program   *definitions.Program
	hierarchy *HierarchyIndex
}

// NewResolver creates a Resolver over the given program and hierarchy
// index. Callers must rebuild the hierarchy and construct a fresh Resolver
// after the tree pruner changes the set of live classes.
func NewResolver(program *definitions.Program, hierarchy *HierarchyIndex) *Resolver {
	return &Resolver{program: program, hierarchy: hierarchy}
}

// ResolveMethod resolves ref as if invoked on an instance of holder (which
// may differ from ref.Holder() when resolving through a narrower static
// type, e.g. after a checked cast).
func (r *Resolver) ResolveMethod(holder itemfactory.DexType, ref itemfactory.DexMethod) MethodResolutionResult {
	if c, ok := r.program.DefinitionFor(holder); ok {
		if m := lookupBySignature(c, ref); m != nil {
			return MethodResolutionResult{Kind: ResolvedSingle, Single: m}
		}
	}
	for _, super := range r.hierarchy.Supertypes(holder) {
		c, ok := r.program.DefinitionFor(super)
		if !ok || c.Access.IsInterface() {
			continue
		}
		if m := lookupBySignature(c, ref); m != nil && !m.IsAbstract() {
			return MethodResolutionResult{Kind: ResolvedSingle, Single: m}
		}
	}
	return r.resolveMaximallySpecificDefault(holder, ref)
}

// resolveMaximallySpecificDefault implements the diamond-interface fallback:
// among every interface that declares a matching, non-abstract (default)
// method, keep only those not overridden by a more specific interface in
// the candidate set. If exactly one remains, that's the resolution; if more
// than one remains, the call site is ambiguous.
func (r *Resolver) resolveMaximallySpecificDefault(holder itemfactory.DexType, ref itemfactory.DexMethod) MethodResolutionResult {
	var candidates []*definitions.Method
	candidateTypes := make(map[itemfactory.DexType]bool)
	for _, iface := range r.hierarchy.Supertypes(holder) {
		c, ok := r.program.DefinitionFor(iface)
		if !ok || !c.Access.IsInterface() {
			continue
		}
		if m := lookupBySignature(c, ref); m != nil && !m.IsAbstract() {
			candidates = append(candidates, m)
			candidateTypes[iface] = true
		}
	}
	if len(candidates) == 0 {
		return MethodResolutionResult{Kind: ResolvedNone}
	}
	maximal := candidates[:0:0]
	for _, cand := range candidates {
		overridden := false
		for _, other := range candidates {
			if other == cand {
				continue
			}
			if r.hierarchy.IsSubtypeOf(other.Holder, cand.Holder) && other.Holder != cand.Holder {
				overridden = true
				break
			}
		}
		if !overridden {
			maximal = append(maximal, cand)
		}
	}
	sort.Slice(maximal, func(i, j int) bool {
		return maximal[i].Holder.Descriptor() < maximal[j].Holder.Descriptor()
	})
	if len(maximal) == 1 {
		return MethodResolutionResult{Kind: ResolvedSingle, Single: maximal[0]}
	}
	return MethodResolutionResult{Kind: ResolvedAmbiguous, Candidates: maximal}
}

// lookupBySignature finds the method of c with ref's name and prototype,
// whatever class ref itself names as its holder.
func lookupBySignature(c *definitions.Class, ref itemfactory.DexMethod) *definitions.Method {
	for _, m := range c.AllMethods() {
		if m.Reference.Name() == ref.Name() && m.Reference.Proto() == ref.Proto() {
			return m
		}
	}
	return nil
}

// ResolveField resolves ref as if accessed as a member of holder, following
// the JVM's field shadowing rule: the nearest declaration along the
// superclass chain wins over any interface declaration.
func (r *Resolver) ResolveField(holder itemfactory.DexType, ref itemfactory.DexField) FieldResolutionResult {
	if c, ok := r.program.DefinitionFor(holder); ok {
		if f := c.LookupField(ref); f != nil {
			return FieldResolutionResult{Kind: ResolvedSingle, Single: f}
		}
	}
	for _, super := range r.hierarchy.Supertypes(holder) {
		c, ok := r.program.DefinitionFor(super)
		if !ok {
			continue
		}
		if f := c.LookupField(ref); f != nil {
			return FieldResolutionResult{Kind: ResolvedSingle, Single: f}
		}
	}
	return FieldResolutionResult{Kind: ResolvedNone}
}

// LookupVirtualDispatchTargets returns every method definition that could
// receive a virtual or interface call to ref when the receiver's dynamic
// type is known to be one of instantiatedSubtypes (a subset of
// AllSubtypes(ref.Holder())). The Enqueuer does not call this; it resolves
// dispatch targets through ResolveMethod directly as types become
// instantiated.
func (r *Resolver) LookupVirtualDispatchTargets(ref itemfactory.DexMethod, instantiatedSubtypes []itemfactory.DexType) []*definitions.Method {
	targetsByHolder := make(map[itemfactory.DexType]*definitions.Method)
	for _, t := range instantiatedSubtypes {
		res := r.ResolveMethod(t, ref)
		switch res.Kind {
		case ResolvedSingle:
			targetsByHolder[res.Single.Holder] = res.Single
		case ResolvedAmbiguous:
			for _, cand := range res.Candidates {
				targetsByHolder[cand.Holder] = cand
			}
		}
	}
	out := make([]*definitions.Method, 0, len(targetsByHolder))
	for _, m := range targetsByHolder {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Reference.String() < out[j].Reference.String()
	})
	return out
}
