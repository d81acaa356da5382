// Package appinfo builds and queries the whole-program class hierarchy: the
// supertype/subtype index and the Java-style member resolution algorithms
// (method resolution including interface default-method resolution, and
// field resolution) that the rest of the pipeline relies on instead of
// re-walking the hierarchy ad hoc.
//
// The index is computed once per program snapshot and answers "which
// declaration does this reference bind to" by walking the supertype/
// interface graph, rather than re-deriving that answer from scratch on
// every resolution query.
package appinfo

import (
	"sort"

	"golang.org/x/tools/container/intsets"

	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
)

// HierarchyIndex is a precomputed view of the program's class hierarchy:
// for every known type, its direct subtypes. Interface-ness is read from the
// class definitions in program, not stored in the index.
type HierarchyIndex struct {
	program *definitions.Program
	// directSubtypes maps a type to the set of types that directly extend
	// or implement it.
	directSubtypes map[itemfactory.DexType][]itemfactory.DexType
}

// Build computes a HierarchyIndex over every class currently in program.
// Callers rebuild the index after the tree pruner removes classes.
func Build(program *definitions.Program) *HierarchyIndex {
	idx := &HierarchyIndex{
		program:        program,
		directSubtypes: make(map[itemfactory.DexType][]itemfactory.DexType),
	}
	for _, c := range program.Classes() {
		if c.HasSuper {
			idx.directSubtypes[c.Super] = append(idx.directSubtypes[c.Super], c.Type)
		}
		for _, iface := range c.Interfaces {
			idx.directSubtypes[iface] = append(idx.directSubtypes[iface], c.Type)
		}
	}
	for t, subs := range idx.directSubtypes {
		sort.Slice(subs, func(i, j int) bool { return subs[i].Descriptor() < subs[j].Descriptor() })
		idx.directSubtypes[t] = subs
	}
	return idx
}

// DirectSubtypes returns the direct subtypes of t known to the program,
// sorted by descriptor.
func (h *HierarchyIndex) DirectSubtypes(t itemfactory.DexType) []itemfactory.DexType {
	return h.directSubtypes[t]
}

// AllSubtypes returns every (transitive, reflexive) subtype of t, sorted by
// descriptor.
func (h *HierarchyIndex) AllSubtypes(t itemfactory.DexType) []itemfactory.DexType {
	var seen intsets.Sparse
	byID := map[int]itemfactory.DexType{int(t.ID()): t}
	seen.Insert(int(t.ID()))
	queue := []itemfactory.DexType{t}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, sub := range h.directSubtypes[cur] {
			if seen.Insert(int(sub.ID())) {
				byID[int(sub.ID())] = sub
				queue = append(queue, sub)
			}
		}
	}
	out := make([]itemfactory.DexType, 0, seen.Len())
	for _, id := range seen.AppendTo(nil) {
		out = append(out, byID[id])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor() < out[j].Descriptor() })
	return out
}

// Supertypes returns t's superclass chain followed by every interface
// transitively implemented, each listed once: superclass chain first, then
// interfaces depth-first (a class's direct interfaces, then those reached
// through its superclass, then those reached through each of its interfaces
// in declaration order).
func (h *HierarchyIndex) Supertypes(t itemfactory.DexType) []itemfactory.DexType {
	var out []itemfactory.DexType
	cur, ok := h.program.DefinitionFor(t)
	for ok && cur.HasSuper {
		out = append(out, cur.Super)
		cur, ok = h.program.DefinitionFor(cur.Super)
	}
	var ifaces []itemfactory.DexType
	seen := make(map[itemfactory.DexType]bool)
	var walk func(t itemfactory.DexType)
	walk = func(t itemfactory.DexType) {
		c, ok := h.program.DefinitionFor(t)
		if !ok {
			return
		}
		for _, i := range c.Interfaces {
			if !seen[i] {
				seen[i] = true
				ifaces = append(ifaces, i)
			}
		}
		if c.HasSuper {
			walk(c.Super)
		}
		for _, i := range c.Interfaces {
			walk(i)
		}
	}
	walk(t)
	return append(out, ifaces...)
}

// IsSubtypeOf reports whether sub is sub (or equal to) super in the
// hierarchy known to the program. Unknown types (missing classes) are
// conservatively treated as unrelated.
func (h *HierarchyIndex) IsSubtypeOf(sub, super itemfactory.DexType) bool {
	if sub == super {
		return true
	}
	c, ok := h.program.DefinitionFor(sub)
	if !ok {
		return false
	}
	if c.HasSuper && h.IsSubtypeOf(c.Super, super) {
		return true
	}
	for _, i := range c.Interfaces {
		if h.IsSubtypeOf(i, super) {
			return true
		}
	}
	return false
}
