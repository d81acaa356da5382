// Package pruner rewrites a program to its live subset once an Enqueuer
// round reaches a fixed point: it drops every class, field, and method the
// liveness view did not mark live, repairs any class whose superclass or
// interface link now dangles, and reports the set of removed references so
// every auxiliary map (root-set attribute sets, field access info,
// services) can be pruned in step.
package pruner

import (
	"sort"

	"github.com/r8core/r8/internal/appinfo"
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/enqueuer"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/lens"
)

// Removed is the set of references the prune step dropped, used to keep
// every auxiliary map's PrunedCopyFrom in step with the pruned program.
type Removed struct {
	Types   map[itemfactory.DexType]bool
	Fields  map[itemfactory.DexField]bool
	Methods map[itemfactory.DexMethod]bool
}

func newRemoved() *Removed {
	return &Removed{
		Types:   make(map[itemfactory.DexType]bool),
		Fields:  make(map[itemfactory.DexField]bool),
		Methods: make(map[itemfactory.DexMethod]bool),
	}
}

// Result is the outcome of one Prune call.
type Result struct {
	Program *definitions.Program
	Removed *Removed
	// Lens is the first Graph lens in the chain, installed by tree-pruning.
	// The tree-pruner's lens is a no-op for names — it removes definitions
	// but renames nothing — so this is always the identity lens; it exists
	// so callers have a stable append point for the lenses that follow
	// (member-rebinding, class-merging, minifier).
	Lens lens.Lens
}

// Prune builds a new program containing only classes whose type is live in
// view, and within each surviving class only its live fields and methods.
// hierarchy must be built over program (the pre-prune snapshot), used to
// find a surviving ancestor when a class's declared super or interface is
// not itself live.
func Prune(program *definitions.Program, hierarchy *appinfo.HierarchyIndex, view *enqueuer.LivenessView) Result {
	removed := newRemoved()
	out := definitions.NewProgram(program.Factory())

	for _, c := range program.Classes() {
		if !view.LiveTypes[c.Type] {
			removed.Types[c.Type] = true
			for _, m := range c.AllMethods() {
				removed.Methods[m.Reference] = true
			}
			for _, f := range c.AllFields() {
				removed.Fields[f.Reference] = true
			}
			continue
		}
		out.AddClass(pruneClass(c, hierarchy, view, removed))
	}
	out.PrunedCopyFrom(removed.Types)

	return Result{Program: out, Removed: removed, Lens: lens.Identity}
}

// pruneClass returns a copy of c retaining only its live members (for
// program classes; classpath/library classes are never rewritten and are
// copied whole), with its superclass and interface list repaired to skip
// any link that no longer resolves to a live class.
func pruneClass(c *definitions.Class, hierarchy *appinfo.HierarchyIndex, view *enqueuer.LivenessView, removed *Removed) *definitions.Class {
	next := &definitions.Class{
		Type:        c.Type,
		Access:      c.Access,
		Annotations: c.Annotations,
		SourceFile:  c.SourceFile,
		Origin:      c.Origin,
		Kind:        c.Kind,
	}

	if c.HasSuper {
		if super, ok := nearestLiveAncestor(c.Super, hierarchy, view); ok {
			next.Super = super
			next.HasSuper = true
		}
		// If no live ancestor exists (every superclass up to Object was
		// pruned, impossible in practice since Object is always kept
		// alive by rule 1 for any live type) the class is left without a
		// declared super; the writer defaults it to the platform root.
	}

	for _, iface := range c.Interfaces {
		if view.LiveTypes[iface] {
			next.Interfaces = append(next.Interfaces, iface)
		} else if repaired, ok := liveInterfaceReplacements(iface, hierarchy, view); ok {
			next.Interfaces = append(next.Interfaces, repaired...)
		}
	}

	if !c.IsProgramClass() {
		next.DirectMethods = c.DirectMethods
		next.VirtualMethods = c.VirtualMethods
		next.InstanceFields = c.InstanceFields
		next.StaticFields = c.StaticFields
		return next
	}

	for _, m := range c.DirectMethods {
		if view.LiveMethods[m.Reference] != nil {
			next.DirectMethods = append(next.DirectMethods, m)
		} else {
			removed.Methods[m.Reference] = true
		}
	}
	for _, m := range c.VirtualMethods {
		if view.LiveMethods[m.Reference] != nil {
			next.VirtualMethods = append(next.VirtualMethods, m)
		} else {
			removed.Methods[m.Reference] = true
		}
	}
	for _, f := range c.InstanceFields {
		if view.LiveFields[f.Reference] != nil {
			next.InstanceFields = append(next.InstanceFields, f)
		} else {
			removed.Fields[f.Reference] = true
		}
	}
	for _, f := range c.StaticFields {
		if view.LiveFields[f.Reference] != nil {
			next.StaticFields = append(next.StaticFields, f)
		} else {
			removed.Fields[f.Reference] = true
		}
	}
	return next
}

// nearestLiveAncestor walks the superclass chain starting at t until it
// finds a type still marked live, repairing the super link by hoisting it
// to the nearest surviving ancestor.
func nearestLiveAncestor(t itemfactory.DexType, hierarchy *appinfo.HierarchyIndex, view *enqueuer.LivenessView) (itemfactory.DexType, bool) {
	for _, super := range append([]itemfactory.DexType{t}, hierarchy.Supertypes(t)...) {
		if view.LiveTypes[super] {
			return super, true
		}
	}
	return itemfactory.DexType{}, false
}

// liveInterfaceReplacements finds the live interfaces nearest to iface in
// the hierarchy that must be retained in its place so that method
// resolution against the pruned class still finds the same declarations.
func liveInterfaceReplacements(iface itemfactory.DexType, hierarchy *appinfo.HierarchyIndex, view *enqueuer.LivenessView) ([]itemfactory.DexType, bool) {
	var out []itemfactory.DexType
	for _, super := range hierarchy.Supertypes(iface) {
		if view.LiveTypes[super] {
			out = append(out, super)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor() < out[j].Descriptor() })
	return out, true
}
