// Package minifier computes the renaming lens: a short, unique identifier
// for every non-pinned class, field, and method, honoring the constraint
// that a method's name must be identical along every override chain and
// across every interface-implementation pair.
//
// Equivalence classes of methods that must share one name are computed with
// a union-find structure built over an auxiliary graph of override and
// interface-implementation edges. Name generation walks the ordered
// alphabet ("a".."z", "aa".."az", ...).
package minifier

import (
	"fmt"
	"sort"
	"strings"

	"github.com/r8core/r8/internal/appinfo"
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/lens"
	"github.com/r8core/r8/internal/rootset"
)

// Scheme selects the class-name renaming policy.
type Scheme uint8

const (
	// SchemePerPackage keeps each renamed class in its original package,
	// with locally-unique new names.
	SchemePerPackage Scheme = iota
	// SchemeFlatten moves every renamed class into one synthetic package,
	// requiring names unique across the whole program.
	SchemeFlatten
	// SchemeRepackageAll moves every renamed class into a single
	// caller-designated target package.
	SchemeRepackageAll
)

// Config controls one minifier run.
type Config struct {
	Scheme Scheme
	// TargetPackage is the destination package for SchemeFlatten (default
	// "" if unset) and SchemeRepackageAll (required).
	TargetPackage string
}

// ConflictError reports two applyMapping entries that assign different
// original references to the same new name inside one namespace, which
// aborts the minifier run.
type ConflictError struct {
	Namespace string
	NewName   string
	Original1 string
	Original2 string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("applymapping conflict in %s namespace: %q and %q both map to %q", e.Namespace, e.Original1, e.Original2, e.NewName)
}

// Minifier computes a renaming Lens over a pruned program.
type Minifier struct {
	program   *definitions.Program
	hierarchy *appinfo.HierarchyIndex
	root      *rootset.RootSet
	cfg       Config
	previous  lens.Lens
}

// New creates a Minifier over program (expected to already be the
// tree-pruned live subset), consulting root for pinned/no-obfuscation
// attributes and any externally supplied applyMapping seed, chaining the
// resulting lens on top of previous.
func New(program *definitions.Program, hierarchy *appinfo.HierarchyIndex, root *rootset.RootSet, cfg Config, previous lens.Lens) *Minifier {
	return &Minifier{program: program, hierarchy: hierarchy, root: root, cfg: cfg, previous: previous}
}

// Compute runs the algorithm and returns the resulting lens plus the
// proguard-style mapping artifact.
func (m *Minifier) Compute() (lens.Lens, *Mapping, error) {
	pinned := m.pinnedSet()
	builder := lens.NewBuilder(m.previous, pinned, true)
	mapping := &Mapping{}

	if err := m.renameClasses(builder, mapping); err != nil {
		return nil, nil, err
	}
	if err := m.renameMembers(builder, mapping); err != nil {
		return nil, nil, err
	}
	return builder.Build(), mapping, nil
}

// pinnedSet merges the root set's pinned types/methods/fields into one map
// keyed by the reference values themselves, matching lens.Builder's pinned
// contract.
func (m *Minifier) pinnedSet() map[interface{}]bool {
	out := make(map[interface{}]bool)
	for t := range m.root.Pinned {
		out[t] = true
	}
	for ref := range m.root.PinnedMethods {
		out[ref] = true
	}
	for ref := range m.root.PinnedFields {
		out[ref] = true
	}
	return out
}

// --- Class renaming. ---

func (m *Minifier) renameClasses(b *lens.Builder, mapping *Mapping) error {
	reservedByPackage := make(map[string]map[string]bool)
	assignedName := make(map[itemfactory.DexType]string) // new simple name, keyed by original type

	// classpath/library classes and applyMapping-seeded classes reserve
	// their names first so program classes never collide with them.
	for _, c := range m.program.Classes() {
		if c.IsProgramClass() {
			continue
		}
		pkg := m.targetPackage(c.Type)
		reserve(reservedByPackage, pkg, simpleName(c.Type))
	}

	seenMapping := make(map[string]map[string]itemfactory.DexType) // package -> newName -> original
	for orig, newName := range m.root.ApplyMapping {
		if b.IsPinned(orig) || m.root.NoObfuscation[orig] {
			continue
		}
		pkg := m.targetPackage(orig)
		if seenMapping[pkg] == nil {
			seenMapping[pkg] = make(map[string]itemfactory.DexType)
		}
		if other, ok := seenMapping[pkg][newName]; ok && other != orig {
			return &ConflictError{Namespace: "class", NewName: newName, Original1: typeSourceName(other), Original2: typeSourceName(orig)}
		}
		seenMapping[pkg][newName] = orig
		reserve(reservedByPackage, pkg, newName)
		assignedName[orig] = newName
	}

	for _, c := range m.program.ProgramClasses() {
		if b.IsPinned(c.Type) || m.root.NoObfuscation[c.Type] {
			continue
		}
		if _, already := assignedName[c.Type]; already {
			continue
		}
		pkg := m.targetPackage(c.Type)
		gen := newAlphabetGenerator()
		name := gen.nextAvailable(reservedByPackage[pkg])
		reserve(reservedByPackage, pkg, name)
		assignedName[c.Type] = name
	}

	for orig, name := range assignedName {
		pkg := m.targetPackage(orig)
		descriptor := "L" + name
		if pkg != "" {
			descriptor = "L" + pkg + "/" + name
		}
		descriptor += ";"
		renamed := m.program.Factory().CreateType(descriptor)
		if renamed == orig {
			continue
		}
		b.RenameType(orig, renamed)
		cm := ClassMapping{OriginalClass: typeSourceName(orig), NewClass: typeSourceName(renamed)}
		if c, ok := m.program.DefinitionFor(orig); ok && c.Origin == "lambda-desugaring" {
			cm.Synthetic = "lambda expression"
		}
		mapping.Classes = append(mapping.Classes, cm)
	}
	return nil
}

// targetPackage returns the package a renamed reference to t belongs in,
// under the configured scheme.
func (m *Minifier) targetPackage(t itemfactory.DexType) string {
	switch m.cfg.Scheme {
	case SchemeFlatten:
		return m.cfg.TargetPackage
	case SchemeRepackageAll:
		return m.cfg.TargetPackage
	default:
		return t.PackageName()
	}
}

func simpleName(t itemfactory.DexType) string {
	bn := t.BinaryName()
	if idx := strings.LastIndexByte(bn, '/'); idx != -1 {
		return bn[idx+1:]
	}
	return bn
}

func reserve[K comparable](byKey map[K]map[string]bool, key K, name string) {
	if byKey[key] == nil {
		byKey[key] = make(map[string]bool)
	}
	byKey[key][name] = true
}

// --- Member renaming. ---

func (m *Minifier) renameMembers(b *lens.Builder, mapping *Mapping) error {
	groups := m.methodEquivalenceClasses()

	byClass := make(map[itemfactory.DexType]*ClassMapping)
	classMappingFor := func(t itemfactory.DexType) *ClassMapping {
		if cm, ok := byClass[t]; ok {
			return cm
		}
		cm := &ClassMapping{OriginalClass: typeSourceName(t), NewClass: typeSourceName(t)}
		byClass[t] = cm
		return cm
	}

	reservedByHolder := make(map[itemfactory.DexType]map[string]bool)
	for _, c := range m.program.Classes() {
		for _, mm := range c.AllMethods() {
			if b.IsPinned(mm.Reference) || m.root.NoObfuscation[mm.Reference] || !c.IsProgramClass() {
				reserve(reservedByHolder, mm.Holder, mm.Reference.Name().String())
			}
		}
	}

	for _, group := range groups {
		holders := make(map[itemfactory.DexType]bool)
		forced := ""
		for _, mm := range group {
			holders[mm.Holder] = true
			if b.IsPinned(mm.Reference) || m.root.NoObfuscation[mm.Reference] || !m.isProgramHolder(mm.Holder) {
				forced = mm.Reference.Name().String()
			}
		}
		name := forced
		if name == "" {
			reserved := make(map[string]bool)
			for h := range holders {
				for n := range reservedByHolder[h] {
					reserved[n] = true
				}
			}
			gen := newAlphabetGenerator()
			name = gen.nextAvailable(reserved)
		}
		for h := range holders {
			reserve(reservedByHolder, h, name)
		}
		for _, mm := range group {
			if name == mm.Reference.Name().String() {
				continue
			}
			renamedRef := m.program.Factory().CreateMethod(mm.Holder, m.program.Factory().CreateString(name), mm.Reference.Proto())
			b.RenameMethod(mm.Reference, renamedRef)
			cm := classMappingFor(mm.Holder)
			cm.Members = append(cm.Members, methodMemberMapping(mm, name))
		}
	}

	for _, c := range m.program.ProgramClasses() {
		reserved := make(map[string]bool)
		for n := range reservedByHolder[c.Type] {
			reserved[n] = true
		}
		gen := newAlphabetGenerator()
		for _, f := range c.AllFields() {
			if b.IsPinned(f.Reference) || m.root.NoObfuscation[f.Reference] {
				reserved[f.Reference.Name().String()] = true
				continue
			}
			name := gen.nextAvailable(reserved)
			reserved[name] = true
			renamedRef := m.program.Factory().CreateField(f.Holder, m.program.Factory().CreateString(name), f.Reference.Type())
			b.RenameField(f.Reference, renamedRef)
			cm := classMappingFor(f.Holder)
			cm.Members = append(cm.Members, MemberMapping{OriginalName: f.Reference.Name().String(), NewName: name})
		}
	}

	for _, cm := range byClass {
		if len(cm.Members) > 0 {
			mapping.Classes = append(mapping.Classes, *cm)
		}
	}
	return nil
}

func methodMemberMapping(mm *definitions.Method, newName string) MemberMapping {
	params := make([]string, 0, len(mm.Reference.Proto().Parameters()))
	for _, p := range mm.Reference.Proto().Parameters() {
		params = append(params, typeSourceName(p))
	}
	return MemberMapping{
		OriginalReturn: typeSourceName(mm.Reference.Proto().ReturnType()),
		OriginalName:   mm.Reference.Name().String(),
		OriginalParams: params,
		NewName:        newName,
	}
}

func (m *Minifier) isProgramHolder(t itemfactory.DexType) bool {
	c, ok := m.program.DefinitionFor(t)
	return ok && c.IsProgramClass()
}

// methodEquivalenceClasses computes the connected components of the
// "overrides or co-implements" relation over every method in the program,
// via a union-find joined along direct superclass/interface edges (the
// transitive closure handles longer override chains and interface
// diamonds without needing to special-case them).
func (m *Minifier) methodEquivalenceClasses() [][]*definitions.Method {
	uf := newUnionFind()
	byRef := make(map[itemfactory.DexMethod]*definitions.Method)

	for _, c := range m.program.Classes() {
		for _, mm := range c.VirtualMethods {
			uf.find(mm.Reference)
			byRef[mm.Reference] = mm
		}
	}
	for _, c := range m.program.Classes() {
		var supers []itemfactory.DexType
		if c.HasSuper {
			supers = append(supers, c.Super)
		}
		supers = append(supers, c.Interfaces...)
		for _, mm := range c.VirtualMethods {
			for _, super := range supers {
				sc, ok := m.program.DefinitionFor(super)
				if !ok {
					continue
				}
				if sm := lookupBySignature(sc, mm.Reference); sm != nil {
					uf.union(mm.Reference, sm.Reference)
				}
			}
		}
	}

	groups := make(map[itemfactory.DexMethod][]*definitions.Method)
	for ref, mm := range byRef {
		root := uf.find(ref)
		groups[root] = append(groups[root], mm)
	}
	out := make([][]*definitions.Method, 0, len(groups))
	for _, g := range groups {
		sort.Slice(g, func(i, j int) bool { return g[i].Reference.String() < g[j].Reference.String() })
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0].Reference.String() < out[j][0].Reference.String() })
	return out
}

// lookupBySignature finds a method on c matching ref's name and prototype,
// regardless of holder (used to detect an override/co-implement edge
// across a class boundary).
func lookupBySignature(c *definitions.Class, ref itemfactory.DexMethod) *definitions.Method {
	for _, mm := range c.AllMethods() {
		if mm.Reference.Name() == ref.Name() && mm.Reference.Proto() == ref.Proto() {
			return mm
		}
	}
	return nil
}
