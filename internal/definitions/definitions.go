// Package definitions represents class, field, and method definitions: the
// resident body (flags, annotations, code) that belongs to a loaded class,
// as opposed to the bare interned references in package itemfactory. A
// Class's Methods and Fields carry the optimization sidecar and code for
// that class.
package definitions

import (
	"fmt"
	"sort"

	"github.com/r8core/r8/internal/itemfactory"
)

// ClassKind classifies a class definition by where it came from and whether
// the pipeline may rewrite it.
type ClassKind uint8

const (
	// KindProgram classes are subject to optimization and rewriting.
	KindProgram ClassKind = iota
	// Classpath classes are referenced but never rewritten.
	Classpath
	// Library classes are runtime classes, never rewritten.
	Library
)

func (k ClassKind) String() string {
	switch k {
	case KindProgram:
		return "program"
	case Classpath:
		return "classpath"
	case Library:
		return "library"
	default:
		return "unknown"
	}
}

// AccessFlags mirrors the subset of JVM/Dex access and modifier flags the
// pipeline needs to reason about.
type AccessFlags uint32

const (
	AccPublic AccessFlags = 1 << iota
	AccPrivate
	AccProtected
	AccStatic
	AccFinal
	AccSynchronized
	AccBridge
	AccVarargs
	AccNative
	AccInterface
	AccAbstract
	AccStrict
	AccSynthetic
	AccAnnotation
	AccEnum
	AccVolatile
	AccTransient
	AccConstructor
	AccDeclaredSynchronized
)

func (f AccessFlags) Has(bits AccessFlags) bool { return f&bits == bits }
func (f AccessFlags) IsPublic() bool            { return f.Has(AccPublic) }
func (f AccessFlags) IsPrivate() bool           { return f.Has(AccPrivate) }
func (f AccessFlags) IsProtected() bool         { return f.Has(AccProtected) }
func (f AccessFlags) IsPackagePrivate() bool {
	return !f.IsPublic() && !f.IsPrivate() && !f.IsProtected()
}
func (f AccessFlags) IsStatic() bool     { return f.Has(AccStatic) }
func (f AccessFlags) IsFinal() bool      { return f.Has(AccFinal) }
func (f AccessFlags) IsAbstract() bool   { return f.Has(AccAbstract) }
func (f AccessFlags) IsInterface() bool  { return f.Has(AccInterface) }
func (f AccessFlags) IsEnum() bool       { return f.Has(AccEnum) }
func (f AccessFlags) IsAnnotation() bool { return f.Has(AccAnnotation) }
func (f AccessFlags) IsSynthetic() bool  { return f.Has(AccSynthetic) }
func (f AccessFlags) IsNative() bool     { return f.Has(AccNative) }

// AnnotationVisibility mirrors the Dex/JVM annotation retention policy.
type AnnotationVisibility uint8

const (
	VisibilityBuild AnnotationVisibility = iota
	VisibilityRuntime
	VisibilitySystem
)

// AnnotationValueKind tags the shape of an AnnotationValue, following the
// spec's Design Notes preference for tagged variants over capability
// interfaces for this kind of closed, enumerable state.
type AnnotationValueKind uint8

const (
	ValueString AnnotationValueKind = iota
	ValueType
	ValueEnum
	ValueArray
	ValuePrimitive
)

// AnnotationValue is one element value inside an Annotation.
type AnnotationValue struct {
	Kind    AnnotationValueKind
	Type    itemfactory.DexType  // set for ValueType and ValueEnum (the enum's type)
	Field   itemfactory.DexField // set for ValueEnum (the enum constant)
	Literal string               // set for ValueString/ValuePrimitive
	Nested  []AnnotationValue    // set for ValueArray
}

// AnnotationElement is a single name/value pair inside an Annotation.
type AnnotationElement struct {
	Name  string
	Value AnnotationValue
}

// Annotation is a single annotation instance attached to a class, field,
// method, or parameter.
type Annotation struct {
	Type       itemfactory.DexType
	Visibility AnnotationVisibility
	Elements   []AnnotationElement
}

// ReferencedTypes returns every type this annotation (including its nested
// array/enum values) refers to, used by the Enqueuer's annotation-scan
// transition.
func (a Annotation) ReferencedTypes() []itemfactory.DexType {
	types := []itemfactory.DexType{a.Type}
	var walk func(v AnnotationValue)
	walk = func(v AnnotationValue) {
		switch v.Kind {
		case ValueType:
			types = append(types, v.Type)
		case ValueEnum:
			types = append(types, v.Type)
		case ValueArray:
			for _, n := range v.Nested {
				walk(n)
			}
		}
	}
	for _, e := range a.Elements {
		walk(e.Value)
	}
	return types
}

// ReferencedFields returns every field this annotation refers to (enum
// constants), used to set the read-from-annotation flag.
func (a Annotation) ReferencedFields() []itemfactory.DexField {
	var fields []itemfactory.DexField
	var walk func(v AnnotationValue)
	walk = func(v AnnotationValue) {
		switch v.Kind {
		case ValueEnum:
			fields = append(fields, v.Field)
		case ValueArray:
			for _, n := range v.Nested {
				walk(n)
			}
		}
	}
	for _, e := range a.Elements {
		walk(e.Value)
	}
	return fields
}

// OptimizationInfo carries mutable fields populated by passes run between
// Enqueuer rounds. The per-method optimizer itself is out of scope for this
// core; these fields are the contract it writes into.
type OptimizationInfo struct {
	AbstractReturnValue    bool
	NonNullParameterMask   uint64
	NeverReturnsNormally   bool
	ForceInline            bool
	NoSideEffects          bool
}

// Field is a field definition: the resident body of a DexField reference.
type Field struct {
	Reference   itemfactory.DexField
	Holder      itemfactory.DexType
	Access      AccessFlags
	Annotations []Annotation
}

// Method is a method definition: the resident body of a DexMethod
// reference. Code is nil for abstract and native methods.
type Method struct {
	Reference            itemfactory.DexMethod
	Holder               itemfactory.DexType
	Access               AccessFlags
	Annotations          []Annotation
	ParameterAnnotations [][]Annotation
	Code                 *Code
	Opt                  OptimizationInfo
}

func (m *Method) IsStatic() bool   { return m.Access.IsStatic() }
func (m *Method) IsAbstract() bool { return m.Access.IsAbstract() }
func (m *Method) IsInstanceInit() bool {
	return m.Reference.IsInstanceInit()
}
func (m *Method) IsClassInit() bool { return m.Reference.IsClassInit() }

// Class holds everything the program model needs to know about one class.
type Class struct {
	Type       itemfactory.DexType
	Super      itemfactory.DexType // zero Value only for java.lang.Object
	HasSuper   bool
	Interfaces []itemfactory.DexType
	Access     AccessFlags

	DirectMethods  []*Method
	VirtualMethods []*Method
	InstanceFields []*Field
	StaticFields   []*Field

	Annotations []Annotation
	SourceFile  string
	Origin      string
	Kind        ClassKind
}

// AllMethods returns direct and virtual methods together.
func (c *Class) AllMethods() []*Method {
	out := make([]*Method, 0, len(c.DirectMethods)+len(c.VirtualMethods))
	out = append(out, c.DirectMethods...)
	out = append(out, c.VirtualMethods...)
	return out
}

// AllFields returns instance and static fields together.
func (c *Class) AllFields() []*Field {
	out := make([]*Field, 0, len(c.InstanceFields)+len(c.StaticFields))
	out = append(out, c.InstanceFields...)
	out = append(out, c.StaticFields...)
	return out
}

// IsProgramClass reports whether this class may be rewritten by the
// pipeline.
func (c *Class) IsProgramClass() bool { return c.Kind == KindProgram }

// lookupMethod returns the method definition with the given reference among
// the given list, or nil.
func lookupMethod(methods []*Method, ref itemfactory.DexMethod) *Method {
	for _, m := range methods {
		if m.Reference == ref {
			return m
		}
	}
	return nil
}

// LookupDirectMethod finds a direct (static or private/constructor) method
// by reference.
func (c *Class) LookupDirectMethod(ref itemfactory.DexMethod) *Method {
	return lookupMethod(c.DirectMethods, ref)
}

// LookupVirtualMethod finds a virtual method by reference.
func (c *Class) LookupVirtualMethod(ref itemfactory.DexMethod) *Method {
	return lookupMethod(c.VirtualMethods, ref)
}

// LookupMethod finds any method (direct or virtual) declared directly on
// this class by reference.
func (c *Class) LookupMethod(ref itemfactory.DexMethod) *Method {
	if m := c.LookupDirectMethod(ref); m != nil {
		return m
	}
	return c.LookupVirtualMethod(ref)
}

// LookupField finds a field (instance or static) declared directly on this
// class by reference.
func (c *Class) LookupField(ref itemfactory.DexField) *Field {
	for _, f := range c.InstanceFields {
		if f.Reference == ref {
			return f
		}
	}
	for _, f := range c.StaticFields {
		if f.Reference == ref {
			return f
		}
	}
	return nil
}

// validate checks the class-level invariants: no self-inheritance, no
// duplicate members, and every contained member declares this class as its
// holder.
func (c *Class) validate() error {
	if c.HasSuper && c.Super == c.Type {
		return fmt.Errorf("class %s is its own supertype", c.Type)
	}
	for _, iface := range c.Interfaces {
		if iface == c.Type {
			return fmt.Errorf("class %s implements itself", c.Type)
		}
	}
	seenMethods := make(map[itemfactory.DexMethod]bool)
	for _, m := range c.AllMethods() {
		if m.Holder != c.Type {
			return fmt.Errorf("method %s declares holder %s, want %s", m.Reference, m.Holder, c.Type)
		}
		if seenMethods[m.Reference] {
			return fmt.Errorf("duplicate method %s in class %s", m.Reference, c.Type)
		}
		seenMethods[m.Reference] = true
	}
	seenFields := make(map[itemfactory.DexField]bool)
	for _, f := range c.AllFields() {
		if f.Holder != c.Type {
			return fmt.Errorf("field %s declares holder %s, want %s", f.Reference, f.Holder, c.Type)
		}
		if seenFields[f.Reference] {
			return fmt.Errorf("duplicate field %s in class %s", f.Reference, c.Type)
		}
		seenFields[f.Reference] = true
	}
	return nil
}

// Program is the whole-program definition set: every class known to the
// compilation, program/classpath/library alike.
type Program struct {
	factory *itemfactory.Factory
	classes map[itemfactory.DexType]*Class
	// services maps a service-interface type to its ordered implementation
	// list, read once from the services/ resource directory.
	services map[itemfactory.DexType][]ServiceImpl
}

// ServiceImpl names one ServiceLoader implementation for a service
// interface, tagged with the feature split (if any) it ships in.
type ServiceImpl struct {
	Type    itemfactory.DexType
	Feature string // "" for the base module.
}

// NewProgram creates an empty program definition set backed by factory.
func NewProgram(factory *itemfactory.Factory) *Program {
	return &Program{
		factory:  factory,
		classes:  make(map[itemfactory.DexType]*Class),
		services: make(map[itemfactory.DexType][]ServiceImpl),
	}
}

// Factory returns the item factory backing this program.
func (p *Program) Factory() *itemfactory.Factory { return p.factory }

// AddClass inserts c into the program, validating the class-level
// invariants. Returns an error (without mutating the program) if c fails
// validation or a class with the same type was already added.
func (p *Program) AddClass(c *Class) error {
	if err := c.validate(); err != nil {
		return err
	}
	if _, exists := p.classes[c.Type]; exists {
		return fmt.Errorf("class %s already exists in the program", c.Type)
	}
	p.classes[c.Type] = c
	return nil
}

// DefinitionFor returns the class definition for t, uniformly across
// program/classpath/library classes, or (nil, false) if t has no known
// definition (a "missing class").
func (p *Program) DefinitionFor(t itemfactory.DexType) (*Class, bool) {
	c, ok := p.classes[t]
	return c, ok
}

// RemoveClass deletes the class for t from the program. Used by the tree
// pruner once a class is known to be dead.
func (p *Program) RemoveClass(t itemfactory.DexType) {
	delete(p.classes, t)
}

// Classes returns every class in the program, sorted by type descriptor for
// reproducible iteration order.
func (p *Program) Classes() []*Class {
	out := make([]*Class, 0, len(p.classes))
	for _, c := range p.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Type.Descriptor() < out[j].Type.Descriptor()
	})
	return out
}

// ProgramClasses returns every class with Kind == KindProgram, sorted by type
// descriptor.
func (p *Program) ProgramClasses() []*Class {
	all := p.Classes()
	out := all[:0:0]
	for _, c := range all {
		if c.IsProgramClass() {
			out = append(out, c)
		}
	}
	return out
}

// SetServiceImplementations registers the ordered implementation list for a
// service interface type, as read from a services/<interface> resource
// entry.
func (p *Program) SetServiceImplementations(iface itemfactory.DexType, impls []ServiceImpl) {
	p.services[iface] = impls
}

// ServiceImplementations returns the ordered implementation list registered
// for a service interface, or nil.
func (p *Program) ServiceImplementations(iface itemfactory.DexType) []ServiceImpl {
	return p.services[iface]
}

// PrunedCopyFrom rebuilds the service map to drop any implementation whose
// type is marked in removed. This is the services-specific half
// of the tree pruner's "prune every auxiliary map" step.
func (p *Program) PrunedCopyFrom(removed map[itemfactory.DexType]bool) {
	for iface, impls := range p.services {
		kept := impls[:0:0]
		for _, impl := range impls {
			if !removed[impl.Type] {
				kept = append(kept, impl)
			}
		}
		p.services[iface] = kept
	}
}
