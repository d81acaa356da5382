package appinfo

import (
	"testing"

	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
)

type fixture struct {
	f *itemfactory.Factory
	p *definitions.Program
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := itemfactory.New()
	return &fixture{f: f, p: definitions.NewProgram(f)}
}

func (fx *fixture) addClass(t *testing.T, c *definitions.Class) {
	t.Helper()
	if err := fx.p.AddClass(c); err != nil {
		t.Fatalf("AddClass(%s): %v", c.Type, err)
	}
}

func (fx *fixture) method(holder itemfactory.DexType, name string, abstract bool) *definitions.Method {
	proto := fx.f.CreateProto(fx.f.CreateType("V"))
	ref := fx.f.CreateMethod(holder, fx.f.CreateString(name), proto)
	access := definitions.AccessFlags(definitions.AccPublic)
	if abstract {
		access |= definitions.AccAbstract
	}
	return &definitions.Method{Reference: ref, Holder: holder, Access: access}
}

func TestResolveMethod_DirectDeclaration(t *testing.T) {
	fx := newFixture(t)
	foo := fx.f.CreateType("Lcom/example/Foo;")
	m := fx.method(foo, "run", false)
	fx.addClass(t, &definitions.Class{Type: foo, Super: fx.f.Well.Object, HasSuper: true, VirtualMethods: []*definitions.Method{m}})

	r := NewResolver(fx.p, Build(fx.p))
	res := r.ResolveMethod(foo, m.Reference)
	if res.Kind != ResolvedSingle || res.Single != m {
		t.Fatalf("ResolveMethod = %+v, want single %v", res, m)
	}
}

func TestResolveMethod_InheritedFromSuperclass(t *testing.T) {
	fx := newFixture(t)
	base := fx.f.CreateType("Lcom/example/Base;")
	derived := fx.f.CreateType("Lcom/example/Derived;")
	m := fx.method(base, "run", false)
	fx.addClass(t, &definitions.Class{Type: base, Super: fx.f.Well.Object, HasSuper: true, VirtualMethods: []*definitions.Method{m}})
	fx.addClass(t, &definitions.Class{Type: derived, Super: base, HasSuper: true})

	r := NewResolver(fx.p, Build(fx.p))
	res := r.ResolveMethod(derived, m.Reference)
	if res.Kind != ResolvedSingle || res.Single != m {
		t.Fatalf("ResolveMethod = %+v, want inherited single %v", res, m)
	}
}

func TestResolveMethod_DiamondDefaultUnambiguous(t *testing.T) {
	fx := newFixture(t)
	base := fx.f.CreateType("Lcom/example/IBase;")
	derivedIface := fx.f.CreateType("Lcom/example/IDerived;")
	impl := fx.f.CreateType("Lcom/example/Impl;")

	baseDefault := fx.method(base, "greet", false)
	derivedDefault := fx.method(derivedIface, "greet", false)

	baseAccess := definitions.AccessFlags(definitions.AccPublic | definitions.AccInterface | definitions.AccAbstract)
	fx.addClass(t, &definitions.Class{Type: base, Access: baseAccess, VirtualMethods: []*definitions.Method{baseDefault}})
	fx.addClass(t, &definitions.Class{Type: derivedIface, Access: baseAccess, Interfaces: []itemfactory.DexType{base}, VirtualMethods: []*definitions.Method{derivedDefault}})
	fx.addClass(t, &definitions.Class{Type: impl, Super: fx.f.Well.Object, HasSuper: true, Interfaces: []itemfactory.DexType{derivedIface}})

	r := NewResolver(fx.p, Build(fx.p))
	res := r.ResolveMethod(impl, baseDefault.Reference)
	if res.Kind != ResolvedSingle {
		t.Fatalf("ResolveMethod = %+v, want a single unambiguous winner (the more specific interface's default)", res)
	}
	if res.Single.Holder != derivedIface {
		t.Errorf("resolved to holder %s, want the more specific interface %s", res.Single.Holder, derivedIface)
	}
}

func TestResolveMethod_DiamondDefaultAmbiguous(t *testing.T) {
	fx := newFixture(t)
	ifaceA := fx.f.CreateType("Lcom/example/IA;")
	ifaceB := fx.f.CreateType("Lcom/example/IB;")
	impl := fx.f.CreateType("Lcom/example/Impl;")

	defaultA := fx.method(ifaceA, "greet", false)
	defaultB := fx.method(ifaceB, "greet", false)

	ifaceAccess := definitions.AccessFlags(definitions.AccPublic | definitions.AccInterface | definitions.AccAbstract)
	fx.addClass(t, &definitions.Class{Type: ifaceA, Access: ifaceAccess, VirtualMethods: []*definitions.Method{defaultA}})
	fx.addClass(t, &definitions.Class{Type: ifaceB, Access: ifaceAccess, VirtualMethods: []*definitions.Method{defaultB}})
	fx.addClass(t, &definitions.Class{Type: impl, Super: fx.f.Well.Object, HasSuper: true, Interfaces: []itemfactory.DexType{ifaceA, ifaceB}})

	r := NewResolver(fx.p, Build(fx.p))
	res := r.ResolveMethod(impl, defaultA.Reference)
	if res.Kind != ResolvedAmbiguous {
		t.Fatalf("ResolveMethod = %+v, want ResolvedAmbiguous for an unrelated-interface diamond", res)
	}
	if len(res.Candidates) != 2 {
		t.Errorf("got %d candidates, want 2", len(res.Candidates))
	}
}

func TestResolveField_ShadowingPrefersNearestSuperclass(t *testing.T) {
	fx := newFixture(t)
	base := fx.f.CreateType("Lcom/example/Base;")
	derived := fx.f.CreateType("Lcom/example/Derived;")
	intType := fx.f.CreateType("I")
	name := fx.f.CreateString("x")

	baseRef := fx.f.CreateField(base, name, intType)
	baseField := &definitions.Field{Reference: baseRef, Holder: base}
	fx.addClass(t, &definitions.Class{Type: base, Super: fx.f.Well.Object, HasSuper: true, InstanceFields: []*definitions.Field{baseField}})
	fx.addClass(t, &definitions.Class{Type: derived, Super: base, HasSuper: true})

	r := NewResolver(fx.p, Build(fx.p))
	res := r.ResolveField(derived, baseRef)
	if res.Kind != ResolvedSingle || res.Single != baseField {
		t.Fatalf("ResolveField = %+v, want inherited base field", res)
	}
}

func TestResolveMethod_MissingReturnsResolvedNone(t *testing.T) {
	fx := newFixture(t)
	foo := fx.f.CreateType("Lcom/example/Foo;")
	fx.addClass(t, &definitions.Class{Type: foo, Super: fx.f.Well.Object, HasSuper: true})
	ghost := fx.method(foo, "ghost", false).Reference

	r := NewResolver(fx.p, Build(fx.p))
	res := r.ResolveMethod(foo, ghost)
	if res.Kind != ResolvedNone {
		t.Fatalf("ResolveMethod = %+v, want ResolvedNone", res)
	}
}

func TestLookupVirtualDispatchTargets_CollectsOverrides(t *testing.T) {
	fx := newFixture(t)
	base := fx.f.CreateType("Lcom/example/Base;")
	childA := fx.f.CreateType("Lcom/example/ChildA;")
	childB := fx.f.CreateType("Lcom/example/ChildB;")

	baseMethod := fx.method(base, "run", false)
	overrideA := fx.method(childA, "run", false)

	fx.addClass(t, &definitions.Class{Type: base, Super: fx.f.Well.Object, HasSuper: true, VirtualMethods: []*definitions.Method{baseMethod}})
	fx.addClass(t, &definitions.Class{Type: childA, Super: base, HasSuper: true, VirtualMethods: []*definitions.Method{overrideA}})
	fx.addClass(t, &definitions.Class{Type: childB, Super: base, HasSuper: true})

	r := NewResolver(fx.p, Build(fx.p))
	targets := r.LookupVirtualDispatchTargets(baseMethod.Reference, []itemfactory.DexType{base, childA, childB})
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2 (base's own method plus childA's override; childB inherits base's)", len(targets))
	}
	holders := map[itemfactory.DexType]bool{}
	for _, m := range targets {
		holders[m.Holder] = true
	}
	if !holders[base] || !holders[childA] {
		t.Errorf("targets = %v, want holders {base, childA}", targets)
	}
}

func TestHierarchyIndex_AllSubtypes(t *testing.T) {
	fx := newFixture(t)
	base := fx.f.CreateType("Lcom/example/Base;")
	childA := fx.f.CreateType("Lcom/example/ChildA;")
	grandchild := fx.f.CreateType("Lcom/example/Grandchild;")
	fx.addClass(t, &definitions.Class{Type: base, Super: fx.f.Well.Object, HasSuper: true})
	fx.addClass(t, &definitions.Class{Type: childA, Super: base, HasSuper: true})
	fx.addClass(t, &definitions.Class{Type: grandchild, Super: childA, HasSuper: true})

	idx := Build(fx.p)
	subs := idx.AllSubtypes(base)
	if len(subs) != 3 {
		t.Fatalf("AllSubtypes(base) = %v, want 3 entries (base, childA, grandchild)", subs)
	}
}
