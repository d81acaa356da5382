package minifier_test

import (
	"testing"

	"github.com/r8core/r8/internal/appinfo"
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/lens"
	"github.com/r8core/r8/internal/minifier"
	"github.com/r8core/r8/internal/rootset"
)

func TestMinifierRenamesOverridePairToTheSameName(t *testing.T) {
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	voidProto := f.CreateProto(f.CreateType("V"))

	base := f.CreateType("Lcom/example/P;")
	sub := f.CreateType("Lcom/example/Q;")
	baseFoo := &definitions.Method{Reference: f.CreateMethod(base, f.CreateString("foo"), voidProto), Holder: base, Access: definitions.AccPublic}
	subFoo := &definitions.Method{Reference: f.CreateMethod(sub, f.CreateString("foo"), voidProto), Holder: sub, Access: definitions.AccPublic}

	if err := p.AddClass(&definitions.Class{Type: base, Super: f.Well.Object, HasSuper: true, Kind: definitions.KindProgram, VirtualMethods: []*definitions.Method{baseFoo}}); err != nil {
		t.Fatalf("AddClass(P): %v", err)
	}
	if err := p.AddClass(&definitions.Class{Type: sub, Super: base, HasSuper: true, Kind: definitions.KindProgram, VirtualMethods: []*definitions.Method{subFoo}}); err != nil {
		t.Fatalf("AddClass(Q): %v", err)
	}

	hierarchy := appinfo.Build(p)
	root := rootset.New()
	m := minifier.New(p, hierarchy, root, minifier.Config{}, lens.Identity)
	l, _, err := m.Compute()
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	gotBase, _ := l.LookupMethod(baseFoo.Reference, lens.MethodLookupContext{}, lens.InvokeVirtual)
	gotSub, _ := l.LookupMethod(subFoo.Reference, lens.MethodLookupContext{}, lens.InvokeVirtual)
	if gotBase.Name() != gotSub.Name() {
		t.Errorf("override pair renamed inconsistently: %s vs %s", gotBase.Name(), gotSub.Name())
	}
}

func TestMinifierNeverRenamesAPinnedMethod(t *testing.T) {
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	voidProto := f.CreateProto(f.CreateType("V"))
	a := f.CreateType("Lcom/example/A;")
	keep := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("main"), voidProto), Holder: a, Access: definitions.AccPublic}
	if err := p.AddClass(&definitions.Class{Type: a, Super: f.Well.Object, HasSuper: true, Kind: definitions.KindProgram, VirtualMethods: []*definitions.Method{keep}}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}

	hierarchy := appinfo.Build(p)
	root := rootset.New()
	root.PinnedMethods[keep.Reference] = true

	m := minifier.New(p, hierarchy, root, minifier.Config{}, lens.Identity)
	l, _, err := m.Compute()
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	got, _ := l.LookupMethod(keep.Reference, lens.MethodLookupContext{}, lens.InvokeVirtual)
	if got != keep.Reference {
		t.Errorf("pinned method renamed: got %v, want unchanged %v", got, keep.Reference)
	}
}

func TestMinifierAssignsFreshUniqueClassNames(t *testing.T) {
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	a := f.CreateType("Lcom/example/A;")
	bType := f.CreateType("Lcom/example/B;")
	if err := p.AddClass(&definitions.Class{Type: a, Super: f.Well.Object, HasSuper: true, Kind: definitions.KindProgram}); err != nil {
		t.Fatalf("AddClass(A): %v", err)
	}
	if err := p.AddClass(&definitions.Class{Type: bType, Super: f.Well.Object, HasSuper: true, Kind: definitions.KindProgram}); err != nil {
		t.Fatalf("AddClass(B): %v", err)
	}

	hierarchy := appinfo.Build(p)
	root := rootset.New()
	m := minifier.New(p, hierarchy, root, minifier.Config{}, lens.Identity)
	l, mapping, err := m.Compute()
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}

	renamedA := l.LookupType(a)
	renamedB := l.LookupType(bType)
	if renamedA == a || renamedB == bType {
		t.Errorf("expected both classes renamed, got %v and %v", renamedA, renamedB)
	}
	if renamedA == renamedB {
		t.Errorf("expected distinct new names, both got %v", renamedA)
	}
	if len(mapping.Classes) != 2 {
		t.Errorf("expected 2 mapping entries, got %d", len(mapping.Classes))
	}
}

func TestMinifierApplyMappingConflictAborts(t *testing.T) {
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	a := f.CreateType("Lcom/example/A;")
	bType := f.CreateType("Lcom/example/B;")
	for _, ty := range []itemfactory.DexType{a, bType} {
		if err := p.AddClass(&definitions.Class{Type: ty, Super: f.Well.Object, HasSuper: true, Kind: definitions.KindProgram}); err != nil {
			t.Fatalf("AddClass: %v", err)
		}
	}

	hierarchy := appinfo.Build(p)
	root := rootset.New()
	root.ApplyMapping[a] = "x"
	root.ApplyMapping[bType] = "x"

	m := minifier.New(p, hierarchy, root, minifier.Config{}, lens.Identity)
	_, _, err := m.Compute()
	if err == nil {
		t.Fatalf("expected a rule-conflict error, got nil")
	}
	if _, ok := err.(*minifier.ConflictError); !ok {
		t.Errorf("expected *minifier.ConflictError, got %T: %v", err, err)
	}
}
