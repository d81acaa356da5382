package pruner_test

import (
	"testing"

	"github.com/r8core/r8/internal/appinfo"
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/enqueuer"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/pruner"
)

func TestPruneDropsDeadClassesAndMembers(t *testing.T) {
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	a := f.CreateType("Lcom/example/A;")
	dead := f.CreateType("Lcom/example/Dead;")
	voidProto := f.CreateProto(f.CreateType("V"))
	m1 := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("m1"), voidProto), Holder: a, Access: definitions.AccPublic}
	m2 := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("m2"), voidProto), Holder: a, Access: definitions.AccPublic}
	if err := p.AddClass(&definitions.Class{Type: a, Super: f.Well.Object, HasSuper: true, Kind: definitions.KindProgram, DirectMethods: []*definitions.Method{m1, m2}}); err != nil {
		t.Fatalf("AddClass(A): %v", err)
	}
	if err := p.AddClass(&definitions.Class{Type: dead, Super: f.Well.Object, HasSuper: true, Kind: definitions.KindProgram}); err != nil {
		t.Fatalf("AddClass(Dead): %v", err)
	}

	hierarchy := appinfo.Build(p)
	view := &enqueuer.LivenessView{
		LiveTypes:   map[itemfactory.DexType]bool{a: true, f.Well.Object: true},
		LiveMethods: map[itemfactory.DexMethod]*definitions.Method{m1.Reference: m1},
		LiveFields:  map[itemfactory.DexField]*definitions.Field{},
	}

	result := pruner.Prune(p, hierarchy, view)

	if _, ok := result.Program.DefinitionFor(dead); ok {
		t.Errorf("Dead class survived pruning")
	}
	kept, ok := result.Program.DefinitionFor(a)
	if !ok {
		t.Fatalf("live class A did not survive pruning")
	}
	if kept.LookupMethod(m1.Reference) == nil {
		t.Errorf("live method m1 dropped")
	}
	if kept.LookupMethod(m2.Reference) != nil {
		t.Errorf("dead method m2 survived")
	}
	if !result.Removed.Types[dead] {
		t.Errorf("Removed.Types does not record Dead")
	}
	if !result.Removed.Methods[m2.Reference] {
		t.Errorf("Removed.Methods does not record m2")
	}
}

func TestPruneRepairsDanglingSuperclassLink(t *testing.T) {
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	root := f.Well.Object
	mid := f.CreateType("Lcom/example/Mid;")
	leaf := f.CreateType("Lcom/example/Leaf;")

	if err := p.AddClass(&definitions.Class{Type: mid, Super: root, HasSuper: true, Kind: definitions.KindProgram}); err != nil {
		t.Fatalf("AddClass(Mid): %v", err)
	}
	if err := p.AddClass(&definitions.Class{Type: leaf, Super: mid, HasSuper: true, Kind: definitions.KindProgram}); err != nil {
		t.Fatalf("AddClass(Leaf): %v", err)
	}

	hierarchy := appinfo.Build(p)
	// Mid is not live; Leaf and the platform root are.
	view := &enqueuer.LivenessView{
		LiveTypes:   map[itemfactory.DexType]bool{leaf: true, root: true},
		LiveMethods: map[itemfactory.DexMethod]*definitions.Method{},
		LiveFields:  map[itemfactory.DexField]*definitions.Field{},
	}

	result := pruner.Prune(p, hierarchy, view)

	kept, ok := result.Program.DefinitionFor(leaf)
	if !ok {
		t.Fatalf("live class Leaf did not survive pruning")
	}
	if kept.Super != root {
		t.Errorf("Leaf.Super = %v, want hoisted to %v", kept.Super, root)
	}
}

func TestPruneFaithfulness(t *testing.T) {
	// The pruned program contains a class iff that class's type is live.
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	live := f.CreateType("Lcom/example/Live;")
	dead := f.CreateType("Lcom/example/Dead;")
	if err := p.AddClass(&definitions.Class{Type: live, Super: f.Well.Object, HasSuper: true, Kind: definitions.KindProgram}); err != nil {
		t.Fatalf("AddClass(Live): %v", err)
	}
	if err := p.AddClass(&definitions.Class{Type: dead, Super: f.Well.Object, HasSuper: true, Kind: definitions.KindProgram}); err != nil {
		t.Fatalf("AddClass(Dead): %v", err)
	}

	hierarchy := appinfo.Build(p)
	view := &enqueuer.LivenessView{
		LiveTypes:   map[itemfactory.DexType]bool{live: true, f.Well.Object: true},
		LiveMethods: map[itemfactory.DexMethod]*definitions.Method{},
		LiveFields:  map[itemfactory.DexField]*definitions.Field{},
	}
	result := pruner.Prune(p, hierarchy, view)

	for _, c := range p.Classes() {
		_, survived := result.Program.DefinitionFor(c.Type)
		if survived != view.LiveTypes[c.Type] {
			t.Errorf("class %s survival = %v, want %v", c.Type, survived, view.LiveTypes[c.Type])
		}
	}
}
