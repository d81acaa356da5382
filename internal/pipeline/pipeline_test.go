package pipeline_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/errorlist"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/options"
	"github.com/r8core/r8/internal/pipeline"
	"github.com/r8core/r8/internal/reader"
)

func noFileAccess(path string) (string, error) {
	return "", fmt.Errorf("unexpected file read: %s", path)
}

func TestRunEliminatesDeadMethodsAndMinifies(t *testing.T) {
	f := itemfactory.New()
	a := f.CreateType("Lcom/example/A;")
	voidProto := f.CreateProto(f.CreateType("V"))
	kept := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("keepMe"), voidProto), Holder: a, Access: definitions.AccPublic, Code: &definitions.Code{}}
	dead := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("deadMethod"), voidProto), Holder: a, Access: definitions.AccPublic, Code: &definitions.Code{}}
	class := &definitions.Class{Type: a, Super: f.Well.Object, HasSuper: true, DirectMethods: []*definitions.Method{kept, dead}}

	in := &reader.InMemory{ProgramClasses: []*definitions.Class{class}}
	opts := options.Default()

	diags := &errorlist.Bag{}
	result, err := pipeline.Run(context.Background(), opts, f, in, []pipeline.RuleSource{
		{Inline: `-keep class com.example.A { void keepMe(); }`},
	}, noFileAccess, diags)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diags.HasFatal() {
		t.Fatalf("unexpected fatal diagnostics: %+v", diags.Diagnostics())
	}

	got, ok := result.Program.DefinitionFor(a)
	if !ok {
		t.Fatalf("class A was pruned entirely")
	}
	if len(got.DirectMethods) != 1 || got.DirectMethods[0].Reference.Name().String() != "keepMe" {
		t.Errorf("DirectMethods = %+v, want only keepMe", got.DirectMethods)
	}

	if result.Mapping == nil {
		t.Fatalf("expected a mapping artifact from minification")
	}
}

func TestRunHonorsDontObfuscateFromRules(t *testing.T) {
	f := itemfactory.New()
	a := f.CreateType("Lcom/example/A;")
	class := &definitions.Class{Type: a, Super: f.Well.Object, HasSuper: true}
	in := &reader.InMemory{ProgramClasses: []*definitions.Class{class}}

	diags := &errorlist.Bag{}
	result, err := pipeline.Run(context.Background(), options.Default(), f, in, []pipeline.RuleSource{
		{Inline: "-keep class com.example.A\n-dontobfuscate"},
	}, noFileAccess, diags)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Mapping != nil {
		t.Errorf("expected no mapping artifact when -dontobfuscate is set")
	}
	newType := result.Lens.LookupType(a)
	if newType != a {
		t.Errorf("LookupType(A) = %v, want unchanged %v", newType, a)
	}
}

func TestRunDiscoversServiceImplementationsThroughSharedFactory(t *testing.T) {
	f := itemfactory.New()
	object := f.Well.Object
	voidProto := f.CreateProto(f.CreateType("V"))

	iface := f.CreateType("Lcom/example/Service;")
	ifaceClass := &definitions.Class{Type: iface, Access: definitions.AccInterface | definitions.AccPublic}

	impl := f.CreateType("Lcom/example/Impl;")
	implClass := &definitions.Class{Type: impl, Super: object, HasSuper: true, Interfaces: []itemfactory.DexType{iface}}

	runner := f.CreateType("Lcom/example/Runner;")
	lookup := &definitions.Method{
		Reference: f.CreateMethod(runner, f.CreateString("lookup"), voidProto),
		Holder:    runner,
		Access:    definitions.AccPublic,
		Code: &definitions.Code{
			Instructions: []definitions.Instruction{{Kind: definitions.ConstClass, Type: iface}},
		},
	}
	runnerClass := &definitions.Class{Type: runner, Super: object, HasSuper: true, DirectMethods: []*definitions.Method{lookup}}

	in := &reader.InMemory{
		ProgramClasses: []*definitions.Class{runnerClass, ifaceClass, implClass},
		DataEntries: []reader.DataEntry{
			{Name: "META-INF/services/com.example.Service", Data: []byte("com.example.Impl\n")},
		},
	}

	diags := &errorlist.Bag{}
	result, err := pipeline.Run(context.Background(), options.Default(), f, in, []pipeline.RuleSource{
		{Inline: "-keep class com.example.Runner"},
	}, noFileAccess, diags)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diags.HasFatal() {
		t.Fatalf("unexpected fatal diagnostics: %+v", diags.Diagnostics())
	}

	if _, ok := result.Program.DefinitionFor(impl); !ok {
		t.Errorf("Impl was pruned; service discovery should have kept it live via the shared factory's Service interface type")
	}
}

func TestRunFailsCheckDiscardWhenTargetSurvives(t *testing.T) {
	f := itemfactory.New()
	a := f.CreateType("Lcom/example/A;")
	voidProto := f.CreateProto(f.CreateType("V"))
	survivor := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("survivor"), voidProto), Holder: a, Access: definitions.AccPublic, Code: &definitions.Code{}}
	class := &definitions.Class{Type: a, Super: f.Well.Object, HasSuper: true, DirectMethods: []*definitions.Method{survivor}}

	in := &reader.InMemory{ProgramClasses: []*definitions.Class{class}}

	diags := &errorlist.Bag{}
	_, err := pipeline.Run(context.Background(), options.Default(), f, in, []pipeline.RuleSource{
		{Inline: "-keep class com.example.A { void survivor(); }\n-checkdiscard class com.example.A { void survivor(); }"},
	}, noFileAccess, diags)
	if err == nil {
		t.Fatalf("expected an error when a -checkdiscard target survives pruning")
	}
	if !diags.HasFatal() {
		t.Fatalf("expected a fatal diagnostic to be recorded")
	}
	found := false
	for _, d := range diags.Diagnostics() {
		if d.Category == "CheckDiscardFailed" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a CheckDiscardFailed diagnostic, got %+v", diags.Diagnostics())
	}
}

func TestRunPassesCheckDiscardWhenTargetIsRemoved(t *testing.T) {
	f := itemfactory.New()
	a := f.CreateType("Lcom/example/A;")
	voidProto := f.CreateProto(f.CreateType("V"))
	kept := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("keepMe"), voidProto), Holder: a, Access: definitions.AccPublic, Code: &definitions.Code{}}
	dead := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("dead"), voidProto), Holder: a, Access: definitions.AccPublic, Code: &definitions.Code{}}
	class := &definitions.Class{Type: a, Super: f.Well.Object, HasSuper: true, DirectMethods: []*definitions.Method{kept, dead}}

	in := &reader.InMemory{ProgramClasses: []*definitions.Class{class}}

	diags := &errorlist.Bag{}
	_, err := pipeline.Run(context.Background(), options.Default(), f, in, []pipeline.RuleSource{
		{Inline: "-keep class com.example.A { void keepMe(); }\n-checkdiscard class com.example.A { void dead(); }"},
	}, noFileAccess, diags)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if diags.HasFatal() {
		t.Errorf("unexpected fatal diagnostics: %+v", diags.Diagnostics())
	}
}

func TestRunReportsFatalOnInvalidRuleSyntax(t *testing.T) {
	in := &reader.InMemory{}
	diags := &errorlist.Bag{}
	_, err := pipeline.Run(context.Background(), options.Default(), itemfactory.New(), in, []pipeline.RuleSource{
		{Inline: "-keep class {{{"},
	}, noFileAccess, diags)
	if err == nil {
		t.Fatalf("expected an error for malformed rule syntax")
	}
	if !diags.HasFatal() {
		t.Errorf("expected a fatal diagnostic to be recorded")
	}
}
