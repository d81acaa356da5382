package rules

import (
	"testing"

	"github.com/r8core/r8/internal/appinfo"
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
)

func parseText(t *testing.T, text string) *RuleSet {
	t.Helper()
	rs, err := Parse(tokenize(text), "<test>")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return rs
}

func TestParse_SimpleKeepClass(t *testing.T) {
	rs := parseText(t, `-keep public class com.example.Main { public static void main(java.lang.String[]); }`)
	if len(rs.Rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rs.Rules))
	}
	r := rs.Rules[0]
	if r.Directive != DirectiveKeep {
		t.Errorf("Directive = %q, want keep", r.Directive)
	}
	if !r.Class.Access.Public {
		t.Errorf("expected the class spec to require public")
	}
	if len(r.Class.Members) != 1 {
		t.Fatalf("got %d member patterns, want 1", len(r.Class.Members))
	}
	m := r.Class.Members[0]
	if !m.HasParams || len(m.Params) != 1 {
		t.Errorf("expected one parameter pattern, got %+v", m)
	}
}

func TestParse_Modifiers(t *testing.T) {
	rs := parseText(t, `-keepclassmembers,allowobfuscation,allowshrinking class com.example.* { *; }`)
	r := rs.Rules[0]
	if r.Directive != DirectiveKeepClassMembers {
		t.Fatalf("Directive = %q", r.Directive)
	}
	if !r.HasModifier(AllowObfuscation) || !r.HasModifier(AllowShrinking) {
		t.Errorf("expected both allowobfuscation and allowshrinking set, got %v", r.Modifiers)
	}
	if r.HasModifier(AllowAccessModification) {
		t.Errorf("did not expect allowaccessmodification")
	}
}

func TestParse_BareWildcardMember(t *testing.T) {
	rs := parseText(t, `-keep class com.example.Foo { *; }`)
	m := rs.Rules[0].Class.Members[0]
	if m.Kind != MemberAnyFieldOrMethod {
		t.Errorf("bare '*' member should be MemberAnyFieldOrMethod, got %v", m.Kind)
	}
}

func TestParse_MethodsAndFieldsTokens(t *testing.T) {
	rs := parseText(t, `-keep class com.example.Foo { <methods>; }`)
	m := rs.Rules[0].Class.Members[0]
	if m.Kind != MemberMethod {
		t.Errorf("<methods> should parse to MemberMethod, got %v", m.Kind)
	}

	rs = parseText(t, `-keep class com.example.Foo { <fields>; }`)
	f := rs.Rules[0].Class.Members[0]
	if f.Kind != MemberField {
		t.Errorf("<fields> should parse to MemberField, got %v", f.Kind)
	}
}

func TestParse_NoArgConstructor(t *testing.T) {
	rs := parseText(t, `-keep class com.example.Foo { <init>(); }`)
	m := rs.Rules[0].Class.Members[0]
	if m.Kind != MemberConstructor {
		t.Fatalf("Kind = %v, want MemberConstructor", m.Kind)
	}
	if !m.HasParams || len(m.Params) != 0 {
		t.Errorf("expected a no-arg parameter list, got %+v", m.Params)
	}
}

func TestParse_DontOptimizeNoClassSpec(t *testing.T) {
	rs := parseText(t, `-dontoptimize`)
	r := rs.Rules[0]
	if r.Directive != DirectiveDontOptimize || r.Class != nil {
		t.Errorf("Rule = %+v, want a bare dontoptimize rule with no class spec", r)
	}
}

func TestParse_ApplyMappingArg(t *testing.T) {
	rs := parseText(t, `-applymapping mapping.txt`)
	r := rs.Rules[0]
	if len(r.Args) != 1 || r.Args[0] != "mapping.txt" {
		t.Errorf("Args = %v, want [mapping.txt]", r.Args)
	}
}

func TestExpandAtFiles(t *testing.T) {
	tokens := []string{"-keep", "@rules.txt", "class", "Foo"}
	out, err := ExpandAtFiles(tokens, func(path string) (string, error) {
		if path != "rules.txt" {
			t.Fatalf("unexpected path %q", path)
		}
		return "-dontobfuscate", nil
	})
	if err != nil {
		t.Fatalf("ExpandAtFiles: %v", err)
	}
	want := []string{"-keep", "-dontobfuscate", "class", "Foo"}
	if len(out) != len(want) {
		t.Fatalf("got %v, want %v", out, want)
	}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = %q, want %q", i, out[i], want[i])
		}
	}
}

func TestMatch_DeadMethodEliminatedScenario(t *testing.T) {
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	a := f.CreateType("Lcom/example/A;")
	voidProto := f.CreateProto(f.CreateType("V"))
	m1 := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("m1"), voidProto), Holder: a, Access: definitions.AccPublic}
	m2 := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("m2"), voidProto), Holder: a, Access: definitions.AccPublic}
	if err := p.AddClass(&definitions.Class{Type: a, Super: f.Well.Object, HasSuper: true, DirectMethods: []*definitions.Method{m1, m2}}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}

	rs := parseText(t, `-keep class com.example.A { void m1(); }`)
	matcher := NewMatcher(p, appinfo.Build(p))
	matched := matcher.Match(rs)
	if len(matched) != 1 || len(matched[0].Classes) != 1 {
		t.Fatalf("Match = %+v, want one matched class", matched)
	}
	members := matched[0].Members[a]
	if len(members) != 1 || members[0].Method != m1 {
		t.Fatalf("matched members = %+v, want only m1", members)
	}
}

func TestMatch_MethodsTokenDoesNotMatchFields(t *testing.T) {
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	a := f.CreateType("Lcom/example/A;")
	voidProto := f.CreateProto(f.CreateType("V"))
	m := &definitions.Method{Reference: f.CreateMethod(a, f.CreateString("run"), voidProto), Holder: a, Access: definitions.AccPublic}
	field := &definitions.Field{Reference: f.CreateField(a, f.CreateString("value"), f.CreateType("I")), Holder: a, Access: definitions.AccPublic}
	if err := p.AddClass(&definitions.Class{Type: a, Super: f.Well.Object, HasSuper: true, DirectMethods: []*definitions.Method{m}, InstanceFields: []*definitions.Field{field}}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}

	rs := parseText(t, `-keep class com.example.A { <methods>; }`)
	matcher := NewMatcher(p, appinfo.Build(p))
	matched := matcher.Match(rs)
	members := matched[0].Members[a]
	if len(members) != 1 || members[0].Method != m {
		t.Fatalf("matched members = %+v, want only the method run()", members)
	}
	for _, mm := range members {
		if mm.Field != nil {
			t.Errorf("<methods> incorrectly matched field %v", mm.Field)
		}
	}
}

func TestMatch_KeepClassesWithMembersIsAtomic(t *testing.T) {
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	withMain := f.CreateType("Lcom/example/WithMain;")
	withoutMain := f.CreateType("Lcom/example/WithoutMain;")
	voidProto := f.CreateProto(f.CreateType("V"))
	mainMethod := &definitions.Method{
		Reference: f.CreateMethod(withMain, f.CreateString("main"), voidProto),
		Holder:    withMain, Access: definitions.AccPublic | definitions.AccStatic,
	}
	if err := p.AddClass(&definitions.Class{Type: withMain, Super: f.Well.Object, HasSuper: true, DirectMethods: []*definitions.Method{mainMethod}}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if err := p.AddClass(&definitions.Class{Type: withoutMain, Super: f.Well.Object, HasSuper: true}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}

	rs := parseText(t, `-keepclasseswithmembers class com.example.* { public static void main(); }`)
	matcher := NewMatcher(p, appinfo.Build(p))
	matched := matcher.Match(rs)
	if len(matched[0].Classes) != 1 || matched[0].Classes[0].Type != withMain {
		t.Fatalf("Match = %+v, want only WithMain (atomically requires the member match)", matched[0].Classes)
	}
}

func TestMatch_InheritanceSelector(t *testing.T) {
	f := itemfactory.New()
	p := definitions.NewProgram(f)
	iface := f.CreateType("Lcom/example/Marker;")
	impl := f.CreateType("Lcom/example/Impl;")
	other := f.CreateType("Lcom/example/Other;")
	ifaceAccess := definitions.AccessFlags(definitions.AccPublic | definitions.AccInterface | definitions.AccAbstract)
	if err := p.AddClass(&definitions.Class{Type: iface, Access: ifaceAccess}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if err := p.AddClass(&definitions.Class{Type: impl, Super: f.Well.Object, HasSuper: true, Interfaces: []itemfactory.DexType{iface}}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}
	if err := p.AddClass(&definitions.Class{Type: other, Super: f.Well.Object, HasSuper: true}); err != nil {
		t.Fatalf("AddClass: %v", err)
	}

	rs := parseText(t, `-keep class * implements com.example.Marker`)
	matcher := NewMatcher(p, appinfo.Build(p))
	matched := matcher.Match(rs)
	if len(matched[0].Classes) != 1 || matched[0].Classes[0].Type != impl {
		t.Fatalf("Match = %+v, want only Impl", matched[0].Classes)
	}
}
