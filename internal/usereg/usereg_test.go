package usereg

import (
	"testing"

	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
)

type recordingRegistry struct {
	invokes []itemfactory.DexMethod
	fields  []itemfactory.DexField
	news    []itemfactory.DexType
	types   []itemfactory.DexType
}

func (r *recordingRegistry) OnInvoke(ctx Context, kind InvokeKind, target itemfactory.DexMethod) {
	r.invokes = append(r.invokes, target)
}
func (r *recordingRegistry) OnFieldAccess(ctx Context, kind FieldAccessKind, target itemfactory.DexField) {
	r.fields = append(r.fields, target)
}
func (r *recordingRegistry) OnNewInstance(ctx Context, t itemfactory.DexType) {
	r.news = append(r.news, t)
}
func (r *recordingRegistry) OnTypeReference(ctx Context, kind TypeRefKind, t itemfactory.DexType) {
	r.types = append(r.types, t)
}
func (r *recordingRegistry) OnInvokeDynamic(ctx Context, desc *definitions.InvokeDynamicDescriptor) {
}
func (r *recordingRegistry) OnMethodHandle(ctx Context, target itemfactory.DexMethod) {}
func (r *recordingRegistry) OnReflectiveTypeLookup(ctx Context, t itemfactory.DexType) {}
func (r *recordingRegistry) OnReflectiveMemberLookup(ctx Context, field itemfactory.DexField, method itemfactory.DexMethod) {
}

func TestTrace_ReportsInvokeFieldNewInstanceAndCheckCast(t *testing.T) {
	f := itemfactory.New()
	holder := f.CreateType("Lcom/example/Foo;")
	other := f.CreateType("Lcom/example/Other;")
	proto := f.CreateProto(f.CreateType("V"))
	invoked := f.CreateMethod(other, f.CreateString("bar"), proto)
	field := f.CreateField(other, f.CreateString("x"), f.CreateType("I"))

	code := &definitions.Code{
		Instructions: []definitions.Instruction{
			{Kind: definitions.InvokeVirtual, Method: invoked},
			{Kind: definitions.InstanceGet, Field: field},
			{Kind: definitions.NewInstance, Type: other},
			{Kind: definitions.CheckCast, Type: other},
		},
	}
	m := &definitions.Method{Reference: f.CreateMethod(holder, f.CreateString("m"), proto), Holder: holder, Code: code}

	reg := &recordingRegistry{}
	Trace(m, reg)

	if len(reg.invokes) != 1 || reg.invokes[0] != invoked {
		t.Errorf("invokes = %v, want [%v]", reg.invokes, invoked)
	}
	if len(reg.fields) != 1 || reg.fields[0] != field {
		t.Errorf("fields = %v, want [%v]", reg.fields, field)
	}
	if len(reg.news) != 1 || reg.news[0] != other {
		t.Errorf("news = %v, want [%v]", reg.news, other)
	}
	if len(reg.types) != 1 || reg.types[0] != other {
		t.Errorf("types = %v, want [%v]", reg.types, other)
	}
}

func TestTrace_AbstractMethodIsNoOp(t *testing.T) {
	f := itemfactory.New()
	holder := f.CreateType("Lcom/example/Foo;")
	proto := f.CreateProto(f.CreateType("V"))
	m := &definitions.Method{Reference: f.CreateMethod(holder, f.CreateString("m"), proto), Holder: holder, Code: nil}

	reg := &recordingRegistry{}
	Trace(m, reg) // must not panic on nil Code
	if len(reg.invokes) != 0 {
		t.Errorf("expected no reported references for an abstract method")
	}
}

func TestTrace_ExceptionHandlerTypeReported(t *testing.T) {
	f := itemfactory.New()
	holder := f.CreateType("Lcom/example/Foo;")
	proto := f.CreateProto(f.CreateType("V"))
	excType := f.CreateType("Ljava/io/IOException;")
	code := &definitions.Code{
		TryCatches: []definitions.TryCatchRange{
			{StartIndex: 0, EndIndex: 1, Handlers: []definitions.CatchHandler{{ExceptionType: excType, TargetIndex: 2}}},
		},
	}
	m := &definitions.Method{Reference: f.CreateMethod(holder, f.CreateString("m"), proto), Holder: holder, Code: code}

	reg := &recordingRegistry{}
	Trace(m, reg)
	if len(reg.types) != 1 || reg.types[0] != excType {
		t.Errorf("types = %v, want [%v]", reg.types, excType)
	}
}
