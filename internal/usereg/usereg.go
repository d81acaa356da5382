// Package usereg walks a traced method's instructions and reports every
// reference it contains to a Registry, tagged with the context (holder
// class plus method) the reference was found in. It has no opinion about
// what those references mean for liveness — that's the Enqueuer's job — it
// only guarantees every reference reachable from the instruction stream and
// its exception handlers gets reported exactly once, walked off a
// flattened Instruction list.
package usereg

import (
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
)

// InvokeKind classifies which of the six invoke instruction forms a
// reported method reference came from.
type InvokeKind uint8

const (
	InvokeVirtual InvokeKind = iota
	InvokeSuper
	InvokeDirect
	InvokeStatic
	InvokeInterface
	InvokePolymorphic
)

// FieldAccessKind classifies a reported field reference.
type FieldAccessKind uint8

const (
	FieldInstanceRead FieldAccessKind = iota
	FieldInstanceWrite
	FieldStaticRead
	FieldStaticWrite
)

// TypeRefKind classifies a bare type reference reported outside of an
// invoke/field/new-instance context.
type TypeRefKind uint8

const (
	TypeRefConstClass TypeRefKind = iota
	TypeRefCheckCast
	TypeRefInstanceOf
	TypeRefBare
)

// Context names where a reported reference was found: the method currently
// being traced (and, transitively, its holder).
type Context struct {
	Holder itemfactory.DexType
	Method itemfactory.DexMethod
}

// Registry receives one call per bytecode reference found while tracing a
// method body. The Enqueuer implements this interface; tests may supply a
// recording fake.
type Registry interface {
	OnInvoke(ctx Context, kind InvokeKind, target itemfactory.DexMethod)
	OnFieldAccess(ctx Context, kind FieldAccessKind, target itemfactory.DexField)
	OnNewInstance(ctx Context, t itemfactory.DexType)
	OnTypeReference(ctx Context, kind TypeRefKind, t itemfactory.DexType)
	OnInvokeDynamic(ctx Context, desc *definitions.InvokeDynamicDescriptor)
	OnMethodHandle(ctx Context, target itemfactory.DexMethod)
	OnReflectiveTypeLookup(ctx Context, t itemfactory.DexType)
	OnReflectiveMemberLookup(ctx Context, field itemfactory.DexField, method itemfactory.DexMethod)
}

// Trace visits every instruction in m.Code (plus the catch type of every
// exception handler, reported as a bare type reference) and
// reports each reference it carries to reg. Trace is a no-op for abstract
// or native methods, whose Code is nil.
func Trace(m *definitions.Method, reg Registry) {
	if m.Code == nil {
		return
	}
	ctx := Context{Holder: m.Holder, Method: m.Reference}
	for _, insn := range m.Code.Instructions {
		visitInstruction(ctx, insn, reg)
	}
	for _, tc := range m.Code.TryCatches {
		for _, h := range tc.Handlers {
			if h.ExceptionType != (itemfactory.DexType{}) {
				reg.OnTypeReference(ctx, TypeRefBare, h.ExceptionType)
			}
		}
	}
}

func visitInstruction(ctx Context, insn definitions.Instruction, reg Registry) {
	switch insn.Kind {
	case definitions.InvokeVirtual:
		reg.OnInvoke(ctx, InvokeVirtual, insn.Method)
	case definitions.InvokeSuper:
		reg.OnInvoke(ctx, InvokeSuper, insn.Method)
	case definitions.InvokeDirect:
		reg.OnInvoke(ctx, InvokeDirect, insn.Method)
	case definitions.InvokeStatic:
		reg.OnInvoke(ctx, InvokeStatic, insn.Method)
	case definitions.InvokeInterface:
		reg.OnInvoke(ctx, InvokeInterface, insn.Method)
	case definitions.InvokePolymorphic:
		reg.OnInvoke(ctx, InvokePolymorphic, insn.Method)
	case definitions.InvokeCustom:
		if insn.InvokeDynamic != nil {
			reg.OnInvokeDynamic(ctx, insn.InvokeDynamic)
		}
	case definitions.InstanceGet:
		reg.OnFieldAccess(ctx, FieldInstanceRead, insn.Field)
	case definitions.InstancePut:
		reg.OnFieldAccess(ctx, FieldInstanceWrite, insn.Field)
	case definitions.StaticGet:
		reg.OnFieldAccess(ctx, FieldStaticRead, insn.Field)
	case definitions.StaticPut:
		reg.OnFieldAccess(ctx, FieldStaticWrite, insn.Field)
	case definitions.NewInstance:
		reg.OnNewInstance(ctx, insn.Type)
	case definitions.NewArray:
		reg.OnTypeReference(ctx, TypeRefBare, insn.Type)
	case definitions.ConstClass:
		reg.OnTypeReference(ctx, TypeRefConstClass, insn.Type)
	case definitions.CheckCast:
		reg.OnTypeReference(ctx, TypeRefCheckCast, insn.Type)
	case definitions.InstanceOf:
		reg.OnTypeReference(ctx, TypeRefInstanceOf, insn.Type)
	case definitions.MethodHandleRef:
		reg.OnMethodHandle(ctx, insn.Method)
	case definitions.ReflectiveTypeLookup:
		reg.OnReflectiveTypeLookup(ctx, insn.Type)
	case definitions.ReflectiveMemberLookup:
		reg.OnReflectiveMemberLookup(ctx, insn.Field, insn.Method)
	}
}
