package definitions

import "github.com/r8core/r8/internal/itemfactory"

// InstructionKind tags the shape of an Instruction. The pipeline only needs
// to distinguish instructions by what they reference, not to interpret full
// bytecode semantics, so this is a deliberately coarse tagged variant rather
// than one struct per real Dex opcode.
type InstructionKind uint8

const (
	// InvokeVirtual, InvokeSuper, InvokeDirect, InvokeStatic, and
	// InvokeInterface each carry a MethodRef and, for virtual/interface
	// invokes, the Enqueuer resolves further to discover dispatch targets.
	InvokeVirtual InstructionKind = iota
	InvokeSuper
	InvokeDirect
	InvokeStatic
	InvokeInterface
	// InvokePolymorphic carries a MethodRef for a signature-polymorphic
	// invoke (e.g. MethodHandle.invoke/invokeExact).
	InvokePolymorphic
	// InvokeCustom carries an InvokeDynamic descriptor.
	InvokeCustom

	// InstanceGet/InstancePut/StaticGet/StaticPut carry a FieldRef.
	InstanceGet
	InstancePut
	StaticGet
	StaticPut

	// NewInstance carries a TypeRef naming the class to instantiate.
	NewInstance
	// NewArray carries a TypeRef naming the array's element type.
	NewArray
	// ConstClass carries a TypeRef reflectively loaded as a Class object.
	ConstClass
	// CheckCast carries a TypeRef.
	CheckCast
	// InstanceOf carries a TypeRef.
	InstanceOf
	// Throw has no payload references beyond its operand register.
	Throw
	// MethodHandleRef carries a MethodRef captured as a method handle
	// constant (e.g. a method reference expression), distinct from an
	// invoke because the reference itself, not a call, is what's live.
	MethodHandleRef
	// ReflectiveTypeLookup carries a TypeRef the reader recognized as the
	// literal argument of a closed-form reflective idiom, e.g.
	// Class.forName("com.example.Foo"). The core never parses string
	// constants itself; the reader tags these during decoding.
	ReflectiveTypeLookup
	// ReflectiveMemberLookup carries a MethodRef or FieldRef the reader
	// recognized as the literal argument of getDeclaredMethod/getField and
	// similar idioms.
	ReflectiveMemberLookup
	// Other covers every instruction kind the pipeline does not need to
	// reason about (arithmetic, branches, moves, returns, etc).
	Other
)

// InvokeDynamicDescriptor carries a call site's bootstrap method reference
// and static arguments, the payload needed for lambda-metafactory
// desugaring.
type InvokeDynamicDescriptor struct {
	BootstrapMethod itemfactory.DexMethod
	// BootstrapArgMethods are the MethodHandle-typed static bootstrap
	// arguments, e.g. the synthetic lambda$ implementation method passed
	// to LambdaMetafactory.metafactory.
	BootstrapArgMethods []itemfactory.DexMethod
	// BootstrapArgTypes are the Class-typed static bootstrap arguments,
	// e.g. the functional interface's method erased signature.
	BootstrapArgTypes []itemfactory.DexType
	InterfaceMethod   itemfactory.DexMethod
}

// Instruction is one instruction in a method body, reduced to the
// references it carries. The use registry (package usereg) walks a Code's
// Instructions and reports each reference it finds to the Enqueuer.
type Instruction struct {
	Kind  InstructionKind
	Type  itemfactory.DexType
	Field itemfactory.DexField
	// Method is populated for every Invoke* kind except InvokeCustom, which
	// carries InvokeDynamic instead.
	Method        itemfactory.DexMethod
	InvokeDynamic *InvokeDynamicDescriptor
}

// TryCatchRange associates a span of instruction indices with the exception
// types it catches, each handled at a target instruction index.
type TryCatchRange struct {
	StartIndex, EndIndex int
	Handlers             []CatchHandler
}

// CatchHandler is one catch clause within a TryCatchRange.
type CatchHandler struct {
	ExceptionType itemfactory.DexType // zero Value for a catch-all handler.
	TargetIndex   int
}

// Code is a method's instruction stream plus its exception handler table.
type Code struct {
	Instructions []Instruction
	TryCatches   []TryCatchRange
	Registers    int
}
