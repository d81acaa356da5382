package enqueuer

import (
	"fmt"

	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
)

const lambdaMetafactoryType = "Ljava/lang/invoke/LambdaMetafactory;"

// applyInvokeDynamic implements the invoke-dynamic reachability transition:
// a lambda-metafactory call site is desugared into a synthetic class; every
// other call site is recorded as an opaque linkage the writer must
// preserve, and its bootstrap method is marked live.
func (e *Enqueuer) applyInvokeDynamic(m *definitions.Method, desc *definitions.InvokeDynamicDescriptor) {
	if desc.BootstrapMethod.Holder().Descriptor() == lambdaMetafactoryType && len(desc.BootstrapArgMethods) > 0 {
		e.desugarLambda(m, desc)
		return
	}
	e.resolveAndMarkLive(desc.BootstrapMethod.Holder(), desc.BootstrapMethod)
	e.mu.Lock()
	e.callSites = append(e.callSites, CallSiteTarget{Context: m.Reference, Bootstrap: desc.BootstrapMethod})
	e.mu.Unlock()
}

// desugarLambda synthesizes a class implementing the call site's target
// functional interface, with a single forwarding method that calls the
// captured implementation method, and adds it to the program as a
// first-class program class.
func (e *Enqueuer) desugarLambda(m *definitions.Method, desc *definitions.InvokeDynamicDescriptor) {
	impl := desc.BootstrapArgMethods[0]
	iface := desc.InterfaceMethod.Holder()

	e.mu.Lock()
	idx := len(e.syntheticClasses)
	e.mu.Unlock()

	descriptor := fmt.Sprintf("%s$$Lambda$%d;", m.Holder.Descriptor()[:len(m.Holder.Descriptor())-1], idx)
	synthType := e.factory.CreateType(descriptor)

	ctorProto := e.factory.CreateProto(e.factory.CreateType("V"))
	ctorRef := e.factory.CreateMethod(synthType, e.factory.CreateString("<init>"), ctorProto)
	ctor := &definitions.Method{
		Reference: ctorRef,
		Holder:    synthType,
		Access:    definitions.AccPublic | definitions.AccSynthetic | definitions.AccConstructor,
		Code:      &definitions.Code{Registers: 1},
	}

	forwardRef := e.factory.CreateMethod(synthType, desc.InterfaceMethod.Name(), desc.InterfaceMethod.Proto())
	forward := &definitions.Method{
		Reference: forwardRef,
		Holder:    synthType,
		Access:    definitions.AccPublic | definitions.AccSynthetic,
		Code: &definitions.Code{
			Instructions: []definitions.Instruction{
				{Kind: e.forwardingInvokeKind(impl), Method: impl},
			},
		},
	}

	synth := &definitions.Class{
		Type:           synthType,
		Super:          e.factory.Well.Object,
		HasSuper:       true,
		Interfaces:     []itemfactory.DexType{iface},
		Access:         definitions.AccFinal | definitions.AccSynthetic,
		DirectMethods:  []*definitions.Method{ctor},
		VirtualMethods: []*definitions.Method{forward},
		Kind:           definitions.KindProgram,
		Origin:         "lambda-desugaring",
	}

	if err := e.program.AddClass(synth); err != nil {
		// The synthetic type name collided (an extremely unlikely but
		// possible outcome of two lambda sites hashing to the same
		// counter value across rounds); fall back to treating the call
		// site as opaque rather than failing the whole round.
		e.resolveAndMarkLive(impl.Holder(), impl)
		return
	}

	e.mu.Lock()
	e.syntheticClasses = append(e.syntheticClasses, synth)
	e.mu.Unlock()

	e.enqueueInstantiated(synthType, Reason{Description: "lambda-metafactory call site"})
	e.enqueueMethodLive(ctor, Reason{Description: "lambda-desugared constructor"})
	e.enqueueMethodLive(forward, Reason{Description: "lambda-desugared forwarding method"})
	e.resolveAndMarkLive(impl.Holder(), impl)
}

// forwardingInvokeKind picks the invoke form a desugared lambda body must
// use to call its captured implementation method: invoke-static for a
// static implementation, invoke-direct for a constructor reference or a
// private instance method, invoke-virtual otherwise.
func (e *Enqueuer) forwardingInvokeKind(impl itemfactory.DexMethod) definitions.InstructionKind {
	if impl.IsInstanceInit() {
		return definitions.InvokeDirect
	}
	c, ok := e.program.DefinitionFor(impl.Holder())
	if !ok {
		return definitions.InvokeStatic
	}
	def := c.LookupMethod(impl)
	if def == nil {
		return definitions.InvokeStatic
	}
	switch {
	case def.IsStatic():
		return definitions.InvokeStatic
	case def.Access.IsPrivate():
		return definitions.InvokeDirect
	default:
		return definitions.InvokeVirtual
	}
}
