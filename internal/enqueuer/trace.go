package enqueuer

import (
	"github.com/r8core/r8/internal/appinfo"
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/usereg"
)

// collectedRefs is a per-goroutine local buffer implementing usereg.Registry.
// Tracing a single method body writes only into this buffer, so no
// synchronization is needed while multiple methods are traced concurrently;
// the Enqueuer merges every worker's buffer back into shared state
// sequentially once the round's whole batch finishes.
type collectedRefs struct {
	invokeStaticOrDirect []itemfactory.DexMethod
	invokeSuper          []itemfactory.DexMethod
	invokeVirtualOrIface []itemfactory.DexMethod
	methodHandles        []itemfactory.DexMethod
	fieldReads           []itemfactory.DexField
	fieldWrites          []itemfactory.DexField
	staticFieldReads     []itemfactory.DexField
	staticFieldWrites    []itemfactory.DexField
	newInstances         []itemfactory.DexType
	typeReferences       []itemfactory.DexType
	invokeDynamics       []*definitions.InvokeDynamicDescriptor
	reflectiveTypes      []itemfactory.DexType
	reflectiveMethods    []itemfactory.DexMethod
	reflectiveFields     []itemfactory.DexField
}

func newCollectedRefs() *collectedRefs { return &collectedRefs{} }

func (c *collectedRefs) OnInvoke(ctx usereg.Context, kind usereg.InvokeKind, target itemfactory.DexMethod) {
	switch kind {
	case usereg.InvokeStatic, usereg.InvokeDirect, usereg.InvokePolymorphic:
		c.invokeStaticOrDirect = append(c.invokeStaticOrDirect, target)
	case usereg.InvokeSuper:
		c.invokeSuper = append(c.invokeSuper, target)
	case usereg.InvokeVirtual, usereg.InvokeInterface:
		c.invokeVirtualOrIface = append(c.invokeVirtualOrIface, target)
	}
}

func (c *collectedRefs) OnFieldAccess(ctx usereg.Context, kind usereg.FieldAccessKind, target itemfactory.DexField) {
	switch kind {
	case usereg.FieldInstanceRead:
		c.fieldReads = append(c.fieldReads, target)
	case usereg.FieldInstanceWrite:
		c.fieldWrites = append(c.fieldWrites, target)
	case usereg.FieldStaticRead:
		c.staticFieldReads = append(c.staticFieldReads, target)
	case usereg.FieldStaticWrite:
		c.staticFieldWrites = append(c.staticFieldWrites, target)
	}
}

func (c *collectedRefs) OnNewInstance(ctx usereg.Context, t itemfactory.DexType) {
	c.newInstances = append(c.newInstances, t)
}

func (c *collectedRefs) OnTypeReference(ctx usereg.Context, kind usereg.TypeRefKind, t itemfactory.DexType) {
	c.typeReferences = append(c.typeReferences, t)
}

func (c *collectedRefs) OnInvokeDynamic(ctx usereg.Context, desc *definitions.InvokeDynamicDescriptor) {
	c.invokeDynamics = append(c.invokeDynamics, desc)
}

func (c *collectedRefs) OnMethodHandle(ctx usereg.Context, target itemfactory.DexMethod) {
	c.methodHandles = append(c.methodHandles, target)
}

func (c *collectedRefs) OnReflectiveTypeLookup(ctx usereg.Context, t itemfactory.DexType) {
	c.reflectiveTypes = append(c.reflectiveTypes, t)
}

func (c *collectedRefs) OnReflectiveMemberLookup(ctx usereg.Context, field itemfactory.DexField, method itemfactory.DexMethod) {
	if method != (itemfactory.DexMethod{}) {
		c.reflectiveMethods = append(c.reflectiveMethods, method)
	}
	if field != (itemfactory.DexField{}) {
		c.reflectiveFields = append(c.reflectiveFields, field)
	}
}

// applyTraceResult folds one method's collected references into shared
// state, implementing transition rule 4. Called strictly sequentially from
// the round coordinator, so no locking is needed here beyond what the
// enqueue*/mark* helpers already take internally.
func (e *Enqueuer) applyTraceResult(m *definitions.Method, refs *collectedRefs) {
	for _, ref := range refs.invokeStaticOrDirect {
		e.resolveAndMarkLive(ref.Holder(), ref)
	}
	for _, ref := range refs.invokeSuper {
		if c, ok := e.program.DefinitionFor(m.Holder); ok && c.HasSuper {
			e.resolveAndMarkLive(c.Super, ref)
		}
	}
	for _, ref := range refs.invokeVirtualOrIface {
		e.recordVirtualTarget(ref)
	}
	for _, ref := range refs.methodHandles {
		e.resolveAndMarkLive(ref.Holder(), ref)
	}
	for _, ref := range refs.fieldReads {
		e.resolveAndMarkFieldAccess(ref.Holder(), ref, true, false)
	}
	for _, ref := range refs.fieldWrites {
		e.resolveAndMarkFieldAccess(ref.Holder(), ref, false, true)
	}
	for _, ref := range refs.staticFieldReads {
		e.resolveAndMarkFieldAccess(ref.Holder(), ref, true, false)
	}
	for _, ref := range refs.staticFieldWrites {
		e.resolveAndMarkFieldAccess(ref.Holder(), ref, false, true)
	}
	for _, t := range refs.newInstances {
		// The paired invoke-direct <init> call that always follows a
		// new-instance in valid bytecode is traced as its own instruction
		// and marks the chosen constructor live via resolveAndMarkLive;
		// this rule only needs to record the allocation itself.
		e.enqueueInstantiated(t, Reason{Description: "new-instance"})
	}
	for _, t := range refs.typeReferences {
		e.enqueueTypeLive(t, Reason{Description: "const-class/check-cast/instance-of/type-reference"})
		if e.cfg.ServiceDiscovery {
			if impls := e.program.ServiceImplementations(t); len(impls) > 0 {
				e.pendingServiceIface = append(e.pendingServiceIface, t)
			}
		}
	}
	for _, desc := range refs.invokeDynamics {
		e.applyInvokeDynamic(m, desc)
	}
	if e.cfg.ReflectionHeuristics {
		e.pendingReflectiveType = append(e.pendingReflectiveType, refs.reflectiveTypes...)
		e.pendingReflectiveMethod = append(e.pendingReflectiveMethod, refs.reflectiveMethods...)
		e.pendingReflectiveField = append(e.pendingReflectiveField, refs.reflectiveFields...)
	}
}

func (e *Enqueuer) resolveAndMarkLive(holder itemfactory.DexType, ref itemfactory.DexMethod) {
	res := e.resolver.ResolveMethod(holder, ref)
	switch res.Kind {
	case appinfo.ResolvedSingle:
		e.enqueueMethodLive(res.Single, Reason{Description: "invoked directly"})
	case appinfo.ResolvedAmbiguous:
		for _, cand := range res.Candidates {
			e.enqueueMethodLive(cand, Reason{Description: "invoked directly (ambiguous default)"})
		}
	}
}

// recordVirtualTarget implements the invoke-virtual/invoke-interface half
// of rule 4: record ref as a virtual target, resolve it against every type
// already instantiated, and mark whatever resolves live immediately; future
// instantiations complete the dispatch retroactively via
// Enqueuer.applyInstantiated.
func (e *Enqueuer) recordVirtualTarget(ref itemfactory.DexMethod) {
	e.mu.Lock()
	if e.virtualTargets[ref] == nil {
		e.virtualTargets[ref] = make(map[itemfactory.DexMethod]bool)
	}
	instantiated := make([]itemfactory.DexType, 0, len(e.instantiatedTypes))
	for t := range e.instantiatedTypes {
		instantiated = append(instantiated, t)
	}
	e.mu.Unlock()

	for _, t := range instantiated {
		if !e.hierarchy.IsSubtypeOf(t, ref.Holder()) {
			continue
		}
		res := e.resolver.ResolveMethod(t, ref)
		e.markDispatchTargets(ref, res)
	}
}

func (e *Enqueuer) resolveAndMarkFieldAccess(holder itemfactory.DexType, ref itemfactory.DexField, read, write bool) {
	res := e.resolver.ResolveField(holder, ref)
	if res.Kind != appinfo.ResolvedSingle {
		return
	}
	e.markFieldLive(res.Single, Reason{Description: "field access"})
	e.mu.Lock()
	e.pendingFieldLive = append(e.pendingFieldLive, fieldLiveTask{field: res.Single, read: read, write: write})
	e.mu.Unlock()
}
