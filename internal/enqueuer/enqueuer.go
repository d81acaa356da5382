package enqueuer

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/r8core/r8/internal/appinfo"
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/usereg"
)

// Run drives the fixed point to completion and returns the resulting
// liveness view. ctx governs cancellation of the per-round parallel tracing
// fan-out; a cancelled context aborts the round in progress and returns the
// context's error.
func (e *Enqueuer) Run(ctx context.Context) (*LivenessView, error) {
	for e.hasPendingWork() {
		if err := e.runRound(ctx); err != nil {
			return nil, err
		}
	}
	return e.snapshot(), nil
}

func (e *Enqueuer) hasPendingWork() bool {
	return len(e.pendingTypeLive) > 0 || len(e.pendingInstantiate) > 0 || len(e.pendingMethodLive) > 0 ||
		len(e.pendingFieldLive) > 0 || len(e.pendingTrace) > 0 || len(e.pendingServiceIface) > 0 ||
		len(e.pendingReflectiveType) > 0 || len(e.pendingReflectiveMethod) > 0 ||
		len(e.pendingReflectiveField) > 0 || len(e.pendingAnnotationScan) > 0
}

// runRound drains every cheap worklist synchronously (rules 1, 2, 3, 5, 6,
// 7), then traces every newly-live method body in parallel (rule 4), and
// returns once all references discovered while tracing have been folded
// back into the pending queues for the next round.
func (e *Enqueuer) runRound(ctx context.Context) error {
	for e.drainCheapWork() {
	}

	toTrace := e.pendingTrace
	e.pendingTrace = nil
	if len(toTrace) == 0 {
		return nil
	}

	limit := e.cfg.MaxConcurrentTrace
	if limit <= 0 {
		limit = 16
	}
	sem := semaphore.NewWeighted(limit)
	g, gctx := errgroup.WithContext(ctx)

	type traceResult struct {
		method *definitions.Method
		refs   *collectedRefs
	}
	results := make([]traceResult, len(toTrace))
	for i, m := range toTrace {
		i, m := i, m
		if err := sem.Acquire(gctx, 1); err != nil {
			return err
		}
		g.Go(func() error {
			defer sem.Release(1)
			refs := newCollectedRefs()
			usereg.Trace(m, refs)
			results[i] = traceResult{method: m, refs: refs}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Merge every worker's local buffer back into the shared state
	// sequentially, in a deterministic order, so that liveness decisions
	// never depend on goroutine scheduling.
	sort.Slice(results, func(i, j int) bool {
		return results[i].method.Reference.String() < results[j].method.Reference.String()
	})
	for _, r := range results {
		e.applyTraceResult(r.method, r.refs)
	}
	return nil
}

// drainCheapWork processes one pass over every non-tracing worklist and
// reports whether it did any work, so the caller can keep draining until a
// pass does nothing (transitions can re-populate each other's queues).
func (e *Enqueuer) drainCheapWork() bool {
	did := false

	types := e.pendingTypeLive
	e.pendingTypeLive = nil
	for _, t := range types {
		did = true
		e.applyTypeLive(t)
	}

	inst := e.pendingInstantiate
	e.pendingInstantiate = nil
	for _, t := range inst {
		did = true
		e.applyInstantiated(t)
	}

	methods := e.pendingMethodLive
	e.pendingMethodLive = nil
	for _, m := range methods {
		did = true
		e.applyMethodLive(m)
	}

	fields := e.pendingFieldLive
	e.pendingFieldLive = nil
	for _, f := range fields {
		did = true
		e.applyFieldLive(f)
	}

	ifaces := e.pendingServiceIface
	e.pendingServiceIface = nil
	for _, t := range ifaces {
		did = true
		e.applyServiceDiscovery(t)
	}

	scans := e.pendingAnnotationScan
	e.pendingAnnotationScan = nil
	for _, s := range scans {
		did = true
		e.applyAnnotationScan(s.annotations)
	}

	reflTypes := e.pendingReflectiveType
	e.pendingReflectiveType = nil
	for _, t := range reflTypes {
		did = true
		e.enqueueTypeLive(t, Reason{Description: "reflective lookup"})
	}

	reflMethods := e.pendingReflectiveMethod
	e.pendingReflectiveMethod = nil
	for _, ref := range reflMethods {
		did = true
		if c, ok := e.program.DefinitionFor(ref.Holder()); ok {
			if m := c.LookupMethod(ref); m != nil {
				e.enqueueMethodLive(m, Reason{Description: "reflective lookup"})
			}
		}
	}

	reflFields := e.pendingReflectiveField
	e.pendingReflectiveField = nil
	for _, ref := range reflFields {
		did = true
		if c, ok := e.program.DefinitionFor(ref.Holder()); ok {
			if f := c.LookupField(ref); f != nil {
				task := fieldLiveTask{field: f, reflective: true}
				e.pendingFieldLive = append(e.pendingFieldLive, task)
			}
		}
	}

	return did
}

// --- Transition rule 1: type becomes live. ---

func (e *Enqueuer) enqueueTypeLive(t itemfactory.DexType, reason Reason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.liveTypes[t] {
		return
	}
	e.liveTypes[t] = true
	e.reasons[t] = append(e.reasons[t], reason)
	e.pendingTypeLive = append(e.pendingTypeLive, t)
}

func (e *Enqueuer) applyTypeLive(t itemfactory.DexType) {
	c, ok := e.program.DefinitionFor(t)
	if !ok {
		return // missing class; diagnosed elsewhere.
	}
	if c.HasSuper {
		e.enqueueTypeLive(c.Super, Reason{Description: "supertype of a live type"})
	}
	for _, iface := range c.Interfaces {
		e.enqueueTypeLive(iface, Reason{Description: "interface of a live type"})
	}
	for _, m := range c.AllMethods() {
		if m.IsClassInit() {
			e.enqueueMethodLive(m, Reason{Description: "static initializer of a live type"})
		}
	}
	if e.cfg.ScanAnnotations && len(c.Annotations) > 0 {
		e.pendingAnnotationScan = append(e.pendingAnnotationScan, annotationScanTask{annotations: c.Annotations})
	}
	for _, m := range e.conditionalMethods[t] {
		e.enqueueMethodLive(m, Reason{Description: "keepclassmembers on a now-live type"})
	}
	for _, f := range e.conditionalFields[t] {
		e.markFieldLive(f, Reason{Description: "keepclassmembers on a now-live type"})
	}
}

// --- Transition rule 2: type becomes instantiated. ---

func (e *Enqueuer) enqueueInstantiated(t itemfactory.DexType, reason Reason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.instantiatedTypes[t] {
		return
	}
	e.instantiatedTypes[t] = true
	e.reasons[t] = append(e.reasons[t], reason)
	e.pendingInstantiate = append(e.pendingInstantiate, t)
}

func (e *Enqueuer) applyInstantiated(t itemfactory.DexType) {
	e.enqueueTypeLive(t, Reason{Description: "instantiated type is implicitly live"})
	e.mu.Lock()
	virtualRefs := make([]itemfactory.DexMethod, 0, len(e.virtualTargets))
	for ref := range e.virtualTargets {
		virtualRefs = append(virtualRefs, ref)
	}
	e.mu.Unlock()
	sort.Slice(virtualRefs, func(i, j int) bool { return virtualRefs[i].String() < virtualRefs[j].String() })
	for _, ref := range virtualRefs {
		if !e.hierarchy.IsSubtypeOf(t, ref.Holder()) {
			continue
		}
		res := e.resolver.ResolveMethod(t, ref)
		e.markDispatchTargets(ref, res)
	}
}

// markDispatchTargets records res as (one of) the dispatch targets of ref
// and marks every resolved definition live, implementing the retroactive
// half of transition rule 2: a freshly instantiated type completes any
// virtual/interface invoke already recorded as pending on its (super)type.
func (e *Enqueuer) markDispatchTargets(ref itemfactory.DexMethod, res appinfo.MethodResolutionResult) {
	var targets []*definitions.Method
	switch res.Kind {
	case appinfo.ResolvedSingle:
		targets = []*definitions.Method{res.Single}
	case appinfo.ResolvedAmbiguous:
		targets = res.Candidates
	default:
		return
	}
	for _, target := range targets {
		e.mu.Lock()
		if e.virtualTargets[ref] == nil {
			e.virtualTargets[ref] = make(map[itemfactory.DexMethod]bool)
		}
		e.virtualTargets[ref][target.Reference] = true
		e.mu.Unlock()
		e.enqueueMethodLive(target, Reason{Description: "virtual dispatch target of an instantiated subtype"})
	}
}

// --- Transition rule 3: method becomes live. ---

func (e *Enqueuer) enqueueMethodLive(m *definitions.Method, reason Reason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.liveMethods[m.Reference] != nil {
		return
	}
	e.liveMethods[m.Reference] = m
	e.reasons[m.Reference] = append(e.reasons[m.Reference], reason)
	e.pendingMethodLive = append(e.pendingMethodLive, m)
}

func (e *Enqueuer) applyMethodLive(m *definitions.Method) {
	e.enqueueTypeLive(m.Holder, Reason{Description: "holder of a live method"})
	if m.IsInstanceInit() {
		e.enqueueInstantiated(m.Holder, Reason{Description: "constructor is live"})
	}
	if e.cfg.ScanAnnotations && len(m.Annotations) > 0 {
		e.pendingAnnotationScan = append(e.pendingAnnotationScan, annotationScanTask{annotations: m.Annotations})
	}
	e.mu.Lock()
	already := e.traced.has(m.Reference)
	if !already {
		e.traced.add(m.Reference)
	}
	e.mu.Unlock()
	if !already && m.Code != nil {
		e.pendingTrace = append(e.pendingTrace, m)
	}
}

// --- Field liveness (shared by root-set seeding and rule 4's field access). ---

func (e *Enqueuer) markFieldLive(f *definitions.Field, reason Reason) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.liveFields[f.Reference] == nil {
		e.liveFields[f.Reference] = f
		e.reasons[f.Reference] = append(e.reasons[f.Reference], reason)
	}
	if e.fieldAccessInfo[f.Reference] == nil {
		e.fieldAccessInfo[f.Reference] = &FieldAccessInfo{}
	}
	e.pendingFieldLive = append(e.pendingFieldLive, fieldLiveTask{field: f})
}

func (e *Enqueuer) applyFieldLive(task fieldLiveTask) {
	e.enqueueTypeLive(task.field.Holder, Reason{Description: "holder of a live field"})
	e.mu.Lock()
	info := e.fieldAccessInfo[task.field.Reference]
	if info == nil {
		info = &FieldAccessInfo{}
		e.fieldAccessInfo[task.field.Reference] = info
	}
	if task.read {
		info.Read = true
	}
	if task.write {
		info.Written = true
	}
	if task.viaMH {
		info.AccessedViaMethodHandle = true
	}
	if task.reflective {
		info.ReflectiveAccess = true
	}
	e.liveFields[task.field.Reference] = task.field
	e.mu.Unlock()
}

// --- Transition rule 5: service discovery. ---

func (e *Enqueuer) applyServiceDiscovery(iface itemfactory.DexType) {
	for _, impl := range e.program.ServiceImplementations(iface) {
		e.enqueueInstantiated(impl.Type, Reason{Description: "ServiceLoader implementation"})
		c, ok := e.program.DefinitionFor(impl.Type)
		if !ok {
			continue
		}
		for _, m := range c.DirectMethods {
			if m.IsInstanceInit() && len(m.Reference.Proto().Parameters()) == 0 && m.Access.IsPublic() {
				e.enqueueMethodLive(m, Reason{Description: "ServiceLoader implementation constructor"})
			}
		}
	}
}

// --- Transition rule 6: annotation scan. ---

func (e *Enqueuer) applyAnnotationScan(anns []definitions.Annotation) {
	for _, a := range anns {
		for _, t := range a.ReferencedTypes() {
			e.enqueueTypeLive(t, Reason{Description: "referenced by a kept annotation"})
		}
		for _, fref := range a.ReferencedFields() {
			if c, ok := e.program.DefinitionFor(fref.Holder()); ok {
				if f := c.LookupField(fref); f != nil {
					e.mu.Lock()
					if e.fieldAccessInfo[f.Reference] == nil {
						e.fieldAccessInfo[f.Reference] = &FieldAccessInfo{}
					}
					e.fieldAccessInfo[f.Reference].ReadFromAnnotation = true
					e.mu.Unlock()
					e.markFieldLive(f, Reason{Description: "enum constant referenced by a kept annotation"})
				}
			}
		}
	}
}

// snapshot renders the Enqueuer's internal state into a LivenessView. The
// live and instantiated type sets are copied; the remaining maps are shared
// with the Enqueuer, not copied.
func (e *Enqueuer) snapshot() *LivenessView {
	e.mu.Lock()
	defer e.mu.Unlock()
	return &LivenessView{
		LiveTypes:         copyTypeSet(e.liveTypes),
		InstantiatedTypes: copyTypeSet(e.instantiatedTypes),
		LiveMethods:       e.liveMethods,
		LiveFields:        e.liveFields,
		FieldAccessInfo:   e.fieldAccessInfo,
		VirtualTargets:    e.virtualTargets,
		CallSites:         e.callSites,
		Reasons:           e.reasons,
		SyntheticClasses:  e.syntheticClasses,
	}
}

func copyTypeSet(m map[itemfactory.DexType]bool) map[itemfactory.DexType]bool {
	out := make(map[itemfactory.DexType]bool, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

