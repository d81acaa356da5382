// Package enqueuer implements the fixed-point reachability computation: a
// worklist algorithm over the powerset of interned references that starts
// from a root set and applies monotone transition rules until nothing new
// is discovered. The transitions cover the reachability edges a JVM
// program's instructions can trigger: virtual dispatch, field access info,
// service discovery, reflection, and lambda desugaring.
package enqueuer

import (
	"sort"
	"sync"

	"golang.org/x/tools/container/intsets"

	"github.com/r8core/r8/internal/appinfo"
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/rootset"
)

// tracedIndex is a dense identity-keyed set recording which methods have
// already been queued for tracing, giving that hot-path check an O(1)
// sparse-set membership probe instead of a map lookup keyed by the full
// DexMethod struct.
type tracedIndex struct {
	set intsets.Sparse
}

func (ti *tracedIndex) has(ref itemfactory.DexMethod) bool { return ti.set.Has(int(ref.ID())) }
func (ti *tracedIndex) add(ref itemfactory.DexMethod)      { ti.set.Insert(int(ref.ID())) }

// FieldAccessInfo records how a live field was observed being accessed,
// across every context that touched it.
type FieldAccessInfo struct {
	Read, Written           bool
	ReadFromAnnotation      bool
	AccessedViaMethodHandle bool
	ReflectiveAccess        bool
}

// Reason records one fact that contributed to marking a reference live, for
// -whyareyoukeeping diagnostics.
type Reason struct {
	Description string
}

// CallSiteTarget records the outcome of resolving an invoke-dynamic call
// site that was not the lambda metafactory: the bootstrap target, kept live
// as an opaque linkage the writer must preserve.
type CallSiteTarget struct {
	Context   interface{}
	Bootstrap itemfactory.DexMethod
}

// LivenessView is the immutable result of running the Enqueuer to a fixed
// point: everything later pipeline stages need to know about what's
// reachable.
type LivenessView struct {
	LiveTypes         map[itemfactory.DexType]bool
	InstantiatedTypes map[itemfactory.DexType]bool
	LiveMethods       map[itemfactory.DexMethod]*definitions.Method
	LiveFields        map[itemfactory.DexField]*definitions.Field
	FieldAccessInfo   map[itemfactory.DexField]*FieldAccessInfo
	VirtualTargets    map[itemfactory.DexMethod]map[itemfactory.DexMethod]bool
	CallSites         []CallSiteTarget
	Reasons           map[interface{}][]Reason
	SyntheticClasses  []*definitions.Class
}

// SortedLiveTypes returns the live type set sorted by descriptor, the
// deterministic iteration order the concurrency model requires for output.
func (v *LivenessView) SortedLiveTypes() []itemfactory.DexType {
	out := make([]itemfactory.DexType, 0, len(v.LiveTypes))
	for t := range v.LiveTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor() < out[j].Descriptor() })
	return out
}

// Config controls which optional transition rules the Enqueuer runs.
type Config struct {
	// ScanAnnotations enables transition rule 6: marking types/fields
	// referenced by a live element's annotations.
	ScanAnnotations bool
	// ServiceDiscovery enables transition rule 5: treating a const-class
	// reference to a registered service interface as a ServiceLoader.load
	// call site.
	ServiceDiscovery bool
	// ReflectionHeuristics enables transition rule 7.
	ReflectionHeuristics bool
	// MaxConcurrentTrace bounds how many method bodies are traced in
	// parallel within one round. Zero means a sensible package default.
	MaxConcurrentTrace int64
}

// DefaultConfig returns the Config every pipeline invocation uses unless
// overridden.
func DefaultConfig() Config {
	return Config{
		ScanAnnotations:      true,
		ServiceDiscovery:     true,
		ReflectionHeuristics: true,
		MaxConcurrentTrace:   16,
	}
}

// Enqueuer runs the fixed-point computation over one program+root-set pair.
// It is not safe for concurrent use by multiple callers, but internally
// parallelizes method-body tracing within each round.
type Enqueuer struct {
	program   *definitions.Program
	hierarchy *appinfo.HierarchyIndex
	resolver  *appinfo.Resolver
	factory   *itemfactory.Factory
	cfg       Config

	mu sync.Mutex

	liveTypes         map[itemfactory.DexType]bool
	instantiatedTypes map[itemfactory.DexType]bool
	liveMethods       map[itemfactory.DexMethod]*definitions.Method
	liveFields        map[itemfactory.DexField]*definitions.Field
	fieldAccessInfo   map[itemfactory.DexField]*FieldAccessInfo
	virtualTargets    map[itemfactory.DexMethod]map[itemfactory.DexMethod]bool
	traced            tracedIndex
	reasons           map[interface{}][]Reason
	callSites         []CallSiteTarget
	syntheticClasses  []*definitions.Class

	// conditionalMethods and conditionalFields hold -keepclassmembers
	// matches resolved once at SeedFrom time, keyed by holder type; fired
	// from applyTypeLive when the holder independently becomes live.
	conditionalMethods map[itemfactory.DexType][]*definitions.Method
	conditionalFields  map[itemfactory.DexType][]*definitions.Field

	// pending queues drained once per round.
	pendingTypeLive         []itemfactory.DexType
	pendingInstantiate      []itemfactory.DexType
	pendingMethodLive       []*definitions.Method
	pendingFieldLive        []fieldLiveTask
	pendingTrace            []*definitions.Method
	pendingServiceIface     []itemfactory.DexType
	pendingReflectiveType   []itemfactory.DexType
	pendingReflectiveMethod []itemfactory.DexMethod
	pendingReflectiveField  []itemfactory.DexField
	pendingAnnotationScan   []annotationScanTask
}

type fieldLiveTask struct {
	field      *definitions.Field
	read       bool
	write      bool
	viaMH      bool
	reflective bool
}

type annotationScanTask struct {
	annotations []definitions.Annotation
}

// New creates an Enqueuer over program, seeded from nothing; call SeedFrom
// to load a RootSet before Run.
func New(program *definitions.Program, hierarchy *appinfo.HierarchyIndex, cfg Config) *Enqueuer {
	e := &Enqueuer{
		program:            program,
		hierarchy:          hierarchy,
		resolver:           appinfo.NewResolver(program, hierarchy),
		factory:            program.Factory(),
		cfg:                cfg,
		liveTypes:          make(map[itemfactory.DexType]bool),
		instantiatedTypes:  make(map[itemfactory.DexType]bool),
		liveMethods:        make(map[itemfactory.DexMethod]*definitions.Method),
		liveFields:         make(map[itemfactory.DexField]*definitions.Field),
		fieldAccessInfo:    make(map[itemfactory.DexField]*FieldAccessInfo),
		virtualTargets:     make(map[itemfactory.DexMethod]map[itemfactory.DexMethod]bool),
		reasons:            make(map[interface{}][]Reason),
		conditionalMethods: make(map[itemfactory.DexType][]*definitions.Method),
		conditionalFields:  make(map[itemfactory.DexType][]*definitions.Field),
	}
	return e
}

// SeedFrom loads every reference in root into the Enqueuer's initial
// worklists. root.ConditionalMethods/ConditionalFields (-keepclassmembers
// matches) are resolved here but not enqueued: they are only fired by
// applyTypeLive once their holder becomes live some other way.
func (e *Enqueuer) SeedFrom(root *rootset.RootSet) {
	for t := range root.LiveTypes {
		e.enqueueTypeLive(t, Reason{Description: "kept by rule"})
	}
	for t := range root.InstantiatedTypes {
		e.enqueueInstantiated(t, Reason{Description: "kept as instantiated root"})
	}
	for ref := range root.LiveMethods {
		if c, ok := e.program.DefinitionFor(ref.Holder()); ok {
			if m := c.LookupMethod(ref); m != nil {
				e.enqueueMethodLive(m, Reason{Description: "kept by rule"})
			}
		}
	}
	for ref := range root.LiveFields {
		if c, ok := e.program.DefinitionFor(ref.Holder()); ok {
			if f := c.LookupField(ref); f != nil {
				e.markFieldLive(f, Reason{Description: "kept by rule"})
			}
		}
	}
	for holder, refs := range root.ConditionalMethods {
		c, ok := e.program.DefinitionFor(holder)
		if !ok {
			continue
		}
		for _, ref := range refs {
			if m := c.LookupMethod(ref); m != nil {
				e.conditionalMethods[holder] = append(e.conditionalMethods[holder], m)
			}
		}
	}
	for holder, refs := range root.ConditionalFields {
		c, ok := e.program.DefinitionFor(holder)
		if !ok {
			continue
		}
		for _, ref := range refs {
			if f := c.LookupField(ref); f != nil {
				e.conditionalFields[holder] = append(e.conditionalFields[holder], f)
			}
		}
	}
}
