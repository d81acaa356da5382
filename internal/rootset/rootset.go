// Package rootset builds the initial reachability seed the Enqueuer starts
// its fixed-point computation from: the live/instantiated/pinned reference
// sets derived from matched keep rules, plus the per-reference attribute
// sets (no-shrinking, no-obfuscation, ...) that later stages consult.
package rootset

import (
	"sort"

	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/rules"
)

// ReasonEntry records why a reference was pinned, for -whyareyoukeeping
// reporting.
type ReasonEntry struct {
	Rule rules.Rule
}

// RootSet is the seed reachability state the Enqueuer starts from.
type RootSet struct {
	LiveTypes         map[itemfactory.DexType]bool
	InstantiatedTypes map[itemfactory.DexType]bool
	LiveFields        map[itemfactory.DexField]bool
	LiveMethods       map[itemfactory.DexMethod]bool

	// ConditionalMethods and ConditionalFields hold -keepclassmembers
	// matches, keyed by declaring type: unlike LiveMethods/LiveFields these
	// are never seeded as unconditional roots. The Enqueuer only fires one
	// once its key type independently becomes live, so a keepclassmembers
	// rule never resurrects an otherwise-unreachable class.
	ConditionalMethods map[itemfactory.DexType][]itemfactory.DexMethod
	ConditionalFields  map[itemfactory.DexType][]itemfactory.DexField

	Pinned               map[itemfactory.DexType]bool
	PinnedMethods        map[itemfactory.DexMethod]bool
	PinnedFields         map[itemfactory.DexField]bool
	NoObfuscation        map[interface{}]bool
	NoShrinking          map[interface{}]bool
	NoAccessModification map[interface{}]bool
	CheckDiscard         map[interface{}]bool
	AssumeNoSideEffects  map[itemfactory.DexMethod]bool

	ReasonAsked map[interface{}][]ReasonEntry

	// ApplyMapping holds externally supplied class renames, keyed by
	// original type, to seed the minifier.
	ApplyMapping map[itemfactory.DexType]string

	DontOptimize, DontShrink, DontObfuscate bool
}

// New creates an empty RootSet.
func New() *RootSet {
	return &RootSet{
		LiveTypes:            make(map[itemfactory.DexType]bool),
		InstantiatedTypes:    make(map[itemfactory.DexType]bool),
		LiveFields:           make(map[itemfactory.DexField]bool),
		LiveMethods:          make(map[itemfactory.DexMethod]bool),
		ConditionalMethods:   make(map[itemfactory.DexType][]itemfactory.DexMethod),
		ConditionalFields:    make(map[itemfactory.DexType][]itemfactory.DexField),
		Pinned:               make(map[itemfactory.DexType]bool),
		PinnedMethods:        make(map[itemfactory.DexMethod]bool),
		PinnedFields:         make(map[itemfactory.DexField]bool),
		NoObfuscation:        make(map[interface{}]bool),
		NoShrinking:          make(map[interface{}]bool),
		NoAccessModification: make(map[interface{}]bool),
		CheckDiscard:         make(map[interface{}]bool),
		AssumeNoSideEffects:  make(map[itemfactory.DexMethod]bool),
		ReasonAsked:          make(map[interface{}][]ReasonEntry),
		ApplyMapping:         make(map[itemfactory.DexType]string),
	}
}

// Builder folds matched rules into a RootSet one rule at a time.
type Builder struct {
	set *RootSet
}

// NewBuilder creates a Builder writing into a fresh RootSet.
func NewBuilder() *Builder {
	return &Builder{set: New()}
}

// Build applies every matched rule to the root set and returns it.
func (b *Builder) Build(matched []rules.MatchedRule) *RootSet {
	for _, mr := range matched {
		b.apply(mr)
	}
	return b.set
}

func (b *Builder) apply(mr rules.MatchedRule) {
	r := mr.Rule
	switch r.Directive {
	case rules.DirectiveKeep, rules.DirectiveKeepClassesWithMembers:
		b.applyKeep(mr, true)
	case rules.DirectiveKeepClassMembers:
		b.applyKeep(mr, false)
	case rules.DirectiveCheckDiscard:
		b.applyCheckDiscard(mr)
	case rules.DirectiveAssumeNoSideEffects:
		b.applyAssumeNoSideEffects(mr)
	case rules.DirectiveWhyAreYouKeeping:
		b.applyReasonAsked(mr)
	case rules.DirectiveDontOptimize:
		b.set.DontOptimize = true
	case rules.DirectiveDontShrink:
		b.set.DontShrink = true
	case rules.DirectiveDontObfuscate:
		b.set.DontObfuscate = true
	case rules.DirectiveApplyMapping:
		// Populated by the caller from the mapping file contents; the rule
		// itself only names the file (r.Args[0]), parsed upstream of the
		// root set builder.
	}
}

func (b *Builder) applyKeep(mr rules.MatchedRule, keepClassItself bool) {
	r := mr.Rule
	for _, c := range mr.Classes {
		if keepClassItself {
			b.set.LiveTypes[c.Type] = true
			if !r.HasModifier(rules.AllowShrinking) {
				b.set.Pinned[c.Type] = true
			}
			if !r.HasModifier(rules.AllowObfuscation) {
				b.set.NoObfuscation[c.Type] = true
			}
			if !r.HasModifier(rules.AllowAccessModification) {
				b.set.NoAccessModification[c.Type] = true
			}
			b.set.InstantiatedTypes[c.Type] = true
		}
		members := mr.Members[c.Type]
		if len(members) == 0 && len(r.Class.Members) == 0 {
			// No member selector: a bare `-keep class Foo` also keeps every
			// declared member, matching ProGuard's default behavior for an
			// empty member list.
			for _, m := range c.AllMethods() {
				b.keepMethod(r, m, c.Type, keepClassItself)
			}
			for _, f := range c.AllFields() {
				b.keepField(r, f, c.Type, keepClassItself)
			}
			continue
		}
		for _, mm := range members {
			if mm.Method != nil {
				b.keepMethod(r, mm.Method, c.Type, keepClassItself)
			}
			if mm.Field != nil {
				b.keepField(r, mm.Field, c.Type, keepClassItself)
			}
		}
	}
}

// keepMethod records a keep on m. When unconditional is false (a
// -keepclassmembers match), m is not added to LiveMethods: it is recorded
// under ConditionalMethods so the Enqueuer only marks it live once holder
// independently becomes live, matching -keepclassmembers's "conditional
// on the type" semantics rather than -keep's "root regardless" semantics.
func (b *Builder) keepMethod(r rules.Rule, m *definitions.Method, holder itemfactory.DexType, unconditional bool) {
	if unconditional {
		b.set.LiveMethods[m.Reference] = true
	} else {
		b.set.ConditionalMethods[holder] = append(b.set.ConditionalMethods[holder], m.Reference)
	}
	if !r.HasModifier(rules.AllowShrinking) {
		b.set.PinnedMethods[m.Reference] = true
	}
	if !r.HasModifier(rules.AllowObfuscation) {
		b.set.NoObfuscation[m.Reference] = true
	}
	if !r.HasModifier(rules.AllowAccessModification) {
		b.set.NoAccessModification[m.Reference] = true
	}
	b.set.ReasonAsked[m.Reference] = append(b.set.ReasonAsked[m.Reference], ReasonEntry{Rule: r})
}

// keepField mirrors keepMethod for fields.
func (b *Builder) keepField(r rules.Rule, f *definitions.Field, holder itemfactory.DexType, unconditional bool) {
	if unconditional {
		b.set.LiveFields[f.Reference] = true
	} else {
		b.set.ConditionalFields[holder] = append(b.set.ConditionalFields[holder], f.Reference)
	}
	if !r.HasModifier(rules.AllowShrinking) {
		b.set.PinnedFields[f.Reference] = true
	}
	if !r.HasModifier(rules.AllowObfuscation) {
		b.set.NoObfuscation[f.Reference] = true
	}
	if !r.HasModifier(rules.AllowAccessModification) {
		b.set.NoAccessModification[f.Reference] = true
	}
	b.set.ReasonAsked[f.Reference] = append(b.set.ReasonAsked[f.Reference], ReasonEntry{Rule: r})
}

func (b *Builder) applyCheckDiscard(mr rules.MatchedRule) {
	for _, c := range mr.Classes {
		members := mr.Members[c.Type]
		if len(members) == 0 {
			b.set.CheckDiscard[c.Type] = true
			continue
		}
		for _, mm := range members {
			if mm.Method != nil {
				b.set.CheckDiscard[mm.Method.Reference] = true
			}
			if mm.Field != nil {
				b.set.CheckDiscard[mm.Field.Reference] = true
			}
		}
	}
}

func (b *Builder) applyAssumeNoSideEffects(mr rules.MatchedRule) {
	for _, c := range mr.Classes {
		for _, mm := range mr.Members[c.Type] {
			if mm.Method != nil {
				b.set.AssumeNoSideEffects[mm.Method.Reference] = true
			}
		}
	}
}

func (b *Builder) applyReasonAsked(mr rules.MatchedRule) {
	for _, c := range mr.Classes {
		b.set.ReasonAsked[c.Type] = append(b.set.ReasonAsked[c.Type], ReasonEntry{Rule: mr.Rule})
		for _, mm := range mr.Members[c.Type] {
			if mm.Method != nil {
				b.set.ReasonAsked[mm.Method.Reference] = append(b.set.ReasonAsked[mm.Method.Reference], ReasonEntry{Rule: mr.Rule})
			}
			if mm.Field != nil {
				b.set.ReasonAsked[mm.Field.Reference] = append(b.set.ReasonAsked[mm.Field.Reference], ReasonEntry{Rule: mr.Rule})
			}
		}
	}
}

// SortedLiveTypeDescriptors returns every live type's descriptor sorted, for
// deterministic seeds-output rendering.
func (s *RootSet) SortedLiveTypeDescriptors() []string {
	out := make([]string, 0, len(s.LiveTypes))
	for t := range s.LiveTypes {
		out = append(out, t.Descriptor())
	}
	sort.Strings(out)
	return out
}
