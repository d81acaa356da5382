// Package rules parses and evaluates ProGuard-style keep/shrink rules
// against the definitions model. A hand-written recursive-descent parser
// reads whitespace-delimited rule tokens into a multi-token rule grammar
// with nested class/member specs, and a separate matcher evaluates the
// parsed rules against a definitions.Program.
package rules

import "github.com/gobwas/glob"

// Directive names a recognized rule keyword.
type Directive string

const (
	DirectiveKeep                    Directive = "keep"
	DirectiveKeepClassMembers        Directive = "keepclassmembers"
	DirectiveKeepClassesWithMembers  Directive = "keepclasseswithmembers"
	DirectiveAssumeNoSideEffects     Directive = "assumenosideeffects"
	DirectiveAssumeValues            Directive = "assumevalues"
	DirectiveIf                      Directive = "if"
	DirectiveCheckDiscard            Directive = "checkdiscard"
	DirectiveWhyAreYouKeeping        Directive = "whyareyoukeeping"
	DirectiveWhyAreYouNotInlining    Directive = "whyareyounotinlining"
	DirectivePrintMapping            Directive = "printmapping"
	DirectivePrintUsage              Directive = "printusage"
	DirectivePrintSeeds              Directive = "printseeds"
	DirectiveRepackageClasses        Directive = "repackageclasses"
	DirectiveFlattenPackageHierarchy Directive = "flattenpackagehierarchy"
	DirectiveDontOptimize            Directive = "dontoptimize"
	DirectiveDontShrink              Directive = "dontshrink"
	DirectiveDontObfuscate           Directive = "dontobfuscate"
	DirectiveApplyMapping            Directive = "applymapping"
)

// keepFamily is the set of directives that accept a class/member spec and
// participate in root-set construction.
var keepFamily = map[Directive]bool{
	DirectiveKeep:                   true,
	DirectiveKeepClassMembers:       true,
	DirectiveKeepClassesWithMembers: true,
}

// Modifier is a bit flag attached to a keep-family directive.
type Modifier uint8

const (
	AllowObfuscation Modifier = 1 << iota
	AllowShrinking
	AllowAccessModification
)

// ClassAccessFilter constrains which access flags a class must or must not
// have to match a ClassSpec. A flag whose X and NotX fields are both false
// means "don't care".
type ClassAccessFilter struct {
	Public, NotPublic         bool
	Final, NotFinal           bool
	Abstract, NotAbstract     bool
	Interface, NotInterface   bool
	Enum, NotEnum             bool
	Synthetic, NotSynthetic   bool
	Annotation, NotAnnotation bool
}

// MemberKind tags whether a MemberPattern matches fields, methods, or both
// (the bare `<fields>`/`<methods>`/`<init>` wildcards).
type MemberKind uint8

const (
	MemberField MemberKind = iota
	MemberMethod
	MemberAnyFieldOrMethod
	MemberConstructor
)

// MemberAccessFilter constrains a member's access flags, mirroring
// ClassAccessFilter but over the member-applicable flag set.
type MemberAccessFilter struct {
	Public, NotPublic       bool
	Private, NotPrivate     bool
	Protected, NotProtected bool
	Static, NotStatic       bool
	Final, NotFinal         bool
	Abstract, NotAbstract   bool
	Synthetic, NotSynthetic bool
	Native, NotNative       bool
}

// MemberPattern matches zero or more fields/methods of a class matched by
// the enclosing ClassSpec.
type MemberPattern struct {
	Kind        MemberKind
	Access      MemberAccessFilter
	Annotation  glob.Glob // nil if unconstrained
	TypeGlob    glob.Glob // return type for methods, field type for fields; nil if unconstrained (wildcard <fields>/<methods>)
	NameGlob    glob.Glob
	Params      []glob.Glob // nil means "no parameter constraint" (fields, or a bare name with no parens)
	HasParams   bool        // true once "(...)" was parsed, even if Params is empty (a no-arg method)
}

// InheritanceSelector constrains a ClassSpec to classes that extend or
// implement a particular named (possibly globbed) supertype.
type InheritanceSelector struct {
	Implements bool // true for "implements", false for "extends"
	NameGlob   glob.Glob
}

// ClassSpec matches a set of classes by name, access flags, annotation, and
// optional inheritance relationship, each with an optional member selector.
type ClassSpec struct {
	NameGlob    glob.Glob
	Access      ClassAccessFilter
	Annotation  glob.Glob // nil if unconstrained
	Inheritance *InheritanceSelector
	Members     []MemberPattern
}

// Rule is one parsed directive with its operand class spec(s) and
// modifiers.
type Rule struct {
	Directive Directive
	Modifiers Modifier
	Class     *ClassSpec // nil for directives that take no class spec (e.g. dontoptimize)
	// Condition holds the optional `-if <classspec>` predicate preceding a
	// keep-family directive: the keep only applies to classes also matched
	// by Condition.
	Condition *ClassSpec
	// Args carries directive-specific bare arguments, e.g. a mapping file
	// path for applymapping or printmapping.
	Args []string
	// Origin names the rule's source for diagnostics (file path or
	// "<inline>").
	Origin string
	Line   int
}

func (r Rule) HasModifier(m Modifier) bool { return r.Modifiers&m == m }

// RuleSet is an ordered collection of parsed rules.
type RuleSet struct {
	Rules []Rule
}
