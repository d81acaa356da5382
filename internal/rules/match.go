package rules

import (
	"strings"

	"github.com/gobwas/glob"
	"github.com/r8core/r8/internal/appinfo"
	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
)

// MemberMatch names one field or method a ClassSpec's member pattern
// matched. Exactly one of Method or Field is set.
type MemberMatch struct {
	Method *definitions.Method
	Field  *definitions.Field
}

// MatchedRule pairs a parsed Rule with the classes (and, for each class,
// members) it matched in a particular program.
type MatchedRule struct {
	Rule    Rule
	Classes []*definitions.Class
	Members map[itemfactory.DexType][]MemberMatch
}

// Matcher evaluates a RuleSet against a definitions.Program.
type Matcher struct {
	program   *definitions.Program
	hierarchy *appinfo.HierarchyIndex
}

// NewMatcher creates a Matcher over the given program and hierarchy
// snapshot.
func NewMatcher(program *definitions.Program, hierarchy *appinfo.HierarchyIndex) *Matcher {
	return &Matcher{program: program, hierarchy: hierarchy}
}

// Match evaluates every rule in rs against the program, returning one
// MatchedRule per input rule (in the same order, including rules that
// matched nothing).
func (m *Matcher) Match(rs *RuleSet) []MatchedRule {
	out := make([]MatchedRule, 0, len(rs.Rules))
	for _, r := range rs.Rules {
		out = append(out, m.matchOne(r))
	}
	return out
}

func (m *Matcher) matchOne(r Rule) MatchedRule {
	mr := MatchedRule{Rule: r, Members: make(map[itemfactory.DexType][]MemberMatch)}
	if r.Class == nil {
		return mr
	}
	for _, c := range m.program.Classes() {
		if r.Condition != nil && !m.classMatches(c, r.Condition) {
			continue
		}
		if !m.classMatches(c, r.Class) {
			continue
		}
		members := m.matchMembers(c, r.Class.Members)
		switch r.Directive {
		case DirectiveKeepClassesWithMembers:
			// Atomic match: every member pattern in the rule must find at
			// least one matching member.
			if len(r.Class.Members) > 0 && !m.allPatternsSatisfied(c, r.Class.Members, members) {
				continue
			}
		}
		mr.Classes = append(mr.Classes, c)
		if len(members) > 0 {
			mr.Members[c.Type] = members
		}
	}
	return mr
}

// allPatternsSatisfied reports whether every pattern in patterns matched at
// least one member of c.
func (m *Matcher) allPatternsSatisfied(c *definitions.Class, patterns []MemberPattern, matched []MemberMatch) bool {
	for _, pat := range patterns {
		satisfied := false
		for _, mm := range matched {
			if memberMatchesPattern(mm, pat) {
				satisfied = true
				break
			}
		}
		if !satisfied {
			return false
		}
	}
	return true
}

func (m *Matcher) classMatches(c *definitions.Class, spec *ClassSpec) bool {
	name := javaClassName(c.Type)
	if spec.NameGlob != nil && !spec.NameGlob.Match(name) {
		return false
	}
	if !accessMatches(c.Access, spec.Access) {
		return false
	}
	if spec.Annotation != nil && !anyAnnotationMatches(c.Annotations, spec.Annotation) {
		return false
	}
	if spec.Inheritance != nil {
		if !m.inheritanceMatches(c, spec.Inheritance) {
			return false
		}
	}
	return true
}

func (m *Matcher) inheritanceMatches(c *definitions.Class, sel *InheritanceSelector) bool {
	for _, sup := range m.hierarchy.Supertypes(c.Type) {
		if sel.NameGlob.Match(javaClassName(sup)) {
			return true
		}
	}
	return false
}

func accessMatches(flags definitions.AccessFlags, f ClassAccessFilter) bool {
	if f.Public && !flags.IsPublic() {
		return false
	}
	if f.NotPublic && flags.IsPublic() {
		return false
	}
	if f.Final && !flags.IsFinal() {
		return false
	}
	if f.NotFinal && flags.IsFinal() {
		return false
	}
	if f.Abstract && !flags.IsAbstract() {
		return false
	}
	if f.NotAbstract && flags.IsAbstract() {
		return false
	}
	if f.Interface && !flags.IsInterface() {
		return false
	}
	if f.NotInterface && flags.IsInterface() {
		return false
	}
	if f.Enum && !flags.IsEnum() {
		return false
	}
	if f.NotEnum && flags.IsEnum() {
		return false
	}
	if f.Synthetic && !flags.IsSynthetic() {
		return false
	}
	if f.NotSynthetic && flags.IsSynthetic() {
		return false
	}
	if f.Annotation && !flags.IsAnnotation() {
		return false
	}
	if f.NotAnnotation && flags.IsAnnotation() {
		return false
	}
	return true
}

func memberAccessMatches(flags definitions.AccessFlags, f MemberAccessFilter) bool {
	if f.Public && !flags.IsPublic() {
		return false
	}
	if f.NotPublic && flags.IsPublic() {
		return false
	}
	if f.Private && !flags.IsPrivate() {
		return false
	}
	if f.NotPrivate && flags.IsPrivate() {
		return false
	}
	if f.Protected && !flags.IsProtected() {
		return false
	}
	if f.NotProtected && flags.IsProtected() {
		return false
	}
	if f.Static && !flags.IsStatic() {
		return false
	}
	if f.NotStatic && flags.IsStatic() {
		return false
	}
	if f.Final && !flags.IsFinal() {
		return false
	}
	if f.NotFinal && flags.IsFinal() {
		return false
	}
	if f.Abstract && !flags.IsAbstract() {
		return false
	}
	if f.NotAbstract && flags.IsAbstract() {
		return false
	}
	if f.Synthetic && !flags.IsSynthetic() {
		return false
	}
	if f.NotSynthetic && flags.IsSynthetic() {
		return false
	}
	if f.Native && !flags.IsNative() {
		return false
	}
	if f.NotNative && flags.IsNative() {
		return false
	}
	return true
}

func anyAnnotationMatches(anns []definitions.Annotation, g glob.Glob) bool {
	for _, a := range anns {
		if g.Match(javaClassName(a.Type)) {
			return true
		}
	}
	return false
}

func (m *Matcher) matchMembers(c *definitions.Class, patterns []MemberPattern) []MemberMatch {
	if len(patterns) == 0 {
		return nil
	}
	var out []MemberMatch
	for _, f := range c.AllFields() {
		for _, pat := range patterns {
			if pat.Kind != MemberField && pat.Kind != MemberAnyFieldOrMethod {
				continue
			}
			mm := MemberMatch{Field: f}
			if memberMatchesPattern(mm, pat) {
				out = append(out, mm)
				break
			}
		}
	}
	for _, meth := range c.AllMethods() {
		for _, pat := range patterns {
			if pat.Kind != MemberMethod && pat.Kind != MemberAnyFieldOrMethod && pat.Kind != MemberConstructor {
				continue
			}
			if pat.Kind == MemberConstructor && !meth.IsInstanceInit() {
				continue
			}
			mm := MemberMatch{Method: meth}
			if memberMatchesPattern(mm, pat) {
				out = append(out, mm)
				break
			}
		}
	}
	return out
}

func memberMatchesPattern(mm MemberMatch, pat MemberPattern) bool {
	switch {
	case mm.Field != nil:
		if pat.Kind != MemberField && pat.Kind != MemberAnyFieldOrMethod {
			return false
		}
		if !memberAccessMatches(mm.Field.Access, pat.Access) {
			return false
		}
		if pat.NameGlob != nil && !pat.NameGlob.Match(mm.Field.Reference.Name().String()) {
			return false
		}
		if pat.TypeGlob != nil && !pat.TypeGlob.Match(javaTypeName(mm.Field.Reference.Type())) {
			return false
		}
		if pat.Annotation != nil && !anyAnnotationMatches(mm.Field.Annotations, pat.Annotation) {
			return false
		}
		return true
	case mm.Method != nil:
		if pat.Kind == MemberConstructor {
			if !mm.Method.IsInstanceInit() {
				return false
			}
		} else if pat.Kind != MemberMethod && pat.Kind != MemberAnyFieldOrMethod {
			return false
		}
		if !memberAccessMatches(mm.Method.Access, pat.Access) {
			return false
		}
		if pat.NameGlob != nil && pat.Kind != MemberConstructor && !pat.NameGlob.Match(mm.Method.Reference.Name().String()) {
			return false
		}
		if pat.TypeGlob != nil && pat.Kind != MemberConstructor && !pat.TypeGlob.Match(javaTypeName(mm.Method.Reference.Proto().ReturnType())) {
			return false
		}
		if pat.HasParams && !paramsMatch(mm.Method.Reference.Proto().Parameters(), pat.Params) {
			return false
		}
		if pat.Annotation != nil && !anyAnnotationMatches(mm.Method.Annotations, pat.Annotation) {
			return false
		}
		return true
	default:
		return false
	}
}

// paramsMatch reports whether params, rendered as ProGuard source-name
// types, matches the parenthesized parameter pattern list exactly: same
// count, each glob matching the corresponding parameter in order.
func paramsMatch(params []itemfactory.DexType, patterns []glob.Glob) bool {
	if len(params) != len(patterns) {
		return false
	}
	for i, p := range patterns {
		if !p.Match(javaTypeName(params[i])) {
			return false
		}
	}
	return true
}

// javaClassName converts an internal type descriptor like "Lcom/foo/Bar;"
// into the dotted form ProGuard patterns are written against, e.g.
// "com.foo.Bar". Non-class descriptors are returned unchanged.
func javaClassName(t itemfactory.DexType) string {
	bin := t.BinaryName()
	if bin == "" {
		return t.Descriptor()
	}
	return strings.ReplaceAll(bin, "/", ".")
}

// javaTypeName converts a JVM type descriptor into its ProGuard source-name
// form, e.g. "I" -> "int", "Ljava/lang/String;" -> "java.lang.String",
// "[I" -> "int[]".
func javaTypeName(t itemfactory.DexType) string {
	d := t.Descriptor()
	suffix := ""
	for strings.HasPrefix(d, "[") {
		d = d[1:]
		suffix += "[]"
	}
	switch d {
	case "V":
		return "void" + suffix
	case "Z":
		return "boolean" + suffix
	case "B":
		return "byte" + suffix
	case "C":
		return "char" + suffix
	case "S":
		return "short" + suffix
	case "I":
		return "int" + suffix
	case "J":
		return "long" + suffix
	case "F":
		return "float" + suffix
	case "D":
		return "double" + suffix
	}
	if strings.HasPrefix(d, "L") && strings.HasSuffix(d, ";") {
		return strings.ReplaceAll(d[1:len(d)-1], "/", ".") + suffix
	}
	return d + suffix
}
