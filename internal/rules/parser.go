package rules

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// tokenize splits rule-file text into a stream of tokens: words (anything
// that isn't punctuation or whitespace) and the standalone punctuation runes
// '{', '}', '(', ')', ',', ';', '!', ':'. A '#' outside of a word starts a
// comment that runs to end of line.
func tokenize(text string) []string {
	var tokens []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case r == '#':
			flush()
			for i < len(runes) && runes[i] != '\n' {
				i++
			}
		case r == '{' || r == '}' || r == '(' || r == ')' || r == ',' || r == ';' || r == '!' || r == ':':
			flush()
			tokens = append(tokens, string(r))
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			flush()
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

// Tokenize exposes tokenize to callers outside the package that need to
// turn raw rule text into a token stream before combining several sources
// and running ExpandAtFiles once over the result.
func Tokenize(text string) []string { return tokenize(text) }

// ExpandAtFiles replaces any "@path" token with the whitespace-separated
// tokens of the file at path. readFile is injected so the parser has no
// filesystem dependency.
func ExpandAtFiles(tokens []string, readFile func(path string) (string, error)) ([]string, error) {
	var out []string
	for _, tok := range tokens {
		if strings.HasPrefix(tok, "@") {
			path := tok[1:]
			content, err := readFile(path)
			if err != nil {
				return nil, fmt.Errorf("expanding @%s: %w", path, err)
			}
			out = append(out, tokenize(content)...)
			continue
		}
		out = append(out, tok)
	}
	return out, nil
}

type parser struct {
	tokens []string
	pos    int
	origin string
}

func (p *parser) peek() string {
	if p.pos >= len(p.tokens) {
		return ""
	}
	return p.tokens[p.pos]
}

func (p *parser) next() string {
	t := p.peek()
	p.pos++
	return t
}

func (p *parser) atEnd() bool { return p.pos >= len(p.tokens) }

// Parse parses a stream of already-tokenized, @file-expanded rule tokens
// into a RuleSet.
func Parse(tokens []string, origin string) (*RuleSet, error) {
	p := &parser{tokens: tokens, origin: origin}
	var rs RuleSet
	for !p.atEnd() {
		tok := p.next()
		if !strings.HasPrefix(tok, "-") {
			return nil, fmt.Errorf("%s: expected a directive starting with '-', got %q", origin, tok)
		}
		rule, err := p.parseRule(strings.TrimPrefix(tok, "-"))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", origin, err)
		}
		rs.Rules = append(rs.Rules, rule)
	}
	return &rs, nil
}

func (p *parser) parseRule(name string) (Rule, error) {
	base, modPart := splitModifiers(name)
	// tokenize emits ',' as a token of its own, so "-keep,allowshrinking"
	// arrives as "-keep", ",", "allowshrinking".
	for p.peek() == "," {
		p.next()
		modPart = append(modPart, p.next())
	}
	dir := Directive(base)
	rule := Rule{Directive: dir, Origin: p.origin}

	for _, m := range modPart {
		switch m {
		case "allowobfuscation":
			rule.Modifiers |= AllowObfuscation
		case "allowshrinking":
			rule.Modifiers |= AllowShrinking
		case "allowaccessmodification":
			rule.Modifiers |= AllowAccessModification
		default:
			return Rule{}, fmt.Errorf("unknown modifier %q on directive %q", m, base)
		}
	}

	if dir == DirectiveIf {
		cond, err := p.parseClassSpec()
		if err != nil {
			return Rule{}, fmt.Errorf("parsing -if condition: %w", err)
		}
		rule.Condition = cond
		if !strings.HasPrefix(p.peek(), "-") {
			return Rule{}, fmt.Errorf("-if must be followed by a keep-family directive")
		}
		next := strings.TrimPrefix(p.next(), "-")
		inner, err := p.parseRule(next)
		if err != nil {
			return Rule{}, err
		}
		inner.Condition = cond
		return inner, nil
	}

	if keepFamily[dir] || dir == DirectiveCheckDiscard || dir == DirectiveWhyAreYouKeeping ||
		dir == DirectiveWhyAreYouNotInlining || dir == DirectiveAssumeNoSideEffects || dir == DirectiveAssumeValues {
		spec, err := p.parseClassSpec()
		if err != nil {
			return Rule{}, fmt.Errorf("parsing class spec for -%s: %w", base, err)
		}
		rule.Class = spec
		return rule, nil
	}

	// Remaining directives (printmapping, applymapping, repackageclasses,
	// dontoptimize, ...) take zero or one bare argument and no class spec.
	for !p.atEnd() && !strings.HasPrefix(p.peek(), "-") {
		rule.Args = append(rule.Args, p.next())
	}
	return rule, nil
}

func splitModifiers(name string) (base string, mods []string) {
	parts := strings.Split(name, ",")
	return parts[0], parts[1:]
}

// parseClassSpec parses an access-flag/name/inheritance/annotation header
// optionally followed by a brace-delimited member list.
func (p *parser) parseClassSpec() (*ClassSpec, error) {
	spec := &ClassSpec{}
	for {
		tok := p.peek()
		negate := false
		if tok == "!" {
			p.next()
			negate = true
			tok = p.peek()
		}
		switch tok {
		case "public":
			p.next()
			setFlag(&spec.Access.Public, &spec.Access.NotPublic, negate)
		case "final":
			p.next()
			setFlag(&spec.Access.Final, &spec.Access.NotFinal, negate)
		case "abstract":
			p.next()
			setFlag(&spec.Access.Abstract, &spec.Access.NotAbstract, negate)
		case "enum":
			p.next()
			setFlag(&spec.Access.Enum, &spec.Access.NotEnum, negate)
		case "synthetic":
			p.next()
			setFlag(&spec.Access.Synthetic, &spec.Access.NotSynthetic, negate)
		case "@interface":
			p.next()
			setFlag(&spec.Access.Annotation, &spec.Access.NotAnnotation, negate)
		case "interface", "class":
			p.next()
			if tok == "interface" {
				setFlag(&spec.Access.Interface, &spec.Access.NotInterface, negate)
			}
			goto haveKind
		default:
			if negate {
				return nil, fmt.Errorf("unexpected '!' before %q", tok)
			}
			goto haveKind
		}
	}
haveKind:
	if strings.HasPrefix(p.peek(), "@") {
		annGlob, err := compileGlob(strings.TrimPrefix(p.next(), "@"))
		if err != nil {
			return nil, err
		}
		spec.Annotation = annGlob
		// The class keyword follows the annotation.
		if p.peek() == "class" || p.peek() == "interface" {
			p.next()
		}
	}
	name := p.next()
	if name == "" {
		return nil, fmt.Errorf("expected a class name pattern")
	}
	if name == "*" {
		// A lone "*" names every class, in any package.
		name = "**"
	}
	nameGlob, err := compileGlob(name)
	if err != nil {
		return nil, err
	}
	spec.NameGlob = nameGlob

	if p.peek() == "extends" || p.peek() == "implements" {
		kw := p.next()
		supName := p.next()
		supGlob, err := compileGlob(supName)
		if err != nil {
			return nil, err
		}
		spec.Inheritance = &InheritanceSelector{Implements: kw == "implements", NameGlob: supGlob}
	}

	if p.peek() == "{" {
		p.next()
		for p.peek() != "}" {
			if p.atEnd() {
				return nil, fmt.Errorf("unterminated member list")
			}
			member, err := p.parseMemberPattern()
			if err != nil {
				return nil, err
			}
			spec.Members = append(spec.Members, member)
		}
		p.next() // consume "}"
	}
	return spec, nil
}

func setFlag(pos, neg *bool, negate bool) {
	if negate {
		*neg = true
	} else {
		*pos = true
	}
}

func (p *parser) parseMemberPattern() (MemberPattern, error) {
	var m MemberPattern
	for {
		tok := p.peek()
		negate := false
		if tok == "!" {
			p.next()
			negate = true
			tok = p.peek()
		}
		switch tok {
		case "public":
			p.next()
			setFlag(&m.Access.Public, &m.Access.NotPublic, negate)
		case "private":
			p.next()
			setFlag(&m.Access.Private, &m.Access.NotPrivate, negate)
		case "protected":
			p.next()
			setFlag(&m.Access.Protected, &m.Access.NotProtected, negate)
		case "static":
			p.next()
			setFlag(&m.Access.Static, &m.Access.NotStatic, negate)
		case "final":
			p.next()
			setFlag(&m.Access.Final, &m.Access.NotFinal, negate)
		case "abstract":
			p.next()
			setFlag(&m.Access.Abstract, &m.Access.NotAbstract, negate)
		case "synthetic":
			p.next()
			setFlag(&m.Access.Synthetic, &m.Access.NotSynthetic, negate)
		case "native":
			p.next()
			setFlag(&m.Access.Native, &m.Access.NotNative, negate)
		default:
			goto haveAccess
		}
	}
haveAccess:
	if strings.HasPrefix(p.peek(), "@") {
		annGlob, err := compileGlob(strings.TrimPrefix(p.next(), "@"))
		if err != nil {
			return MemberPattern{}, err
		}
		m.Annotation = annGlob
	}

	if p.peek() == "*" && p.pos+1 < len(p.tokens) && p.tokens[p.pos+1] == ";" {
		p.next()
		m.Kind = MemberAnyFieldOrMethod
		expect(p, ";")
		return m, nil
	}

	switch p.peek() {
	case "<fields>":
		p.next()
		m.Kind = MemberField
		expect(p, ";")
		return m, nil
	case "<methods>":
		p.next()
		m.Kind = MemberMethod
		expect(p, ";")
		return m, nil
	case "<init>":
		p.next()
		m.Kind = MemberConstructor
		if p.peek() == "(" {
			params, err := p.parseParamList()
			if err != nil {
				return MemberPattern{}, err
			}
			m.Params = params
			m.HasParams = true
		}
		expect(p, ";")
		return m, nil
	}

	typeTok := p.next()
	typeGlob, err := compileGlob(typeTok)
	if err != nil {
		return MemberPattern{}, err
	}
	m.TypeGlob = typeGlob

	nameTok := p.next()
	nameGlob, err := compileGlob(nameTok)
	if err != nil {
		return MemberPattern{}, err
	}
	m.NameGlob = nameGlob

	if p.peek() == "(" {
		m.Kind = MemberMethod
		params, err := p.parseParamList()
		if err != nil {
			return MemberPattern{}, err
		}
		m.Params = params
		m.HasParams = true
	} else {
		m.Kind = MemberField
	}
	expect(p, ";")
	return m, nil
}

func (p *parser) parseParamList() ([]glob.Glob, error) {
	expect(p, "(")
	var params []glob.Glob
	for p.peek() != ")" {
		if p.atEnd() {
			return nil, fmt.Errorf("unterminated parameter list")
		}
		tok := p.next()
		if tok == "," {
			continue
		}
		g, err := compileGlob(tok)
		if err != nil {
			return nil, err
		}
		params = append(params, g)
	}
	p.next() // consume ")"
	return params, nil
}

func expect(p *parser, tok string) {
	if p.peek() == tok {
		p.next()
	}
}

// compileGlob compiles a ProGuard-style name pattern into a glob.Glob,
// translating the single-component "?" and multi-component "**" wildcards
// and the class-name "." separator into the glob package's separator-aware
// matching.
func compileGlob(pattern string) (glob.Glob, error) {
	if pattern == "" {
		return nil, fmt.Errorf("empty name pattern")
	}
	// Rule patterns have no character classes: "[]" marks an array type.
	escaped := strings.NewReplacer("[", `\[`, "]", `\]`).Replace(pattern)
	g, err := glob.Compile(escaped, '.', '/')
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	return g, nil
}
