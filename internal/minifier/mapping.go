package minifier

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/r8core/r8/internal/itemfactory"
)

// MemberMapping is one renamed field or method entry under a ClassMapping.
type MemberMapping struct {
	OriginalReturn string // "" for fields
	OriginalName   string
	OriginalParams []string // nil for fields
	NewName        string
}

func (m MemberMapping) isMethod() bool { return m.OriginalParams != nil || m.OriginalReturn != "" }

func (m MemberMapping) render() string {
	if !m.isMethod() {
		return fmt.Sprintf("    %s -> %s", m.OriginalName, m.NewName)
	}
	return fmt.Sprintf("    %s %s(%s) -> %s", m.OriginalReturn, m.OriginalName, strings.Join(m.OriginalParams, ","), m.NewName)
}

// ClassMapping is one section of the mapping output: a renamed class plus
// its renamed members.
type ClassMapping struct {
	OriginalClass string
	NewClass      string
	Members       []MemberMapping
	// Synthetic, when non-empty, is rendered as a trailing
	// "# synthesized from ..." comment naming the origin of a
	// lambda-desugared or otherwise pipeline-synthesized class.
	Synthetic string
}

// Mapping is the full proguard-compatible textual map produced by one
// Minifier run.
type Mapping struct {
	Classes []ClassMapping
}

// WriteTo renders the mapping in proguard's textual format: each section
// begins "<original-class> -> <renamed-class>:" followed by indented
// member lines.
func (m *Mapping) WriteTo(w io.Writer) error {
	classes := append([]ClassMapping(nil), m.Classes...)
	sort.Slice(classes, func(i, j int) bool { return classes[i].OriginalClass < classes[j].OriginalClass })
	for _, c := range classes {
		if _, err := fmt.Fprintf(w, "%s -> %s:\n", c.OriginalClass, c.NewClass); err != nil {
			return err
		}
		if c.Synthetic != "" {
			if _, err := fmt.Fprintf(w, "    # synthesized from %s\n", c.Synthetic); err != nil {
				return err
			}
		}
		members := append([]MemberMapping(nil), c.Members...)
		sort.Slice(members, func(i, j int) bool { return members[i].OriginalName < members[j].OriginalName })
		for _, mm := range members {
			if _, err := fmt.Fprintln(w, mm.render()); err != nil {
				return err
			}
		}
	}
	return nil
}

// binaryToSource renders a slash-separated internal class name in
// dotted-source form for mapping output, e.g. "com/example/Foo" ->
// "com.example.Foo".
func binaryToSource(binaryName string) string {
	return strings.ReplaceAll(binaryName, "/", ".")
}

func typeSourceName(t itemfactory.DexType) string {
	if bn := t.BinaryName(); bn != "" {
		return binaryToSource(bn)
	}
	return t.Descriptor()
}
