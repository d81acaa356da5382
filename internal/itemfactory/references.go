package itemfactory

import "strings"

// DexString is an interned UTF-8 string constant.
type DexString struct {
	id    uint32
	value string
}

// String returns the interned text.
func (s DexString) String() string { return s.value }

// ID returns a dense, stable-for-the-compilation integer identity for s.
// Identity-keyed containers can use this instead of hashing the text.
func (s DexString) ID() uint32 { return s.id }

// DexType is an interned type descriptor reference, e.g. "Lcom/foo/Bar;",
// "[I", or "I". A reference names something by descriptor; it may or may not
// have a backing definition (see definitions.Program.DefinitionFor).
type DexType struct {
	id         uint32
	descriptor string
}

// Descriptor returns the JVM-style type descriptor.
func (t DexType) Descriptor() string { return t.descriptor }

// String implements fmt.Stringer.
func (t DexType) String() string { return t.descriptor }

// ID returns a dense, stable-for-the-compilation integer identity.
func (t DexType) ID() uint32 { return t.id }

// IsArray reports whether the descriptor names an array type.
func (t DexType) IsArray() bool { return strings.HasPrefix(t.descriptor, "[") }

// IsPrimitive reports whether the descriptor names a JVM primitive type.
func (t DexType) IsPrimitive() bool {
	switch t.descriptor {
	case "V", "Z", "B", "C", "S", "I", "J", "F", "D":
		return true
	default:
		return false
	}
}

// IsReference reports whether the descriptor names a class or array type
// (i.e. anything that isn't a primitive).
func (t DexType) IsReference() bool { return !t.IsPrimitive() }

// PackageName returns the JVM-internal package name (slash-separated, no
// trailing slash) for a class type descriptor, or "" for array/primitive
// types or classes in the unnamed package.
func (t DexType) PackageName() string {
	d := t.descriptor
	if !strings.HasPrefix(d, "L") || !strings.HasSuffix(d, ";") {
		return ""
	}
	inner := d[1 : len(d)-1]
	if idx := strings.LastIndexByte(inner, '/'); idx != -1 {
		return inner[:idx]
	}
	return ""
}

// BinaryName returns the slash-separated internal class name without the
// leading "L" and trailing ";", or "" if t does not name a class type.
func (t DexType) BinaryName() string {
	d := t.descriptor
	if !strings.HasPrefix(d, "L") || !strings.HasSuffix(d, ";") {
		return ""
	}
	return d[1 : len(d)-1]
}

// DexProto is an interned method prototype (return type plus parameter
// types).
type DexProto struct {
	id         uint32
	shorty     string
	returnType DexType
	params     []DexType
}

// ReturnType returns the prototype's return type.
func (p *DexProto) ReturnType() DexType { return p.returnType }

// Parameters returns the prototype's parameter types. The caller must not
// mutate the returned slice.
func (p *DexProto) Parameters() []DexType { return p.params }

// String renders the prototype in descriptor form, e.g. "(I)Z".
func (p *DexProto) String() string { return p.shorty }

// ID returns a dense, stable-for-the-compilation integer identity.
func (p *DexProto) ID() uint32 { return p.id }

// DexField is an interned field reference: a holder type, a name, and a
// field type.
type DexField struct {
	id        uint32
	holder    DexType
	name      DexString
	fieldType DexType
}

// Holder returns the type the field is declared on (by reference — the
// actual definition may live higher in the hierarchy until member-rebinding
// resolves it).
func (f DexField) Holder() DexType { return f.holder }

// Name returns the field's name.
func (f DexField) Name() DexString { return f.name }

// Type returns the field's declared type.
func (f DexField) Type() DexType { return f.fieldType }

// String renders the field reference for diagnostics.
func (f DexField) String() string {
	return f.holder.descriptor + "." + f.name.value + ":" + f.fieldType.descriptor
}

// ID returns a dense, stable-for-the-compilation integer identity.
func (f DexField) ID() uint32 { return f.id }

// DexMethod is an interned method reference: a holder type, a name, and a
// prototype.
type DexMethod struct {
	id     uint32
	holder DexType
	name   DexString
	proto  *DexProto
}

// Holder returns the type the method is declared on (by reference).
func (m DexMethod) Holder() DexType { return m.holder }

// Name returns the method's name.
func (m DexMethod) Name() DexString { return m.name }

// Proto returns the method's prototype.
func (m DexMethod) Proto() *DexProto { return m.proto }

// IsInstanceInit reports whether this reference names an instance
// initializer ("<init>").
func (m DexMethod) IsInstanceInit() bool { return m.name.value == "<init>" }

// IsClassInit reports whether this reference names a static initializer
// ("<clinit>").
func (m DexMethod) IsClassInit() bool { return m.name.value == "<clinit>" }

// String renders the method reference for diagnostics.
func (m DexMethod) String() string {
	return m.holder.descriptor + "." + m.name.value + m.proto.shorty
}

// ID returns a dense, stable-for-the-compilation integer identity.
func (m DexMethod) ID() uint32 { return m.id }

func validateTypeDescriptor(d string) error {
	if d == "" {
		return &InvalidDescriptor{Descriptor: d, Reason: "empty descriptor"}
	}
	switch d {
	case "V", "Z", "B", "C", "S", "I", "J", "F", "D":
		return nil
	}
	rest := d
	for strings.HasPrefix(rest, "[") {
		rest = rest[1:]
		if rest == "" {
			return &InvalidDescriptor{Descriptor: d, Reason: "array descriptor missing element type"}
		}
	}
	if rest == d {
		// No array prefix was consumed; must be a class descriptor.
	}
	switch rest {
	case "Z", "B", "C", "S", "I", "J", "F", "D":
		return nil
	}
	if !strings.HasPrefix(rest, "L") || !strings.HasSuffix(rest, ";") {
		return &InvalidDescriptor{Descriptor: d, Reason: "class descriptor must be of the form Lpkg/Name;"}
	}
	inner := rest[1 : len(rest)-1]
	if inner == "" {
		return &InvalidDescriptor{Descriptor: d, Reason: "empty class name"}
	}
	for _, part := range strings.Split(inner, "/") {
		if part == "" {
			return &InvalidDescriptor{Descriptor: d, Reason: "empty package/class segment"}
		}
	}
	return nil
}
