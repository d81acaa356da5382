package reader

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
)

// jsonProgram is a plain textual program descriptor: a stand-in front end
// in place of a real classfile/Dex archive reader, which this core
// deliberately does not implement (it neither parses nor serializes those
// formats). See DESIGN.md for why this decoder uses encoding/json rather
// than a bytecode-format library.
type jsonProgram struct {
	ProgramClasses   []jsonClass  `json:"programClasses"`
	ClasspathClasses []jsonClass  `json:"classpathClasses"`
	LibraryClasses   []jsonClass  `json:"libraryClasses"`
	DataEntries      []jsonEntry  `json:"dataEntries"`
}

type jsonClass struct {
	Type       string      `json:"type"`
	Super      string      `json:"super"`
	Interfaces []string    `json:"interfaces"`
	Access     uint32      `json:"access"`
	SourceFile string      `json:"sourceFile"`
	Methods    []jsonMethod `json:"methods"`
	Fields     []jsonField  `json:"fields"`
}

type jsonMethod struct {
	Name       string   `json:"name"`
	Return     string   `json:"return"`
	Params     []string `json:"params"`
	Access     uint32   `json:"access"`
	Static     bool     `json:"static"`
	HasCode    bool     `json:"hasCode"`
}

type jsonField struct {
	Name   string `json:"name"`
	Type   string `json:"type"`
	Access uint32 `json:"access"`
	Static bool   `json:"static"`
}

type jsonEntry struct {
	Name    string `json:"name"`
	Text    string `json:"text"`
	Feature string `json:"feature"`
}

// DecodeJSON parses a program descriptor in the format jsonProgram
// documents and returns it as an in-memory Reader ready for LoadProgram.
func DecodeJSON(factory *itemfactory.Factory, r io.Reader) (*InMemory, error) {
	var doc jsonProgram
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding program descriptor: %w", err)
	}

	out := &InMemory{}
	var err error
	if out.ProgramClasses, err = decodeClasses(factory, doc.ProgramClasses); err != nil {
		return nil, err
	}
	if out.ClasspathClasses, err = decodeClasses(factory, doc.ClasspathClasses); err != nil {
		return nil, err
	}
	if out.LibraryClasses, err = decodeClasses(factory, doc.LibraryClasses); err != nil {
		return nil, err
	}
	for _, e := range doc.DataEntries {
		out.DataEntries = append(out.DataEntries, DataEntry{Name: e.Name, Data: []byte(e.Text), Feature: e.Feature})
	}
	return out, nil
}

func decodeClasses(factory *itemfactory.Factory, in []jsonClass) ([]*definitions.Class, error) {
	out := make([]*definitions.Class, 0, len(in))
	for _, jc := range in {
		c, err := decodeClass(factory, jc)
		if err != nil {
			return nil, fmt.Errorf("class %q: %w", jc.Type, err)
		}
		out = append(out, c)
	}
	return out, nil
}

func decodeClass(factory *itemfactory.Factory, jc jsonClass) (*definitions.Class, error) {
	ty, err := factory.TryCreateType(jc.Type)
	if err != nil {
		return nil, err
	}
	c := &definitions.Class{
		Type:       ty,
		Access:     definitions.AccessFlags(jc.Access),
		SourceFile: jc.SourceFile,
	}
	if jc.Super != "" {
		super, err := factory.TryCreateType(jc.Super)
		if err != nil {
			return nil, err
		}
		c.Super = super
		c.HasSuper = true
	}
	for _, ifaceDesc := range jc.Interfaces {
		iface, err := factory.TryCreateType(ifaceDesc)
		if err != nil {
			return nil, err
		}
		c.Interfaces = append(c.Interfaces, iface)
	}
	for _, jm := range jc.Methods {
		m, err := decodeMethod(factory, ty, jm)
		if err != nil {
			return nil, err
		}
		if m.IsStatic() || m.Access.IsPrivate() || m.IsInstanceInit() || m.IsClassInit() {
			c.DirectMethods = append(c.DirectMethods, m)
		} else {
			c.VirtualMethods = append(c.VirtualMethods, m)
		}
	}
	for _, jf := range jc.Fields {
		f, err := decodeField(factory, ty, jf)
		if err != nil {
			return nil, err
		}
		if f.Access.IsStatic() {
			c.StaticFields = append(c.StaticFields, f)
		} else {
			c.InstanceFields = append(c.InstanceFields, f)
		}
	}
	return c, nil
}

func decodeMethod(factory *itemfactory.Factory, holder itemfactory.DexType, jm jsonMethod) (*definitions.Method, error) {
	ret, err := factory.TryCreateType(jm.Return)
	if err != nil {
		return nil, err
	}
	params := make([]itemfactory.DexType, 0, len(jm.Params))
	for _, p := range jm.Params {
		pt, err := factory.TryCreateType(p)
		if err != nil {
			return nil, err
		}
		params = append(params, pt)
	}
	proto := factory.CreateProto(ret, params...)
	access := definitions.AccessFlags(jm.Access)
	if jm.Static {
		access |= definitions.AccStatic
	}
	m := &definitions.Method{
		Reference: factory.CreateMethod(holder, factory.CreateString(jm.Name), proto),
		Holder:    holder,
		Access:    access,
	}
	if jm.HasCode && !m.IsAbstract() {
		m.Code = &definitions.Code{}
	}
	return m, nil
}

func decodeField(factory *itemfactory.Factory, holder itemfactory.DexType, jf jsonField) (*definitions.Field, error) {
	ft, err := factory.TryCreateType(jf.Type)
	if err != nil {
		return nil, err
	}
	access := definitions.AccessFlags(jf.Access)
	if jf.Static {
		access |= definitions.AccStatic
	}
	return &definitions.Field{
		Reference: factory.CreateField(holder, factory.CreateString(jf.Name), ft),
		Holder:    holder,
		Access:    access,
	}, nil
}
