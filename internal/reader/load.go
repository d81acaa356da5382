package reader

import (
	"bytes"
	"fmt"

	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
)

// LoadProgram drains r into a fresh Program: every program/classpath/library
// class is added via Program.AddClass, and every services/ data entry
// (definitions.ServicesDirPrefix) is decoded with
// definitions.ParseServiceEntries and registered against its interface
// type. Any other data entry is ignored; the pipeline outside this package
// has no use for raw resource bytes.
func LoadProgram(factory *itemfactory.Factory, r Reader) (*definitions.Program, error) {
	p := definitions.NewProgram(factory)

	addAs := func(kind definitions.ClassKind) ClassVisitor {
		return func(c *definitions.Class) error {
			c.Kind = kind
			if err := p.AddClass(c); err != nil {
				return err
			}
			return nil
		}
	}
	if err := r.EachProgramClass(addAs(definitions.KindProgram)); err != nil {
		return nil, fmt.Errorf("reading program classes: %w", err)
	}
	if err := r.EachClasspathClass(addAs(definitions.Classpath)); err != nil {
		return nil, fmt.Errorf("reading classpath classes: %w", err)
	}
	if err := r.EachLibraryClass(addAs(definitions.Library)); err != nil {
		return nil, fmt.Errorf("reading library classes: %w", err)
	}

	services := make(map[itemfactory.DexType][]definitions.ServiceImpl)
	err := r.EachDataEntry(func(entry DataEntry) error {
		iface, ok := definitions.ServiceInterfaceType(factory, entry.Name)
		if !ok {
			return nil
		}
		impls, err := definitions.ParseServiceEntries(factory, entry.Feature, bytes.NewReader(entry.Data))
		if err != nil {
			return fmt.Errorf("%s: %w", entry.Name, err)
		}
		services[iface] = append(services[iface], impls...)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("reading data entries: %w", err)
	}
	for iface, impls := range services {
		p.SetServiceImplementations(iface, impls)
	}
	return p, nil
}
