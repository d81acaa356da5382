package reader

import "github.com/r8core/r8/internal/definitions"

// InMemory is a Reader over classes and data entries already resident in
// memory, useful for tests and for embedding a program description
// produced by an out-of-process front end (see cmd/r8's descriptor
// loader).
type InMemory struct {
	ProgramClasses   []*definitions.Class
	ClasspathClasses []*definitions.Class
	LibraryClasses   []*definitions.Class
	DataEntries      []DataEntry
}

var _ Reader = (*InMemory)(nil)

func (m *InMemory) EachProgramClass(v ClassVisitor) error {
	return visitAll(m.ProgramClasses, v)
}

func (m *InMemory) EachClasspathClass(v ClassVisitor) error {
	return visitAll(m.ClasspathClasses, v)
}

func (m *InMemory) EachLibraryClass(v ClassVisitor) error {
	return visitAll(m.LibraryClasses, v)
}

func (m *InMemory) EachDataEntry(v DataEntryVisitor) error {
	for _, e := range m.DataEntries {
		if err := v(e); err != nil {
			return err
		}
	}
	return nil
}

func visitAll(classes []*definitions.Class, v ClassVisitor) error {
	for _, c := range classes {
		if err := v(c); err != nil {
			return err
		}
	}
	return nil
}
