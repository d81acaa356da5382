// Package reader defines the opaque input contract the pipeline consumes:
// the core neither parses nor serializes classfile or Dex archives, it
// visits whatever a caller-supplied Reader hands it. The callback surface
// is a set of four visitor methods rather than one importer function,
// because a program input needs to distinguish program/classpath/library
// classes and loose data entries up front rather than resolve them lazily.
package reader

import "github.com/r8core/r8/internal/definitions"

// ClassVisitor receives one decoded class definition. Returning a non-nil
// error aborts the enclosing Each* walk.
type ClassVisitor func(*definitions.Class) error

// DataEntry is one non-class resource entry from a program input, such as a
// META-INF/services/ file. Feature names the feature split the entry ships
// in, "" for the base module — the Reader implementation knows which
// module archive an entry came from, so it tags Feature directly rather
// than the pipeline trying to infer it from the entry's path.
type DataEntry struct {
	Name    string
	Data    []byte
	Feature string
}

// DataEntryVisitor receives one data entry.
type DataEntryVisitor func(DataEntry) error

// Reader is the opaque input contract: something that can enumerate the
// classes and resource entries of one input set without the pipeline
// knowing whether they came from a classfile archive, a Dex archive, or an
// in-memory buffer.
type Reader interface {
	EachProgramClass(ClassVisitor) error
	EachClasspathClass(ClassVisitor) error
	EachLibraryClass(ClassVisitor) error
	EachDataEntry(DataEntryVisitor) error
}
