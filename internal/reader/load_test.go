package reader_test

import (
	"testing"

	"github.com/r8core/r8/internal/definitions"
	"github.com/r8core/r8/internal/itemfactory"
	"github.com/r8core/r8/internal/reader"
)

func TestLoadProgramClassifiesByOrigin(t *testing.T) {
	f := itemfactory.New()
	program := &definitions.Class{Type: f.CreateType("La/b/C;"), HasSuper: true, Super: f.Well.Object}
	classpath := &definitions.Class{Type: f.CreateType("La/b/D;"), HasSuper: true, Super: f.Well.Object}
	library := &definitions.Class{Type: f.CreateType("La/b/E;"), HasSuper: true, Super: f.Well.Object}

	in := &reader.InMemory{
		ProgramClasses:   []*definitions.Class{program},
		ClasspathClasses: []*definitions.Class{classpath},
		LibraryClasses:   []*definitions.Class{library},
	}

	p, err := reader.LoadProgram(f, in)
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}

	got, ok := p.DefinitionFor(program.Type)
	if !ok || got.Kind != definitions.KindProgram {
		t.Errorf("program class not classified as Program: %+v", got)
	}
	got, ok = p.DefinitionFor(classpath.Type)
	if !ok || got.Kind != definitions.Classpath {
		t.Errorf("classpath class not classified as Classpath: %+v", got)
	}
	got, ok = p.DefinitionFor(library.Type)
	if !ok || got.Kind != definitions.Library {
		t.Errorf("library class not classified as Library: %+v", got)
	}
}

func TestLoadProgramParsesServiceEntries(t *testing.T) {
	f := itemfactory.New()
	in := &reader.InMemory{
		DataEntries: []reader.DataEntry{
			{
				Name: "META-INF/services/a.b.Service",
				Data: []byte("a.b.Impl1\na.b.Impl2\n"),
			},
			{
				Name: "META-INF/MANIFEST.MF",
				Data: []byte("irrelevant"),
			},
		},
	}

	p, err := reader.LoadProgram(f, in)
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}

	iface := f.CreateType("La/b/Service;")
	impls := p.ServiceImplementations(iface)
	if len(impls) != 2 {
		t.Fatalf("got %d service impls, want 2: %+v", len(impls), impls)
	}
	if impls[0].Type.Descriptor() != "La/b/Impl1;" {
		t.Errorf("impls[0] = %+v", impls[0])
	}
}

func TestLoadProgramTagsFeatureSplitServiceEntries(t *testing.T) {
	f := itemfactory.New()
	in := &reader.InMemory{
		DataEntries: []reader.DataEntry{
			{Name: "META-INF/services/a.b.Service", Data: []byte("a.b.DynImpl\n"), Feature: "dynamic"},
		},
	}

	p, err := reader.LoadProgram(f, in)
	if err != nil {
		t.Fatalf("LoadProgram: %v", err)
	}

	iface := f.CreateType("La/b/Service;")
	impls := p.ServiceImplementations(iface)
	if len(impls) != 1 || impls[0].Feature != "dynamic" {
		t.Fatalf("impls = %+v, want one entry tagged \"dynamic\"", impls)
	}
}

func TestLoadProgramRejectsDuplicateClass(t *testing.T) {
	f := itemfactory.New()
	ty := f.CreateType("La/b/C;")
	in := &reader.InMemory{
		ProgramClasses: []*definitions.Class{
			{Type: ty, HasSuper: true, Super: f.Well.Object},
		},
		ClasspathClasses: []*definitions.Class{
			{Type: ty, HasSuper: true, Super: f.Well.Object},
		},
	}
	if _, err := reader.LoadProgram(f, in); err == nil {
		t.Fatalf("expected an error for a class present in two class sets")
	}
}
