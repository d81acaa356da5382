// Package errorlist aggregates diagnostics produced while running the
// pipeline so that a stage can report every problem it found at once
// instead of aborting on the first one.
package errorlist

import (
	"errors"
	"fmt"
)

// ErrTooManyErrors is appended to a List by Trim once the list is capped.
var ErrTooManyErrors = errors.New("too many errors")

// List wraps multiple errors as a single error.
type List []error

func (errs List) Error() string {
	if len(errs) == 0 {
		return "<no errors>"
	}
	return fmt.Sprintf("%s (and %d more errors)", errs[0].Error(), len(errs[1:]))
}

// ErrOrNil returns nil if the list is empty, or the list itself otherwise.
func (errs List) ErrOrNil() error {
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// Append an error to the list.
//
// If err is itself a List, the lists are concatenated, otherwise err is
// appended at the end. A nil err leaves the list unmodified.
func (errs List) Append(err error) List {
	if err == nil {
		return errs
	}
	var other List
	if errors.As(err, &other) {
		return append(errs, other...)
	}
	return append(errs, err)
}

// AppendDistinct is like Append but skips err if it has the same message as
// the last error already on the list.
func (errs List) AppendDistinct(err error) List {
	if err == nil {
		return errs
	}
	if l := len(errs); l > 0 {
		if prev := errs[l-1]; prev != nil && err.Error() == prev.Error() {
			return errs
		}
	}
	return errs.Append(err)
}

// Trim caps the list at limit entries, replacing anything beyond that with a
// single ErrTooManyErrors sentinel.
func (errs List) Trim(limit int) List {
	if len(errs) <= limit {
		return errs
	}
	return append(errs[:limit], ErrTooManyErrors)
}

// Severity classifies a diagnostic for sorting and exit-status purposes.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Diagnostic is a single user-visible problem, tagged with the taxonomy
// category from the error handling design (InvalidInput, InvalidRule,
// MissingClass, CheckDiscardFailed, ResolutionFailure, Internal).
type Diagnostic struct {
	Category string
	Severity Severity
	Origin   string
	Err      error
}

func (d Diagnostic) Error() string {
	if d.Origin != "" {
		return fmt.Sprintf("%s: %s: %s: %v", d.Severity, d.Category, d.Origin, d.Err)
	}
	return fmt.Sprintf("%s: %s: %v", d.Severity, d.Category, d.Err)
}

// Bag collects diagnostics from every stage of the pipeline and renders them
// together, sorted by severity (fatal first) and then by origin.
type Bag struct {
	diags []Diagnostic
}

// Add records a diagnostic.
func (b *Bag) Add(d Diagnostic) {
	b.diags = append(b.diags, d)
}

// Fatalf records a fatal diagnostic.
func (b *Bag) Fatalf(category, origin string, format string, args ...any) {
	b.Add(Diagnostic{Category: category, Severity: SeverityFatal, Origin: origin, Err: fmt.Errorf(format, args...)})
}

// Warnf records a warning diagnostic.
func (b *Bag) Warnf(category, origin string, format string, args ...any) {
	b.Add(Diagnostic{Category: category, Severity: SeverityWarning, Origin: origin, Err: fmt.Errorf(format, args...)})
}

// HasFatal reports whether any recorded diagnostic is fatal.
func (b *Bag) HasFatal() bool {
	for _, d := range b.diags {
		if d.Severity == SeverityFatal {
			return true
		}
	}
	return false
}

// Diagnostics returns the recorded diagnostics sorted by severity (most
// severe first), then by origin.
func (b *Bag) Diagnostics() []Diagnostic {
	sorted := make([]Diagnostic, len(b.diags))
	copy(sorted, b.diags)
	// Highest severity first; insertion-stable within a severity/origin tier
	// via a simple stable sort since the list is small relative to program size.
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && less(sorted[j], sorted[j-1]); j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}
	return sorted
}

func less(a, b Diagnostic) bool {
	if a.Severity != b.Severity {
		return a.Severity > b.Severity
	}
	return a.Origin < b.Origin
}
