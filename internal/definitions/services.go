package definitions

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/r8core/r8/internal/itemfactory"
)

// ServicesDirPrefix is the conventional resource-entry prefix the reader
// recognizes as a java.util.ServiceLoader configuration file:
// "META-INF/services/<interface-binary-name>".
const ServicesDirPrefix = "META-INF/services/"

// ServiceInterfaceType derives the service-interface type a data entry
// name declares, or ok=false if entryName isn't under ServicesDirPrefix.
func ServiceInterfaceType(factory *itemfactory.Factory, entryName string) (t itemfactory.DexType, ok bool) {
	if !strings.HasPrefix(entryName, ServicesDirPrefix) {
		return itemfactory.DexType{}, false
	}
	binaryName := strings.ReplaceAll(strings.TrimPrefix(entryName, ServicesDirPrefix), ".", "/")
	if binaryName == "" {
		return itemfactory.DexType{}, false
	}
	t, err := factory.TryCreateType("L" + binaryName + ";")
	if err != nil {
		return itemfactory.DexType{}, false
	}
	return t, true
}

// ParseServiceEntries decodes r as a services/ resource entry: UTF-8 text,
// one implementation class name per line, lines trimmed of surrounding
// whitespace, '#' starts a comment, blank lines ignored, every remaining
// line validated as a fully-qualified class name.
func ParseServiceEntries(factory *itemfactory.Factory, feature string, r io.Reader) ([]ServiceImpl, error) {
	var out []ServiceImpl
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx != -1 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !isValidQualifiedClassName(line) {
			return nil, fmt.Errorf("services entry line %d: %q is not a fully-qualified class name", lineNo, line)
		}
		binaryName := strings.ReplaceAll(line, ".", "/")
		t, err := factory.TryCreateType("L" + binaryName + ";")
		if err != nil {
			return nil, fmt.Errorf("services entry line %d: %w", lineNo, err)
		}
		out = append(out, ServiceImpl{Type: t, Feature: feature})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// isValidQualifiedClassName reports whether s looks like "a.b.C": one or
// more dot-separated identifier segments, each starting with a letter, '_',
// or '$'.
func isValidQualifiedClassName(s string) bool {
	for _, part := range strings.Split(s, ".") {
		if part == "" {
			return false
		}
		for i, r := range part {
			isLetter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r == '_' || r == '$'
			isDigit := r >= '0' && r <= '9'
			if i == 0 && !isLetter {
				return false
			}
			if i > 0 && !isLetter && !isDigit {
				return false
			}
		}
	}
	return true
}
