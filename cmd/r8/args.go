package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// expandArgFiles replaces any "@path" argument with the whitespace-separated
// tokens read from that file, recursively, before cobra ever sees the
// argument list. This is the ProGuard/R8 configuration-file convention:
// one @file expands to more command-line arguments, including nested
// @file references within the expanded file.
func expandArgFiles(args []string, depth int) ([]string, error) {
	const maxDepth = 8
	if depth > maxDepth {
		return nil, fmt.Errorf("expanding @file arguments: nesting exceeds %d levels", maxDepth)
	}
	var out []string
	for _, arg := range args {
		if !strings.HasPrefix(arg, "@") {
			out = append(out, arg)
			continue
		}
		path := strings.TrimPrefix(arg, "@")
		tokens, err := readArgFile(path)
		if err != nil {
			return nil, fmt.Errorf("expanding %s: %w", arg, err)
		}
		expanded, err := expandArgFiles(tokens, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, expanded...)
	}
	return out, nil
}

// readArgFile tokenizes an argument file's contents: whitespace-separated
// words, '#' starts a line comment.
func readArgFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var tokens []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.IndexByte(line, '#'); idx != -1 {
			line = line[:idx]
		}
		tokens = append(tokens, strings.Fields(line)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return tokens, nil
}
