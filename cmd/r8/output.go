package main

import (
	"os"
	"strings"
)

func readFileText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func joinLines(lines []string) string {
	return strings.Join(lines, "\n") + "\n"
}
