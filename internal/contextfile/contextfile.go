package contextfile

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Sentinel is the aggregate returned when no context files are supplied. The
// template substitutes it literally, so the exact wording is part of the
// prompt contract.
const Sentinel = "(No additional context provided)"

// maxFileSize caps individual context files at 10MB.
const maxFileSize = 10 << 20

// Aggregate reads the supplied files and concatenates them into a single
// text blob, each file preceded by a "File: <path>" header. Relative paths
// resolve against root. Per-file failures become inline markers instead of
// errors; duplicate resolved paths are read once. The result preserves
// supply order and the function never mutates anything on disk.
func Aggregate(paths []string, root string) string {
	if len(paths) == 0 {
		return Sentinel
	}

	seen := make(map[string]bool, len(paths))
	blocks := make([]string, 0, len(paths))
	for _, p := range paths {
		resolved := p
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(root, resolved)
		}
		resolved = filepath.Clean(resolved)
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		blocks = append(blocks, "File: "+p+"\n"+readFile(resolved))
	}

	if len(blocks) == 0 {
		return Sentinel
	}
	return strings.Join(blocks, "\n\n")
}

// readFile returns the file's text content or an inline error marker.
func readFile(path string) string {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return marker("file not found")
		}
		return marker(err.Error())
	}
	if fi.IsDir() {
		return marker("is a directory")
	}
	if fi.Size() > maxFileSize {
		return marker(fmt.Sprintf("file exceeds %dMB limit", maxFileSize>>20))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return marker(err.Error())
	}
	if isBinary(data) {
		return marker("binary file")
	}
	if !utf8.Valid(data) {
		return marker("not valid UTF-8")
	}
	return strings.TrimRight(string(data), "\n")
}

func marker(reason string) string {
	return "[Error reading file: " + reason + "]"
}

// isBinary sniffs for a NUL byte in the first 1KB, the same heuristic git
// uses for its binary-file notices.
func isBinary(data []byte) bool {
	if len(data) > 1024 {
		data = data[:1024]
	}
	return bytes.IndexByte(data, 0) >= 0
}
