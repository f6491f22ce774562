package gitlines

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// commentSyntax describes how one language marks comments.
type commentSyntax struct {
	single string
	block  []string
}

// supportedSyntax maps file extensions to their comment syntax. Block
// delimiters toggle a comment region and are matched only at line start.
var supportedSyntax = map[string]commentSyntax{
	"py":  {single: "#", block: []string{`"""`, `'''`}},
	"pyx": {single: "#", block: []string{`"""`, `'''`}},
}

// lineCount is the tally for one extension.
type lineCount struct {
	code     int
	comments int
}

// countArchive tallies code and comment lines per extension across every
// file in a zip archive. Each file counts toward the first extension it ends
// with.
func countArchive(archive []byte, exts []string) (map[string]lineCount, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	counts := make(map[string]lineCount, len(exts))
	for _, ext := range exts {
		counts[ext] = lineCount{}
	}

	for _, file := range reader.File {
		if file.FileInfo().IsDir() {
			continue
		}
		ext, ok := matchExtension(file.Name, exts)
		if !ok {
			continue
		}

		content, err := readArchiveFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file.Name, err)
		}
		fileCount := countLines(string(content), supportedSyntax[ext])

		total := counts[ext]
		total.code += fileCount.code
		total.comments += fileCount.comments
		counts[ext] = total
	}

	return counts, nil
}

func matchExtension(name string, exts []string) (string, bool) {
	for _, ext := range exts {
		if strings.HasSuffix(name, "."+ext) {
			return ext, true
		}
	}

	return "", false
}

func readArchiveFile(file *zip.File) ([]byte, error) {
	handle, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}
	defer handle.Close()

	content, err := io.ReadAll(handle)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}

	return content, nil
}

// countLines classifies each non-empty line of one source file.
//
// The heuristic is deliberately rough: a line opening a block delimiter flips
// the block state, a line inside a block is a comment, and a block closes
// early when a longer line ends with a delimiter.
func countLines(content string, syntax commentSyntax) lineCount {
	var (
		count   lineCount
		inBlock bool
	)

	lines := strings.FieldsFunc(content, func(r rune) bool {
		return r == '\n' || r == '\r'
	})
	for _, raw := range lines {
		line := strings.TrimSpace(raw)

		if hasAnyPrefix(line, syntax.block) {
			inBlock = !inBlock
		}
		if inBlock {
			count.comments++
			if len(line) != 3 && hasAnySuffix(line, syntax.block) {
				inBlock = false
			}
			continue
		}

		if syntax.single != "" && strings.HasPrefix(line, syntax.single) {
			count.comments++
		} else {
			count.code++
		}
	}

	return count
}

func hasAnyPrefix(line string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}

	return false
}

func hasAnySuffix(line string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(line, suffix) {
			return true
		}
	}

	return false
}
