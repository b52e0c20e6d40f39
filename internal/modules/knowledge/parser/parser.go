// Package parser extracts plain text from uploaded documents. Headings are
// emitted as markdown so the chunker can track them.
package parser

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize bounds what any extractor will read.
const MaxFileSize = 50 << 20

var ErrUnsupportedType = errors.New("unsupported file type")

type Document struct {
	Title   string
	Content string
}

// Extractor reads one file format.
type Extractor interface {
	Extract(path string) (string, error)
}

type extractFunc func(path string) (string, error)

func (f extractFunc) Extract(path string) (string, error) { return f(path) }

var extractors = map[string]Extractor{
	"pdf":  extractFunc(extractPDF),
	"docx": extractFunc(extractDOCX),
	"md":   extractFunc(extractText),
	"txt":  extractFunc(extractText),
	"html": extractFunc(extractHTML),
	"xlsx": extractFunc(extractXLSX),
}

// SupportedTypes lists accepted file extensions without the dot.
func SupportedTypes() []string {
	return []string{"pdf", "docx", "md", "txt", "html", "xlsx"}
}

// DetectType maps a file name to an allow-listed type. "htm" is folded into
// "html" and "markdown" into "md".
func DetectType(name string) (string, error) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	switch ext {
	case "htm":
		ext = "html"
	case "markdown":
		ext = "md"
	}
	if _, ok := extractors[ext]; !ok {
		if ext == "" {
			ext = "(none)"
		}
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, ext)
	}
	return ext, nil
}

// Parse extracts the text of the file at path. The title is the base name
// without its extension.
func Parse(path, fileType string) (*Document, error) {
	ex, ok := extractors[strings.ToLower(fileType)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, fileType)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", filepath.Base(path), err)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("file exceeds size limit of %d bytes", MaxFileSize)
	}
	content, err := ex.Extract(path)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", fileType, err)
	}
	base := filepath.Base(path)
	return &Document{
		Title:   strings.TrimSuffix(base, filepath.Ext(base)),
		Content: strings.ReplaceAll(content, "\r\n", "\n"),
	}, nil
}

func extractText(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
