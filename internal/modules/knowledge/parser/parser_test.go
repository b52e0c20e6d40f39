package parser

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestDetectType(t *testing.T) {
	cases := []struct {
		name string
		want string
		err  bool
	}{
		{"notes.MD", "md", false},
		{"paper.pdf", "pdf", false},
		{"page.htm", "html", false},
		{"sheet.xlsx", "xlsx", false},
		{"readme.markdown", "md", false},
		{"binary.exe", "", true},
		{"noext", "", true},
	}
	for _, tc := range cases {
		got, err := DetectType(tc.name)
		if tc.err {
			if !errors.Is(err, ErrUnsupportedType) {
				t.Fatalf("DetectType(%q): want ErrUnsupportedType got %v", tc.name, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("DetectType(%q): want=%s got=%s err=%v", tc.name, tc.want, got, err)
		}
	}
}

func write(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestParseMarkdown(t *testing.T) {
	p := write(t, "Intro Notes.md", "# Title\r\nbody\r\n")
	doc, err := Parse(p, "md")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if doc.Title != "Intro Notes" || doc.Content != "# Title\nbody\n" {
		t.Fatalf("doc: got %+v", doc)
	}
	if _, err := Parse(p, "exe"); !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("unsupported: want ErrUnsupportedType got %v", err)
	}
}

func TestParseDOCXHeadings(t *testing.T) {
	p := filepath.Join(t.TempDir(), "doc.docx")
	f, err := os.Create(p)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	zw := zip.NewWriter(f)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("zip entry: %v", err)
	}
	_, _ = w.Write([]byte(`<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Overview</w:t></w:r></w:p>
<w:p><w:r><w:t>First</w:t></w:r><w:r><w:tab/><w:t>para</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Heading2"/></w:pPr><w:r><w:t>Details</w:t></w:r></w:p>
<w:p><w:r><w:t>Second para</w:t></w:r></w:p>
</w:body></w:document>`))
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	_ = f.Close()

	doc, err := Parse(p, "docx")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "# Overview\nFirst\tpara\n\n## Details\nSecond para\n\n"
	if doc.Content != want {
		t.Fatalf("content: want=%q got=%q", want, doc.Content)
	}
}

func TestParseHTML(t *testing.T) {
	p := write(t, "page.html", `<html><head><title>Page</title><style>p{}</style></head>
<body><nav><p>menu</p></nav><main><h2>Setup</h2><p>Install   the
tool.</p><ul><li>step one</li></ul></main><footer><p>copyright</p></footer></body></html>`)
	doc, err := Parse(p, "html")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := "# Page\n\n## Setup\n\nInstall the tool.\n\n- step one"
	if doc.Content != want {
		t.Fatalf("content: want=%q got=%q", want, doc.Content)
	}
}

func TestParseXLSX(t *testing.T) {
	p := filepath.Join(t.TempDir(), "grades.xlsx")
	x := excelize.NewFile()
	_ = x.SetCellValue("Sheet1", "A1", "name")
	_ = x.SetCellValue("Sheet1", "B1", "score")
	_ = x.SetCellValue("Sheet1", "A2", "ada")
	_ = x.SetCellValue("Sheet1", "B2", 97)
	if err := x.SaveAs(p); err != nil {
		t.Fatalf("save: %v", err)
	}
	_ = x.Close()

	doc, err := Parse(p, "xlsx")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !strings.HasPrefix(doc.Content, "## Sheet1\nname | score\nada | 97") {
		t.Fatalf("content: got %q", doc.Content)
	}
}
