package parser

import (
	"archive/zip"
	"encoding/xml"
	"errors"
	"io"
	"strings"
)

// extractDOCX walks word/document.xml. Paragraphs styled Heading1..Heading3
// become markdown headings; every other paragraph is separated by a blank line.
func extractDOCX(path string) (string, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return "", err
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("invalid docx: missing word/document.xml")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()
	return docxText(rc)
}

func docxText(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	var (
		out   strings.Builder
		para  strings.Builder
		level int
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				para.Reset()
				level = 0
			case "pStyle":
				level = headingLevel(attr(t, "val"))
			case "tab":
				para.WriteByte('\t')
			case "br":
				para.WriteByte('\n')
			}
		case xml.EndElement:
			if t.Name.Local != "p" {
				continue
			}
			text := strings.TrimSpace(para.String())
			if text == "" {
				continue
			}
			if level > 0 {
				out.WriteString(strings.Repeat("#", level) + " ")
				out.WriteString(text)
				out.WriteByte('\n')
				continue
			}
			out.WriteString(text)
			out.WriteString("\n\n")
		case xml.CharData:
			para.Write(t)
		}
	}
	return out.String(), nil
}

func attr(el xml.StartElement, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

// headingLevel maps Word's built-in heading style ids to 1..3.
func headingLevel(style string) int {
	switch strings.ToLower(style) {
	case "title", "heading1":
		return 1
	case "heading2":
		return 2
	case "heading3":
		return 3
	}
	return 0
}
