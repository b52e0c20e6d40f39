// Package chunking splits document text into heading-aware chunks sized for
// embedding.
package chunking

import (
	"math"
	"regexp"
	"strings"
)

const (
	DefaultTargetTokens = 500
	// DefaultOverlapChars is roughly 50 tokens of non-CJK text.
	DefaultOverlapChars = 200

	headingSeparator = " > "
)

var (
	headingRe   = regexp.MustCompile(`^(#{1,3})\s+(.+)`)
	paragraphRe = regexp.MustCompile(`\n\s*\n`)
)

type Chunk struct {
	Index       int    `json:"chunkIndex"`
	Content     string `json:"content"`
	HeadingPath string `json:"headingPath"`
	TokenCount  int    `json:"tokenCount"`
}

type Options struct {
	TargetTokens int
	OverlapChars int
}

func (o Options) normalized() Options {
	if o.TargetTokens <= 0 {
		o.TargetTokens = DefaultTargetTokens
	}
	if o.OverlapChars < 0 {
		o.OverlapChars = 0
	}
	return o
}

// EstimateTokens counts CJK ideographs at 1.5 characters per token and
// everything else at 4 characters per token.
func EstimateTokens(text string) int {
	cjk, other := 0, 0
	for _, r := range text {
		if r >= 0x4e00 && r <= 0x9fff {
			cjk++
		} else {
			other++
		}
	}
	return int(math.Ceil(float64(cjk)/1.5 + float64(other)/4))
}

// Split chunks text with default options.
func Split(text string) []Chunk {
	return SplitWith(text, Options{TargetTokens: DefaultTargetTokens, OverlapChars: DefaultOverlapChars})
}

// SplitWith returns chunks whose Index runs from 0 across all sections.
func SplitWith(text string, opts Options) []Chunk {
	opts = opts.normalized()
	var out []Chunk
	for _, s := range Sections(text) {
		for _, c := range splitSection(s, opts) {
			c.Index = len(out)
			out = append(out, c)
		}
	}
	return out
}

type Section struct {
	HeadingPath string
	Content     string
}

// Sections splits on markdown headings of level 1 to 3. A shallower heading
// drops every deeper level from the path. Text with no headings is a single
// section with an empty path.
func Sections(text string) []Section {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var (
		out   []Section
		stack []string
		buf   strings.Builder
	)
	flush := func() {
		if body := strings.TrimSpace(buf.String()); body != "" {
			out = append(out, Section{HeadingPath: headingPath(stack), Content: body})
		}
		buf.Reset()
	}
	for _, line := range strings.Split(text, "\n") {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			buf.WriteString(line)
			buf.WriteByte('\n')
			continue
		}
		flush()
		level := len(m[1])
		if len(stack) >= level {
			stack = stack[:level-1]
		}
		for len(stack) < level-1 {
			// Skipped levels keep their slot so depth stays aligned.
			stack = append(stack, "")
		}
		stack = append(stack, strings.TrimSpace(m[2]))
	}
	flush()

	if len(out) == 0 {
		if body := strings.TrimSpace(text); body != "" {
			out = append(out, Section{Content: body})
		}
	}
	return out
}

func headingPath(stack []string) string {
	parts := make([]string, 0, len(stack))
	for _, h := range stack {
		if h != "" {
			parts = append(parts, h)
		}
	}
	return strings.Join(parts, headingSeparator)
}

// Paragraphs splits on blank lines and drops empty pieces.
func Paragraphs(text string) []string {
	var out []string
	for _, p := range paragraphRe.Split(text, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func splitSection(s Section, opts Options) []Chunk {
	if EstimateTokens(s.Content) <= opts.TargetTokens {
		return []Chunk{newChunk(s.Content, s.HeadingPath)}
	}

	var (
		out        []Chunk
		current    string
		currentTok int
	)
	for _, para := range Paragraphs(s.Content) {
		paraTok := EstimateTokens(para)
		if current != "" && currentTok+paraTok > opts.TargetTokens {
			out = append(out, newChunk(current, s.HeadingPath))
			current = joinParagraphs(tail(current, opts.OverlapChars), para)
			currentTok = EstimateTokens(current)
			continue
		}
		current = joinParagraphs(current, para)
		currentTok += paraTok
	}
	if strings.TrimSpace(current) != "" {
		out = append(out, newChunk(current, s.HeadingPath))
	}
	return out
}

func newChunk(content, headingPath string) Chunk {
	content = strings.TrimSpace(content)
	return Chunk{Content: content, HeadingPath: headingPath, TokenCount: EstimateTokens(content)}
}

func joinParagraphs(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
