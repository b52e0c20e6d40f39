package chunking

import (
	"fmt"
	"strings"
	"testing"
)

func TestEstimateTokens(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abcd", 1},
		{"abcde", 2},
		{"机器学习", 3},
		{"ab机器", 2},
	}
	for _, tc := range cases {
		if got := EstimateTokens(tc.in); got != tc.want {
			t.Fatalf("EstimateTokens(%q): want=%d got=%d", tc.in, tc.want, got)
		}
	}
}

func TestSectionsHeadingStack(t *testing.T) {
	doc := "preface\n# A\nalpha\n## B\nbeta\n### C\ngamma\n## D\ndelta\n# E\nepsilon\n#### not a heading\n"
	got := Sections(doc)
	want := []Section{
		{"", "preface"},
		{"A", "alpha"},
		{"A > B", "beta"},
		{"A > B > C", "gamma"},
		{"A > D", "delta"},
		{"E", "epsilon\n#### not a heading"},
	}
	if len(got) != len(want) {
		t.Fatalf("sections: want=%d got=%d (%+v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("section %d: want=%+v got=%+v", i, want[i], got[i])
		}
	}
}

func TestSectionsWithoutHeadings(t *testing.T) {
	got := Sections("  just text\n\nmore text  ")
	if len(got) != 1 || got[0].HeadingPath != "" || got[0].Content != "just text\n\nmore text" {
		t.Fatalf("Sections: got %+v", got)
	}
	if Sections("   \n ") != nil {
		t.Fatalf("blank input: want no sections")
	}
}

func TestSectionsSkippedLevelHasNoEmptySegment(t *testing.T) {
	got := Sections("# A\n### C\nbody")
	if len(got) != 1 || got[0].HeadingPath != "A > C" {
		t.Fatalf("Sections: got %+v", got)
	}
}

// paragraph returns roughly 600 characters (150 tokens) tagged with i.
func paragraph(i int) string {
	return strings.TrimSpace(strings.Repeat(fmt.Sprintf("para%02d ", i), 86))
}

func TestSplitKeepsParagraphsWhole(t *testing.T) {
	var paras []string
	for i := 0; i < 10; i++ {
		paras = append(paras, paragraph(i))
	}
	doc := "# Guide\n" + strings.Join(paras, "\n\n")

	chunks := Split(doc)
	if len(chunks) < 3 {
		t.Fatalf("chunks: want>=3 got=%d", len(chunks))
	}

	var rebuilt []string
	for i, c := range chunks {
		if c.Index != i {
			t.Fatalf("chunk %d: index=%d", i, c.Index)
		}
		if c.HeadingPath != "Guide" {
			t.Fatalf("chunk %d: heading=%q", i, c.HeadingPath)
		}
		if c.TokenCount != EstimateTokens(c.Content) {
			t.Fatalf("chunk %d: token count mismatch", i)
		}
		body := c.Content
		if i > 0 {
			overlap := strings.TrimSpace(tail(chunks[i-1].Content, DefaultOverlapChars))
			if !strings.HasPrefix(body, overlap) {
				t.Fatalf("chunk %d: missing overlap prefix", i)
			}
			body = strings.TrimPrefix(body, overlap)
		}
		rebuilt = append(rebuilt, Paragraphs(body)...)
	}
	if strings.Join(rebuilt, "|") != strings.Join(paras, "|") {
		t.Fatalf("paragraph sequence not preserved: got %d paragraphs", len(rebuilt))
	}
}

func TestSplitOversizedParagraphIsNotCut(t *testing.T) {
	big := strings.TrimSpace(strings.Repeat("enormous ", 400))
	doc := "short intro\n\n" + big + "\n\nshort outro " + strings.Repeat("x", 10)

	chunks := Split(doc)
	found := 0
	for _, c := range chunks {
		if strings.Contains(c.Content, big) {
			found++
		}
	}
	if found != 1 {
		t.Fatalf("oversized paragraph: want exactly one chunk containing it got=%d", found)
	}
}

func TestSplitIndexesAcrossSections(t *testing.T) {
	doc := "# One\nfirst\n# Two\nsecond\n## Three\nthird"
	chunks := Split(doc)
	if len(chunks) != 3 {
		t.Fatalf("chunks: want=3 got=%d", len(chunks))
	}
	wantPaths := []string{"One", "Two", "Two > Three"}
	for i, c := range chunks {
		if c.Index != i || c.HeadingPath != wantPaths[i] {
			t.Fatalf("chunk %d: got index=%d path=%q", i, c.Index, c.HeadingPath)
		}
	}
}

func TestSplitRejoinedChunksKeepHeadings(t *testing.T) {
	doc := "# Intro\nhello world\n# Body\n## Part\ndetails here"
	first := Split(doc)

	var b strings.Builder
	for _, c := range first {
		for level, h := range strings.Split(c.HeadingPath, " > ") {
			fmt.Fprintf(&b, "%s %s\n", strings.Repeat("#", level+1), h)
		}
		fmt.Fprintf(&b, "%s\n", c.Content)
	}
	second := Split(b.String())
	if len(second) != len(first) {
		t.Fatalf("rejoin: want=%d got=%d", len(first), len(second))
	}
	for i := range first {
		if first[i].HeadingPath != second[i].HeadingPath {
			t.Fatalf("chunk %d: want=%q got=%q", i, first[i].HeadingPath, second[i].HeadingPath)
		}
	}
}
