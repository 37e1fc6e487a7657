package ingest

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// NormLine is one surviving line of normalized text with the byte span of
// the original raw line it came from. Offsets always reference the raw
// content so excerpts can be traced back to the source document.
type NormLine struct {
	Text        string
	StartOffset int
	EndOffset   int
	// ParaStart marks the first line of a paragraph (preceded by a blank
	// line or the document start in the raw text).
	ParaStart bool
}

// NormDoc is the normalized form of a RawDoc.
type NormDoc struct {
	SourceFile string
	DocHash    string
	Lines      []NormLine
}

var (
	// Leading section numbering like "1.", "2.3.1", "第3条", "(a)", "IV."
	sectionNumberRe = regexp.MustCompile(`^\s*(?:第\s*[0-9一二三四五六七八九十百]+\s*[条章節項]|[0-9]+(?:[.．][0-9]+)*[.．)）]?|\([a-zA-Z0-9]+\)|[IVXLC]+[.)])\s+`)
	// Markdown heading markers and horizontal rules.
	headingMarkRe = regexp.MustCompile(`^\s*(?:#{1,6}\s+|[-=*_]{3,}\s*$)`)
	spaceRunRe    = regexp.MustCompile(`[ \t\x{3000}]+`)
)

// Normalize applies NFC unicode normalization, strips section numbering and
// heading decoration, consolidates whitespace, and drops blank lines while
// recording where each kept line sat in the raw content.
func Normalize(doc RawDoc) NormDoc {
	out := NormDoc{SourceFile: doc.Path, DocHash: doc.Hash}
	if doc.Err != nil {
		return out
	}

	offset := 0
	prevBlank := true
	for _, rawLine := range strings.SplitAfter(doc.Content, "\n") {
		start := offset
		offset += len(rawLine)

		line := strings.TrimRight(rawLine, "\n")
		end := start + len(line)

		text := norm.NFC.String(line)
		text = headingMarkRe.ReplaceAllString(text, "")
		text = sectionNumberRe.ReplaceAllString(text, "")
		text = spaceRunRe.ReplaceAllString(text, " ")
		text = strings.TrimSpace(text)

		if text == "" {
			prevBlank = true
			continue
		}

		out.Lines = append(out.Lines, NormLine{
			Text:        text,
			StartOffset: start,
			EndOffset:   end,
			ParaStart:   prevBlank,
		})
		prevBlank = false
	}
	return out
}
