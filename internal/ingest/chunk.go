package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

// Chunk is one retrieval unit: a contiguous slice of normalized document
// text small enough for the embedding budget, with the raw byte span it
// covers and a content hash used for embedding cache keys.
type Chunk struct {
	SourceFile  string
	Index       int
	Text        string
	StartOffset int
	EndOffset   int
	ContentHash string
}

var sentenceEndRe = regexp.MustCompile(`([.!?。！？])\s+`)

// ChunkDoc splits a normalized document into chunks of at most maxTokens
// (approximate). Paragraph boundaries are preferred split points; a
// paragraph over budget is split at sentence boundaries, and a single
// sentence over budget is hard-cut on whitespace. Sub-paragraph chunks
// carry the byte span of the paragraph they came from.
func ChunkDoc(doc NormDoc, maxTokens int) []Chunk {
	if maxTokens <= 0 {
		maxTokens = 1
	}

	var chunks []Chunk
	var cur []NormLine
	curTokens := 0

	flush := func() {
		if len(cur) == 0 {
			return
		}
		parts := make([]string, len(cur))
		for i, ln := range cur {
			parts[i] = ln.Text
		}
		chunks = appendChunk(chunks, doc.SourceFile,
			strings.Join(parts, "\n"), cur[0].StartOffset, cur[len(cur)-1].EndOffset)
		cur = nil
		curTokens = 0
	}

	for _, para := range paragraphs(doc.Lines) {
		pTokens := 0
		for _, ln := range para {
			pTokens += approxTokens(ln.Text)
		}

		if pTokens > maxTokens {
			flush()
			text := joinLines(para)
			start, end := para[0].StartOffset, para[len(para)-1].EndOffset
			for _, piece := range splitOversize(text, maxTokens) {
				chunks = appendChunk(chunks, doc.SourceFile, piece, start, end)
			}
			continue
		}

		if curTokens+pTokens > maxTokens {
			flush()
		}
		cur = append(cur, para...)
		curTokens += pTokens
	}
	flush()
	return chunks
}

func appendChunk(chunks []Chunk, source, text string, start, end int) []Chunk {
	sum := sha256.Sum256([]byte(text))
	return append(chunks, Chunk{
		SourceFile:  source,
		Index:       len(chunks),
		Text:        text,
		StartOffset: start,
		EndOffset:   end,
		ContentHash: hex.EncodeToString(sum[:]),
	})
}

func paragraphs(lines []NormLine) [][]NormLine {
	var paras [][]NormLine
	for _, ln := range lines {
		if ln.ParaStart || len(paras) == 0 {
			paras = append(paras, nil)
		}
		paras[len(paras)-1] = append(paras[len(paras)-1], ln)
	}
	return paras
}

func joinLines(lines []NormLine) string {
	parts := make([]string, len(lines))
	for i, ln := range lines {
		parts[i] = ln.Text
	}
	return strings.Join(parts, "\n")
}

// splitOversize breaks text that exceeds the budget: first at sentence
// boundaries, then by hard whitespace cuts for a single runaway sentence.
func splitOversize(text string, maxTokens int) []string {
	var out []string
	var cur strings.Builder
	curTokens := 0

	emit := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
		curTokens = 0
	}

	for _, sent := range splitSentences(text) {
		sTokens := approxTokens(sent)
		if sTokens > maxTokens {
			emit()
			out = append(out, hardCut(sent, maxTokens)...)
			continue
		}
		if curTokens+sTokens > maxTokens {
			emit()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(sent)
		curTokens += sTokens
	}
	emit()
	return out
}

func splitSentences(text string) []string {
	marked := sentenceEndRe.ReplaceAllString(text, "$1\x00")
	var sents []string
	for _, s := range strings.Split(marked, "\x00") {
		if s = strings.TrimSpace(s); s != "" {
			sents = append(sents, s)
		}
	}
	return sents
}

func hardCut(sent string, maxTokens int) []string {
	words := strings.Fields(sent)
	// Invert the token estimate to get a word budget per piece.
	perPiece := maxTokens * 3 / 4
	if perPiece < 1 {
		perPiece = 1
	}
	var out []string
	for len(words) > 0 {
		n := perPiece
		if n > len(words) {
			n = len(words)
		}
		out = append(out, strings.Join(words[:n], " "))
		words = words[n:]
	}
	return out
}

// approxTokens estimates the token count of text without a tokenizer
// dependency: roughly 4 tokens per 3 whitespace-separated words.
func approxTokens(text string) int {
	n := len(strings.Fields(text)) * 4 / 3
	if n < 1 && text != "" {
		n = 1
	}
	return n
}
