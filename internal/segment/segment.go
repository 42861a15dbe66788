// Package segment implements the human-like outbound pacing split of an
// LLM response into gateway-sized text segments (spec section 4.H).
package segment

import (
	"strings"
	"time"
)

// Segmenter holds the tunable thresholds behind the segmentation and
// pacing heuristic (design note 9.3: "must be tunable").
type Segmenter struct {
	MaxSegmentLen    int
	TypingMinMs      int
	TypingMaxMs      int
	TypingMsPerChar  int
	PaceMinMs        int
	PaceMaxMs        int
	InterSegmentMs   int
}

// Default returns the Segmenter configured with spec-mandated defaults.
func Default() Segmenter {
	return Segmenter{
		MaxSegmentLen:   300,
		TypingMinMs:     1000,
		TypingMaxMs:     4000,
		TypingMsPerChar: 40,
		PaceMinMs:       2000,
		PaceMaxMs:       5000,
		InterSegmentMs:  1000,
	}
}

// Segment splits text on paragraph boundaries, then on sentence
// terminators, keeping each segment at or under MaxSegmentLen while
// preserving order. Joined with spaces, the result equals the input
// modulo whitespace (property 6).
func (s Segmenter) Segment(text string) []string {
	var out []string
	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		out = append(out, s.segmentParagraph(paragraph)...)
	}
	return out
}

// segmentParagraph splits a single paragraph into sentences, then packs
// consecutive sentences into segments up to MaxSegmentLen.
func (s Segmenter) segmentParagraph(paragraph string) []string {
	sentences := splitSentences(paragraph)

	var out []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			out = append(out, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}

		if len(sentence) > s.MaxSegmentLen {
			flush()
			out = append(out, hardWrap(sentence, s.MaxSegmentLen)...)
			continue
		}

		candidateLen := current.Len()
		if candidateLen > 0 {
			candidateLen++ // joining space
		}
		candidateLen += len(sentence)

		if candidateLen > s.MaxSegmentLen {
			flush()
		}
		if current.Len() > 0 {
			current.WriteByte(' ')
		}
		current.WriteString(sentence)
	}
	flush()

	return out
}

// splitSentences splits on '.', '!', '?' followed by whitespace, keeping
// the terminator attached to the preceding sentence.
func splitSentences(text string) []string {
	var sentences []string
	start := 0
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if (r == '.' || r == '!' || r == '?') && i+1 < len(runes) && isSpace(runes[i+1]) {
			sentences = append(sentences, string(runes[start:i+1]))
			start = i + 1
		}
	}
	if start < len(runes) {
		sentences = append(sentences, string(runes[start:]))
	}
	return sentences
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// hardWrap splits s into chunks of at most n runes, used only for
// pathologically long single sentences.
func hardWrap(s string, n int) []string {
	runes := []rune(s)
	var out []string
	for len(runes) > 0 {
		end := n
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[:end]))
		runes = runes[end:]
	}
	return out
}

// TypingDuration computes T_typing = min(4000, max(1000, 40*len)) ms.
func (s Segmenter) TypingDuration(segmentText string) time.Duration {
	ms := s.TypingMsPerChar * len(segmentText)
	if ms < s.TypingMinMs {
		ms = s.TypingMinMs
	}
	if ms > s.TypingMaxMs {
		ms = s.TypingMaxMs
	}
	return time.Duration(ms) * time.Millisecond
}

// PaceRange returns the [min, max] bounds, in ms, of the uniform random
// delay sent before each segment.
func (s Segmenter) PaceRange() (int, int) {
	return s.PaceMinMs, s.PaceMaxMs
}

// InterSegmentDelay is the fixed pause between non-final segments.
func (s Segmenter) InterSegmentDelay() time.Duration {
	return time.Duration(s.InterSegmentMs) * time.Millisecond
}
