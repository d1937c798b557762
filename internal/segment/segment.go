package segment

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMinLength is the minimum printed length for a speakable segment.
// Shorter fragments (a bare "Hi.") are not worth a synthesis round trip.
const DefaultMinLength = 10

// Segment is an indexed unit of text synthesized into one piece of audio.
// Indices are assigned sequentially from 0 with no gaps.
type Segment struct {
	Index int
	Text  string
}

// Split breaks text into speakable segments at runs of sentence-ending
// punctuation followed by whitespace or end of input. Candidates below
// minLen are dropped, except that non-empty input always yields at least
// one segment: when nothing qualifies, the whole input is returned.
func Split(text string, minLen int) []Segment {
	if minLen <= 0 {
		minLen = DefaultMinLength
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	var segs []Segment
	for _, candidate := range sentenceCandidates(text) {
		if utf8.RuneCountInString(candidate) < minLen {
			continue
		}
		segs = append(segs, Segment{Index: len(segs), Text: candidate})
	}
	if len(segs) == 0 {
		return []Segment{{Index: 0, Text: text}}
	}
	return segs
}

// sentenceCandidates scans text left to right and cuts after each run of
// terminal punctuation that is followed by whitespace or end of string.
// Trailing text without terminal punctuation forms a final candidate.
func sentenceCandidates(text string) []string {
	var (
		out   []string
		start int
	)
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		if !isTerminalPunct(runes[i]) {
			continue
		}
		// Swallow the whole punctuation run ("?!", "...").
		end := i
		for end+1 < len(runes) && isTerminalPunct(runes[end+1]) {
			end++
		}
		if end+1 < len(runes) && !unicode.IsSpace(runes[end+1]) {
			// Mid-word punctuation like "3.14" is not a boundary.
			i = end
			continue
		}
		candidate := strings.TrimSpace(string(runes[start : end+1]))
		if candidate != "" {
			out = append(out, candidate)
		}
		start = end + 1
		i = end
	}
	if tail := strings.TrimSpace(string(runes[start:])); tail != "" {
		out = append(out, tail)
	}
	return out
}

func isTerminalPunct(r rune) bool {
	switch r {
	case '.', '!', '?':
		return true
	default:
		return false
	}
}

// Accumulator applies the splitting policy to a growing token buffer so
// synthesis can start before the full text is known. Short complete
// sentences stay buffered and merge into the next flush instead of being
// dropped, so no spoken text is lost on the incremental path.
type Accumulator struct {
	rest   string
	next   int
	minLen int
}

func NewAccumulator(minLen int) *Accumulator {
	if minLen <= 0 {
		minLen = DefaultMinLength
	}
	return &Accumulator{minLen: minLen}
}

// Feed appends one token and returns any segments that became complete.
func (a *Accumulator) Feed(token string) []Segment {
	if token == "" {
		return nil
	}
	a.rest += token

	var flushed []Segment
	for {
		sentence, remainder, ok := a.cutSentence(a.rest)
		if !ok {
			break
		}
		a.rest = remainder
		flushed = append(flushed, Segment{Index: a.next, Text: sentence})
		a.next++
	}
	return flushed
}

// Flush drains whatever remains in the buffer at end of input. A remainder
// below the minimum length is still emitted when it is the only text seen,
// mirroring the never-zero-segments rule of Split.
func (a *Accumulator) Flush() []Segment {
	tail := strings.TrimSpace(a.rest)
	a.rest = ""
	if tail == "" {
		return nil
	}
	if utf8.RuneCountInString(tail) < a.minLen && a.next > 0 {
		return nil
	}
	seg := Segment{Index: a.next, Text: tail}
	a.next++
	return []Segment{seg}
}

// Count reports how many segments have been assigned so far.
func (a *Accumulator) Count() int { return a.next }

// cutSentence extracts the earliest complete sentence whose printed length
// meets the minimum. A sentence is complete only when its punctuation run
// is followed by whitespace already in the buffer; a run at the very end
// may still grow ("..." arriving one rune at a time).
func (a *Accumulator) cutSentence(buf string) (string, string, bool) {
	runes := []rune(buf)
	for i := 0; i < len(runes); i++ {
		if !isTerminalPunct(runes[i]) {
			continue
		}
		end := i
		for end+1 < len(runes) && isTerminalPunct(runes[end+1]) {
			end++
		}
		if end+1 >= len(runes) {
			// Run touches the end of the buffer; more punctuation may follow.
			return "", "", false
		}
		if !unicode.IsSpace(runes[end+1]) {
			i = end
			continue
		}
		sentence := strings.TrimSpace(string(runes[:end+1]))
		if utf8.RuneCountInString(sentence) < a.minLen {
			// Too short on its own; keep accumulating and merge forward.
			i = end
			continue
		}
		return sentence, string(runes[end+1:]), true
	}
	return "", "", false
}
