// Package textsplit splits long text into bounded chunks at natural
// boundaries, preferring sentence ends over paragraph breaks over plain
// spaces. It operates on Unicode code points so multi-byte characters are
// never cut in half.
package textsplit

import "strings"

// SplitIntoChunks splits text into ordered chunks of at most maxChars code
// points each. Each emitted chunk is trimmed of surrounding whitespace, but
// the scan cursor advances on raw offsets so nothing is skipped or duplicated
// between chunks. A text that already fits is returned as a single chunk.
func SplitIntoChunks(text string, maxChars int) []string {
	runes := []rune(text)
	if len(runes) <= maxChars {
		if trimmed := strings.TrimSpace(text); trimmed == "" {
			return []string{trimmed}
		}
		return []string{text}
	}

	var chunks []string
	pos := 0
	for pos < len(runes) {
		end := pos + maxChars
		if end >= len(runes) {
			// The remainder fits; emit it unconditionally.
			end = len(runes)
		} else {
			end = findBreakPoint(runes, pos, end)
		}

		chunk := strings.TrimSpace(string(runes[pos:end]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		pos = end
	}

	return chunks
}

// findBreakPoint searches backward within runes[start:maxEnd] for the best
// place to cut, in strict priority order: sentence terminator, paragraph
// break, single space, hard break at the window edge.
func findBreakPoint(runes []rune, start, maxEnd int) int {
	window := runes[start:maxEnd]

	// Latest sentence terminator followed by a separator: ". ", ".\n",
	// "? ", "! ". The break lands immediately after the separator.
	for i := len(window) - 2; i >= 0; i-- {
		if isSentenceEnd(window[i], window[i+1]) {
			return start + i + 2
		}
	}

	// Latest paragraph break.
	for i := len(window) - 2; i >= 0; i-- {
		if window[i] == '\n' && window[i+1] == '\n' {
			return start + i + 2
		}
	}

	// Latest single space.
	for i := len(window) - 1; i >= 0; i-- {
		if window[i] == ' ' {
			return start + i + 1
		}
	}

	// No natural boundary in the window; a token gets split.
	return maxEnd
}

func isSentenceEnd(c, next rune) bool {
	switch c {
	case '.':
		return next == ' ' || next == '\n'
	case '?', '!':
		return next == ' '
	default:
		return false
	}
}
