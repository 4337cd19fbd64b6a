// Package textchunk splits arbitrary text into transport-safe message parts.
package textchunk

import (
	"strings"
	"unicode/utf8"
)

// TruncationNotice is appended when the chunk-count cap forces truncation.
const TruncationNotice = "\n\n[output truncated]"

// Plain splits text into pieces of at most maxLen bytes, preferring to cut at
// the last newline, then the last space, inside the window. A boundary is
// only honored when it falls in the back half of the window, so a stray early
// space never produces a tiny chunk. Concatenating the result reproduces the
// input exactly.
func Plain(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}

	var chunks []string
	rest := text
	for len(rest) > maxLen {
		window := rest[:maxLen]
		cut := maxLen
		if i := strings.LastIndexByte(window, '\n'); i >= maxLen/2 {
			cut = i + 1
		} else if i := strings.LastIndexByte(window, ' '); i >= maxLen/2 {
			cut = i + 1
		} else {
			for cut > 0 && !utf8.RuneStart(rest[cut]) {
				cut--
			}
			if cut == 0 {
				cut = maxLen
			}
		}
		chunks = append(chunks, rest[:cut])
		rest = rest[cut:]
	}
	if rest != "" {
		chunks = append(chunks, rest)
	}
	return chunks
}

// FenceAware splits like Plain but tracks triple-backtick code fences across
// chunk boundaries. A boundary falling inside an open fence closes the chunk
// with a synthetic fence-end and reopens the next chunk with the same
// language tag, so every emitted chunk has balanced fences on its own.
func FenceAware(text string, maxLen int) []string {
	if maxLen <= 0 || len(text) <= maxLen {
		return []string{text}
	}
	if maxLen < 32 {
		// No room for fence bookkeeping.
		return Plain(text, maxLen)
	}

	const closeReserve = len("\n```")

	var chunks []string
	var cur strings.Builder
	open := false
	lang := ""

	reopen := func() string { return "```" + lang + "\n" }

	flush := func() {
		if cur.Len() == 0 {
			return
		}
		s := cur.String()
		if open && s == reopen() {
			// Only the synthetic opener so far; keep accumulating.
			return
		}
		if open {
			if !strings.HasSuffix(s, "\n") {
				s += "\n"
			}
			s += "```"
		}
		chunks = append(chunks, s)
		cur.Reset()
		if open {
			cur.WriteString(reopen())
		}
	}

	budget := func() int {
		if open {
			return maxLen - closeReserve
		}
		return maxLen
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		room := maxLen - closeReserve - len(reopen())
		pieces := []string{line}
		if len(line) > room {
			pieces = hardSplit(line, room)
		}
		for _, piece := range pieces {
			if cur.Len() > 0 && cur.Len()+len(piece) > budget() {
				flush()
			}
			cur.WriteString(piece)
		}
		if t := strings.TrimSpace(line); strings.HasPrefix(t, "```") {
			if open {
				open = false
				lang = ""
			} else {
				open = true
				lang = strings.TrimSpace(strings.TrimPrefix(t, "```"))
			}
		}
	}
	flush()
	return chunks
}

// FenceAwareCapped bounds the number of chunks FenceAware may produce. When
// the natural count exceeds maxChunks the source is truncated to fit within
// the cap (reserving room for the truncation notice) and re-chunked, so a
// pathological output cannot fan out into unbounded delivery calls.
func FenceAwareCapped(text string, maxLen, maxChunks int) []string {
	if maxChunks <= 0 {
		maxChunks = 1
	}
	chunks := FenceAware(text, maxLen)
	if len(chunks) <= maxChunks {
		return chunks
	}

	limit := maxChunks*maxLen - len(TruncationNotice) - maxChunks*16
	if limit < 0 {
		limit = 0
	}
	if limit > len(text) {
		limit = len(text)
	}
	// Soft boundary cuts can make chunks shorter than maxLen, so one pass may
	// still overflow the cap; shrink until the notice survives the cut.
	for {
		for limit > 0 && !utf8.RuneStart(text[limit]) {
			limit--
		}
		chunks = FenceAware(text[:limit]+TruncationNotice, maxLen)
		if len(chunks) <= maxChunks || limit == 0 {
			break
		}
		limit -= maxLen
		if limit < 0 {
			limit = 0
		}
	}
	if len(chunks) > maxChunks {
		// Only reachable when the shrink bottomed out; the dropped tail may
		// have carried the notice, so force it back into the final chunk.
		chunks = chunks[:maxChunks]
		last := chunks[maxChunks-1]
		if !strings.Contains(last, strings.TrimSpace(TruncationNotice)) {
			keep := maxLen - len(TruncationNotice)
			if keep < 0 {
				keep = 0
			}
			if len(last) > keep {
				for keep > 0 && !utf8.RuneStart(last[keep]) {
					keep--
				}
				last = last[:keep]
			}
			chunks[maxChunks-1] = last + TruncationNotice
		}
	}
	return chunks
}

func hardSplit(s string, n int) []string {
	if n <= 0 {
		return []string{s}
	}
	var out []string
	for len(s) > n {
		cut := n
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = n
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
