package command

import "strings"

// Segment is one piece of a turn's raw model output, split along command
// block boundaries: either narration (prose the model wrote) or a raw
// command block verbatim.
type Segment struct {
	IsCommand bool
	Text      string
}

// Split divides text into narration and command-block segments in source
// order, trimming narration and dropping it when it is empty or
// whitespace-only — including the case where a command block's own
// surrounding whitespace is all that's left once the tags are stripped out.
func Split(text string) []Segment {
	var segs []Segment
	lastEnd := 0
	for _, loc := range SpanRE.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if before := strings.TrimSpace(text[lastEnd:start]); before != "" {
			segs = append(segs, Segment{Text: before})
		}
		segs = append(segs, Segment{IsCommand: true, Text: text[start:end]})
		lastEnd = end
	}
	if after := strings.TrimSpace(text[lastEnd:]); after != "" {
		segs = append(segs, Segment{Text: after})
	}
	return segs
}
