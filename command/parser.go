// Package command parses an agent's model output into ordered actuator
// calls: a <func>VERB</func><param>arg</param>... tag format, plus the
// span bookkeeping needed to split surrounding prose into narration.
package command

import (
	"regexp"
	"strings"
)

// Command is one parsed <func>VERB</func> call, verb uppercased, args in
// the order they appeared.
type Command struct {
	Verb string
	Args []string
}

// FileVerbs bypass the terminal and act on the sandbox's filesystem
// directly instead of going through a shell.
var FileVerbs = map[string]bool{
	"READ":  true,
	"WRITE": true,
	"EDIT":  true,
}

// MinArgs gives the minimum argument count each file verb requires.
var MinArgs = map[string]int{
	"READ":  1,
	"WRITE": 2,
	"EDIT":  3,
}

// KeyboardVerbs trigger a TERM feedback capture once a turn's commands
// finish running.
var KeyboardVerbs = map[string]bool{
	"TYPE": true,
	"KEY":  true,
}

// MouseVerbs trigger a LOOK feedback capture once a turn's commands
// finish running.
var MouseVerbs = map[string]bool{
	"MOVE":       true,
	"LCLICK":     true,
	"RCLICK":     true,
	"LDOWN":      true,
	"LUP":        true,
	"RDOWN":      true,
	"RUP":        true,
	"SCROLLUP":   true,
	"SCROLLDOWN": true,
}

// ExplicitVerbs request an immediate perception capture rather than
// waiting for the end-of-turn auto-feedback.
var ExplicitVerbs = map[string]bool{
	"LOOK": true,
	"TERM": true,
}

// ControlVerbs affect turn flow rather than the sandbox itself.
var ControlVerbs = map[string]bool{
	"WAIT": true,
}

var (
	blockRE = regexp.MustCompile(`(?s)<func>(\w+)</func>((?:\s*<param>.*?</param>)*)`)
	paramRE = regexp.MustCompile(`(?s)<param>(.*?)</param>`)

	// SpanRE matches a full command block — verb tag plus its sibling
	// param tags — so callers can split surrounding text into narration.
	SpanRE = regexp.MustCompile(`(?s)<func>\w+</func>(?:\s*<param>.*?</param>)*`)
)

// Parse extracts every <func>VERB</func><param>..</param> occurrence from
// text, verb uppercased, in source order.
func Parse(text string) []Command {
	matches := blockRE.FindAllStringSubmatch(text, -1)
	cmds := make([]Command, 0, len(matches))
	for _, m := range matches {
		verb, paramBlock := m[1], m[2]
		var args []string
		for _, p := range paramRE.FindAllStringSubmatch(paramBlock, -1) {
			args = append(args, p[1])
		}
		cmds = append(cmds, Command{Verb: strings.ToUpper(verb), Args: args})
	}
	return cmds
}
