package coordinator

import (
	"strings"
	"unicode"

	"github.com/connorodea/medscribd/internal/skills"
)

// CommandKind classifies a transcript fragment.
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandStart
	CommandCancel
)

// Command is the closed-set classification of one transcript fragment.
// Isolating the phrase heuristic here keeps the fragile natural-language
// matching behind one narrow interface.
type Command struct {
	Kind  CommandKind
	Skill skills.Skill
}

var startPhrases = map[string]skills.Skill{
	"start clinical note":  skills.ClinicalNote,
	"start clinical notes": skills.ClinicalNote,
	"start drug dispatch":  skills.DrugDispatch,
	"start scheduling":     skills.Scheduling,
}

var cancelPhrases = []string{
	"cancel clinical note",
	"cancel drug dispatch",
	"cancel scheduling",
	"cancel task",
}

// Parse classifies a transcript fragment. The switch phrase must lead the
// utterance: "start scheduling" at the front of a fragment switches, but the
// word "scheduling" buried in conversation does not.
func Parse(fragment string) Command {
	norm := normalize(fragment)
	if norm == "" {
		return Command{Kind: CommandNone}
	}
	for phrase, skill := range startPhrases {
		if leadsWith(norm, phrase) {
			return Command{Kind: CommandStart, Skill: skill}
		}
	}
	for _, phrase := range cancelPhrases {
		if leadsWith(norm, phrase) {
			return Command{Kind: CommandCancel}
		}
	}
	return Command{Kind: CommandNone}
}

// leadsWith reports whether the phrase starts the fragment on a word boundary.
func leadsWith(norm, phrase string) bool {
	if !strings.HasPrefix(norm, phrase) {
		return false
	}
	rest := norm[len(phrase):]
	return rest == "" || rest[0] == ' '
}

// normalize lowercases and strips everything but letters, digits and single
// spaces so punctuation never blocks a match.
func normalize(s string) string {
	var b strings.Builder
	lastSpace := true
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}
