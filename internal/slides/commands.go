package slides

import "strconv"

// Command tags. A command is its tag followed by an optional payload.
const (
	TagPrevious = "p"
	TagNext     = "n"
	TagGoTo     = "g"
	TagInput    = "i"
	TagOutput   = "o"
)

func Previous() string { return TagPrevious }

func Next() string { return TagNext }

// GoTo addresses slide n.
func GoTo(n int) string { return TagGoTo + strconv.Itoa(n) }

// Input echoes an utterance to the observer.
func Input(text string) string { return TagInput + text }

// Output echoes interpreter output to the observer.
func Output(text string) string { return TagOutput + text }

// Tag returns the tag of cmd, or "" for an empty command.
func Tag(cmd string) string {
	if cmd == "" {
		return ""
	}
	return cmd[:1]
}
