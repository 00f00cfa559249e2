package session

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/mohammad-safakhou/voiceforth/internal/slides"
)

type controlKind int

const (
	controlNone controlKind = iota
	controlTalkTo
	controlSignOut
	controlRestart
	controlPrevious
	controlNext
	controlGoTo
)

// RestartPhrase replaces the running interpreter with a fresh one.
const RestartPhrase = "restart interpreter"

var signOutPhrases = map[string]bool{
	"sign out": true,
	"log out":  true,
	"logout":   true,
}

var goToSlide = regexp.MustCompile(`^go to slide (?:number )?([0-9]+)$`)

type control struct {
	kind  controlKind
	slide int
}

func (c control) command() string {
	switch c.kind {
	case controlPrevious:
		return slides.Previous()
	case controlNext:
		return slides.Next()
	case controlGoTo:
		return slides.GoTo(c.slide)
	}
	return ""
}

// classify matches the reserved phrases against both the spoken form
// (lower-cased, whitespace collapsed) and the normalized query, so a phrase
// still matches when normalization rewrote one of its words.
func classify(utterance, q, talkTo string) control {
	spoken := strings.Join(strings.Fields(strings.ToLower(utterance)), " ")
	for _, s := range []string{spoken, q} {
		switch {
		case s == talkTo:
			return control{kind: controlTalkTo}
		case signOutPhrases[s]:
			return control{kind: controlSignOut}
		case s == RestartPhrase:
			return control{kind: controlRestart}
		case s == "previous slide":
			return control{kind: controlPrevious}
		case s == "next slide":
			return control{kind: controlNext}
		}
		if m := goToSlide.FindStringSubmatch(s); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil {
				return control{kind: controlGoTo, slide: n}
			}
		}
	}
	return control{kind: controlNone}
}
