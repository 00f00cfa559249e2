// Package normalize rewrites spoken phrasing into interpreter syntax.
//
// Every rule is a whole-word, first-occurrence substitution applied in a
// fixed order. Later rules see text produced by earlier ones, so the order
// of Rules is part of the behavior: "star slash" has to come before "star"
// and "slash".
package normalize

import "strings"

// Rule replaces the first whole-word occurrence of Phrase with Symbol.
type Rule struct {
	Phrase string
	Symbol string
}

// Rules is the spoken-word to symbol table, in application order.
var Rules = []Rule{
	{"colon", ":"},
	{"define", ":"},
	{"semicolon", ";"},
	{"end", ";"},
	{"dot", "."},
	{"period", "."},
	{"print", "."},
	{"comma", ","},
	{"load", "@"},
	{"fetch", "@"},
	{"store", "!"},
	{"plus", "+"},
	{"add", "+"},
	{"minus", "-"},
	{"subtract", "-"},
	{"star slash", "*/"},
	{"times", "*"},
	{"multiply", "*"},
	{"star", "*"},
	{"divide", "/"},
	{"slash", "/"},
	{"dupe", "dup"},
	{"back rot", "-rot"},
	{"carriage return", "cr"},
	{"push", ">r"},
	{"pop", "r>"},
	{"does", "does>"},
}

// Articles are filler words dropped after symbol substitution.
var Articles = []string{"the", "a", "an"}

// Numbers maps spelled-out digits to numerals, applied last.
var Numbers = []Rule{
	{"zero", "0"},
	{"one", "1"},
	{"two", "2"},
	{"three", "3"},
	{"four", "4"},
	{"five", "5"},
	{"six", "6"},
	{"seven", "7"},
	{"eight", "8"},
	{"nine", "9"},
	{"ten", "10"},
}

var whitespace = strings.NewReplacer("\n", " ", "\r", " ", "\t", " ")

// Normalize lower-cases text, applies Rules, drops Articles, converts
// Numbers and trims the result.
func Normalize(text string) string {
	s := " " + strings.ToLower(text) + " "
	s = whitespace.Replace(s)
	for _, r := range Rules {
		s = replaceWord(s, r.Phrase, r.Symbol)
	}
	for _, a := range Articles {
		s = replaceWord(s, a, "")
	}
	for _, r := range Numbers {
		s = replaceWord(s, r.Phrase, r.Symbol)
	}
	return strings.TrimSpace(s)
}

// replaceWord substitutes the first space-bounded occurrence of word. An
// empty replacement collapses the word and one of its spaces.
func replaceWord(s, word, repl string) string {
	target := " " + word + " "
	with := " " + repl + " "
	if repl == "" {
		with = " "
	}
	return strings.Replace(s, target, with, 1)
}
