package infer

import (
	"regexp"

	"github.com/skeinhq/skein/pkg/models"
)

var tokenPattern = regexp.MustCompile(`[a-z0-9]+`)

// stopwords are tokens too common to signal that two tasks concern the same
// subject. Generic task verbs are included: nearly every task "adds" or
// "implements" something.
var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "from": true,
	"into": true, "that": true, "this": true, "are": true, "was": true,
	"will": true, "should": true, "must": true, "can": true, "all": true,
	"new": true, "add": true, "adds": true, "create": true, "creates": true,
	"update": true, "updates": true, "make": true, "makes": true,
	"implement": true, "implements": true, "implementation": true,
	"write": true, "writes": true, "build": true, "builds": true,
	"set": true, "setup": true, "task": true, "tasks": true,
	"support": true, "using": true, "based": true, "when": true,
	"ensure": true, "handle": true, "handles": true,
}

// SalientKeywords returns the distinctive lowercase tokens of a task's
// combined text. Tokens shorter than three characters are dropped.
func SalientKeywords(t *models.Task) map[string]bool {
	out := map[string]bool{}
	for _, tok := range tokenPattern.FindAllString(t.Text(), -1) {
		if len(tok) < 3 || stopwords[tok] {
			continue
		}
		out[tok] = true
	}
	return out
}

// SharedSalient counts keywords common to both sets.
func SharedSalient(a, b map[string]bool) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	n := 0
	for tok := range a {
		if b[tok] {
			n++
		}
	}
	return n
}
