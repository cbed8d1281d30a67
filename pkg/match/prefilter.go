package match

import (
	"strings"

	"github.com/coregx/ahocorasick"

	"github.com/japaniel/lectio/pkg/tokenize"
	"github.com/japaniel/lectio/pkg/vocab"
)

// prefilter is an Aho-Corasick automaton over a language's multi-word
// keys. Scanning a sentence once tells the matcher which word positions
// could start a multi-word term, so every other position probes the
// vocabulary with span 1 only. Hits are a superset of real matches; the
// lookup remains authoritative.
type prefilter struct {
	ac *ahocorasick.Automaton
}

// newPrefilter compiles the automaton. An empty key list yields a nil
// prefilter: with no multi-word terms there is nothing to filter for.
func newPrefilter(keys []string) (*prefilter, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	ac, err := ahocorasick.NewBuilder().
		AddStrings(keys).
		SetMatchKind(ahocorasick.LeftmostLongest).
		SetPrefilter(true).
		Build()
	if err != nil {
		return nil, err
	}
	return &prefilter{ac: ac}, nil
}

// multiwordStarts scans the sentence's joined word keys and returns the
// set of word indices where some multi-word key begins. The haystack is
// built with the same joining rules as the lookup keys, so automaton
// offsets land exactly on word starts.
func (pf *prefilter) multiwordStarts(words []tokenize.Token, removeSpaces bool) map[int]bool {
	var b strings.Builder
	startAt := make(map[int]int, len(words)) // byte offset -> word index
	for i, w := range words {
		if i > 0 && !removeSpaces {
			b.WriteByte(' ')
		}
		startAt[b.Len()] = i
		b.WriteString(vocab.Key(w.Text))
	}

	starts := make(map[int]bool)
	for _, m := range pf.ac.FindAllOverlapping([]byte(b.String())) {
		if idx, ok := startAt[m.Start]; ok {
			starts[idx] = true
		}
	}
	return starts
}
