// Package vocab defines the vocabulary data model shared by the matcher,
// the renderer, and the store.
package vocab

import (
	"context"
	"strings"
)

// Status is a term's learning status.
type Status int

const (
	StatusNew Status = iota
	StatusStage1
	StatusStage2
	StatusStage3
	StatusStage4
	StatusStage5
	StatusIgnored
	StatusWellKnown
)

func (s Status) String() string {
	switch s {
	case StatusNew:
		return "new"
	case StatusStage1, StatusStage2, StatusStage3, StatusStage4, StatusStage5:
		return "stage" + string(rune('0'+int(s)))
	case StatusIgnored:
		return "ignored"
	case StatusWellKnown:
		return "well-known"
	default:
		return "unknown"
	}
}

// StyleClass returns the CSS-equivalent class for a status.
func (s Status) StyleClass() string {
	switch s {
	case StatusIgnored:
		return "status-ignored"
	case StatusWellKnown:
		return "status-known"
	default:
		return "status" + string(rune('0'+int(s)))
	}
}

// StatusSet is a bitmask of statuses, used as the annotation visibility
// policy handed to the renderer.
type StatusSet uint16

// Statuses builds a StatusSet from its members.
func Statuses(ss ...Status) StatusSet {
	var set StatusSet
	for _, s := range ss {
		set |= 1 << uint(s)
	}
	return set
}

// AllLearning covers new plus the five learning stages.
func AllLearning() StatusSet {
	return Statuses(StatusNew, StatusStage1, StatusStage2, StatusStage3, StatusStage4, StatusStage5)
}

// Has reports membership.
func (set StatusSet) Has(s Status) bool { return set&(1<<uint(s)) != 0 }

// NoTranslation is the sentinel stored when a term has no translation yet.
// Terms carrying it render without an annotation.
const NoTranslation = "*"

// Term is a vocabulary entry. A multi-word expression is a Term like any
// other, distinguished only by Span > 1.
type Term struct {
	ID         int64
	LanguageID int64
	// Key is the lowercase lookup key; see Key and MultiKey.
	Key string
	// Text preserves the casing the learner entered.
	Text string
	// Span is the number of word-order positions the term covers.
	Span            int
	Status          Status
	Translation     string
	Transliteration string
	Tags            []string
}

// HasTranslation reports whether the term carries a real translation.
func (t *Term) HasTranslation() bool {
	return t.Translation != "" && t.Translation != NoTranslation
}

// Key folds a single word to its lookup form.
func Key(word string) string { return strings.ToLower(word) }

// MultiKey joins word keys into a multi-word lookup key. Spaced languages
// join with a single space; scriptio-continua languages join with nothing,
// matching how the text itself reads.
func MultiKey(words []string, removeSpaces bool) string {
	sep := " "
	if removeSpaces {
		sep = ""
	}
	keys := make([]string, len(words))
	for i, w := range words {
		keys[i] = Key(w)
	}
	return strings.Join(keys, sep)
}

// Vocabulary is the read-only lookup interface the matcher depends on.
// Implementations return every term whose key starts at the given word key
// with span <= maxSpan, ordered span descending then key ascending, so the
// matcher's longest-match walk and its tie-breaking are deterministic.
type Vocabulary interface {
	LookupTerms(ctx context.Context, languageID int64, wordKey string, maxSpan int) ([]Term, error)
	// MultiwordKeys returns every key with span > 1 for the language,
	// used to build the matcher's prefilter automaton.
	MultiwordKeys(ctx context.Context, languageID int64) ([]string, error)
}
