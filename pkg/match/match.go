// Package match links word tokens to vocabulary terms, preferring the
// longest match at each word-order position.
package match

import (
	"context"

	"github.com/japaniel/lectio/pkg/language"
	"github.com/japaniel/lectio/pkg/tokenize"
	"github.com/japaniel/lectio/pkg/vocab"
)

// DefaultMaxSpan bounds how many word positions a multi-word term may
// cover.
const DefaultMaxSpan = 9

// Link records that the term's span starts at the given word order.
type Link struct {
	Start int
	Term  vocab.Term
}

// Sentence is a tokenized sentence plus the term links found in it.
// A start position carries at most one link; positions with none are
// unknown words, which is expected and common.
type Sentence struct {
	tokenize.Sentence
	Links []Link
}

// LinkAt returns the longest-span link starting at the given word order,
// or nil. When a position starts both a multi-word term and a standalone
// term, the multi-word link is recorded first.
func (s *Sentence) LinkAt(order int) *vocab.Term {
	for i := range s.Links {
		if s.Links[i].Start == order {
			return &s.Links[i].Term
		}
	}
	return nil
}

// SingleAt returns the span-1 link at the given word order, or nil.
func (s *Sentence) SingleAt(order int) *vocab.Term {
	for i := range s.Links {
		if s.Links[i].Start == order && s.Links[i].Term.Span == 1 {
			return &s.Links[i].Term
		}
	}
	return nil
}

// Result is the annotated token stream handed to the renderer.
type Result struct {
	Sentences []Sentence
	// Degraded is carried through from tokenization.
	Degraded bool
}

// LinkAt returns the link starting at the given word order across the
// whole text, or nil.
func (r *Result) LinkAt(order int) *vocab.Term {
	for i := range r.Sentences {
		if t := r.Sentences[i].LinkAt(order); t != nil {
			return t
		}
	}
	return nil
}

// Matcher finds term links in a token stream. It only reads the
// vocabulary; terms added while a matcher exists are picked up by the
// next Match call's lookups (and the next BuildPrefilter), never
// mid-sentence.
type Matcher struct {
	Vocab vocab.Vocabulary
	// MaxSpan caps candidate span lengths. Zero means DefaultMaxSpan.
	MaxSpan int

	prefilter *prefilter
}

// New returns a matcher over the given vocabulary.
func New(v vocab.Vocabulary) *Matcher {
	return &Matcher{Vocab: v}
}

// BuildPrefilter compiles an Aho-Corasick automaton over the language's
// multi-word keys. With it, word positions where no multi-word key can
// start skip multi-word lookups entirely. Optional; matching is correct
// without it.
func (m *Matcher) BuildPrefilter(ctx context.Context, languageID int64) error {
	keys, err := m.Vocab.MultiwordKeys(ctx, languageID)
	if err != nil {
		return err
	}
	pf, err := newPrefilter(keys)
	if err != nil {
		return err
	}
	m.prefilter = pf
	return nil
}

// Match annotates the token stream with term links. For each word
// position, candidate spans are tested longest first; equal-length ties
// go to the lexicographically smallest key, keeping renders reproducible.
func (m *Matcher) Match(ctx context.Context, toks *tokenize.Result, prof *language.Profile) (*Result, error) {
	res := &Result{Degraded: toks.Degraded}
	for _, sent := range toks.Sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ms, err := m.MatchSentence(ctx, sent, prof)
		if err != nil {
			return nil, err
		}
		res.Sentences = append(res.Sentences, ms)
	}
	return res, nil
}

// MatchSentence annotates a single sentence. It is safe to call from
// multiple goroutines; the matcher itself is read-only during matching.
func (m *Matcher) MatchSentence(ctx context.Context, sent tokenize.Sentence, prof *language.Profile) (Sentence, error) {
	maxSpan := m.MaxSpan
	if maxSpan <= 0 {
		maxSpan = DefaultMaxSpan
	}
	return m.matchSentence(ctx, sent, prof, maxSpan)
}

func (m *Matcher) matchSentence(ctx context.Context, sent tokenize.Sentence, prof *language.Profile, maxSpan int) (Sentence, error) {
	out := Sentence{Sentence: sent}
	words := sent.Words()
	if len(words) == 0 {
		return out, nil
	}

	var multiStarts map[int]bool
	if m.prefilter != nil {
		multiStarts = m.prefilter.multiwordStarts(words, prof.RemoveSpaces)
	}

	for i := range words {
		// A span may never run past the end of its sentence.
		limit := maxSpan
		if rem := len(words) - i; rem < limit {
			limit = rem
		}
		if multiStarts != nil && !multiStarts[i] {
			limit = 1
		}

		candidates, err := m.Vocab.LookupTerms(ctx, prof.ID, vocab.Key(words[i].Text), limit)
		if err != nil {
			return Sentence{}, err
		}
		matchedSpan := 0
		for _, cand := range candidates {
			// Stored data may disagree with the lookup contract;
			// out-of-bounds or wrong-language terms leave the
			// position unmatched rather than poisoning the render.
			if cand.Span < 1 || cand.Span > limit || cand.LanguageID != prof.ID {
				continue
			}
			// After the longest match only a span-1 term starting at
			// the same position is still of interest.
			if matchedSpan > 0 && cand.Span != 1 {
				continue
			}
			if cand.Span == matchedSpan {
				continue
			}
			if cand.Key != spanKey(words[i:i+cand.Span], prof.RemoveSpaces) {
				continue
			}
			out.Links = append(out.Links, Link{Start: words[i].Order, Term: cand})
			matchedSpan = cand.Span
			// The longest match is the position's link; a span-1 term
			// starting here is recorded too so expanded mode can show
			// the standalone word.
			if cand.Span == 1 {
				break
			}
		}
	}
	return out, nil
}

// spanKey folds a run of word tokens into the lookup key it would match.
func spanKey(words []tokenize.Token, removeSpaces bool) string {
	texts := make([]string, len(words))
	for i, w := range words {
		texts[i] = w.Text
	}
	return vocab.MultiKey(texts, removeSpaces)
}
