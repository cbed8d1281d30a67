// Package tokenize turns raw text into an ordered stream of sentences and
// tokens according to a language profile.
package tokenize

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/japaniel/lectio/pkg/language"
)

// Token is one atomic unit of a sentence. Word tokens carry a word-order
// value; non-word tokens (punctuation, spaces, line breaks) carry zero and
// are never linked to vocabulary.
type Token struct {
	Text   string
	IsWord bool
	// Order is the global word order, assigned sequentially across the
	// whole text starting at 1. Zero for non-word tokens.
	Order int
}

// Sentence is an ordered run of tokens plus the raw string it came from.
type Sentence struct {
	Index  int
	Text   string
	Tokens []Token
}

// Result is the output of one tokenization pass.
type Result struct {
	Sentences []Sentence
	// WordCount is the number of word tokens, i.e. the highest word order.
	WordCount int
	// Degraded is set when the segmenter failed and the fallback
	// character-by-character segmentation was used instead.
	Degraded bool
}

// ErrTextTooLarge is returned when the input exceeds the tokenizer's cap.
var ErrTextTooLarge = fmt.Errorf("text exceeds maximum size")

// DefaultMaxTextLen caps input size to bound worst-case parse latency.
const DefaultMaxTextLen = 1 << 20

// Tokenizer splits text for one language. The zero value works for spaced
// languages; scriptio-continua languages additionally need a Segmenter.
type Tokenizer struct {
	Segmenter Segmenter
	// MaxTextLen caps the accepted input in bytes. Zero means
	// DefaultMaxTextLen.
	MaxTextLen int
	// Logger receives degradation notices. nil means no logging.
	Logger *log.Logger
}

// Tokenize splits text into sentences and tokens per the profile,
// compiling it first if the caller has not. A profile that fails to
// compile is reported before any text is touched. ctx is checked
// between sentences so long parses can be abandoned.
func (tk *Tokenizer) Tokenize(ctx context.Context, text string, prof *language.Profile) (*Result, error) {
	if !prof.Compiled() {
		if err := prof.Compile(); err != nil {
			return nil, err
		}
	}
	maxLen := tk.MaxTextLen
	if maxLen <= 0 {
		maxLen = DefaultMaxTextLen
	}
	if len(text) > maxLen {
		return nil, fmt.Errorf("%w (%d > %d bytes)", ErrTextTooLarge, len(text), maxLen)
	}

	raw := splitSentences(text, prof)
	res := &Result{}

	var segments [][]string
	if prof.RemoveSpaces && len(raw) > 0 {
		segments = tk.segmentAll(ctx, raw, prof)
		res.Degraded = segments == nil
	}

	order := 0
	for i, s := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var tokens []Token
		switch {
		case !prof.RemoveSpaces:
			tokens = splitRuns(s, prof, &order)
		case segments != nil:
			tokens = tokensFromSegments(segments[i], prof, &order)
		default:
			tokens = splitRunes(s, prof, &order)
		}
		res.Sentences = append(res.Sentences, Sentence{
			Index:  i,
			Text:   s,
			Tokens: tokens,
		})
	}
	res.WordCount = order
	return res, nil
}

// segmentAll runs the external segmenter over every sentence in one call.
// On any failure it logs and returns nil so the caller falls back to
// character segmentation; segmenter trouble is never fatal.
func (tk *Tokenizer) segmentAll(ctx context.Context, sentences []string, prof *language.Profile) [][]string {
	if tk.Segmenter == nil {
		if tk.Logger != nil {
			tk.Logger.Printf("no segmenter configured for %s; falling back to character tokens", prof.Name)
		}
		return nil
	}
	segs, err := tk.Segmenter.Segment(ctx, sentences, prof.Code)
	if err != nil {
		if tk.Logger != nil {
			tk.Logger.Printf("segmenter failed for %s: %v; falling back to character tokens", prof.Name, err)
		}
		return nil
	}
	if len(segs) != len(sentences) {
		if tk.Logger != nil {
			tk.Logger.Printf("segmenter returned %d sentence groups for %d sentences; falling back to character tokens", len(segs), len(sentences))
		}
		return nil
	}
	return segs
}

// splitSentences splits text after each terminator-pattern match, except
// where the match sits inside an exception string ("Mr." does not end a
// sentence). A line break always ends a sentence. Whitespace-only
// fragments are dropped; fragments holding only non-word characters are
// kept and simply produce zero word tokens.
func splitSentences(text string, prof *language.Profile) []string {
	if text == "" {
		return nil
	}
	var ends []int
	for _, loc := range prof.SentenceRE().FindAllStringIndex(text, -1) {
		if isException(text, loc[0], loc[1], prof.Exceptions) {
			continue
		}
		ends = append(ends, loc[1])
	}
	for i, r := range text {
		if r == '\n' {
			ends = append(ends, i+1)
		}
	}
	// Terminator and newline positions may interleave; keep them ordered.
	sortInts(ends)

	var out []string
	start := 0
	emit := func(end int) {
		if end <= start {
			return
		}
		s := text[start:end]
		if strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
		start = end
	}
	for _, e := range ends {
		emit(e)
	}
	emit(len(text))
	return out
}

// isException reports whether the terminator match at [s,e) overlaps an
// occurrence of any exception string, wherever the terminator sits inside
// it ("Mr.", "z.B.").
func isException(text string, s, e int, exceptions []string) bool {
	for _, x := range exceptions {
		if x == "" {
			continue
		}
		lo := s - len(x) + 1
		if lo < 0 {
			lo = 0
		}
		hi := e + len(x) - 1
		if hi > len(text) {
			hi = len(text)
		}
		window := text[lo:hi]
		for i := 0; ; {
			j := strings.Index(window[i:], x)
			if j < 0 {
				break
			}
			start := lo + i + j
			if start < e && start+len(x) > s {
				return true
			}
			i += j + 1
		}
	}
	return false
}

// splitRuns splits one sentence into alternating word/non-word runs using
// the word-character pattern. Word tokens consume the shared order counter.
func splitRuns(sentence string, prof *language.Profile, order *int) []Token {
	var tokens []Token
	pos := 0
	for _, loc := range prof.WordRE().FindAllStringIndex(sentence, -1) {
		if loc[0] > pos {
			tokens = append(tokens, Token{Text: sentence[pos:loc[0]]})
		}
		*order++
		tokens = append(tokens, Token{Text: sentence[loc[0]:loc[1]], IsWord: true, Order: *order})
		pos = loc[1]
	}
	if pos < len(sentence) {
		tokens = append(tokens, Token{Text: sentence[pos:]})
	}
	return tokens
}

// tokensFromSegments converts segmenter output into tokens. A segment
// containing at least one word character is a word token; everything else
// (punctuation the segmenter passed through) is a non-word token.
func tokensFromSegments(segments []string, prof *language.Profile, order *int) []Token {
	var tokens []Token
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		if prof.WordRE().MatchString(seg) {
			*order++
			tokens = append(tokens, Token{Text: seg, IsWord: true, Order: *order})
		} else {
			tokens = append(tokens, Token{Text: seg})
		}
	}
	return tokens
}

// splitRunes is the documented fallback when no segmenter output is
// available: every rune becomes its own token.
func splitRunes(sentence string, prof *language.Profile, order *int) []Token {
	var tokens []Token
	for _, r := range sentence {
		s := string(r)
		if prof.WordRE().MatchString(s) {
			*order++
			tokens = append(tokens, Token{Text: s, IsWord: true, Order: *order})
		} else {
			tokens = append(tokens, Token{Text: s})
		}
	}
	return tokens
}

func sortInts(a []int) {
	// Insertion sort: the slice is already nearly sorted (two merged
	// ascending runs) and typically small.
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j] < a[j-1]; j-- {
			a[j], a[j-1] = a[j-1], a[j]
		}
	}
}

// Words returns just the word tokens of a sentence, in order.
func (s *Sentence) Words() []Token {
	var out []Token
	for _, t := range s.Tokens {
		if t.IsWord {
			out = append(out, t)
		}
	}
	return out
}
