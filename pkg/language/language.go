// Package language holds the per-language configuration that drives
// tokenization and rendering. Patterns are kept as data: a Profile owns
// its compiled regexes, there is no per-language code.
package language

import (
	"fmt"
	"regexp"
)

// Placement controls where an inline annotation is rendered relative to
// its term.
type Placement int

const (
	PlaceNone Placement = iota
	PlaceAfter
	PlaceBefore
	PlaceRubyAbove
	PlaceRubyBelow
)

func (p Placement) String() string {
	switch p {
	case PlaceAfter:
		return "after"
	case PlaceBefore:
		return "before"
	case PlaceRubyAbove:
		return "ruby-above"
	case PlaceRubyBelow:
		return "ruby-below"
	default:
		return "none"
	}
}

// ParsePlacement converts a stored placement name back to a Placement.
// Unknown names map to PlaceNone.
func ParsePlacement(s string) Placement {
	switch s {
	case "after":
		return PlaceAfter
	case "before":
		return PlaceBefore
	case "ruby-above":
		return PlaceRubyAbove
	case "ruby-below":
		return PlaceRubyBelow
	default:
		return PlaceNone
	}
}

// Profile describes how one language's text is split and displayed.
// Callers own the Profile; the engine treats it as immutable per parse.
type Profile struct {
	ID   int64
	Name string
	// Code is the BCP-47-ish language code handed to external segmenters.
	Code string

	// WordPattern matches a run of word characters. Supports non-Latin
	// ranges, e.g. `[\p{Han}\p{Hiragana}\p{Katakana}ー]+`.
	WordPattern string
	// SentencePattern matches a sentence terminator, e.g. `[.!?。！？]`.
	SentencePattern string
	// Exceptions lists strings that contain a terminator but must not end
	// a sentence ("Mr.", "Dr.", "z.B.").
	Exceptions []string

	// RemoveSpaces marks scriptio-continua languages; word boundaries come
	// from a segmenter instead of the text itself.
	RemoveSpaces bool
	RightToLeft  bool

	Placement Placement
	// TextSize is the display size in percent (100 = normal).
	TextSize int

	wordRE     *regexp.Regexp
	sentenceRE *regexp.Regexp
}

// ConfigError reports an invalid Profile. It is returned before any text
// is touched, never mid-parse.
type ConfigError struct {
	Field string
	Err   error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("language config: %s: %v", e.Field, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Compile validates the profile and compiles its patterns. It must be
// called (and succeed) before the profile is handed to the tokenizer.
func (p *Profile) Compile() error {
	if p.WordPattern == "" {
		return &ConfigError{Field: "word pattern", Err: fmt.Errorf("empty")}
	}
	wordRE, err := regexp.Compile(p.WordPattern)
	if err != nil {
		return &ConfigError{Field: "word pattern", Err: err}
	}
	// A word pattern that matches the empty string would loop forever in
	// the run splitter.
	if loc := wordRE.FindStringIndex(""); loc != nil {
		return &ConfigError{Field: "word pattern", Err: fmt.Errorf("matches empty string")}
	}
	if p.SentencePattern == "" {
		return &ConfigError{Field: "sentence pattern", Err: fmt.Errorf("empty")}
	}
	sentenceRE, err := regexp.Compile(p.SentencePattern)
	if err != nil {
		return &ConfigError{Field: "sentence pattern", Err: err}
	}
	if loc := sentenceRE.FindStringIndex(""); loc != nil {
		return &ConfigError{Field: "sentence pattern", Err: fmt.Errorf("matches empty string")}
	}
	p.wordRE = wordRE
	p.sentenceRE = sentenceRE
	return nil
}

// WordRE returns the compiled word-character pattern. Compile must have
// succeeded first.
func (p *Profile) WordRE() *regexp.Regexp { return p.wordRE }

// SentenceRE returns the compiled sentence-terminator pattern.
func (p *Profile) SentenceRE() *regexp.Regexp { return p.sentenceRE }

// Compiled reports whether Compile has been run successfully.
func (p *Profile) Compiled() bool { return p.wordRE != nil && p.sentenceRE != nil }
