// Package render turns an annotated token stream into a linear sequence
// of render units, resolving overlaps between multi-word expressions and
// the words they cover.
package render

import (
	"fmt"
	"strconv"

	"github.com/japaniel/lectio/pkg/language"
	"github.com/japaniel/lectio/pkg/match"
	"github.com/japaniel/lectio/pkg/vocab"
)

// Mode selects between the two display modes.
type Mode int

const (
	// ModeCompact shows only the longest non-overlapping term per region.
	ModeCompact Mode = iota
	// ModeExpanded shows every token, with multi-word terms as markers
	// cross-referenced from the words they cover.
	ModeExpanded
)

func (m Mode) String() string {
	if m == ModeExpanded {
		return "expanded"
	}
	return "compact"
}

// Options is the explicit render configuration; there is no ambient
// display-mode state.
type Options struct {
	Mode Mode
	// Visible lists the statuses whose inline annotation should render.
	Visible vocab.StatusSet
}

// Annotation is the inline text attached to a unit.
type Annotation struct {
	Text            string
	Transliteration string
	Tags            []string
	Placement       language.Placement
}

// Unit is one element of the rendered output.
type Unit struct {
	// ID is stable across renders of the same token stream, derived from
	// word order and span length. Empty for non-word units.
	ID   string
	Text string
	// Order is the word order of the unit's first word; zero for
	// non-word units. Span is the number of word positions covered.
	Order  int
	Span   int
	IsWord bool
	// Marker is set on multi-word units in expanded mode, whose Text is
	// the span length rather than the covered words.
	Marker     bool
	Visible    bool
	StyleClass string
	Annotation *Annotation
	// Enclosing holds handles into Result.Expressions for every
	// expression covering this word (expanded mode only).
	Enclosing []int
}

// Expression is an open-expression record in the arena; units reference
// it by index instead of by pointer.
type Expression struct {
	Start  int
	Span   int
	TermID int64
	Text   string
}

// Result is an ordered unit list plus the display hints the caller needs.
type Result struct {
	Units       []Unit
	Expressions []Expression
	RightToLeft bool
	TextSize    int
	Degraded    bool
}

// styleUnknown is the class for words with no vocabulary link.
const styleUnknown = "status-unknown"

// Render produces the unit list for the annotated stream. The matcher
// guarantees every link is in-bounds within its sentence.
func Render(stream *match.Result, prof *language.Profile, opts Options) *Result {
	res := &Result{
		RightToLeft: prof.RightToLeft,
		TextSize:    prof.TextSize,
		Degraded:    stream.Degraded,
	}
	for i := range stream.Sentences {
		if opts.Mode == ModeExpanded {
			renderExpanded(res, &stream.Sentences[i], prof, opts)
		} else {
			renderCompact(res, &stream.Sentences[i], prof, opts)
		}
	}
	return res
}

// unitID derives the stable DOM-addressable id.
func unitID(order, span int) string { return fmt.Sprintf("t%d-%d", order, span) }

// annotationFor returns the inline annotation for a term, or nil when the
// policy excludes its status or it has no translation yet.
func annotationFor(t *vocab.Term, prof *language.Profile, opts Options) *Annotation {
	if !opts.Visible.Has(t.Status) {
		return nil
	}
	if !t.HasTranslation() {
		return nil
	}
	return &Annotation{
		Text:            t.Translation,
		Transliteration: t.Transliteration,
		Tags:            t.Tags,
		Placement:       prof.Placement,
	}
}

// renderCompact walks tokens left to right keeping a covered-until
// watermark. A multi-word link emits one unit spanning its whole range;
// word units at orders at or below the watermark, and non-word units
// strictly inside a covered span, are suppressed.
func renderCompact(res *Result, sent *match.Sentence, prof *language.Profile, opts Options) {
	watermark := 0
	lastWord := 0
	for i, tok := range sent.Tokens {
		if !tok.IsWord {
			if watermark > lastWord {
				continue
			}
			res.Units = append(res.Units, Unit{Text: tok.Text, Span: 0, Visible: true})
			continue
		}
		lastWord = tok.Order
		if tok.Order <= watermark {
			continue
		}
		term := sent.LinkAt(tok.Order)
		if term == nil {
			res.Units = append(res.Units, Unit{
				ID:         unitID(tok.Order, 1),
				Text:       tok.Text,
				Order:      tok.Order,
				Span:       1,
				IsWord:     true,
				Visible:    true,
				StyleClass: styleUnknown,
			})
			continue
		}
		unit := Unit{
			ID:         unitID(tok.Order, term.Span),
			Text:       spanText(sent, i, term.Span),
			Order:      tok.Order,
			Span:       term.Span,
			IsWord:     true,
			Visible:    true,
			StyleClass: term.Status.StyleClass(),
			Annotation: annotationFor(term, prof, opts),
		}
		res.Units = append(res.Units, unit)
		if term.Span > 1 {
			watermark = tok.Order + term.Span - 1
		}
	}
}

// spanText joins the original text of a multi-word span, including
// non-word tokens between its first and last word, preserving casing.
func spanText(sent *match.Sentence, start, span int) string {
	text := ""
	words := 0
	for i := start; i < len(sent.Tokens) && words < span; i++ {
		tok := sent.Tokens[i]
		if tok.IsWord {
			words++
			text += tok.Text
			continue
		}
		// Trailing non-word tokens are outside the span.
		if words > 0 && words < span {
			text += tok.Text
		}
	}
	return text
}

// openExpr tracks a currently open expression: its arena handle and the
// number of word tokens still to consume. Records are appended in FIFO
// order and dropped independently, so overlapping (not just nested)
// expressions close correctly.
type openExpr struct {
	handle    int
	remaining int
}

// renderExpanded emits every token. Multi-word links become marker units;
// each covered word unit back-references the enclosing expressions via
// arena handles.
func renderExpanded(res *Result, sent *match.Sentence, prof *language.Profile, opts Options) {
	var open []openExpr
	for _, tok := range sent.Tokens {
		if !tok.IsWord {
			res.Units = append(res.Units, Unit{Text: tok.Text, Span: 0, Visible: true})
			continue
		}

		if term := sent.LinkAt(tok.Order); term != nil && term.Span > 1 {
			handle := len(res.Expressions)
			res.Expressions = append(res.Expressions, Expression{
				Start:  tok.Order,
				Span:   term.Span,
				TermID: term.ID,
				Text:   term.Text,
			})
			open = append(open, openExpr{handle: handle, remaining: term.Span})
			res.Units = append(res.Units, Unit{
				ID:         unitID(tok.Order, term.Span),
				Text:       strconv.Itoa(term.Span),
				Order:      tok.Order,
				Span:       term.Span,
				IsWord:     true,
				Marker:     true,
				Visible:    false,
				StyleClass: term.Status.StyleClass(),
				Annotation: annotationFor(term, prof, opts),
			})
		}

		unit := Unit{
			ID:         unitID(tok.Order, 1),
			Text:       tok.Text,
			Order:      tok.Order,
			Span:       1,
			IsWord:     true,
			Visible:    true,
			StyleClass: styleUnknown,
		}
		if single := sent.SingleAt(tok.Order); single != nil {
			unit.StyleClass = single.Status.StyleClass()
			unit.Annotation = annotationFor(single, prof, opts)
		}
		for _, oe := range open {
			unit.Enclosing = append(unit.Enclosing, oe.handle)
		}
		res.Units = append(res.Units, unit)

		// This word has been consumed by every open expression.
		kept := open[:0]
		for _, oe := range open {
			oe.remaining--
			if oe.remaining > 0 {
				kept = append(kept, oe)
			}
		}
		open = kept
	}
}
