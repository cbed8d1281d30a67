// Package annotation serializes a computed annotation overlay to a
// compact exchange document and back. The document is keyed by word
// order, not by vocabulary ids, so a text stays renderable after the
// originating terms are edited or deleted, and a learner's hand-improved
// annotations survive re-parsing.
package annotation

import (
	"encoding/json"
	"fmt"

	"github.com/japaniel/lectio/pkg/language"
	"github.com/japaniel/lectio/pkg/render"
)

// FormatVersion is written into every new document. Readers accept any
// version; unknown fields are ignored and missing fields mean "no
// annotation".
const FormatVersion = 1

// Entry is one annotated term, addressed by word order.
type Entry struct {
	Order           int      `json:"order"`
	Span            int      `json:"span,omitempty"`
	Text            string   `json:"text"`
	Translation     string   `json:"translation,omitempty"`
	Transliteration string   `json:"transliteration,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// Document is the exchange format stored alongside a text.
type Document struct {
	Version int     `json:"version"`
	Entries []Entry `json:"entries"`
}

// FromRender captures every annotated unit of a render result. Marker
// units contribute the full expression text from the arena, not the
// marker glyph.
func FromRender(res *render.Result) *Document {
	doc := &Document{Version: FormatVersion}
	for _, u := range res.Units {
		if u.Annotation == nil || u.Order == 0 {
			continue
		}
		text := u.Text
		if u.Marker {
			for _, x := range res.Expressions {
				if x.Start == u.Order && x.Span == u.Span {
					text = x.Text
					break
				}
			}
		}
		doc.Entries = append(doc.Entries, Entry{
			Order:           u.Order,
			Span:            u.Span,
			Text:            text,
			Translation:     u.Annotation.Text,
			Transliteration: u.Annotation.Transliteration,
			Tags:            u.Annotation.Tags,
		})
	}
	return doc
}

// Serialize encodes the document.
func Serialize(doc *Document) ([]byte, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode annotation document: %w", err)
	}
	return b, nil
}

// Deserialize decodes a blob defensively. Unknown top-level and entry
// fields are ignored; entries that fail to decode, lack a word order, or
// lack text are dropped while the rest of the document is kept. Only a
// blob with no usable envelope at all is an error.
func Deserialize(blob []byte) (*Document, error) {
	var envelope struct {
		Version int               `json:"version"`
		Entries []json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(blob, &envelope); err != nil {
		return nil, fmt.Errorf("decode annotation document: %w", err)
	}
	doc := &Document{Version: envelope.Version}
	for _, raw := range envelope.Entries {
		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			continue
		}
		if e.Order < 1 || e.Text == "" {
			continue
		}
		if e.Span < 1 {
			e.Span = 1
		}
		doc.Entries = append(doc.Entries, e)
	}
	return doc, nil
}

// At returns the entry at a word order, or nil.
func (d *Document) At(order int) *Entry {
	for i := range d.Entries {
		if d.Entries[i].Order == order {
			return &d.Entries[i]
		}
	}
	return nil
}

// Apply overlays the document onto a freshly rendered result, attaching
// stored annotations to units that have none. Units the matcher already
// annotated keep their live annotation.
func (d *Document) Apply(res *render.Result, placement language.Placement) {
	for i := range res.Units {
		u := &res.Units[i]
		if u.Order == 0 || u.Annotation != nil {
			continue
		}
		e := d.At(u.Order)
		if e == nil {
			continue
		}
		u.Annotation = &render.Annotation{
			Text:            e.Translation,
			Transliteration: e.Transliteration,
			Tags:            e.Tags,
			Placement:       placement,
		}
	}
}
