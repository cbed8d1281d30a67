package db

import "time"

// Text is an imported reading text. Content is the raw text; Sentences
// and tokens derived from it live in their own tables and are replaced
// wholesale on re-parse.
type Text struct {
	ID         int64
	LanguageID int64
	Title      string
	SourceURL  string
	Content    string
	// Degraded records that the text's current tokens came from the
	// character fallback rather than a segmenter.
	Degraded  bool
	CreatedAt time.Time
}
