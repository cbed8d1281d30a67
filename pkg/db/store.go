package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/japaniel/lectio/pkg/language"
	"github.com/japaniel/lectio/pkg/tokenize"
	"github.com/japaniel/lectio/pkg/vocab"
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// exceptionsSep joins the exception list into one column. A newline can
// never appear inside an exception string (the splitter treats it as a
// terminator), so it is a safe separator.
const exceptionsSep = "\n"

// CreateLanguage stores a profile and returns its id. The profile is
// compiled first so invalid patterns are rejected before they are saved.
func CreateLanguage(db DBExecutor, p *language.Profile) (int64, error) {
	if err := p.Compile(); err != nil {
		return 0, err
	}
	var id int64
	err := db.QueryRow(`INSERT INTO languages (name, code, word_pattern, sentence_pattern, exceptions, remove_spaces, right_to_left, placement, text_size)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
		  code = excluded.code,
		  word_pattern = excluded.word_pattern,
		  sentence_pattern = excluded.sentence_pattern,
		  exceptions = excluded.exceptions,
		  remove_spaces = excluded.remove_spaces,
		  right_to_left = excluded.right_to_left,
		  placement = excluded.placement,
		  text_size = excluded.text_size
		RETURNING id`,
		p.Name, p.Code, p.WordPattern, p.SentencePattern,
		strings.Join(p.Exceptions, exceptionsSep),
		p.RemoveSpaces, p.RightToLeft, p.Placement.String(), p.TextSize).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert language: %w", err)
	}
	p.ID = id
	return id, nil
}

// GetLanguage loads and compiles a profile.
func GetLanguage(db DBExecutor, id int64) (*language.Profile, error) {
	p := &language.Profile{}
	var exceptions, placement string
	err := db.QueryRow(`SELECT id, name, code, word_pattern, sentence_pattern, exceptions, remove_spaces, right_to_left, placement, text_size
		FROM languages WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Code, &p.WordPattern, &p.SentencePattern,
			&exceptions, &p.RemoveSpaces, &p.RightToLeft, &placement, &p.TextSize)
	if err != nil {
		return nil, fmt.Errorf("load language %d: %w", id, err)
	}
	if exceptions != "" {
		p.Exceptions = strings.Split(exceptions, exceptionsSep)
	}
	p.Placement = language.ParsePlacement(placement)
	if err := p.Compile(); err != nil {
		return nil, err
	}
	return p, nil
}

// CreateText stores a text and returns its id.
func CreateText(db DBExecutor, languageID int64, title, sourceURL, content string) (int64, error) {
	if strings.TrimSpace(title) == "" {
		return 0, fmt.Errorf("title must be non-empty")
	}
	res, err := db.Exec(`INSERT INTO texts (language_id, title, source_url, content) VALUES (?, ?, ?, ?)`,
		languageID, title, sourceURL, content)
	if err != nil {
		return 0, fmt.Errorf("insert text: %w", err)
	}
	return res.LastInsertId()
}

// GetText loads a text row.
func GetText(db DBExecutor, id int64) (*Text, error) {
	t := &Text{}
	err := db.QueryRow(`SELECT id, language_id, title, source_url, content, degraded, created_at FROM texts WHERE id = ?`, id).
		Scan(&t.ID, &t.LanguageID, &t.Title, &t.SourceURL, &t.Content, &t.Degraded, &t.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("load text %d: %w", id, err)
	}
	return t, nil
}

// ReplaceTextTokens swaps in a freshly tokenized sentence/token set for a
// text inside one transaction. A concurrent reader sees the fully old or
// fully new set, never a mix.
func ReplaceTextTokens(ctx context.Context, conn *sql.DB, textID int64, res *tokenize.Result) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin token swap: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	if _, err := tx.Exec(`DELETE FROM tokens WHERE sentence_id IN (SELECT id FROM sentences WHERE text_id = ?)`, textID); err != nil {
		return fmt.Errorf("clear tokens: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM sentences WHERE text_id = ?`, textID); err != nil {
		return fmt.Errorf("clear sentences: %w", err)
	}
	// The flag belongs to this token set; it must survive a reload.
	if _, err := tx.Exec(`UPDATE texts SET degraded = ? WHERE id = ?`, res.Degraded, textID); err != nil {
		return fmt.Errorf("record degradation: %w", err)
	}

	for _, s := range res.Sentences {
		sres, err := tx.Exec(`INSERT INTO sentences (text_id, sentence_index, content) VALUES (?, ?, ?)`,
			textID, s.Index, s.Text)
		if err != nil {
			return fmt.Errorf("insert sentence %d: %w", s.Index, err)
		}
		sentenceID, err := sres.LastInsertId()
		if err != nil {
			return err
		}
		for i, tok := range s.Tokens {
			if _, err := tx.Exec(`INSERT INTO tokens (sentence_id, token_index, word_order, content, is_word) VALUES (?, ?, ?, ?, ?)`,
				sentenceID, i, tok.Order, tok.Text, tok.IsWord); err != nil {
				return fmt.Errorf("insert token %d/%d: %w", s.Index, i, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit token swap: %w", err)
	}
	return nil
}

// LoadTextTokens rebuilds the tokenized stream for a text from storage,
// so it can be matched and rendered without re-parsing.
func LoadTextTokens(db DBExecutor, textID int64) (*tokenize.Result, error) {
	res := &tokenize.Result{}
	if err := db.QueryRow(`SELECT degraded FROM texts WHERE id = ?`, textID).Scan(&res.Degraded); err != nil {
		return nil, fmt.Errorf("load text %d: %w", textID, err)
	}

	rows, err := db.Query(`SELECT s.sentence_index, s.content, t.word_order, t.content, t.is_word
		FROM sentences s JOIN tokens t ON t.sentence_id = s.id
		WHERE s.text_id = ?
		ORDER BY s.sentence_index, t.token_index`, textID)
	if err != nil {
		return nil, fmt.Errorf("load tokens for text %d: %w", textID, err)
	}
	defer rows.Close()

	var cur *tokenize.Sentence
	for rows.Next() {
		var sentIdx, order int
		var sentText, tokText string
		var isWord bool
		if err := rows.Scan(&sentIdx, &sentText, &order, &tokText, &isWord); err != nil {
			return nil, err
		}
		if cur == nil || cur.Index != sentIdx {
			res.Sentences = append(res.Sentences, tokenize.Sentence{Index: sentIdx, Text: sentText})
			cur = &res.Sentences[len(res.Sentences)-1]
		}
		cur.Tokens = append(cur.Tokens, tokenize.Token{Text: tokText, IsWord: isWord, Order: order})
		if isWord && order > res.WordCount {
			res.WordCount = order
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// SaveAnnotations stores the annotation exchange blob for a text.
func SaveAnnotations(db DBExecutor, textID int64, blob []byte) error {
	res, err := db.Exec(`UPDATE texts SET annotations = ? WHERE id = ?`, string(blob), textID)
	if err != nil {
		return fmt.Errorf("save annotations: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("save annotations: text %d not found", textID)
	}
	return nil
}

// GetAnnotations returns the stored blob, or nil when none was saved.
func GetAnnotations(db DBExecutor, textID int64) ([]byte, error) {
	var blob string
	err := db.QueryRow(`SELECT annotations FROM texts WHERE id = ?`, textID).Scan(&blob)
	if err != nil {
		return nil, fmt.Errorf("load annotations: %w", err)
	}
	if blob == "" {
		return nil, nil
	}
	return []byte(blob), nil
}

// UpsertTerm inserts or updates a term (including its tag set) and
// returns its id. The key is derived from the display text when empty.
func UpsertTerm(db DBExecutor, t *vocab.Term) (int64, error) {
	if strings.TrimSpace(t.Text) == "" {
		return 0, fmt.Errorf("term text must be non-empty")
	}
	if t.Span < 1 {
		t.Span = 1
	}
	if t.Key == "" {
		t.Key = vocab.Key(t.Text)
	}
	var id int64
	err := db.QueryRow(`INSERT INTO terms (language_id, key, text, span, status, translation, transliteration)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(language_id, key) DO UPDATE SET
		  text = excluded.text,
		  span = excluded.span,
		  status = excluded.status,
		  translation = COALESCE(NULLIF(excluded.translation, ''), terms.translation),
		  transliteration = COALESCE(NULLIF(excluded.transliteration, ''), terms.transliteration)
		RETURNING id`,
		t.LanguageID, t.Key, t.Text, t.Span, int(t.Status), t.Translation, t.Transliteration).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert term %q: %w", t.Text, err)
	}
	t.ID = id

	for _, tag := range t.Tags {
		tagID, err := createOrGetTag(db, tag)
		if err != nil {
			return 0, err
		}
		if _, err := db.Exec(`INSERT OR IGNORE INTO term_tags (term_id, tag_id) VALUES (?, ?)`, id, tagID); err != nil {
			return 0, fmt.Errorf("link tag %q: %w", tag, err)
		}
	}
	return id, nil
}

func createOrGetTag(db DBExecutor, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("tag name must be non-empty")
	}
	var id int64
	if err := db.QueryRow(`SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err == nil {
		return id, nil
	} else if err != sql.ErrNoRows {
		return 0, err
	}
	if _, err := db.Exec(`INSERT OR IGNORE INTO tags (name) VALUES (?)`, name); err != nil {
		return 0, err
	}
	if err := db.QueryRow(`SELECT id FROM tags WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateTermStatus is the companion call the review subsystem uses after
// a learner interaction.
func UpdateTermStatus(db DBExecutor, termID int64, status vocab.Status) error {
	res, err := db.Exec(`UPDATE terms SET status = ? WHERE id = ?`, int(status), termID)
	if err != nil {
		return fmt.Errorf("update term status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update term status: term %d not found", termID)
	}
	return nil
}

// UpdateTermTranslation updates a term's translation text.
func UpdateTermTranslation(db DBExecutor, termID int64, translation string) error {
	_, err := db.Exec(`UPDATE terms SET translation = ? WHERE id = ?`, translation, termID)
	return err
}

// Store adapts the database to the matcher's read-only Vocabulary
// interface.
type Store struct {
	Conn *sql.DB
}

// NewStore wraps an open connection.
func NewStore(conn *sql.DB) *Store { return &Store{Conn: conn} }

// escapeLike escapes LIKE metacharacters so a word key can be used as a
// literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	return strings.ReplaceAll(s, `_`, `\_`)
}

// LookupTerms returns candidate terms whose key starts with the given
// word key, span at most maxSpan, ordered span descending then key
// ascending. The result is a superset of real matches; the matcher
// verifies full keys.
func (s *Store) LookupTerms(ctx context.Context, languageID int64, wordKey string, maxSpan int) ([]vocab.Term, error) {
	if wordKey == "" || maxSpan < 1 {
		return nil, nil
	}
	rows, err := s.Conn.QueryContext(ctx, `SELECT id, language_id, key, text, span, status, translation, transliteration
		FROM terms
		WHERE language_id = ? AND span <= ? AND key LIKE ? ESCAPE '\'
		ORDER BY span DESC, key ASC`,
		languageID, maxSpan, escapeLike(wordKey)+"%")
	if err != nil {
		return nil, fmt.Errorf("lookup terms for %q: %w", wordKey, err)
	}
	defer rows.Close()

	var out []vocab.Term
	for rows.Next() {
		var t vocab.Term
		var status int
		if err := rows.Scan(&t.ID, &t.LanguageID, &t.Key, &t.Text, &t.Span, &status, &t.Translation, &t.Transliteration); err != nil {
			return nil, err
		}
		t.Status = vocab.Status(status)
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		tags, err := s.termTags(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Tags = tags
	}
	return out, nil
}

func (s *Store) termTags(ctx context.Context, termID int64) ([]string, error) {
	rows, err := s.Conn.QueryContext(ctx,
		`SELECT tg.name FROM tags tg JOIN term_tags tt ON tt.tag_id = tg.id WHERE tt.term_id = ? ORDER BY tg.name`, termID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var tags []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tags = append(tags, name)
	}
	return tags, rows.Err()
}

// MultiwordKeys returns every key with span > 1 for the language.
func (s *Store) MultiwordKeys(ctx context.Context, languageID int64) ([]string, error) {
	rows, err := s.Conn.QueryContext(ctx, `SELECT key FROM terms WHERE language_id = ? AND span > 1`, languageID)
	if err != nil {
		return nil, fmt.Errorf("load multiword keys: %w", err)
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
