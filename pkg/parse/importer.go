package parse

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/japaniel/lectio/pkg/db"
	"github.com/japaniel/lectio/pkg/language"
	"github.com/japaniel/lectio/pkg/vocab"
)

// ImportTerms bulk-loads vocabulary from tab-separated rows through
// batched transactions. Columns: term text, translation,
// transliteration, status (integer), tags (comma separated); everything
// after the first column is optional. Lines starting with # are skipped.
// Returns the number of rows submitted.
func (p *Parser) ImportTerms(ctx context.Context, languageID int64, r io.Reader) (int, error) {
	prof, err := db.GetLanguage(p.DB, languageID)
	if err != nil {
		return 0, err
	}

	bw := NewBatchWriter(p.DB, 50, 100*time.Millisecond)
	count := 0
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			_ = bw.Close()
			return count, err
		}
		line := sc.Text()
		if strings.TrimSpace(line) == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		term := &vocab.Term{
			LanguageID: languageID,
			Text:       strings.TrimSpace(fields[0]),
		}
		if term.Text == "" {
			continue
		}
		if len(fields) > 1 {
			term.Translation = strings.TrimSpace(fields[1])
		}
		if len(fields) > 2 {
			term.Transliteration = strings.TrimSpace(fields[2])
		}
		if len(fields) > 3 && fields[3] != "" {
			n, err := strconv.Atoi(strings.TrimSpace(fields[3]))
			if err != nil || n < int(vocab.StatusNew) || n > int(vocab.StatusWellKnown) {
				_ = bw.Close()
				return count, fmt.Errorf("line %q: bad status %q", line, fields[3])
			}
			term.Status = vocab.Status(n)
		}
		if len(fields) > 4 && fields[4] != "" {
			for _, tag := range strings.Split(fields[4], ",") {
				if tag = strings.TrimSpace(tag); tag != "" {
					term.Tags = append(term.Tags, tag)
				}
			}
		}
		p.keyTerm(ctx, term, prof)
		count++

		t := term
		if err := bw.Submit(func(ctx context.Context, tx *sql.Tx) error {
			_, err := db.UpsertTerm(tx, t)
			return err
		}); err != nil {
			return count, err
		}
	}
	if err := sc.Err(); err != nil {
		_ = bw.Close()
		return count, fmt.Errorf("read term rows: %w", err)
	}
	return count, bw.Close()
}

// keyTerm derives a term's span and lookup key from its display text the
// same way the matcher will see the words in a text: word-pattern runs
// for spaced languages, segmenter output for scriptio continua.
func (p *Parser) keyTerm(ctx context.Context, term *vocab.Term, prof *language.Profile) {
	if prof.RemoveSpaces {
		if p.Tokenizer != nil && p.Tokenizer.Segmenter != nil {
			if segs, err := p.Tokenizer.Segmenter.Segment(ctx, []string{term.Text}, prof.Code); err == nil && len(segs) == 1 {
				var words []string
				for _, s := range segs[0] {
					if prof.WordRE().MatchString(s) {
						words = append(words, s)
					}
				}
				if len(words) > 0 {
					term.Span = len(words)
					term.Key = vocab.MultiKey(words, true)
					return
				}
			}
		}
		term.Span = 1
		term.Key = vocab.Key(term.Text)
		return
	}
	words := prof.WordRE().FindAllString(term.Text, -1)
	if len(words) == 0 {
		term.Span = 1
		term.Key = vocab.Key(term.Text)
		return
	}
	term.Span = len(words)
	term.Key = vocab.MultiKey(words, false)
}
