// Package parse orchestrates the full pipeline: tokenize a stored text,
// swap its token set atomically, match terms concurrently per sentence,
// and render on demand.
package parse

import (
	"context"
	"database/sql"
	"log"

	"github.com/japaniel/lectio/pkg/annotation"
	"github.com/japaniel/lectio/pkg/db"
	"github.com/japaniel/lectio/pkg/language"
	"github.com/japaniel/lectio/pkg/match"
	"github.com/japaniel/lectio/pkg/render"
	"github.com/japaniel/lectio/pkg/tokenize"
)

// Parser ties the engine's stages together over one database.
type Parser struct {
	DB        *sql.DB
	Tokenizer *tokenize.Tokenizer
	// Workers bounds the goroutines matching sentences concurrently.
	Workers int
	// MaxSpan caps multi-word candidate lengths; zero uses the matcher
	// default.
	MaxSpan int
	// Logger is used for informational messages (e.g. degraded
	// segmentation). nil means no logging.
	Logger *log.Logger
	// OnProgress is called as sentences finish matching.
	OnProgress func(current, total int)
}

// NewParser creates a Parser with default concurrency.
func NewParser(conn *sql.DB) *Parser {
	return &Parser{
		DB:        conn,
		Tokenizer: &tokenize.Tokenizer{},
		Workers:   4,
	}
}

// ParseText re-tokenizes a stored text and swaps in the new sentence and
// token set in one transaction, then returns the matched stream. Readers
// see the fully old or fully new token set, never a mix.
func (p *Parser) ParseText(ctx context.Context, textID int64) (*match.Result, error) {
	text, err := db.GetText(p.DB, textID)
	if err != nil {
		return nil, err
	}
	prof, err := db.GetLanguage(p.DB, text.LanguageID)
	if err != nil {
		return nil, err
	}
	toks, err := p.Tokenizer.Tokenize(ctx, text.Content, prof)
	if err != nil {
		return nil, err
	}
	if err := db.ReplaceTextTokens(ctx, p.DB, textID, toks); err != nil {
		return nil, err
	}
	return p.matchAll(ctx, toks, prof)
}

// RenderText is the caller-facing render API: it matches the stored
// token stream against the current vocabulary, renders it in the given
// mode, and overlays any saved annotation document.
func (p *Parser) RenderText(ctx context.Context, textID int64, opts render.Options) (*render.Result, error) {
	text, err := db.GetText(p.DB, textID)
	if err != nil {
		return nil, err
	}
	prof, err := db.GetLanguage(p.DB, text.LanguageID)
	if err != nil {
		return nil, err
	}
	toks, err := db.LoadTextTokens(p.DB, textID)
	if err != nil {
		return nil, err
	}
	matched, err := p.matchAll(ctx, toks, prof)
	if err != nil {
		return nil, err
	}
	res := render.Render(matched, prof, opts)

	blob, err := db.GetAnnotations(p.DB, textID)
	if err == nil && blob != nil {
		if doc, derr := annotation.Deserialize(blob); derr == nil {
			doc.Apply(res, prof.Placement)
		} else if p.Logger != nil {
			p.Logger.Printf("ignoring malformed annotation document for text %d: %v", textID, derr)
		}
	}
	return res, nil
}

// SaveAnnotations captures a render result's annotation overlay and
// stores it with the text.
func (p *Parser) SaveAnnotations(textID int64, res *render.Result) error {
	blob, err := annotation.Serialize(annotation.FromRender(res))
	if err != nil {
		return err
	}
	return db.SaveAnnotations(p.DB, textID, blob)
}

// matchAll runs the matcher over every sentence using the worker pool,
// reassembling results in sentence order.
func (p *Parser) matchAll(ctx context.Context, toks *tokenize.Result, prof *language.Profile) (*match.Result, error) {
	m := match.New(db.NewStore(p.DB))
	if p.MaxSpan > 0 {
		m.MaxSpan = p.MaxSpan
	}
	if err := m.BuildPrefilter(ctx, prof.ID); err != nil {
		// Matching is correct without the prefilter, just slower.
		if p.Logger != nil {
			p.Logger.Printf("multiword prefilter unavailable: %v", err)
		}
	}

	total := len(toks.Sentences)
	res := &match.Result{
		Degraded:  toks.Degraded,
		Sentences: make([]match.Sentence, total),
	}
	if total == 0 {
		return res, nil
	}
	if res.Degraded && p.Logger != nil {
		p.Logger.Printf("segmenter fallback was used; word boundaries may look wrong")
	}

	workers := p.Workers
	if workers <= 0 {
		workers = 4
	}

	type outcome struct {
		idx  int
		sent match.Sentence
		err  error
	}

	wp := NewWorkerPool(workers, workers*2)
	resultCh := make(chan outcome, workers*2)
	doneCh := make(chan error, 1)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wp.Start(ctx)

	go func() {
		defer close(doneCh)
		received := 0
		for received < total {
			select {
			case <-ctx.Done():
				doneCh <- ctx.Err()
				return
			case out := <-resultCh:
				if out.err != nil {
					cancel()
					doneCh <- out.err
					return
				}
				res.Sentences[out.idx] = out.sent
				received++
				if p.OnProgress != nil {
					p.OnProgress(received, total)
				}
			}
		}
	}()

	for i := range toks.Sentences {
		idx := i
		sent := toks.Sentences[i]
		job := func(ctx context.Context) error {
			ms, err := m.MatchSentence(ctx, sent, prof)
			select {
			case resultCh <- outcome{idx: idx, sent: ms, err: err}:
			case <-ctx.Done():
			}
			return err
		}
		if err := wp.SubmitCtx(ctx, job); err != nil {
			break
		}
	}

	err := <-doneCh
	wp.Close()
	if err != nil {
		return nil, err
	}
	return res, nil
}
