package tokenize

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/japaniel/lectio/pkg/language"
)

func englishProfile(t *testing.T) *language.Profile {
	t.Helper()
	p := &language.Profile{
		ID:              1,
		Name:            "English",
		WordPattern:     `[a-zA-Z]+`,
		SentencePattern: `[.!?]`,
		Exceptions:      []string{"Mr.", "Dr."},
	}
	if err := p.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return p
}

func TestTokenizeSimpleSentence(t *testing.T) {
	tk := &Tokenizer{}
	res, err := tk.Tokenize(context.Background(), "I read fast.", englishProfile(t))
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if len(res.Sentences) != 1 {
		t.Fatalf("got %d sentences, want 1", len(res.Sentences))
	}
	words := res.Sentences[0].Words()
	if len(words) != 3 {
		t.Fatalf("got %d word tokens, want 3", len(words))
	}
	for i, want := range []struct {
		text  string
		order int
	}{{"I", 1}, {"read", 2}, {"fast", 3}} {
		if words[i].Text != want.text || words[i].Order != want.order {
			t.Errorf("word %d = %q order %d, want %q order %d", i, words[i].Text, words[i].Order, want.text, want.order)
		}
	}
	last := res.Sentences[0].Tokens[len(res.Sentences[0].Tokens)-1]
	if last.IsWord || last.Text != "." {
		t.Errorf("last token = %+v, want non-word %q", last, ".")
	}
	if res.WordCount != 3 {
		t.Errorf("WordCount = %d, want 3", res.WordCount)
	}
}

func TestSentenceSplitExceptions(t *testing.T) {
	tk := &Tokenizer{}
	res, err := tk.Tokenize(context.Background(), "Mr. Smith left. He was late.", englishProfile(t))
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if len(res.Sentences) != 2 {
		var texts []string
		for _, s := range res.Sentences {
			texts = append(texts, s.Text)
		}
		t.Fatalf("got %d sentences %q, want 2", len(res.Sentences), texts)
	}
	if !strings.Contains(res.Sentences[0].Text, "Mr. Smith") {
		t.Errorf("first sentence %q should contain the abbreviation", res.Sentences[0].Text)
	}
}

func TestWordOrderContinuesAcrossSentences(t *testing.T) {
	tk := &Tokenizer{}
	res, err := tk.Tokenize(context.Background(), "One two. Three four.", englishProfile(t))
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if len(res.Sentences) != 2 {
		t.Fatalf("got %d sentences, want 2", len(res.Sentences))
	}
	second := res.Sentences[1].Words()
	if second[0].Order != 3 || second[1].Order != 4 {
		t.Errorf("second sentence orders = %d,%d, want 3,4", second[0].Order, second[1].Order)
	}
}

func TestEmptyText(t *testing.T) {
	tk := &Tokenizer{}
	res, err := tk.Tokenize(context.Background(), "", englishProfile(t))
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if len(res.Sentences) != 0 {
		t.Fatalf("got %d sentences for empty text, want 0", len(res.Sentences))
	}
}

func TestNonWordOnlySentence(t *testing.T) {
	tk := &Tokenizer{}
	res, err := tk.Tokenize(context.Background(), "?!?", englishProfile(t))
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if len(res.Sentences) == 0 {
		t.Fatal("expected at least one sentence")
	}
	if n := len(res.Sentences[0].Words()); n != 0 {
		t.Errorf("got %d word tokens, want 0", n)
	}
}

func TestTextSizeCap(t *testing.T) {
	tk := &Tokenizer{MaxTextLen: 8}
	_, err := tk.Tokenize(context.Background(), "this is too long.", englishProfile(t))
	if err == nil {
		t.Fatal("expected size error")
	}
}

func TestCanceledContext(t *testing.T) {
	tk := &Tokenizer{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := tk.Tokenize(ctx, "a b. c d.", englishProfile(t)); err == nil {
		t.Fatal("expected context error")
	}
}

// stubSegmenter returns canned segments or an error.
type stubSegmenter struct {
	segments [][]string
	err      error
}

func (s *stubSegmenter) Segment(_ context.Context, sentences []string, _ string) ([][]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.segments, nil
}

func japaneseProfile(t *testing.T) *language.Profile {
	t.Helper()
	p := &language.Profile{
		ID:              2,
		Name:            "Japanese",
		Code:            "ja",
		WordPattern:     `[\p{Han}\p{Hiragana}\p{Katakana}ー]+`,
		SentencePattern: `[。！？]`,
		RemoveSpaces:    true,
	}
	if err := p.Compile(); err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return p
}

func TestSegmenterDrivenTokens(t *testing.T) {
	tk := &Tokenizer{Segmenter: &stubSegmenter{segments: [][]string{{"私", "は", "本", "を", "読む", "。"}}}}
	res, err := tk.Tokenize(context.Background(), "私は本を読む。", japaneseProfile(t))
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if res.Degraded {
		t.Fatal("Degraded should be false when the segmenter succeeds")
	}
	words := res.Sentences[0].Words()
	if len(words) != 5 {
		t.Fatalf("got %d word tokens, want 5", len(words))
	}
	if words[4].Text != "読む" || words[4].Order != 5 {
		t.Errorf("last word = %q order %d, want 読む order 5", words[4].Text, words[4].Order)
	}
}

func TestSegmenterFailureFallsBackToRunes(t *testing.T) {
	tk := &Tokenizer{Segmenter: &stubSegmenter{err: fmt.Errorf("segmenter down")}}
	res, err := tk.Tokenize(context.Background(), "読む。", japaneseProfile(t))
	if err != nil {
		t.Fatalf("fallback should not fail the parse: %v", err)
	}
	if !res.Degraded {
		t.Fatal("Degraded should be set after segmenter failure")
	}
	words := res.Sentences[0].Words()
	if len(words) != 2 {
		t.Fatalf("character fallback: got %d word tokens, want 2", len(words))
	}
}

func TestMissingSegmenterFallsBack(t *testing.T) {
	tk := &Tokenizer{}
	res, err := tk.Tokenize(context.Background(), "読む。", japaneseProfile(t))
	if err != nil {
		t.Fatalf("Tokenize failed: %v", err)
	}
	if !res.Degraded {
		t.Fatal("Degraded should be set when no segmenter is configured")
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	prof := englishProfile(t)
	tk := &Tokenizer{}
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringOfN(rapid.RuneFrom([]rune("abc XYZ.!? \nMr,")), 0, 200, -1).Draw(rt, "text")
		a, err := tk.Tokenize(context.Background(), text, prof)
		if err != nil {
			rt.Fatalf("first pass: %v", err)
		}
		b, err := tk.Tokenize(context.Background(), text, prof)
		if err != nil {
			rt.Fatalf("second pass: %v", err)
		}
		if !reflect.DeepEqual(a, b) {
			rt.Fatalf("re-tokenizing produced a different stream")
		}
	})
}

func TestWordOrderGapFree(t *testing.T) {
	prof := englishProfile(t)
	tk := &Tokenizer{}
	rapid.Check(t, func(rt *rapid.T) {
		text := rapid.StringOfN(rapid.RuneFrom([]rune("word a Bb. ! ?\n")), 0, 300, -1).Draw(rt, "text")
		res, err := tk.Tokenize(context.Background(), text, prof)
		if err != nil {
			rt.Fatalf("Tokenize: %v", err)
		}
		next := 1
		for _, s := range res.Sentences {
			for _, tok := range s.Tokens {
				if !tok.IsWord {
					if tok.Order != 0 {
						rt.Fatalf("non-word token carries order %d", tok.Order)
					}
					continue
				}
				if tok.Order != next {
					rt.Fatalf("word order %d, want %d", tok.Order, next)
				}
				next++
			}
		}
	})
}
