package tokenize

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ikawaha/kagome-dict/ipa"
	"github.com/ikawaha/kagome/v2/tokenizer"
)

// Segmenter produces word boundaries for languages that do not mark them
// in the text. One call covers a whole text's sentences, since external
// segmenters carry fixed per-invocation overhead; implementations return
// one segment list per input sentence.
type Segmenter interface {
	Segment(ctx context.Context, sentences []string, languageCode string) ([][]string, error)
}

// KagomeSegmenter segments Japanese in-process using the kagome
// morphological analyzer with the IPA dictionary.
type KagomeSegmenter struct {
	t *tokenizer.Tokenizer
}

// NewKagomeSegmenter loads the IPA dictionary and builds the analyzer.
func NewKagomeSegmenter() (*KagomeSegmenter, error) {
	t, err := tokenizer.New(ipa.Dict(), tokenizer.OmitBosEos())
	if err != nil {
		return nil, err
	}
	return &KagomeSegmenter{t: t}, nil
}

// Segment returns the surface form of every morpheme, per sentence. The
// language code is ignored; kagome only handles Japanese.
func (k *KagomeSegmenter) Segment(ctx context.Context, sentences []string, _ string) ([][]string, error) {
	out := make([][]string, len(sentences))
	for i, s := range sentences {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var segs []string
		for _, tok := range k.t.Tokenize(s) {
			if tok.Class == tokenizer.DUMMY {
				continue
			}
			if tok.Surface == "" {
				continue
			}
			segs = append(segs, tok.Surface)
		}
		out[i] = segs
	}
	return out, nil
}

// CommandSegmenter shells out to an external segmenter binary. The
// protocol is line based: one sentence per input line (with internal line
// breaks stripped, the sentence splitter never produces them), one output
// line per sentence with segments separated by tabs. The process is
// spawned once per Segment call, not once per token.
type CommandSegmenter struct {
	// Path is the segmenter binary; Args are prepended before the
	// language code.
	Path string
	Args []string
}

func (c *CommandSegmenter) Segment(ctx context.Context, sentences []string, languageCode string) ([][]string, error) {
	args := append(append([]string{}, c.Args...), languageCode)
	cmd := exec.CommandContext(ctx, c.Path, args...)

	var in bytes.Buffer
	for _, s := range sentences {
		in.WriteString(strings.ReplaceAll(s, "\n", " "))
		in.WriteByte('\n')
	}
	cmd.Stdin = &in

	outBytes, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("segmenter %s: %w", c.Path, err)
	}

	var out [][]string
	sc := bufio.NewScanner(bytes.NewReader(outBytes))
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := sc.Text()
		var segs []string
		for _, f := range strings.Split(line, "\t") {
			if f != "" {
				segs = append(segs, f)
			}
		}
		out = append(out, segs)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("segmenter %s: read output: %w", c.Path, err)
	}
	if len(out) != len(sentences) {
		return nil, fmt.Errorf("segmenter %s: got %d output lines for %d sentences", c.Path, len(out), len(sentences))
	}
	return out, nil
}
