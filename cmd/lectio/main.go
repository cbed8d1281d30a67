package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/japaniel/lectio/pkg/db"
	"github.com/japaniel/lectio/pkg/extract"
	"github.com/japaniel/lectio/pkg/language"
	"github.com/japaniel/lectio/pkg/parse"
	"github.com/japaniel/lectio/pkg/render"
	"github.com/japaniel/lectio/pkg/tokenize"
	"github.com/japaniel/lectio/pkg/vocab"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	dbFlag := flag.String("db", "lectio.db", "Path to SQLite database")

	createLang := flag.Bool("create-lang", false, "Create or update a language profile")
	langName := flag.String("lang-name", "", "Language name")
	langCode := flag.String("lang-code", "", "Language code passed to external segmenters")
	wordPattern := flag.String("word-pattern", `[A-Za-zÀ-ÖØ-öø-ÿ]+`, "Word-character pattern")
	sentencePattern := flag.String("sentence-pattern", `[.!?]`, "Sentence-terminator pattern")
	exceptions := flag.String("exceptions", "", "Comma-separated sentence-split exceptions (e.g. 'Mr.,Dr.')")
	removeSpaces := flag.Bool("remove-spaces", false, "Scriptio-continua language (needs a segmenter)")
	rtl := flag.Bool("rtl", false, "Right-to-left language")
	placement := flag.String("placement", "after", "Annotation placement: after, before, ruby-above, ruby-below, none")
	textSize := flag.Int("text-size", 100, "Display text size in percent")

	langID := flag.Int64("lang", 0, "Language id for import/render operations")
	importFlag := flag.String("import", "", "Import a text from a file path or URL")
	title := flag.String("title", "", "Title for the imported text (defaults to extracted title or file name)")
	importTerms := flag.String("import-terms", "", "Import terms from a TSV file")
	renderFlag := flag.Int64("render", 0, "Render a text by id")
	mode := flag.String("mode", "compact", "Render mode: compact or expanded")
	showStatuses := flag.String("show-statuses", "0,1,2,3,4,5", "Comma-separated statuses whose annotations render")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := sql.Open("sqlite3", *dbFlag)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer conn.Close()

	if err := db.InitDB(conn); err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	switch {
	case *createLang:
		prof := &language.Profile{
			Name:            *langName,
			Code:            *langCode,
			WordPattern:     *wordPattern,
			SentencePattern: *sentencePattern,
			RemoveSpaces:    *removeSpaces,
			RightToLeft:     *rtl,
			Placement:       language.ParsePlacement(*placement),
			TextSize:        *textSize,
		}
		if *exceptions != "" {
			prof.Exceptions = strings.Split(*exceptions, ",")
		}
		id, err := db.CreateLanguage(conn, prof)
		if err != nil {
			log.Fatalf("Failed to create language: %v", err)
		}
		fmt.Printf("Language %q saved with id %d\n", prof.Name, id)

	case *importFlag != "":
		runImport(ctx, conn, *langID, *importFlag, *title)

	case *importTerms != "":
		f, err := os.Open(*importTerms)
		if err != nil {
			log.Fatalf("Failed to open term file: %v", err)
		}
		defer f.Close()
		p := newParser(ctx, conn, *langID)
		count, err := p.ImportTerms(ctx, *langID, f)
		if err != nil {
			log.Fatalf("Term import failed after %d rows: %v", count, err)
		}
		fmt.Printf("Imported %d terms.\n", count)

	case *renderFlag > 0:
		runRender(ctx, conn, *renderFlag, *mode, *showStatuses)

	default:
		log.Fatal("Nothing to do: use -create-lang, -import, -import-terms or -render")
	}
}

// newParser wires a parser with a kagome segmenter when the language
// needs one. Segmenter setup failure is not fatal; parsing degrades to
// character tokens and says so.
func newParser(ctx context.Context, conn *sql.DB, languageID int64) *parse.Parser {
	p := parse.NewParser(conn)
	p.Logger = log.Default()
	p.OnProgress = func(current, total int) {
		if current%50 == 0 || current == total {
			fmt.Printf("\rMatching %d/%d sentences", current, total)
			if current == total {
				fmt.Println()
			}
		}
	}
	if languageID > 0 {
		prof, err := db.GetLanguage(conn, languageID)
		if err == nil && prof.RemoveSpaces {
			seg, err := tokenize.NewKagomeSegmenter()
			if err != nil {
				log.Printf("Warning: segmenter unavailable: %v", err)
			} else {
				p.Tokenizer.Segmenter = seg
			}
		}
	}
	return p
}

func runImport(ctx context.Context, conn *sql.DB, languageID int64, source, title string) {
	if languageID <= 0 {
		log.Fatal("Please provide -lang")
	}

	var content, sourceURL string
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		fmt.Printf("Fetching %s...\n", source)
		article, err := extract.FetchArticle(ctx, source)
		if err != nil {
			log.Fatalf("Failed to fetch article: %v", err)
		}
		content = article.Text
		sourceURL = source
		if title == "" {
			title = article.Title
		}
	} else {
		data, err := os.ReadFile(source)
		if err != nil {
			log.Fatalf("Failed to read file: %v", err)
		}
		content = string(data)
		if title == "" {
			title = source
		}
	}

	textID, err := db.CreateText(conn, languageID, title, sourceURL, content)
	if err != nil {
		log.Fatalf("Failed to store text: %v", err)
	}

	p := newParser(ctx, conn, languageID)
	matched, err := p.ParseText(ctx, textID)
	if err != nil {
		log.Fatalf("Parse failed: %v", err)
	}

	words := 0
	linked := 0
	for _, s := range matched.Sentences {
		words += len(s.Words())
		linked += len(s.Links)
	}
	fmt.Printf("Text saved with id %d: %d sentences, %d words, %d term links.\n",
		textID, len(matched.Sentences), words, linked)
}

func runRender(ctx context.Context, conn *sql.DB, textID int64, modeName, showStatuses string) {
	opts := render.Options{Visible: parseStatuses(showStatuses)}
	if modeName == "expanded" {
		opts.Mode = render.ModeExpanded
	}

	text, err := db.GetText(conn, textID)
	if err != nil {
		log.Fatalf("Failed to load text: %v", err)
	}
	p := newParser(ctx, conn, text.LanguageID)
	p.OnProgress = nil
	res, err := p.RenderText(ctx, textID, opts)
	if err != nil {
		log.Fatalf("Render failed: %v", err)
	}
	if res.Degraded {
		fmt.Println("(word boundaries approximated: segmenter unavailable)")
	}
	printUnits(res)
}

func parseStatuses(s string) vocab.StatusSet {
	var set vocab.StatusSet
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.Atoi(f)
		if err != nil || n < int(vocab.StatusNew) || n > int(vocab.StatusWellKnown) {
			log.Fatalf("Bad status %q in -show-statuses", f)
		}
		set |= vocab.Statuses(vocab.Status(n))
	}
	return set
}

// printUnits writes a plain-text approximation of the render: term text
// with its annotation in brackets, markers as span indicators.
func printUnits(res *render.Result) {
	var b strings.Builder
	for _, u := range res.Units {
		switch {
		case u.Marker:
			fmt.Fprintf(&b, "{%s}", u.Text)
		default:
			if u.Annotation != nil && u.Annotation.Placement == language.PlaceBefore {
				fmt.Fprintf(&b, "[%s]", u.Annotation.Text)
			}
			b.WriteString(u.Text)
			if u.Annotation != nil && u.Annotation.Placement != language.PlaceBefore && u.Annotation.Placement != language.PlaceNone {
				fmt.Fprintf(&b, "[%s]", u.Annotation.Text)
			}
		}
	}
	fmt.Println(b.String())
}
