package db

import (
	"context"
	"database/sql"
	"testing"

	"github.com/japaniel/lectio/pkg/language"
	"github.com/japaniel/lectio/pkg/tokenize"
	"github.com/japaniel/lectio/pkg/vocab"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// A second connection would see a different in-memory database.
	conn.SetMaxOpenConns(1)
	if err := InitDB(conn); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func testLanguage(t *testing.T, conn *sql.DB) int64 {
	t.Helper()
	id, err := CreateLanguage(conn, &language.Profile{
		Name:            "english",
		Code:            "en",
		WordPattern:     `[a-zA-Z]+`,
		SentencePattern: `[.!?]`,
		Exceptions:      []string{"Mr.", "Mrs."},
		Placement:       language.PlaceAfter,
		TextSize:        100,
	})
	if err != nil {
		t.Fatalf("create language: %v", err)
	}
	return id
}

func TestLanguageRoundTrip(t *testing.T) {
	conn := openTestDB(t)
	id := testLanguage(t, conn)

	p, err := GetLanguage(conn, id)
	if err != nil {
		t.Fatalf("get language: %v", err)
	}
	if p.Name != "english" || p.Code != "en" {
		t.Errorf("got %q/%q", p.Name, p.Code)
	}
	if len(p.Exceptions) != 2 || p.Exceptions[0] != "Mr." {
		t.Errorf("exceptions not preserved: %v", p.Exceptions)
	}
	if p.Placement != language.PlaceAfter {
		t.Errorf("placement = %v", p.Placement)
	}
	if p.WordRE() == nil || p.SentenceRE() == nil {
		t.Error("loaded profile not compiled")
	}

	// Upserting the same name updates in place.
	id2, err := CreateLanguage(conn, &language.Profile{
		Name: "english", Code: "en-GB",
		WordPattern: `[a-z]+`, SentencePattern: `[.]`,
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if id2 != id {
		t.Errorf("upsert created new row: %d != %d", id2, id)
	}
	p, err = GetLanguage(conn, id)
	if err != nil {
		t.Fatal(err)
	}
	if p.Code != "en-GB" {
		t.Errorf("code not updated: %q", p.Code)
	}
}

func TestCreateLanguageRejectsBadPattern(t *testing.T) {
	conn := openTestDB(t)
	_, err := CreateLanguage(conn, &language.Profile{
		Name: "broken", WordPattern: `[a-z`, SentencePattern: `[.]`,
	})
	if err == nil {
		t.Fatal("expected error for malformed pattern")
	}
	var row int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM languages`).Scan(&row); err != nil {
		t.Fatal(err)
	}
	if row != 0 {
		t.Error("invalid profile was stored")
	}
}

func TestTextRoundTrip(t *testing.T) {
	conn := openTestDB(t)
	langID := testLanguage(t, conn)

	if _, err := CreateText(conn, langID, "  ", "", "body"); err == nil {
		t.Error("empty title accepted")
	}

	id, err := CreateText(conn, langID, "Title", "https://example.com/a", "Some body.")
	if err != nil {
		t.Fatalf("create text: %v", err)
	}
	txt, err := GetText(conn, id)
	if err != nil {
		t.Fatalf("get text: %v", err)
	}
	if txt.Title != "Title" || txt.SourceURL != "https://example.com/a" || txt.Content != "Some body." {
		t.Errorf("unexpected text row: %+v", txt)
	}
	if txt.LanguageID != langID {
		t.Errorf("language id = %d, want %d", txt.LanguageID, langID)
	}
}

func TestReplaceTextTokensSwap(t *testing.T) {
	conn := openTestDB(t)
	langID := testLanguage(t, conn)
	textID, err := CreateText(conn, langID, "t", "", "old text. replaced.")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	first := &tokenize.Result{Sentences: []tokenize.Sentence{
		{Index: 0, Text: "old text.", Tokens: []tokenize.Token{
			{Text: "old", IsWord: true, Order: 1},
			{Text: " "},
			{Text: "text", IsWord: true, Order: 2},
			{Text: "."},
		}},
	}, WordCount: 2}
	if err := ReplaceTextTokens(ctx, conn, textID, first); err != nil {
		t.Fatalf("first swap: %v", err)
	}

	second := &tokenize.Result{Sentences: []tokenize.Sentence{
		{Index: 0, Text: "brand new.", Tokens: []tokenize.Token{
			{Text: "brand", IsWord: true, Order: 1},
			{Text: " "},
			{Text: "new", IsWord: true, Order: 2},
			{Text: "."},
		}},
		{Index: 1, Text: "more.", Tokens: []tokenize.Token{
			{Text: "more", IsWord: true, Order: 3},
			{Text: "."},
		}},
	}, WordCount: 3}
	if err := ReplaceTextTokens(ctx, conn, textID, second); err != nil {
		t.Fatalf("second swap: %v", err)
	}

	got, err := LoadTextTokens(conn, textID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got.Sentences) != 2 {
		t.Fatalf("got %d sentences, want 2", len(got.Sentences))
	}
	if got.Sentences[0].Tokens[0].Text != "brand" {
		t.Errorf("old tokens survived the swap: %+v", got.Sentences[0].Tokens[0])
	}
	if got.WordCount != 3 {
		t.Errorf("word count = %d, want 3", got.WordCount)
	}
	if got.Sentences[1].Tokens[0].Order != 3 {
		t.Errorf("word order not preserved: %+v", got.Sentences[1].Tokens[0])
	}
}

func TestDegradedFlagSurvivesReload(t *testing.T) {
	conn := openTestDB(t)
	langID := testLanguage(t, conn)
	textID, err := CreateText(conn, langID, "t", "", "読む。")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	degraded := &tokenize.Result{Sentences: []tokenize.Sentence{
		{Index: 0, Text: "読む。", Tokens: []tokenize.Token{
			{Text: "読", IsWord: true, Order: 1},
			{Text: "む", IsWord: true, Order: 2},
			{Text: "。"},
		}},
	}, WordCount: 2, Degraded: true}
	if err := ReplaceTextTokens(ctx, conn, textID, degraded); err != nil {
		t.Fatalf("swap: %v", err)
	}

	got, err := LoadTextTokens(conn, textID)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Degraded {
		t.Error("degraded flag lost on reload")
	}
	txt, err := GetText(conn, textID)
	if err != nil {
		t.Fatal(err)
	}
	if !txt.Degraded {
		t.Error("degraded flag missing from text row")
	}

	// A clean re-parse clears it.
	clean := &tokenize.Result{Sentences: []tokenize.Sentence{
		{Index: 0, Text: "読む。", Tokens: []tokenize.Token{
			{Text: "読む", IsWord: true, Order: 1},
			{Text: "。"},
		}},
	}, WordCount: 1}
	if err := ReplaceTextTokens(ctx, conn, textID, clean); err != nil {
		t.Fatalf("second swap: %v", err)
	}
	got, err = LoadTextTokens(conn, textID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Degraded {
		t.Error("degraded flag not cleared by clean swap")
	}
}

func TestAnnotationsRoundTrip(t *testing.T) {
	conn := openTestDB(t)
	langID := testLanguage(t, conn)
	textID, err := CreateText(conn, langID, "t", "", "body")
	if err != nil {
		t.Fatal(err)
	}

	blob, err := GetAnnotations(conn, textID)
	if err != nil {
		t.Fatalf("get before save: %v", err)
	}
	if blob != nil {
		t.Errorf("expected nil blob, got %q", blob)
	}

	want := []byte(`{"version":1,"entries":[]}`)
	if err := SaveAnnotations(conn, textID, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	blob, err = GetAnnotations(conn, textID)
	if err != nil {
		t.Fatal(err)
	}
	if string(blob) != string(want) {
		t.Errorf("got %q, want %q", blob, want)
	}

	if err := SaveAnnotations(conn, 9999, want); err == nil {
		t.Error("saving to missing text should fail")
	}
}

func TestUpsertTerm(t *testing.T) {
	conn := openTestDB(t)
	langID := testLanguage(t, conn)

	term := &vocab.Term{
		LanguageID: langID, Text: "Good Morning", Span: 2,
		Status: vocab.StatusStage1, Translation: "greeting",
		Tags: []string{"idiom", "greeting"},
	}
	id, err := UpsertTerm(conn, term)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if term.Key != "good morning" {
		t.Errorf("key not derived: %q", term.Key)
	}

	// Same key again: status changes, the empty translation keeps the
	// stored one.
	again := &vocab.Term{
		LanguageID: langID, Key: "good morning", Text: "good morning",
		Span: 2, Status: vocab.StatusStage3,
	}
	id2, err := UpsertTerm(conn, again)
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if id2 != id {
		t.Errorf("upsert created new row: %d != %d", id2, id)
	}

	store := NewStore(conn)
	terms, err := store.LookupTerms(context.Background(), langID, "good", 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 1 {
		t.Fatalf("got %d terms, want 1", len(terms))
	}
	got := terms[0]
	if got.Status != vocab.StatusStage3 {
		t.Errorf("status = %v", got.Status)
	}
	if got.Translation != "greeting" {
		t.Errorf("translation lost on upsert: %q", got.Translation)
	}
	if len(got.Tags) != 2 || got.Tags[0] != "greeting" || got.Tags[1] != "idiom" {
		t.Errorf("tags = %v", got.Tags)
	}

	if _, err := UpsertTerm(conn, &vocab.Term{LanguageID: langID, Text: "   "}); err == nil {
		t.Error("blank term text accepted")
	}
}

func TestLookupTermsOrderingAndFilters(t *testing.T) {
	conn := openTestDB(t)
	langID := testLanguage(t, conn)
	otherLang, err := CreateLanguage(conn, &language.Profile{
		Name: "other", WordPattern: `[a-z]+`, SentencePattern: `[.]`,
	})
	if err != nil {
		t.Fatal(err)
	}

	seed := []vocab.Term{
		{LanguageID: langID, Text: "good", Span: 1},
		{LanguageID: langID, Text: "good morning", Span: 2},
		{LanguageID: langID, Text: "good morning sunshine", Span: 3},
		{LanguageID: langID, Text: "goodness", Span: 1},
		{LanguageID: otherLang, Text: "good day", Span: 2},
	}
	for i := range seed {
		if _, err := UpsertTerm(conn, &seed[i]); err != nil {
			t.Fatalf("seed %q: %v", seed[i].Text, err)
		}
	}

	store := NewStore(conn)
	ctx := context.Background()

	terms, err := store.LookupTerms(ctx, langID, "good", 9)
	if err != nil {
		t.Fatal(err)
	}
	var keys []string
	for _, tm := range terms {
		keys = append(keys, tm.Key)
	}
	want := []string{"good morning sunshine", "good morning", "good", "goodness"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Fatalf("keys = %v, want %v", keys, want)
		}
	}

	// Span cap filters longer candidates.
	terms, err = store.LookupTerms(ctx, langID, "good", 2)
	if err != nil {
		t.Fatal(err)
	}
	for _, tm := range terms {
		if tm.Span > 2 {
			t.Errorf("span %d leaked past cap", tm.Span)
		}
	}

	// The other language's terms never appear.
	for _, tm := range terms {
		if tm.LanguageID != langID {
			t.Errorf("term from language %d leaked", tm.LanguageID)
		}
	}

	if terms, err := store.LookupTerms(ctx, langID, "", 9); err != nil || terms != nil {
		t.Errorf("empty key should return nothing, got %v, %v", terms, err)
	}

	multi, err := store.MultiwordKeys(ctx, langID)
	if err != nil {
		t.Fatal(err)
	}
	if len(multi) != 2 {
		t.Errorf("multiword keys = %v", multi)
	}
}

func TestLookupTermsEqualSpanTieBreak(t *testing.T) {
	// Equal-span candidates at one start position come back in ascending
	// key order; the matcher takes the first verified candidate, so this
	// ordering is what keeps renders reproducible.
	conn := openTestDB(t)
	langID := testLanguage(t, conn)

	for _, text := range []string{"bad apple", "bad actor", "bad air"} {
		if _, err := UpsertTerm(conn, &vocab.Term{LanguageID: langID, Text: text, Span: 2}); err != nil {
			t.Fatal(err)
		}
	}

	store := NewStore(conn)
	terms, err := store.LookupTerms(context.Background(), langID, "bad", 9)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"bad actor", "bad air", "bad apple"}
	if len(terms) != len(want) {
		t.Fatalf("got %d terms, want %d", len(terms), len(want))
	}
	for i, k := range want {
		if terms[i].Key != k {
			t.Errorf("terms[%d].Key = %q, want %q", i, terms[i].Key, k)
		}
	}
}

func TestLookupTermsEscapesLikeMetacharacters(t *testing.T) {
	conn := openTestDB(t)
	langID := testLanguage(t, conn)

	for _, text := range []string{"100%", "1000"} {
		if _, err := UpsertTerm(conn, &vocab.Term{LanguageID: langID, Text: text, Span: 1}); err != nil {
			t.Fatal(err)
		}
	}
	store := NewStore(conn)
	terms, err := store.LookupTerms(context.Background(), langID, "100%", 9)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 1 || terms[0].Key != "100%" {
		t.Errorf("%% not treated literally: %v", terms)
	}
}

func TestUpdateTermStatus(t *testing.T) {
	conn := openTestDB(t)
	langID := testLanguage(t, conn)
	term := &vocab.Term{LanguageID: langID, Text: "word", Span: 1}
	id, err := UpsertTerm(conn, term)
	if err != nil {
		t.Fatal(err)
	}

	if err := UpdateTermStatus(conn, id, vocab.StatusWellKnown); err != nil {
		t.Fatalf("update: %v", err)
	}
	store := NewStore(conn)
	terms, err := store.LookupTerms(context.Background(), langID, "word", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(terms) != 1 || terms[0].Status != vocab.StatusWellKnown {
		t.Errorf("status not updated: %v", terms)
	}

	if err := UpdateTermStatus(conn, 9999, vocab.StatusNew); err == nil {
		t.Error("updating missing term should fail")
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	conn := openTestDB(t)
	if err := InitDB(conn); err != nil {
		t.Fatalf("second init: %v", err)
	}
	for _, table := range []string{"languages", "texts", "sentences", "tokens", "terms", "tags", "term_tags"} {
		var name string
		err := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("table %s missing: %v", table, err)
		}
	}
}
