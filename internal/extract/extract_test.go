package extract

import (
	"encoding/json"
	"testing"
)

func mustSpec(t *testing.T, raw string) FieldSpec {
	t.Helper()
	spec, err := ParseFieldSpec(json.RawMessage(raw))
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return spec
}

const cardHTML = `
<html><body>
<div class="card">
  <h2>Alice</h2>
  <a class="x" href="/e1">T</a>
  <span class="when">Event Date: 2026-01-25</span>
</div>
<div class="card">
  <h2>Bob</h2>
  <a class="x" href="/e2">U</a>
  <span class="when">Event Date: 2026-02-14</span>
</div>
</body></html>`

func TestItems_PlainTextSelector(t *testing.T) {
	items, err := Items(cardHTML, ".card", map[string]FieldSpec{
		"name": mustSpec(t, `"h2"`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(items))
	}
	if items[0]["name"] != "Alice" || items[1]["name"] != "Bob" {
		t.Errorf("unexpected names: %v", items)
	}
}

func TestItems_AttrSyntax(t *testing.T) {
	items, err := Items(cardHTML, ".card", map[string]FieldSpec{
		"link": mustSpec(t, `"a.x@href"`),
		"text": mustSpec(t, `"a.x"`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := items[0]["link"]; got != "/e1" {
		t.Errorf("attr value: got %q, want /e1", got)
	}
	if got := items[0]["text"]; got != "T" {
		t.Errorf("text value: got %q, want T", got)
	}
}

func TestItems_AttrCommaFallback(t *testing.T) {
	items, err := Items(cardHTML, ".card", map[string]FieldSpec{
		"link": mustSpec(t, `"a.missing@href, a.x@href"`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := items[0]["link"]; got != "/e1" {
		t.Errorf("fallback: got %q, want /e1", got)
	}
}

func TestItems_AttrNoMatchAnywhere(t *testing.T) {
	items, err := Items(cardHTML, ".card", map[string]FieldSpec{
		"link": mustSpec(t, `"a.gone@href, a.alsogone@href"`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := items[0]["link"]; got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestItems_StructuredRegex(t *testing.T) {
	items, err := Items(cardHTML, ".card", map[string]FieldSpec{
		"date": mustSpec(t, `{"selector":".when","regex":"(\\d{4}-\\d{2}-\\d{2})"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := items[0]["date"]; got != "2026-01-25" {
		t.Errorf("regex group: got %q, want 2026-01-25", got)
	}
	if got := items[1]["date"]; got != "2026-02-14" {
		t.Errorf("regex group: got %q, want 2026-02-14", got)
	}
}

func TestItems_StructuredDefault(t *testing.T) {
	items, err := Items(cardHTML, ".card", map[string]FieldSpec{
		"city": mustSpec(t, `{"selector":".nope","default":"Unknown"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := items[0]["city"]; got != "Unknown" {
		t.Errorf("default: got %q, want Unknown", got)
	}
}

func TestItems_StructuredRegexNoGroupNoMatch(t *testing.T) {
	items, err := Items(cardHTML, ".card", map[string]FieldSpec{
		"word":  mustSpec(t, `{"selector":"h2","regex":"[A-Z][a-z]+"}`),
		"none":  mustSpec(t, `{"selector":"h2","regex":"\\d+"}`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := items[0]["word"]; got != "Alice" {
		t.Errorf("whole match: got %q, want Alice", got)
	}
	if got := items[0]["none"]; got != "" {
		t.Errorf("no match: got %q, want empty", got)
	}
}

func TestItems_TextNormalization(t *testing.T) {
	html := `<div class="card"><h2>  Alice
	   Smith  </h2></div>`
	items, err := Items(html, ".card", map[string]FieldSpec{
		"name": mustSpec(t, `"h2"`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := items[0]["name"]; got != "Alice Smith" {
		t.Errorf("normalize: got %q, want %q", got, "Alice Smith")
	}
}

func TestSplitTopLevel_QuotedComma(t *testing.T) {
	parts := splitTopLevel(`a[href='x,y']@href, b@src`)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d: %v", len(parts), parts)
	}
	if parts[0] != `a[href='x,y']@href` {
		t.Errorf("quoted comma split wrong: %q", parts[0])
	}
}

func TestSplitTopLevel_QuoteInsideBrackets(t *testing.T) {
	parts := splitTopLevel(`a[data-testid='event-link']@href, a.event-link@href`)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d: %v", len(parts), parts)
	}
	if parts[0] != `a[data-testid='event-link']@href` || parts[1] != `a.event-link@href` {
		t.Errorf("split wrong: %v", parts)
	}
}

func TestItems_AttrFallbackAfterQuotedAlternative(t *testing.T) {
	items, err := Items(cardHTML, ".card", map[string]FieldSpec{
		"link": mustSpec(t, `"a[data-testid='event-link']@href, a.x@href"`),
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := items[0]["link"]; got != "/e1" {
		t.Errorf("fallback after quoted alternative: got %q, want /e1", got)
	}
}

func TestSplitSelectorAttr_LastAt(t *testing.T) {
	css, attr, ok := splitSelectorAttr(`a[href='test@value']@href`)
	if !ok {
		t.Fatal("expected ok")
	}
	if css != `a[href='test@value']` || attr != "href" {
		t.Errorf("got css=%q attr=%q", css, attr)
	}
}

func TestParseFieldSpec_Errors(t *testing.T) {
	cases := []string{
		`""`,
		`"@href"`,
		`{"selector":".x","regex":"("}`,
		`42`,
	}
	for _, raw := range cases {
		if _, err := ParseFieldSpec(json.RawMessage(raw)); err == nil {
			t.Errorf("expected error for %s", raw)
		}
	}
}

func TestNextPageURL(t *testing.T) {
	html := `<div><a class="next" href="/page/2">Next</a></div>`

	u, ok := NextPageURL(html, "a.next", "https://example.com/page/1")
	if !ok {
		t.Fatal("expected next page link")
	}
	if u != "https://example.com/page/2" {
		t.Errorf("resolved URL: got %q", u)
	}

	if _, ok := NextPageURL(html, "a.missing", "https://example.com/"); ok {
		t.Error("expected no link for missing selector")
	}
	if _, ok := NextPageURL(html, "", "https://example.com/"); ok {
		t.Error("expected no link for empty selector")
	}
	if _, ok := NextPageURL(`<a class="next">no href</a>`, "a.next", "https://example.com/"); ok {
		t.Error("expected no link when href absent")
	}
}
