// Package extract implements the declarative selector-driven HTML extraction
// engine: one item selector locates the repeating container, a field spec map
// pulls one flat string record out of each container.
package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
)

// Items runs the field specs over every container matched by itemSelector and
// returns one flat record per container. Missing or malformed field data never
// fails extraction; fields fall back to their default or the empty string.
func Items(html string, itemSelector string, fields map[string]FieldSpec) ([]map[string]string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, eris.Wrap(err, "extract: parse html")
	}

	var items []map[string]string
	doc.Find(itemSelector).Each(func(_ int, row *goquery.Selection) {
		out := make(map[string]string, len(fields))
		for name, spec := range fields {
			out[name] = evalField(row, spec)
		}
		items = append(items, out)
	})
	return items, nil
}

func evalField(row *goquery.Selection, spec FieldSpec) string {
	switch spec.Kind {
	case FieldText:
		return NormalizeText(row.Find(spec.Selector).First().Text())

	case FieldAttr:
		for _, alt := range spec.Alternatives {
			el := row.Find(alt.Selector).First()
			if el.Length() == 0 {
				continue
			}
			if v, ok := el.Attr(alt.Attr); ok && v != "" {
				return v
			}
		}
		return ""

	case FieldStructured:
		var el *goquery.Selection
		if spec.Selector != "" {
			el = row.Find(spec.Selector).First()
		}
		if el == nil || el.Length() == 0 {
			return spec.Default
		}

		var value string
		if spec.Attr != "" {
			v, _ := el.Attr(spec.Attr)
			if v == "" {
				v = spec.Default
			}
			value = v
		} else {
			value = NormalizeText(el.Text())
			if value == "" {
				value = spec.Default
			}
		}

		if spec.Regexp != nil {
			m := spec.Regexp.FindStringSubmatch(value)
			switch {
			case m == nil:
				return ""
			case spec.Regexp.NumSubexp() > 0:
				return m[1]
			default:
				return m[0]
			}
		}
		return value
	}
	return ""
}

// NextPageURL finds the "next page" anchor via selector and resolves its href
// against pageURL. Returns false when the selector or href is absent.
func NextPageURL(html, selector, pageURL string) (string, bool) {
	if selector == "" {
		return "", false
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false
	}
	href, ok := doc.Find(selector).First().Attr("href")
	if !ok || href == "" {
		return "", false
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return href, true
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	return base.ResolveReference(ref).String(), true
}

// NormalizeText collapses all whitespace runs (including newlines) into single
// spaces and trims both ends.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
