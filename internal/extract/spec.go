package extract

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// FieldKind discriminates the three selector spec shapes a target config
// may use for a field.
type FieldKind int

const (
	// FieldText is a plain CSS selector; the field value is the matched
	// element's normalized text content.
	FieldText FieldKind = iota
	// FieldAttr is one or more "selector@attr" alternatives; the field value
	// is the first non-empty attribute, evaluated left to right.
	FieldAttr
	// FieldStructured is the object form {selector, attr, regex, default}.
	FieldStructured
)

// AttrAlternative is a single "selector@attr" alternative.
type AttrAlternative struct {
	Selector string
	Attr     string
}

// FieldSpec is a parsed, validated field selector. Configs are parsed once at
// target-load time so selector and regex mistakes surface before any network
// call, not mid-extraction.
type FieldSpec struct {
	Kind         FieldKind
	Selector     string
	Attr         string
	Regexp       *regexp.Regexp
	Default      string
	Alternatives []AttrAlternative
}

// structuredSpec is the JSON object form of a field spec.
type structuredSpec struct {
	Selector string `json:"selector"`
	Attr     string `json:"attr"`
	Regex    string `json:"regex"`
	Default  string `json:"default"`
}

// ParseFieldSpec parses the raw JSON value of one field entry: either a
// string selector (plain or with @attr syntax) or a structured object.
func ParseFieldSpec(raw json.RawMessage) (FieldSpec, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return FieldSpec{}, eris.New("extract: empty field spec")
	}

	if strings.HasPrefix(trimmed, "{") {
		var s structuredSpec
		if err := json.Unmarshal(raw, &s); err != nil {
			return FieldSpec{}, eris.Wrap(err, "extract: parse structured spec")
		}
		spec := FieldSpec{
			Kind:     FieldStructured,
			Selector: strings.TrimSpace(s.Selector),
			Attr:     strings.TrimSpace(s.Attr),
			Default:  s.Default,
		}
		if s.Regex != "" {
			re, err := regexp.Compile(s.Regex)
			if err != nil {
				return FieldSpec{}, eris.Wrapf(err, "extract: invalid regex %q", s.Regex)
			}
			spec.Regexp = re
		}
		return spec, nil
	}

	var sel string
	if err := json.Unmarshal(raw, &sel); err != nil {
		return FieldSpec{}, eris.Wrap(err, "extract: field spec must be a string or object")
	}
	return parseSelectorString(sel)
}

func parseSelectorString(sel string) (FieldSpec, error) {
	sel = strings.TrimSpace(sel)
	if sel == "" {
		return FieldSpec{}, eris.New("extract: empty selector")
	}

	if !strings.Contains(sel, "@") {
		return FieldSpec{Kind: FieldText, Selector: sel}, nil
	}

	var alts []AttrAlternative
	for _, part := range splitTopLevel(sel) {
		css, attr, ok := splitSelectorAttr(part)
		if !ok {
			// Alternatives without a usable @attr are skipped, matching the
			// left-to-right first-non-empty evaluation contract.
			continue
		}
		alts = append(alts, AttrAlternative{Selector: css, Attr: attr})
	}
	if len(alts) == 0 {
		return FieldSpec{}, eris.Errorf("extract: no valid selector@attr alternative in %q", sel)
	}
	return FieldSpec{Kind: FieldAttr, Alternatives: alts}, nil
}

// splitSelectorAttr splits "selector@attr" at the last @, so attribute values
// containing @ inside the selector (e.g. a[href='x@y']@href) stay intact.
func splitSelectorAttr(s string) (css, attr string, ok bool) {
	i := strings.LastIndex(s, "@")
	if i < 0 {
		return "", "", false
	}
	css = strings.TrimSpace(s[:i])
	attr = strings.TrimSpace(s[i+1:])
	if css == "" || attr == "" {
		return "", "", false
	}
	return css, attr, true
}

// splitTopLevel splits a comma-separated selector list, ignoring commas nested
// inside brackets or quoted strings. CSS attribute values may legally contain
// commas, so a naive strings.Split is wrong here.
func splitTopLevel(s string) []string {
	if !strings.Contains(s, ",") {
		return []string{strings.TrimSpace(s)}
	}

	var (
		parts     []string
		current   strings.Builder
		depth     int
		inQuotes  bool
		quoteChar rune
	)
	for _, ch := range s {
		switch {
		// Quote state toggles at any bracket depth; a quote opened inside
		// [...] must still close there.
		case (ch == '\'' || ch == '"') && (!inQuotes || ch == quoteChar):
			if !inQuotes {
				inQuotes = true
				quoteChar = ch
			} else {
				inQuotes = false
			}
			current.WriteRune(ch)
		case !inQuotes && (ch == '(' || ch == '[' || ch == '{'):
			depth++
			current.WriteRune(ch)
		case !inQuotes && (ch == ')' || ch == ']' || ch == '}'):
			depth--
			current.WriteRune(ch)
		case ch == ',' && depth == 0 && !inQuotes:
			if p := strings.TrimSpace(current.String()); p != "" {
				parts = append(parts, p)
			}
			current.Reset()
		default:
			current.WriteRune(ch)
		}
	}
	if p := strings.TrimSpace(current.String()); p != "" {
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return []string{strings.TrimSpace(s)}
	}
	return parts
}

// ParseFields parses every entry of a raw fields mapping.
func ParseFields(raw map[string]json.RawMessage) (map[string]FieldSpec, error) {
	fields := make(map[string]FieldSpec, len(raw))
	for name, spec := range raw {
		parsed, err := ParseFieldSpec(spec)
		if err != nil {
			return nil, eris.Wrapf(err, "extract: field %q", name)
		}
		fields[name] = parsed
	}
	return fields, nil
}
