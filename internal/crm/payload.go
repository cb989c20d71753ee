package crm

import (
	"fmt"
	"strings"

	"github.com/leadforge/leadforge/internal/model"
)

// ExtraFieldsKey is the raw-payload key whose object value is overlaid onto
// the export payload, letting a scrape carry installation-specific fields
// (tags, assigned, custom fields).
const ExtraFieldsKey = "crm"

// BuildLeadPayload maps a record to the CRM lead payload. Operator defaults
// fill only missing or empty payload values; record-embedded extras are
// overlaid last and always win.
func BuildLeadPayload(rec *model.Record, defaults map[string]any) map[string]any {
	var desc []string
	addDesc := func(label, v string) {
		if v != "" {
			if label == "" {
				desc = append(desc, v)
			} else {
				desc = append(desc, label+": "+v)
			}
		}
	}
	addDesc("Event", rec.EventText)
	if rec.EventDate != nil {
		addDesc("Event Date", rec.EventDate.Format("2006-01-02"))
	}
	if rec.EventDateTime != nil {
		addDesc("Event DateTime", rec.EventDateTime.Format("2006-01-02T15:04:05Z07:00"))
	}
	addDesc("Source", rec.SourceName)
	addDesc("Source URL", rec.SourceURL)
	addDesc("Position", rec.Position)
	addDesc("Default Language", rec.DefaultLanguage)
	addDesc("", rec.Notes)

	name := rec.FullName
	if name == "" {
		name = "Unknown"
	}
	phone := rec.PhoneE164
	if phone == "" {
		phone = rec.PhoneRaw
	}
	payload := map[string]any{
		"name":        name,
		"email":       rec.Email,
		"phonenumber": phone,
		"company":     rec.Company,
		"description": strings.Join(desc, "\n"),
	}

	setIf := func(key, v string) {
		if v != "" {
			payload[key] = v
		}
	}
	setIf("website", rec.Website)
	setIf("title", rec.Position)
	setIf("address", rec.Address)
	setIf("city", rec.City)
	setIf("state", rec.State)
	setIf("country", rec.CountryCode)
	setIf("zip", rec.ZipCode)
	setIf("default_language", rec.DefaultLanguage)
	if rec.LeadValue != nil {
		payload["lead_value"] = *rec.LeadValue
	}

	for k, v := range defaults {
		if v == nil || v == "" {
			continue
		}
		if cur, ok := payload[k]; !ok || cur == nil || cur == "" {
			payload[k] = v
		}
	}

	if extra, ok := rec.RawPayload[ExtraFieldsKey].(map[string]any); ok {
		for k, v := range extra {
			payload[k] = v
		}
	}

	return payload
}

// ExtractExternalID digs a lead id out of a create/update response.
// Installations disagree on the shape, so several candidate keys are tried,
// including one level of nesting under data/result envelopes.
func ExtractExternalID(resp map[string]any) string {
	for _, key := range []string{"id", "lead_id", "data", "result"} {
		switch val := resp[key].(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				return val
			}
		case float64:
			return strings.TrimSpace(fmt.Sprintf("%.0f", val))
		case int:
			return fmt.Sprintf("%d", val)
		case map[string]any:
			if inner := scalarID(val["id"]); inner != "" {
				return inner
			}
			if inner := scalarID(val["lead_id"]); inner != "" {
				return inner
			}
		}
	}
	return ""
}

func scalarID(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return fmt.Sprintf("%.0f", val)
	case int:
		return fmt.Sprintf("%d", val)
	}
	return ""
}
