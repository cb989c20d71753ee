package model

import "time"

// RecordStatus is the domain status of a scraped record. Transitions are
// one-directional; converted and rejected are terminal and must never be
// overwritten by a later scrape.
type RecordStatus string

const (
	RecordNew       RecordStatus = "new"
	RecordReviewed  RecordStatus = "reviewed"
	RecordSynced    RecordStatus = "synced"
	RecordError     RecordStatus = "error"
	RecordConverted RecordStatus = "converted"
	RecordRejected  RecordStatus = "rejected"
)

// Terminal reports whether the status closes the record to pipeline writes.
func (s RecordStatus) Terminal() bool {
	return s == RecordConverted || s == RecordRejected
}

// recordTransitions is the allowed forward edges of the record lifecycle.
var recordTransitions = map[RecordStatus][]RecordStatus{
	RecordNew:      {RecordReviewed, RecordSynced, RecordError, RecordConverted, RecordRejected},
	RecordReviewed: {RecordSynced, RecordError, RecordConverted, RecordRejected},
	RecordSynced:   {RecordError, RecordConverted, RecordRejected},
	RecordError:    {RecordReviewed, RecordSynced, RecordConverted, RecordRejected},
}

// ValidRecordTransition reports whether from → to is an allowed status change.
// Same-status writes are always allowed.
func ValidRecordTransition(from, to RecordStatus) bool {
	if from == to {
		return true
	}
	for _, next := range recordTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Record is a normalized contact/event entity produced by extraction
// (a prospect, or its promoted lead form). RawPayload snapshots the
// originating scraped row; RawPayloadHash is always recomputed from the
// latest snapshot.
type Record struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Source attribution.
	SourceName string `json:"source_name"`
	SourceURL  string `json:"source_url"`
	SourceRef  string `json:"source_ref"`

	// Contact / identity.
	FullName  string `json:"full_name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Position  string `json:"position"`
	Company   string `json:"company"`
	Email     string `json:"email"`
	Website   string `json:"website"`
	PhoneRaw  string `json:"phone_raw"`
	PhoneE164 string `json:"phone_e164"`

	// Address.
	Address     string `json:"address"`
	City        string `json:"city"`
	State       string `json:"state"`
	CountryCode string `json:"country_code"`
	ZipCode     string `json:"zip_code"`

	// Event / enrichment.
	DefaultLanguage string     `json:"default_language"`
	LeadValue       *float64   `json:"lead_value,omitempty"`
	EventDate       *time.Time `json:"event_date,omitempty"`
	EventDateTime   *time.Time `json:"event_datetime,omitempty"`
	EventText       string     `json:"event_text"`
	Notes           string     `json:"notes"`

	RawPayload     map[string]any `json:"raw_payload"`
	RawPayloadHash string         `json:"raw_payload_hash"`

	Status RecordStatus `json:"status"`
}

// Label returns a human-readable handle for logs.
func (r *Record) Label() string {
	switch {
	case r.FullName != "" && r.Email != "":
		return r.FullName + " <" + r.Email + ">"
	case r.FullName != "":
		return r.FullName
	case r.Email != "":
		return r.Email
	case r.PhoneE164 != "":
		return r.PhoneE164
	default:
		return r.ID
	}
}
