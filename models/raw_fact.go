package models

import (
	"bytes"
	"encoding/json"
	"strings"
)

// RawFact ist ein Hecho, wie ihn eine Quelle liefert, vor der Normalisierung.
type RawFact struct {
	// Von außen gelieferte IDs werden ignoriert
	ExternalID any `json:"id,omitempty"`

	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Tags        []string `json:"tags,omitempty"`
	EventDate   RawDate  `json:"event_date,omitempty"`

	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Country      string   `json:"country,omitempty"`
	Province     string   `json:"province,omitempty"`
	Municipality string   `json:"municipality,omitempty"`

	Sources       []string `json:"sources,omitempty"`
	Origin        string   `json:"origin,omitempty"`
	ContributorID *uint    `json:"contributor_id,omitempty"`
	Anonymous     bool     `json:"anonymous,omitempty"`
	OriginFileID  *uint    `json:"origin_file_id,omitempty"`
}

// RawDate akzeptiert ein Datum als JSON-String oder als Zahl (Epoch).
type RawDate string

func (d *RawDate) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*d = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*d = RawDate(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*d = RawDate(n.String())
	return nil
}
