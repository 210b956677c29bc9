package models

import (
	"time"

	"metamapa/apperr"
)

// ReviewState ist der Moderationsstatus eines Hechos.
type ReviewState string

const (
	ReviewNone                ReviewState = ""
	ReviewPending             ReviewState = "PENDIENTE"
	ReviewAccepted            ReviewState = "ACEPTADO"
	ReviewAcceptedSuggestions ReviewState = "ACEPTADO_CON_SUGERENCIAS"
	ReviewRejected            ReviewState = "RECHAZADO"
)

// Fact repräsentiert einen kanonischen Hecho (ein gemeldetes Ereignis) nach Normalisierung und Deduplizierung.
type Fact struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Title       string     `json:"title" gorm:"not null"`
	Description string     `json:"description" gorm:"type:text"`
	Category    string     `json:"category" gorm:"index;size:255"`
	Tags        []FactTag  `json:"tags,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	EventDate   *time.Time `json:"event_date,omitempty"`

	Latitude     *float64 `json:"latitude,omitempty"`
	Longitude    *float64 `json:"longitude,omitempty"`
	Country      string   `json:"country,omitempty"`
	Province     string   `json:"province,omitempty"`
	Municipality string   `json:"municipality,omitempty"`

	// Typ der Quelle, die den Hecho zuerst gemeldet hat
	Origin         string       `json:"origin,omitempty" gorm:"index;size:64"`
	Sources        []FactSource `json:"sources,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Corroborations int          `json:"corroborations" gorm:"not null;default:1"`

	ContributorID *uint `json:"contributor_id,omitempty" gorm:"index"`
	Anonymous     bool  `json:"anonymous"`

	ReviewState     ReviewState `json:"review_state,omitempty" gorm:"size:32"`
	SuggestedChange string      `json:"suggested_change,omitempty" gorm:"type:text"`
	Deleted         bool        `json:"deleted" gorm:"index;not null;default:false"`

	Fingerprint string `json:"fingerprint" gorm:"size:64;uniqueIndex;not null"`

	// Nur während der Ingesta gesetzt (Dataset-Datei der statischen Quelle)
	OriginFileID *uint `json:"-" gorm:"-"`
}

func (Fact) TableName() string { return "facts" }

// FactSource ist eine Quellenangabe eines Hechos. (fact_id, source_id) ist eindeutig.
type FactSource struct {
	ID        uint      `json:"-" gorm:"primaryKey"`
	CreatedAt time.Time `json:"-"`
	FactID    uint      `json:"-" gorm:"index:idx_fact_sources_unique,unique;not null"`
	SourceID  string    `json:"source_id" gorm:"index:idx_fact_sources_unique,unique;size:255;not null"`
}

func (FactSource) TableName() string { return "fact_sources" }

// FactTag ist eine Etiqueta eines Hechos.
type FactTag struct {
	ID     uint   `json:"-" gorm:"primaryKey"`
	FactID uint   `json:"-" gorm:"index:idx_fact_tags_unique,unique;not null"`
	Name   string `json:"name" gorm:"index:idx_fact_tags_unique,unique;size:255;not null"`
}

func (FactTag) TableName() string { return "fact_tags" }

// FactOriginFile verknüpft einen Hecho mit der Dataset-Datei, aus der er stammt.
type FactOriginFile struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	FactID    uint      `json:"fact_id" gorm:"index:idx_fact_origin_files_unique,unique;not null"`
	FileID    uint      `json:"file_id" gorm:"index:idx_fact_origin_files_unique,unique;not null"`
}

func (FactOriginFile) TableName() string { return "fact_origin_files" }

// Contributor ist ein registrierter Aufzeichner von Hechos.
type Contributor struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `json:"name"`
}

func (Contributor) TableName() string { return "contributors" }

func (f *Fact) HasSource(id string) bool {
	for _, s := range f.Sources {
		if s.SourceID == id {
			return true
		}
	}
	return false
}

// AddSource fügt eine Quelle hinzu und meldet, ob sie neu war.
func (f *Fact) AddSource(id string) bool {
	if id == "" || f.HasSource(id) {
		return false
	}
	f.Sources = append(f.Sources, FactSource{FactID: f.ID, SourceID: id})
	return true
}

func (f *Fact) SourceIDs() []string {
	ids := make([]string, 0, len(f.Sources))
	for _, s := range f.Sources {
		ids = append(ids, s.SourceID)
	}
	return ids
}

func (f *Fact) TagNames() []string {
	names := make([]string, 0, len(f.Tags))
	for _, t := range f.Tags {
		names = append(names, t.Name)
	}
	return names
}

// Clone liefert eine tiefe Kopie, damit Speicher-Repositories keine Aliase herausgeben.
func (f Fact) Clone() Fact {
	out := f
	out.Tags = append([]FactTag(nil), f.Tags...)
	out.Sources = append([]FactSource(nil), f.Sources...)
	if f.EventDate != nil {
		d := *f.EventDate
		out.EventDate = &d
	}
	if f.Latitude != nil {
		v := *f.Latitude
		out.Latitude = &v
	}
	if f.Longitude != nil {
		v := *f.Longitude
		out.Longitude = &v
	}
	if f.ContributorID != nil {
		v := *f.ContributorID
		out.ContributorID = &v
	}
	if f.OriginFileID != nil {
		v := *f.OriginFileID
		out.OriginFileID = &v
	}
	return out
}

// Review setzt den Moderationsstatus. Gelöschte Hechos können nicht mehr moderiert werden.
func (f *Fact) Review(state ReviewState, suggestion string) error {
	if f.Deleted {
		return apperr.NewValidation("review_state", "fact is deleted")
	}
	switch state {
	case ReviewPending, ReviewAccepted, ReviewRejected:
		f.SuggestedChange = ""
	case ReviewAcceptedSuggestions:
		if suggestion == "" {
			return apperr.NewValidation("suggested_change", "is required when accepting with suggestions")
		}
		f.SuggestedChange = suggestion
	default:
		return apperr.NewValidation("review_state", "unknown state "+string(state))
	}
	f.ReviewState = state
	return nil
}

// ToRaw wandelt einen Hecho zurück in die Eingabeform. Wird für föderierte Instanzen und Re-Ingesta genutzt.
func (f Fact) ToRaw() RawFact {
	raw := RawFact{
		Title:         f.Title,
		Description:   f.Description,
		Category:      f.Category,
		Tags:          f.TagNames(),
		Latitude:      f.Latitude,
		Longitude:     f.Longitude,
		Country:       f.Country,
		Province:      f.Province,
		Municipality:  f.Municipality,
		Sources:       f.SourceIDs(),
		Origin:        f.Origin,
		ContributorID: f.ContributorID,
		Anonymous:     f.Anonymous,
	}
	if f.EventDate != nil {
		raw.EventDate = RawDate(f.EventDate.UTC().Format("2006-01-02"))
	}
	return raw
}
