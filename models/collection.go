package models

import (
	"time"
)

// CriterionKind benennt die Art eines Pertenencia-Kriteriums.
type CriterionKind string

const (
	CriterionCategory    CriterionKind = "CATEGORIA"
	CriterionTitle       CriterionKind = "TITULO"
	CriterionDescription CriterionKind = "DESCRIPCION"
	CriterionLoadDate    CriterionKind = "FECHA_CARGA"
	CriterionEventDate   CriterionKind = "FECHA_ACONTECIMIENTO"
	CriterionLocation    CriterionKind = "UBICACION"
)

// Collection ist eine kuratierte Sicht auf Hechos aus einer Menge von Quellen.
type Collection struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Handle      string `json:"handle" gorm:"size:128;uniqueIndex;not null"`
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	AdminID     *uint  `json:"admin_id,omitempty"`

	Algorithm       ConsensusAlgorithm `json:"algorithm" gorm:"size:32;not null;default:por_defecto"`
	Hidden          bool               `json:"hidden" gorm:"index;not null;default:false"`
	LastRefreshedAt *time.Time         `json:"last_refreshed_at,omitempty"`

	Sources  []CollectionSource    `json:"sources,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Criteria []CollectionCriterion `json:"criteria,omitempty" gorm:"constraint:OnDelete:CASCADE"`
	Members  []CollectionFact      `json:"-" gorm:"constraint:OnDelete:CASCADE"`
}

func (Collection) TableName() string { return "collections" }

// CollectionSource ordnet einer Colección eine Quelle zu.
type CollectionSource struct {
	ID           uint   `json:"-" gorm:"primaryKey"`
	CollectionID uint   `json:"-" gorm:"index:idx_collection_sources_unique,unique;not null"`
	SourceID     string `json:"source_id" gorm:"index:idx_collection_sources_unique,unique;size:255;not null"`
}

func (CollectionSource) TableName() string { return "collection_sources" }

// CollectionCriterion ist ein Pertenencia-Kriterium. Welche Felder genutzt werden, hängt von Kind ab.
type CollectionCriterion struct {
	ID           uint          `json:"-" gorm:"primaryKey"`
	CollectionID uint          `json:"-" gorm:"index;not null"`
	Kind         CriterionKind `json:"kind" gorm:"size:32;not null"`

	Value string     `json:"value,omitempty"`
	From  *time.Time `json:"from,omitempty"`
	To    *time.Time `json:"to,omitempty"`

	Country      string `json:"country,omitempty"`
	Province     string `json:"province,omitempty"`
	Municipality string `json:"municipality,omitempty"`
}

func (CollectionCriterion) TableName() string { return "collection_criteria" }

// CollectionFact ist die persistierte Mitgliedschaft eines Hechos in einer Colección.
type CollectionFact struct {
	CollectionID uint  `json:"collection_id" gorm:"primaryKey"`
	FactID       uint  `json:"fact_id" gorm:"primaryKey"`
	Fact         *Fact `json:"fact,omitempty" gorm:"foreignKey:FactID;constraint:OnDelete:CASCADE"`
	Confirmed    bool  `json:"confirmed" gorm:"not null;default:false"`
}

func (CollectionFact) TableName() string { return "collection_facts" }

func (c *Collection) SourceIDs() []string {
	ids := make([]string, 0, len(c.Sources))
	for _, s := range c.Sources {
		ids = append(ids, s.SourceID)
	}
	return ids
}

// Clone liefert eine tiefe Kopie inklusive Mitgliedschaften.
func (c Collection) Clone() Collection {
	out := c
	out.Sources = append([]CollectionSource(nil), c.Sources...)
	out.Criteria = append([]CollectionCriterion(nil), c.Criteria...)
	out.Members = make([]CollectionFact, 0, len(c.Members))
	for _, m := range c.Members {
		if m.Fact != nil {
			f := m.Fact.Clone()
			m.Fact = &f
		}
		out.Members = append(out.Members, m)
	}
	if c.LastRefreshedAt != nil {
		t := *c.LastRefreshedAt
		out.LastRefreshedAt = &t
	}
	return out
}
