package services

import (
	"strings"
	"time"

	"metamapa/models"
)

// MatchesCriteria prüft alle Pertenencia-Kriterien einer Colección. Ohne Kriterien passt jeder Hecho.
func MatchesCriteria(criteria []models.CollectionCriterion, f models.Fact, places PlaceResolver) bool {
	for _, c := range criteria {
		if !MatchesCriterion(c, f, places) {
			return false
		}
	}
	return true
}

// MatchesCriterion wertet ein einzelnes Kriterium aus. Unbekannte Arten akzeptieren alles.
func MatchesCriterion(c models.CollectionCriterion, f models.Fact, places PlaceResolver) bool {
	switch c.Kind {
	case models.CriterionCategory:
		return strings.EqualFold(strings.TrimSpace(c.Value), f.Category)
	case models.CriterionTitle:
		return strings.Contains(NormalizeText(f.Title), NormalizeText(c.Value))
	case models.CriterionDescription:
		return strings.Contains(NormalizeText(f.Description), NormalizeText(c.Value))
	case models.CriterionLoadDate:
		created := f.CreatedAt
		return inRange(&created, c.From, c.To)
	case models.CriterionEventDate:
		return inRange(f.EventDate, c.From, c.To)
	case models.CriterionLocation:
		return matchesPlace(c, f, places)
	default:
		return true
	}
}

func inRange(t, from, to *time.Time) bool {
	if t == nil || t.IsZero() {
		return false
	}
	if from != nil && t.Before(*from) {
		return false
	}
	if to != nil && t.After(*to) {
		return false
	}
	return true
}

func matchesPlace(c models.CollectionCriterion, f models.Fact, places PlaceResolver) bool {
	// Gespeicherte Ortsangaben haben Vorrang, Koordinaten nur als Rückfall.
	p := Place{Country: f.Country, Province: f.Province, Municipality: f.Municipality}
	if p == (Place{}) && f.Latitude != nil && f.Longitude != nil && places != nil {
		p = places.Resolve(*f.Latitude, *f.Longitude)
	}
	return placeField(c.Country, p.Country) &&
		placeField(c.Province, p.Province) &&
		placeField(c.Municipality, p.Municipality)
}

func placeField(want, got string) bool {
	if strings.TrimSpace(want) == "" {
		return true
	}
	return NormalizeText(want) == NormalizeText(got)
}
