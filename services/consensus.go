package services

import (
	"metamapa/models"
)

// FilterConfirmed wendet die Konsens-Strategie an (filtrarConsensuados).
// perSource enthält eine Liste je Quelle; ein Titel zählt pro Quelle höchstens einmal.
// Identität ist der Titel, nicht der Fingerprint.
func FilterConfirmed(alg models.ConsensusAlgorithm, all []models.Fact, perSource [][]models.Fact) []models.Fact {
	if !alg.Valid() || alg == models.AcceptAll {
		return all
	}
	if len(perSource) == 0 {
		return []models.Fact{}
	}

	threshold := Threshold(alg, len(perSource))
	occurrences := titleOccurrences(perSource)

	confirmed := make([]models.Fact, 0, len(all))
	for _, f := range all {
		if occurrences[f.Title] >= threshold {
			confirmed = append(confirmed, f)
		}
	}
	return confirmed
}

// Threshold liefert die minimale Anzahl an Quellen, die einen Titel melden müssen.
func Threshold(alg models.ConsensusAlgorithm, sources int) int {
	switch alg {
	case models.Unanimous:
		return sources
	case models.SimpleMajority:
		return (sources + 1) / 2
	case models.MultipleMentions:
		return 2
	default:
		return 0
	}
}

func titleOccurrences(perSource [][]models.Fact) map[string]int {
	counts := make(map[string]int)
	for _, partition := range perSource {
		seen := make(map[string]struct{}, len(partition))
		for _, f := range partition {
			if _, ok := seen[f.Title]; ok {
				continue
			}
			seen[f.Title] = struct{}{}
			counts[f.Title]++
		}
	}
	return counts
}
