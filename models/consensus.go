package models

import "strings"

// ConsensusAlgorithm ist das persistierte Token einer Konsens-Strategie.
type ConsensusAlgorithm string

const (
	AcceptAll        ConsensusAlgorithm = "por_defecto"
	SimpleMajority   ConsensusAlgorithm = "mayoria_simple"
	MultipleMentions ConsensusAlgorithm = "multiples_menciones"
	Unanimous        ConsensusAlgorithm = "absoluta"
)

var algorithmAliases = map[string]ConsensusAlgorithm{
	"por_defecto":         AcceptAll,
	"default":             AcceptAll,
	"accept_all":          AcceptAll,
	"mayoria_simple":      SimpleMajority,
	"mayoría_simple":      SimpleMajority,
	"simple_majority":     SimpleMajority,
	"majority":            SimpleMajority,
	"multiples_menciones": MultipleMentions,
	"múltiples_menciones": MultipleMentions,
	"multiple_mentions":   MultipleMentions,
	"absoluta":            Unanimous,
	"absolute":            Unanimous,
	"unanimous":           Unanimous,
}

// ParseAlgorithm löst einen Namen zu einem Token auf. Leere oder unbekannte Namen ergeben AcceptAll.
func ParseAlgorithm(name string) ConsensusAlgorithm {
	alg, _ := LookupAlgorithm(name)
	return alg
}

// LookupAlgorithm meldet zusätzlich, ob der Name bekannt war.
func LookupAlgorithm(name string) (ConsensusAlgorithm, bool) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if alg, ok := algorithmAliases[key]; ok {
		return alg, true
	}
	return AcceptAll, false
}

func (a ConsensusAlgorithm) Valid() bool {
	switch a {
	case AcceptAll, SimpleMajority, MultipleMentions, Unanimous:
		return true
	}
	return false
}
