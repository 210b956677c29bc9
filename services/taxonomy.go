package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// FallbackCategory wird vergeben, wenn keine Kategorie bestimmt werden kann.
const FallbackCategory = "otros/desconocido"

const otherSuffix = "otros"

// CategoryResolver bestimmt den kanonischen Kategoriepfad eines Hechos.
type CategoryResolver interface {
	Classify(title, description, hint string) string
}

// PassThroughResolver übernimmt die gelieferte Kategorie (klein, getrimmt).
type PassThroughResolver struct{}

func (PassThroughResolver) Classify(_, _, hint string) string {
	hint = strings.ToLower(strings.TrimSpace(hint))
	if hint == "" {
		return FallbackCategory
	}
	return hint
}

// TaxonomyNode ist ein Knoten der Taxonomie. Blätter tragen Schlüsselwörter.
type TaxonomyNode struct {
	Name     string         `yaml:"name"`
	Keywords []string       `yaml:"keywords,omitempty"`
	Children []TaxonomyNode `yaml:"children,omitempty"`
}

//go:embed taxonomy_default.yaml
var defaultTaxonomy []byte

// TaxonomyResolver klassifiziert über Schlüsselwort-Treffer auf drei Ebenen (macro, rama, hoja).
type TaxonomyResolver struct {
	roots     []TaxonomyNode
	threshold int
	canonical map[string]struct{}
}

// NewTaxonomyResolver parst eine YAML-Taxonomie. Schlüsselwörter werden wie Texte normalisiert.
func NewTaxonomyResolver(data []byte) (*TaxonomyResolver, error) {
	var roots []TaxonomyNode
	if err := yaml.Unmarshal(data, &roots); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("taxonomy has no nodes")
	}
	r := &TaxonomyResolver{threshold: 1, canonical: map[string]struct{}{FallbackCategory: {}}}
	for i := range roots {
		normalizeKeywords(&roots[i])
	}
	r.roots = roots
	for _, macro := range roots {
		r.canonical[macro.Name+"/"+otherSuffix] = struct{}{}
		for _, branch := range macro.Children {
			r.canonical[macro.Name+"/"+branch.Name+"/"+otherSuffix] = struct{}{}
			for _, leaf := range branch.Children {
				r.canonical[macro.Name+"/"+branch.Name+"/"+leaf.Name] = struct{}{}
			}
		}
	}
	return r, nil
}

// DefaultTaxonomyResolver nutzt die eingebettete Demo-Taxonomie.
func DefaultTaxonomyResolver() *TaxonomyResolver {
	r, err := NewTaxonomyResolver(defaultTaxonomy)
	if err != nil {
		panic(err)
	}
	return r
}

// LoadTaxonomyFile lädt die Taxonomie aus einer Datei; leerer Pfad ergibt die Standard-Taxonomie.
func LoadTaxonomyFile(path string) (*TaxonomyResolver, error) {
	if path == "" {
		return DefaultTaxonomyResolver(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewTaxonomyResolver(data)
}

func normalizeKeywords(n *TaxonomyNode) {
	for i, k := range n.Keywords {
		n.Keywords[i] = NormalizeText(k)
	}
	for i := range n.Children {
		normalizeKeywords(&n.Children[i])
	}
}

// Classify liefert einen kanonischen Pfad. Ein Hinweis, der bereits kanonisch ist, wird übernommen.
func (r *TaxonomyResolver) Classify(title, description, hint string) string {
	if path := strings.ToLower(strings.TrimSpace(hint)); path != "" {
		if _, ok := r.canonical[path]; ok {
			return path
		}
	}

	text := NormalizeText(strings.Join([]string{title, description, hint}, " "))

	macro, ok := r.best(r.roots, text)
	if !ok {
		return FallbackCategory
	}
	branch, ok := r.best(macro.Children, text)
	if !ok {
		return macro.Name + "/" + otherSuffix
	}
	leaf, ok := r.best(branch.Children, text)
	if !ok {
		return macro.Name + "/" + branch.Name + "/" + otherSuffix
	}
	return macro.Name + "/" + branch.Name + "/" + leaf.Name
}

// best wählt den Knoten mit dem höchsten Score; bei Gleichstand gewinnt der erste.
func (r *TaxonomyResolver) best(nodes []TaxonomyNode, text string) (TaxonomyNode, bool) {
	bestScore := 0
	var winner TaxonomyNode
	for _, n := range nodes {
		if s := score(n, text); s > bestScore {
			bestScore, winner = s, n
		}
	}
	return winner, bestScore >= r.threshold
}

func score(n TaxonomyNode, text string) int {
	total := 0
	for _, k := range n.Keywords {
		if k != "" && strings.Contains(text, k) {
			total++
		}
	}
	for _, c := range n.Children {
		total += score(c, text)
	}
	return total
}
