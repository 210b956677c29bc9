package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"metamapa/models"
)

// Source ist das Interface, das jede Quelle (dinamica, estatica, proxy) implementieren muss.
type Source interface {
	// ListFacts liefert die aktuellen Hechos der Quelle. Muss wiederholt aufrufbar sein.
	ListFacts(ctx context.Context) ([]models.RawFact, error)

	// ID gibt den stabilen Bezeichner der Quelle zurück (z.B. "dinamica").
	ID() string

	// Type gibt den Quelltyp zurück.
	Type() string
}

// Registry hält die registrierten Quellen in Registrierungsreihenfolge.
type Registry struct {
	ordered []Source
	byID    map[string]Source
}

func NewRegistry(srcs ...Source) (*Registry, error) {
	r := &Registry{byID: make(map[string]Source)}
	for _, s := range srcs {
		if err := r.Register(s); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(s Source) error {
	if _, ok := r.byID[s.ID()]; ok {
		return fmt.Errorf("source %q already registered", s.ID())
	}
	r.byID[s.ID()] = s
	r.ordered = append(r.ordered, s)
	return nil
}

func (r *Registry) All() []Source {
	return append([]Source(nil), r.ordered...)
}

func (r *Registry) Get(id string) (Source, bool) {
	s, ok := r.byID[id]
	return s, ok
}

func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.ordered))
	for _, s := range r.ordered {
		ids = append(ids, s.ID())
	}
	return ids
}

// httpClient wird von allen HTTP-Quellen verwendet.
var httpClient = &http.Client{Timeout: 30 * time.Second}

// GetJSON ruft url auf und dekodiert die JSON-Antwort nach out.
func GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", url, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
