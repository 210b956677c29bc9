package remote

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewDerivesID(t *testing.T) {
	s, err := New("https://metamapa.example.org/", zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.Equal(t, "proxy:metamapa.example.org", s.ID())
	assert.Equal(t, Type, s.Type())

	_, err = New("not a url", zaptest.NewLogger(t))
	assert.Error(t, err)
}

func TestListFactsDropsForeignProvenance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/public/hechos", r.URL.Path)
		_, _ = w.Write([]byte(`[
			{"id": 1, "title": "incendio", "category": "incendio", "event_date": "2024-05-02T00:00:00Z",
			 "sources": [{"source_id": "dinamica"}], "contributor_id": 4, "origin": "dinamica", "corroborations": 3},
			{"id": 2, "title": "borrado", "deleted": true}
		]`))
	}))
	defer srv.Close()

	s, err := New(srv.URL, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(s.ID(), "proxy:127.0.0.1"))

	facts, err := s.ListFacts(context.Background())
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, "incendio", facts[0].Title)
	assert.Equal(t, "2024-05-02", string(facts[0].EventDate))
	assert.Nil(t, facts[0].Sources)
	assert.Nil(t, facts[0].ContributorID)
	assert.Empty(t, facts[0].Origin)
	assert.Nil(t, facts[0].ExternalID)
}
