package dynamic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestListFacts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": 5, "title": "Bache enorme", "category": "Vialidad", "latitude": -34.6, "longitude": -58.4, "contributor_id": 3},
			{"title": "Anonimo", "anonymous": true, "event_date": "2024-03-01"}
		]`))
	}))
	defer srv.Close()

	s := New("dinamica", srv.URL, zaptest.NewLogger(t))
	assert.Equal(t, "dinamica", s.ID())
	assert.Equal(t, Type, s.Type())

	facts, err := s.ListFacts(context.Background())
	require.NoError(t, err)
	require.Len(t, facts, 2)
	assert.Equal(t, "Bache enorme", facts[0].Title)
	require.NotNil(t, facts[0].ContributorID)
	assert.Equal(t, uint(3), *facts[0].ContributorID)
	assert.True(t, facts[1].Anonymous)
}

func TestListFactsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New("dinamica", srv.URL, zaptest.NewLogger(t)).ListFacts(context.Background())
	assert.Error(t, err)
}
