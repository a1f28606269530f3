package europepmc

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWorksByAuthor(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"hitCount": 3,
			"resultList": {"result": [
				{"id": "1", "doi": "10.1000/a", "title": "First", "citedByCount": 12},
				{"id": "2", "doi": "", "title": "No DOI", "citedByCount": 99},
				{"id": "3", "doi": "10.1000/b", "title": "Second", "citedByCount": 0}
			]}
		}`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, zap.NewNop())
	works, err := f.WorksByAuthor(context.Background(), "Doe J")
	require.NoError(t, err)

	assert.Equal(t, `AUTH:"Doe J"`, gotQuery)
	require.Len(t, works, 2, "Arbeiten ohne DOI werden übersprungen")
	assert.Equal(t, "10.1000/a", works[0].DOI)
	assert.Equal(t, 12, works[0].Citations)
	assert.Equal(t, "10.1000/b", works[1].DOI)
	assert.Equal(t, 0, works[1].Citations)
}

func TestWorksByAuthorUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, zap.NewNop())
	_, err := f.WorksByAuthor(context.Background(), "Doe J")
	assert.Error(t, err)
}

func TestNewFetcherDefaultsBaseURL(t *testing.T) {
	f := NewFetcher("", zap.NewNop())
	assert.Equal(t, DefaultBaseURL, f.BaseURL)
}
