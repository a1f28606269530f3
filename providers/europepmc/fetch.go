package europepmc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"journalhub/providers"
)

// DefaultBaseURL ist der produktive Such-Endpunkt von Europe PMC.
const DefaultBaseURL = "https://www.ebi.ac.uk/europepmc/webservices/rest/search"

var httpClient = &http.Client{Timeout: 60 * time.Second}

// Fetcher implementiert das Source-Interface für Europe PMC.
type Fetcher struct {
	BaseURL string
	Logger  *zap.Logger
}

// NewFetcher erstellt einen neuen Europe PMC Fetcher. Eine leere baseURL
// fällt auf den produktiven Endpunkt zurück.
func NewFetcher(baseURL string, logger *zap.Logger) *Fetcher {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Fetcher{BaseURL: baseURL, Logger: logger}
}

// Name gibt den Namen der Quelle zurück.
func (f *Fetcher) Name() string {
	return "europepmc"
}

// WorksByAuthor sucht alle Arbeiten eines Autors und liefert sie samt
// Zitatanzahl. Arbeiten ohne DOI werden übersprungen, sie lassen sich
// keiner Paper-Identität zuordnen.
func (f *Fetcher) WorksByAuthor(ctx context.Context, author string) ([]providers.Work, error) {
	log := f.Logger.With(zap.String("author", author))
	log.Info("Starte Autoren-Suche auf Europe PMC.")

	query := fmt.Sprintf("AUTH:%q", author)
	searchURL := fmt.Sprintf("%s?query=%s&format=json&resultType=core", f.BaseURL, url.QueryEscape(query))
	log.Debug("Rufe Europe PMC API auf", zap.String("url", searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("europepmc: unexpected status %d", resp.StatusCode)
	}

	var searchResponse SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResponse); err != nil {
		return nil, err
	}

	var works []providers.Work
	for _, article := range searchResponse.ResultList.Result {
		if article.DOI == "" {
			continue
		}
		works = append(works, providers.Work{
			DOI:       article.DOI,
			Title:     article.Title,
			Citations: article.CitedByCount,
		})
	}

	log.Info("Autoren-Suche auf Europe PMC abgeschlossen", zap.Int("found_works", len(works)))
	return works, nil
}
