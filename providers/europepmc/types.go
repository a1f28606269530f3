package europepmc

// SearchResponse ist die Top-Level-Struktur der Europe PMC API-Antwort.
type SearchResponse struct {
	HitCount   int `json:"hitCount"`
	ResultList struct {
		Result []Article `json:"result"`
	} `json:"resultList"`
}

// Article repräsentiert einen einzelnen Artikel in der API-Antwort. Von den
// vielen Feldern der core-Antwort brauchen wir nur Identität und Zitatzähler.
type Article struct {
	ID           string `json:"id"`
	Source       string `json:"source"`
	DOI          string `json:"doi"`
	Title        string `json:"title"`
	AuthorString string `json:"authorString"`
	CitedByCount int    `json:"citedByCount"`
}
