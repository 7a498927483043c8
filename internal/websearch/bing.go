package websearch

import (
	"context"
	"net/http"
	"strconv"

	"learning-assistant/internal/httpx"
	"learning-assistant/internal/models"
)

// Bing uses the Bing Web Search v7 API.
type Bing struct {
	apiKey    string
	connector *httpx.Connector
}

func NewBing(endpoint, apiKey string, opts ...httpx.Option) *Bing {
	opts = append(opts, httpx.WithHeaderAuth("Ocp-Apim-Subscription-Key", apiKey))
	return &Bing{apiKey: apiKey, connector: httpx.NewConnector(endpoint, opts...)}
}

func (b *Bing) Name() string     { return "bing" }
func (b *Bing) Configured() bool { return b.apiKey != "" }

type bingResponse struct {
	WebPages struct {
		Value []struct {
			Name    string `json:"name"`
			URL     string `json:"url"`
			Snippet string `json:"snippet"`
		} `json:"value"`
	} `json:"webPages"`
}

func (b *Bing) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	var resp bingResponse
	err := b.connector.DoRequest(ctx, http.MethodGet, "", nil, &resp,
		httpx.WithQuery("q", query),
		httpx.WithQuery("count", strconv.Itoa(maxResults)),
	)
	if err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(resp.WebPages.Value))
	for _, r := range resp.WebPages.Value {
		results = append(results, models.SearchResult{Title: r.Name, Snippet: r.Snippet, Link: r.URL})
	}
	return results, nil
}
