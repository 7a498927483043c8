package websearch

import (
	"context"
	"net/http"

	"learning-assistant/internal/httpx"
	"learning-assistant/internal/models"
)

// Serper queries Google through serper.dev.
type Serper struct {
	apiKey    string
	connector *httpx.Connector
}

func NewSerper(endpoint, apiKey string, opts ...httpx.Option) *Serper {
	opts = append(opts, httpx.WithHeaderAuth("X-API-KEY", apiKey))
	return &Serper{apiKey: apiKey, connector: httpx.NewConnector(endpoint, opts...)}
}

func (s *Serper) Name() string     { return "google" }
func (s *Serper) Configured() bool { return s.apiKey != "" }

type serperRequest struct {
	Q   string `json:"q"`
	Num int    `json:"num,omitempty"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

func (s *Serper) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	var resp serperResponse
	if err := s.connector.DoRequest(ctx, http.MethodPost, "", serperRequest{Q: query, Num: maxResults}, &resp); err != nil {
		return nil, err
	}

	results := make([]models.SearchResult, 0, len(resp.Organic))
	for _, r := range resp.Organic {
		results = append(results, models.SearchResult{Title: r.Title, Snippet: r.Snippet, Link: r.Link})
	}
	return results, nil
}
