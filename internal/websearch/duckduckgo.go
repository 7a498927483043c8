package websearch

import (
	"context"
	"net/http"
	"strings"

	"learning-assistant/internal/httpx"
	"learning-assistant/internal/models"
)

// DuckDuckGo reads the keyless instant answer API. It returns the abstract,
// when there is one, followed by related topics.
type DuckDuckGo struct {
	connector *httpx.Connector
}

func NewDuckDuckGo(endpoint string, opts ...httpx.Option) *DuckDuckGo {
	return &DuckDuckGo{connector: httpx.NewConnector(endpoint, opts...)}
}

func (d *DuckDuckGo) Name() string     { return "duckduckgo" }
func (d *DuckDuckGo) Configured() bool { return true }

type ddgTopic struct {
	Text     string     `json:"Text"`
	FirstURL string     `json:"FirstURL"`
	Name     string     `json:"Name"`
	Topics   []ddgTopic `json:"Topics"`
}

type ddgResponse struct {
	Heading       string     `json:"Heading"`
	AbstractText  string     `json:"AbstractText"`
	AbstractURL   string     `json:"AbstractURL"`
	RelatedTopics []ddgTopic `json:"RelatedTopics"`
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	var resp ddgResponse
	err := d.connector.DoRequest(ctx, http.MethodGet, "", nil, &resp,
		httpx.WithQuery("q", query),
		httpx.WithQuery("format", "json"),
		httpx.WithQuery("no_html", "1"),
		httpx.WithQuery("skip_disambig", "1"),
	)
	if err != nil {
		return nil, err
	}

	var results []models.SearchResult
	if resp.AbstractText != "" {
		results = append(results, models.SearchResult{
			Title:   resp.Heading,
			Snippet: resp.AbstractText,
			Link:    resp.AbstractURL,
		})
	}
	results = appendTopics(results, resp.RelatedTopics, maxResults)
	return results, nil
}

// appendTopics flattens grouped topics until limit results are collected.
func appendTopics(results []models.SearchResult, topics []ddgTopic, limit int) []models.SearchResult {
	for _, t := range topics {
		if len(results) >= limit {
			return results
		}
		if len(t.Topics) > 0 {
			results = appendTopics(results, t.Topics, limit)
			continue
		}
		if t.FirstURL == "" || t.Text == "" {
			continue
		}
		title := t.Text
		if i := strings.Index(t.Text, " - "); i > 0 {
			title = t.Text[:i]
		}
		results = append(results, models.SearchResult{Title: title, Snippet: t.Text, Link: t.FirstURL})
	}
	return results
}
