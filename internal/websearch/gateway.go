// Package websearch fetches live results from a web search provider.
package websearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"learning-assistant/internal/config"
	"learning-assistant/internal/httpx"
	"learning-assistant/internal/models"
)

var (
	ErrSearchDisabled = errors.New("web search is disabled")
	ErrNoProvider     = errors.New("no search provider available")
)

// Provider is a single search backend.
type Provider interface {
	Name() string
	// Configured reports whether the provider has what it needs to be called.
	Configured() bool
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

// Gateway picks one provider per query: the primary when it is configured,
// otherwise the secondary. Results are never merged and a failing provider is
// not retried against the other one.
type Gateway struct {
	enabled    bool
	maxResults int
	primary    Provider
	secondary  Provider
}

func New(enabled bool, maxResults int, primary, secondary Provider) *Gateway {
	return &Gateway{
		enabled:    enabled,
		maxResults: maxResults,
		primary:    primary,
		secondary:  secondary,
	}
}

// NewGateway wires the configured primary with DuckDuckGo as the keyless
// secondary.
func NewGateway(cfg config.SearchConfig, timeout time.Duration) *Gateway {
	opts := []httpx.Option{httpx.WithRequestTimeout(timeout), httpx.WithRequestLogging()}

	ddg := NewDuckDuckGo(cfg.DuckDuckGoURL, opts...)
	var primary, secondary Provider
	switch cfg.Primary {
	case "bing":
		primary, secondary = NewBing(cfg.BingURL, cfg.BingKey, opts...), ddg
	case "duckduckgo":
		primary = ddg
	default:
		primary, secondary = NewSerper(cfg.SerperURL, cfg.SerperKey, opts...), ddg
	}
	return New(cfg.Enabled, cfg.MaxResults, primary, secondary)
}

func (g *Gateway) Enabled() bool {
	return g.enabled
}

// Active returns the provider the next query would use, or nil.
func (g *Gateway) Active() Provider {
	if !g.enabled {
		return nil
	}
	if g.primary != nil && g.primary.Configured() {
		return g.primary
	}
	if g.secondary != nil && g.secondary.Configured() {
		return g.secondary
	}
	return nil
}

// Search returns at most maxResults hits, tagged with the provider name.
// maxResults <= 0 uses the configured default.
func (g *Gateway) Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error) {
	if !g.enabled {
		return nil, ErrSearchDisabled
	}
	p := g.Active()
	if p == nil {
		return nil, ErrNoProvider
	}
	if maxResults <= 0 {
		maxResults = g.maxResults
	}

	logger := log.Ctx(ctx)
	logger.Info().Str("provider", p.Name()).Str("query", query).Msg("Searching web")

	results, err := p.Search(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("%s search failed: %w", p.Name(), err)
	}
	if len(results) > maxResults {
		results = results[:maxResults]
	}
	for i := range results {
		results[i].Provider = p.Name()
	}

	logger.Info().Str("provider", p.Name()).Int("results", len(results)).Msg("Web search done")
	return results, nil
}
