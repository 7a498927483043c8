package rag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"learning-assistant/internal/config"
	"learning-assistant/internal/models"
)

// Generator is the chat model used for the final answer.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, messages []models.Message) (string, error)
}

// Composer turns a routed state into the final answer.
type Composer struct {
	llm        Generator
	persona    config.PersonaConfig
	maxHistory int
	timeout    time.Duration
}

func NewComposer(llm Generator, persona config.PersonaConfig, maxHistory int, timeout time.Duration) *Composer {
	return &Composer{
		llm:        llm,
		persona:    persona,
		maxHistory: maxHistory,
		timeout:    timeout,
	}
}

// Compose makes the single final generation call. It never fails: a failed
// call yields the apology text and no sources.
func (c *Composer) Compose(ctx context.Context, state models.AgentState) models.AgentState {
	logger := log.Ctx(ctx)

	contextText, sources := BuildContext(state.RetrievalResults, state.SearchResults)

	systemPrompt := SystemPrompt(state.UserAge, c.persona)
	if contextText != "" {
		systemPrompt += models.ContextInstruction + contextText + models.CiteInstruction
	}

	messages := append(TruncateHistory(state.History, c.maxHistory), models.Message{
		Role:    models.RoleUser,
		Content: state.Query,
	})

	genCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		genCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	response, err := c.llm.Generate(genCtx, systemPrompt, messages)
	if err != nil {
		logger.Error().Err(err).Msg("Response generation failed")
		state.Response = models.ApologyMessage
		state.Sources = []string{}
		return state
	}

	state.Response = response
	state.Sources = DedupSources(sources)
	logger.Info().Int("sources", len(state.Sources)).Msg("Response generated")
	return state
}

// BuildContext renders retrieval or search results and collects their
// sources in result order.
func BuildContext(retrieved []models.RetrievalResult, searched []models.SearchResult) (string, []string) {
	var b strings.Builder
	var sources []string

	if len(retrieved) > 0 {
		b.WriteString(models.KnowledgeBaseHeader)
		for i, r := range retrieved {
			fmt.Fprintf(&b, "\n[Source %d]: %s\n", i+1, r.Text)
			source := r.Metadata[models.MetaSource]
			if source == "" {
				source = models.UnknownSource
			}
			sources = append(sources, source)
		}
		b.WriteString("\n")
	}

	if len(searched) > 0 {
		b.WriteString(models.WebResultsHeader)
		b.WriteString(FormatSearchResults(searched))
		for _, r := range searched {
			sources = append(sources, r.Link)
		}
	}

	return b.String(), sources
}

// FormatSearchResults renders web hits as a numbered list.
func FormatSearchResults(results []models.SearchResult) string {
	if len(results) == 0 {
		return "No search results found."
	}
	var b strings.Builder
	b.WriteString("Web Search Results:\n\n")
	for i, r := range results {
		fmt.Fprintf(&b, "%d. %s\n   %s\n   Source: %s\n\n", i+1, r.Title, r.Snippet, r.Link)
	}
	return b.String()
}

// TruncateHistory keeps the last n messages in their original order.
func TruncateHistory(history []models.Message, n int) []models.Message {
	if n <= 0 || len(history) == 0 {
		return []models.Message{}
	}
	start := max(len(history)-n, 0)
	out := make([]models.Message, len(history)-start, len(history)-start+1)
	copy(out, history[start:])
	return out
}

// DedupSources drops repeats and keeps first-seen order, which is relevance
// order for retrieval results.
func DedupSources(sources []string) []string {
	seen := make(map[string]struct{}, len(sources))
	out := make([]string, 0, len(sources))
	for _, s := range sources {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
