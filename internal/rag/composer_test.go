package rag

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"learning-assistant/internal/config"
	"learning-assistant/internal/models"
)

func TestSystemPrompt(t *testing.T) {
	age := func(n int) *int { return &n }

	tests := []struct {
		name    string
		age     *int
		persona config.PersonaConfig
		want    string
	}{
		{"child", age(10), persona, models.ChildSystemPrompt},
		{"child upper bound", age(12), persona, models.ChildSystemPrompt},
		{"teen", age(15), persona, models.TeenSystemPrompt},
		{"teen upper bound", age(17), persona, models.TeenSystemPrompt},
		{"adult", age(30), persona, models.AdultSystemPrompt},
		{"no age", nil, persona, models.DefaultSystemPrompt},
		{"disabled", age(10), config.PersonaConfig{Enabled: false, ChildMax: 12, TeenMax: 17}, models.DefaultSystemPrompt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SystemPrompt(tt.age, tt.persona))
		})
	}
}

func TestTruncateHistory(t *testing.T) {
	h := []models.Message{{Content: "1"}, {Content: "2"}, {Content: "3"}}

	assert.Equal(t, h[1:], TruncateHistory(h, 2))
	assert.Equal(t, h, TruncateHistory(h, 10))
	assert.Empty(t, TruncateHistory(h, 0))
	assert.Empty(t, TruncateHistory(h, -1))
	assert.Empty(t, TruncateHistory(nil, 5))
}

func TestDedupSources(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, DedupSources([]string{"b", "a", "b", "c", "a"}))
	assert.Equal(t, []string{}, DedupSources(nil))
}

func TestBuildContext(t *testing.T) {
	text, sources := BuildContext([]models.RetrievalResult{
		{Text: "chunk one", Metadata: models.Metadata{models.MetaSource: "a.pdf"}},
		{Text: "chunk two"},
	}, nil)

	assert.Contains(t, text, "=== Relevant Information from Knowledge Base ===")
	assert.Contains(t, text, "[Source 1]: chunk one")
	assert.Contains(t, text, "[Source 2]: chunk two")
	assert.Equal(t, []string{"a.pdf", models.UnknownSource}, sources)

	text, sources = BuildContext(nil, nil)
	assert.Empty(t, text)
	assert.Empty(t, sources)
}

func TestFormatSearchResults(t *testing.T) {
	assert.Equal(t, "No search results found.", FormatSearchResults(nil))
	assert.Equal(t,
		"Web Search Results:\n\n1. Title\n   Snippet\n   Source: https://x.example\n\n",
		FormatSearchResults([]models.SearchResult{{Title: "Title", Snippet: "Snippet", Link: "https://x.example"}}),
	)
}

func TestCompose_GenerationTimeout(t *testing.T) {
	llm := generatorFunc(func(ctx context.Context, _ string, _ []models.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	c := NewComposer(llm, persona, 10, 10*time.Millisecond)

	out := c.Compose(context.Background(), models.AgentState{
		Query:            "q",
		RetrievalResults: []models.RetrievalResult{{Text: "t", Metadata: models.Metadata{models.MetaSource: "a"}}},
	})

	assert.Equal(t, models.ApologyMessage, out.Response)
	assert.Empty(t, out.Sources)
}

func TestCompose_DoesNotMutateInput(t *testing.T) {
	llm := generatorFunc(func(context.Context, string, []models.Message) (string, error) {
		return "", errors.New("fail")
	})
	in := models.AgentState{Query: "q", Response: "before"}

	out := NewComposer(llm, persona, 10, 0).Compose(context.Background(), in)

	assert.Equal(t, "before", in.Response)
	assert.Equal(t, models.ApologyMessage, out.Response)
}

type generatorFunc func(ctx context.Context, systemPrompt string, messages []models.Message) (string, error)

func (f generatorFunc) Generate(ctx context.Context, systemPrompt string, messages []models.Message) (string, error) {
	return f(ctx, systemPrompt, messages)
}
