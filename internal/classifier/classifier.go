// Package classifier decides which knowledge source should answer a query.
package classifier

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"learning-assistant/internal/models"
)

// Generator is the slice of the chat client the classifier needs.
type Generator interface {
	Generate(ctx context.Context, systemPrompt string, messages []models.Message) (string, error)
}

type Classifier struct {
	llm     Generator
	timeout time.Duration
}

// New returns a classifier bounded by timeout per call; zero means no bound
// beyond the caller's context.
func New(llm Generator, timeout time.Duration) *Classifier {
	return &Classifier{llm: llm, timeout: timeout}
}

// Classify makes exactly one generation call. A failed call falls back to
// the knowledge base so answers stay grounded.
func (c *Classifier) Classify(ctx context.Context, query string) models.Intent {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	prompt := fmt.Sprintf(models.ClassificationPromptTemplate, query)
	out, err := c.llm.Generate(ctx, "", []models.Message{{Role: models.RoleUser, Content: prompt}})
	if err != nil {
		log.Ctx(ctx).Warn().Err(err).Msg("Query classification failed, defaulting to knowledge base")
		return models.IntentKnowledgeBase
	}

	intent := Parse(out)
	log.Ctx(ctx).Info().Str("intent", intent.String()).Msg("Query classified")
	return intent
}

// Parse maps a raw model answer onto an intent.
func Parse(answer string) models.Intent {
	label := strings.ToLower(strings.TrimSpace(answer))
	switch {
	case strings.Contains(label, "knowledge_base"):
		return models.IntentKnowledgeBase
	case strings.Contains(label, "current_events"), strings.Contains(label, "current"):
		return models.IntentCurrentEvents
	default:
		return models.IntentGeneral
	}
}
