// Package rag routes each question to the knowledge base, the web or the
// model alone, then composes the final answer.
package rag

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"learning-assistant/internal/models"
)

type IntentClassifier interface {
	Classify(ctx context.Context, query string) models.Intent
}

// Retriever returns an empty slice on any failure.
type Retriever interface {
	SimilaritySearch(ctx context.Context, query string, k int, scoreThreshold float32, filter map[string]string) []models.RetrievalResult
}

type Searcher interface {
	Search(ctx context.Context, query string, maxResults int) ([]models.SearchResult, error)
}

type Options struct {
	TopK             int
	ScoreThreshold   float32
	MaxSearchResults int
	RetrieveTimeout  time.Duration
	SearchTimeout    time.Duration
	// Model is reported in every answer; the app sets it to the LLM provider.
	Model string
}

type Request struct {
	Query   string
	History []models.Message
	UserAge *int
}

type Answer struct {
	Content  string       `json:"content"`
	Sources  []string     `json:"sources"`
	Route    models.Route `json:"route"`
	Model    string       `json:"model"`
	Fallback bool         `json:"fallback"`
}

// Orchestrator is built once and shared by all requests; per-request data
// lives only in the AgentState value passed between stages.
type Orchestrator struct {
	classifier IntentClassifier
	retriever  Retriever
	searcher   Searcher
	composer   *Composer
	opts       Options
}

func NewOrchestrator(classifier IntentClassifier, retriever Retriever, searcher Searcher, composer *Composer, opts Options) *Orchestrator {
	return &Orchestrator{
		classifier: classifier,
		retriever:  retriever,
		searcher:   searcher,
		composer:   composer,
		opts:       opts,
	}
}

type stage int

const (
	stageRoutePending stage = iota
	stageRetrieve
	stageSearch
	stageGenerateDirect
	stageGenerateFinal
	stageDone
)

func (s stage) String() string {
	switch s {
	case stageRoutePending:
		return "route_pending"
	case stageRetrieve:
		return "retrieve"
	case stageSearch:
		return "search"
	case stageGenerateDirect:
		return "generate_direct"
	case stageGenerateFinal:
		return "generate_final"
	case stageDone:
		return "done"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Answer runs the pipeline to completion. It never returns an error: every
// failure becomes a fallback or the apology text.
func (o *Orchestrator) Answer(ctx context.Context, req Request) (ans Answer) {
	logger := log.Ctx(ctx)
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("Agent processing failed")
			ans = Answer{
				Content: models.ApologyMessage,
				Sources: []string{},
				Route:   models.RouteError,
				Model:   o.opts.Model,
			}
		}
	}()

	logger.Info().Str("query", truncate(req.Query, 100)).Msg("Processing query")

	state := models.AgentState{
		Query:   req.Query,
		History: req.History,
		UserAge: req.UserAge,
	}

	visited := make(map[stage]bool, int(stageDone))
	for st := stageRoutePending; st != stageDone; {
		if visited[st] {
			panic(fmt.Sprintf("stage %s revisited", st))
		}
		visited[st] = true
		st, state = o.step(ctx, st, state)
	}

	sources := state.Sources
	if sources == nil {
		sources = []string{}
	}
	return Answer{
		Content:  state.Response,
		Sources:  sources,
		Route:    state.Route,
		Model:    o.opts.Model,
		Fallback: state.Fallback,
	}
}

// step runs one stage and returns the next stage with the updated state.
func (o *Orchestrator) step(ctx context.Context, st stage, state models.AgentState) (stage, models.AgentState) {
	switch st {
	case stageRoutePending:
		return o.route(ctx, state)
	case stageRetrieve:
		return stageGenerateFinal, o.retrieve(ctx, state)
	case stageSearch:
		return stageGenerateFinal, o.search(ctx, state)
	case stageGenerateDirect:
		return stageGenerateFinal, state
	case stageGenerateFinal:
		return stageDone, o.composer.Compose(ctx, state)
	}
	panic(fmt.Sprintf("unknown stage %s", st))
}

func (o *Orchestrator) route(ctx context.Context, state models.AgentState) (stage, models.AgentState) {
	state.Intent = o.classifier.Classify(ctx, state.Query)
	state.Route = state.Intent.Route()

	log.Ctx(ctx).Info().Str("route", string(state.Route)).Msg("Query routed")

	switch state.Intent {
	case models.IntentKnowledgeBase:
		return stageRetrieve, state
	case models.IntentCurrentEvents:
		return stageSearch, state
	case models.IntentGeneral:
		return stageGenerateDirect, state
	}
	panic(fmt.Sprintf("unhandled intent %s", state.Intent))
}

func (o *Orchestrator) retrieve(ctx context.Context, state models.AgentState) models.AgentState {
	logger := log.Ctx(ctx)

	if o.opts.RetrieveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.RetrieveTimeout)
		defer cancel()
	}

	results := o.retriever.SimilaritySearch(ctx, state.Query, o.opts.TopK, o.opts.ScoreThreshold, nil)
	if len(results) == 0 {
		logger.Info().Msg("No relevant documents found, falling back to direct generation")
		state.Fallback = true
		return state
	}

	logger.Info().Int("results", len(results)).Msg("Retrieved relevant documents")
	state.RetrievalResults = results
	return state
}

func (o *Orchestrator) search(ctx context.Context, state models.AgentState) models.AgentState {
	logger := log.Ctx(ctx)

	if o.opts.SearchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.SearchTimeout)
		defer cancel()
	}

	results, err := o.searcher.Search(ctx, state.Query, o.opts.MaxSearchResults)
	if err != nil {
		logger.Error().Err(err).Msg("Web search failed, falling back to direct generation")
		state.Fallback = true
		return state
	}
	if len(results) == 0 {
		logger.Info().Msg("No web results found, falling back to direct generation")
		state.Fallback = true
		return state
	}

	logger.Info().Int("results", len(results)).Msg("Found web results")
	state.SearchResults = results
	return state
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
