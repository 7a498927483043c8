package models

import "fmt"

// Intent is the classifier's verdict for a query.
type Intent int

const (
	IntentKnowledgeBase Intent = iota
	IntentCurrentEvents
	IntentGeneral
)

func (i Intent) String() string {
	switch i {
	case IntentKnowledgeBase:
		return "knowledge_base"
	case IntentCurrentEvents:
		return "current_events"
	case IntentGeneral:
		return "general"
	}
	return fmt.Sprintf("Intent(%d)", int(i))
}

// Route maps the intent onto the branch reported to callers.
func (i Intent) Route() Route {
	switch i {
	case IntentKnowledgeBase:
		return RouteRAG
	case IntentCurrentEvents:
		return RouteSearch
	case IntentGeneral:
		return RouteLLM
	}
	return RouteError
}

// Route is the knowledge source used for an answer, as reported on the chat API.
type Route string

const (
	RouteRAG    Route = "rag"
	RouteSearch Route = "search"
	RouteLLM    Route = "llm"
	RouteError  Route = "error"
)

// Distance is the similarity metric of a collection.
type Distance string

const DistanceCosine Distance = "cosine"

// AgentState is the per-request record threaded through the pipeline.
// Stages receive it by value and return an updated copy.
type AgentState struct {
	Query            string
	History          []Message
	UserAge          *int
	Intent           Intent
	Route            Route
	RetrievalResults []RetrievalResult
	SearchResults    []SearchResult
	Response         string
	Sources          []string
	// Fallback is set when the chosen branch produced no usable context.
	Fallback bool
}
