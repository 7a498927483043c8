package models

// Metadata is the flat key/value payload attached to every stored chunk.
// Well-known keys are source, document_id, page, type and title.
type Metadata map[string]string

// Copy returns an independent copy so callers can add keys without
// touching the original map.
func (m Metadata) Copy() Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Chunk represents a parsed fragment with metadata
type Chunk struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  Metadata
}

// Point is what gets written to a vector store.
type Point struct {
	ID         string
	Vector     []float32
	Text       string
	Metadata   Metadata
	DocumentID string
}

// ScoredPoint is a store hit with its cosine similarity.
type ScoredPoint struct {
	Point
	Score float32
}

// RetrievalResult is the read-only projection returned by similarity search.
type RetrievalResult struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
	Score    float32  `json:"score"`
}

// SearchResult is a single web search hit. Never persisted.
type SearchResult struct {
	Title    string `json:"title"`
	Snippet  string `json:"snippet"`
	Link     string `json:"link"`
	Provider string `json:"provider"`
}

// CollectionStats describes the collection; Status is "error" when the
// backend could not be queried.
type CollectionStats struct {
	Name        string `json:"name"`
	VectorCount int    `json:"vectors_count"`
	PointCount  int    `json:"points_count"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}

const (
	StatusGreen = "green"
	StatusError = "error"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)
