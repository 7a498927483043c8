package api

import (
	"context"

	"learning-assistant/internal/httpx"
	"learning-assistant/internal/models"
	"learning-assistant/internal/rag"
	"learning-assistant/internal/websearch"
)

type Assistant interface {
	Answer(ctx context.Context, req rag.Request) rag.Answer
}

// Index is the write side of the knowledge base.
type Index interface {
	UpsertChunks(ctx context.Context, texts []string, metadatas []models.Metadata, documentID string) (int, error)
	DeleteByDocument(ctx context.Context, documentID string) bool
	CollectionStats(ctx context.Context) models.CollectionStats
}

type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string, opts ...httpx.RequestOpt) ([]byte, string, error)
}

type SearchStatus interface {
	Enabled() bool
	Active() websearch.Provider
}
