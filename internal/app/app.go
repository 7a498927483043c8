// Package app wires the configured components together and owns their
// lifecycle.
package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"learning-assistant/internal/api"
	"learning-assistant/internal/chromemdb"
	"learning-assistant/internal/classifier"
	"learning-assistant/internal/config"
	"learning-assistant/internal/db"
	"learning-assistant/internal/embedding"
	"learning-assistant/internal/helper"
	"learning-assistant/internal/httpx"
	"learning-assistant/internal/llmservice"
	"learning-assistant/internal/models"
	"learning-assistant/internal/parser"
	"learning-assistant/internal/rag"
	"learning-assistant/internal/retrieval"
	"learning-assistant/internal/websearch"
)

var ErrSnapshotUnsupported = errors.New("snapshots are only supported by the chromem store")

type App struct {
	cfg *config.Config

	store   retrieval.Store
	vectors *chromemdb.VectorDBManager

	Engine  *retrieval.Engine
	LLM     *llmservice.Client
	Search  *websearch.Gateway
	Agent   *rag.Orchestrator
	fetcher *httpx.Connector
	server  *http.Server
}

// Build constructs every shared handle once. Any error here is fatal for the
// process: nothing is served with a half-initialized pipeline.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{cfg: cfg}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	embedder, err := embedding.New(cfg.EmbedLLM)
	if err != nil {
		_ = a.store.Close()
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	a.Engine = retrieval.New(a.store, embedder, retrieval.Options{
		Collection: cfg.VectorDB.Collection,
		Dimension:  cfg.VectorDB.Dimension,
	})
	if err := a.Engine.EnsureCollection(ctx, cfg.VectorDB.Collection, cfg.VectorDB.Dimension, models.DistanceCosine); err != nil {
		_ = a.store.Close()
		return nil, fmt.Errorf("failed to prepare collection: %w", err)
	}

	a.LLM, err = llmservice.New(cfg.LLM)
	if err != nil {
		_ = a.store.Close()
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	a.Search = websearch.NewGateway(cfg.Search, cfg.Timeouts.Search)
	a.fetcher = httpx.NewConnector("", httpx.WithRequestTimeout(cfg.Timeouts.Ingest), httpx.WithRequestLogging())

	a.Agent = rag.NewOrchestrator(
		classifier.New(a.LLM, cfg.Timeouts.Classify),
		a.Engine,
		a.Search,
		rag.NewComposer(a.LLM, cfg.Persona, cfg.RAG.MaxHistoryLength, cfg.Timeouts.Generate),
		rag.Options{
			TopK:             cfg.RAG.TopK,
			ScoreThreshold:   cfg.RAG.ScoreThreshold,
			MaxSearchResults: cfg.Search.MaxResults,
			RetrieveTimeout:  cfg.Timeouts.Retrieve,
			SearchTimeout:    cfg.Timeouts.Search,
			Model:            cfg.LLM.Provider,
		},
	)

	log.Info().
		Str("store", cfg.VectorDB.Provider).
		Str("collection", cfg.VectorDB.Collection).
		Str("llm", cfg.LLM.Provider).
		Str("model", a.LLM.ModelName()).
		Bool("web_search", cfg.Search.Enabled).
		Msg("Services initialized")
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.cfg.VectorDB
	switch cfg.Provider {
	case "pgvector":
		store, err := db.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open pgvector store: %w", err)
		}
		a.store = store
	default:
		if !cfg.InMemory {
			if err := helper.EnsureDir(cfg.Path); err != nil {
				return err
			}
		}
		vectors, err := chromemdb.NewVectorDBManager(cfg.Path, cfg.InMemory, cfg.Compress, cfg.EncryptionKey)
		if err != nil {
			return fmt.Errorf("failed to open chromem store: %w", err)
		}
		a.store, a.vectors = vectors, vectors
	}
	return nil
}

// Handler returns the HTTP API for this app.
func (a *App) Handler() http.Handler {
	h := api.NewHandler(a.Agent, a.Engine, a.fetcher, a.Search, api.Settings{
		Provider:      a.cfg.LLM.Provider,
		MaxUploadSize: a.cfg.Server.MaxUploadSize,
		IngestTimeout: a.cfg.Timeouts.Ingest,
		Chunking:      parser.NewOptions(a.cfg.RAG),
	})
	return api.SetupRouter(h, api.RouterOptions{
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		Timeout:        a.cfg.Server.RequestTimeout,
	})
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
// The store stays open until Shutdown.
func (a *App) Run(ctx context.Context) error {
	a.server = &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      a.Handler(),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", a.cfg.Server.Addr).Msg("HTTP server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

// Shutdown stops the HTTP server, if running, and closes the store.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.server != nil {
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := a.Engine.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	return errors.Join(errs...)
}

// Ask answers a single question outside of HTTP.
func (a *App) Ask(ctx context.Context, query string, userAge *int) rag.Answer {
	return a.Agent.Answer(ctx, rag.Request{Query: query, UserAge: userAge})
}

// IngestFile parses the file at path and indexes it under documentID.
func (a *App) IngestFile(ctx context.Context, path, documentID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeouts.Ingest)
	defer cancel()

	chunks, err := parser.ParseFile(path, parser.NewOptions(a.cfg.RAG))
	if err != nil {
		return 0, err
	}
	return a.Engine.UpsertChunks(ctx, parser.Texts(chunks), parser.Metadatas(chunks), documentID)
}

// IngestURL fetches a page and indexes its readable text under documentID.
func (a *App) IngestURL(ctx context.Context, rawURL, documentID string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeouts.Ingest)
	defer cancel()

	body, _, err := a.fetcher.Fetch(ctx, rawURL)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	chunks, _, err := parser.ParseHTML(bytes.NewReader(body), rawURL, parser.NewOptions(a.cfg.RAG))
	if err != nil {
		return 0, err
	}
	return a.Engine.UpsertChunks(ctx, parser.Texts(chunks), parser.Metadatas(chunks), documentID)
}

// Export writes an encrypted snapshot of the collection and returns its path.
func (a *App) Export(ctx context.Context) (string, error) {
	if a.vectors == nil {
		return "", ErrSnapshotUnsupported
	}
	return a.vectors.Export(ctx, a.cfg.VectorDB.Collection)
}

// Import restores the collection from a snapshot written by Export.
func (a *App) Import(ctx context.Context, path string) error {
	if a.vectors == nil {
		return ErrSnapshotUnsupported
	}
	return a.vectors.Import(ctx, a.cfg.VectorDB.Collection, path)
}
