package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"learning-assistant/internal/config"
	"learning-assistant/internal/models"
)

// offlineConfig builds against an in-memory store and ollama clients, none of
// which dial until first use.
func offlineConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Addr:            "127.0.0.1:0",
			MaxUploadSize:   1 << 20,
			RequestTimeout:  5 * time.Second,
			ShutdownTimeout: time.Second,
		},
		LLM:      config.LLMConfig{Provider: "ollama", Model: "llama3"},
		EmbedLLM: config.LLMConfig{Provider: "ollama", Model: "nomic-embed-text"},
		VectorDB: config.VectorDBConfig{
			Provider:   "chromem",
			Collection: "moodle_knowledge",
			Dimension:  768,
			InMemory:   true,
		},
		RAG:      config.RAGConfig{TopK: 5, ScoreThreshold: 0.7, MaxHistoryLength: 10, ChunkSize: 1000, ChunkOverlap: 200},
		Search:   config.SearchConfig{Enabled: false, Primary: "duckduckgo", MaxResults: 5},
		Persona:  config.PersonaConfig{Enabled: true, ChildMax: 12, TeenMax: 17},
		Timeouts: config.TimeoutConfig{Classify: time.Second, Retrieve: time.Second, Search: time.Second, Generate: time.Second, Ingest: time.Second},
	}
}

func TestBuild(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, offlineConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(ctx) })

	assert.Equal(t, "llama3", a.LLM.ModelName())
	assert.False(t, a.Search.Enabled())

	stats := a.Engine.CollectionStats(ctx)
	assert.Equal(t, models.StatusGreen, stats.Status)
	assert.Zero(t, stats.PointCount)
}

func TestAsk_ReportsProvider(t *testing.T) {
	ctx := context.Background()
	cfg := offlineConfig()
	cfg.LLM.BaseURL = "http://127.0.0.1:1"
	cfg.EmbedLLM.BaseURL = "http://127.0.0.1:1"
	a, err := Build(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(ctx) })

	ans := a.Ask(ctx, "When is the midterm?", nil)
	assert.Equal(t, "ollama", ans.Model)
	assert.NotEmpty(t, ans.Content)
}

func TestBuild_Errors(t *testing.T) {
	ctx := context.Background()

	cfg := offlineConfig()
	cfg.EmbedLLM.Provider = "bogus"
	_, err := Build(ctx, cfg)
	assert.ErrorContains(t, err, "failed to create embedder")

	cfg = offlineConfig()
	cfg.LLM.Provider = "bogus"
	_, err = Build(ctx, cfg)
	assert.ErrorContains(t, err, "failed to create llm client")
}

func TestHandler_Health(t *testing.T) {
	ctx := context.Background()
	a, err := Build(ctx, offlineConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(ctx) })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/detailed", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"web_search":{"status":"disabled"}`)
}

func TestSnapshots(t *testing.T) {
	ctx := context.Background()

	cfg := offlineConfig()
	cfg.VectorDB.InMemory = false
	cfg.VectorDB.Path = t.TempDir()
	cfg.VectorDB.EncryptionKey = "0123456789abcdef0123456789abcdef"

	a, err := Build(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(ctx) })

	path, err := a.Export(ctx)
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.NoError(t, a.Import(ctx, path))
}

func TestRun_StopsOnCancel(t *testing.T) {
	a, err := Build(context.Background(), offlineConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
