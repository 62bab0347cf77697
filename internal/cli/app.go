package cli

import (
	"fmt"

	"docchat/config"
	"docchat/internal/adapter/chunker"
	"docchat/internal/adapter/embedding"
	"docchat/internal/adapter/history"
	"docchat/internal/adapter/index"
	"docchat/internal/adapter/llm"
	"docchat/internal/adapter/pdf"
	"docchat/internal/adapter/prompt"
	"docchat/internal/port"
	"docchat/internal/usecase"
)

// app wires the adapters and usecases for one command invocation.
type app struct {
	cfg      *config.Config
	index    port.VectorIndex
	history  *history.Store
	ingester *usecase.Ingester
	chat     *usecase.Chat
	client   *llm.Client
}

// openApp builds the full application. withModel controls whether the
// generation client is constructed; ingestion-only commands skip it so they
// never wait on a model server.
func openApp(withModel bool) (*app, error) {
	embedder, err := buildEmbedder(cfg)
	if err != nil {
		return nil, err
	}

	store, err := index.Open(cfg.IndexDBPath(), embedder, cfg.Cache.SearchTTL, logger)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	hist, err := history.Open(cfg.HistoryDBPath())
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open history: %w", err)
	}

	a := &app{cfg: cfg, index: store, history: hist}

	extractor := pdf.NewExtractor(cfg.ImageDir(), logger)
	a.ingester = usecase.NewIngester(extractor, chunker.New(), store, hist, cfg.ImageDir(), logger)

	if withModel {
		builder := prompt.NewBuilder(cfg.Retrieve.MaxContextChars)
		loader := llm.NewHTTPLoader(cfg.Model.BaseURL, cfg.Model.Name, "", cfg.Model.LoadTimeout)
		a.client = llm.New(loader, hist, builder, llm.Config{
			MaxTokens:    cfg.Model.MaxTokens,
			StopTokens:   cfg.Model.StopTokens,
			LoadTimeout:  cfg.Model.LoadTimeout,
			ResponseTTL:  cfg.Cache.ResponseTTL,
			CacheEntries: cfg.Cache.MaxEntries,
		}, logger)
		suggester := usecase.NewSuggester(a.client, logger)
		a.chat = usecase.NewChat(store, a.client, suggester, hist, cfg.Retrieve.TopK, logger)
	}
	return a, nil
}

func (a *app) Close() {
	a.history.Close()
	a.index.Close()
}

func buildEmbedder(cfg *config.Config) (port.Embedder, error) {
	var base port.Embedder
	switch cfg.Embedding.Provider {
	case "ollama":
		base = embedding.NewOllamaEmbedder(cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimension, cfg.Embedding.BatchSize)
	case "openai":
		openai, err := embedding.NewOpenAIEmbedder(cfg.Embedding.APIKeyEnv, cfg.Embedding.Model, cfg.Embedding.BaseURL, cfg.Embedding.Dimension, cfg.Embedding.BatchSize)
		if err != nil {
			return nil, err
		}
		base = openai
	case "local":
		base = embedding.NewLocalEmbedder(cfg.Embedding.Dimension)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}
	return embedding.NewCachedEmbedder(base, cfg.Cache.EmbeddingMax), nil
}
