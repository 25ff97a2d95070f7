package main

import (
	"context"
	"net/http"
	"os"

	httpadapter "github.com/mesami8/llmchatapp/internal/adapters/http"
	"github.com/mesami8/llmchatapp/internal/adapters/llm"
	memstore "github.com/mesami8/llmchatapp/internal/adapters/storage/memory"
	mongostore "github.com/mesami8/llmchatapp/internal/adapters/storage/mongo"
	"github.com/mesami8/llmchatapp/internal/app/conversation"
	"github.com/mesami8/llmchatapp/internal/config"
	"github.com/mesami8/llmchatapp/internal/domain"
	"github.com/mesami8/llmchatapp/internal/observability"
)

func main() {
	ctx := context.Background()
	cfg := config.Load()
	log := observability.Logger()

	// Inference: real Ollama endpoint, or a mock for dev without a server.
	var llmClient domain.InferenceClient
	if cfg.UseMockLLM {
		log.Info("using mock inference client")
		llmClient = llm.NewMockClient()
	} else {
		log.Info("using ollama inference client", "base_url", cfg.OllamaURL)
		llmClient = llm.NewOllamaClient(cfg.OllamaURL)
	}

	// Persistence is optional: a missing or unreachable store disables the
	// save/history features, chatting keeps working on the in-memory
	// transcript alone.
	var store domain.ConversationStore
	switch cfg.StorageBackend {
	case config.StorageMongo:
		st, err := mongostore.NewStore(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			log.Warn("mongo unavailable, persistence disabled", "error", err)
		} else {
			log.Info("using mongo storage", "database", cfg.MongoDatabase)
			store = st
			defer st.Close(ctx)
		}

	case config.StorageMemory:
		log.Info("using in-memory storage")
		store = memstore.NewConversationStore()

	default:
		log.Info("persistence disabled")
	}

	svc := conversation.NewService(llmClient, store, cfg.DefaultModel)
	handler := httpadapter.NewServer(svc)

	addr := ":" + cfg.Port
	log.Info("llmchat API listening", "addr", addr)
	if err := http.ListenAndServe(addr, handler); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
