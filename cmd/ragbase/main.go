package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"ragbase/internal/api"
	"ragbase/internal/config"
	"ragbase/internal/llm"
	"ragbase/internal/rag/chunker"
	"ragbase/internal/rag/embedding"
	"ragbase/internal/rag/pipeline"
	"ragbase/internal/rag/vectorstore"
	"ragbase/pkg/backoff"
	"ragbase/pkg/logger"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	configPath := os.Getenv("RAGBASE_CONFIG")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logger.Level)
	appLogger := logger.New(cfg.App.Name)
	appLogger.Info("Starting " + cfg.App.Name + "...")

	if cfg.Gemini.APIKey == "" {
		log.Fatal("GEMINI_API_KEY is not set (environment or config)")
	}

	ctx := context.Background()
	timeout := cfg.RequestTimeoutDuration()

	embedder, err := embedding.NewGeminiEmbedder(ctx, cfg.Gemini.APIKey, cfg.Gemini.EmbeddingModel, cfg.Gemini.Dimension, timeout)
	if err != nil {
		log.Fatalf("Failed to create embedding client: %v", err)
	}

	generator, err := llm.NewGemini(ctx, cfg.Gemini.APIKey, cfg.Gemini.GenerationModel, timeout)
	if err != nil {
		log.Fatalf("Failed to create generation client: %v", err)
	}

	retry := backoff.New(cfg.RAG.Retry.MaxAttempts, cfg.RetryBaseDelay(), cfg.RAG.Retry.Multiplier)

	var store vectorstore.VectorStore
	switch cfg.VectorStore.Backend {
	case "milvus", "":
		milvusStore, err := vectorstore.NewMilvusStore(ctx,
			cfg.VectorStore.Milvus.Address, cfg.VectorStore.Milvus.Collection,
			cfg.Gemini.Dimension, retry, appLogger)
		if err != nil {
			log.Fatalf("Failed to connect to Milvus: %v", err)
		}
		defer milvusStore.Close()
		store = milvusStore
	case "memory":
		appLogger.Warn("Using the in-memory vector store; data is lost on restart")
		store = vectorstore.NewMemoryStore(cfg.Gemini.Dimension)
	default:
		log.Fatalf("Unknown vector store backend: %s", cfg.VectorStore.Backend)
	}

	ck, err := chunker.New(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap, cfg.RAG.MaxChunks)
	if err != nil {
		log.Fatalf("Invalid chunker configuration: %v", err)
	}

	ingest := pipeline.NewIngestionPipeline(ck, embedder, store,
		cfg.RAG.BatchSize, cfg.RAG.EmbedConcurrency, cfg.MaxFileSizeBytes(), appLogger)
	retrieve := pipeline.NewRetrievalPipeline(embedder, store, generator,
		cfg.RAG.DefaultTopK, cfg.RAG.MaxTopK, cfg.RAG.ContextBudget, appLogger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	handlers := api.NewHandlers(ingest, retrieve, store, cfg.MaxFileSizeBytes(), appLogger)
	if err := api.RegisterRoutes(router, handlers, cfg.Middleware); err != nil {
		log.Fatalf("Failed to register routes: %v", err)
	}

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	go func() {
		appLogger.Info(fmt.Sprintf("HTTP server listening at %s", cfg.Server.Address))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to serve HTTP: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Forced shutdown: " + err.Error())
	}
	appLogger.Info("Server stopped")
}
