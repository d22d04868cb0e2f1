package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"vidquest/clip"
	"vidquest/config"
	"vidquest/media"
	"vidquest/processors"
	"vidquest/rag"
	"vidquest/server"
	"vidquest/storage"
)

func main() {
	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	if !cfg.HasValidAPI() {
		config.PrintConfigInstructions()
		log.Fatal("api_key is not configured")
	}

	ctx := context.Background()

	store := media.NewFFmpegStore()
	lib := media.NewLibrary(cfg.VideoRoot, store)

	cli := storage.NewOpenAIClient(cfg)
	embedder := storage.NewCachedEmbedder(
		storage.NewOpenAIEmbedder(cli, cfg.EmbeddingModel),
		cfg.EmbedCacheTTL(), 10*time.Minute)
	generator := storage.NewOpenAIGenerator(cli, cfg.ChatModel)

	index, err := storage.NewVectorIndex(ctx, cfg)
	if err != nil {
		log.Fatalf("init vector store: %v", err)
	}
	defer index.Close(context.Background())

	indexer := storage.NewIndexer(embedder, index, cfg.IndexRetries)

	cache, err := clip.NewCache(cfg.ClipDir, cfg.ClipCacheMaxBytes(), cfg.ClipCacheMaxAge())
	if err != nil {
		log.Fatalf("init clip cache: %v", err)
	}
	defer cache.Close()

	synth := clip.NewSynthesizer(lib, store, cache, cfg.ClipSnapSec, cfg.ExtractTimeout())
	retriever := rag.NewRetriever(index, cfg.OverfetchFactor, cfg.MergeGapSec, cfg.SearchTimeout())
	composer := rag.NewComposer(generator, 0, cfg.GenerateTimeout())
	engine := rag.NewEngine(embedder, retriever, synth, composer, cfg.EmbedTimeout())

	ingestor := processors.NewIngestor(lib, store, indexer, processors.IngestConfig{
		FrameIntervalSec: cfg.FrameIntervalSec,
		MaxChunkSec:      cfg.MaxChunkSec,
		SilenceGapSec:    cfg.SilenceGapSec,
		FrameDir:         cfg.FrameDir,
		ExtractTimeout:   cfg.ExtractTimeout(),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: server.New(ingestor, engine, cache).Router(),
	}

	color.Green("vidquest listening on :%s", cfg.Port)
	color.Cyan("  store: %s  embedding: %s  chat: %s", cfg.Store, cfg.EmbeddingModel, cfg.ChatModel)
	color.Cyan("  videos: %s  clips: %s", cfg.VideoRoot, cfg.ClipDir)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("server: %v", err)
	case sig := <-stop:
		log.Printf("received %s, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
