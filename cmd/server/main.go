package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Createyouracccount/last-mike/internal/agent"
	"github.com/Createyouracccount/last-mike/internal/archive"
	"github.com/Createyouracccount/last-mike/internal/config"
	"github.com/Createyouracccount/last-mike/internal/httpserver"
	"github.com/Createyouracccount/last-mike/internal/llm"
	"github.com/Createyouracccount/last-mike/internal/metrics"
	"github.com/Createyouracccount/last-mike/internal/store"
	"github.com/Createyouracccount/last-mike/internal/stream"
	"github.com/Createyouracccount/last-mike/internal/transcript"
	"github.com/Createyouracccount/last-mike/internal/tts"
	"github.com/Createyouracccount/last-mike/internal/voice"
)

func main() {
	// Include sub-second precision in all log timestamps
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)

	cfg := config.Load()
	ctx := context.Background()

	sessions, closeStore := openStore(ctx, cfg)
	defer closeStore()

	collector := metrics.New()
	counselor := agent.NewCounselor(cfg.Policy).WithRecorder(collector)
	if client := languageModel(ctx, cfg); client != nil {
		counselor.WithLLM(llm.NewAdapter(client, cfg.Policy.LLMTimeout, cfg.Policy.MaxResponseRunes, llm.Truncate))
	}

	service := agent.NewService(counselor, sessions).WithTimeouts(cfg.StoreTimeout, cfg.ArchiveTimeout)
	if cfg.SupabaseURL != "" && cfg.SupabaseServiceRoleKey != "" {
		up, err := archive.NewSupabase(archive.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			log.Printf("Warning: transcript archive disabled: %v", err)
		} else {
			service.WithArchiver(archive.NewTranscripts(up))
		}
	}

	srv := httpserver.New(cfg, service).WithMetrics(collector)
	if cfg.DeepgramKey != "" && cfg.DeepgramTTSModel != "" {
		speaker := tts.NewDeepgram(cfg.DeepgramKey, tts.Options{Model: cfg.DeepgramTTSModel})
		newTranscriber := func() voice.Transcriber {
			return transcript.NewDeepgram(cfg.DeepgramKey, transcript.Options{Model: cfg.DeepgramSTTModel, Language: cfg.STTLanguage})
		}
		handler := stream.NewHandler(service, newTranscriber, speaker).WithActiveGauge(collector.ActiveSessions)
		srv.WithStream(handler.Serve)
	}

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in background
	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", cfg.HTTPAddress)
		serverErrors <- server.ListenAndServe()
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	case sig := <-sigChan:
		log.Printf("shutdown signal received: %v", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = server.Close()
	}
}

// openStore picks Redis when REDIS_ADDR is set and memory otherwise.
func openStore(ctx context.Context, cfg config.Config) (agent.SessionStore, func()) {
	if cfg.RedisAddr == "" {
		return store.NewMemory(cfg.SessionTTL), func() {}
	}
	r, err := store.NewRedis(ctx, store.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.SessionTTL,
	})
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	log.Printf("sessions stored in redis at %s", cfg.RedisAddr)
	return r, func() { _ = r.Close() }
}

// languageModel returns the configured client, or nil when consultation
// should answer from rules only.
func languageModel(ctx context.Context, cfg config.Config) llm.Client {
	switch cfg.LLMProvider {
	case "gemini":
		if cfg.GeminiKey == "" {
			return nil
		}
		client, err := llm.NewGeminiClient(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			log.Printf("Warning: gemini disabled: %v", err)
			return nil
		}
		return client
	case "cerebras":
		if cfg.CerebrasKey == "" {
			return nil
		}
		return llm.NewCerebrasClient(cfg.CerebrasKey, cfg.CerebrasModelID)
	}
	return nil
}
