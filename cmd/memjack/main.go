// Command memjack runs the memory-injection demonstration service: a chat
// agent whose long-term memory can be written to directly by natural-language
// commands embedded in user input, bypassing model-side review.
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

	"github.com/seclab-demos/memjack/internal/agent"
	"github.com/seclab-demos/memjack/internal/config"
	"github.com/seclab-demos/memjack/internal/httpapi"
	"github.com/seclab-demos/memjack/internal/memory"
	"github.com/seclab-demos/memjack/internal/observability"
	"github.com/seclab-demos/memjack/internal/provider"
	"github.com/seclab-demos/memjack/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	ctx := context.Background()
	store, err := memory.NewStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer store.Close()
	if cfg.DatabaseURL != "" {
		log.Printf("memory store: postgres")
	} else {
		log.Printf("memory store: in-memory (volatile)")
	}

	memories := memory.NewService(store, memory.ServiceConfig{
		MaxDescriptionLen: cfg.MaxDescriptionLen,
		MaxContentLen:     cfg.MaxContentLen,
		SanitizeOnWrite:   cfg.SanitizeOnWrite,
	})
	if cfg.SanitizeOnWrite {
		log.Printf("sanitize-on-write enabled: stored content is stripped of script/html")
	} else {
		log.Printf("sanitize-on-write disabled: memory stores raw text (vulnerable posture)")
	}

	llm, err := provider.New(provider.Config{
		Mode:    cfg.ProviderMode,
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.Model,
	})
	if err != nil {
		log.Fatalf("provider init failed: %v", err)
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout, cfg.SessionMaxTurns)
	sessions.SetExpireHook(func(_ *session.Session) {
		metrics.SessionEvents.WithLabelValues("expired").Inc()
		metrics.ActiveSessions.Set(float64(sessions.ActiveCount()))
	})

	orchestrator := agent.New(llm, memories, metrics, agent.Config{Model: cfg.Model})

	api := httpapi.New(cfg, sessions, orchestrator, memories, metrics)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	runCtx, runCancel := context.WithCancel(context.Background())
	defer runCancel()
	sessions.StartJanitor(runCtx, 5*time.Second)

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	runCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
