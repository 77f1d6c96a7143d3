package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vbonduro/imgassist/internal/chat"
	"github.com/vbonduro/imgassist/internal/chat/claude"
	"github.com/vbonduro/imgassist/internal/chat/gemini"
	"github.com/vbonduro/imgassist/internal/chat/ollama"
	"github.com/vbonduro/imgassist/internal/config"
	"github.com/vbonduro/imgassist/internal/logging"
	"github.com/vbonduro/imgassist/internal/mode"
	"github.com/vbonduro/imgassist/internal/service"
	"github.com/vbonduro/imgassist/internal/session"
	"github.com/vbonduro/imgassist/internal/web"
	"github.com/vbonduro/imgassist/internal/web/templates"
)

func main() {
	cfg := config.Load()

	logger, cleanup, err := logging.New(cfg.LogLevel, cfg.LogFile, cfg.LogMaxSizeMB)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer cleanup()

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		cleanup()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	modes, err := mode.LoadFile(cfg.ModesFile)
	if err != nil {
		return err
	}

	client, err := newChatClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	sessions := session.NewRegistry(cfg.SessionTTL)
	svc := service.NewAssistantService(client, modes, cfg.MaxImageDim, logger)
	server := web.NewServer(svc, sessions, templates.FS, logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.ListenAddr)
	})
	g.Go(func() error {
		reportSessions(gctx, sessions, logger, time.Minute)
		return nil
	})
	err = g.Wait()
	logger.Info("stopped", "active_sessions", sessions.Len())
	return err
}

// reportSessions logs the live session count every interval until ctx ends.
func reportSessions(ctx context.Context, sessions *session.Registry, logger *slog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("sessions", "active_sessions", sessions.Len())
		}
	}
}

func newChatClient(ctx context.Context, cfg *config.Config, logger *slog.Logger) (chat.Client, error) {
	switch cfg.ChatBackend {
	case "gemini":
		logger.Info("using Gemini chat backend", "model", cfg.GeminiModel)
		c, err := gemini.NewClient(ctx, gemini.Config{
			APIKey:  cfg.GeminiAPIKey,
			Model:   cfg.GeminiModel,
			Timeout: cfg.ChatTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create gemini client: %w", err)
		}
		return c, nil
	case "claude":
		if cfg.ClaudeAPIKey == "" {
			return nil, fmt.Errorf("CLAUDE_API_KEY is required when CHAT_BACKEND=claude")
		}
		logger.Info("using Claude chat backend", "model", cfg.ClaudeModel)
		return claude.NewClient(cfg.ClaudeAPIKey, cfg.ClaudeModel, cfg.ChatTimeout), nil
	case "ollama":
		logger.Info("using Ollama chat backend", "model", cfg.OllamaModel)
		return ollama.NewClient(cfg.OllamaHost, cfg.OllamaModel, cfg.ChatTimeout), nil
	default:
		return nil, fmt.Errorf("unknown CHAT_BACKEND %q", cfg.ChatBackend)
	}
}
