package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wgd/deepsearch/internal/api"
	"github.com/wgd/deepsearch/internal/config"
	"github.com/wgd/deepsearch/internal/driver"
	"github.com/wgd/deepsearch/internal/fonts"
	"github.com/wgd/deepsearch/internal/render"
	"github.com/wgd/deepsearch/internal/research"
	"github.com/wgd/deepsearch/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the deepsearch server (HTTP + MCP stdio, foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "deepsearch version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logLevel := slog.LevelInfo
	if strings.EqualFold(os.Getenv("DEEPSEARCH_LOG_LEVEL"), "debug") {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	provisioner := fonts.New(cfg.FontsDir())
	renderer := render.New(provisioner)

	startRun := newRunStarter(cfg, store)

	appHandler := api.NewAppHandler(api.AppDeps{
		Store:    store,
		Renderer: renderer,
		StartRun: startRun,
	})

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: appHandler,
	}

	mcpSrv := api.NewMCPServer(api.MCPDeps{
		Store:    store,
		StartRun: startRun,
	})
	stdioSrv := server.NewStdioServer(mcpSrv)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "deepsearch listening on %s\n", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		slog.Info("MCP server started (stdio transport)")
		if err := stdioSrv.Listen(gCtx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("MCP stdio server error", "error", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// newRunStarter builds the per-submission run factory. Credentials are
// merged from the store on every call so a key saved mid-session takes
// effect on the next run without a restart.
func newRunStarter(cfg config.Config, store *storage.Store) api.RunStarter {
	return func(ctx context.Context, query string) (*driver.Run, error) {
		rc := cfg.Research

		keys, err := store.APIKeys()
		if err != nil {
			slog.Warn("reading stored API keys", "error", err)
			keys = map[string]string{}
		}
		rc.MergeStoredKeys(keys)
		if err := rc.Validate(); err != nil {
			return nil, err
		}

		var llm research.LLM
		switch rc.DefaultLLMProvider {
		case "openai":
			llm = research.NewOpenAIClient(rc.OpenAIAPIKey, rc.OpenAIModel)
		default:
			llm = research.NewDeepSeekClient(rc.DeepSeekAPIKey, rc.DeepSeekModel)
		}
		search := research.NewTavilyClient(rc.TavilyAPIKey)

		agent := research.NewAgent(llm, search, research.Options{
			MaxReflections:   rc.MaxReflections,
			MaxSearchResults: rc.MaxSearchResults,
			MaxContentLength: rc.MaxContentLength,
		})

		d := driver.New(agent, store,
			driver.WithLogger(slog.Default()),
			driver.WithProgressFunc(func(p driver.Progress) {
				slog.Info("research progress", "phase", p.Phase, "fraction", p.Fraction, "detail", p.Detail)
			}),
		)
		return d.Run(ctx, query)
	}
}
