// Command streamgate serves the resumable chat-completion gateway.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/casualjim/streamgate/internal/config"
	"github.com/casualjim/streamgate/internal/logging"
	"github.com/casualjim/streamgate/internal/relay"
	"github.com/casualjim/streamgate/pkg/slogx"
	"github.com/gin-gonic/gin"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (yaml, toml or json)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := logging.Setup(os.Stderr, cfg.LogLevel, cfg.LogFormat); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		slog.Error("streamgate stopped", slogx.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	deps, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer deps.Close()

	r, err := relay.New(deps.relayOptions(cfg)...)
	if err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.Register(engine)

	server := &http.Server{
		Addr:    cfg.Addr,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Warn("shutdown did not finish cleanly", slogx.Error(err))
		}
	}()

	slog.Info("streamgate listening",
		slog.String("addr", cfg.Addr), slog.Any("models", cfg.Models),
		slog.String("store", cfg.Store), slog.String("broker", cfg.Broker))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
