// Command sgchat is a terminal chat client for streamgate.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/casualjim/streamgate/client"
	"github.com/casualjim/streamgate/internal/logging"
	"github.com/casualjim/streamgate/pkg/slogx"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	addr := flag.String("addr", envOr("STREAMGATE_URL", "http://localhost:8080"), "gateway base url")
	model := flag.String("model", os.Getenv("STREAMGATE_MODEL"), "preferred model")
	token := flag.String("token", os.Getenv("STREAMGATE_TOKEN"), "bearer token forwarded upstream")
	user := flag.String("user", os.Getenv("USER"), "caller id used for rate limiting")
	flag.Parse()

	if err := logging.Setup(os.Stderr, "warn", "console"); err != nil {
		panic(err)
	}

	c, err := client.New(*addr, client.WithToken(*token), client.WithUserID(*user))
	if err != nil {
		slog.Error("failed to create client", slogx.Error(err))
		os.Exit(2)
	}
	r, err := newREPL(c, *model, os.Stdout)
	if err != nil {
		slog.Error("failed to start", slogx.Error(err))
		os.Exit(1)
	}
	if err := r.Run(context.Background(), os.Stdin); err != nil {
		slog.Error("sgchat stopped", slogx.Error(err))
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
