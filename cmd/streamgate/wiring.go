package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/casualjim/streamgate/internal/broker"
	"github.com/casualjim/streamgate/internal/config"
	"github.com/casualjim/streamgate/internal/ratelimit"
	"github.com/casualjim/streamgate/internal/relay"
	"github.com/casualjim/streamgate/internal/store"
	"github.com/casualjim/streamgate/pkg/natsx"
	"github.com/casualjim/streamgate/pkg/slogx"
	"github.com/casualjim/streamgate/provider"
	"github.com/casualjim/streamgate/provider/openai"
	"github.com/casualjim/streamgate/provider/rawhttp"
	"github.com/fogfish/opts"
	"github.com/openai/openai-go/option"
	"github.com/redis/go-redis/v9"
)

const limiterSweepInterval = time.Minute

type dependencies struct {
	registry *provider.Registry
	store    store.Store
	broker   broker.Broker
	limiter  ratelimit.Limiter
	closers  []func()
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func (d *dependencies) relayOptions(cfg *config.Config) []opts.Option[relay.Relay] {
	return []opts.Option[relay.Relay]{
		relay.WithStore(d.store),
		relay.WithRegistry(d.registry),
		relay.WithBroker(d.broker),
		relay.WithLimiter(d.limiter),
		relay.WithFallbackModels(cfg.FallbackModels),
		relay.WithMaxBodyBytes(cfg.MaxBodyBytes),
	}
}

// wire builds everything the relay needs from cfg. Background work is bound to ctx.
func wire(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}

	registry, err := buildRegistry(cfg)
	if err != nil {
		return nil, err
	}
	deps.registry = registry

	if err := deps.openStore(ctx, cfg); err != nil {
		deps.Close()
		return nil, err
	}
	if err := deps.openBroker(cfg); err != nil {
		deps.Close()
		return nil, err
	}
	if err := deps.openLimiter(ctx, cfg); err != nil {
		deps.Close()
		return nil, err
	}
	return deps, nil
}

// buildRegistry routes bare model names through the OpenAI SDK and vendor/model
// names through the raw chat-completions endpoint.
func buildRegistry(cfg *config.Config) (*provider.Registry, error) {
	var sdkOpts []option.RequestOption
	if cfg.OpenAIAPIKey != "" {
		sdkOpts = append(sdkOpts, option.WithAPIKey(cfg.OpenAIAPIKey))
	}
	if cfg.OpenAIBaseURL != "" {
		sdkOpts = append(sdkOpts, option.WithBaseURL(cfg.OpenAIBaseURL))
	}

	var sdkNames, upstreamNames []string
	for _, name := range cfg.Models {
		if config.IsUpstreamModel(name) {
			upstreamNames = append(upstreamNames, name)
		} else {
			sdkNames = append(sdkNames, name)
		}
	}

	registry := provider.NewRegistry(openai.Models(sdkNames, sdkOpts...)...)
	if len(upstreamNames) == 0 {
		return registry, nil
	}
	upstream, err := rawhttp.New(cfg.UpstreamURL, rawhttp.WithAPIKey(cfg.UpstreamAPIKey))
	if err != nil {
		return nil, fmt.Errorf("upstream provider: %w", err)
	}
	for _, name := range upstreamNames {
		registry.Register(provider.NewModel(name, upstream))
	}
	return registry, nil
}

func (d *dependencies) openStore(ctx context.Context, cfg *config.Config) error {
	switch cfg.Store {
	case config.StoreRedis:
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis_url: %w", err)
		}
		client := redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return fmt.Errorf("redis: %w", err)
		}
		d.closers = append(d.closers, func() { _ = client.Close() })

		s, err := store.NewRedis(client, store.WithKeyRetention(cfg.Retention))
		if err != nil {
			return err
		}
		d.store = s

	default:
		m, err := store.NewMemory(store.WithRetention(cfg.Retention), store.WithSweepInterval(cfg.SweepInterval))
		if err != nil {
			return err
		}
		m.Start(ctx)
		d.closers = append(d.closers, func() { _ = m.Close() })
		d.store = m
	}
	return nil
}

func (d *dependencies) openBroker(cfg *config.Config) error {
	if cfg.Broker != config.BrokerNATS {
		d.broker = broker.Local()
		return nil
	}
	conn, err := natsx.NewClient(cfg.NATSURL)
	if err != nil {
		return fmt.Errorf("nats: %w", err)
	}
	d.closers = append(d.closers, func() {
		if err := conn.Drain(); err != nil {
			slog.Warn("failed to drain nats connection", slogx.Error(err))
		}
	})
	d.broker = broker.NATS(conn)
	return nil
}

func (d *dependencies) openLimiter(ctx context.Context, cfg *config.Config) error {
	if cfg.RateLimit <= 0 {
		d.limiter = ratelimit.Unlimited{}
		return nil
	}
	l, err := ratelimit.NewPerKey(cfg.RateLimit, cfg.RateBurst)
	if err != nil {
		return err
	}
	l.Start(ctx, limiterSweepInterval)
	d.limiter = l
	return nil
}
