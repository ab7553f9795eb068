// Command server exposes the account sample over HTTP. The ledger backend,
// listen address, and optional NATS relay are selected through the
// environment; see support.Config.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"go.opentelemetry.io/otel"

	"github.com/weegigs/wee-ledger-go/connectors/wlhttp"
	"github.com/weegigs/wee-ledger-go/projection"
	"github.com/weegigs/wee-ledger-go/query"
	"github.com/weegigs/wee-ledger-go/relay/natsrelay"
	"github.com/weegigs/wee-ledger-go/samples/account"
	"github.com/weegigs/wee-ledger-go/stores/memory"
	"github.com/weegigs/wee-ledger-go/stores/sqlite"
	"github.com/weegigs/wee-ledger-go/support"
	"github.com/weegigs/wee-ledger-go/wl"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := support.Load()
	if err != nil {
		return err
	}

	if cfg.TraceConsole {
		exporter, err := wl.ConsoleExporter()
		if err != nil {
			return err
		}
		provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
		defer func() { _ = provider.Shutdown(context.Background()) }()
		otel.SetTracerProvider(provider)
	}

	store, checkpoints, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	service := account.CreateAccountService(store)

	balances := account.NewBalancesRunner(store, checkpoints)
	registry := query.NewRegistry()
	account.RegisterViews(registry, balances)

	failed := make(chan error, 2)
	go func() { failed <- balances.Run(ctx) }()

	if cfg.NATSUrl != "" {
		connection, err := nats.Connect(cfg.NATSUrl)
		if err != nil {
			return err
		}
		defer connection.Close()

		relay, err := natsrelay.NewRelay(
			"account-ledger", connection, store,
			natsrelay.WithCheckpoints("account-relay", checkpoints),
		)
		if err != nil {
			return err
		}

		go func() { failed <- relay.Run(ctx) }()
	}

	handler := wlhttp.NewHandler(
		service,
		wlhttp.Views[account.Account](registry, map[string]wlhttp.Waiter{
			account.BalancesProjection: balances,
		}),
	)

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: handler}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	go func() {
		if err := <-failed; err != nil {
			log.Error().Err(err).Msg("background consumer failed")
			stop()
		}
	}()

	log.Info().
		Str("addr", cfg.HTTPAddr).
		Str("store", cfg.StoreDriver).
		Msg("account service listening")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	return nil
}

func openStore(ctx context.Context, cfg support.Config) (wl.EventStore, projection.Checkpoints, func(), error) {
	switch cfg.StoreDriver {
	case "sqlite":
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, nil, err
		}

		return store, sqlite.NewCheckpoints(store), func() { _ = store.Close() }, nil

	case "dynamo":
		store, err := dynamoStore(ctx, cfg)
		if err != nil {
			return nil, nil, nil, err
		}

		// cursors are process local; balances replay on restart
		return store, projection.NewMemoryCheckpoints(), func() {}, nil

	default:
		return memory.NewStore(), projection.NewMemoryCheckpoints(), func() {}, nil
	}
}
