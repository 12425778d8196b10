// Package main runs the couplegram shell client against a gateway server,
// or against an in-memory gateway when no server URL is configured.
package main

import (
	"cmp"
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/couplegram/couplegram/internal/cache"
	"github.com/couplegram/couplegram/internal/client/storage"
	"github.com/couplegram/couplegram/internal/config"
	"github.com/couplegram/couplegram/internal/events"
	"github.com/couplegram/couplegram/internal/gateway"
	"github.com/couplegram/couplegram/internal/gateway/httpgw"
	"github.com/couplegram/couplegram/internal/gateway/memory"
	"github.com/couplegram/couplegram/internal/logger"
)

var (
	version   string
	buildDate string
)

const (
	staleTime       = time.Minute
	refreshInterval = 30 * time.Second
)

func main() {
	options, err := config.ParseClient(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if options.ShowVersion {
		fmt.Printf("couplegram client\nVersion: %s\nBuild Date: %s\n", cmp.Or(version, "N/A"), cmp.Or(buildDate, "N/A"))
		return
	}

	log := logger.New()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	defer func() { _ = log.Log.Sync() }()
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	state, err := storage.Open(options.StateFile)
	if err != nil {
		zapLogger.Fatal("failed to load session state", zap.Error(err))
	}

	gw, err := newGateway(options, state.State(), zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to set up gateway", zap.Error(err))
	}

	c := cache.New(cache.Options{StaleTime: staleTime, Logger: zapLogger})
	storage.StartAutoRefresh(ctx, c, refreshInterval, zapLogger)

	// Writes by other clients invalidate our cache when an event bus is configured.
	if options.NatsURL != "" {
		nc, err := nats.Connect(options.NatsURL, nats.Name("couplegram-client"))
		if err != nil {
			zapLogger.Warn("live updates disabled", zap.Error(err))
		} else {
			defer nc.Close()
			l := events.NewListener(c, func() string { return state.State().AccountID }, zapLogger)
			if _, err := l.Subscribe(nc); err != nil {
				zapLogger.Warn("live updates disabled", zap.Error(err))
			}
		}
	}

	sh, err := newShell(gw, c, state, os.Stdin, os.Stdout, options.URL, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to start shell", zap.Error(err))
	}
	if options.URL == "" {
		fmt.Println("No gateway URL configured, using an in-memory gateway.")
	}
	fmt.Println(`Type "help" for a list of commands.`)
	sh.run(ctx)
}

// newGateway picks the HTTP gateway for a configured URL, resuming the
// stored session when it was issued by the same server.
func newGateway(o *config.ClientOptions, st storage.State, log *zap.Logger) (gateway.Gateway, error) {
	if o.URL == "" {
		return memory.New(), nil
	}
	opts := []httpgw.Option{httpgw.WithLogger(log)}
	if o.CAFile != "" {
		hc, err := httpgw.NewTLSClient(o.CAFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, httpgw.WithHTTPClient(hc))
	}
	if st.SignedIn() && st.URL == o.URL {
		opts = append(opts, httpgw.WithToken(st.Token))
	}
	return httpgw.New(o.URL, opts...), nil
}
