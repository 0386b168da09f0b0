// Command marketdata ingests public ticker streams from every configured
// venue in parallel and republishes a normalized, feature-enriched feed
// under the md.* topic namespace.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"latentspeed/internal/bootstrap"
	"latentspeed/internal/gateway"
	"latentspeed/internal/infrastructure/metrics"
	"latentspeed/internal/marketdata"
	"latentspeed/pkg/concurrency"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the gateway configuration file")
	listenAddr := flag.String("listen", "127.0.0.1:5602", "egress listen address for the md.* feed (separate from the gateway's exec.* egress port)")
	flag.Parse()

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return 2
	}

	egress := gateway.NewEgress(app.Logger, []string{"*"}).Bind(*listenAddr)

	if app.Cfg.Telemetry.EnableMetrics {
		metrics.NewServer(app.Cfg.Telemetry.MetricsPort, app.Logger).Start()
	}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "marketdata-decode",
		MaxWorkers:  8,
		MaxCapacity: 512,
	}, app.Logger)
	defer pool.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return egress.Run(gctx) })

	for name, venueCfg := range app.Cfg.Venues {
		endpointSet, err := venueCfg.EndpointFor()
		if err != nil {
			continue
		}
		if endpointSet.WSURL == "" {
			continue
		}

		decoder, ok := decoderFor(name)
		if !ok {
			app.Logger.Warn("marketdata: no public decoder registered for venue", "venue", name)
			continue
		}

		reader := marketdata.NewReader(name, endpointSet.WSURL, decoder, pooledPublisher{pool, egress}, app.Logger)
		g.Go(func() error { return reader.Start(gctx) })
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		fmt.Fprintln(os.Stderr, "runtime error:", err)
		return 1
	}
	return 0
}

// pooledPublisher offloads the egress broadcast onto the shared worker
// pool so a slow subscriber fan-out never blocks a venue's WS read loop.
type pooledPublisher struct {
	pool   *concurrency.WorkerPool
	egress *gateway.Egress
}

func (p pooledPublisher) PublishTopic(topic string, payload interface{}) {
	p.pool.Submit(func() {
		p.egress.PublishTopic(topic, payload)
	})
}

func decoderFor(venueName string) (marketdata.Decoder, bool) {
	switch venueName {
	case "bybit":
		return marketdata.BybitDecoder{Symbols: []string{"BTCUSDT", "ETHUSDT"}}, true
	case "hyperliquid":
		return marketdata.HyperliquidDecoder{Coins: []string{"BTC", "ETH"}}, true
	default:
		return nil, false
	}
}
