// Command gateway runs the multi-venue execution gateway: it loads venue
// configuration, resolves credentials, starts one adapter per active
// venue, and bridges ingress orders to those adapters while republishing
// their callbacks on egress.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"latentspeed/internal/bootstrap"
	"latentspeed/internal/config"
	"latentspeed/internal/core"
	"latentspeed/internal/gateway"
	"latentspeed/internal/infrastructure/health"
	"latentspeed/internal/infrastructure/server"
	"latentspeed/internal/signing"
	"latentspeed/internal/symbols"
	"latentspeed/internal/venue"
	"latentspeed/internal/venue/cex"
	"latentspeed/internal/venue/dex"
	"latentspeed/pkg/cli"
)

const (
	exitOK          = 0
	exitConfigError = 2
	exitRuntimeErr  = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the gateway configuration file")
	exchange := flag.String("exchange", "", "venue name to override/activate from the CLI")
	apiKey := flag.String("api-key", "", "API key override for --exchange")
	apiSecret := flag.String("api-secret", "", "API secret override for --exchange")
	liveTrade := flag.Bool("live-trade", false, "place real orders against the venue (default: every venue is forced to testnet)")
	flag.Parse()

	if *exchange != "" {
		if err := cli.ValidateInput(*exchange); err != nil {
			fmt.Fprintln(os.Stderr, "invalid --exchange value:", err)
			return exitConfigError
		}
	}

	app, err := bootstrap.NewApp(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config error:", err)
		return exitConfigError
	}

	if *exchange != "" {
		app.Cfg.ApplyCLIOverride(*exchange, *apiKey, *apiSecret)
		if err := app.Cfg.Validate(); err != nil {
			fmt.Fprintln(os.Stderr, "config error:", err)
			return exitConfigError
		}
	}
	if !*liveTrade {
		for name, venueCfg := range app.Cfg.Venues {
			venueCfg.UseTestnet = true
			app.Cfg.Venues[name] = venueCfg
		}
	}

	svc := gateway.NewService(app.Logger, app.Cfg.Ingress.ListenAddr, app.Cfg.Egress.ListenAddr, []string{"*"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, name := range app.Cfg.App.ActiveVenues {
		venueCfg := app.Cfg.Venues[name]
		adapter, err := buildAdapter(name, venueCfg, app.Logger)
		if err != nil {
			fmt.Fprintln(os.Stderr, "adapter build error:", err)
			return exitConfigError
		}
		if err := svc.Register(ctx, adapter); err != nil {
			fmt.Fprintln(os.Stderr, "adapter start error:", err)
			return exitRuntimeErr
		}
	}

	hm := health.NewHealthManager(app.Logger)
	healthSrv := server.NewHealthServer(fmt.Sprintf("%d", app.Cfg.Telemetry.MetricsPort), app.Logger, hm)
	if app.Cfg.Telemetry.EnableMetrics {
		healthSrv.Start()
	}

	if err := app.Run(runnerFunc(svc.Run)); err != nil {
		return exitRuntimeErr
	}
	return exitOK
}

// runnerFunc adapts a bare func(ctx) error to bootstrap.Runner.
type runnerFunc func(ctx context.Context) error

func (f runnerFunc) Run(ctx context.Context) error { return f(ctx) }

func buildAdapter(name string, venueCfg config.VenueConfig, logger core.ILogger) (venue.Adapter, error) {
	endpointSet, err := venueCfg.EndpointFor()
	if err != nil {
		return nil, fmt.Errorf("venue %q: %w", name, err)
	}
	resolver := symbols.NewResolver()

	switch venueCfg.Type {
	case config.VenueTypeCEX:
		creds := signing.CEXCredentials{
			APIKey:    string(venueCfg.APIKey),
			APISecret: string(venueCfg.APISecret),
		}
		cfg := cex.DefaultConfig()
		applyCEXTuning(&cfg, venueCfg.Tuning)
		return cex.New(name, cex.Endpoints{
			RESTBaseURL: endpointSet.RESTBaseURL,
			WSURL:       endpointSet.WSURL,
		}, creds, cfg, resolver, logger), nil

	case config.VenueTypeDEX:
		signer, err := signing.NewDEXSigner(string(venueCfg.PrivateKey), venueCfg.ChainID)
		if err != nil {
			return nil, fmt.Errorf("venue %q: signer: %w", name, err)
		}
		bridge := signing.NewInProcessBridge(signer)
		cfg := dex.DefaultConfig()
		applyDEXTuning(&cfg, venueCfg.Tuning)
		return dex.New(name, dex.Endpoints{
			RESTBaseURL: endpointSet.RESTBaseURL,
			WSURL:       endpointSet.WSURL,
		}, bridge, venueCfg.UserAddress, venueCfg.VaultAddress, cfg, resolver, logger), nil

	default:
		return nil, fmt.Errorf("venue %q: unsupported type %q", name, venueCfg.Type)
	}
}
