package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/james226/scene-relay/auth"
	"github.com/james226/scene-relay/bus"
	"github.com/james226/scene-relay/config"
	"github.com/james226/scene-relay/discovery"
	"github.com/james226/scene-relay/kmz"
	"github.com/james226/scene-relay/logging"
	"github.com/james226/scene-relay/relay"
	"github.com/james226/scene-relay/render"
	"github.com/james226/scene-relay/supervisor"
	"github.com/james226/scene-relay/transport"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "token":
			os.Exit(runToken(os.Args[2:]))
		case "peers":
			os.Exit(runPeers(os.Args[2:]))
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatal().Err(err).Msg("relay stopped with error")
	}
	logging.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config) error {
	renderer := render.NewScene()
	r := relay.New(relay.Options{
		Strict:    cfg.Relay.Strict,
		QueueSize: cfg.Relay.QueueSize,
		Renderer:  renderer,
	})

	treeCfg := supervisor.DefaultTreeConfig()
	treeCfg.ShutdownTimeout = cfg.Server.ShutdownTimeout
	tree := supervisor.NewTree(treeCfg)
	tree.AddRelayService(r)

	if cfg.Redis.Enabled {
		b := bus.NewRedis(bus.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, r)
		defer b.Close()
		r.SetPublisher(b)
		tree.AddRelayService(b)
	}

	var verifier transport.TokenVerifier
	if cfg.Auth.Enabled() {
		verifier = auth.NewTokenManager([]byte(cfg.Auth.Secret))
	}

	server := &http.Server{
		Addr: cfg.Server.Addr(),
		Handler: newRouter(routerDeps{
			cfg:      cfg,
			relay:    r,
			renderer: renderer,
			parser:   kmz.NewParser(),
			verifier: verifier,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	tree.AddAPIService(supervisor.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	if cfg.MDNS.Enabled {
		tree.AddRelayService(discovery.NewAdvertiser(discovery.Config{
			Instance: cfg.MDNS.Instance,
			Service:  cfg.MDNS.Service,
			Port:     cfg.Server.Port,
		}))
	}

	logging.Info().
		Str("addr", server.Addr).
		Bool("strict", cfg.Relay.Strict).
		Bool("redis", cfg.Redis.Enabled).
		Bool("auth", cfg.Auth.Enabled()).
		Bool("mdns", cfg.MDNS.Enabled).
		Msg("starting scene relay")

	err := tree.Serve(ctx)
	if report, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(report) > 0 {
		for _, svc := range report {
			logging.Warn().Str("service", svc.Name).Msg("service did not stop in time")
		}
	}
	return err
}

// runToken prints a signed connection token for a display name.
func runToken(args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	ttl := fs.Duration("ttl", 0, "token lifetime; defaults to AUTH_TOKEN_TTL, 0 never expires")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: scene-relay token [-ttl 24h] <name>")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	if !cfg.Auth.Enabled() {
		fmt.Fprintln(os.Stderr, "AUTH_SECRET is not set; tokens are disabled")
		return 1
	}

	lifetime := cfg.Auth.TokenTTL
	if *ttl > 0 {
		lifetime = *ttl
	}
	token, err := auth.NewTokenManager([]byte(cfg.Auth.Secret)).Issue(fs.Arg(0), lifetime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "issue token: %v\n", err)
		return 1
	}
	fmt.Println(token)
	return 0
}

// runPeers lists relays advertising themselves on the local network.
func runPeers(args []string) int {
	fs := flag.NewFlagSet("peers", flag.ContinueOnError)
	timeout := fs.Duration("timeout", 2*time.Second, "how long to wait for answers")
	service := fs.String("service", "_scene-relay._tcp", "mDNS service type")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	addrs, err := discovery.Browse(ctx, *service, *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	for _, addr := range addrs {
		fmt.Println(addr)
	}
	return 0
}
