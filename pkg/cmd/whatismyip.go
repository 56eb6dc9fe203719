package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/larivierec/whatismyip/pkg/cloudprovider"
	"github.com/larivierec/whatismyip/pkg/cloudprovider/cloudflare"
	"github.com/larivierec/whatismyip/pkg/cloudprovider/route53"
	"github.com/larivierec/whatismyip/pkg/config"
	"github.com/larivierec/whatismyip/pkg/ipify"
	"github.com/larivierec/whatismyip/pkg/logger"
	"github.com/larivierec/whatismyip/pkg/metrics"
	"github.com/larivierec/whatismyip/pkg/publisher"
)

const shutdownTimeout = 5 * time.Second

func Start() {
	if err := Run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newFlagSet() *pflag.FlagSet {
	flags := pflag.NewFlagSet(config.AppName, pflag.ContinueOnError)
	flags.String("config", "", "path to a yaml configuration file.")
	flags.Int("timeout", ipify.DefaultTimeoutSeconds, "set this to the lookup timeout in seconds.")
	flags.String("ipv4-endpoint", ipify.DefaultIPv4Endpoint, "set this to the endpoint queried for your public ipv4 address.")
	flags.String("ipv6-endpoint", ipify.DefaultIPv6Endpoint, "set this to the endpoint queried for your public ipv6 address.")
	flags.String("family", "ipv4", "address families to look up: ipv4, ipv6 or both.")
	flags.Bool("serve", false, "run the health, metrics and traffic servers instead of printing once.")
	flags.String("health-addr", ":8080", "listen address of the health and metrics server.")
	flags.String("traffic-addr", ":9000", "listen address of the traffic server.")
	flags.String("cloud-provider", config.ProviderNone, "set this to the requested cloud provider (cloudflare, route53). where your `A`/`AAAA` record will be published.")
	flags.String("zone-name", "", "set this to the dns zone name.")
	flags.String("record-name", "", "set this to the record in which you want to publish your address.")
	flags.Int("ttl", 0, "ttl of published records, 0 keeps the provider default.")
	flags.Bool("proxied", false, "proxy published records through cloudflare.")
	flags.Duration("ticker", 3*time.Minute, "set this to the desired time to check your WAN IP against the DNS record.")
	flags.String("log-level", "info", "log level: debug, info, warn or error.")
	flags.String("log-file", "", "also write json logs to this rotated file.")
	return flags
}

// Run parses args and either prints the public addresses once or serves them.
func Run(ctx context.Context, args []string, stdout io.Writer) error {
	flags := newFlagSet()
	if err := flags.Parse(args); err != nil {
		return err
	}
	configPath, _ := flags.GetString("config")
	serve, _ := flags.GetBool("serve")

	cfg, err := config.Load(configPath, flags)
	if err != nil {
		return err
	}
	log, err := logger.New(&cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()

	svc, err := buildService(cfg, log)
	if err != nil {
		return err
	}
	families, err := cfg.Families()
	if err != nil {
		return err
	}

	var pub *publisher.Publisher
	if cfg.Publishing() {
		provider, err := createCloudProvider(ctx, cfg, log)
		if err != nil {
			return err
		}
		pub, err = publisher.New(svc, provider, publisher.Options{
			Zone:     cfg.Publish.Zone,
			Record:   cfg.Publish.Record,
			TTL:      cfg.Publish.TTL,
			Proxied:  cfg.Publish.Proxied,
			Families: families,
		}, log.Named("publisher"))
		if err != nil {
			return err
		}
	}

	if !serve {
		if pub != nil {
			return publishOnce(ctx, pub, stdout)
		}
		return printAddresses(ctx, svc, families, stdout)
	}

	metrics.InitMetrics()
	return newServer(svc, pub, cfg, log).run(ctx)
}

// buildService resolves the address service from the container the
// registration helper describes.
func buildService(cfg *config.Config, log *zap.Logger) (ipify.Service, error) {
	registry, err := ipify.AddAddressService(ipify.NewRegistry(fx.Supply(log)), &cfg.IPify)
	if err != nil {
		return nil, err
	}

	var svc ipify.Service
	app := fx.New(
		registry.Options(),
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{Logger: log.Named("fx")}
			l.UseLogLevel(zap.DebugLevel)
			return l
		}),
		fx.Populate(&svc),
	)
	if err := app.Err(); err != nil {
		return nil, errors.Wrap(err, "unable to build address service")
	}
	return svc, nil
}

func createCloudProvider(ctx context.Context, cfg *config.Config, log *zap.Logger) (cloudprovider.Provider, error) {
	switch cfg.Publish.Provider {
	case config.ProviderCloudflare:
		return cloudflare.NewCloudflareProvider(cfg.Cloudflare, log.Named(cloudflare.ProviderName)), nil
	case config.ProviderRoute53:
		provider, err := route53.NewRoute53Provider(ctx, log.Named(route53.ProviderName))
		if err != nil {
			return nil, err
		}
		return provider, nil
	default:
		return nil, errors.Errorf("unknown cloud provider %q", cfg.Publish.Provider)
	}
}

func lookup(ctx context.Context, svc ipify.Service, family ipify.Family) (string, error) {
	get := svc.GetExternalIPv4
	if family == ipify.IPv6 {
		get = svc.GetExternalIPv6
	}
	addr, err := get(ctx)
	if err != nil {
		return "", err
	}
	return addr.String(), nil
}

func printAddresses(ctx context.Context, svc ipify.Service, families []ipify.Family, stdout io.Writer) error {
	var errs error
	for _, family := range families {
		addr, err := lookup(ctx, svc, family)
		if err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "%s", family))
			continue
		}
		fmt.Fprintf(stdout, "%s\t%s\n", family, addr)
	}
	return errs
}

func publishOnce(ctx context.Context, pub *publisher.Publisher, stdout io.Writer) error {
	results, err := pub.Sync(ctx)
	for _, result := range results {
		fmt.Fprintf(stdout, "%s\t%s\t%s\n", result.Family, result.Address, result.Action)
	}
	return err
}

type server struct {
	svc         ipify.Service
	publisher   *publisher.Publisher
	cfg         *config.Config
	log         *zap.Logger
	restartOnce sync.Once
	restartCh   chan struct{}
}

func newServer(svc ipify.Service, pub *publisher.Publisher, cfg *config.Config, log *zap.Logger) *server {
	return &server{svc: svc, publisher: pub, cfg: cfg, log: log, restartCh: make(chan struct{})}
}

func (s *server) alive(w http.ResponseWriter, r *http.Request) {
	metrics.IncrementReqs(r)
	w.WriteHeader(http.StatusOK)
}

func (s *server) ready(w http.ResponseWriter, r *http.Request) {
	metrics.IncrementReqs(r)
	w.WriteHeader(http.StatusOK)
}

func (s *server) restart(w http.ResponseWriter, r *http.Request) {
	metrics.IncrementReqs(r)
	w.WriteHeader(http.StatusAccepted)
	s.restartOnce.Do(func() {
		close(s.restartCh)
	})
}

func (s *server) get(family ipify.Family) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics.IncrementReqs(r)
		addr, err := lookup(r.Context(), s.svc, family)
		if err != nil {
			s.log.Error("lookup failed", zap.Stringer("family", family), zap.Error(err))
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(addr))
	}
}

func (s *server) healthRouter() http.Handler {
	router := http.NewServeMux()
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/health/ready", s.ready)
	router.HandleFunc("/health/alive", s.alive)
	return router
}

func (s *server) trafficRouter() http.Handler {
	router := http.NewServeMux()
	router.HandleFunc("/v1/ipv4", s.get(ipify.IPv4))
	router.HandleFunc("/v1/ipv6", s.get(ipify.IPv6))
	router.HandleFunc("/v1/restart", s.restart)
	return router
}

// run serves until ctx ends, a signal arrives or /v1/restart is called.
func (s *server) run(ctx context.Context) error {
	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	healthServer := &http.Server{Addr: s.cfg.Server.HealthAddr, Handler: s.healthRouter()}
	trafficServer := &http.Server{Addr: s.cfg.Server.TrafficAddr, Handler: s.trafficRouter()}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return listen(healthServer, "health")
	})
	g.Go(func() error {
		return listen(trafficServer, "traffic")
	})
	if s.publisher != nil {
		g.Go(func() error {
			s.publishLoop(gctx)
			return nil
		})
	}
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-s.restartCh:
			s.log.Info("restart requested")
			cancel()
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return multierr.Combine(
			errors.Wrap(healthServer.Shutdown(shutdownCtx), "health server unable to shutdown"),
			errors.Wrap(trafficServer.Shutdown(shutdownCtx), "traffic server unable to shutdown"),
		)
	})

	s.log.Info("server started", zap.String("health", healthServer.Addr), zap.String("traffic", trafficServer.Addr))
	err := g.Wait()
	s.log.Info("servers stopped")
	return err
}

func listen(srv *http.Server, name string) error {
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, "listen %s server", name)
	}
	return nil
}

func (s *server) publishLoop(ctx context.Context) {
	publish := func() {
		if _, err := s.publisher.Sync(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("publish failed", zap.Error(err))
		}
	}
	publish()

	ticker := time.NewTicker(s.cfg.Publish.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			publish()
		case <-ctx.Done():
			return
		}
	}
}
