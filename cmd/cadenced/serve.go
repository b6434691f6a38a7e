package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/outreachlab/cadence"
	"github.com/outreachlab/cadence/api"
	"github.com/outreachlab/cadence/engine"
	"github.com/outreachlab/cadence/provider"
	"github.com/outreachlab/cadence/resolver"
	"github.com/outreachlab/cadence/sequence"
	"github.com/outreachlab/cadence/store/memory"
	"github.com/outreachlab/cadence/store/postgres"
	redisstore "github.com/outreachlab/cadence/store/redis"
	"github.com/outreachlab/cadence/store/sqlite"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the engine with periodic sweeps and the admin API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP bind address (overrides http.addr)")
	_ = viper.BindPFlag("http.addr", serveCmd.Flags().Lookup("addr"))
}

func serve(ctx context.Context) error {
	logger := newLogger()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	if err := st.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate store: %w", err)
	}

	catalog, err := buildCatalog()
	if err != nil {
		return err
	}

	prov, err := buildProvider(logger)
	if err != nil {
		return err
	}

	config := cadence.DefaultConfig()
	if n := viper.GetInt("max_attempts"); n > 0 {
		config.MaxAttempts = n
	}
	if d := viper.GetDuration("sweep.interval"); d > 0 {
		config.SweepInterval = d
	}

	seq, err := cadence.New(
		cadence.WithStore(st),
		cadence.WithLogger(logger),
		cadence.WithConfig(config),
	)
	if err != nil {
		return err
	}

	engOpts := []engine.Option{
		engine.WithCatalog(catalog),
		engine.WithProvider(prov),
	}
	if res, resErr := buildResolver(); resErr != nil {
		return resErr
	} else if res != nil {
		engOpts = append(engOpts, engine.WithResolver(res))
	}
	if spec := viper.GetString("sweep.cron"); spec != "" {
		engOpts = append(engOpts, engine.WithSweepCron(spec))
	}

	eng, err := engine.Build(seq, engOpts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	addr := viper.GetString("http.addr")
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.NewServer(eng, api.WithLogger(logger)),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("admin api listening",
			"addr", addr,
			"store", viper.GetString("store.driver"),
			"provider", prov.Name(),
			"sequences", len(catalog.Names()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown error", "error", err)
		}
		return eng.Stop(shutdownCtx)
	})

	return g.Wait()
}

func openStore(ctx context.Context) (cadence.Storer, error) {
	driver := viper.GetString("store.driver")
	dsn := viper.GetString("store.dsn")

	switch driver {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.Open(dsn)
	case "postgres":
		return postgres.New(ctx, dsn)
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: dsn})
		return redisstore.New(client), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

func buildCatalog() (*sequence.Catalog, error) {
	catalog, err := sequence.DefaultCatalog()
	if err != nil {
		return nil, err
	}
	dir := viper.GetString("sequences.dir")
	if dir == "" {
		return catalog, nil
	}

	defs, err := sequence.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("load sequences from %s: %w", dir, err)
	}
	for _, def := range defs {
		if err := catalog.Register(def); err != nil {
			return nil, err
		}
	}
	return catalog, nil
}

func buildProvider(logger *slog.Logger) (provider.Provider, error) {
	var p provider.Provider
	switch kind := viper.GetString("provider.kind"); kind {
	case "log":
		p = provider.NewLog(logger)
	case "smtp":
		p = provider.NewSMTP(provider.SMTPConfig{
			Host:     viper.GetString("smtp.host"),
			Port:     viper.GetInt("smtp.port"),
			Username: viper.GetString("smtp.username"),
			Password: viper.GetString("smtp.password"),
			From:     viper.GetString("smtp.from"),
		})
	case "api":
		p = provider.NewHTTPAPI(provider.HTTPAPIConfig{
			Endpoint: viper.GetString("api.endpoint"),
			APIKey:   viper.GetString("api.key"),
			Sender:   viper.GetString("api.sender"),
			Timeout:  viper.GetDuration("api.timeout"),
		})
	default:
		return nil, fmt.Errorf("unknown provider kind %q", kind)
	}

	if rate := viper.GetFloat64("provider.rate"); rate > 0 {
		burst := viper.GetInt("provider.burst")
		if burst <= 0 {
			burst = 1
		}
		p = provider.NewRateLimited(p, rate, burst)
	}
	return p, nil
}

// buildResolver loads a static entity resolver from a YAML file mapping
// entity IDs to binding maps. Returns nil when none is configured.
func buildResolver() (resolver.Resolver, error) {
	path := viper.GetString("resolver.file")
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read resolver file: %w", err)
	}
	var entities map[string]map[string]string
	if err := yaml.Unmarshal(data, &entities); err != nil {
		return nil, fmt.Errorf("parse resolver file %s: %w", path, err)
	}
	return resolver.NewStatic(entities), nil
}
