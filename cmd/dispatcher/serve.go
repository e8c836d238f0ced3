package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os"
	"runtime/debug"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apihttp "ozzus/check-dispatcher/internal/api/http"
	"ozzus/check-dispatcher/internal/dispatch"
	"ozzus/check-dispatcher/internal/engine"
	"ozzus/check-dispatcher/internal/lib/logger/sl"
	"ozzus/check-dispatcher/internal/repository/kafka"
	"ozzus/check-dispatcher/internal/repository/sqlite"
	"ozzus/check-dispatcher/internal/routing"
	"ozzus/check-dispatcher/internal/service"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the dispatch gateway",
	RunE:  doServe,
}

func doServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	driver, err := driverFor(cfg.Broker.Driver)
	if err != nil {
		return err
	}
	if err := dispatch.CheckVersion(driver.Module, driver.MinVersion); err != nil {
		return err
	}

	servers, err := dispatch.ParseServers(cfg.Broker.Servers, driver.DefaultPort)
	if err != nil {
		return err
	}

	log.Info("starting dispatcher",
		slog.String("env", cfg.Env),
		slog.String("driver", driver.Name),
		slog.Any("servers", dispatch.Addrs(servers)),
		slog.String("result_queue", cfg.Dispatch.ResultQueue),
		slog.Int("result_workers", cfg.Dispatch.ResultWorkers),
	)

	objs, err := engine.LoadObjects(cfg.Engine.Objects)
	if err != nil {
		return err
	}
	registry, err := engine.NewRegistry(objs)
	if err != nil {
		return fmt.Errorf("invalid objects %s: %w", cfg.Engine.Objects, err)
	}
	hosts, services := registry.Counts()
	log.Info("objects loaded", slog.Int("hosts", hosts), slog.Int("services", services))

	store, err := sqlite.New(ctx, cfg.Store.Path)
	if err != nil {
		return err
	}
	defer store.Close()

	client, err := dispatch.New(driver.Dial, dispatch.Options{
		Servers:  servers,
		Timeout:  cfg.GetTimeout(),
		DedupTTL: cfg.GetDedupTTL(),
	}, log)
	if err != nil {
		return err
	}
	defer client.Close()

	if driver.Name == kafka.Driver.Name {
		checkCtx, cancel := context.WithTimeout(ctx, cfg.GetTimeout())
		if err := kafka.CheckConnection(checkCtx, servers[0].Addr(), cfg.Dispatch.ResultQueue, log); err != nil {
			log.Warn("kafka not reachable yet", sl.Err(err))
		}
		cancel()
	}

	pool := service.NewResultWorkerPool(
		cfg.Dispatch.ResultWorkers,
		resultSources(driver.Name, servers, cfg, log),
		engine.NewResultWriter(registry, store, log),
		log,
	)

	hooks := engine.NewHooks()
	rules := rulesFrom(cfg)

	interceptor := service.NewInterceptor(service.Options{
		Subscriptions: service.SubscriptionsFor(rules, cfg.Dispatch.EventHandler),
		ResultQueue:   cfg.Dispatch.ResultQueue,
	}, service.Deps{
		Hooks:     hooks,
		Router:    routing.NewResolver(rules, registry, log),
		Hosts:     registry,
		Submitter: client,
		Pool:      pool,
	}, log)

	interceptor.Init(ctx)
	defer interceptor.Deinit()

	router := apihttp.NewRouter(
		apihttp.NewHealthController(interceptor, gatewayID(), buildVersion(), driver.Name),
		apihttp.NewCheckController(hooks),
		apihttp.NewResultsController(store),
		apihttp.Auth{User: cfg.Server.AuthUser, Token: cfg.Server.AuthToken},
		log,
	)

	httpServer := &nethttp.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("starting http server", slog.String("port", cfg.Server.Port))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down dispatcher...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		return nil
	})

	err = g.Wait()

	st := client.Stats()
	log.Info("dispatcher stopped",
		slog.Int("submitted", st.Submitted),
		slog.Int("dropped", st.Dropped),
		slog.Int("reconnects", st.Reconnects),
	)
	return err
}

func gatewayID() string {
	if h, err := os.Hostname(); err == nil {
		return h
	}
	return "dispatcher"
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "(devel)"
}
