package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-checkout-engine/internal/app"
	"github.com/ariefcatur/go-checkout-engine/internal/config"
	"github.com/ariefcatur/go-checkout-engine/internal/httpx"
	"github.com/ariefcatur/go-checkout-engine/internal/logging"
	"github.com/ariefcatur/go-checkout-engine/internal/postgres"
	"github.com/ariefcatur/go-checkout-engine/internal/redisx"
)

func main() {
	cliApp := &cli.App{
		Name:  "checkout-api",
		Usage: "storefront and back-office HTTP API of the checkout engine",
		Commands: []*cli.Command{
			{
				Name:  "serve",
				Usage: "run the HTTP server",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "http-addr", Usage: "listen address (HTTP_ADDR)"},
					&cli.StringFlag{Name: "store", Usage: "postgres or memory (STORE_DRIVER)"},
					&cli.BoolFlag{Name: "migrate", Usage: "apply migrations before serving"},
				},
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply database migrations",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "down", Usage: "roll every migration back"},
				},
				Action: migrate,
			},
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("checkout-api failed")
	}
}

func loadConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return cfg, err
	}
	if c.IsSet("http-addr") {
		cfg.HTTPAddr = c.String("http-addr")
	}
	if c.IsSet("store") {
		cfg.StoreDriver = c.String("store")
	}
	return cfg, cfg.Validate()
}

func migrate(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)
	if err := postgres.Migrate(cfg.PostgresDSN, c.Bool("down")); err != nil {
		return err
	}
	log.WithField("down", c.Bool("down")).Info("migrations applied")
	return nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := logging.New(cfg.ServiceName, cfg.LogLevel, cfg.LogFormat)

	if c.Bool("migrate") && cfg.StoreDriver == "postgres" {
		if err := postgres.Migrate(cfg.PostgresDSN, false); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return errors.Wrap(err, "open app")
	}
	defer a.Close()

	deps := httpx.Deps{
		Catalog:  a.Catalog,
		Cart:     a.Cart,
		Slots:    a.Slots,
		Coupons:  a.Coupons,
		Orders:   a.Orders,
		Checkout: a.Checkout,
		Health:   a.Health,
		Log:      log,
		Metrics:  a.Metrics,
		Timeout:  cfg.CheckoutTimeout + 5*time.Second,
	}
	if a.Redis != nil {
		deps.Status = redisx.NewStatusCache(a.Redis)
	}
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpx.NewRouter(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("addr", cfg.HTTPAddr).Info("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "listen")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
