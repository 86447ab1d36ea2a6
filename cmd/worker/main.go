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
	kafkax "github.com/ariefcatur/go-checkout-engine/internal/kafka"
	"github.com/ariefcatur/go-checkout-engine/internal/logging"
	"github.com/ariefcatur/go-checkout-engine/internal/orders"
	"github.com/ariefcatur/go-checkout-engine/internal/outbox"
	"github.com/ariefcatur/go-checkout-engine/internal/projector"
	"github.com/ariefcatur/go-checkout-engine/internal/redisx"
)

func main() {
	cliApp := &cli.App{
		Name:  "checkout-worker",
		Usage: "background jobs of the checkout engine",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "relay the outbox, project order events and reconcile slots until stopped",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "relay", Value: true, Usage: "publish outbox records to Kafka"},
					&cli.BoolFlag{Name: "projector", Value: true, Usage: "project order events into the Redis status cache"},
					&cli.BoolFlag{Name: "reconcile", Value: true, Usage: "periodically repair delivery slot counts"},
				},
				Action: run,
			},
			{
				Name:   "reconcile",
				Usage:  "repair delivery slot counts once and exit",
				Action: reconcileOnce,
			},
		},
	}
	if err := cliApp.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("checkout-worker failed")
	}
}

func open(ctx context.Context) (*app.App, logrus.FieldLogger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.StoreDriver != "postgres" {
		return nil, nil, errors.New("the worker needs STORE_DRIVER=postgres")
	}
	log := logging.New(cfg.ServiceName+"-worker", cfg.LogLevel, cfg.LogFormat)
	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open app")
	}
	return a, log, nil
}

func reconcileOnce(c *cli.Context) error {
	a, log, err := open(c.Context)
	if err != nil {
		return err
	}
	defer a.Close()
	fixes, err := a.Slots.Reconcile(c.Context)
	if err != nil {
		return err
	}
	log.WithField("corrected", len(fixes)).Info("reconcile done")
	return nil
}

func run(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, log, err := open(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	cfg := a.Config
	if c.Bool("projector") && a.Redis == nil {
		return errors.New("the projector needs REDIS_ADDR")
	}

	g, ctx := errgroup.WithContext(ctx)

	if c.Bool("relay") {
		producer := kafkax.NewProducer(cfg.KafkaBrokers)
		defer producer.Close()
		relay := &outbox.Relay{
			Repo:      a.Store.Outbox(),
			Tx:        a.Store,
			Publisher: producer,
			Log:       log.WithField("component", "outbox"),
			Metrics:   a.Metrics,
			BatchSize: cfg.OutboxBatchSize,
			Interval:  cfg.OutboxInterval,
		}
		g.Go(func() error { return relay.Run(ctx) })
	}

	if c.Bool("projector") {
		p := &projector.Projector{
			Status: redisx.NewStatusCache(a.Redis),
			Dedup:  redisx.NewDedup(a.Redis, cfg.ProjectorGroup),
			Log:    log.WithField("component", "projector"),
		}
		consumer := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ProjectorGroup, orders.AllTopics, cfg.ProjectorWorkers,
			log.WithField("component", "consumer"))
		g.Go(func() error { return consumer.Start(ctx, p.Handle) })
	}

	if c.Bool("reconcile") {
		g.Go(func() error { return reconcileLoop(ctx, a, cfg.ReconcileInterval, log) })
	}

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: a.Metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "metrics listen")
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	log.WithFields(logrus.Fields{
		"relay":     c.Bool("relay"),
		"projector": c.Bool("projector"),
		"reconcile": c.Bool("reconcile"),
	}).Info("worker started")
	err = g.Wait()
	log.Info("worker stopped")
	return err
}

func reconcileLoop(ctx context.Context, a *app.App, every time.Duration, log logrus.FieldLogger) error {
	if every <= 0 {
		every = 10 * time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := a.Slots.Reconcile(ctx); err != nil && ctx.Err() == nil {
				log.WithError(err).Warn("reconcile failed")
			}
		}
	}
}
