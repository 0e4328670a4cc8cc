package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/pitabwire/util"

	"github.com/pitabwire/linguist"
	"github.com/pitabwire/linguist/config"
	"github.com/pitabwire/linguist/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.FromEnv[config.Configuration]()
	if err != nil {
		util.Log(ctx).WithError(err).Fatal("could not load configuration")
	}
	if cfg.ServiceVersion == "" {
		cfg.ServiceVersion = version.Version
	}

	svc, err := linguist.NewService(ctx, &cfg)
	if err != nil {
		util.Log(ctx).WithError(err).Fatal("could not start linguist")
	}
	ctx = linguist.ToContext(ctx, svc)

	svc.Log(ctx).
		WithField("version", cfg.Version()).
		WithField("commit", version.Commit).
		Info("starting linguist")

	if err = svc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		svc.Log(ctx).WithError(err).Error("linguist stopped with error")
		os.Exit(1)
	}
}
