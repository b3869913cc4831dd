package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jobagg-engine/internal/aggregate"
	"jobagg-engine/internal/alerts"

	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			newPaths,
			loadConfig,
			newCfgVal,
			newLogger,
			newHub,
			newHostLimiter,
			newHTTPClient,
			newRegistry,
			newCache,
			newBreakers,
			newFallback,
			newSink,
			newOrchestrator,
			newAlerts,
			newDeps,
		),
		fx.Invoke(
			startTracer,
			startServer,
			func(*aggregate.Orchestrator, *alerts.Runner) {},
		),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		log.Fatal(err)
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	stopCtx, cancelStop := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelStop()
	if err := app.Stop(stopCtx); err != nil {
		log.Fatal(err)
	}
}
