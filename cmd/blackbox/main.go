package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/mavlink"
	"github.com/urfave/cli/v2"
)

const (
	defaultAddress = "127.0.0.1:14552"
	defaultCatalog = "blackbox.db"
)

var codec = mavlink.NewCodec(mavlink.ArduPilotMega)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "blackbox",
		Usage: "record, inspect and replay MAVLink telemetry",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "one of trace, debug, info, warn, error",
				EnvVars: []string{"BLACKBOX_LOG_LEVEL"},
			},
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			captureCommand(),
			replayCommand(),
			readCommand(),
			indexCommand(),
			sessionsCommand(),
			exportCommand(),
		},
	}
}

func setupLogging(c *cli.Context) error {
	level, err := log.ParseLevel(c.String("log-level"))
	if err != nil {
		return err
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	return nil
}

func catalogFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "catalog",
		Value:   defaultCatalog,
		Usage:   "session catalog file",
		EnvVars: []string{"BLACKBOX_CATALOG"},
	}
}
