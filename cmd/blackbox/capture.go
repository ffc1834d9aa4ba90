package main

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/capture"
	"github.com/snowflk/blackbox/internal/monitor"
	"github.com/snowflk/blackbox/internal/persistence"
	"github.com/snowflk/blackbox/internal/persistence/bbin"
	"github.com/snowflk/blackbox/internal/persistence/boltstore"
	"github.com/snowflk/blackbox/internal/transport"
	"github.com/urfave/cli/v2"
)

func captureCommand() *cli.Command {
	return &cli.Command{
		Name:      "capture",
		Usage:     "record a live telemetry stream into a log file",
		ArgsUsage: "[ADDRESS]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "out",
				Aliases: []string{"o"},
				Usage:   "log file (default mavlink_log_<YYYYmmdd_HHMMSS>.bbin)",
				EnvVars: []string{"BLACKBOX_OUT"},
			},
			&cli.BoolFlag{
				Name:    "armed-only",
				Usage:   "keep only messages received while the vehicle is armed",
				EnvVars: []string{"BLACKBOX_ARMED_ONLY"},
			},
			&cli.StringFlag{
				Name:    "http",
				Usage:   "serve the live monitor API on this address, e.g. :8080",
				EnvVars: []string{"BLACKBOX_HTTP"},
			},
			&cli.DurationFlag{
				Name:    "poll-interval",
				Value:   capture.DefaultPollInterval,
				Usage:   "longest wait for data before checking for a stop request",
				EnvVars: []string{"BLACKBOX_POLL_INTERVAL"},
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "log every captured message",
			},
			catalogFlag(),
		},
		Action: runCapture,
	}
}

func runCapture(c *cli.Context) error {
	address := defaultAddress
	if c.NArg() > 0 {
		address = c.Args().First()
	}
	cfg := capture.Config{
		ArmedOnly:    c.Bool("armed-only"),
		PollInterval: c.Duration("poll-interval"),
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	path := c.String("out")
	if path == "" {
		path = fmt.Sprintf("mavlink_log_%s.bbin", time.Now().Format("20060102_150405"))
	}

	writer, err := bbin.Create(path)
	if err != nil {
		return err
	}
	conn, err := transport.TCPDialer{}.Dial(c.Context, address)
	if err != nil {
		_ = writer.Finalize()
		_ = os.Remove(path)
		return err
	}
	defer conn.Close()

	queue := capture.NewQueue(1024)
	engine, err := capture.New(conn, codec, writer, queue, cfg)
	if err != nil {
		_ = writer.Finalize()
		return err
	}

	// The catalog is only held open while it is written, so other commands
	// can read it during a capture.
	catalogPath := c.String("catalog")
	session := persistence.Session{
		ID:        uuid.New().String(),
		Path:      path,
		Address:   address,
		ArmedOnly: cfg.ArmedOnly,
		StartedAt: time.UnixMilli(writer.Header().StartTimestamp).UTC(),
	}
	err = withCatalog(catalogPath, func(catalog *boltstore.SessionKeeper) error {
		return catalog.CreateSession(session)
	})
	if err != nil {
		_ = writer.Finalize()
		return errors.Wrap(err, "failed to register session")
	}
	log.WithFields(log.Fields{"session": session.ID, "path": path}).Info("capture session started")

	observers := capture.MultiObserver{capture.ConsoleObserver{Verbose: c.Bool("verbose")}}
	if addr := c.String("http"); addr != "" {
		mon := monitor.New(monitor.Options{})
		observers = append(observers, mon)
		go func() {
			if err := mon.Serve(c.Context, addr); err != nil {
				log.Errorf("monitor stopped: %v", err)
			}
		}()
	}
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		queue.Forward(observers)
	}()

	runErr := engine.Run(c.Context)
	queue.Close()
	wg.Wait()
	if dropped := queue.Dropped(); dropped > 0 {
		log.Warnf("console fell behind, %d notifications dropped", dropped)
	}

	err = withCatalog(catalogPath, func(catalog *boltstore.SessionKeeper) error {
		return catalog.FinishSession(session.ID, engine.Stats())
	})
	if err != nil {
		log.Errorf("failed to finish session %s: %v", session.ID, err)
	}
	log.Infof("log written to %s", path)
	return runErr
}

func withCatalog(path string, fn func(catalog *boltstore.SessionKeeper) error) error {
	catalog, err := boltstore.Open(path)
	if err != nil {
		return err
	}
	defer catalog.Close()
	return fn(catalog)
}
