package main

import (
	"context"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/replay"
	"github.com/snowflk/blackbox/internal/transport"
	"github.com/urfave/cli/v2"
)

func replayCommand() *cli.Command {
	return &cli.Command{
		Name:      "replay",
		Usage:     "send a recorded log to a TCP endpoint",
		ArgsUsage: "FILE [TARGET]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "filter",
				Usage:   "only send messages whose type contains this text",
				EnvVars: []string{"BLACKBOX_FILTER"},
			},
			&cli.BoolFlag{
				Name:    "realtime",
				Usage:   "keep the recorded gaps between messages",
				EnvVars: []string{"BLACKBOX_REALTIME"},
			},
			&cli.Float64Flag{
				Name:    "speed",
				Value:   1.0,
				Usage:   "divide every gap by this factor in realtime mode",
				EnvVars: []string{"BLACKBOX_SPEED"},
			},
		},
		Action: runReplay,
	}
}

func runReplay(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: blackbox replay FILE [TARGET]", 2)
	}
	path := c.Args().Get(0)
	target := defaultAddress
	if c.NArg() > 1 {
		target = c.Args().Get(1)
	}
	opts := replay.Options{
		Filter:   c.String("filter"),
		Realtime: c.Bool("realtime"),
		Speed:    c.Float64("speed"),
		OnReplay: func(m replay.Message) {
			log.WithFields(log.Fields{"ts": m.Record.Timestamp, "seq": m.Record.Sequence}).Infof("replayed %s", m.Type)
		},
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	conn, err := transport.TCPDialer{}.Dial(c.Context, target)
	if err != nil {
		return err
	}
	defer conn.Close()

	replayer, err := replay.Open(path, conn, codec)
	if err != nil {
		return err
	}
	defer replayer.Close()

	summary, err := replayer.Run(c.Context, opts)
	if summary != nil {
		log.WithFields(log.Fields{
			"total":         summary.Total,
			"replayed":      summary.Replayed,
			"filtered":      summary.Filtered,
			"decode_errors": summary.DecodeErrors,
			"truncated":     summary.Truncated,
			"took":          summary.WallDuration,
		}).Info("replay summary")
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
