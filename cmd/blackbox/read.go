package main

import (
	"encoding/hex"
	"fmt"
	"sort"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/persistence"
	"github.com/snowflk/blackbox/internal/persistence/bbin"
	"github.com/snowflk/blackbox/internal/replay"
	"github.com/urfave/cli/v2"
)

func readCommand() *cli.Command {
	return &cli.Command{
		Name:      "read",
		Usage:     "print the messages of a log",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "filter",
				Usage: "only print messages whose type contains this text",
			},
			&cli.BoolFlag{
				Name:  "show",
				Usage: "print the payload of every message",
			},
		},
		Action: runRead,
	}
}

func runRead(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: blackbox read FILE", 2)
	}
	reader, err := bbin.Open(c.Args().First())
	if err != nil {
		return err
	}
	defer reader.Close()

	header := reader.Header()
	fmt.Fprintf(c.App.Writer, "version %d.%d, started %s\n", header.Version/10, header.Version%10,
		time.UnixMilli(header.StartTimestamp).UTC().Format(time.RFC3339))

	messages, err := replay.Collect(reader, codec, c.String("filter"))
	if errors.Is(err, persistence.ErrTruncated) {
		log.Warnf("log ends inside a record: %v", err)
	} else if err != nil {
		return err
	}
	for _, m := range messages {
		fmt.Fprintf(c.App.Writer, "%d -> %s seq=%d sys=%d comp=%d len=%d\n",
			m.Record.Timestamp, m.Type, m.Record.Sequence, m.Record.SystemID, m.Record.ComponentID, len(m.Frame.Payload))
		if c.Bool("show") {
			fmt.Fprintf(c.App.Writer, "    %s\n", hex.EncodeToString(m.Frame.Payload))
		}
	}
	fmt.Fprintf(c.App.Writer, "%d messages\n", len(messages))
	return nil
}

func indexCommand() *cli.Command {
	return &cli.Command{
		Name:      "index",
		Usage:     "dump the index of a finalized log",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "entries",
				Usage: "print every entry instead of per-type counts",
			},
		},
		Action: runIndex,
	}
}

func runIndex(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: blackbox index FILE", 2)
	}
	trailer, err := bbin.OpenIndex(c.Args().First())
	if err != nil {
		return err
	}
	w := c.App.Writer
	fmt.Fprintf(w, "index at offset %d, %d entries\n", trailer.IndexOffset, len(trailer.Entries))
	if c.Bool("entries") {
		for _, e := range trailer.Entries {
			fmt.Fprintf(w, "%10d  %d  %s\n", e.Offset, e.Timestamp, e.MessageType)
		}
		return nil
	}

	counts := make(map[string]int)
	for _, e := range trailer.Entries {
		counts[e.MessageType]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "%-28s %d\n", t, counts[t])
	}
	if n := len(trailer.Entries); n > 1 {
		span := time.Duration(trailer.Entries[n-1].Timestamp-trailer.Entries[0].Timestamp) * time.Millisecond
		fmt.Fprintf(w, "span %s\n", span)
	}
	return nil
}
