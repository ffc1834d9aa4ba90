package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/snowflk/blackbox/internal/persistence"
	"github.com/snowflk/blackbox/internal/persistence/bbin"
	"github.com/snowflk/blackbox/internal/persistence/boltstore"
	"github.com/snowflk/blackbox/internal/persistence/sqlstorage"
	"github.com/urfave/cli/v2"
)

func sessionsCommand() *cli.Command {
	return &cli.Command{
		Name:      "sessions",
		Usage:     "list recorded capture sessions",
		ArgsUsage: "[PATTERN]",
		Flags:     []cli.Flag{catalogFlag()},
		Action:    runSessions,
	}
}

func runSessions(c *cli.Context) error {
	pattern := "*"
	if c.NArg() > 0 {
		pattern = c.Args().First()
	}
	var sessions []persistence.Session
	err := withCatalog(c.String("catalog"), func(catalog *boltstore.SessionKeeper) error {
		var err error
		sessions, err = catalog.FindSessions(persistence.Pattern(pattern))
		return err
	})
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(c.App.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tDURATION\tRECORDS\tARMED ONLY\tPATH")
	for _, s := range sessions {
		duration := "running"
		if s.Finished() {
			duration = s.FinishedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%v\t%s\n",
			s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), duration, s.Records, s.ArmedOnly, s.Path)
	}
	return tw.Flush()
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:      "export",
		Usage:     "load the records of a log into Postgres or MySQL",
		ArgsUsage: "FILE",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "driver", Value: sqlstorage.DriverPostgres, Usage: "postgres or mysql", EnvVars: []string{"BLACKBOX_SQL_DRIVER"}},
			&cli.StringFlag{Name: "sql-host", Value: "localhost", EnvVars: []string{"BLACKBOX_SQL_HOST"}},
			&cli.IntFlag{Name: "sql-port", Value: 5432, EnvVars: []string{"BLACKBOX_SQL_PORT"}},
			&cli.StringFlag{Name: "sql-user", Value: "blackbox", EnvVars: []string{"BLACKBOX_SQL_USER"}},
			&cli.StringFlag{Name: "sql-password", EnvVars: []string{"BLACKBOX_SQL_PASSWORD"}},
			&cli.StringFlag{Name: "sql-database", Value: "blackbox", EnvVars: []string{"BLACKBOX_SQL_DATABASE"}},
			&cli.StringFlag{Name: "session", Usage: "session id (default: a new uuid)"},
		},
		Action: runExport,
	}
}

func runExport(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("usage: blackbox export FILE", 2)
	}
	path := c.Args().First()
	store, err := sqlstorage.New(sqlstorage.Options{
		Driver:   c.String("driver"),
		Host:     c.String("sql-host"),
		Port:     c.Int("sql-port"),
		User:     c.String("sql-user"),
		Password: c.String("sql-password"),
		Database: c.String("sql-database"),
	})
	if err != nil {
		return err
	}
	defer store.Close()

	reader, err := bbin.Open(path)
	if err != nil {
		return err
	}
	defer reader.Close()

	var stats persistence.SessionStats
	records := make([]persistence.RawRecord, 0)
	for reader.Next() {
		rec := reader.Record()
		msgType := "UNKNOWN"
		if frame, _, err := codec.Decode(rec.Payload); err == nil {
			msgType = codec.Name(frame)
		} else {
			stats.DecodeErrors++
		}
		records = append(records, persistence.RawRecord{
			Offset:      reader.Offset(),
			Timestamp:   rec.Timestamp,
			Sequence:    rec.Sequence,
			SystemID:    rec.SystemID,
			ComponentID: rec.ComponentID,
			MessageType: msgType,
			Payload:     rec.Payload,
		})
	}
	if err := reader.Err(); err != nil {
		if !errors.Is(err, persistence.ErrTruncated) {
			return err
		}
		log.Warnf("exporting the records before the damage: %v", err)
	}
	stats.Records = uint64(len(records))

	id := c.String("session")
	if id == "" {
		id = uuid.New().String()
	}
	err = store.CreateSession(persistence.Session{
		ID:        id,
		Path:      path,
		StartedAt: time.UnixMilli(reader.Header().StartTimestamp).UTC(),
	})
	if err != nil {
		return err
	}
	if len(records) > 0 {
		if err := store.ExportRecords(id, records); err != nil {
			return err
		}
	}
	if err := store.FinishSession(id, stats); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "exported %d records of %s as session %s\n", len(records), path, id)
	return nil
}
