package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/allisson/eventrelay/cmd/app/commands"
	"github.com/allisson/eventrelay/internal/app"
	"github.com/allisson/eventrelay/internal/database"
)

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Value:   "text",
		Usage:   "Output format: 'text' or 'json'",
	}
}

func getEventsCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:  "dispatch-event",
			Usage: "Dispatch an event to its listeners",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:     "name",
					Aliases:  []string{"n"},
					Required: true,
					Usage:    "Event name (e.g., file.uploaded)",
				},
				&cli.StringFlag{
					Name:     "body",
					Aliases:  []string{"b"},
					Required: true,
					Usage:    "Event JSON object",
				},
				&cli.BoolFlag{
					Name:  "atomic",
					Usage: "Dispatch in one database transaction; a failing sync listener discards the async records",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg, err := commands.LoadConfig()
				if err != nil {
					return err
				}
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				dispatcher, err := container.Dispatcher()
				if err != nil {
					return err
				}

				r, err := container.Registry()
				if err != nil {
					return err
				}

				var txManager database.TxManager
				if cmd.Bool("atomic") {
					if txManager, err = container.TxManager(); err != nil {
						return err
					}
				}

				// First attempts run here and drain on shutdown.
				if err := container.Executor().Start(); err != nil {
					return fmt.Errorf("failed to start async executor: %w", err)
				}

				return commands.RunDispatchEvent(
					ctx,
					dispatcher,
					txManager,
					r,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("name"),
					cmd.String("body"),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "list-async-invocations",
			Usage: "List async invocations awaiting successful delivery",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:    "offset",
					Aliases: []string{"o"},
					Value:   0,
					Usage:   "Number of records to skip",
				},
				&cli.IntFlag{
					Name:    "limit",
					Aliases: []string{"l"},
					Value:   50,
					Usage:   "Maximum number of records to list",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg, err := commands.LoadConfig()
				if err != nil {
					return err
				}
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				store, err := container.AsyncInvocationUseCase()
				if err != nil {
					return err
				}

				return commands.RunListAsyncInvocations(
					ctx,
					store,
					container.Logger(),
					commands.DefaultIO().Writer,
					int(cmd.Int("offset")),
					int(cmd.Int("limit")),
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "retry-async-invocations",
			Usage: "Run one retry sweep over outstanding async invocations",
			Flags: []cli.Flag{formatFlag()},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg, err := commands.LoadConfig()
				if err != nil {
					return err
				}
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				sweeper, err := container.RetrySweeper()
				if err != nil {
					return err
				}

				return commands.RunRetryAsyncInvocations(
					ctx,
					sweeper,
					container.Logger(),
					commands.DefaultIO().Writer,
					cmd.String("format"),
				)
			},
		},
		{
			Name:  "clean-async-invocations",
			Usage: "Delete async invocations older than specified days",
			Flags: []cli.Flag{
				&cli.IntFlag{
					Name:     "days",
					Aliases:  []string{"d"},
					Required: true,
					Usage:    "Delete async invocations older than this many days",
				},
				&cli.BoolFlag{
					Name:    "dry-run",
					Aliases: []string{"n"},
					Value:   false,
					Usage:   "Show how many records would be deleted without deleting",
				},
				formatFlag(),
			},
			Action: func(ctx context.Context, cmd *cli.Command) error {
				cfg, err := commands.LoadConfig()
				if err != nil {
					return err
				}
				container := app.NewContainer(cfg)
				defer func() { _ = container.Shutdown(ctx) }()

				reaper, err := container.HistoryReaper()
				if err != nil {
					return err
				}

				return commands.RunCleanAsyncInvocations(
					ctx,
					reaper,
					container.Logger(),
					commands.DefaultIO().Writer,
					int(cmd.Int("days")),
					cmd.Bool("dry-run"),
					cmd.String("format"),
				)
			},
		},
	}
}
