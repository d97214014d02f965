// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag(r *Runner) cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   r.configPath,
	}
}

// migrateCommand handles the source-to-target migration.
func migrateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Copy user-manager users from the source device to the target device",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "Read users from the source, write the CSV export and create them on the target",
				Flags: []cli.Flag{
					configFlag(r),
					&cli.StringFlag{
						Name:    "export",
						Aliases: []string{"o"},
						Usage:   "CSV export path (default: export.path from config)",
					},
					&cli.BoolFlag{
						Name:  "no-export",
						Usage: "Skip the CSV export",
					},
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Build and validate payloads without creating users on the target",
					},
					&cli.StringFlag{
						Name:  "from-csv",
						Usage: "Replay users from a previous CSV export instead of reading the source",
					},
				},
				Action: r.MigrateRun,
			},
			{
				Name:  "export",
				Usage: "Read users from the source and write the CSV export only",
				Flags: []cli.Flag{
					configFlag(r),
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "CSV export path (default: export.path from config)",
					},
				},
				Action: r.MigrateExport,
			},
		},
	}
}

// usersCommand handles read-only device listings.
func usersCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "users",
		Usage: "Inspect user-manager users on a configured device",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List users with passwords masked",
				Flags: []cli.Flag{
					configFlag(r),
					&cli.StringFlag{
						Name:    "device",
						Aliases: []string{"d"},
						Usage:   "Device to read (source or target)",
						Value:   "source",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON",
					},
					&cli.BoolFlag{
						Name:  "pretty",
						Usage: "Pretty-print JSON output",
						Value: true,
					},
				},
				Action: r.UsersList,
			},
		},
	}
}

// setupCommand handles setup operations for configuration and the history database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "config",
				Usage:  "Write a config.toml template",
				Flags:  []cli.Flag{configFlag(r)},
				Action: r.SetupConfig,
			},
			{
				Name:  "database",
				Usage: "Initialize the run history database and run migrations",
				Flags: []cli.Flag{
					configFlag(r),
					&cli.BoolFlag{
						Name:  "rollback",
						Usage: "Roll back the most recent migration instead",
					},
				},
				Action: r.SetupDatabase,
			},
		},
	}
}

// historyCommand handles run history queries.
func historyCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recorded migration runs",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List recent runs, newest first",
				Flags: []cli.Flag{
					configFlag(r),
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of runs to return",
						Value:   20,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON",
					},
				},
				Action: r.HistoryList,
			},
			{
				Name:  "show",
				Usage: "Show one run and its failed users",
				Flags: []cli.Flag{
					configFlag(r),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Run ID",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Output JSON",
					},
				},
				Action: r.HistoryShow,
			},
			{
				Name:  "delete",
				Usage: "Hide a run from the history",
				Flags: []cli.Flag{
					configFlag(r),
					&cli.StringFlag{
						Name:     "id",
						Usage:    "Run ID",
						Required: true,
					},
				},
				Action: r.HistoryDelete,
			},
		},
	}
}
