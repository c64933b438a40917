package main

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/sgracers-leaderboard/internal/backend"
	"github.com/sgracers-leaderboard/internal/config"
	"github.com/sgracers-leaderboard/internal/domain"
	"github.com/sgracers-leaderboard/internal/identity"
	"github.com/sgracers-leaderboard/internal/service"
)

func main() {
	app := &cli.App{
		Name:  "lbctl",
		Usage: "leaderboard maintenance tool",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "path to the configuration file",
				EnvVars: []string{"LEADERBOARD_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log at debug level",
			},
		},
		Commands: []*cli.Command{
			leaderboardCommand(),
			orderCommand(),
			rebuildCommand(),
			eventsCommand(),
			produceCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newLogger(c *cli.Context) *slog.Logger {
	level := slog.LevelInfo
	if c.Bool("verbose") {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openBackend loads the configuration and opens its document store.
func openBackend(c *cli.Context) (*config.Config, *backend.Backend, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	be, err := backend.Open(c.Context, cfg, newLogger(c))
	if err != nil {
		return nil, nil, err
	}
	return cfg, be, nil
}

// withService opens the configured store and runs fn against a service
// built on it.
func withService(c *cli.Context, fn func(svc *service.LeaderboardService) error) error {
	cfg, be, err := openBackend(c)
	if err != nil {
		return err
	}
	defer be.Close()

	logger := newLogger(c)
	ids := identity.NewCache(be.Store, logger)
	if err := ids.Load(c.Context); err != nil {
		logger.Warn("failed to load identity mapping", "error", err)
	}
	return fn(service.NewLeaderboardService(be.Store, ids, service.ConfigFrom(cfg), logger))
}

func leaderboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "leaderboard",
		Usage: "print a ranked board",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "map", Required: true},
			&cli.StringFlag{Name: "difficulty", Value: string(domain.DifficultyMedium)},
			&cli.StringFlag{Name: "length", Value: "10", Usage: `entry count or "all"`},
		},
		Action: func(c *cli.Context) error {
			return withService(c, func(svc *service.LeaderboardService) error {
				board, err := svc.GetLeaderboard(c.Context, domain.LeaderboardRequest{
					Map:        c.String("map"),
					Difficulty: c.String("difficulty"),
					Length:     domain.ParseLength(c.String("length")),
				})
				if err != nil {
					return err
				}
				return printBoard(c.App.Writer, board)
			})
		},
	}
}

func printBoard(out io.Writer, board []domain.LeaderboardEntry) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tPLAYER\tPLATFORM ID\tTIME")
	for i, e := range board {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, e.DisplayName, e.CompositeUserID.PlatformID, e.Value)
	}
	return tw.Flush()
}

func orderCommand() *cli.Command {
	return &cli.Command{
		Name:  "order",
		Usage: "rewrite personal best records in canonical map and difficulty order",
		Action: func(c *cli.Context) error {
			return withService(c, func(svc *service.LeaderboardService) error {
				res, err := svc.OrderRecords(c.Context)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "records: %d, reordered: %d\n", res.Records, res.Changed)
				if res.CommitURL != "" {
					fmt.Fprintln(c.App.Writer, res.CommitURL)
				}
				return nil
			})
		},
	}
}

func rebuildCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild-snapshots",
		Usage: "regenerate every leaderboard snapshot from the personal best records",
		Action: func(c *cli.Context) error {
			return withService(c, func(svc *service.LeaderboardService) error {
				res, err := svc.RebuildSnapshots(c.Context)
				if err != nil {
					return err
				}
				fmt.Fprintf(c.App.Writer, "boards: %d, changed: %d\n", res.Boards, res.Changed)
				if res.CommitURL != "" {
					fmt.Fprintln(c.App.Writer, res.CommitURL)
				}
				return nil
			})
		},
	}
}

func eventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "show a player's recent submissions from the audit log",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "player", Required: true, Usage: "platform user id"},
			&cli.IntFlag{Name: "limit", Value: 20},
		},
		Action: func(c *cli.Context) error {
			_, be, err := openBackend(c)
			if err != nil {
				return err
			}
			defer be.Close()
			if be.Audit == nil {
				return fmt.Errorf("audit log requires postgres (set postgres.enabled)")
			}

			events, err := be.Audit.RecentEvents(c.Context, c.String("player"), c.Int("limit"))
			if err != nil {
				return err
			}
			return printEvents(c.App.Writer, events)
		},
	}
}

func printEvents(out io.Writer, events []domain.SubmissionEvent) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tBOARD\tMS\tOUTCOME")
	for _, e := range events {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
			e.Timestamp.Format(time.RFC3339), domain.Category(e.Map, e.Difficulty), e.TimeMs, e.Outcome)
	}
	return tw.Flush()
}
