package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/notesync/internal"
	"github.com/starford/notesync/internal/reconcile"
	pkgconfig "github.com/starford/notesync/pkg/config"
)

var version = "dev"

func loadOptions(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.LoadOptional(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	opts := []internal.Option{
		internal.WithConfig(cfg),
		internal.WithVersion(version),
	}
	// Only serve owns stdout for logs.
	if cmd.Name != "serve" && cmd.Name != "notesync" {
		opts = append(opts, internal.WithLogOutput(os.Stderr))
	}
	return opts, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func syncOnce(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	sum, err := internal.Sync(ctx, opts...)
	fmt.Fprintf(os.Stdout, "pushed %d (failed %d), pulled %d, inserted %d, pruned %d in %s\n",
		sum.Pushed, sum.PushFailed, sum.Pulled, sum.Inserted, sum.Pruned, sum.Duration.Round(time.Millisecond))
	if err != nil {
		var pe *reconcile.PhaseError
		if errors.As(err, &pe) {
			return fmt.Errorf("sync failed in %s phase: %w", pe.Phase, pe.Err)
		}
		return err
	}
	return nil
}

func importNotes(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	n, err := internal.Import(ctx, opts...)
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	fmt.Fprintf(os.Stdout, "imported %d notes\n", n)
	return nil
}

func newNote(ctx context.Context, cmd *cli.Command) error {
	title := strings.Join(cmd.Args().Slice(), " ")
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("new: title is required")
	}
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	note, err := internal.CreateNote(ctx, title, opts...)
	if err != nil {
		return fmt.Errorf("new: %w", err)
	}
	fmt.Fprintln(os.Stdout, note.Key)
	return nil
}

func listNotes(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	items, err := internal.ListNotes(ctx, cmd.Args().First(), opts...)
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	for _, it := range items {
		fmt.Fprintf(os.Stdout, "%s  %s  %s\n", it.Key, it.Modified.Local().Format("2006-01-02 15:04"), it.Title)
	}
	return nil
}

func serveMCP(ctx context.Context, cmd *cli.Command) error {
	opts, err := loadOptions(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx, opts...)
}

func main() {
	cmd := &cli.Command{
		Name:    "notesync",
		Usage:   "Keep a local plain-text note store in sync with a Simplenote account",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Run the HTTP API, store watcher and background sync",
				Action: serve,
			},
			{
				Name:   "sync",
				Usage:  "Run one full sync pass and print a summary",
				Action: syncOnce,
			},
			{
				Name:   "import",
				Usage:  "Download every remote note into an empty local store",
				Action: importNotes,
			},
			{
				Name:      "new",
				Usage:     "Create a local note; it is pushed on the next sync",
				ArgsUsage: "<title>",
				Action:    newNote,
			},
			{
				Name:      "list",
				Usage:     "List local notes, newest first",
				ArgsUsage: "[pattern]",
				Action:    listNotes,
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools on stdin/stdout",
				Action: serveMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
