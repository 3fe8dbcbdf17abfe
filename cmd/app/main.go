package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/mindforge/internal"
	"github.com/starford/mindforge/internal/search"
	pkgconfig "github.com/starford/mindforge/pkg/config"
)

func options(cmd *cli.Command) ([]internal.Option, error) {
	configPath := cmd.String("config")

	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadIfExists(configPath, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if dir := cmd.String("project-dir"); dir != "" {
		cfg.Store.ProjectDir = dir
	}

	return []internal.Option{
		internal.WithConfig(cfg),
	}, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, opts...); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func searchCmd(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
	if query == "" {
		return fmt.Errorf("usage: search <query...>")
	}
	limit := int(cmd.Int("limit"))

	opts, err := options(cmd)
	if err != nil {
		return err
	}
	results, err := internal.Search(ctx, query, limit, opts...)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	fmt.Println(search.Format(query, results))
	return nil
}

func indexCmd(ctx context.Context, cmd *cli.Command) error {
	opts, err := options(cmd)
	if err != nil {
		return err
	}
	stats, err := internal.Index(ctx, opts...)
	if err != nil {
		return err
	}
	return json.NewEncoder(os.Stdout).Encode(stats)
}

func main() {
	cmd := &cli.Command{
		Name:   "mindforge",
		Usage:  "Project memory server for coding agents, speaking MCP over stdio",
		Action: serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "project-dir",
				Usage:   "Project directory checked for a store before walking up from the working directory",
				Sources: cli.EnvVars("MINDFORGE_PROJECT_DIR", "CLAUDE_PROJECT_DIR"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the memory tools on stdin/stdout",
				Action: serve,
			},
			{
				Name:      "search",
				Usage:     "Search the memory documents",
				ArgsUsage: "<query...>",
				Action:    searchCmd,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "Print results as JSON"},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of results (default from config)"},
				},
			},
			{
				Name:   "index",
				Usage:  "Build the search index and print its size",
				Action: indexCmd,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
