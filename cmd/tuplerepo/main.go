// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/poiesic/tuplerepo"
	"github.com/poiesic/tuplerepo/config"
	"github.com/poiesic/tuplerepo/core"
	"github.com/poiesic/tuplerepo/observe"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tuplerepo",
		Usage: "Inspect and maintain a tuplerepo database",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML config file",
			},
			&cli.StringFlag{
				Name:    "db",
				Aliases: []string{"d"},
				Usage:   "Path to BadgerDB database directory (overrides the config file)",
			},
			&cli.BoolFlag{
				Name:  "stats",
				Usage: "Print store metrics when the command finishes",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "spaces",
				Usage:  "List spaces with their primary keys and tuple counts",
				Action: spacesCommand,
			},
			{
				Name:      "dump",
				Usage:     "Print every tuple of a space in key order",
				ArgsUsage: "<space>",
				Action:    dumpCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Print at most N tuples (0 prints all)",
					},
				},
			},
			{
				Name:      "define",
				Usage:     "Define a space",
				ArgsUsage: "<space>",
				Action:    defineCommand,
				Flags: []cli.Flag{
					&cli.IntSliceFlag{
						Name:  "key",
						Usage: "Primary key field position, repeatable",
						Value: cli.NewIntSlice(0),
					},
				},
			},
			{
				Name:      "call",
				Usage:     "Call a stored procedure; arguments are parsed as YAML scalars",
				ArgsUsage: "<procedure> [args...]",
				Action:    callCommand,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:  "script",
						Usage: "Lua script to load before the call, repeatable",
					},
				},
			},
			{
				Name:      "truncate",
				Usage:     "Remove every tuple from one or more spaces",
				ArgsUsage: "<space>...",
				Action:    truncateCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Confirm the truncation",
					},
				},
			},
		},
	}
}

// loadConfig builds the configuration from --config and --db.
func loadConfig(c *cli.Context, extraScripts []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}
	if db := c.String("db"); db != "" {
		cfg.Store.Path = db
		cfg.Store.InMemory = false
	}
	cfg.Scripts = append(cfg.Scripts, extraScripts...)
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !c.IsSet("log-level") {
		installLogger(cfg.Level())
	}
	return cfg, nil
}

// withDatabase opens the database for one command and closes it after fn,
// printing metrics first when --stats is set.
func withDatabase(c *cli.Context, extraScripts []string, fn func(ctx context.Context, db *tuplerepo.Database) error) (err error) {
	ctx := context.Background()
	cfg, err := loadConfig(c, extraScripts)
	if err != nil {
		return err
	}

	var opts []tuplerepo.DatabaseOption
	var provider *observe.Provider
	if c.Bool("stats") {
		if provider, err = observe.InitProvider(observe.ProviderConfig{}); err != nil {
			return err
		}
		defer func() { err = errors.Join(err, provider.Shutdown(ctx)) }()
		m, err := provider.Metrics()
		if err != nil {
			return err
		}
		opts = append(opts, tuplerepo.WithMetrics(m))
	}

	db, err := tuplerepo.Open(cfg, opts...)
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, db.Close()) }()

	if err := fn(ctx, db); err != nil {
		return err
	}

	if provider != nil {
		rm, err := provider.Collect(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "--- stats")
		return observe.WriteSummary(c.App.Writer, rm)
	}
	return nil
}

func requireArg(c *cli.Context, name string) (string, error) {
	arg := c.Args().First()
	if arg == "" {
		return "", fmt.Errorf("%s is required", name)
	}
	return arg, nil
}

func spacesCommand(c *cli.Context) error {
	return withDatabase(c, nil, func(ctx context.Context, db *tuplerepo.Database) error {
		spaces, err := db.Store().Spaces(ctx)
		if err != nil {
			return err
		}
		if len(spaces) == 0 {
			fmt.Fprintln(c.App.Writer, "no spaces defined")
			return nil
		}
		for _, sp := range spaces {
			fmt.Fprintf(c.App.Writer, "%s\tkey=%v\ttuples=%d\n", sp.Name, sp.KeyFields, sp.Count)
		}
		return nil
	})
}

func dumpCommand(c *cli.Context) error {
	space, err := requireArg(c, "space")
	if err != nil {
		return err
	}
	limit := c.Int("limit")
	return withDatabase(c, nil, func(ctx context.Context, db *tuplerepo.Database) error {
		tuples, err := db.Client().Select(ctx, space, nil)
		if err != nil {
			return err
		}
		for i, t := range tuples {
			if limit > 0 && i >= limit {
				fmt.Fprintf(c.App.Writer, "... %d more\n", len(tuples)-limit)
				break
			}
			fmt.Fprintln(c.App.Writer, t)
		}
		slog.Debug("dumped space", "space", space, "tuples", len(tuples))
		return nil
	})
}

func defineCommand(c *cli.Context) error {
	space, err := requireArg(c, "space")
	if err != nil {
		return err
	}
	keys := c.IntSlice("key")
	return withDatabase(c, nil, func(ctx context.Context, db *tuplerepo.Database) error {
		if err := db.Store().DefineSpace(ctx, space, keys); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "defined %s key=%v\n", space, keys)
		return nil
	})
}

func callCommand(c *cli.Context) error {
	proc, err := requireArg(c, "procedure")
	if err != nil {
		return err
	}
	args, err := parseArgs(c.Args().Tail())
	if err != nil {
		return err
	}
	return withDatabase(c, c.StringSlice("script"), func(ctx context.Context, db *tuplerepo.Database) error {
		tuples, err := db.Client().Call(ctx, proc, args...)
		if err != nil {
			return err
		}
		for _, t := range tuples {
			fmt.Fprintln(c.App.Writer, t)
		}
		return nil
	})
}

// parseArgs reads each argument as a YAML value so that 42, 1.5, true and
// [1, 2] arrive as numbers, booleans and lists.
func parseArgs(raw []string) ([]any, error) {
	out := make([]any, len(raw))
	for i, s := range raw {
		var v any
		if err := yaml.Unmarshal([]byte(s), &v); err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		cell, err := storeValue(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = cell
	}
	return out, nil
}

// storeValue turns a decoded YAML value into store-native cells.
func storeValue(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, float64, int64, uint64:
		return x, nil
	case int:
		return int64(x), nil
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			cell, err := storeValue(item)
			if err != nil {
				return nil, err
			}
			out[i] = cell
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			cell, err := storeValue(item)
			if err != nil {
				return nil, err
			}
			out[k] = cell
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", core.ErrUnsupportedConversion, v)
}

func truncateCommand(c *cli.Context) error {
	if _, err := requireArg(c, "space"); err != nil {
		return err
	}
	spaces := c.Args().Slice()
	if !c.Bool("yes") {
		return fmt.Errorf("refusing to truncate %s without --yes", strings.Join(spaces, ", "))
	}
	return withDatabase(c, nil, func(ctx context.Context, db *tuplerepo.Database) error {
		counts, err := db.Truncate(ctx, spaces...)
		for _, space := range spaces {
			if n, ok := counts[space]; ok {
				fmt.Fprintf(c.App.Writer, "removed %d tuples from %s\n", n, space)
			}
		}
		return err
	})
}

// setupLogger installs the --log-level logger before any command runs.
// Without the flag, loadConfig replaces it with the config file's level.
func setupLogger(c *cli.Context) error {
	level, err := config.ParseLevel(strings.ToLower(c.String("log-level")))
	if err != nil {
		return err
	}
	installLogger(level)
	return nil
}

func installLogger(level slog.Level) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
