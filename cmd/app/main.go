package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"FinPWA/internal/di"
	"FinPWA/internal/handler/api"
	"FinPWA/pkg/cache"
	"FinPWA/pkg/config"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "finpwa",
		Usage: "offline-first gateway and financial calculators for the portfolio tracker",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config/config.yaml",
				Usage:   "config file path",
				Sources: cli.EnvVars(config.EnvPrefix + "CONFIG"),
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			calcCommand(),
			partitionsCommand(),
			configCommand(),
		},
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadWithEnv(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("config load failed: %w", err)
	}
	return cfg, nil
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the gateway until interrupted",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// Wire DI: Initialize all dependencies
			app, err := di.InitializeApp(cfg)
			if err != nil {
				return fmt.Errorf("app initialization failed: %w", err)
			}
			return app.Run()
		},
	}
}

func calcCommand() *cli.Command {
	return &cli.Command{
		Name:      "calc",
		Usage:     "run a calculator on a JSON request",
		ArgsUsage: "<name> [json]",
		Description: "Reads the request from the second argument or, when absent, from stdin.\n" +
			"Without a name the available calculators are listed.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "currency",
				Usage: "currency used to display money amounts (default from config)",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			out := cmd.Root().Writer
			name := cmd.Args().First()
			if name == "" {
				for _, c := range api.Calculations() {
					fmt.Fprintln(out, c.Name)
				}
				return nil
			}
			calc, ok := api.FindCalculation(name)
			if !ok {
				return fmt.Errorf("unknown calculator %q", name)
			}

			var input []byte
			if cmd.Args().Len() > 1 {
				input = []byte(cmd.Args().Get(1))
			} else {
				b, err := io.ReadAll(cmd.Root().Reader)
				if err != nil {
					return fmt.Errorf("read stdin: %w", err)
				}
				input = b
			}

			currency := cmd.String("currency")
			if currency == "" {
				currency = "EUR"
				if cfg, err := loadConfig(cmd); err == nil {
					currency = cfg.Calculator.Currency
				}
			}

			result, err := calc.Evaluate(ctx, input)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(api.NewPresenter(currency).Present(result))
		},
	}
}

func partitionsCommand() *cli.Command {
	return &cli.Command{
		Name:  "partitions",
		Usage: "list cache partitions in the configured storage",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "prune",
				Usage: "delete partitions not owned by the configured version",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			storage, err := di.ProvideCacheStorage(cfg)
			if err != nil {
				return err
			}
			defer storage.Close()

			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			out := cmd.Root().Writer
			if cmd.Bool("prune") {
				deleted, err := cache.Prune(ctx, storage, cfg.Router.StaticPartition, cfg.Router.DynamicPartition)
				if err != nil {
					return err
				}
				for _, name := range deleted {
					fmt.Fprintf(out, "deleted %s\n", name)
				}
			}

			names, err := storage.Keys(ctx)
			if err != nil {
				return err
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Fprintln(out, name)
			}
			return nil
		},
	}
}

func configCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "print the effective configuration as YAML",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			b, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			out := string(b)
			if cfg.Cache.Redis.Password != "" {
				out = strings.ReplaceAll(out, cfg.Cache.Redis.Password, "******")
			}
			if cfg.ClickHouse.Password != "" {
				out = strings.ReplaceAll(out, cfg.ClickHouse.Password, "******")
			}
			_, err = io.WriteString(cmd.Root().Writer, out)
			return err
		},
	}
}
