package cmd

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/docuchat/console/internal/aiconnectors"
	"github.com/docuchat/console/internal/api"
	"github.com/docuchat/console/internal/brain"
	"github.com/docuchat/console/internal/config"
	"github.com/docuchat/console/internal/logging"
	"github.com/docuchat/console/internal/store"
)

// ServeCommand returns the CLI command for starting the API server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the console API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logging.Setup(cfg.Log.Level, cfg.Log.Pretty)

	storeClient, err := store.New(store.Config{
		URL:    cfg.Store.URL,
		APIKey: cfg.Store.APIKey,
	})
	if err != nil {
		return fmt.Errorf("failed to create store client: %w", err)
	}

	connector, err := aiconnectors.NewConnector(context.Background(), aiconnectors.ConnectorOptions{
		Provider: aiconnectors.Provider(cfg.AI.Provider),
		APIKey:   cfg.AI.APIKey,
		BaseURL:  cfg.AI.BaseURL,
		Model:    cfg.AI.Model,
	})
	if err != nil {
		return fmt.Errorf("failed to create AI connector: %w", err)
	}

	engine := brain.NewEngine(
		storeClient,
		storeClient,
		brain.NewAnalyzer(connector),
		brain.NewRouter(cfg.Agent.URL, nil),
	)

	port := cfg.Server.Port
	if c.Int("port") > 0 {
		port = c.Int("port")
	}

	server := api.NewServer(port, cfg.Server.RateLimit, engine)
	return server.Start()
}
