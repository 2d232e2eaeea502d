package cmd

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/reviewpilot/internal/config"
)

// ConfigCommand returns the config command
func ConfigCommand() *cli.Command {
	return &cli.Command{
		Name:  "config",
		Usage: "Manage configuration",
		Subcommands: []*cli.Command{
			{
				Name:  "init",
				Usage: "Initialize a new configuration file",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output file path",
						Value:   "reviewpilot.toml",
					},
				},
				Action: runConfigInit,
			},
			{
				Name:   "show",
				Usage:  "Print the resolved configuration with secrets redacted",
				Action: runConfigShow,
			},
			{
				Name:   "validate",
				Usage:  "Validate the configuration file",
				Action: runConfigValidate,
			},
		},
	}
}

func runConfigInit(c *cli.Context) error {
	outputPath := c.String("output")

	if err := config.InitConfig(outputPath); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	fmt.Printf("Created configuration file at %s\n", outputPath)
	return nil
}

func runConfigShow(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Print(renderConfig(cfg))
	return nil
}

// renderConfig formats the resolved configuration for display. Token
// and API key values are never printed.
func renderConfig(cfg *config.Config) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "[github]\n")
	fmt.Fprintf(&sb, "token = %s\n", redact(cfg.GitHub.Token))
	fmt.Fprintf(&sb, "graphql_url = %q\n\n", cfg.GitHub.GraphQLURL)

	fmt.Fprintf(&sb, "[ai]\n")
	fmt.Fprintf(&sb, "provider = %q\n", cfg.AI.Provider)
	fmt.Fprintf(&sb, "api_key = %s\n", redact(cfg.AI.APIKey))
	fmt.Fprintf(&sb, "model = %q\n", cfg.AI.Model)
	if cfg.AI.BaseURL != "" {
		fmt.Fprintf(&sb, "base_url = %q\n", cfg.AI.BaseURL)
	}
	fmt.Fprintf(&sb, "temperature = %g\n", cfg.AI.Temperature)
	fmt.Fprintf(&sb, "max_tokens = %d\n\n", cfg.AI.MaxTokens)

	fmt.Fprintf(&sb, "[executor]\n")
	fmt.Fprintf(&sb, "backend = %q\n", cfg.Executor.Backend)
	fmt.Fprintf(&sb, "max_turns = %d\n", cfg.Executor.MaxTurns)
	fmt.Fprintf(&sb, "max_files = %d\n\n", cfg.Executor.MaxFiles)

	fmt.Fprintf(&sb, "[workspace]\n")
	fmt.Fprintf(&sb, "root = %q\n", cfg.Workspace.Root)

	return sb.String()
}

func redact(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	return "(redacted)"
}

func runConfigValidate(c *cli.Context) error {
	configPath := c.String("config")

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("Configuration is valid")
	return nil
}
