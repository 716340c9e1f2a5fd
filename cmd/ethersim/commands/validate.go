package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/ethersim/internal/config"
)

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a scenario configuration without running it",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			fmt.Printf("scenario valid: %d node(s), %d send(s), bus=%s@%.0fbps\n",
				len(cfg.Scenario.Nodes),
				len(cfg.Scenario.Sends),
				cfg.Scenario.Bus.Detail,
				cfg.Scenario.Bus.BandwidthBPS,
			)
			return nil
		},
	}
}

// loadConfig loads configuration from a file path or returns defaults,
// mirroring the teacher's cmd/gobfd/main.go loadConfig helper.
func loadConfig(path string) (*config.ScenarioConfig, error) {
	if path != "" {
		return config.Load(path)
	}
	cfg := config.DefaultConfig()
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
