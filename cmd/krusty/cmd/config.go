package cmd

import (
	"fmt"
	"strings"

	"github.com/Zia-Rashid/Krusty-Krab/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage agent configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  krusty config init -o krusty.yaml
  krusty config validate -f krusty.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default paper-trading settings.

Example:
  krusty config init -o krusty.yaml`,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check if a configuration file is valid and can be loaded.

Example:
  krusty config validate -f krusty.yaml`,
	RunE: runConfigValidate,
}

var (
	configInitOutput   string
	configValidatePath string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "krusty.yaml", "output config file path")
	configValidateCmd.Flags().StringVarP(&configValidatePath, "file", "f", "", "path to config file (required)")
	configValidateCmd.MarkFlagRequired("file")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created default configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file, export APCA_API_KEY_ID and APCA_API_SECRET_KEY, and run with:")
	fmt.Printf("  krusty run -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFromFile(configValidatePath)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configValidatePath)
	fmt.Printf("  Broker: %s (%s)\n", cfg.Broker.Type, cfg.Broker.Env)
	fmt.Printf("  Strategies: %s\n", strings.Join(cfg.Strategy.Names(), ", "))
	fmt.Printf("  Thresholds: buy >= %.2f, sell <= %.2f\n", cfg.Strategy.BuyThreshold, cfg.Strategy.SellThreshold)
	fmt.Printf("  Risk: stop %.1f%%, max position %.1f%%, trailing %.1f%%\n",
		cfg.Risk.RiskThreshold*100, cfg.Risk.MaxFraction*100, cfg.Risk.TrailingFraction*100)
	fmt.Printf("  Journal: %s\n", cfg.Journal.Type)
	return nil
}
