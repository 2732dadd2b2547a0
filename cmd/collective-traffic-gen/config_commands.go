package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/scttfrdmn/collective-traffic-gen/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and create configuration files",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after merging defaults, the config file,
CTGEN_* environment variables and command line flags.`,
	Args: cobra.NoArgs,
	Run:  runConfigShowCommand,
}

var configInitCmd = &cobra.Command{
	Use:   "init <path>",
	Short: "Write a configuration file with the default settings",
	Args:  cobra.ExactArgs(1),
	Run:   runConfigInitCommand,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShowCommand(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if used := viper.ConfigFileUsed(); used != "" {
		fmt.Printf("# config file: %s\n", used)
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		fmt.Printf("Error: failed to encode configuration: %v\n", err)
		os.Exit(1)
	}
	enc.Close()
}

func runConfigInitCommand(cmd *cobra.Command, args []string) {
	if err := initConfigFile(args[0]); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Configuration written to %s\n", args[0])
}

// initConfigFile writes the default configuration to path and reads it back.
func initConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	if err := config.DefaultConfig().Save(path); err != nil {
		return err
	}
	if _, err := config.LoadFile(path); err != nil {
		return fmt.Errorf("written file does not load back: %w", err)
	}
	return nil
}
