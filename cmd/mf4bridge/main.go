// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the mf4bridge CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the mf4bridge CLI.
var rootCmd = &cobra.Command{
	Use:   "mf4bridge",
	Short: "Convert MDF4 CAN-bus recordings to analysis-tool trace formats",
	Long: `mf4bridge reads MDF4 (.mf4) measurement containers recorded from CAN buses
and converts the frame data to CSV tables, Vector ASC traces and PEAK TRC
traces. Conversion streams over the container in bounded-memory chunks, so
multi-gigabyte recordings convert without loading the file into memory.

Use "convert" to run conversions and "inspect" to print a container's
structure without converting it.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./mf4bridge.yaml or ~/.config/mf4bridge/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("mf4bridge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "mf4bridge"))
		}
	}

	viper.SetEnvPrefix("MF4BRIDGE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
