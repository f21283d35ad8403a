// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/mf4bridge/internal/engine"
	"github.com/pdiddy/mf4bridge/internal/keys"
	"github.com/pdiddy/mf4bridge/internal/report"
	"github.com/pdiddy/mf4bridge/pkg/types"
)

var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert MDF4 recordings to CSV, ASC and/or TRC",
	Long: `Convert reads one or more .mf4 containers and writes one output file per
requested format per input, named <input_stem>.csv/.asc/.trc in the output
directory. Inputs are converted in parallel on a bounded worker pool; one
input failing does not stop the others.

Encrypted containers need a key: put a hex-encoded AES key named after the
input stem into the key directory (--keys).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, engCfg, err := convertConfig(cmd)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		keyMap, err := keys.Load(cfg.KeyDir)
		if err != nil {
			return err
		}

		e := engine.New(engCfg)
		defer e.Close()

		statuses, result := engine.RunBatch(e, args, cfg, keyMap, os.Stdout)

		if cfg.ReportPath != "" {
			if err := report.Write(cfg.ReportPath, statuses); err != nil {
				return err
			}
			fmt.Fprintf(os.Stdout, "Report written to %s\n", cfg.ReportPath)
		}
		if result.HasFailures() {
			return fmt.Errorf("%d of %d inputs failed", result.Failed+result.Rejected, result.Total())
		}
		return nil
	},
}

// convertConfig resolves the convert command's flags against viper.
func convertConfig(cmd *cobra.Command) (types.ConvertConfig, types.EngineConfig, error) {
	viper.BindPFlag("output_dir", cmd.Flags().Lookup("out"))
	viper.BindPFlag("key_dir", cmd.Flags().Lookup("keys"))
	viper.BindPFlag("report_path", cmd.Flags().Lookup("report"))
	viper.BindPFlag("engine.workers", cmd.Flags().Lookup("workers"))
	viper.BindPFlag("engine.memory_ceiling", cmd.Flags().Lookup("memory-ceiling"))

	names, _ := cmd.Flags().GetStringSlice("formats")
	formats := make([]types.FormatTag, 0, len(names))
	for _, name := range names {
		tag, err := types.ParseFormatTag(name)
		if err != nil {
			return types.ConvertConfig{}, types.EngineConfig{}, err
		}
		formats = append(formats, tag)
	}

	cfg := types.ConvertConfig{
		OutputDir:  viper.GetString("output_dir"),
		Formats:    formats,
		KeyDir:     viper.GetString("key_dir"),
		ReportPath: viper.GetString("report_path"),
	}
	engCfg := types.EngineConfig{
		Workers:       viper.GetInt("engine.workers"),
		MemoryCeiling: viper.GetInt64("engine.memory_ceiling"),
	}
	return cfg, engCfg, nil
}

func init() {
	convertCmd.Flags().StringSlice("formats", []string{"csv", "asc", "trc"}, "output formats: csv, asc, trc")
	convertCmd.Flags().String("out", ".", "output directory")
	convertCmd.Flags().String("keys", ".keys", "directory of per-file decryption keys")
	convertCmd.Flags().String("report", "", "write a YAML batch report to this path")
	convertCmd.Flags().Int("workers", 0, "worker pool size (default 4)")
	convertCmd.Flags().Int64("memory-ceiling", 0, "decoded chunk memory ceiling in bytes (default 64 MiB)")

	rootCmd.AddCommand(convertCmd)
}
