// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/pdiddy/mf4bridge/internal/mdf"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect [file]",
	Short: "Print an MDF4 container's structure without converting it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		c, err := mdf.Parse(f)
		if err != nil {
			return err
		}

		fmt.Printf("version:  %s (%d)\n", c.VersionString, c.Version)
		if c.Program != "" {
			fmt.Printf("program:  %s\n", c.Program)
		}
		if c.StartTimeNs > 0 {
			fmt.Printf("start:    %s\n", time.Unix(0, int64(c.StartTimeNs)).UTC().Format(time.RFC3339Nano))
		}
		fmt.Printf("groups:   %d\n", len(c.DataGroups))
		for gi, dg := range c.DataGroups {
			flags := ""
			if dg.Compressed {
				flags += " compressed"
			}
			if dg.Encrypted {
				flags += " encrypted"
			}
			fmt.Printf("  data group %d:%s\n", gi, flags)
			for ci, cg := range dg.Groups {
				fmt.Printf("    channel group %d: %d records x %d bytes\n", ci, cg.RecordCount, cg.RecordSize())
				for _, cn := range cg.Channels {
					fmt.Printf("      %-28s byte %3d bit %d width %d\n", cn.Name, cn.ByteOffset, cn.BitOffset, cn.BitCount)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
